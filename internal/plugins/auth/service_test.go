package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/quillcms/sudogate/internal/apperror"
)

// --- Mock Repository ---

// mockUserRepo implements UserRepository for testing.
type mockUserRepo struct {
	findByIDFn        func(ctx context.Context, id string) (*User, error)
	findByEmailFn     func(ctx context.Context, email string) (*User, error)
	listGrantsFn      func(ctx context.Context) ([]RoleCapability, error)
	listBaselineFn    func(ctx context.Context) ([]RoleCapability, error)
	replaceBaselineFn func(ctx context.Context, grants []RoleCapability) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) ListRoleCapabilities(ctx context.Context) ([]RoleCapability, error) {
	if m.listGrantsFn != nil {
		return m.listGrantsFn(ctx)
	}
	return nil, nil
}

func (m *mockUserRepo) ListBaselineCapabilities(ctx context.Context) ([]RoleCapability, error) {
	if m.listBaselineFn != nil {
		return m.listBaselineFn(ctx)
	}
	return nil, nil
}

func (m *mockUserRepo) ReplaceBaseline(ctx context.Context, grants []RoleCapability) error {
	if m.replaceBaselineFn != nil {
		return m.replaceBaselineFn(ctx, grants)
	}
	return nil
}

// --- Test Helpers ---

// newTestRedis starts a miniredis server and returns a client bound to it.
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

// assertAppError checks that err is an *apperror.AppError with the expected code.
func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

// --- Session Tests ---

func TestCreateAndValidateSession(t *testing.T) {
	rdb := newTestRedis(t)
	svc := NewAuthService(&mockUserRepo{}, rdb, time.Hour)
	ctx := context.Background()

	user := &User{
		ID:          "user-1",
		Email:       "admin@example.com",
		DisplayName: "Admin",
		IsAdmin:     true,
	}

	token, err := svc.CreateSession(ctx, user)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if len(token) != sessionTokenBytes*2 {
		t.Errorf("expected %d-char token, got %d", sessionTokenBytes*2, len(token))
	}

	session, err := svc.ValidateSession(ctx, token)
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if session.UserID != "user-1" {
		t.Errorf("expected user-1, got %s", session.UserID)
	}
	if !session.IsAdmin {
		t.Error("expected admin session")
	}
}

func TestValidateSession_UnknownToken(t *testing.T) {
	rdb := newTestRedis(t)
	svc := NewAuthService(&mockUserRepo{}, rdb, time.Hour)

	_, err := svc.ValidateSession(context.Background(), "no-such-token")
	assertAppError(t, err, 401)
}

func TestDestroySession(t *testing.T) {
	rdb := newTestRedis(t)
	svc := NewAuthService(&mockUserRepo{}, rdb, time.Hour)
	ctx := context.Background()

	token, err := svc.CreateSession(ctx, &User{ID: "user-1"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if err := svc.DestroySession(ctx, token); err != nil {
		t.Fatalf("DestroySession failed: %v", err)
	}

	_, err = svc.ValidateSession(ctx, token)
	assertAppError(t, err, 401)
}

func TestGetUser_EmptyID(t *testing.T) {
	rdb := newTestRedis(t)
	svc := NewAuthService(&mockUserRepo{}, rdb, time.Hour)

	_, err := svc.GetUser(context.Background(), "")
	assertAppError(t, err, 400)
}
