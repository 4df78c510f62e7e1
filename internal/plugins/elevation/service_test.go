package elevation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/quillcms/sudogate/internal/apperror"
	"github.com/quillcms/sudogate/internal/plugins/audit"
	"github.com/quillcms/sudogate/internal/plugins/auth"
	"github.com/quillcms/sudogate/internal/plugins/settings"
)

// --- Mocks ---

// fakeUserRepo serves a single fixed user.
type fakeUserRepo struct {
	user *auth.User
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id string) (*auth.User, error) {
	if f.user != nil && f.user.ID == id {
		return f.user, nil
	}
	return nil, apperror.NewNotFound("user not found")
}

func (f *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return nil, apperror.NewNotFound("user not found")
}

func (f *fakeUserRepo) ListRoleCapabilities(ctx context.Context) ([]auth.RoleCapability, error) {
	return nil, nil
}

func (f *fakeUserRepo) ListBaselineCapabilities(ctx context.Context) ([]auth.RoleCapability, error) {
	return nil, nil
}

func (f *fakeUserRepo) ReplaceBaseline(ctx context.Context, grants []auth.RoleCapability) error {
	return nil
}

// fakePassword accepts exactly one password.
type fakePassword struct {
	correct string
}

func (f *fakePassword) Verify(password, encodedHash string) bool {
	return password == f.correct
}

// fakeTOTP accepts exactly one code.
type fakeTOTP struct {
	correct string
}

func (f *fakeTOTP) Verify(code, secret string) bool {
	return code == f.correct && secret != ""
}

// fakeSettings returns a fixed configuration.
type fakeSettings struct {
	cfg settings.SudoSettings
}

func (f *fakeSettings) GetSudoSettings(ctx context.Context) (*settings.SudoSettings, error) {
	cfg := f.cfg
	return &cfg, nil
}

func (f *fakeSettings) UpdateSudoSettings(ctx context.Context, s *settings.SudoSettings) error {
	return nil
}

func (f *fakeSettings) Invalidate() {}

// recordingAudit captures the typed events fired during a test.
type recordingAudit struct {
	events []string
	counts []int
}

func (r *recordingAudit) Log(ctx context.Context, event *audit.Event) error { return nil }
func (r *recordingAudit) ListEvents(ctx context.Context, eventType string, page int) ([]audit.Event, int, error) {
	return nil, 0, nil
}
func (r *recordingAudit) LogActivated(ctx context.Context, userID string, expiresAt time.Time, durationMinutes int) {
	r.events = append(r.events, audit.EventActivated)
}
func (r *recordingAudit) LogDeactivated(ctx context.Context, userID string) {
	r.events = append(r.events, audit.EventDeactivated)
}
func (r *recordingAudit) LogReauthFailed(ctx context.Context, userID string, attempts int) {
	r.events = append(r.events, audit.EventReauthFailed)
	r.counts = append(r.counts, attempts)
}
func (r *recordingAudit) LogLockout(ctx context.Context, userID string, attempts int) {
	r.events = append(r.events, audit.EventLockout)
	r.counts = append(r.counts, attempts)
}
func (r *recordingAudit) LogActionGated(ctx context.Context, userID, ruleID, surface string)   {}
func (r *recordingAudit) LogActionBlocked(ctx context.Context, userID, ruleID, surface string) {}
func (r *recordingAudit) LogCapabilityTampered(ctx context.Context, role, capability string)   {}

func (r *recordingAudit) has(event string) bool {
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

// --- Test Setup ---

const testUserID = "user-1"

type testEnv struct {
	svc   *elevationService
	store ElevationStore
	audit *recordingAudit
	user  *auth.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(rdb)

	user := &auth.User{ID: testUserID, Email: "user@example.com", PasswordHash: "ignored"}
	rec := &recordingAudit{}

	svc := &elevationService{
		store:    store,
		users:    &fakeUserRepo{user: user},
		password: &fakePassword{correct: "hunter2"},
		totp:     &fakeTOTP{correct: "123456"},
		settings: &fakeSettings{cfg: settings.SudoSettings{DurationMinutes: 10}},
		audit:    rec,
		sleep:    func(time.Duration) {},
	}

	return &testEnv{svc: svc, store: store, audit: rec, user: user}
}

// --- Activation Tests ---

func TestAttemptActivation_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.AttemptActivation(ctx, testUserID, "hunter2")
	if err != nil {
		t.Fatalf("AttemptActivation failed: %v", err)
	}
	if res.Code != CodeSuccess {
		t.Fatalf("expected success, got %s", res.Code)
	}
	if res.Token == "" {
		t.Fatal("expected a raw token for the cookie")
	}
	if !env.svc.IsActive(ctx, testUserID, res.Token) {
		t.Error("session should be active with the issued token")
	}
	if !env.audit.has(audit.EventActivated) {
		t.Error("expected activated audit event")
	}
}

func TestAttemptActivation_WrongPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.AttemptActivation(ctx, testUserID, "wrong")
	if err != nil {
		t.Fatalf("AttemptActivation failed: %v", err)
	}
	if res.Code != CodeInvalidPassword {
		t.Errorf("expected invalid_password, got %s", res.Code)
	}
	if res.AttemptCount != 1 {
		t.Errorf("expected attempt count 1, got %d", res.AttemptCount)
	}
	if !env.audit.has(audit.EventReauthFailed) {
		t.Error("expected reauth_failed audit event")
	}
}

func TestAttemptActivation_UnknownUserSameShape(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// An unknown account must be indistinguishable from a wrong password.
	res, err := env.svc.AttemptActivation(ctx, "no-such-user", "hunter2")
	if err != nil {
		t.Fatalf("AttemptActivation failed: %v", err)
	}
	if res.Code != CodeInvalidPassword {
		t.Errorf("expected invalid_password for unknown user, got %s", res.Code)
	}
}

// --- Lockout Tests ---

func TestLockoutBoundary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Four wrong passwords: invalid_password each time, not yet locked.
	for i := 1; i <= MaxFailedAttempts-1; i++ {
		res, err := env.svc.AttemptActivation(ctx, testUserID, "wrong")
		if err != nil {
			t.Fatalf("attempt %d failed: %v", i, err)
		}
		if res.Code != CodeInvalidPassword {
			t.Fatalf("attempt %d: expected invalid_password, got %s", i, res.Code)
		}
		locked, _, _ := env.svc.IsLockedOut(ctx, testUserID)
		if locked {
			t.Fatalf("attempt %d: should not be locked out yet", i)
		}
	}

	// The fifth attempt triggers the lockout with count exactly 5.
	res, err := env.svc.AttemptActivation(ctx, testUserID, "wrong")
	if err != nil {
		t.Fatalf("fifth attempt failed: %v", err)
	}
	if res.Code != CodeLockedOut {
		t.Fatalf("expected locked_out on fifth attempt, got %s", res.Code)
	}
	if res.AttemptCount != MaxFailedAttempts {
		t.Errorf("expected count %d, got %d", MaxFailedAttempts, res.AttemptCount)
	}
	if !env.audit.has(audit.EventLockout) {
		t.Error("expected lockout audit event")
	}

	locked, remaining, _ := env.svc.IsLockedOut(ctx, testUserID)
	if !locked {
		t.Error("IsLockedOut should be true after the fifth failure")
	}
	if remaining <= 0 {
		t.Errorf("expected positive remaining seconds, got %d", remaining)
	}

	// The correct password does not help while locked out.
	res, err = env.svc.AttemptActivation(ctx, testUserID, "hunter2")
	if err != nil {
		t.Fatalf("post-lockout attempt failed: %v", err)
	}
	if res.Code != CodeLockedOut {
		t.Errorf("correct password during lockout should still return locked_out, got %s", res.Code)
	}
}

func TestLockoutExpiry_LazyCleanup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Build up some failed attempts, then force the lockout into the past.
	env.store.IncrementFailedAttempts(ctx, testUserID)
	env.store.IncrementFailedAttempts(ctx, testUserID)
	env.store.SetLockout(ctx, testUserID, time.Now().Add(-time.Minute))

	locked, _, err := env.svc.IsLockedOut(ctx, testUserID)
	if err != nil {
		t.Fatalf("IsLockedOut failed: %v", err)
	}
	if locked {
		t.Error("expired lockout should read as not locked out")
	}

	// The cleanup must have cleared the counter too: the next failure
	// starts counting from one again.
	res, err := env.svc.AttemptActivation(ctx, testUserID, "wrong")
	if err != nil {
		t.Fatalf("AttemptActivation failed: %v", err)
	}
	if res.AttemptCount != 1 {
		t.Errorf("expected counter reset to 1 after lockout expiry, got %d", res.AttemptCount)
	}
}

func TestFailureDelay_Monotonic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var delays []time.Duration
	env.svc.sleep = func(d time.Duration) { delays = append(delays, d) }

	for i := 0; i < 3; i++ {
		env.svc.AttemptActivation(ctx, testUserID, "wrong")
	}

	if len(delays) != 3 {
		t.Fatalf("expected 3 delays, got %d", len(delays))
	}
	for i := 1; i < len(delays); i++ {
		if delays[i] <= delays[i-1] {
			t.Errorf("delay should grow with attempts: %v", delays)
		}
	}
}

func TestSuccessResetsCounter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.svc.AttemptActivation(ctx, testUserID, "wrong")
	env.svc.AttemptActivation(ctx, testUserID, "wrong")

	res, err := env.svc.AttemptActivation(ctx, testUserID, "hunter2")
	if err != nil {
		t.Fatalf("AttemptActivation failed: %v", err)
	}
	if res.Code != CodeSuccess {
		t.Fatalf("expected success, got %s", res.Code)
	}

	// Counting starts over after the successful activation.
	res, _ = env.svc.AttemptActivation(ctx, testUserID, "wrong")
	if res.AttemptCount != 1 {
		t.Errorf("expected counter reset after success, got %d", res.AttemptCount)
	}
}

// --- Token Binding Tests ---

func TestIsActive_TokenBinding(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.AttemptActivation(ctx, testUserID, "hunter2")
	if err != nil {
		t.Fatalf("AttemptActivation failed: %v", err)
	}

	if !env.svc.IsActive(ctx, testUserID, res.Token) {
		t.Error("issued token should be active")
	}
	// Swapping the cookie value without touching stored state flips the
	// check; restoring the original restores it.
	if env.svc.IsActive(ctx, testUserID, "attacker-supplied-token") {
		t.Error("foreign token should not be active")
	}
	if !env.svc.IsActive(ctx, testUserID, res.Token) {
		t.Error("original token should still be active")
	}
}

func TestIsActive_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, _ := env.svc.AttemptActivation(ctx, testUserID, "hunter2")

	first := env.svc.IsActive(ctx, testUserID, res.Token)
	second := env.svc.IsActive(ctx, testUserID, res.Token)
	if first != second {
		t.Error("IsActive must be idempotent between state changes")
	}
}

func TestIsActive_NoState(t *testing.T) {
	env := newTestEnv(t)
	if env.svc.IsActive(context.Background(), testUserID, "anything") {
		t.Error("no stored state should never be active")
	}
}

func TestDeactivate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, _ := env.svc.AttemptActivation(ctx, testUserID, "hunter2")
	if err := env.svc.Deactivate(ctx, testUserID); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}

	if env.svc.IsActive(ctx, testUserID, res.Token) {
		t.Error("session should be inactive after deactivation")
	}
	if !env.audit.has(audit.EventDeactivated) {
		t.Error("expected deactivated audit event")
	}
}

// --- Two-Factor Tests ---

func TestTwoFactorFlow(t *testing.T) {
	env := newTestEnv(t)
	env.user.TOTPEnabled = true
	secret := "JBSWY3DPEHPK3PXP"
	env.user.TOTPSecret = &secret
	ctx := context.Background()

	res, err := env.svc.AttemptActivation(ctx, testUserID, "hunter2")
	if err != nil {
		t.Fatalf("AttemptActivation failed: %v", err)
	}
	if res.Code != CodeTwoFactorPending {
		t.Fatalf("expected 2fa_pending, got %s", res.Code)
	}
	if res.ChallengeToken == "" {
		t.Fatal("expected a challenge token")
	}
	if env.svc.IsActive(ctx, testUserID, res.Token) {
		t.Error("session must not be active while 2FA is pending")
	}

	// Wrong code counts toward lockout, state stays pending.
	bad, err := env.svc.VerifyTwoFactor(ctx, testUserID, "000000", res.ChallengeToken)
	if err != nil {
		t.Fatalf("VerifyTwoFactor failed: %v", err)
	}
	if bad.Code != CodeInvalidTwoFactor {
		t.Errorf("expected invalid_2fa, got %s", bad.Code)
	}

	// Correct code with the bound challenge finalizes the activation.
	final, err := env.svc.VerifyTwoFactor(ctx, testUserID, "123456", res.ChallengeToken)
	if err != nil {
		t.Fatalf("VerifyTwoFactor failed: %v", err)
	}
	if final.Code != CodeSuccess {
		t.Fatalf("expected success, got %s", final.Code)
	}
	if !env.svc.IsActive(ctx, testUserID, final.Token) {
		t.Error("session should be active after 2FA")
	}

	// The pending state was consumed: replaying the code fails.
	replay, _ := env.svc.VerifyTwoFactor(ctx, testUserID, "123456", res.ChallengeToken)
	if replay.Code != CodeInvalidTwoFactor {
		t.Errorf("consumed pending state should not verify again, got %s", replay.Code)
	}
}

func TestTwoFactor_WrongChallengeToken(t *testing.T) {
	env := newTestEnv(t)
	env.user.TOTPEnabled = true
	secret := "JBSWY3DPEHPK3PXP"
	env.user.TOTPSecret = &secret
	ctx := context.Background()

	res, _ := env.svc.AttemptActivation(ctx, testUserID, "hunter2")
	if res.Code != CodeTwoFactorPending {
		t.Fatalf("expected 2fa_pending, got %s", res.Code)
	}

	// A correct code from a browser that never passed the password step
	// (wrong challenge cookie) must not finalize.
	out, err := env.svc.VerifyTwoFactor(ctx, testUserID, "123456", "stolen-or-absent")
	if err != nil {
		t.Fatalf("VerifyTwoFactor failed: %v", err)
	}
	if out.Code != CodeInvalidTwoFactor {
		t.Errorf("unbound challenge should fail, got %s", out.Code)
	}
}

func TestTwoFactor_OverrideForcesPending(t *testing.T) {
	env := newTestEnv(t)
	env.svc.override = func(ctx context.Context, user *auth.User) bool { return true }
	ctx := context.Background()

	res, err := env.svc.AttemptActivation(ctx, testUserID, "hunter2")
	if err != nil {
		t.Fatalf("AttemptActivation failed: %v", err)
	}
	if res.Code != CodeTwoFactorPending {
		t.Errorf("override should force the 2FA branch, got %s", res.Code)
	}
}

// --- Blocked Notice Tests ---

func TestBlockedNotice_TakeOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.svc.WriteBlockedNotice(ctx, testUserID, "users.delete", "Delete user")

	notice, err := env.svc.TakeBlockedNotice(ctx, testUserID, "")
	if err != nil {
		t.Fatalf("TakeBlockedNotice failed: %v", err)
	}
	if notice == nil || notice.RuleID != "users.delete" {
		t.Fatalf("expected the stored notice, got %+v", notice)
	}

	// Read-then-delete: the second read finds nothing.
	again, err := env.svc.TakeBlockedNotice(ctx, testUserID, "")
	if err != nil {
		t.Fatalf("second TakeBlockedNotice failed: %v", err)
	}
	if again != nil {
		t.Error("notice should be consumed on first read")
	}
}

func TestBlockedNotice_SuppressedWhenActive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.svc.WriteBlockedNotice(ctx, testUserID, "users.delete", "Delete user")
	res, _ := env.svc.AttemptActivation(ctx, testUserID, "hunter2")

	notice, err := env.svc.TakeBlockedNotice(ctx, testUserID, res.Token)
	if err != nil {
		t.Fatalf("TakeBlockedNotice failed: %v", err)
	}
	if notice != nil {
		t.Error("notice should be suppressed once the session is active")
	}
}
