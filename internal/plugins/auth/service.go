package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quillcms/sudogate/internal/apperror"
)

// sessionKeyPrefix is the Redis key prefix for host login-session data.
const sessionKeyPrefix = "session:"

// sessionTokenBytes is the number of random bytes in a session token.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const sessionTokenBytes = 32

// AuthService validates host login sessions and resolves users. Handlers
// and the gate call these methods -- they never touch the repository
// directly.
type AuthService interface {
	// ValidateSession looks up a session token and returns the session data
	// if it exists and hasn't expired.
	ValidateSession(ctx context.Context, token string) (*Session, error)

	// CreateSession stores a new login session for the user and returns the
	// session token for the cookie. Used by the host platform's login glue
	// and by integration tests.
	CreateSession(ctx context.Context, user *User) (string, error)

	// DestroySession removes a session, logging the user out.
	DestroySession(ctx context.Context, token string) error

	// GetUser resolves a user by id.
	GetUser(ctx context.Context, id string) (*User, error)
}

// authService implements AuthService with Redis-backed sessions.
type authService struct {
	repo       UserRepository
	redis      *redis.Client
	sessionTTL time.Duration
}

// NewAuthService creates a new auth service with the given dependencies.
func NewAuthService(repo UserRepository, rdb *redis.Client, sessionTTL time.Duration) AuthService {
	return &authService{
		repo:       repo,
		redis:      rdb,
		sessionTTL: sessionTTL,
	}
}

// ValidateSession looks up a session token in Redis and returns the session
// data if it exists and hasn't expired.
func (s *authService) ValidateSession(ctx context.Context, token string) (*Session, error) {
	key := sessionKeyPrefix + token

	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, apperror.NewUnauthorized("session expired or invalid")
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("reading session from Redis: %w", err))
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("unmarshaling session: %w", err))
	}

	return &session, nil
}

// CreateSession generates a random session token, stores the session data in
// Redis with the configured TTL, and returns the token.
func (s *authService) CreateSession(ctx context.Context, user *User) (string, error) {
	token, err := GenerateToken(sessionTokenBytes)
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("generating session token: %w", err))
	}

	session := Session{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.DisplayName,
		IsAdmin:   user.IsAdmin,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(session)
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("marshaling session: %w", err))
	}

	key := sessionKeyPrefix + token
	if err := s.redis.Set(ctx, key, data, s.sessionTTL).Err(); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("storing session in Redis: %w", err))
	}

	return token, nil
}

// DestroySession removes a session from Redis.
func (s *authService) DestroySession(ctx context.Context, token string) error {
	key := sessionKeyPrefix + token

	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return apperror.NewInternal(fmt.Errorf("deleting session from Redis: %w", err))
	}

	return nil
}

// GetUser resolves a user by id.
func (s *authService) GetUser(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, apperror.NewBadRequest("user ID is required")
	}
	return s.repo.FindByID(ctx, id)
}
