package elevation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quillcms/sudogate/internal/apperror"
)

// Redis key layout. Everything is per-user and TTL-bounded; nothing is ever
// swept, expiry is checked lazily on read.
const (
	keyExpiresAt      = "expires_at"
	keyTokenHash      = "token_hash"
	keyFailedAttempts = "failed_attempts"
	keyLockoutUntil   = "lockout_until"
	keyPending        = "pending_2fa"
	keyBlockedNotice  = "blocked_notice"
)

// ElevationStore is the persistence contract for per-user elevation state.
type ElevationStore interface {
	// Activation state.
	SetActivation(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	GetActivation(ctx context.Context, userID string) (tokenHash string, expiresAt time.Time, err error)
	ClearActivation(ctx context.Context, userID string) error

	// Failed-attempt counter. Increment is atomic so racing wrong-password
	// submissions cannot under-count.
	IncrementFailedAttempts(ctx context.Context, userID string) (int, error)
	ResetFailedAttempts(ctx context.Context, userID string) error

	// Lockout timestamp.
	SetLockout(ctx context.Context, userID string, until time.Time) error
	GetLockout(ctx context.Context, userID string) (time.Time, error)
	ClearLockout(ctx context.Context, userID string) error

	// Pending-2FA record.
	SetPending(ctx context.Context, userID string, state *PendingState) error
	GetPending(ctx context.Context, userID string) (*PendingState, error)
	DeletePending(ctx context.Context, userID string) error

	// Blocked-notice transient, consumed read-then-delete.
	SetBlockedNotice(ctx context.Context, userID string, notice *BlockedNotice) error
	TakeBlockedNotice(ctx context.Context, userID string) (*BlockedNotice, error)
}

// redisStore implements ElevationStore on go-redis.
type redisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates the Redis-backed elevation store.
func NewRedisStore(rdb *redis.Client) ElevationStore {
	return &redisStore{rdb: rdb}
}

// stateKey builds the per-user Redis key for one state field.
func stateKey(userID, field string) string {
	return "sudo:" + userID + ":" + field
}

// SetActivation stores the token hash and expiry together. Both keys carry
// a TTL slightly past the expiry so Redis reclaims them on its own.
func (s *redisStore) SetActivation(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt) + time.Minute

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, stateKey(userID, keyTokenHash), tokenHash, ttl)
	pipe.Set(ctx, stateKey(userID, keyExpiresAt), strconv.FormatInt(expiresAt.Unix(), 10), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperror.NewInternal(fmt.Errorf("storing activation for %s: %w", userID, err))
	}
	return nil
}

// GetActivation returns the stored hash and expiry. A missing record comes
// back as a zero expiry, never an error: "not active" is a normal state.
func (s *redisStore) GetActivation(ctx context.Context, userID string) (string, time.Time, error) {
	vals, err := s.rdb.MGet(ctx, stateKey(userID, keyTokenHash), stateKey(userID, keyExpiresAt)).Result()
	if err != nil {
		return "", time.Time{}, apperror.NewInternal(fmt.Errorf("reading activation for %s: %w", userID, err))
	}

	hash, ok := vals[0].(string)
	if !ok {
		return "", time.Time{}, nil
	}
	raw, ok := vals[1].(string)
	if !ok {
		return "", time.Time{}, nil
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", time.Time{}, nil
	}
	return hash, time.Unix(unix, 0), nil
}

// ClearActivation removes the token hash and expiry.
func (s *redisStore) ClearActivation(ctx context.Context, userID string) error {
	err := s.rdb.Del(ctx, stateKey(userID, keyTokenHash), stateKey(userID, keyExpiresAt)).Err()
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("clearing activation for %s: %w", userID, err))
	}
	return nil
}

// IncrementFailedAttempts bumps the counter atomically and returns the new
// count. The key's TTL is refreshed on every failure so the window slides.
func (s *redisStore) IncrementFailedAttempts(ctx context.Context, userID string) (int, error) {
	key := stateKey(userID, keyFailedAttempts)

	count, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, apperror.NewInternal(fmt.Errorf("incrementing attempts for %s: %w", userID, err))
	}
	s.rdb.Expire(ctx, key, attemptWindow)
	return int(count), nil
}

// ResetFailedAttempts clears the counter.
func (s *redisStore) ResetFailedAttempts(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, stateKey(userID, keyFailedAttempts)).Err(); err != nil {
		return apperror.NewInternal(fmt.Errorf("resetting attempts for %s: %w", userID, err))
	}
	return nil
}

// SetLockout stores the lockout-until timestamp.
func (s *redisStore) SetLockout(ctx context.Context, userID string, until time.Time) error {
	ttl := time.Until(until) + time.Minute
	err := s.rdb.Set(ctx, stateKey(userID, keyLockoutUntil), strconv.FormatInt(until.Unix(), 10), ttl).Err()
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("storing lockout for %s: %w", userID, err))
	}
	return nil
}

// GetLockout returns the lockout-until timestamp, zero if none is stored.
func (s *redisStore) GetLockout(ctx context.Context, userID string) (time.Time, error) {
	raw, err := s.rdb.Get(ctx, stateKey(userID, keyLockoutUntil)).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, apperror.NewInternal(fmt.Errorf("reading lockout for %s: %w", userID, err))
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, nil
	}
	return time.Unix(unix, 0), nil
}

// ClearLockout removes the lockout timestamp.
func (s *redisStore) ClearLockout(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, stateKey(userID, keyLockoutUntil)).Err(); err != nil {
		return apperror.NewInternal(fmt.Errorf("clearing lockout for %s: %w", userID, err))
	}
	return nil
}

// SetPending stores the pending-2FA record with its own TTL.
func (s *redisStore) SetPending(ctx context.Context, userID string, state *PendingState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("marshaling pending state: %w", err))
	}
	if err := s.rdb.Set(ctx, stateKey(userID, keyPending), data, pendingTTL).Err(); err != nil {
		return apperror.NewInternal(fmt.Errorf("storing pending state for %s: %w", userID, err))
	}
	return nil
}

// GetPending returns the pending-2FA record, nil if none exists.
func (s *redisStore) GetPending(ctx context.Context, userID string) (*PendingState, error) {
	data, err := s.rdb.Get(ctx, stateKey(userID, keyPending)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("reading pending state for %s: %w", userID, err))
	}

	var state PendingState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("unmarshaling pending state: %w", err))
	}
	return &state, nil
}

// DeletePending consumes the pending-2FA record.
func (s *redisStore) DeletePending(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, stateKey(userID, keyPending)).Err(); err != nil {
		return apperror.NewInternal(fmt.Errorf("deleting pending state for %s: %w", userID, err))
	}
	return nil
}

// SetBlockedNotice writes the per-user blocked transient.
func (s *redisStore) SetBlockedNotice(ctx context.Context, userID string, notice *BlockedNotice) error {
	data, err := json.Marshal(notice)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("marshaling blocked notice: %w", err))
	}
	if err := s.rdb.Set(ctx, stateKey(userID, keyBlockedNotice), data, 5*time.Minute).Err(); err != nil {
		return apperror.NewInternal(fmt.Errorf("storing blocked notice for %s: %w", userID, err))
	}
	return nil
}

// TakeBlockedNotice reads and deletes the transient in one round trip.
// Returns nil if no notice is pending.
func (s *redisStore) TakeBlockedNotice(ctx context.Context, userID string) (*BlockedNotice, error) {
	data, err := s.rdb.GetDel(ctx, stateKey(userID, keyBlockedNotice)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("taking blocked notice for %s: %w", userID, err))
	}

	var notice BlockedNotice
	if err := json.Unmarshal(data, &notice); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("unmarshaling blocked notice: %w", err))
	}
	return &notice, nil
}
