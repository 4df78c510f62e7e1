package stash

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quillcms/sudogate/internal/apperror"
	"github.com/quillcms/sudogate/internal/plugins/auth"
)

// stashKeyPrefix is the Redis key prefix for parked requests.
const stashKeyPrefix = "sudo:stash:"

// stashKeyBytes is the random length of the opaque key. 16 bytes hex-encodes
// to 32 characters; collisions at this length within the TTL are acceptable.
const stashKeyBytes = 16

// StashService parks and retrieves blocked requests.
type StashService interface {
	// Save parks the entry and returns the opaque key for the challenge URL.
	Save(ctx context.Context, entry *Entry) (string, error)

	// Get returns the entry only when it exists and its stored user id
	// matches. A missing key, an expired entry, and a foreign user all
	// return nil identically.
	Get(ctx context.Context, key, userID string) (*Entry, error)

	// Exists reports whether the key holds an entry, without the user guard.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the entry.
	Delete(ctx context.Context, key string) error

	// Take returns the entry and deletes it, for the replay path.
	Take(ctx context.Context, key, userID string) (*Entry, error)
}

// stashService implements StashService on Redis.
type stashService struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewService creates the Redis-backed stash. ttl should be short; the parked
// request only needs to survive one challenge round trip.
func NewService(rdb *redis.Client, ttl time.Duration) StashService {
	return &stashService{rdb: rdb, ttl: ttl}
}

// Save generates the opaque key and persists the entry.
func (s *stashService) Save(ctx context.Context, entry *Entry) (string, error) {
	if entry.UserID == "" {
		return "", apperror.NewBadRequest("stash entry requires a user ID")
	}

	key, err := auth.GenerateToken(stashKeyBytes)
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("generating stash key: %w", err))
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("marshaling stash entry: %w", err))
	}

	if err := s.rdb.Set(ctx, stashKeyPrefix+key, data, s.ttl).Err(); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("storing stash entry: %w", err))
	}
	return key, nil
}

// Get returns the entry when the key exists and the user id matches.
func (s *stashService) Get(ctx context.Context, key, userID string) (*Entry, error) {
	if key == "" || userID == "" {
		return nil, nil
	}

	data, err := s.rdb.Get(ctx, stashKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("reading stash entry: %w", err))
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("unmarshaling stash entry: %w", err))
	}

	// Key-guessing across users yields the same nothing as a missing key.
	if entry.UserID != userID {
		return nil, nil
	}
	return &entry, nil
}

// Exists reports whether the key currently holds an entry.
func (s *stashService) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, stashKeyPrefix+key).Result()
	if err != nil {
		return false, apperror.NewInternal(fmt.Errorf("checking stash entry: %w", err))
	}
	return n > 0, nil
}

// Delete removes the entry.
func (s *stashService) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, stashKeyPrefix+key).Err(); err != nil {
		return apperror.NewInternal(fmt.Errorf("deleting stash entry: %w", err))
	}
	return nil
}

// Take retrieves and deletes in one step. The delete happens even though the
// read already validated the user, so a replayed key finds nothing.
func (s *stashService) Take(ctx context.Context, key, userID string) (*Entry, error) {
	entry, err := s.Get(ctx, key, userID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}
	if err := s.Delete(ctx, key); err != nil {
		return nil, err
	}
	return entry, nil
}
