package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anheplast/curiosmaze/internal/common"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/redis/go-redis/v9"
)

// SessionEntry is a stored value together with the moment it was written.
type SessionEntry struct {
	Value    json.RawMessage `json:"value"`
	StoredAt time.Time       `json:"stored_at"`
}

// Fresh reports whether the entry is younger than window at now.
func (e *SessionEntry) Fresh(window time.Duration, now time.Time) bool {
	return now.Sub(e.StoredAt) < window
}

func (e *SessionEntry) Decode(dest any) error {
	return json.Unmarshal(e.Value, dest)
}

// SessionStore keeps per-user evaluation bookkeeping: start timestamps,
// saved scores, chosen languages and cached backend payloads.
// Get returns common.ErrNotFound for a missing key.
type SessionStore interface {
	Get(ctx context.Context, key string) (*SessionEntry, error)
	Set(ctx context.Context, key string, value any) error
	Clear(ctx context.Context, key string) error
}

func EvaluationStartKey(userID, evaluationID string) string {
	return fmt.Sprintf("evaluation_start:%s:%s", userID, evaluationID)
}

func EvaluationEndKey(userID, evaluationID string) string {
	return fmt.Sprintf("evaluation_end:%s:%s", userID, evaluationID)
}

func ExerciseScoresKey(userID, evaluationID string) string {
	return fmt.Sprintf("exercise_scores:%s:%s", userID, evaluationID)
}

func EvaluationScoresKey(userID, evaluationID string) string {
	return fmt.Sprintf("evaluation_scores:%s:%s", userID, evaluationID)
}

func ExerciseLanguageKey(userID, evaluationID, exerciseID string) string {
	return fmt.Sprintf("exercise_language:%s:%s:%s", userID, evaluationID, exerciseID)
}

func EvaluationDetailsKey(evaluationID string) string {
	return fmt.Sprintf("evaluation_details:%s", evaluationID)
}

func newEntry(value any, now time.Time) (*SessionEntry, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode session value: %w", err)
	}
	return &SessionEntry{Value: raw, StoredAt: now}, nil
}

type redisSessionStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisSessionStore stores entries under "session:<key>". A zero ttl keeps them forever.
func NewRedisSessionStore(rdb *redis.Client, ttl time.Duration) SessionStore {
	return &redisSessionStore{rdb: rdb, prefix: "session:", ttl: ttl, now: time.Now}
}

func (s *redisSessionStore) Get(ctx context.Context, key string) (*SessionEntry, error) {
	raw, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("redisSessionStore.Get %s: %w", key, err)
	}
	var entry SessionEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("redisSessionStore.Get %s: corrupt entry: %w", key, err)
	}
	return &entry, nil
}

func (s *redisSessionStore) Set(ctx context.Context, key string, value any) error {
	entry, err := newEntry(value, s.now())
	if err != nil {
		return err
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redisSessionStore.Set %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, s.prefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redisSessionStore.Set %s: %w", key, err)
	}
	return nil
}

func (s *redisSessionStore) Clear(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redisSessionStore.Clear %s: %w", key, err)
	}
	return nil
}

type memorySessionStore struct {
	entries *xsync.MapOf[string, SessionEntry]
	now     func() time.Time
}

// NewMemorySessionStore keeps entries for the lifetime of the process.
func NewMemorySessionStore() SessionStore {
	return newMemorySessionStore(time.Now)
}

func newMemorySessionStore(now func() time.Time) *memorySessionStore {
	return &memorySessionStore{entries: xsync.NewMapOf[string, SessionEntry](), now: now}
}

func (s *memorySessionStore) Get(_ context.Context, key string) (*SessionEntry, error) {
	entry, ok := s.entries.Load(key)
	if !ok {
		return nil, common.ErrNotFound
	}
	return &entry, nil
}

func (s *memorySessionStore) Set(_ context.Context, key string, value any) error {
	entry, err := newEntry(value, s.now())
	if err != nil {
		return err
	}
	s.entries.Store(key, *entry)
	return nil
}

func (s *memorySessionStore) Clear(_ context.Context, key string) error {
	s.entries.Delete(key)
	return nil
}

// GetFresh decodes the value under key into dest if it was written less than
// window ago. Missing and stale entries both report found=false.
func GetFresh(ctx context.Context, store SessionStore, key string, window time.Duration, dest any) (found bool, err error) {
	entry, err := store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if window > 0 && !entry.Fresh(window, time.Now()) {
		return false, nil
	}
	if err := entry.Decode(dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}
