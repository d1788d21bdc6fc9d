package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallbiznis/litshare/internal/repository"
)

const attemptKeyPrefix = "litshare:login_failures:"

// RedisAttemptStore implements LoginAttemptStore backed by Redis so lockouts are
// shared across instances.
type RedisAttemptStore struct {
	client redis.UniversalClient
}

var (
	_ repository.LoginAttemptStore = (*RedisAttemptStore)(nil)
	_ repository.LoginAttemptStore = (*MemoryAttemptStore)(nil)
)

// NewRedisAttemptStore constructs a Redis-backed attempt store.
func NewRedisAttemptStore(client redis.UniversalClient) *RedisAttemptStore {
	return &RedisAttemptStore{client: client}
}

func (s *RedisAttemptStore) Failures(ctx context.Context, key string) (int, error) {
	n, err := s.client.Get(ctx, attemptKeyPrefix+key).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("load login failures: %w", err)
	}
	return n, nil
}

// RecordFailure increments the counter and sets the expiry only on the first
// failure, so the window is fixed from the first failed attempt.
func (s *RedisAttemptStore) RecordFailure(ctx context.Context, key string, window time.Duration) (int, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, attemptKeyPrefix+key)
	pipe.ExpireNX(ctx, attemptKeyPrefix+key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("record login failure: %w", err)
	}
	return int(incr.Val()), nil
}

func (s *RedisAttemptStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, attemptKeyPrefix+key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("reset login failures: %w", err)
	}
	return nil
}

type attemptWindow struct {
	count   int
	expires time.Time
}

// MemoryAttemptStore is the single-instance fallback used when no Redis address
// is configured.
type MemoryAttemptStore struct {
	mu      sync.Mutex
	entries map[string]attemptWindow
	now     func() time.Time
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{entries: make(map[string]attemptWindow), now: time.Now}
}

// WithClock overrides the time source.
func (s *MemoryAttemptStore) WithClock(now func() time.Time) *MemoryAttemptStore {
	s.now = now
	return s
}

func (s *MemoryAttemptStore) Failures(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || !s.now().Before(entry.expires) {
		delete(s.entries, key)
		return 0, nil
	}
	return entry.count, nil
}

func (s *MemoryAttemptStore) RecordFailure(_ context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	entry, ok := s.entries[key]
	if !ok || !now.Before(entry.expires) {
		entry = attemptWindow{expires: now.Add(window)}
	}
	entry.count++
	s.entries[key] = entry
	return entry.count, nil
}

func (s *MemoryAttemptStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
