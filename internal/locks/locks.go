// Package locks serializes invoice creation per order across admin sessions.
// The lock is a fast path only; the unique index on invoices.order_id
// remains the authoritative guard.
package locks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another session holds the lock.
var ErrLocked = errors.New("locks: already held")

// Release frees an obtained lock.
type Release func(ctx context.Context) error

// Locker obtains short-lived named locks.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

// NopLocker always succeeds.
type NopLocker struct{}

func (NopLocker) Obtain(context.Context, string, time.Duration) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

// MemoryLocker is an in-process locker for single-instance deployments.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]time.Time)}
}

func (m *MemoryLocker) Obtain(_ context.Context, key string, ttl time.Duration) (Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if until, ok := m.held[key]; ok && now.Before(until) {
		return nil, ErrLocked
	}
	deadline := now.Add(ttl)
	m.held[key] = deadline
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.held[key].Equal(deadline) {
			delete(m.held, key)
		}
		return nil
	}, nil
}

// RedisLocker uses redislock on a shared Redis.
type RedisLocker struct {
	client *redislock.Client
}

func NewRedisLocker(rdb redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb)}
}

func (r *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	lock, err := r.client.Obtain(ctx, "lock:"+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}
