package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISTRIBUTED LOCK
// ══════════════════════════════════════════════════════════════════════════════

const (
	lockKeyPrefix  = "lock:"
	defaultLockTTL = 30 * time.Second
)

// ErrLockNotAcquired is returned when another owner holds the lock.
var ErrLockNotAcquired = errors.New("lock: not acquired")

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out single-owner locks so that only one worker replica runs a
// scheduled job at a time.
type Locker struct {
	cache *Cache
	ttl   time.Duration
}

// NewLocker creates a Locker. ttl <= 0 uses 30 seconds.
func NewLocker(cache *Cache, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Locker{cache: cache, ttl: ttl}
}

// Lock is a held lock. Release is safe to call more than once.
type Lock struct {
	cache *Cache
	key   string
	token string
}

// LockKey generates the key of a lock resource.
func (l *Locker) LockKey(resource string) string {
	return l.cache.Key(lockKeyPrefix, resource)
}

// Acquire takes the lock or returns ErrLockNotAcquired.
func (l *Locker) Acquire(ctx context.Context, resource string) (*Lock, error) {
	key := l.LockKey(resource)
	token := uuid.NewString()

	ok, err := l.cache.SetNX(ctx, key, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", resource, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &Lock{cache: l.cache, key: key, token: token}, nil
}

// Release drops the lock if it is still ours. An expired lock taken over by
// someone else is left alone.
func (k *Lock) Release(ctx context.Context) error {
	if k == nil || k.token == "" {
		return nil
	}
	err := releaseScript.Run(ctx, k.cache.Client(), []string{k.key}, k.token).Err()
	k.token = ""
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("lock: release: %w", err)
	}
	return nil
}

// TryLock adapts Acquire to the scheduler's Locker contract: a lock held by
// someone else yields ok=false and no error.
func (l *Locker) TryLock(ctx context.Context, resource string) (func(context.Context) error, bool, error) {
	lock, err := l.Acquire(ctx, resource)
	if errors.Is(err, ErrLockNotAcquired) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return lock.Release, true, nil
}
