package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates another invocation currently owns the key.
var ErrLockHeld = errors.New("workflow lock held by another invocation")

// QuoteLockKey builds the lock key guarding approval of a quote.
func QuoteLockKey(quoteID int64) string {
	return fmt.Sprintf("fulfillment:quote:%d:lock", quoteID)
}

// ProductionLockKey builds the lock key guarding completion of a production.
func ProductionLockKey(productionID int64) string {
	return fmt.Sprintf("fulfillment:production:%d:lock", productionID)
}

// KeyedLocker serialises orchestrator entry points per natural key. The
// idempotency checks underneath are read-then-write, so two concurrent
// invocations for the same id must not both pass them.
type KeyedLocker struct {
	locker *redislock.Client
	ttl    time.Duration
}

// NewKeyedLocker constructs a locker on top of the shared Redis client.
func NewKeyedLocker(client *redis.Client, ttl time.Duration) *KeyedLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &KeyedLocker{locker: redislock.New(client), ttl: ttl}
}

// WithLock runs fn while holding the named lock. A short linear backoff
// absorbs sub-second races; if the lock is still held after that the call
// fails with ErrLockHeld rather than queueing indefinitely.
func (l *KeyedLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if l == nil || l.locker == nil {
		return fn(ctx)
	}
	lock, err := l.locker.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 10),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return ErrLockHeld
		}
		return fmt.Errorf("shared: obtain lock %s: %w", key, err)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = lock.Release(releaseCtx)
	}()
	return fn(ctx)
}
