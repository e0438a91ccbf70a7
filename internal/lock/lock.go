// Package lock provides a distributed mutual-exclusion primitive
// backed by the shared cache.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sqkstwj/juzhondianping/internal/domain"
)

// Key naming: locks live in their own namespace so a lock key can
// never collide with a data key for the same entity.
const (
	ShopPrefix  = "lock:shop:"
	OrderPrefix = "lock:order:"
)

// KeyLock is a best-effort distributed lock keyed by string. A lock
// self-expires after its TTL, which bounds unavailability when a
// holder crashes; it also means a slow holder can lose the lock before
// finishing, which callers accept.
type KeyLock struct {
	cache domain.Cache
}

// New creates a KeyLock on top of the given cache.
func New(cache domain.Cache) *KeyLock {
	return &KeyLock{cache: cache}
}

// TryAcquire attempts to take the lock without waiting. On success it
// returns an owner token that must be passed to Release. ok == false
// means the lock is held by someone else; it is not an error.
func (l *KeyLock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.New().String()

	ok, err = l.cache.SetNX(ctx, key, []byte(token), ttl)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lock if it is still owned by token. Releasing a
// lock that expired, or that expired and was re-acquired by another
// caller, is a no-op: the token no longer matches.
func (l *KeyLock) Release(ctx context.Context, key, token string) error {
	return l.cache.CompareAndDelete(ctx, key, []byte(token))
}

// Acquire takes the lock, waiting with a fixed backoff between
// attempts. It gives up after maxRetries contended attempts and
// returns domain.ErrLockTimeout, so pathological contention turns
// into an explicit, retryable error instead of an unbounded wait.
func (l *KeyLock) Acquire(ctx context.Context, key string, ttl, backoff time.Duration, maxRetries int) (string, error) {
	for attempt := 0; ; attempt++ {
		token, ok, err := l.TryAcquire(ctx, key, ttl)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}

		if attempt >= maxRetries {
			return "", domain.ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}
}
