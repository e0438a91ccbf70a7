package cacheaside

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sqkstwj/juzhondianping/internal/domain"
	"github.com/sqkstwj/juzhondianping/internal/lock"
)

// FetchFunc loads an entity from the backing database and returns it
// already encoded. It returns domain.ErrNotFound when the entity does
// not exist.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Loader orchestrates cache-miss handling for hot keys. Two
// strategies are available:
//
//   - mutex rebuild: a miss takes a distributed lock, re-checks the
//     cache, queries the database and repopulates. Contended readers
//     back off and retry, bounded by the retry budget.
//   - logical expiration: entries carry an embedded expiry instead of
//     a cache TTL. A stale read returns the old value immediately and
//     hands the rebuild to the background pool; a true miss degrades
//     to the mutex strategy, since there is no stale value to serve.
//
// Both share the penetration defense: database absence is recorded as
// an empty null-marker entry with a short jittered TTL, so repeated
// lookups of a nonexistent ID cost at most one database query per
// window.
type Loader struct {
	cache domain.Cache
	locks *lock.KeyLock
	pool  *RebuildPool
	cfg   domain.LoaderConfig

	// group collapses same-process callers of one key so only one of
	// them contends on the distributed lock.
	group singleflight.Group
}

// NewLoader creates a Loader. pool may be nil when the mutex strategy
// is used exclusively.
func NewLoader(cache domain.Cache, locks *lock.KeyLock, pool *RebuildPool, cfg domain.LoaderConfig) *Loader {
	return &Loader{
		cache: cache,
		locks: locks,
		pool:  pool,
		cfg:   cfg,
	}
}

// Get reads the entity behind dataKey, rebuilding from fetch according
// to the configured strategy. Returns domain.ErrNotFound both for a
// database miss and for a cached null marker.
func (l *Loader) Get(ctx context.Context, dataKey, lockKey string, fetch FetchFunc) ([]byte, error) {
	if l.cfg.Strategy == domain.StrategyLogicalExpire {
		return l.getWithLogicalExpire(ctx, dataKey, lockKey, fetch)
	}
	return l.getWithMutex(ctx, dataKey, lockKey, fetch)
}

// Warm writes an entity into the cache inside a logical-expiry
// envelope, with no cache-level TTL. Used for cache pre-heating and by
// background rebuilds.
func (l *Loader) Warm(ctx context.Context, dataKey string, value []byte, logicalTTL time.Duration) error {
	data, err := EncodeWithExpiry(value, logicalTTL)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	return l.cache.Set(ctx, dataKey, data, 0)
}

func (l *Loader) getWithMutex(ctx context.Context, dataKey, lockKey string, fetch FetchFunc) ([]byte, error) {
	v, err, _ := l.group.Do(dataKey, func() (any, error) {
		return l.queryWithMutex(ctx, dataKey, lockKey, fetch)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (l *Loader) queryWithMutex(ctx context.Context, dataKey, lockKey string, fetch FetchFunc) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		data, hit, err := l.readHit(ctx, dataKey)
		if err != nil {
			return nil, err
		}
		if hit {
			return data, nil
		}

		token, ok, err := l.locks.TryAcquire(ctx, lockKey, l.cfg.LockTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Someone else is rebuilding. Back off and re-read, up to
			// the retry budget.
			if attempt >= l.cfg.MaxRetries {
				return nil, domain.ErrLockTimeout
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(l.cfg.RetryBackoff):
			}
			continue
		}

		return l.rebuildLocked(ctx, dataKey, lockKey, token, fetch)
	}
}

// rebuildLocked runs the database rebuild while holding the lock,
// releasing it on every path.
func (l *Loader) rebuildLocked(ctx context.Context, dataKey, lockKey, token string, fetch FetchFunc) ([]byte, error) {
	defer func() {
		if err := l.locks.Release(ctx, lockKey, token); err != nil {
			slog.Warn("failed to release rebuild lock",
				"lock_key", lockKey,
				"error", err,
			)
		}
	}()

	// Double check: the previous holder may have finished the rebuild
	// between our miss and our acquire.
	cached, hit, err := l.readHit(ctx, dataKey)
	if err != nil {
		return nil, err
	}
	if hit {
		return cached, nil
	}

	data, err := fetch(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		// Record the absence so repeated lookups of this ID stop
		// reaching the database for a while.
		nullTTL := jitter(l.cfg.NullTTL, l.cfg.NullTTLJitter)
		if setErr := l.cache.Set(ctx, dataKey, []byte{}, nullTTL); setErr != nil {
			slog.Warn("failed to write null marker", "key", dataKey, "error", setErr)
		}
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if l.cfg.Strategy == domain.StrategyLogicalExpire {
		// Keep the entry in envelope form so later logical reads do
		// not mistake it for a corrupt record.
		if err := l.Warm(ctx, dataKey, data, jitter(l.cfg.BaseTTL, l.cfg.TTLJitter)); err != nil {
			slog.Warn("failed to repopulate cache", "key", dataKey, "error", err)
		}
		return data, nil
	}

	// Jittered TTL so a burst of rebuilds never expires in lockstep.
	if err := l.cache.Set(ctx, dataKey, data, jitter(l.cfg.BaseTTL, l.cfg.TTLJitter)); err != nil {
		slog.Warn("failed to repopulate cache", "key", dataKey, "error", err)
	}
	return data, nil
}

// readHit interprets a cache read for the rebuild path. hit == false
// means the key is absent (or held a malformed envelope that was just
// dropped) and the caller should rebuild. A null marker surfaces as
// domain.ErrNotFound.
func (l *Loader) readHit(ctx context.Context, dataKey string) (data []byte, hit bool, err error) {
	val, err := l.cache.Get(ctx, dataKey)
	if err != nil {
		return nil, false, err
	}
	if val == nil {
		return nil, false, nil
	}
	if len(val) == 0 {
		// Null marker: the database was already asked and had no row.
		return nil, false, domain.ErrNotFound
	}

	if l.cfg.Strategy == domain.StrategyLogicalExpire {
		inner, _, ok := DecodeEnvelope(val)
		if !ok {
			slog.Warn("dropping malformed cache envelope", "key", dataKey)
			if err := l.cache.Delete(ctx, dataKey); err != nil {
				return nil, false, err
			}
			return nil, false, nil
		}
		// Freshness is irrelevant here: a just-rebuilt entry is fresh,
		// and serving a stale one is what this strategy does anyway.
		return inner, true, nil
	}

	return val, true, nil
}

func (l *Loader) getWithLogicalExpire(ctx context.Context, dataKey, lockKey string, fetch FetchFunc) ([]byte, error) {
	val, err := l.cache.Get(ctx, dataKey)
	if err != nil {
		return nil, err
	}
	if val == nil {
		// True miss: there is no stale value to serve, so take the
		// consistent path.
		return l.getWithMutex(ctx, dataKey, lockKey, fetch)
	}
	if len(val) == 0 {
		return nil, domain.ErrNotFound
	}

	value, expireAt, ok := DecodeEnvelope(val)
	if !ok {
		// Corrupt or legacy entry. Drop it and rebuild under the lock.
		slog.Warn("dropping malformed cache envelope", "key", dataKey)
		if err := l.cache.Delete(ctx, dataKey); err != nil {
			return nil, err
		}
		return l.getWithMutex(ctx, dataKey, lockKey, fetch)
	}

	if time.Now().Before(expireAt) {
		return value, nil
	}

	// Stale. Whoever wins the lock schedules the rebuild; everyone,
	// winner included, returns the stale value without waiting.
	token, acquired, err := l.locks.TryAcquire(ctx, lockKey, l.cfg.LockTTL)
	if err != nil {
		slog.Warn("failed to acquire rebuild lock, serving stale",
			"lock_key", lockKey,
			"error", err,
		)
		return value, nil
	}
	if acquired {
		submitted := l.pool.Submit(func(jobCtx context.Context) {
			defer func() {
				if err := l.locks.Release(jobCtx, lockKey, token); err != nil {
					slog.Warn("failed to release rebuild lock",
						"lock_key", lockKey,
						"error", err,
					)
				}
			}()
			l.rebuildAsync(jobCtx, dataKey, fetch)
		})
		if !submitted {
			// Queue full. Dropping is safe: the entry stays stale and
			// the next read schedules another attempt.
			if err := l.locks.Release(ctx, lockKey, token); err != nil {
				slog.Warn("failed to release rebuild lock",
					"lock_key", lockKey,
					"error", err,
				)
			}
		}
	}

	return value, nil
}

// rebuildAsync refreshes a logically-expired entry off the read path.
func (l *Loader) rebuildAsync(ctx context.Context, dataKey string, fetch FetchFunc) {
	data, err := fetch(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		// The row disappeared since it was cached. Replace the stale
		// envelope with a null marker so readers stop seeing a deleted
		// entity.
		nullTTL := jitter(l.cfg.NullTTL, l.cfg.NullTTLJitter)
		if err := l.cache.Set(ctx, dataKey, []byte{}, nullTTL); err != nil {
			slog.Warn("failed to write null marker", "key", dataKey, "error", err)
		}
		return
	}
	if err != nil {
		slog.Error("cache rebuild fetch failed", "key", dataKey, "error", err)
		return
	}

	if err := l.Warm(ctx, dataKey, data, jitter(l.cfg.BaseTTL, l.cfg.TTLJitter)); err != nil {
		slog.Error("cache rebuild write failed", "key", dataKey, "error", err)
	}
}

// jitter adds a random offset in [0, spread) to base.
func jitter(base, spread time.Duration) time.Duration {
	if spread <= 0 {
		return base
	}
	return base + rand.N(spread)
}
