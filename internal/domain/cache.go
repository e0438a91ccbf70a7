package domain

import (
	"context"
	"time"
)

// Cache defines the key-value operations the service needs from its
// shared cache: plain reads/writes, the atomic primitives backing the
// distributed lock, and the atomic counter backing ID generation.
type Cache interface {
	// Get retrieves a value.
	// Returns nil, nil if the key is not present. A present but empty
	// value is meaningful: it is the null marker written for entities
	// that do not exist in the database.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value. A ttl of 0 means no expiration, which is how
	// logical-expiry records are stored.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores a value only if the key is absent, applying the TTL
	// atomically with the write. Returns true if the key was set.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// CompareAndDelete removes the key only if its current value equals
	// value. A mismatch or an absent key is a no-op. Used for
	// owner-checked lock release.
	CompareAndDelete(ctx context.Context, key string, value []byte) error

	// Increment atomically increments an integer counter and returns
	// the post-increment value (1 on first call). The TTL is applied
	// when the counter is created so old counters clean themselves up.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local cache settings (community tier, tests)
	LocalMaxSize int

	// Redis settings (pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}
