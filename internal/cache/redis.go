package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements domain.Cache using Redis. It is the pro tier
// backend and the one that makes the lock and counter primitives
// shared across replicas.
type RedisCache struct {
	client *redis.Client
}

// incrScript increments a counter and applies the retention TTL only
// on the increment that creates the key, so the expiry is never
// pushed out by later increments.
var incrScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 and tonumber(ARGV[1]) > 0 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// compareAndDeleteScript deletes the key only when it still holds the
// caller's value. Check and delete must be one atomic step or a lock
// that expired and was re-acquired by someone else could be deleted
// out from under its new owner.
var compareAndDeleteScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// NewRedisCache creates a new Redis cache.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from Redis. Returns nil, nil on a miss; an
// empty stored value comes back as a non-nil empty slice.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if val == nil {
		val = []byte{}
	}
	return val, nil
}

// Set stores a value with TTL. A ttl of 0 stores without expiration.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// SetNX stores a value only if the key is absent.
func (c *RedisCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, ttl).Result()
}

// Delete removes a key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// CompareAndDelete removes the key only if it still holds value.
func (c *RedisCache) CompareAndDelete(ctx context.Context, key string, value []byte) error {
	return compareAndDeleteScript.Run(ctx, c.client, []string{key}, value).Err()
}

// Increment atomically increments a counter, creating it with the
// given retention TTL.
func (c *RedisCache) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return incrScript.Run(ctx, c.client, []string{key}, ttl.Milliseconds()).Int64()
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
