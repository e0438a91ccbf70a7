package domain

import "time"

// Config holds the complete service configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which backing stores are used
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	Loader     LoaderConfig     `json:"loader"`
	Rebuild    RebuildConfig    `json:"rebuild"`
	Seckill    SeckillConfig    `json:"seckill"`

	// Observability
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoaderStrategy selects how the cache-aside loader handles hot-key
// expiry.
type LoaderStrategy string

const (
	// StrategyMutex rebuilds under a distributed lock. Readers that
	// lose the lock race wait and retry; consistency over latency.
	StrategyMutex LoaderStrategy = "mutex"

	// StrategyLogicalExpire stores entries without a cache TTL and
	// embeds an expiry timestamp instead. Stale reads return
	// immediately while one background job rebuilds; availability over
	// freshness.
	StrategyLogicalExpire LoaderStrategy = "logical"
)

// LoaderConfig holds cache-aside loader settings.
type LoaderConfig struct {
	Strategy LoaderStrategy `json:"strategy"`

	// BaseTTL is the cache TTL for real entries (mutex strategy) and
	// the logical lifetime for envelope entries. TTLJitter is the max
	// random offset added so hot keys never expire in lockstep.
	BaseTTL   time.Duration `json:"baseTTL"`
	TTLJitter time.Duration `json:"ttlJitter"`

	// NullTTL bounds how long a null marker absorbs lookups of an ID
	// that has no database row.
	NullTTL       time.Duration `json:"nullTTL"`
	NullTTLJitter time.Duration `json:"nullTTLJitter"`

	// LockTTL is the self-expiry of the rebuild lock, the safety net
	// for a crashed rebuilder.
	LockTTL time.Duration `json:"lockTTL"`

	// RetryBackoff and MaxRetries bound how long a reader waits on a
	// contended rebuild lock before giving up with ErrLockTimeout.
	RetryBackoff time.Duration `json:"retryBackoff"`
	MaxRetries   int           `json:"maxRetries"`
}

// RebuildConfig holds async rebuild pool settings.
type RebuildConfig struct {
	Workers   int `json:"workers"`
	QueueSize int `json:"queueSize"`
}

// SeckillConfig holds flash-sale settings.
type SeckillConfig struct {
	// UserLockTTL is the self-expiry of the per-user purchase lock.
	UserLockTTL time.Duration `json:"userLockTTL"`

	// UserLockRetryBackoff and UserLockMaxRetries bound how long a
	// purchase waits for the per-user critical section.
	UserLockRetryBackoff time.Duration `json:"userLockRetryBackoff"`
	UserLockMaxRetries   int           `json:"userLockMaxRetries"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity is the single-node tier with SQLite + in-memory cache
	TierCommunity Tier = "community"

	// TierPro is the production tier with PostgreSQL + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for the community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./dianping.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
		},
		Loader: LoaderConfig{
			Strategy:      StrategyMutex,
			BaseTTL:       30 * time.Minute,
			TTLJitter:     10 * time.Minute,
			NullTTL:       2 * time.Minute,
			NullTTLJitter: time.Minute,
			LockTTL:       10 * time.Second,
			RetryBackoff:  50 * time.Millisecond,
			MaxRetries:    20,
		},
		Rebuild: RebuildConfig{
			Workers:   10,
			QueueSize: 1000,
		},
		Seckill: SeckillConfig{
			UserLockTTL:          10 * time.Second,
			UserLockRetryBackoff: 20 * time.Millisecond,
			UserLockMaxRetries:   10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// ProConfig returns a configuration for the pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "dianping",
	}
	cfg.Cache = CacheConfig{
		Type:      "redis",
		RedisAddr: "localhost:6379",
	}
	cfg.Loader.Strategy = StrategyLogicalExpire
	return cfg
}
