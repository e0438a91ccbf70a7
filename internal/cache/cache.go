// Package cache provides the shared key-value store implementations.
package cache

import (
	"fmt"

	"github.com/sqkstwj/juzhondianping/internal/domain"
)

// New creates a cache based on configuration.
// Community tier: in-process memory cache.
// Pro tier: Redis.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryCache(cfg.LocalMaxSize), nil

	case "redis":
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
