// Package cache provides a TTL cache behind interchangeable drivers.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Necoverse/awa/internal/config"
)

// ErrNotFound is returned when a key is missing or expired.
var ErrNotFound = errors.New("cache: key not found")

// Cache is the driver interface.
type Cache interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// DeletePrefix removes every key with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Close releases driver resources.
	Close() error
}

// New builds a cache for the configured driver.
func New(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Driver {
	case "", config.CacheDriverMemory:
		return NewMemory(), nil
	case config.CacheDriverRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return NewRedis(client), nil
	default:
		return nil, fmt.Errorf("unknown cache driver: %q", cfg.Driver)
	}
}
