package cache

import (
	"fmt"

	"github.com/unclebandit/salon-messaging/internal/config"
)

// Open returns the backend selected by CACHE_DRIVER.
func Open(cfg *config.Settings) (Backend, error) {
	switch cfg.CacheDriver {
	case "", "memory":
		return NewMemoryBackend(nil), nil
	case "redis":
		return NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.CacheDriver)
	}
}
