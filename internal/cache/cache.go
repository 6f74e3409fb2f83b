package cache

import (
	"context"
	"time"
)

// Backend stores opaque values with a time-to-live.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Close() error
}
