package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisBackend struct {
	c      redis.UniversalClient
	prefix string
}

func NewRedisBackend(addr, password string, db int) *RedisBackend {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisBackendWithClient(rdb)
}

// NewRedisBackendWithClient wraps an existing client.
func NewRedisBackendWithClient(c redis.UniversalClient) *RedisBackend {
	return &RedisBackend{c: c, prefix: "salon-messaging:"}
}

func (r *RedisBackend) Name() string { return "redis" }

func (r *RedisBackend) Ping(ctx context.Context) error { return r.c.Ping(ctx).Err() }

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.c.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.c.Set(ctx, r.prefix+key, value, ttl).Err()
}

func (r *RedisBackend) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.prefix + k
	}
	return r.c.Del(ctx, full...).Err()
}

func (r *RedisBackend) Close() error { return r.c.Close() }
