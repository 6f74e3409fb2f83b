package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unclebandit/salon-messaging/internal/metrics"
)

// Memo caches one value of type T per key for ttl and calls refill on a
// miss. Backend failures fall through to refill.
type Memo[T any] struct {
	backend Backend
	ttl     time.Duration
}

func NewMemo[T any](backend Backend, ttl time.Duration) *Memo[T] {
	return &Memo[T]{backend: backend, ttl: ttl}
}

func (m *Memo[T]) Get(ctx context.Context, key string, refill func(context.Context) (T, error)) (T, error) {
	if m.ttl > 0 {
		raw, ok, err := m.backend.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Str("backend", m.backend.Name()).Msg("cache read failed")
		}
		if ok {
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				metrics.IncCacheHit(m.backend.Name())
				return v, nil
			}
		}
	}
	metrics.IncCacheMiss(m.backend.Name())

	v, err := refill(ctx)
	if err != nil {
		return v, err
	}
	if m.ttl > 0 {
		raw, err := json.Marshal(v)
		if err == nil {
			err = m.backend.Set(ctx, key, raw, m.ttl)
		}
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return v, nil
}

// Invalidate drops key so the next Get refills.
func (m *Memo[T]) Invalidate(ctx context.Context, key string) {
	if err := m.backend.Del(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache invalidate failed")
	}
}
