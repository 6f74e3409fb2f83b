package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBackend keeps one item per key in process memory.
type MemoryBackend struct {
	clock clockwork.Clock

	mu    sync.Mutex
	items map[string]memoryItem
}

func NewMemoryBackend(clock clockwork.Clock) *MemoryBackend {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryBackend{clock: clock, items: map[string]memoryItem{}}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	if !m.clock.Now().Before(item.expiresAt) {
		delete(m.items, key)
		return nil, false, nil
	}
	return item.value, true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memoryItem{value: value, expiresAt: m.clock.Now().Add(ttl)}
	return nil
}

func (m *MemoryBackend) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func (m *MemoryBackend) Close() error { return nil }
