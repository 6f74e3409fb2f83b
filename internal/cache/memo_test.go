package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemo_RefillsOnMissAndExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	memo := NewMemo[[]string](NewMemoryBackend(clock), 30*time.Second)
	ctx := context.Background()

	calls := 0
	refill := func(context.Context) ([]string, error) {
		calls++
		return []string{"a", "b"}, nil
	}

	v, err := memo.Get(ctx, "contacts", refill)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, v)

	_, err = memo.Get(ctx, "contacts", refill)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	clock.Advance(30 * time.Second)
	_, err = memo.Get(ctx, "contacts", refill)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestMemo_Invalidate(t *testing.T) {
	memo := NewMemo[int](NewMemoryBackend(clockwork.NewFakeClock()), time.Minute)
	ctx := context.Background()
	n := 0
	refill := func(context.Context) (int, error) { n++; return n, nil }

	v, _ := memo.Get(ctx, "k", refill)
	assert.Equal(t, 1, v)
	memo.Invalidate(ctx, "k")
	v, _ = memo.Get(ctx, "k", refill)
	assert.Equal(t, 2, v)
}

func TestMemo_RefillErrorNotCached(t *testing.T) {
	memo := NewMemo[int](NewMemoryBackend(clockwork.NewFakeClock()), time.Minute)
	ctx := context.Background()

	_, err := memo.Get(ctx, "k", func(context.Context) (int, error) { return 0, errors.New("disk gone") })
	require.Error(t, err)

	v, err := memo.Get(ctx, "k", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestMemo_ZeroTTLPassesThrough(t *testing.T) {
	memo := NewMemo[int](NewMemoryBackend(nil), 0)
	ctx := context.Background()
	n := 0
	refill := func(context.Context) (int, error) { n++; return n, nil }

	memo.Get(ctx, "k", refill)
	memo.Get(ctx, "k", refill)
	assert.Equal(t, 2, n)
}

type brokenBackend struct{}

func (brokenBackend) Name() string                          { return "broken" }
func (brokenBackend) Del(context.Context, ...string) error { return nil }
func (brokenBackend) Close() error                         { return nil }
func (brokenBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}
func (brokenBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func TestMemo_BackendFailureFallsThrough(t *testing.T) {
	memo := NewMemo[string](brokenBackend{}, time.Minute)

	v, err := memo.Get(context.Background(), "k", func(context.Context) (string, error) { return "fresh", nil })
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
}
