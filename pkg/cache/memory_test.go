package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, opts *Options) *MemoryCache {
	t.Helper()
	c := NewMemoryCache(opts)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := newTestCache(t, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", []byte("value"), time.Minute))

	value, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	exists, err := c.Exists(ctx, "key")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := newTestCache(t, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("v"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryCache_ReturnsCopy(t *testing.T) {
	c := newTestCache(t, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", []byte("abc"), time.Minute))
	value, err := c.Get(ctx, "key")
	require.NoError(t, err)
	value[0] = 'x'

	again, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryCache_EvictsAtCapacity(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxEntries = 2
	c := newTestCache(t, opts)
	ctx := context.Background()

	// "old" expires first and is the eviction victim
	require.NoError(t, c.Set(ctx, "old", []byte("1"), time.Second))
	require.NoError(t, c.Set(ctx, "new", []byte("2"), time.Hour))
	require.NoError(t, c.Set(ctx, "extra", []byte("3"), time.Hour))

	_, err := c.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalKeys)
}

func TestMemoryCache_Stats(t *testing.T) {
	c := newTestCache(t, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", []byte("v"), time.Minute))
	_, _ = c.Get(ctx, "key")
	_, _ = c.Get(ctx, "missing")

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
	assert.Equal(t, BackendMemory, stats.Backend)
}

func TestMemoryCache_Closed(t *testing.T) {
	c := NewMemoryCache(nil)
	require.NoError(t, c.Close())

	_, err := c.Get(context.Background(), "key")
	assert.ErrorIs(t, err, ErrCacheClosed)
	assert.NoError(t, c.Close(), "closing twice is fine")
}

func TestNew_UnknownBackend(t *testing.T) {
	opts := DefaultOptions()
	opts.Backend = "tape"
	_, err := New(opts)
	assert.Error(t, err)
}
