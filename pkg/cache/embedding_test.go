package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingCache_RoundTrip(t *testing.T) {
	backend := NewMemoryCache(nil)
	t.Cleanup(func() { _ = backend.Close() })
	ec := NewEmbeddingCache(backend, time.Minute)
	ctx := context.Background()

	_, hit, err := ec.Get(ctx, "abc", "combined")
	require.NoError(t, err)
	assert.False(t, hit)

	entry := &CachedEmbedding{
		ObjectiveValue:   3004000,
		ChangedInstances: 3,
		RuntimeMs:        12.5,
		Result:           []byte(`{"scenario":"s"}`),
	}
	require.NoError(t, ec.Set(ctx, "abc", "combined", entry, 0))

	got, hit, err := ec.Get(ctx, "abc", "combined")
	require.NoError(t, err)
	require.True(t, hit)
	assert.InDelta(t, 3004000, got.ObjectiveValue, 1e-9)
	assert.Equal(t, 3, got.ChangedInstances)
	assert.False(t, got.ComputedAt.IsZero())

	// the objective variant is part of the key
	_, hit, err = ec.Get(ctx, "abc", "delay")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestEmbeddingCache_CorruptedEntry(t *testing.T) {
	backend := NewMemoryCache(nil)
	t.Cleanup(func() { _ = backend.Close() })
	ec := NewEmbeddingCache(backend, time.Minute)
	ctx := context.Background()

	key := BuildKey("abc", "combined")
	require.NoError(t, backend.Set(ctx, key, []byte("not json"), time.Minute))

	_, hit, err := ec.Get(ctx, "abc", "combined")
	require.NoError(t, err)
	assert.False(t, hit, "corrupted entries read as misses")

	// and the bad entry was dropped
	exists, err := backend.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}
