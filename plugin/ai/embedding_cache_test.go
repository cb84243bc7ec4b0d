package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbeddingService_Embed(t *testing.T) {
	inner := NewMockEmbeddingService()
	inner.Vectors["报工"] = []float32{0, 1, 0}
	cached := NewCachedEmbeddingService(inner, 10)

	ctx := context.Background()
	vec, err := cached.Embed(ctx, "报工")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, vec)
	assert.Equal(t, 1, inner.CallCount)

	// Second lookup is memoized.
	vec, err = cached.Embed(ctx, "报工")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, vec)
	assert.Equal(t, 1, inner.CallCount)
	assert.Equal(t, 1, cached.Size())
}

func TestCachedEmbeddingService_EmbedBatchPartialHit(t *testing.T) {
	inner := NewMockEmbeddingService()
	cached := NewCachedEmbeddingService(inner, 10)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "报工")
	require.NoError(t, err)
	require.Equal(t, 1, inner.CallCount)

	vectors, err := cached.EmbedBatch(ctx, []string{"报工", "产量"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	// Only the miss goes to the backend.
	assert.Equal(t, 2, inner.CallCount)

	vectors, err = cached.EmbedBatch(ctx, []string{"报工", "产量"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, 2, inner.CallCount)
}

func TestCachedEmbeddingService_ErrorsAreNotCached(t *testing.T) {
	inner := NewMockEmbeddingService()
	inner.Err = assert.AnError
	cached := NewCachedEmbeddingService(inner, 10)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "报工")
	require.Error(t, err)
	assert.Zero(t, cached.Size())

	inner.Err = nil
	vec, err := cached.Embed(ctx, "报工")
	require.NoError(t, err)
	assert.NotNil(t, vec)
}

func TestCachedEmbeddingService_EvictsPastCapacity(t *testing.T) {
	inner := NewMockEmbeddingService()
	cached := NewCachedEmbeddingService(inner, 2)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		_, err := cached.Embed(ctx, text)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, cached.Size())
}
