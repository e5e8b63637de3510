package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedder_RepeatedQueryHitsCache(t *testing.T) {
	// Given: a cached embedder over a counting mock
	inner := newMockEmbedder(4)
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	// When: the same text is embedded twice
	_, err := c.Embed(ctx, "hello")
	require.NoError(t, err)
	_, err = c.Embed(ctx, "hello")
	require.NoError(t, err)

	// Then: the inner embedder was called once
	assert.Equal(t, int64(1), inner.embedCalls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestCachedEmbedder_BatchSendsOnlyMisses(t *testing.T) {
	inner := newMockEmbedder(4)
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()
	_, err := c.Embed(ctx, "a")
	require.NoError(t, err)

	vecs, err := c.EmbedBatch(ctx, []string{"a", "b", "c"})

	require.NoError(t, err)
	assert.Len(t, vecs, 3)
	assert.Equal(t, int64(2), inner.batchTexts.Load())

	_, err = c.EmbedBatch(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inner.batchCalls.Load())
}

func TestCachedEmbedder_EvictsLeastRecentlyUsed(t *testing.T) {
	inner := newMockEmbedder(4)
	c := NewCachedEmbedder(inner, 2)
	ctx := context.Background()

	for _, s := range []string{"a", "b", "c", "a"} {
		_, err := c.Embed(ctx, s)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(4), inner.embedCalls.Load())
	assert.Equal(t, 2, c.Len())
}

func TestCachedEmbedder_PassThrough(t *testing.T) {
	inner := newMockEmbedder(7)
	c := NewCachedEmbedder(inner, 0)

	assert.Equal(t, 7, c.Dimensions())
	assert.Equal(t, "mock-model", c.ModelName())
	assert.True(t, c.Available(context.Background()))
	assert.Same(t, inner, c.Inner())
	assert.NoError(t, c.Close())
}
