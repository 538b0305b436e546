package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records how many texts reach the inner embedder.
type countingEmbedder struct {
	*StaticEmbedder
	embedCalls int
	batchTexts int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.embedCalls++
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchTexts += len(texts)
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_RepeatedQueryHitsCache(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	v1, err := cached.Embed(ctx, "repeated query")
	require.NoError(t, err)
	v2, err := cached.Embed(ctx, "repeated query")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, inner.embedCalls, "second call must be served from cache")
}

func TestCachedEmbedder_BatchEmbedsOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "alpha")
	require.NoError(t, err)

	vecs, err := cached.EmbedBatch(ctx, []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, 2, inner.batchTexts, "cached text must not reach the provider")

	// Results stay parallel to the input regardless of cache hits
	direct, err := NewStaticEmbedder().Embed(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, direct, vecs[1])
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	inner := NewStaticEmbedder()
	cached := NewCachedEmbedder(inner, 0) // 0 falls back to the default size

	assert.Equal(t, StaticDimensions, cached.Dimensions())
	assert.Equal(t, inner.ModelName(), cached.ModelName())
	assert.Same(t, Embedder(inner), cached.Inner())
	assert.True(t, cached.Available(context.Background()))
	require.NoError(t, cached.Close())
	assert.False(t, cached.Available(context.Background()))
}
