package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (vectorNorm(a) * vectorNorm(b))
}

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	v1, err := e.Embed(ctx, "quarterly financial report for the board")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "quarterly financial report for the board")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1, StaticDimensions)
	assert.InDelta(t, 1.0, vectorNorm(v1), 1e-5, "embeddings must be unit length")
}

func TestStaticEmbedder_EmptyInputIsZeroVector(t *testing.T) {
	e := NewStaticEmbedder()

	for _, input := range []string{"", "   ", "\n\t"} {
		v, err := e.Embed(context.Background(), input)
		require.NoError(t, err)
		require.Len(t, v, StaticDimensions)
		assert.Zero(t, vectorNorm(v))
	}
}

func TestStaticEmbedder_SharedTokensIncreaseSimilarity(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	base, err := e.Embed(ctx, "annual revenue growth summary")
	require.NoError(t, err)
	near, err := e.Embed(ctx, "annual revenue growth report")
	require.NoError(t, err)
	far, err := e.Embed(ctx, "wildlife photography tips")
	require.NoError(t, err)

	assert.Greater(t, cosine(base, near), cosine(base, far))
}

func TestStaticEmbedder_EmbedBatch(t *testing.T) {
	e := NewStaticEmbedder()

	texts := []string{"first document", "", "third document"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	single, err := e.Embed(context.Background(), "first document")
	require.NoError(t, err)
	assert.Equal(t, single, vecs[0])
	assert.Zero(t, vectorNorm(vecs[1]))
}

func TestStaticEmbedder_Close(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	assert.True(t, e.Available(ctx))
	require.NoError(t, e.Close())
	assert.False(t, e.Available(ctx))

	_, err := e.Embed(ctx, "anything")
	assert.Error(t, err)
}

func TestTrigrams(t *testing.T) {
	tests := []struct {
		token string
		want  []string
	}{
		{"ab", []string{"ab"}},
		{"abc", []string{"abc"}},
		{"abcd", []string{"abc", "bcd"}},
		{"search", []string{"sea", "ear", "arc", "rch"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, trigrams(tt.token), "token %q", tt.token)
	}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t,
		[]string{"hello", "world", "42"},
		tokenize("Hello, World! 42"))
	assert.Empty(t, tokenize("  ...  "))
}
