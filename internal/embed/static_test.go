package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedderDeterministic(t *testing.T) {
	e := NewStaticEmbedder(384)
	ctx := context.Background()

	first, err := e.Embed(ctx, "hybrid retrieval with rank fusion")
	require.NoError(t, err)
	second, err := e.Embed(ctx, "hybrid retrieval with rank fusion")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 384)
}

func TestStaticEmbedderNormalized(t *testing.T) {
	e := NewStaticEmbedder(128)

	vec, err := e.Embed(context.Background(), "molecular motors walk along microtubules")
	require.NoError(t, err)

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSquares), 1e-4)
}

func TestStaticEmbedderEmptyInput(t *testing.T) {
	e := NewStaticEmbedder(64)

	vec, err := e.Embed(context.Background(), "   \n ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 64), vec)
}

func TestStaticEmbedderDistinguishesTexts(t *testing.T) {
	e := NewStaticEmbedder(384)
	ctx := context.Background()

	a, err := e.Embed(ctx, "kinesin transports cargo along cytoskeletal tracks")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "chaos theory describes sensitive dependence on initial conditions")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestStaticEmbedderBatch(t *testing.T) {
	e := NewStaticEmbedder(96)

	vectors, err := e.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for _, vec := range vectors {
		assert.Len(t, vec, 96)
	}
}

func TestStaticEmbedderDefaultDimensions(t *testing.T) {
	e := NewStaticEmbedder(0)
	assert.Equal(t, DefaultDimensions, e.Dimensions())
}

func TestStaticEmbedderClose(t *testing.T) {
	e := NewStaticEmbedder(32)
	ctx := context.Background()

	assert.True(t, e.Available(ctx))
	require.NoError(t, e.Close())
	assert.False(t, e.Available(ctx))

	_, err := e.Embed(ctx, "text")
	assert.Error(t, err)
}
