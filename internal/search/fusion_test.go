package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postdex/postdex/internal/store"
)

func lexicalResults(ids ...int64) []store.SearchResult {
	results := make([]store.SearchResult, len(ids))
	for i, id := range ids {
		results[i] = store.SearchResult{
			ChunkID:   id,
			PostID:    "post",
			Score:     float64(len(ids) - i),
			BM25Score: float64(len(ids) - i),
		}
	}
	return results
}

func semanticResults(ids ...int64) []store.SearchResult {
	results := make([]store.SearchResult, len(ids))
	for i, id := range ids {
		score := 1.0 - float64(i)*0.1
		results[i] = store.SearchResult{
			ChunkID:       id,
			PostID:        "post",
			Score:         score,
			SemanticScore: score,
		}
	}
	return results
}

func TestFuseLexicalFallback(t *testing.T) {
	lexical := lexicalResults(1, 2, 3)

	fused := fuse(lexical, nil, DefaultAlpha, DefaultRRFK, 10)
	assert.Equal(t, lexical, fused)

	// Truncation still applies on the fallback path.
	fused = fuse(lexical, nil, DefaultAlpha, DefaultRRFK, 2)
	assert.Equal(t, lexical[:2], fused)
}

func TestFuseSemanticFallback(t *testing.T) {
	semantic := semanticResults(4, 5)

	fused := fuse(nil, semantic, DefaultAlpha, DefaultRRFK, 10)
	assert.Equal(t, semantic, fused)
}

func TestFuseBothEmpty(t *testing.T) {
	assert.Empty(t, fuse(nil, nil, DefaultAlpha, DefaultRRFK, 10))
}

func TestFuseIdempotent(t *testing.T) {
	lexical := lexicalResults(1, 2, 3)
	semantic := semanticResults(3, 4)

	first := fuse(lexical, semantic, DefaultAlpha, DefaultRRFK, 10)
	second := fuse(lexical, semantic, DefaultAlpha, DefaultRRFK, 10)
	assert.Equal(t, first, second)
}

func TestFuseBothListsBeatSingleList(t *testing.T) {
	// Chunk 2 appears in both rankings, chunk 1 only leads the
	// lexical one. For any alpha strictly between 0 and 1 the
	// double appearance must win.
	lexical := lexicalResults(1, 2)
	semantic := semanticResults(2, 3)

	for _, alpha := range []float64{0.1, 0.3, 0.5, 0.7, 0.9} {
		fused := fuse(lexical, semantic, alpha, DefaultRRFK, 10)
		require.NotEmpty(t, fused)
		assert.Equal(t, int64(2), fused[0].ChunkID, "alpha=%v", alpha)
	}
}

func TestFuseAlphaDegeneration(t *testing.T) {
	lexical := lexicalResults(1, 2, 3)
	semantic := semanticResults(3, 2, 1)

	t.Run("alpha zero is pure lexical order", func(t *testing.T) {
		fused := fuse(lexical, semantic, 0, DefaultRRFK, 10)
		require.Len(t, fused, 3)
		assert.Equal(t, int64(1), fused[0].ChunkID)
		assert.Equal(t, int64(2), fused[1].ChunkID)
		assert.Equal(t, int64(3), fused[2].ChunkID)
	})

	t.Run("alpha one is pure semantic order", func(t *testing.T) {
		fused := fuse(lexical, semantic, 1, DefaultRRFK, 10)
		require.Len(t, fused, 3)
		assert.Equal(t, int64(3), fused[0].ChunkID)
		assert.Equal(t, int64(2), fused[1].ChunkID)
		assert.Equal(t, int64(1), fused[2].ChunkID)
	})
}

func TestFuseCarriesComponentScores(t *testing.T) {
	lexical := lexicalResults(1, 2)
	semantic := semanticResults(2)

	fused := fuse(lexical, semantic, DefaultAlpha, DefaultRRFK, 10)
	require.Len(t, fused, 2)

	var both store.SearchResult
	for _, r := range fused {
		if r.ChunkID == 2 {
			both = r
		}
	}
	assert.NotZero(t, both.BM25Score)
	assert.NotZero(t, both.SemanticScore)

	// Fused scores are RRF sums, bounded by 1/(k+1) per list.
	maxScore := 1.0 / float64(DefaultRRFK+1)
	for _, r := range fused {
		assert.LessOrEqual(t, r.Score, maxScore)
		assert.Positive(t, r.Score)
	}
}

func TestFuseTruncatesToLimit(t *testing.T) {
	lexical := lexicalResults(1, 2, 3, 4)
	semantic := semanticResults(5, 6, 7, 8)

	fused := fuse(lexical, semantic, DefaultAlpha, DefaultRRFK, 3)
	assert.Len(t, fused, 3)
}
