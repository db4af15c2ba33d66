package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postdex/postdex/internal/embed"
	"github.com/postdex/postdex/internal/search"
	"github.com/postdex/postdex/internal/store"
)

func newRAGFixture(t *testing.T) (*store.Store, *RAG) {
	t.Helper()
	s := store.New(store.Config{Dimensions: 64})
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	embedder := embed.NewStaticEmbedder(64)
	hybrid := search.New(s, embedder, search.Config{})
	return s, New(s, hybrid)
}

func addPost(t *testing.T, s *store.Store, id, title, category, content string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertPost(ctx, &store.Post{
		ID: id, Title: title, Category: category, Content: content,
	}))

	embedder := embed.NewStaticEmbedder(64)
	chunkID, err := s.InsertChunk(ctx, &store.Chunk{PostID: id, Index: 0, Content: content})
	require.NoError(t, err)
	vec, err := embedder.Embed(ctx, content)
	require.NoError(t, err)
	require.NoError(t, s.StoreEmbedding(ctx, chunkID, vec))
}

func TestQueryDeduplicatesByPost(t *testing.T) {
	s, r := newRAGFixture(t)
	ctx := context.Background()

	// Two chunks of the same post both match; only one result comes back.
	require.NoError(t, s.UpsertPost(ctx, &store.Post{
		ID: "p1", Title: "Ferments", Content: "sourdough starter notes",
	}))
	for i, content := range []string{
		"feeding the sourdough starter every morning",
		"the sourdough starter doubled overnight",
	} {
		_, err := s.InsertChunk(ctx, &store.Chunk{PostID: "p1", Index: i, Content: content})
		require.NoError(t, err)
	}
	addPost(t, s, "p2", "Bread", "baking", "bake the loaf at high heat with steam")

	results, err := r.Query(ctx, "sourdough starter", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].Post.ID)
	assert.NotEmpty(t, results[0].MatchedChunk)
	assert.Positive(t, results[0].Score)
}

func TestQueryEmpty(t *testing.T) {
	_, r := newRAGFixture(t)

	results, err := r.Query(context.Background(), "nothing here", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestContextFormat(t *testing.T) {
	s, r := newRAGFixture(t)

	addPost(t, s, "p1", "Kinesin", "biology",
		"Kinesin is a motor protein that walks along microtubules.")
	addPost(t, s, "p2", "Lorenz", "",
		"The Lorenz attractor shows chaos in three simple equations.")

	out, err := r.Context(context.Background(), "kinesin motor microtubules", 3)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "[1] Kinesin\n"))
	assert.Contains(t, out, "Category: biology")
	assert.Contains(t, out, "Content: Kinesin is a motor protein")
	if strings.Contains(out, "Lorenz") {
		assert.Contains(t, out, "\n---\n")
		assert.Contains(t, out, "Category: N/A")
	}
}

func TestContextNoResults(t *testing.T) {
	_, r := newRAGFixture(t)

	out, err := r.Context(context.Background(), "unmatched query", 3)
	require.NoError(t, err)
	assert.Equal(t, NoContextFound, out)
}

func TestFindSimilarExcludesSource(t *testing.T) {
	s, r := newRAGFixture(t)

	addPost(t, s, "p1", "Motors", "biology",
		"kinesin motor protein walks along microtubule tracks")
	addPost(t, s, "p2", "More motors", "biology",
		"dynein is another motor protein moving along microtubule tracks")
	addPost(t, s, "p3", "Weather", "",
		"it rained steadily for the whole afternoon")

	similar, err := r.FindSimilar(context.Background(), "p1", 5)
	require.NoError(t, err)
	require.NotEmpty(t, similar)
	for _, result := range similar {
		assert.NotEqual(t, "p1", result.PostID)
	}
	assert.Equal(t, "p2", similar[0].PostID)
}

func TestFindSimilarUnknownPost(t *testing.T) {
	_, r := newRAGFixture(t)

	similar, err := r.FindSimilar(context.Background(), "ghost", 5)
	require.NoError(t, err)
	assert.Empty(t, similar)
}
