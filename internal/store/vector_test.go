package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorCodecRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.25, 0}
	decoded, err := decodeVector(encodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)
}

func TestDecodeVectorMalformed(t *testing.T) {
	_, err := decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestVectorIndexLazyDelete(t *testing.T) {
	idx, err := newVectorIndex(2)
	require.NoError(t, err)

	require.NoError(t, idx.add(1, []float32{1, 0}))
	require.NoError(t, idx.add(2, []float32{0, 1}))
	require.Equal(t, 2, idx.count())

	idx.remove([]int64{1})
	assert.Equal(t, 1, idx.count())

	hits, err := idx.search([]float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(2), hits[0].ChunkID)
}

func TestStoreRebuildsVectorsFromBlobs(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Path:       filepath.Join(dir, "posts.db"),
		Dimensions: 3,
	}
	ctx := context.Background()

	s := New(cfg)
	require.NoError(t, s.Open(ctx))
	insertTestPost(t, s, "p1", "One", "first chunk")
	require.NoError(t, s.StoreEmbedding(ctx, 1, []float32{1, 0, 0}))
	require.NoError(t, s.Close())

	// Reopen without a saved graph: the index is rebuilt from the
	// embedding blobs in SQLite.
	reopened := New(cfg)
	require.NoError(t, reopened.Open(ctx))
	t.Cleanup(func() { _ = reopened.Close() })

	results, err := reopened.VectorSearch(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].PostID)
}

func TestStoreSavesAndLoadsVectorGraph(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Path:       filepath.Join(dir, "posts.db"),
		VectorPath: filepath.Join(dir, "vectors.hnsw"),
		Dimensions: 3,
	}
	ctx := context.Background()

	s := New(cfg)
	require.NoError(t, s.Open(ctx))
	insertTestPost(t, s, "p1", "One", "first chunk")
	insertTestPost(t, s, "p2", "Two", "second chunk")
	require.NoError(t, s.StoreEmbedding(ctx, 1, []float32{1, 0, 0}))
	require.NoError(t, s.StoreEmbedding(ctx, 2, []float32{0, 1, 0}))
	require.NoError(t, s.Save())
	require.NoError(t, s.Close())

	assert.FileExists(t, cfg.VectorPath)
	assert.FileExists(t, cfg.VectorPath+".meta")

	reopened := New(cfg)
	require.NoError(t, reopened.Open(ctx))
	t.Cleanup(func() { _ = reopened.Close() })

	results, err := reopened.VectorSearch(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p2", results[0].PostID)
}
