package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postdex/postdex/internal/embed"
	"github.com/postdex/postdex/internal/store"
)

type fakeProvider struct {
	posts    []*store.Post
	fetchErr error
}

func (p *fakeProvider) FetchAll(ctx context.Context) ([]*store.Post, error) {
	return p.posts, p.fetchErr
}

func (p *fakeProvider) FetchByStatus(ctx context.Context, status string) ([]*store.Post, error) {
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	var out []*store.Post
	for _, post := range p.posts {
		if post.Status == status {
			out = append(out, post)
		}
	}
	return out, nil
}

type failingEmbedder struct {
	*embed.StaticEmbedder
	failFor string
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, text := range texts {
		if text == f.failFor {
			return nil, errors.New("embedder unavailable")
		}
	}
	return f.StaticEmbedder.EmbedBatch(ctx, texts)
}

func newTestStore(t *testing.T, dims int) *store.Store {
	t.Helper()
	s := store.New(store.Config{Dimensions: dims})
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testPost(id, title, content string) *store.Post {
	return &store.Post{
		ID:       id,
		Title:    title,
		Content:  content,
		Status:   store.StatusReady,
		Category: "science",
	}
}

func TestSyncAll(t *testing.T) {
	s := newTestStore(t, 32)
	provider := &fakeProvider{posts: []*store.Post{
		testPost("p1", "Kinesin", "Kinesin walks along microtubules carrying cargo."),
		testPost("p2", "Chaos", "Small differences in initial conditions grow exponentially."),
	}}
	sync := New(provider, s, embed.NewStaticEmbedder(32), nil, Config{})

	stats, err := sync.SyncAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Synced)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 2, stats.Embeddings)
	assert.Zero(t, stats.Errors)

	count, err := s.CountPosts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	results, err := s.LexicalSearch(context.Background(), "microtubules", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].PostID)
}

func TestSyncReplacesChunks(t *testing.T) {
	s := newTestStore(t, 32)
	post := testPost("p1", "Kinesin", "Kinesin walks along microtubules.")
	provider := &fakeProvider{posts: []*store.Post{post}}
	sync := New(provider, s, embed.NewStaticEmbedder(32), nil, Config{})

	_, err := sync.SyncAll(context.Background())
	require.NoError(t, err)

	post.Content = "Dynein moves the other direction."
	_, err = sync.SyncAll(context.Background())
	require.NoError(t, err)

	stale, err := s.LexicalSearch(context.Background(), "microtubules", 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	fresh, err := s.LexicalSearch(context.Background(), "dynein", 10)
	require.NoError(t, err)
	require.Len(t, fresh, 1)

	count, err := s.CountChunks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSyncByStatus(t *testing.T) {
	s := newTestStore(t, 32)
	draft := testPost("p1", "Draft", "Unfinished thoughts.")
	draft.Status = store.StatusDraft
	provider := &fakeProvider{posts: []*store.Post{
		draft,
		testPost("p2", "Ready", "Polished and ready to go."),
	}}
	sync := New(provider, s, embed.NewStaticEmbedder(32), nil, Config{})

	stats, err := sync.SyncByStatus(context.Background(), store.StatusReady)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Synced)

	_, err = s.GetPost(context.Background(), "p1")
	assert.ErrorIs(t, err, store.ErrPostNotFound)
}

func TestSyncContinuesPastFailures(t *testing.T) {
	s := newTestStore(t, 32)
	provider := &fakeProvider{posts: []*store.Post{
		testPost("p1", "Bad", "this content breaks the embedder"),
		testPost("p2", "Good", "this one syncs fine"),
	}}
	embedder := &failingEmbedder{
		StaticEmbedder: embed.NewStaticEmbedder(32),
		failFor:        "this content breaks the embedder",
	}
	sync := New(provider, s, embedder, nil, Config{})

	stats, err := sync.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Synced)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.Embeddings)
}

type miscountingEmbedder struct {
	*embed.StaticEmbedder
}

func (m *miscountingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := m.StaticEmbedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	extra, err := m.StaticEmbedder.Embed(ctx, "surplus")
	if err != nil {
		return nil, err
	}
	return append(out, extra), nil
}

func TestSyncEmbeddingCountMismatch(t *testing.T) {
	s := newTestStore(t, 32)
	provider := &fakeProvider{posts: []*store.Post{
		testPost("p1", "Kinesin", "Kinesin walks along microtubules."),
	}}
	embedder := &miscountingEmbedder{StaticEmbedder: embed.NewStaticEmbedder(32)}
	sync := New(provider, s, embedder, nil, Config{})

	stats, err := sync.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Zero(t, stats.Synced)
	assert.Equal(t, 1, stats.Errors)
	assert.Zero(t, stats.Embeddings)
}

func TestSyncFetchError(t *testing.T) {
	s := newTestStore(t, 0)
	provider := &fakeProvider{fetchErr: errors.New("provider down")}
	sync := New(provider, s, embed.NewStaticEmbedder(32), nil, Config{})

	_, err := sync.SyncAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")
}

func TestSyncLexicalOnlyStore(t *testing.T) {
	s := newTestStore(t, 0)
	provider := &fakeProvider{posts: []*store.Post{
		testPost("p1", "Kinesin", "Kinesin walks along microtubules."),
	}}
	sync := New(provider, s, embed.NewStaticEmbedder(32), nil, Config{})

	stats, err := sync.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Synced)
	assert.Equal(t, 1, stats.Chunks)
	assert.Zero(t, stats.Embeddings)
}

func TestSyncLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "sync.lock")

	s := newTestStore(t, 0)
	blocker := New(&fakeProvider{}, s, embed.NewStaticEmbedder(32), nil, Config{LockPath: lockPath})
	unlock, err := blocker.acquireLock()
	require.NoError(t, err)
	defer unlock()

	contender := New(&fakeProvider{}, s, embed.NewStaticEmbedder(32), nil, Config{LockPath: lockPath})
	_, err = contender.SyncAll(context.Background())
	assert.ErrorIs(t, err, ErrSyncLocked)
}

func TestSyncProgress(t *testing.T) {
	s := newTestStore(t, 0)
	provider := &fakeProvider{posts: []*store.Post{
		testPost("p1", "One", "first post content here"),
		testPost("p2", "Two", "second post content here"),
	}}
	sync := New(provider, s, embed.NewStaticEmbedder(32), nil, Config{})

	var calls [][2]int
	sync.OnProgress = func(done, total int) {
		calls = append(calls, [2]int{done, total})
	}

	_, err := sync.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, calls)
}
