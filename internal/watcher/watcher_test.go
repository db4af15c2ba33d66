package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postdex/postdex/internal/mastodon"
	"github.com/postdex/postdex/internal/store"
)

type stubProvider struct {
	mu      sync.Mutex
	posts   []*store.Post
	updated []statusUpdate

	fetchErr  error
	updateErr error
}

type statusUpdate struct {
	pageID string
	status string
	url    string
}

func (p *stubProvider) FetchByStatus(ctx context.Context, status string) ([]*store.Post, error) {
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

func (p *stubProvider) UpdateStatus(ctx context.Context, pageID, status, mastodonURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.updateErr != nil {
		return p.updateErr
	}
	p.updated = append(p.updated, statusUpdate{pageID, status, mastodonURL})
	return nil
}

type stubSink struct {
	mu      sync.Mutex
	posted  []string
	postErr error
}

func (s *stubSink) PostStatus(ctx context.Context, post *store.Post, visibility string) (*mastodon.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.postErr != nil {
		return nil, s.postErr
	}
	s.posted = append(s.posted, post.ID)
	return &mastodon.Result{ID: "toot-" + post.ID, URL: "https://example.social/@me/" + post.ID}, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(store.Config{})
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func readyPost(id, title string) *store.Post {
	return &store.Post{
		ID:      id,
		Title:   title,
		Content: "content of " + title,
		Status:  store.StatusReady,
	}
}

func TestPollOncePublishesReadyPosts(t *testing.T) {
	s := newTestStore(t)
	p1 := readyPost("p1", "First")
	require.NoError(t, s.UpsertPost(context.Background(), p1))

	provider := &stubProvider{posts: []*store.Post{p1}}
	sink := &stubSink{}
	w := New(provider, s, sink, Config{Visibility: "public"})

	var published []string
	w.OnPost = func(post *store.Post, url string) {
		published = append(published, url)
	}

	stats, err := w.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 1, Posted: 1}, stats)
	assert.Equal(t, []string{"p1"}, sink.posted)
	assert.Equal(t, []string{"https://example.social/@me/p1"}, published)

	posted, err := s.IsPosted(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, posted)

	stored, err := s.GetPost(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.social/@me/p1", stored.MastodonURL)
	require.NotNil(t, stored.PostedAt)
	assert.WithinDuration(t, time.Now(), *stored.PostedAt, time.Minute)

	require.Len(t, provider.updated, 1)
	assert.Equal(t, statusUpdate{"p1", store.StatusPosted, "https://example.social/@me/p1"}, provider.updated[0])
}

func TestPollOnceSkipsAlreadyPosted(t *testing.T) {
	s := newTestStore(t)
	p1 := readyPost("p1", "First")
	require.NoError(t, s.UpsertPost(context.Background(), p1))
	require.NoError(t, s.MarkAsPosted(context.Background(), "p1", "https://example.social/old", time.Time{}))

	provider := &stubProvider{posts: []*store.Post{p1}}
	sink := &stubSink{}
	w := New(provider, s, sink, Config{})

	stats, err := w.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 1, Skipped: 1}, stats)
	assert.Empty(t, sink.posted)
}

func TestPollOnceContinuesPastSinkFailure(t *testing.T) {
	s := newTestStore(t)
	p1 := readyPost("p1", "First")
	require.NoError(t, s.UpsertPost(context.Background(), p1))

	provider := &stubProvider{posts: []*store.Post{p1}}
	sink := &stubSink{postErr: errors.New("rate limited")}
	w := New(provider, s, sink, Config{})

	var failed []*store.Post
	w.OnError = func(post *store.Post, err error) {
		failed = append(failed, post)
	}

	stats, err := w.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 1, Errors: 1}, stats)
	require.Len(t, failed, 1)
	assert.Equal(t, "p1", failed[0].ID)

	posted, err := s.IsPosted(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, posted)
}

func TestPollOnceProviderStatusUpdateBestEffort(t *testing.T) {
	s := newTestStore(t)
	p1 := readyPost("p1", "First")
	require.NoError(t, s.UpsertPost(context.Background(), p1))

	provider := &stubProvider{posts: []*store.Post{p1}, updateErr: errors.New("notion down")}
	sink := &stubSink{}
	w := New(provider, s, sink, Config{})

	stats, err := w.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 1, Posted: 1}, stats)

	posted, err := s.IsPosted(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, posted)
}

func TestPollOnceFetchError(t *testing.T) {
	s := newTestStore(t)
	provider := &stubProvider{fetchErr: errors.New("provider down")}
	w := New(provider, s, &stubSink{}, Config{})

	_, err := w.PollOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")
}

func TestRunStop(t *testing.T) {
	s := newTestStore(t)
	p1 := readyPost("p1", "First")
	require.NoError(t, s.UpsertPost(context.Background(), p1))

	provider := &stubProvider{posts: []*store.Post{p1}}
	sink := &stubSink{}
	w := New(provider, s, sink, Config{PollInterval: time.Hour})

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	// The initial poll runs before the first tick.
	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.posted) == 1
	}, 2*time.Second, 10*time.Millisecond)

	w.Stop()
	w.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestRunContextCancel(t *testing.T) {
	s := newTestStore(t)
	w := New(&stubProvider{}, s, &stubSink{}, Config{PollInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
