// Package watcher polls the content provider for posts marked ready and
// publishes them to the configured sink.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/postdex/postdex/internal/mastodon"
	"github.com/postdex/postdex/internal/store"
)

// DefaultPollInterval is how often the watcher checks for ready posts.
const DefaultPollInterval = 60 * time.Second

// Provider fetches posts by status and records publish results upstream.
type Provider interface {
	FetchByStatus(ctx context.Context, status string) ([]*store.Post, error)
	UpdateStatus(ctx context.Context, pageID, status, mastodonURL string) error
}

// Sink publishes a post and returns where it landed.
type Sink interface {
	PostStatus(ctx context.Context, post *store.Post, visibility string) (*mastodon.Result, error)
}

// Stats summarizes one poll cycle.
type Stats struct {
	Checked int
	Posted  int
	Skipped int
	Errors  int
}

// Config configures a Watcher.
type Config struct {
	PollInterval time.Duration
	Visibility   string
}

// Watcher drives the poll-and-publish loop.
type Watcher struct {
	provider   Provider
	store      *store.Store
	sink       Sink
	interval   time.Duration
	visibility string

	stopCh   chan struct{}
	stopOnce sync.Once

	// OnPost, when set, is called after a post publishes with its
	// resulting URL.
	OnPost func(post *store.Post, url string)
	// OnError, when set, is called when publishing a post fails.
	OnError func(post *store.Post, err error)
}

// New creates a Watcher. A zero PollInterval gets DefaultPollInterval.
func New(provider Provider, s *store.Store, sink Sink, cfg Config) *Watcher {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		provider:   provider,
		store:      s,
		sink:       sink,
		interval:   interval,
		visibility: cfg.Visibility,
		stopCh:     make(chan struct{}),
	}
}

// PollOnce runs a single poll cycle: fetch ready posts, publish the
// ones not already posted, and record results. Per-post failures are
// tallied and the cycle continues.
func (w *Watcher) PollOnce(ctx context.Context) (Stats, error) {
	posts, err := w.provider.FetchByStatus(ctx, store.StatusReady)
	if err != nil {
		return Stats{}, fmt.Errorf("fetch ready posts: %w", err)
	}

	stats := Stats{Checked: len(posts)}
	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		posted, err := w.store.IsPosted(ctx, post.ID)
		if err != nil {
			stats.Errors++
			w.reportError(post, fmt.Errorf("check posted state: %w", err))
			continue
		}
		if posted {
			stats.Skipped++
			continue
		}

		if err := w.publish(ctx, post); err != nil {
			stats.Errors++
			w.reportError(post, err)
			continue
		}
		stats.Posted++
	}
	return stats, nil
}

// publish sends one post to the sink and records the result locally and
// upstream. The upstream status update is best effort; the post is
// already live by then.
func (w *Watcher) publish(ctx context.Context, post *store.Post) error {
	result, err := w.sink.PostStatus(ctx, post, w.visibility)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	if err := w.store.MarkAsPosted(ctx, post.ID, result.URL, time.Time{}); err != nil {
		return fmt.Errorf("mark as posted: %w", err)
	}

	if err := w.provider.UpdateStatus(ctx, post.ID, store.StatusPosted, result.URL); err != nil {
		slog.Warn("provider status update failed",
			slog.String("post_id", post.ID),
			slog.String("error", err.Error()))
	}

	slog.Info("post published",
		slog.String("post_id", post.ID),
		slog.String("title", post.Title),
		slog.String("url", result.URL))
	if w.OnPost != nil {
		w.OnPost(post, result.URL)
	}
	return nil
}

func (w *Watcher) reportError(post *store.Post, err error) {
	slog.Warn("post publish failed",
		slog.String("post_id", post.ID),
		slog.String("title", post.Title),
		slog.String("error", err.Error()))
	if w.OnError != nil {
		w.OnError(post, err)
	}
}

// Run polls immediately, then on every tick until the context is
// canceled or Stop is called. Poll cycle errors are logged, not fatal.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	if _, err := w.PollOnce(ctx); err != nil && ctx.Err() == nil {
		slog.Warn("poll cycle failed", slog.String("error", err.Error()))
	}
}

// Stop ends a running Run loop. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}
