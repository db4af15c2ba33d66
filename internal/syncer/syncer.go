// Package syncer pulls posts from the content provider and rebuilds
// their chunks and embeddings in the store. A file lock serializes
// concurrent sync runs across processes.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofrs/flock"

	"github.com/postdex/postdex/internal/chunker"
	"github.com/postdex/postdex/internal/embed"
	"github.com/postdex/postdex/internal/store"
)

// ErrSyncLocked is returned when another sync process holds the lock.
var ErrSyncLocked = errors.New("syncer: another sync is already running")

// Provider fetches posts from the upstream content source.
type Provider interface {
	FetchAll(ctx context.Context) ([]*store.Post, error)
	FetchByStatus(ctx context.Context, status string) ([]*store.Post, error)
}

// Stats summarizes one sync run. Errors counts posts that failed; the
// run continues past them.
type Stats struct {
	Total      int
	Synced     int
	Chunks     int
	Embeddings int
	Errors     int
}

// Config configures a Syncer.
type Config struct {
	// LockPath is the flock file serializing sync runs. Empty
	// disables locking.
	LockPath string
}

// Syncer drives provider-to-store synchronization.
type Syncer struct {
	provider Provider
	store    *store.Store
	embedder embed.Embedder
	chunker  *chunker.Chunker
	lockPath string

	// OnProgress, when set, is called after each post with
	// (completed, total) counts.
	OnProgress func(completed, total int)
}

// New creates a Syncer. A nil chunker gets the default configuration.
func New(provider Provider, s *store.Store, e embed.Embedder, c *chunker.Chunker, cfg Config) *Syncer {
	if c == nil {
		c = chunker.New(chunker.DefaultConfig())
	}
	return &Syncer{
		provider: provider,
		store:    s,
		embedder: e,
		chunker:  c,
		lockPath: cfg.LockPath,
	}
}

// SyncAll syncs every post the provider returns.
func (s *Syncer) SyncAll(ctx context.Context) (Stats, error) {
	return s.run(ctx, func(ctx context.Context) ([]*store.Post, error) {
		return s.provider.FetchAll(ctx)
	})
}

// SyncByStatus syncs only posts with the given status.
func (s *Syncer) SyncByStatus(ctx context.Context, status string) (Stats, error) {
	return s.run(ctx, func(ctx context.Context) ([]*store.Post, error) {
		return s.provider.FetchByStatus(ctx, status)
	})
}

func (s *Syncer) run(ctx context.Context, fetch func(context.Context) ([]*store.Post, error)) (Stats, error) {
	unlock, err := s.acquireLock()
	if err != nil {
		return Stats{}, err
	}
	defer unlock()

	posts, err := fetch(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("fetch posts: %w", err)
	}

	stats := Stats{Total: len(posts)}
	for i, post := range posts {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if err := s.syncPost(ctx, post, &stats); err != nil {
			slog.Warn("post sync failed",
				slog.String("post_id", post.ID),
				slog.String("title", post.Title),
				slog.String("error", err.Error()))
			stats.Errors++
		} else {
			stats.Synced++
		}

		if s.OnProgress != nil {
			s.OnProgress(i+1, stats.Total)
		}
	}

	slog.Info("sync complete",
		slog.Int("total", stats.Total),
		slog.Int("synced", stats.Synced),
		slog.Int("chunks", stats.Chunks),
		slog.Int("embeddings", stats.Embeddings),
		slog.Int("errors", stats.Errors))
	return stats, nil
}

// syncPost replaces a single post's chunks and embeddings. Embeddings
// for all of a post's chunks go through one batch call.
func (s *Syncer) syncPost(ctx context.Context, post *store.Post, stats *Stats) error {
	if err := s.store.UpsertPost(ctx, post); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	if err := s.store.DeleteChunksForPost(ctx, post.ID); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}

	texts := s.chunker.Chunk(post.Content)
	if len(texts) == 0 {
		// Chunker yields nothing for some inputs; index the whole
		// content rather than dropping the post from search.
		texts = []string{post.Content}
	}

	chunkIDs := make([]int64, 0, len(texts))
	for i, text := range texts {
		id, err := s.store.InsertChunk(ctx, &store.Chunk{
			PostID:  post.ID,
			Index:   i,
			Content: text,
		})
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
		chunkIDs = append(chunkIDs, id)
		stats.Chunks++
	}

	if !s.store.VectorEnabled() {
		return nil
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(embeddings) != len(texts) {
		return fmt.Errorf("embed chunks: got %d embeddings for %d chunks", len(embeddings), len(texts))
	}
	for i, embedding := range embeddings {
		if err := s.store.StoreEmbedding(ctx, chunkIDs[i], embedding); err != nil {
			return fmt.Errorf("store embedding for chunk %d: %w", chunkIDs[i], err)
		}
		stats.Embeddings++
	}
	return nil
}

func (s *Syncer) acquireLock() (func(), error) {
	if s.lockPath == "" {
		return func() {}, nil
	}

	fl := flock.New(s.lockPath)
	acquired, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !acquired {
		return nil, ErrSyncLocked
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			slog.Warn("sync lock release failed", slog.String("error", err.Error()))
		}
	}, nil
}
