// Package search fuses lexical BM25 and semantic vector rankings into
// a single hybrid ranking using weighted Reciprocal Rank Fusion.
package search

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/postdex/postdex/internal/embed"
	"github.com/postdex/postdex/internal/store"
)

// fetchFactor over-fetches each primitive so fusion has enough
// candidates beyond the requested limit.
const fetchFactor = 3

// DefaultLimit is used when the caller passes a non-positive limit.
const DefaultLimit = 10

// Config tunes the hybrid ranking.
type Config struct {
	// Alpha in [0,1] weights the semantic list; the lexical list gets
	// 1-alpha. 0 is pure lexical, 1 pure semantic. A nil Alpha means
	// unset and falls back to DefaultAlpha; 0 is a meaningful value
	// and is honored as-is.
	Alpha *float64

	// K is the RRF rank constant.
	K int
}

// Hybrid runs both search primitives in parallel and fuses their
// rankings. When the store has no vector index, or the query embedding
// fails, it degrades to lexical-only results.
type Hybrid struct {
	store    *store.Store
	embedder embed.Embedder
	alpha    float64
	k        int
}

// New creates a Hybrid searcher. A zero Config gets the defaults.
func New(s *store.Store, e embed.Embedder, cfg Config) *Hybrid {
	alpha := DefaultAlpha
	if cfg.Alpha != nil {
		alpha = *cfg.Alpha
	}
	if cfg.K <= 0 {
		cfg.K = DefaultRRFK
	}
	return &Hybrid{store: s, embedder: e, alpha: alpha, k: cfg.K}
}

// Search returns the top fused results for a text query.
func (h *Hybrid) Search(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	fetch := limit * fetchFactor

	var (
		lexical  []store.SearchResult
		semantic []store.SearchResult
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		results, err := h.store.LexicalSearch(gctx, query, fetch)
		if err != nil {
			return fmt.Errorf("lexical search: %w", err)
		}
		lexical = results
		return nil
	})

	g.Go(func() error {
		if !h.store.VectorEnabled() {
			return nil
		}
		embedding, err := h.embedder.Embed(gctx, query)
		if err != nil {
			// A failed query embedding degrades to lexical-only
			// instead of failing the search.
			slog.Warn("query embedding failed, using lexical results only",
				slog.String("error", err.Error()))
			return nil
		}
		results, err := h.store.VectorSearch(gctx, embedding, fetch)
		if err != nil {
			return fmt.Errorf("vector search: %w", err)
		}
		semantic = results
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return fuse(lexical, semantic, h.alpha, h.k, limit), nil
}

// SearchLexical exposes the BM25 primitive on its own.
func (h *Hybrid) SearchLexical(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return h.store.LexicalSearch(ctx, query, limit)
}

// SearchSemantic exposes the vector primitive on its own. Unlike
// Search, it fails when the vector index is unavailable.
func (h *Hybrid) SearchSemantic(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if !h.store.VectorEnabled() {
		return nil, fmt.Errorf("semantic search unavailable: vector index disabled")
	}
	embedding, err := h.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return h.store.VectorSearch(ctx, embedding, limit)
}
