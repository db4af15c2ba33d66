// Package rag is the retrieval facade: post-level query results,
// prompt-ready context strings, and related-post lookup on top of
// hybrid search.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/postdex/postdex/internal/search"
	"github.com/postdex/postdex/internal/store"
)

// Default result counts.
const (
	DefaultQueryLimit   = 5
	DefaultContextLimit = 3
)

// NoContextFound is returned by Context when nothing matches.
const NoContextFound = "No relevant context found."

// QueryResult pairs a matched post with the chunk that matched and its
// relevance scores.
type QueryResult struct {
	Post          *store.Post
	MatchedChunk  string
	Score         float64
	BM25Score     float64
	SemanticScore float64
}

// RAG answers retrieval queries at post granularity.
type RAG struct {
	store  *store.Store
	hybrid *search.Hybrid
}

// New creates the retrieval facade.
func New(s *store.Store, h *search.Hybrid) *RAG {
	return &RAG{store: s, hybrid: h}
}

// Query runs a hybrid search and groups chunk hits by post, keeping
// each post's best-ranked chunk. At most limit distinct posts are
// returned.
func (r *RAG) Query(ctx context.Context, query string, limit int) ([]QueryResult, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	results, err := r.hybrid.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var output []QueryResult

	for _, result := range results {
		if seen[result.PostID] {
			continue
		}
		seen[result.PostID] = true

		post, err := r.store.GetPost(ctx, result.PostID)
		if errors.Is(err, store.ErrPostNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load post %s: %w", result.PostID, err)
		}

		output = append(output, QueryResult{
			Post:          post,
			MatchedChunk:  result.Content,
			Score:         result.Score,
			BM25Score:     result.BM25Score,
			SemanticScore: result.SemanticScore,
		})
		if len(output) == limit {
			break
		}
	}

	return output, nil
}

// Context formats the top matching posts as a context block for LLM
// prompt augmentation.
func (r *RAG) Context(ctx context.Context, query string, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultContextLimit
	}

	results, err := r.Query(ctx, query, limit)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return NoContextFound, nil
	}

	parts := make([]string, len(results))
	for i, result := range results {
		category := result.Post.Category
		if category == "" {
			category = "N/A"
		}
		parts[i] = fmt.Sprintf("[%d] %s\nCategory: %s\nContent: %s\n",
			i+1, result.Post.Title, category, result.Post.Content)
	}

	return strings.Join(parts, "\n---\n"), nil
}

// FindSimilar searches with a post's own content and returns the
// nearest other posts' chunks. An unknown post ID yields no results.
func (r *RAG) FindSimilar(ctx context.Context, postID string, limit int) ([]store.SearchResult, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	post, err := r.store.GetPost(ctx, postID)
	if errors.Is(err, store.ErrPostNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// Fetch one extra so the source post can be filtered out.
	results, err := r.hybrid.Search(ctx, post.Content, limit+1)
	if err != nil {
		return nil, err
	}

	var similar []store.SearchResult
	for _, result := range results {
		if result.PostID == postID {
			continue
		}
		similar = append(similar, result)
		if len(similar) == limit {
			break
		}
	}
	return similar, nil
}
