package search

import (
	"sort"

	"github.com/postdex/postdex/internal/store"
)

// Reciprocal Rank Fusion defaults.
const (
	// DefaultAlpha balances lexical and semantic contributions evenly.
	DefaultAlpha = 0.5

	// DefaultRRFK is the standard RRF rank constant.
	DefaultRRFK = 60
)

// fuse combines a lexical and a semantic ranking with weighted RRF.
// Each result contributes weight/(k+rank) with 1-based ranks; a chunk
// appearing in both lists sums both contributions. When either list is
// empty the other is returned truncated as-is, keeping its primitive
// scores. Ties keep lexical-then-semantic insertion order (stable sort).
func fuse(lexical, semantic []store.SearchResult, alpha float64, k, limit int) []store.SearchResult {
	if len(lexical) == 0 {
		return truncate(semantic, limit)
	}
	if len(semantic) == 0 {
		return truncate(lexical, limit)
	}

	lexicalWeight := 1.0 - alpha

	merged := make(map[int64]*store.SearchResult)
	var order []int64

	for i, r := range lexical {
		r.Score = lexicalWeight / float64(k+i+1)
		merged[r.ChunkID] = &r
		order = append(order, r.ChunkID)
	}

	for i, r := range semantic {
		contribution := alpha / float64(k+i+1)
		if existing, ok := merged[r.ChunkID]; ok {
			existing.Score += contribution
			existing.SemanticScore = r.SemanticScore
			continue
		}
		r.Score = contribution
		merged[r.ChunkID] = &r
		order = append(order, r.ChunkID)
	}

	fused := make([]store.SearchResult, 0, len(order))
	for _, id := range order {
		fused = append(fused, *merged[id])
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})

	return truncate(fused, limit)
}

func truncate(results []store.SearchResult, limit int) []store.SearchResult {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
