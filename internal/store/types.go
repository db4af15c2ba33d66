// Package store persists posts and their chunks in SQLite and keeps two
// derived indexes over chunk content: an FTS5 table for BM25 lexical
// search and an HNSW graph for vector search. The FTS index is kept in
// sync by triggers inside the same transaction as chunk writes; the
// vector index is optional and its absence never blocks post or chunk
// writes.
package store

import (
	"errors"
	"fmt"
	"time"
)

// Post statuses. A post moves draft -> ready -> posted.
const (
	StatusDraft  = "draft"
	StatusReady  = "ready"
	StatusPosted = "posted"
)

// ErrNotConnected is returned by store operations before Open succeeds
// or after Close.
var ErrNotConnected = errors.New("store: not connected")

// ErrPostNotFound is returned when a post ID does not exist.
var ErrPostNotFound = errors.New("store: post not found")

// ErrDimensionMismatch indicates a vector whose length does not match
// the dimensions the store was opened with.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("store: dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Post is a document synced from the content provider.
type Post struct {
	// ID is the provider-assigned identifier, stable across syncs.
	ID          string
	NotionURL   string
	Title       string
	Content     string
	Category    string
	Hashtags    []string
	Status      string
	PostedAt    *time.Time
	MastodonURL string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Chunk is an indexable piece of a post's content.
type Chunk struct {
	ID      int64
	PostID  string
	Index   int
	Content string
}

// SearchResult is a scored chunk hit with post fields denormalized for
// display. BM25Score and SemanticScore are set only by the search path
// that produced them.
type SearchResult struct {
	ChunkID       int64
	PostID        string
	Content       string
	Score         float64
	BM25Score     float64
	SemanticScore float64
	Title         string
	Category      string
}

// Config configures a Store.
type Config struct {
	// Path is the SQLite database file. Empty means in-memory,
	// which is used by tests.
	Path string

	// VectorPath is where the HNSW graph is persisted. When empty
	// the graph is rebuilt from stored embeddings at Open.
	VectorPath string

	// Dimensions is the embedding vector size. Zero disables the
	// vector index entirely; the store then serves lexical search only.
	Dimensions int
}
