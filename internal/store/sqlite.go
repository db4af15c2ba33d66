package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	notion_url TEXT,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	category TEXT,
	hashtags TEXT,
	status TEXT DEFAULT 'draft',
	posted_at TIMESTAMP,
	mastodon_url TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	post_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	FOREIGN KEY (post_id) REFERENCES posts(id) ON DELETE CASCADE
);

-- External-content FTS5 table for BM25 over chunk text.
CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	content,
	content='chunks',
	content_rowid='id'
);

-- Triggers keep the FTS index in sync inside the same transaction
-- as the chunk write.
CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
	INSERT INTO chunks_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
	INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES('delete', old.id, old.content);
END;

CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
	INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES('delete', old.id, old.content);
	INSERT INTO chunks_fts(rowid, content) VALUES (new.id, new.content);
END;

-- Raw embeddings, kept so the vector graph can be rebuilt at Open.
CREATE TABLE IF NOT EXISTS embeddings (
	chunk_id INTEGER PRIMARY KEY,
	embedding BLOB NOT NULL,
	FOREIGN KEY (chunk_id) REFERENCES chunks(id) ON DELETE CASCADE
);
`

// Store is the SQLite-backed indexed post store. Vector capability is
// decided once at Open and is immutable for the store's lifetime.
type Store struct {
	mu        sync.RWMutex
	cfg       Config
	db        *sql.DB
	vec       *vectorIndex // nil when vector search is disabled
	connected bool
}

// New creates a Store; call Open before use.
func New(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// Open connects to SQLite, initializes the schema, and builds the
// vector index when Dimensions is set. A failed vector index build
// degrades to lexical-only operation instead of failing the open.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	dsn := ":memory:"
	if s.cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(s.cfg.Path), 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
		dsn = s.cfg.Path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// Single connection: serializes writers and keeps an in-memory
	// database from evaporating between pool connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Pragmas must be set via statements; modernc.org/sqlite ignores
	// DSN parameters.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return fmt.Errorf("initialize schema: %w", err)
	}

	s.db = db
	s.connected = true

	if s.cfg.Dimensions > 0 {
		vec, err := newVectorIndex(s.cfg.Dimensions)
		if err != nil {
			slog.Warn("vector index unavailable, continuing lexical-only",
				slog.String("error", err.Error()))
		} else {
			s.vec = vec
			s.restoreVectors(ctx)
		}
	}

	return nil
}

// restoreVectors repopulates the HNSW graph, preferring a saved graph
// export and falling back to rebuilding from embedding blobs.
func (s *Store) restoreVectors(ctx context.Context) {
	if s.cfg.VectorPath != "" {
		if _, err := os.Stat(s.cfg.VectorPath); err == nil {
			if err := s.vec.load(s.cfg.VectorPath); err == nil {
				return
			} else {
				slog.Warn("vector index load failed, rebuilding from stored embeddings",
					slog.String("path", s.cfg.VectorPath),
					slog.String("error", err.Error()))
			}
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, embedding FROM embeddings`)
	if err != nil {
		slog.Warn("embedding rebuild query failed", slog.String("error", err.Error()))
		return
	}
	defer rows.Close()

	for rows.Next() {
		var chunkID int64
		var blob []byte
		if err := rows.Scan(&chunkID, &blob); err != nil {
			slog.Warn("embedding row scan failed", slog.String("error", err.Error()))
			continue
		}
		vec, err := decodeVector(blob)
		if err != nil {
			slog.Warn("skipping malformed stored vector",
				slog.Int64("chunk_id", chunkID),
				slog.String("error", err.Error()))
			continue
		}
		if err := s.vec.add(chunkID, vec); err != nil {
			slog.Warn("skipping stored vector",
				slog.Int64("chunk_id", chunkID),
				slog.String("error", err.Error()))
		}
	}
	if err := rows.Err(); err != nil {
		slog.Warn("embedding rebuild iteration failed", slog.String("error", err.Error()))
	}
}

// VectorEnabled reports whether vector search is available. The answer
// is fixed at Open.
func (s *Store) VectorEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vec != nil
}

// Dimensions returns the configured embedding size, 0 when vector
// search is disabled.
func (s *Store) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.vec == nil {
		return 0
	}
	return s.vec.dims
}

func (s *Store) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return nil, ErrNotConnected
	}
	return s.db, nil
}

// UpsertPost inserts a post or updates it in place, keyed by the
// provider ID. CreatedAt is preserved on update.
func (s *Store) UpsertPost(ctx context.Context, post *Post) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	hashtags, err := json.Marshal(post.Hashtags)
	if err != nil {
		return fmt.Errorf("marshal hashtags: %w", err)
	}

	now := time.Now().UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	if post.UpdatedAt.IsZero() {
		post.UpdatedAt = now
	}
	if post.Status == "" {
		post.Status = StatusDraft
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO posts (id, notion_url, title, content, category, hashtags,
		                   status, posted_at, mastodon_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			notion_url = excluded.notion_url,
			title = excluded.title,
			content = excluded.content,
			category = excluded.category,
			hashtags = excluded.hashtags,
			status = excluded.status,
			posted_at = excluded.posted_at,
			mastodon_url = excluded.mastodon_url,
			updated_at = excluded.updated_at`,
		post.ID, post.NotionURL, post.Title, post.Content, post.Category,
		string(hashtags), post.Status, formatTimePtr(post.PostedAt),
		post.MastodonURL, formatTime(post.CreatedAt), formatTime(post.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert post %s: %w", post.ID, err)
	}
	return nil
}

// GetPost returns the post with the given ID or ErrPostNotFound.
func (s *Store) GetPost(ctx context.Context, postID string) (*Post, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT id, notion_url, title, content, category, hashtags,
		       status, posted_at, mastodon_url, created_at, updated_at
		FROM posts WHERE id = ?`, postID)

	post, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", postID, err)
	}
	return post, nil
}

// GetPostsByStatus returns all posts with the given status.
func (s *Store) GetPostsByStatus(ctx context.Context, status string) ([]*Post, error) {
	return s.queryPosts(ctx, `
		SELECT id, notion_url, title, content, category, hashtags,
		       status, posted_at, mastodon_url, created_at, updated_at
		FROM posts WHERE status = ? ORDER BY created_at DESC`, status)
}

// GetAllPosts returns every post, newest first.
func (s *Store) GetAllPosts(ctx context.Context) ([]*Post, error) {
	return s.queryPosts(ctx, `
		SELECT id, notion_url, title, content, category, hashtags,
		       status, posted_at, mastodon_url, created_at, updated_at
		FROM posts ORDER BY created_at DESC`)
}

func (s *Store) queryPosts(ctx context.Context, query string, args ...any) ([]*Post, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// DeleteChunksForPost removes a post's chunks along with their FTS
// entries (via trigger), embedding blobs, and vector graph entries.
func (s *Store) DeleteChunksForPost(ctx context.Context, postID string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx, `SELECT id FROM chunks WHERE post_id = ?`, postID)
	if err != nil {
		return fmt.Errorf("list chunks for post %s: %w", postID, err)
	}
	var chunkIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan chunk id: %w", err)
		}
		chunkIDs = append(chunkIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	if len(chunkIDs) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := make([]string, len(chunkIDs))
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	in := strings.Join(placeholders, ",")

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM embeddings WHERE chunk_id IN (%s)", in), args...); err != nil {
		return fmt.Errorf("delete embeddings for post %s: %w", postID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE post_id = ?`, postID); err != nil {
		return fmt.Errorf("delete chunks for post %s: %w", postID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk delete: %w", err)
	}

	if s.vec != nil {
		s.vec.remove(chunkIDs)
	}
	return nil
}

// InsertChunk inserts a chunk and returns its rowid. The FTS index is
// updated by trigger in the same statement transaction.
func (s *Store) InsertChunk(ctx context.Context, chunk *Chunk) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO chunks (post_id, chunk_index, content) VALUES (?, ?, ?)`,
		chunk.PostID, chunk.Index, chunk.Content)
	if err != nil {
		return 0, fmt.Errorf("insert chunk for post %s: %w", chunk.PostID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("chunk rowid: %w", err)
	}
	chunk.ID = id
	return id, nil
}

// StoreEmbedding persists a chunk embedding and adds it to the vector
// graph. A no-op when vector search is disabled. A vector of the wrong
// length returns ErrDimensionMismatch.
func (s *Store) StoreEmbedding(ctx context.Context, chunkID int64, embedding []float32) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if s.vec == nil {
		return nil
	}
	if len(embedding) != s.vec.dims {
		return ErrDimensionMismatch{Expected: s.vec.dims, Got: len(embedding)}
	}

	if _, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO embeddings (chunk_id, embedding) VALUES (?, ?)`,
		chunkID, encodeVector(embedding)); err != nil {
		return fmt.Errorf("store embedding for chunk %d: %w", chunkID, err)
	}
	return s.vec.add(chunkID, embedding)
}

// LexicalSearch runs an FTS5 MATCH query ranked by BM25. FTS5 reports
// better matches as more negative bm25() values; scores are negated so
// higher is better. A query FTS5 cannot parse yields an empty result,
// not an error.
func (s *Store) LexicalSearch(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT c.id, c.post_id, c.content, bm25(chunks_fts) AS score,
		       p.title, p.category
		FROM chunks_fts
		JOIN chunks c ON chunks_fts.rowid = c.id
		JOIN posts p ON c.post_id = p.id
		WHERE chunks_fts MATCH ?
		ORDER BY score
		LIMIT ?`, query, limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
			return nil, nil
		}
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var score float64
		var category sql.NullString
		if err := rows.Scan(&r.ChunkID, &r.PostID, &r.Content, &score, &r.Title, &category); err != nil {
			return nil, fmt.Errorf("scan lexical result: %w", err)
		}
		r.Category = category.String
		r.Score = -score
		r.BM25Score = -score
		results = append(results, r)
	}
	return results, rows.Err()
}

// VectorSearch returns the chunks nearest to the query embedding,
// scored as 1 - cosine distance. Returns empty results when vector
// search is disabled.
func (s *Store) VectorSearch(ctx context.Context, embedding []float32, limit int) ([]SearchResult, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if s.vec == nil {
		return nil, nil
	}

	hits, err := s.vec.search(embedding, limit)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, hit := range hits {
		var r SearchResult
		var category sql.NullString
		err := db.QueryRowContext(ctx, `
			SELECT c.id, c.post_id, c.content, p.title, p.category
			FROM chunks c
			JOIN posts p ON c.post_id = p.id
			WHERE c.id = ?`, hit.ChunkID).
			Scan(&r.ChunkID, &r.PostID, &r.Content, &r.Title, &category)
		if err == sql.ErrNoRows {
			// Graph entry for a chunk deleted out from under us.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load vector hit %d: %w", hit.ChunkID, err)
		}
		r.Category = category.String
		r.Score = 1.0 - float64(hit.Distance)
		r.SemanticScore = r.Score
		results = append(results, r)
	}
	return results, nil
}

// IsPosted reports whether the post exists and has been published.
func (s *Store) IsPosted(ctx context.Context, postID string) (bool, error) {
	db, err := s.conn()
	if err != nil {
		return false, err
	}

	var status string
	err = db.QueryRowContext(ctx, `SELECT status FROM posts WHERE id = ?`, postID).Scan(&status)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check posted status: %w", err)
	}
	return status == StatusPosted, nil
}

// MarkAsPosted records a successful publish. Idempotent: re-marking an
// already posted post simply overwrites the same fields. A zero
// postedAt defaults to the current time.
func (s *Store) MarkAsPosted(ctx context.Context, postID, mastodonURL string, postedAt time.Time) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	if postedAt.IsZero() {
		postedAt = time.Now().UTC()
	}

	_, err = db.ExecContext(ctx, `
		UPDATE posts
		SET status = ?, mastodon_url = ?, posted_at = ?, updated_at = ?
		WHERE id = ?`,
		StatusPosted, mastodonURL, formatTime(postedAt),
		formatTime(time.Now().UTC()), postID)
	if err != nil {
		return fmt.Errorf("mark post %s as posted: %w", postID, err)
	}
	return nil
}

// CountChunks returns the number of indexed chunks.
func (s *Store) CountChunks(ctx context.Context) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// CountPosts returns the number of stored posts.
func (s *Store) CountPosts(ctx context.Context) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

// Save checkpoints the WAL and exports the vector graph.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return ErrNotConnected
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	if s.vec != nil && s.cfg.VectorPath != "" {
		if err := s.vec.save(s.cfg.VectorPath); err != nil {
			return fmt.Errorf("save vector index: %w", err)
		}
	}
	return nil
}

// Close persists pending state and closes the database. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}
	s.connected = false

	if s.vec != nil && s.cfg.VectorPath != "" {
		if err := s.vec.save(s.cfg.VectorPath); err != nil {
			slog.Warn("vector index save on close failed", slog.String("error", err.Error()))
		}
	}

	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*Post, error) {
	var p Post
	var notionURL, category, hashtags, postedAt, mastodonURL sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &notionURL, &p.Title, &p.Content, &category,
		&hashtags, &p.Status, &postedAt, &mastodonURL, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	p.NotionURL = notionURL.String
	p.Category = category.String
	p.MastodonURL = mastodonURL.String

	if hashtags.Valid && hashtags.String != "" {
		if err := json.Unmarshal([]byte(hashtags.String), &p.Hashtags); err != nil {
			return nil, fmt.Errorf("unmarshal hashtags: %w", err)
		}
	}
	if postedAt.Valid && postedAt.String != "" {
		t, err := parseTime(postedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse posted_at: %w", err)
		}
		p.PostedAt = &t
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &p, nil
}
