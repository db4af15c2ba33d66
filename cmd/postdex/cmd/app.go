package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/postdex/postdex/internal/config"
	"github.com/postdex/postdex/internal/embed"
	"github.com/postdex/postdex/internal/mastodon"
	"github.com/postdex/postdex/internal/notion"
	"github.com/postdex/postdex/internal/rag"
	"github.com/postdex/postdex/internal/search"
	"github.com/postdex/postdex/internal/store"
)

// app bundles the wired components commands operate on.
type app struct {
	cfg      *config.Config
	store    *store.Store
	embedder embed.Embedder
	hybrid   *search.Hybrid
	rag      *rag.RAG
}

// openApp loads configuration and opens the store, embedder, and
// search stack. When the configured embedding provider is unreachable
// it falls back to static embeddings so lexical search keeps working.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	st := store.New(store.Config{
		Path:       cfg.DatabasePath,
		VectorPath: cfg.VectorPath,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err := st.Open(ctx); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	embedder, err := embed.New(ctx, embed.Config{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Host:       cfg.Embedding.Host,
		BatchSize:  cfg.Embedding.BatchSize,
		CacheSize:  cfg.Embedding.CacheSize,
	})
	if err != nil {
		slog.Warn("embedding provider unavailable, falling back to static embeddings",
			slog.String("provider", cfg.Embedding.Provider),
			slog.String("error", err.Error()))
		embedder, err = embed.New(ctx, embed.Config{
			Provider:   embed.ProviderStatic,
			Dimensions: cfg.Embedding.Dimensions,
			CacheSize:  cfg.Embedding.CacheSize,
		})
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("create embedder: %w", err)
		}
	}

	hybrid := search.New(st, embedder, search.Config{
		Alpha: cfg.Search.Alpha,
		K:     cfg.Search.RRFK,
	})

	return &app{
		cfg:      cfg,
		store:    st,
		embedder: embedder,
		hybrid:   hybrid,
		rag:      rag.New(st, hybrid),
	}, nil
}

func (a *app) Close() {
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// notionClient builds the Notion provider from config, failing when
// credentials are missing.
func (a *app) notionClient() (*notion.Client, error) {
	if a.cfg.Notion.APIKey == "" {
		return nil, fmt.Errorf("notion.api_key is not configured (set POSTDEX_NOTION_API_KEY)")
	}
	if a.cfg.Notion.DatabaseID == "" {
		return nil, fmt.Errorf("notion.database_id is not configured (set POSTDEX_NOTION_DATABASE_ID)")
	}
	return notion.NewClient(notion.Config{
		APIKey:     a.cfg.Notion.APIKey,
		DatabaseID: a.cfg.Notion.DatabaseID,
	}), nil
}

// mastodonPoster builds the Mastodon sink from config, failing when
// credentials are missing.
func (a *app) mastodonPoster() (*mastodon.Poster, error) {
	if a.cfg.Mastodon.InstanceURL == "" {
		return nil, fmt.Errorf("mastodon.instance_url is not configured (set POSTDEX_MASTODON_URL)")
	}
	if a.cfg.Mastodon.AccessToken == "" {
		return nil, fmt.Errorf("mastodon.access_token is not configured (set POSTDEX_MASTODON_TOKEN)")
	}
	return mastodon.NewPoster(a.cfg.Mastodon.InstanceURL, a.cfg.Mastodon.AccessToken), nil
}

// syncLockPath returns the flock path guarding sync runs, next to the
// database file. In-memory stores skip locking.
func (a *app) syncLockPath() string {
	if a.cfg.DatabasePath == "" {
		return ""
	}
	return filepath.Join(filepath.Dir(a.cfg.DatabasePath), "sync.lock")
}
