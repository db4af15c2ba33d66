package embed

import (
	"context"
	"fmt"
	"time"
)

// Providers accepted by Config.Provider.
const (
	ProviderOllama = "ollama"
	ProviderStatic = "static"
)

// Config selects and configures an embedding provider.
type Config struct {
	Provider   string
	Model      string
	Dimensions int
	Host       string
	BatchSize  int
	CacheSize  int
	Timeout    time.Duration
}

// New builds the configured embedder wrapped in an LRU cache.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)

	switch cfg.Provider {
	case ProviderStatic:
		inner = NewStaticEmbedder(cfg.Dimensions)
	case ProviderOllama, "":
		inner, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.Host,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
