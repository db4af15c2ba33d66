// Package config loads Postdex configuration from YAML files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete Postdex configuration.
type Config struct {
	// DatabasePath is the SQLite database file. Empty means in-memory.
	DatabasePath string `yaml:"database_path"`
	// VectorPath is where the vector index is persisted. Empty disables
	// persistence; the index is rebuilt from stored embeddings.
	VectorPath string `yaml:"vector_path"`

	Notion    NotionConfig    `yaml:"notion"`
	Mastodon  MastodonConfig  `yaml:"mastodon"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Log       LogConfig       `yaml:"log"`
}

// NotionConfig configures the Notion content provider.
type NotionConfig struct {
	APIKey     string `yaml:"api_key"`
	DatabaseID string `yaml:"database_id"`
}

// MastodonConfig configures the Mastodon publish sink.
type MastodonConfig struct {
	InstanceURL string `yaml:"instance_url"`
	AccessToken string `yaml:"access_token"`
	// Visibility is the default toot visibility: public, unlisted,
	// private, or direct.
	Visibility string `yaml:"visibility"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider selects the backend: "ollama" (default) or "static".
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	// Host is the Ollama API endpoint. Empty uses the default
	// http://localhost:11434.
	Host      string `yaml:"host"`
	BatchSize int    `yaml:"batch_size"`
	CacheSize int    `yaml:"cache_size"`
}

// SearchConfig configures hybrid search fusion.
type SearchConfig struct {
	// Alpha is the semantic weight (0.0-1.0). Lexical weight is
	// 1-alpha. A pointer distinguishes "unset" from an explicit 0,
	// which means pure lexical ranking.
	Alpha *float64 `yaml:"alpha"`
	// RRFK is the reciprocal rank fusion smoothing constant.
	RRFK int `yaml:"rrf_k"`
}

// Alpha returns the effective semantic weight, 0.5 when unset.
func (c *Config) Alpha() float64 {
	if c.Search.Alpha == nil {
		return 0.5
	}
	return *c.Search.Alpha
}

// WatcherConfig configures the publish watcher.
type WatcherConfig struct {
	// PollInterval is a time.ParseDuration string, e.g. "60s".
	PollInterval string `yaml:"poll_interval"`
}

// PollInterval returns the parsed watcher poll interval.
func (c *Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.Watcher.PollInterval)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath: defaultDataPath("postdex.db"),
		VectorPath:   defaultDataPath("postdex.hnsw"),
		Mastodon: MastodonConfig{
			Visibility: "public",
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Dimensions: 384,
			BatchSize:  32,
			CacheSize:  1000,
		},
		Search: SearchConfig{
			RRFK: 60,
		},
		Watcher: WatcherConfig{
			PollInterval: "60s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// defaultDataPath returns a file path under ~/.postdex.
func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".postdex", name)
	}
	return filepath.Join(home, ".postdex", name)
}

// UserConfigPath returns the user configuration file path, following
// the XDG base directory convention.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "postdex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "postdex", "config.yaml")
	}
	return filepath.Join(home, ".config", "postdex", "config.yaml")
}

// Load builds the effective configuration in order of increasing
// precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/postdex/config.yaml)
//  3. The explicit file at path, when non-empty
//  4. Environment variables (POSTDEX_*)
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if userPath := UserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, err
		}
	}

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML merges non-zero values from a YAML file into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.VectorPath != "" {
		c.VectorPath = other.VectorPath
	}

	if other.Notion.APIKey != "" {
		c.Notion.APIKey = other.Notion.APIKey
	}
	if other.Notion.DatabaseID != "" {
		c.Notion.DatabaseID = other.Notion.DatabaseID
	}

	if other.Mastodon.InstanceURL != "" {
		c.Mastodon.InstanceURL = other.Mastodon.InstanceURL
	}
	if other.Mastodon.AccessToken != "" {
		c.Mastodon.AccessToken = other.Mastodon.AccessToken
	}
	if other.Mastodon.Visibility != "" {
		c.Mastodon.Visibility = other.Mastodon.Visibility
	}

	if other.Embedding.Provider != "" {
		c.Embedding.Provider = other.Embedding.Provider
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}
	if other.Embedding.Host != "" {
		c.Embedding.Host = other.Embedding.Host
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.CacheSize != 0 {
		c.Embedding.CacheSize = other.Embedding.CacheSize
	}

	if other.Search.Alpha != nil {
		c.Search.Alpha = other.Search.Alpha
	}
	if other.Search.RRFK != 0 {
		c.Search.RRFK = other.Search.RRFK
	}

	if other.Watcher.PollInterval != "" {
		c.Watcher.PollInterval = other.Watcher.PollInterval
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
}

// applyEnvOverrides applies POSTDEX_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("POSTDEX_DB_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("POSTDEX_VECTOR_PATH"); v != "" {
		c.VectorPath = v
	}
	if v := os.Getenv("POSTDEX_NOTION_API_KEY"); v != "" {
		c.Notion.APIKey = v
	}
	if v := os.Getenv("POSTDEX_NOTION_DATABASE_ID"); v != "" {
		c.Notion.DatabaseID = v
	}
	if v := os.Getenv("POSTDEX_MASTODON_URL"); v != "" {
		c.Mastodon.InstanceURL = v
	}
	if v := os.Getenv("POSTDEX_MASTODON_TOKEN"); v != "" {
		c.Mastodon.AccessToken = v
	}
	if v := os.Getenv("POSTDEX_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("POSTDEX_OLLAMA_HOST"); v != "" {
		c.Embedding.Host = v
	}
	if v := os.Getenv("POSTDEX_ALPHA"); v != "" {
		if alpha, err := strconv.ParseFloat(v, 64); err == nil && alpha >= 0 && alpha <= 1 {
			c.Search.Alpha = &alpha
		}
	}
}

// expandPaths expands a leading ~ in file paths.
func (c *Config) expandPaths() {
	c.DatabasePath = expandHome(c.DatabasePath)
	c.VectorPath = expandHome(c.VectorPath)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Search.Alpha != nil && (*c.Search.Alpha < 0 || *c.Search.Alpha > 1) {
		return fmt.Errorf("search.alpha must be in [0, 1], got %g", *c.Search.Alpha)
	}
	if c.Search.RRFK <= 0 {
		return fmt.Errorf("search.rrf_k must be positive, got %d", c.Search.RRFK)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions)
	}
	if c.Watcher.PollInterval != "" {
		if d, err := time.ParseDuration(c.Watcher.PollInterval); err != nil || d <= 0 {
			return fmt.Errorf("watcher.poll_interval must be a positive duration, got %q", c.Watcher.PollInterval)
		}
	}
	switch c.Mastodon.Visibility {
	case "", "public", "unlisted", "private", "direct":
	default:
		return fmt.Errorf("mastodon.visibility must be public, unlisted, private, or direct, got %q", c.Mastodon.Visibility)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
