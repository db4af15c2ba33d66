// Package notion fetches posts from a Notion database over HTTP. All
// knowledge of Notion's property shapes (title, rich_text, select,
// multi_select, status, url) is confined here; the rest of the system
// only ever sees store.Post values.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/postdex/postdex/internal/store"
)

const (
	// DefaultBaseURL is the Notion API endpoint.
	DefaultBaseURL = "https://api.notion.com"

	// apiVersion is sent as Notion-Version on every request.
	apiVersion = "2025-09-03"
)

// Config configures the Notion client.
type Config struct {
	// APIKey is the integration token.
	APIKey string

	// DatabaseID identifies the database holding the posts.
	DatabaseID string

	// BaseURL overrides the API endpoint; tests point it at an
	// httptest server.
	BaseURL string

	// Timeout bounds each API request.
	Timeout time.Duration
}

// Client is a Notion API client scoped to a single posts database.
type Client struct {
	cfg          Config
	client       *http.Client
	dataSourceID string
}

// NewClient creates a Notion client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// FetchAll returns every convertible post in the database, following
// cursor pagination. Pages that cannot be converted are skipped with a
// warning.
func (c *Client) FetchAll(ctx context.Context) ([]*store.Post, error) {
	return c.queryPosts(ctx, nil)
}

// FetchByStatus returns posts whose provider-side Status matches the
// given store status.
func (c *Client) FetchByStatus(ctx context.Context, status string) ([]*store.Post, error) {
	filter := map[string]any{
		"property": "Status",
		"select":   map[string]any{"equals": providerStatus(status)},
	}
	return c.queryPosts(ctx, filter)
}

// UpdateStatus sets a page's Status property, and its Mastodon URL
// when non-empty.
func (c *Client) UpdateStatus(ctx context.Context, pageID, status, mastodonURL string) error {
	properties := map[string]any{
		"Status": map[string]any{
			"status": map[string]any{"name": providerStatus(status)},
		},
	}
	if mastodonURL != "" {
		properties["Mastodon URL"] = map[string]any{"url": mastodonURL}
	}

	body := map[string]any{"properties": properties}
	return c.do(ctx, http.MethodPatch, "/v1/pages/"+pageID, body, nil)
}

// providerStatus maps a store status to Notion's capitalized labels
// (draft -> Draft).
func providerStatus(status string) string {
	if status == "" {
		return status
	}
	return strings.ToUpper(status[:1]) + status[1:]
}

type queryResponse struct {
	Results    []page  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

func (c *Client) queryPosts(ctx context.Context, filter map[string]any) ([]*store.Post, error) {
	dataSourceID, err := c.resolveDataSource(ctx)
	if err != nil {
		return nil, err
	}

	var posts []*store.Post
	var cursor *string

	for {
		body := map[string]any{}
		if filter != nil {
			body["filter"] = filter
		}
		if cursor != nil {
			body["start_cursor"] = *cursor
		}

		var resp queryResponse
		path := "/v1/data_sources/" + dataSourceID + "/query"
		if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
			return nil, fmt.Errorf("query data source: %w", err)
		}

		for _, pg := range resp.Results {
			post, err := c.pageToPost(ctx, pg)
			if err != nil {
				slog.Warn("skipping unconvertible Notion page",
					slog.String("page_id", pg.ID),
					slog.String("error", err.Error()))
				continue
			}
			posts = append(posts, post)
		}

		if !resp.HasMore || resp.NextCursor == nil {
			break
		}
		cursor = resp.NextCursor
	}

	return posts, nil
}

type searchResponse struct {
	Results []struct {
		ID     string `json:"id"`
		Parent struct {
			DatabaseID string `json:"database_id"`
		} `json:"parent"`
	} `json:"results"`
}

// resolveDataSource finds the data source backing the configured
// database. Cached after the first lookup.
func (c *Client) resolveDataSource(ctx context.Context) (string, error) {
	if c.dataSourceID != "" {
		return c.dataSourceID, nil
	}

	body := map[string]any{
		"filter": map[string]any{"property": "object", "value": "data_source"},
	}
	var resp searchResponse
	if err := c.do(ctx, http.MethodPost, "/v1/search", body, &resp); err != nil {
		return "", fmt.Errorf("search data sources: %w", err)
	}

	want := strings.ReplaceAll(c.cfg.DatabaseID, "-", "")
	for _, item := range resp.Results {
		if strings.ReplaceAll(item.Parent.DatabaseID, "-", "") == want {
			c.dataSourceID = item.ID
			return c.dataSourceID, nil
		}
	}
	return "", fmt.Errorf("no data source found for database %s", c.cfg.DatabaseID)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Notion-Version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
