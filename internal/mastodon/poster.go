// Package mastodon publishes posts to a Mastodon-compatible instance.
package mastodon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/postdex/postdex/internal/store"
)

// Visibility values accepted by the statuses API.
const (
	VisibilityPublic   = "public"
	VisibilityUnlisted = "unlisted"
	VisibilityPrivate  = "private"
	VisibilityDirect   = "direct"
)

// Result identifies a published status.
type Result struct {
	ID  string
	URL string
}

// Poster posts statuses to a single Mastodon instance.
type Poster struct {
	instanceURL string
	accessToken string
	client      *http.Client
}

// NewPoster creates a Poster for the given instance.
func NewPoster(instanceURL, accessToken string) *Poster {
	return &Poster{
		instanceURL: strings.TrimRight(instanceURL, "/"),
		accessToken: accessToken,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

type statusResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Post publishes a status. An empty visibility defaults to public;
// inReplyTo threads the status under an existing one when non-empty.
func (p *Poster) Post(ctx context.Context, content, visibility, inReplyTo string) (*Result, error) {
	if visibility == "" {
		visibility = VisibilityPublic
	}

	form := url.Values{}
	form.Set("status", content)
	form.Set("visibility", visibility)
	if inReplyTo != "" {
		form.Set("in_reply_to_id", inReplyTo)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.instanceURL+"/api/v1/statuses", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.accessToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("post status: status %d: %s", resp.StatusCode, string(body))
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return &Result{ID: status.ID, URL: status.URL}, nil
}

var hashtagPattern = regexp.MustCompile(`#(\w+)`)

// PostStatus publishes a stored post, appending its hashtags that are
// not already written into the content.
func (p *Poster) PostStatus(ctx context.Context, post *store.Post, visibility string) (*Result, error) {
	return p.Post(ctx, FormatStatus(post), visibility, "")
}

// FormatStatus renders a post's content with missing hashtags appended
// on their own line.
func FormatStatus(post *store.Post) string {
	content := post.Content
	if len(post.Hashtags) == 0 {
		return content
	}

	existing := make(map[string]bool)
	for _, match := range hashtagPattern.FindAllStringSubmatch(content, -1) {
		existing[strings.ToLower(match[1])] = true
	}

	var missing []string
	for _, tag := range post.Hashtags {
		if !existing[strings.ToLower(tag)] {
			missing = append(missing, "#"+tag)
		}
	}
	if len(missing) == 0 {
		return content
	}

	if !strings.HasSuffix(content, "\n") {
		content += "\n\n"
	} else if !strings.HasSuffix(content, "\n\n") {
		content += "\n"
	}
	return content + strings.Join(missing, " ")
}

// VerifyCredentials checks the access token against the instance.
func (p *Poster) VerifyCredentials(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.instanceURL+"/api/v1/accounts/verify_credentials", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("verify credentials: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("verify credentials: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
