package notion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/postdex/postdex/internal/store"
)

// page is the subset of a Notion page the converter needs.
type page struct {
	ID             string              `json:"id"`
	URL            string              `json:"url"`
	CreatedTime    time.Time           `json:"created_time"`
	LastEditedTime time.Time           `json:"last_edited_time"`
	Properties     map[string]property `json:"properties"`
}

// property carries the union of the property shapes we read. Type
// selects which field is populated.
type property struct {
	Type        string        `json:"type"`
	Title       []richText    `json:"title"`
	RichText    []richText    `json:"rich_text"`
	Select      *selectValue  `json:"select"`
	MultiSelect []selectValue `json:"multi_select"`
	Status      *selectValue  `json:"status"`
	URL         *string       `json:"url"`
}

type richText struct {
	PlainText string `json:"plain_text"`
}

type selectValue struct {
	Name string `json:"name"`
}

// titlePropertyNames are tried in order when locating the title.
var titlePropertyNames = []string{"Name", "Title", "Post"}

// pageToPost converts a Notion page into a store.Post. Content missing
// from the properties is fetched from the page's blocks; a page with no
// title or no content is rejected.
func (c *Client) pageToPost(ctx context.Context, pg page) (*store.Post, error) {
	title := pg.title()
	if title == "" {
		return nil, fmt.Errorf("page has no title property")
	}

	content := pg.richTextValue("Content")
	if content == "" {
		var err error
		content, err = c.pageBlockContent(ctx, pg.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch block content: %w", err)
		}
	}
	if content == "" {
		return nil, fmt.Errorf("page has no content")
	}

	// Status may be a status-type or a select-type property.
	status := pg.statusValue("Status")
	if status == "" {
		status = pg.selectValue("Status")
	}
	if status == "" {
		status = store.StatusDraft
	}

	return &store.Post{
		ID:          pg.ID,
		NotionURL:   pg.URL,
		Title:       title,
		Content:     content,
		Category:    pg.selectValue("Category"),
		Hashtags:    pg.multiSelectValues("Hashtags"),
		Status:      strings.ToLower(status),
		MastodonURL: pg.urlValue("Mastodon URL"),
		CreatedAt:   pg.CreatedTime,
		UpdatedAt:   pg.LastEditedTime,
	}, nil
}

func (p page) title() string {
	for _, name := range titlePropertyNames {
		prop, ok := p.Properties[name]
		if ok && prop.Type == "title" {
			return joinPlainText(prop.Title)
		}
	}
	return ""
}

func (p page) richTextValue(name string) string {
	prop, ok := p.Properties[name]
	if !ok || prop.Type != "rich_text" {
		return ""
	}
	return joinPlainText(prop.RichText)
}

func (p page) selectValue(name string) string {
	prop, ok := p.Properties[name]
	if !ok || prop.Type != "select" || prop.Select == nil {
		return ""
	}
	return prop.Select.Name
}

func (p page) statusValue(name string) string {
	prop, ok := p.Properties[name]
	if !ok || prop.Type != "status" || prop.Status == nil {
		return ""
	}
	return prop.Status.Name
}

func (p page) multiSelectValues(name string) []string {
	prop, ok := p.Properties[name]
	if !ok || prop.Type != "multi_select" {
		return nil
	}
	values := make([]string, 0, len(prop.MultiSelect))
	for _, item := range prop.MultiSelect {
		values = append(values, item.Name)
	}
	return values
}

func (p page) urlValue(name string) string {
	prop, ok := p.Properties[name]
	if !ok || prop.Type != "url" || prop.URL == nil {
		return ""
	}
	return *prop.URL
}

func joinPlainText(parts []richText) string {
	var b strings.Builder
	for _, part := range parts {
		b.WriteString(part.PlainText)
	}
	return b.String()
}

type blockListResponse struct {
	Results []block `json:"results"`
}

type block struct {
	Type             string        `json:"type"`
	Paragraph        *blockContent `json:"paragraph"`
	BulletedListItem *blockContent `json:"bulleted_list_item"`
	NumberedListItem *blockContent `json:"numbered_list_item"`
}

type blockContent struct {
	RichText []richText `json:"rich_text"`
}

// pageBlockContent assembles content from a page's blocks for pages
// whose body lives in the page itself rather than a Content property.
func (c *Client) pageBlockContent(ctx context.Context, pageID string) (string, error) {
	var resp blockListResponse
	if err := c.do(ctx, "GET", "/v1/blocks/"+pageID+"/children", nil, &resp); err != nil {
		return "", err
	}

	var parts []string
	for _, blk := range resp.Results {
		switch blk.Type {
		case "paragraph":
			if blk.Paragraph != nil {
				if text := joinPlainText(blk.Paragraph.RichText); text != "" {
					parts = append(parts, text)
				}
			}
		case "bulleted_list_item":
			if blk.BulletedListItem != nil {
				if text := joinPlainText(blk.BulletedListItem.RichText); text != "" {
					parts = append(parts, "- "+text)
				}
			}
		case "numbered_list_item":
			if blk.NumberedListItem != nil {
				if text := joinPlainText(blk.NumberedListItem.RichText); text != "" {
					parts = append(parts, text)
				}
			}
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
