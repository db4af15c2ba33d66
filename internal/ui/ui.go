// Package ui renders Postdex CLI output with terminal-aware styling.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/postdex/postdex/internal/rag"
	"github.com/postdex/postdex/internal/store"
	"github.com/postdex/postdex/internal/syncer"
)

// Printer writes formatted output to a terminal or pipe.
type Printer struct {
	out    io.Writer
	styles Styles
}

// NewPrinter creates a Printer for out. Color is disabled when out is
// not a terminal or NO_COLOR is set.
func NewPrinter(out io.Writer) *Printer {
	noColor := DetectNoColor() || !IsTTY(out)
	return &Printer{out: out, styles: GetStyles(noColor)}
}

// NewPlainPrinter creates a Printer with styling disabled.
func NewPlainPrinter(out io.Writer) *Printer {
	return &Printer{out: out, styles: NoColorStyles()}
}

func (p *Printer) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

// Successf prints a success line.
func (p *Printer) Successf(format string, args ...any) {
	p.printf("%s\n", p.styles.Success.Render(fmt.Sprintf(format, args...)))
}

// Warnf prints a warning line.
func (p *Printer) Warnf(format string, args ...any) {
	p.printf("%s\n", p.styles.Warning.Render(fmt.Sprintf(format, args...)))
}

// Errorf prints an error line.
func (p *Printer) Errorf(format string, args ...any) {
	p.printf("%s\n", p.styles.Error.Render(fmt.Sprintf(format, args...)))
}

// Headerf prints a header line.
func (p *Printer) Headerf(format string, args ...any) {
	p.printf("%s\n", p.styles.Header.Render(fmt.Sprintf(format, args...)))
}

// SearchResults renders chunk-level search hits.
func (p *Printer) SearchResults(results []store.SearchResult) {
	if len(results) == 0 {
		p.printf("%s\n", p.styles.Dim.Render("No results."))
		return
	}
	for i, r := range results {
		p.printf("%s %s %s\n",
			p.styles.Label.Render(fmt.Sprintf("%2d.", i+1)),
			p.styles.Title.Render(r.Title),
			p.styles.Score.Render(fmt.Sprintf("(score %.4f)", r.Score)))
		if r.Category != "" {
			p.printf("    %s\n", p.styles.Label.Render(r.Category))
		}
		p.printf("    %s\n", snippet(r.Content, 160))
	}
}

// QueryResults renders post-level retrieval hits.
func (p *Printer) QueryResults(results []rag.QueryResult) {
	if len(results) == 0 {
		p.printf("%s\n", p.styles.Dim.Render("No results."))
		return
	}
	for i, r := range results {
		p.printf("%s %s %s\n",
			p.styles.Label.Render(fmt.Sprintf("%2d.", i+1)),
			p.styles.Title.Render(r.Post.Title),
			p.styles.Score.Render(fmt.Sprintf("(score %.4f)", r.Score)))
		if r.Post.Category != "" {
			p.printf("    %s\n", p.styles.Label.Render(r.Post.Category))
		}
		p.printf("    %s\n", snippet(r.MatchedChunk, 160))
	}
}

// Posts renders a post listing grouped by status.
func (p *Printer) Posts(posts []*store.Post) {
	if len(posts) == 0 {
		p.printf("%s\n", p.styles.Dim.Render("No posts."))
		return
	}
	for _, post := range posts {
		status := p.styles.Label.Render(post.Status)
		switch post.Status {
		case store.StatusPosted:
			status = p.styles.Success.Render(post.Status)
		case store.StatusReady:
			status = p.styles.Warning.Render(post.Status)
		}
		p.printf("%s  %s\n", status, p.styles.Title.Render(post.Title))
		if post.MastodonURL != "" {
			p.printf("        %s\n", p.styles.Dim.Render(post.MastodonURL))
		}
	}
}

// SyncStats renders a sync run summary.
func (p *Printer) SyncStats(stats syncer.Stats) {
	line := fmt.Sprintf("Synced %d/%d posts, %d chunks, %d embeddings",
		stats.Synced, stats.Total, stats.Chunks, stats.Embeddings)
	if stats.Errors > 0 {
		p.Warnf("%s, %d errors", line, stats.Errors)
		return
	}
	p.Successf("%s", line)
}

// snippet truncates s to max runes on a single line.
func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// IsTTY reports whether w is an interactive terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor reports whether the NO_COLOR convention is in effect.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI reports whether we are running under a CI environment.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
