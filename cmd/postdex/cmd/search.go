package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/postdex/postdex/internal/store"
	"github.com/postdex/postdex/internal/ui"
)

type searchOptions struct {
	limit    int
	lexical  bool
	semantic bool
	format   string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed posts",
		Long: `Search indexed posts with hybrid retrieval.

Combines BM25 keyword matching and semantic similarity with
reciprocal rank fusion.

Examples:
  postdex search "molecular motors"
  postdex search "chaos theory" --limit 5
  postdex search "gardening" --lexical --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&opts.lexical, "lexical", false, "Keyword search only")
	cmd.Flags().BoolVar(&opts.semantic, "semantic", false, "Semantic search only")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if opts.lexical && opts.semantic {
		return fmt.Errorf("--lexical and --semantic are mutually exclusive")
	}

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	var results []store.SearchResult
	switch {
	case opts.lexical:
		results, err = app.hybrid.SearchLexical(ctx, query, opts.limit)
	case opts.semantic:
		results, err = app.hybrid.SearchSemantic(ctx, query, opts.limit)
	default:
		results, err = app.hybrid.Search(ctx, query, opts.limit)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	ui.NewPrinter(cmd.OutOrStdout()).SearchResults(results)
	return nil
}
