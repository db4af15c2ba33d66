package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/postdex/postdex/internal/rag"
	"github.com/postdex/postdex/internal/ui"
)

type askOptions struct {
	limit   int
	sources bool
}

func newAskCmd() *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Retrieve context for a question",
		Long: `Ask retrieves the most relevant posts for a question and prints
them as a numbered context block, ready to paste into an LLM prompt.

Examples:
  postdex ask "what did I write about kinesin?"
  postdex ask "chaos theory" --limit 5
  postdex ask "gardening" --sources`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", rag.DefaultContextLimit, "Maximum number of posts in the context")
	cmd.Flags().BoolVar(&opts.sources, "sources", false, "List the matched posts with scores instead of the context block")

	return cmd
}

func runAsk(ctx context.Context, cmd *cobra.Command, question string, opts askOptions) error {
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if opts.sources {
		results, err := app.rag.Query(ctx, question, opts.limit)
		if err != nil {
			return fmt.Errorf("retrieve posts: %w", err)
		}
		ui.NewPrinter(cmd.OutOrStdout()).QueryResults(results)
		return nil
	}

	block, err := app.rag.Context(ctx, question, opts.limit)
	if err != nil {
		return fmt.Errorf("retrieve context: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), block)
	return nil
}
