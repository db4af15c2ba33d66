package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/postdex/postdex/internal/rag"
	"github.com/postdex/postdex/internal/ui"
)

func newSimilarCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "similar <post-id>",
		Short: "Find posts similar to an existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimilar(cmd.Context(), cmd, args[0], limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", rag.DefaultQueryLimit, "Maximum number of results")

	return cmd
}

func runSimilar(ctx context.Context, cmd *cobra.Command, postID string, limit int) error {
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	results, err := app.rag.FindSimilar(ctx, postID, limit)
	if err != nil {
		return fmt.Errorf("find similar posts: %w", err)
	}

	ui.NewPrinter(cmd.OutOrStdout()).SearchResults(results)
	return nil
}
