package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/postdex/postdex/internal/store"
	"github.com/postdex/postdex/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index statistics and post listing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, statusFilter)
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Only list posts with this status (draft, ready, posted)")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, statusFilter string) error {
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	printer := ui.NewPrinter(cmd.OutOrStdout())

	postCount, err := app.store.CountPosts(ctx)
	if err != nil {
		return err
	}
	chunkCount, err := app.store.CountChunks(ctx)
	if err != nil {
		return err
	}

	printer.Headerf("Postdex index")
	printer.Successf("%d posts, %d chunks", postCount, chunkCount)
	if !app.store.VectorEnabled() {
		printer.Warnf("Vector search disabled (lexical only)")
	}

	var posts []*store.Post
	if statusFilter != "" {
		posts, err = app.store.GetPostsByStatus(ctx, statusFilter)
	} else {
		posts, err = app.store.GetAllPosts(ctx)
	}
	if err != nil {
		return err
	}

	printer.Posts(posts)
	return nil
}
