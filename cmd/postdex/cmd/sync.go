package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/postdex/postdex/internal/syncer"
	"github.com/postdex/postdex/internal/ui"
)

type syncOptions struct {
	status     string
	noProgress bool
}

func newSyncCmd() *cobra.Command {
	var opts syncOptions

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync posts from Notion into the local index",
		Long: `Sync pulls posts from the configured Notion database, chunks
their content, and rebuilds the lexical and vector indexes.

Examples:
  postdex sync
  postdex sync --status ready`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.status, "status", "", "Only sync posts with this status (draft, ready, posted)")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable the progress bar")

	return cmd
}

func runSync(ctx context.Context, cmd *cobra.Command, opts syncOptions) error {
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	provider, err := app.notionClient()
	if err != nil {
		return err
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	sync := syncer.New(provider, app.store, app.embedder, nil, syncer.Config{
		LockPath: app.syncLockPath(),
	})

	var bar *progressbar.ProgressBar
	if !opts.noProgress && ui.IsTTY(cmd.OutOrStdout()) && !ui.DetectCI() {
		sync.OnProgress = func(done, total int) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("syncing"),
					progressbar.OptionSetWriter(cmd.OutOrStdout()),
					progressbar.OptionClearOnFinish(),
				)
			}
			_ = bar.Set(done)
		}
	}

	var stats syncer.Stats
	if opts.status != "" {
		stats, err = sync.SyncByStatus(ctx, opts.status)
	} else {
		stats, err = sync.SyncAll(ctx)
	}
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		if errors.Is(err, syncer.ErrSyncLocked) {
			return fmt.Errorf("another sync is already running")
		}
		return err
	}

	printer.SyncStats(stats)
	return nil
}
