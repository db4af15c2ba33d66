package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/postdex/postdex/internal/store"
	"github.com/postdex/postdex/internal/ui"
	"github.com/postdex/postdex/internal/watcher"
)

type watchOptions struct {
	interval time.Duration
	once     bool
}

func newWatchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll Notion for ready posts and publish them",
		Long: `Watch polls the Notion database for posts marked ready and
publishes each one to Mastodon, updating the Notion status when done.

Runs until interrupted. Use --once for a single poll cycle.

Examples:
  postdex watch
  postdex watch --interval 5m
  postdex watch --once`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.interval, "interval", 0, "Poll interval (default from config)")
	cmd.Flags().BoolVar(&opts.once, "once", false, "Run a single poll cycle and exit")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, opts watchOptions) error {
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	provider, err := app.notionClient()
	if err != nil {
		return err
	}
	sink, err := app.mastodonPoster()
	if err != nil {
		return err
	}

	interval := opts.interval
	if interval <= 0 {
		interval = app.cfg.PollInterval()
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	w := watcher.New(provider, app.store, sink, watcher.Config{
		PollInterval: interval,
		Visibility:   app.cfg.Mastodon.Visibility,
	})
	w.OnPost = func(post *store.Post, url string) {
		printer.Successf("Posted %q: %s", post.Title, url)
	}
	w.OnError = func(post *store.Post, err error) {
		printer.Errorf("Failed to post %q: %v", post.Title, err)
	}

	if opts.once {
		stats, err := w.PollOnce(ctx)
		if err != nil {
			return err
		}
		printer.Headerf("Checked %d posts: %d posted, %d skipped, %d errors",
			stats.Checked, stats.Posted, stats.Skipped, stats.Errors)
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printer.Headerf("Watching for ready posts every %s (Ctrl-C to stop)", interval)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch loop: %w", err)
	}
	return nil
}
