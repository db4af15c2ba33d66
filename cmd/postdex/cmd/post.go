package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/postdex/postdex/internal/mastodon"
	"github.com/postdex/postdex/internal/store"
	"github.com/postdex/postdex/internal/ui"
)

type postOptions struct {
	visibility string
	dryRun     bool
	force      bool
}

func newPostCmd() *cobra.Command {
	var opts postOptions

	cmd := &cobra.Command{
		Use:   "post <post-id>",
		Short: "Publish a post to Mastodon",
		Long: `Post publishes a synced post to the configured Mastodon instance,
appending its hashtags, and records the resulting status URL.

Examples:
  postdex post abc123
  postdex post abc123 --dry-run
  postdex post abc123 --visibility unlisted`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPost(cmd.Context(), cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.visibility, "visibility", "", "Toot visibility: public, unlisted, private, direct (default from config)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print the formatted status without posting")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Post even if already marked as posted")

	return cmd
}

func runPost(ctx context.Context, cmd *cobra.Command, postID string, opts postOptions) error {
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	printer := ui.NewPrinter(cmd.OutOrStdout())

	post, err := app.store.GetPost(ctx, postID)
	if err != nil {
		return fmt.Errorf("load post %s: %w", postID, err)
	}

	if opts.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), mastodon.FormatStatus(post))
		return nil
	}

	if !opts.force {
		posted, err := app.store.IsPosted(ctx, postID)
		if err != nil {
			return err
		}
		if posted {
			return fmt.Errorf("post %s is already posted (use --force to repost)", postID)
		}
	}

	poster, err := app.mastodonPoster()
	if err != nil {
		return err
	}

	visibility := opts.visibility
	if visibility == "" {
		visibility = app.cfg.Mastodon.Visibility
	}

	result, err := poster.PostStatus(ctx, post, visibility)
	if err != nil {
		return fmt.Errorf("publish to mastodon: %w", err)
	}

	if err := app.store.MarkAsPosted(ctx, postID, result.URL, time.Time{}); err != nil {
		return fmt.Errorf("mark as posted: %w", err)
	}

	if provider, err := app.notionClient(); err == nil {
		if err := provider.UpdateStatus(ctx, postID, store.StatusPosted, result.URL); err != nil {
			slog.Warn("notion status update failed",
				slog.String("post_id", postID),
				slog.String("error", err.Error()))
		}
	}

	printer.Successf("Posted %q: %s", post.Title, result.URL)
	return nil
}
