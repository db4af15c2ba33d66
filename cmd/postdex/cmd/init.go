package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/postdex/postdex/internal/config"
	"github.com/postdex/postdex/internal/ui"
)

// configTemplate is written by init as a starting point. Commented
// entries show the defaults.
const configTemplate = `# Postdex configuration.
# Values may also come from POSTDEX_* environment variables.

# database_path: ~/.postdex/postdex.db
# vector_path: ~/.postdex/postdex.hnsw

notion:
  api_key: ""
  database_id: ""

mastodon:
  instance_url: ""
  access_token: ""
  # visibility: public

embedding:
  # provider: ollama
  # model: nomic-embed-text
  # dimensions: 384
  # host: http://localhost:11434

# search:
#   alpha: 0.5
#   rrf_k: 60

# watcher:
#   poll_interval: 60s

# log:
#   level: info
`

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Long: `Init writes a commented configuration template to the user config
path (~/.config/postdex/config.yaml) for you to fill in.

Examples:
  postdex init
  postdex init --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	printer := ui.NewPrinter(cmd.OutOrStdout())
	path := config.UserConfigPath()

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	printer.Successf("Wrote %s", path)
	printer.Headerf("Fill in the notion and mastodon credentials, then run 'postdex sync'.")
	return nil
}
