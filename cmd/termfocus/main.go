package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/termfocus/termfocus/internal/config"
	"github.com/termfocus/termfocus/internal/logging"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree. A fresh tree is built per call so tests
// do not share flag state.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "termfocus",
		Short: "Track terminal sessions and jump back to them",
		Long: `termfocus keeps a registry of terminal windows that reported status and
raises the right window when you pick one from the menu.

Start the server, then report from any terminal:
  termfocus serve
  termfocus send "build" "compiling"
  termfocus menu
`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config file (default $TERMFOCUS_CONFIG or ~/.config/termfocus/config.yaml)")
	rootCmd.PersistentFlags().String("url", "", "Server base URL (default derived from config)")

	rootCmd.AddCommand(
		newServeCmd(),
		newMenuCmd(),
		newSendCmd(),
		newFocusCmd(),
		newSeenCmd(),
		newListCmd(),
	)
	return rootCmd
}

// loadConfig resolves the config path from --config and loads it. A missing
// file yields the defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, path, fmt.Errorf("load config: %w", err)
	}
	return cfg, path, nil
}

// baseURL returns --url when set, otherwise the address from config.
func baseURL(cmd *cobra.Command) (string, *config.Config, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return "", nil, err
	}
	if u, _ := cmd.Flags().GetString("url"); u != "" {
		return u, cfg, nil
	}
	return cfg.BaseURL(), cfg, nil
}

func loggingConfig(c config.LoggingConfig) logging.Config {
	return logging.Config{
		Level:      c.Level,
		Format:     c.Format,
		File:       c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}
