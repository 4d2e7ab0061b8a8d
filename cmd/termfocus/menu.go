package main

import (
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/termfocus/termfocus/internal/app"
	"github.com/termfocus/termfocus/internal/client"
	"github.com/termfocus/termfocus/internal/logging"
)

func newMenuCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Open the interactive session menu",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			base, cfg, err := baseURL(cmd)
			if err != nil {
				return err
			}

			// stderr belongs to the TUI; log only when a file is configured.
			if cfg.Logging.File != "" {
				logging.Init(loggingConfig(cfg.Logging))
				defer logging.Close()
			} else {
				logging.InitWriter(io.Discard, loggingConfig(cfg.Logging))
			}

			wsc := client.NewWSClient(client.WSURL(base))
			defer wsc.Close()

			m := app.New(wsc, client.NewHTTPClient(base))
			_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		},
	}
}
