package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/termfocus/termfocus/internal/client"
	"github.com/termfocus/termfocus/internal/window"
)

const detectTimeout = 5 * time.Second

// detectWindow is replaced in tests.
var detectWindow = func(ctx context.Context, b window.Backend) (string, error) {
	return b.CurrentWindowID(ctx)
}

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send TITLE [MESSAGE]",
		Short: "Report a status event for the current terminal window",
		Long: `Report a status event for a terminal window. Without --window-id the
current window is detected with the configured backend.

A TITLE of "terminate" removes the window from the menu.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runSend,
	}
	cmd.Flags().String("window-id", "", "Window id to report for (default: detect the current window)")
	return cmd
}

func runSend(cmd *cobra.Command, args []string) error {
	base, cfg, err := baseURL(cmd)
	if err != nil {
		return err
	}

	title := args[0]
	message := ""
	if len(args) > 1 {
		message = args[1]
	}

	windowID, _ := cmd.Flags().GetString("window-id")
	if windowID == "" {
		backend, err := window.New(cfg.Window)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), detectTimeout)
		defer cancel()
		windowID, err = detectWindow(ctx, backend)
		if err != nil {
			return fmt.Errorf("detect window (%s): %w", backend.Name(), err)
		}
	}

	result, err := client.NewHTTPClient(base).SendEvent(cmd.Context(), windowID, title, message)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), result)
	return nil
}
