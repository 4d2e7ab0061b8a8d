package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/termfocus/termfocus/internal/client"
	"github.com/termfocus/termfocus/internal/session"
)

func newFocusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "focus WINDOW_ID",
		Short: "Bring a tracked window to the front and mark it seen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, _, err := baseURL(cmd)
			if err != nil {
				return err
			}
			if err := client.NewHTTPClient(base).Focus(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "focused "+args[0])
			return nil
		},
	}
}

func newSeenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seen [WINDOW_ID]",
		Short: "Clear the unseen flag of one window, or of all windows",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, _, err := baseURL(cmd)
			if err != nil {
				return err
			}
			c := client.NewHTTPClient(base)
			if len(args) == 1 {
				if err := c.MarkSeen(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "seen "+args[0])
				return nil
			}
			n, err := c.MarkAllSeen(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d\n", n)
			return nil
		},
	}
}

// listEntry is the printed form of a session.
type listEntry struct {
	WindowID string `yaml:"window_id"         json:"window_id"`
	Title    string `yaml:"title"             json:"title"`
	Message  string `yaml:"message,omitempty" json:"message,omitempty"`
	Unseen   bool   `yaml:"unseen"            json:"unseen"`
	Updated  string `yaml:"updated"           json:"updated"`
}

type listResult struct {
	Unseen   int         `yaml:"unseen"   json:"unseen"`
	Total    int         `yaml:"total"    json:"total"`
	Sessions []listEntry `yaml:"sessions" json:"sessions"`
}

func newListResult(m session.RenderModel) listResult {
	out := listResult{
		Unseen:   m.BadgeCount,
		Total:    m.Total,
		Sessions: make([]listEntry, 0, len(m.Entries)),
	}
	for _, e := range m.Entries {
		out.Sessions = append(out.Sessions, listEntry{
			WindowID: e.WindowID,
			Title:    e.Title,
			Message:  e.Message,
			Unseen:   e.Unseen,
			Updated:  e.UpdatedAt.Format(time.RFC3339),
		})
	}
	return out
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print tracked sessions in registration order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			base, _, err := baseURL(cmd)
			if err != nil {
				return err
			}
			m, err := client.NewHTTPClient(base).Sessions(cmd.Context())
			if err != nil {
				return err
			}
			result := newListResult(m)

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(result); err != nil {
					return fmt.Errorf("yaml encode: %w", err)
				}
				return enc.Close()
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				enc.SetEscapeHTML(false)
				if err := enc.Encode(result); err != nil {
					return fmt.Errorf("json encode: %w", err)
				}
				return nil
			default:
				return fmt.Errorf("unsupported format: %s (use yaml or json)", format)
			}
		},
	}
	cmd.Flags().String("format", "yaml", "Output format: yaml or json")
	return cmd
}
