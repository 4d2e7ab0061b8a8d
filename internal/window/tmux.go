package window

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// TmuxPane is one line of `tmux list-panes -a`.
type TmuxPane struct {
	ID          string // e.g. "%12"
	SessionName string // e.g. "main"
	WindowIndex int    // e.g. 2
	PaneIndex   int    // e.g. 0
	PanePID     int    // PID of the shell running inside this pane
	Target      string // Pre-formatted "main:2.0" for tmux commands
}

// Tmux treats tmux panes as windows. Ids are pane ids ("%12") or any target
// tmux accepts ("main:2.0").
type Tmux struct {
	run    Runner
	lookup ProcessLookup
	getenv func(string) string
	pid    func() int
}

func NewTmux() *Tmux {
	return &Tmux{
		run:    ExecRunner,
		lookup: psLookup{},
		getenv: os.Getenv,
		pid:    os.Getpid,
	}
}

func (t *Tmux) Name() string { return "tmux" }

func (t *Tmux) ValidateID(windowID string) error {
	if windowID == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if strings.IndexFunc(windowID, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: window_id must not contain whitespace", ErrInvalidID)
	}
	return nil
}

// CurrentWindowID returns $TMUX_PANE when set. Otherwise it walks the
// process tree upward looking for a pane's shell.
func (t *Tmux) CurrentWindowID(ctx context.Context) (string, error) {
	if pane := strings.TrimSpace(t.getenv("TMUX_PANE")); pane != "" {
		return pane, nil
	}

	panes, err := t.listPanes(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoWindow, err)
	}
	byPID := make(map[int32]TmuxPane, len(panes))
	for _, p := range panes {
		byPID[int32(p.PanePID)] = p
	}

	chain, err := t.lookup.Ancestors(ctx, int32(t.pid()))
	for _, pid := range chain {
		if p, ok := byPID[pid]; ok {
			return p.ID, nil
		}
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoWindow, err)
	}
	return "", ErrNoWindow
}

func (t *Tmux) Activate(ctx context.Context, windowID string) error {
	if err := t.ValidateID(windowID); err != nil {
		return err
	}
	if _, err := t.run(ctx, "tmux", "select-window", "-t", windowID); err != nil {
		if isMissingTarget(err) {
			return fmt.Errorf("%w: tmux target %s", ErrWindowNotFound, windowID)
		}
		return fmt.Errorf("select-window: %w", err)
	}
	if _, err := t.run(ctx, "tmux", "select-pane", "-t", windowID); err != nil {
		return fmt.Errorf("select-pane: %w", err)
	}
	// Bring the pane's session to the attached client. This fails harmlessly
	// when no client is attached.
	if _, err := t.run(ctx, "tmux", "switch-client", "-t", windowID); err != nil {
		windowLog.Debug("tmux_switch_client_failed",
			slog.String("target", windowID),
			slog.String("error", err.Error()))
	}
	return nil
}

func isMissingTarget(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "can't find") || strings.Contains(msg, "no such")
}

func (t *Tmux) listPanes(ctx context.Context) ([]TmuxPane, error) {
	out, err := t.run(ctx, "tmux", "list-panes", "-a", "-F",
		"#{pane_id}\t#{pane_pid}\t#{session_name}\t#{window_index}\t#{pane_index}")
	if err != nil {
		return nil, err
	}
	return parseTmuxPanes(string(out)), nil
}

// parseTmuxPanes parses the tab-separated output of tmux list-panes.
func parseTmuxPanes(output string) []TmuxPane {
	var panes []TmuxPane
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 5 {
			continue
		}

		pid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		winIdx, err := strconv.Atoi(fields[3])
		if err != nil {
			continue
		}
		paneIdx, err := strconv.Atoi(fields[4])
		if err != nil {
			continue
		}

		panes = append(panes, TmuxPane{
			ID:          fields[0],
			SessionName: fields[2],
			WindowIndex: winIdx,
			PaneIndex:   paneIdx,
			PanePID:     pid,
			Target:      fmt.Sprintf("%s:%d.%d", fields[2], winIdx, paneIdx),
		})
	}
	return panes
}
