package window

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// notFoundMarker is raised by the activation script when no window matches.
const notFoundMarker = "termfocus: window not found"

// TerminalApp drives a scriptable macOS terminal (Terminal.app by default)
// through osascript. Window ids are the numeric AppleScript window ids.
type TerminalApp struct {
	app    string
	run    Runner
	lookup ProcessLookup
}

func NewTerminalApp(app string) *TerminalApp {
	if app == "" {
		app = "Terminal"
	}
	return &TerminalApp{
		app:    app,
		run:    ExecRunner,
		lookup: psLookup{},
	}
}

func (t *TerminalApp) Name() string { return "terminal" }

// ValidateID requires a purely numeric id, since ids are interpolated into
// AppleScript source.
func (t *TerminalApp) ValidateID(windowID string) error {
	if windowID == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	for _, r := range windowID {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: window_id must be numeric", ErrInvalidID)
		}
	}
	return nil
}

func (t *TerminalApp) CurrentWindowID(ctx context.Context) (string, error) {
	out, err := t.run(ctx, "osascript", "-e", detectScript(t.app))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoWindow, err)
	}
	id := strings.TrimSpace(string(out))
	if id == "" || id == "missing value" {
		return "", ErrNoWindow
	}
	if err := t.ValidateID(id); err != nil {
		return "", fmt.Errorf("%w: unexpected id %q", ErrNoWindow, id)
	}
	return id, nil
}

func (t *TerminalApp) Activate(ctx context.Context, windowID string) error {
	if err := t.ValidateID(windowID); err != nil {
		return err
	}
	if t.lookup != nil {
		running, err := t.lookup.Running(ctx, t.app)
		if err != nil {
			windowLog.Debug("process_lookup_failed", slog.String("app", t.app), slog.String("error", err.Error()))
		} else if !running {
			return fmt.Errorf("%w: %s", ErrAppNotRunning, t.app)
		}
	}

	_, err := t.run(ctx, "osascript", "-e", activateScript(t.app, windowID))
	if err != nil {
		if strings.Contains(err.Error(), notFoundMarker) {
			return fmt.Errorf("%w: %s window %s", ErrWindowNotFound, t.app, windowID)
		}
		return fmt.Errorf("activate %s window %s: %w", t.app, windowID, err)
	}
	return nil
}

func appleString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func detectScript(app string) string {
	return fmt.Sprintf(`tell application %s to get id of front window`, appleString(app))
}

// activateScript raises the window whose id matches windowID. windowID must
// already be validated as numeric.
func activateScript(app, windowID string) string {
	return fmt.Sprintf(`
tell application %s
	set targetWindow to missing value
	repeat with w in windows
		if id of w is %s then
			set targetWindow to w
			exit repeat
		end if
	end repeat
	if targetWindow is missing value then
		error %s
	end if
	activate
	set index of targetWindow to 1
end tell
`, appleString(app), windowID, appleString(notFoundMarker))
}
