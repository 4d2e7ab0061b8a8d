// Package window identifies and raises terminal windows. The rest of the
// program treats window ids as opaque strings; each Backend decides what an
// id looks like and how to bring it to front.
package window

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/termfocus/termfocus/internal/config"
	"github.com/termfocus/termfocus/internal/logging"
)

var (
	ErrNoWindow       = errors.New("no terminal window is frontmost")
	ErrWindowNotFound = errors.New("window not found")
	ErrAppNotRunning  = errors.New("terminal application is not running")
	ErrInvalidID      = errors.New("invalid window id")
)

var windowLog = logging.ForComponent(logging.CompWindow)

// Detector reports the id of the terminal window the caller runs in.
type Detector interface {
	CurrentWindowID(ctx context.Context) (string, error)
}

// Activator raises the window with the given id.
type Activator interface {
	Activate(ctx context.Context, windowID string) error
}

// Backend bundles detection, activation and id validation for one kind of
// terminal.
type Backend interface {
	Detector
	Activator
	Name() string
	ValidateID(windowID string) error
}

// Runner executes an external command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec. A non-zero exit is reported with the
// command's stderr.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// New returns the backend selected by cfg. "auto" picks Terminal.app on macOS
// and tmux everywhere else.
func New(cfg config.WindowConfig) (Backend, error) {
	name := cfg.Backend
	if name == "" || name == config.BackendAuto {
		if runtime.GOOS == "darwin" {
			name = config.BackendTerminal
		} else {
			name = config.BackendTmux
		}
	}

	switch name {
	case config.BackendTerminal:
		return NewTerminalApp(cfg.TerminalApp), nil
	case config.BackendTmux:
		return NewTmux(), nil
	case config.BackendDemo:
		return NewDemo(), nil
	default:
		return nil, fmt.Errorf("unknown window backend %q", cfg.Backend)
	}
}
