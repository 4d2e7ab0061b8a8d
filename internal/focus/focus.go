// Package focus implements the activation flow: resolve a session to its
// window, raise it, and record the outcome in the registry.
package focus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/termfocus/termfocus/internal/config"
	"github.com/termfocus/termfocus/internal/logging"
	"github.com/termfocus/termfocus/internal/session"
	"github.com/termfocus/termfocus/internal/window"
)

// ErrNotFound is returned when the selected window id has no session.
var ErrNotFound = errors.New("session not found")

var focusLog = logging.ForComponent(logging.CompFocus)

// ActivationError reports a failed or timed-out activation.
type ActivationError struct {
	WindowID string
	Err      error
	TimedOut bool
	Removed  bool // the stale session was dropped from the registry
}

func (e *ActivationError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("activating window %s timed out", e.WindowID)
	}
	return fmt.Sprintf("activating window %s: %v", e.WindowID, e.Err)
}

func (e *ActivationError) Unwrap() error { return e.Err }

// Notice levels.
const (
	LevelInfo  = "info"
	LevelError = "error"
)

// Notice is a transient, user-facing message about a session.
type Notice struct {
	WindowID string `json:"window_id"`
	Level    string `json:"level"`
	Text     string `json:"text"`
}

// Notifier delivers notices to presenters.
type Notifier interface {
	Notice(n Notice)
}

// Options are the runtime-adjustable activation settings.
type Options struct {
	Timeout       time.Duration
	RemoveOnError bool
}

// OptionsFromConfig maps the activation config section to Options.
func OptionsFromConfig(cfg config.ActivationConfig) Options {
	return Options{
		Timeout:       cfg.Timeout,
		RemoveOnError: cfg.OnFailure == config.OnFailureRemove,
	}
}

// Service runs activations against a store. It never holds the store lock
// while talking to the activator.
type Service struct {
	store     *session.Store
	activator window.Activator
	notifier  Notifier
	opts      atomic.Pointer[Options]
}

func NewService(store *session.Store, activator window.Activator, opts Options) *Service {
	s := &Service{store: store, activator: activator}
	s.SetOptions(opts)
	return s
}

// SetNotifier sets where failure notices go. Must be called before Select is
// used concurrently.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetOptions replaces the activation settings. Safe to call at any time.
func (s *Service) SetOptions(opts Options) {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	s.opts.Store(&opts)
}

func (s *Service) Options() Options {
	return *s.opts.Load()
}

// Select raises the window for windowID. On success the session is marked
// seen. On failure an *ActivationError is returned, a notice is emitted and,
// when configured, the session is removed.
func (s *Service) Select(ctx context.Context, windowID string) error {
	if _, ok := s.store.Get(windowID); !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, windowID)
	}

	opts := s.Options()
	actx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	start := time.Now()
	err := s.activator.Activate(actx, windowID)
	if err == nil {
		s.store.MarkSeen(windowID)
		focusLog.Debug("window_activated",
			slog.String("window_id", windowID),
			slog.Duration("took", time.Since(start)))
		return nil
	}

	// The caller gave up. The window may be fine, so leave the registry alone.
	if cerr := ctx.Err(); cerr != nil {
		focusLog.Debug("window_activation_abandoned",
			slog.String("window_id", windowID),
			slog.String("error", cerr.Error()))
		return fmt.Errorf("activating window %s: %w", windowID, cerr)
	}

	aerr := &ActivationError{
		WindowID: windowID,
		Err:      err,
		TimedOut: errors.Is(err, context.DeadlineExceeded) || errors.Is(actx.Err(), context.DeadlineExceeded),
	}
	if opts.RemoveOnError {
		aerr.Removed = s.store.Remove(windowID)
	}

	focusLog.Warn("window_activation_failed",
		slog.String("window_id", windowID),
		slog.Bool("timed_out", aerr.TimedOut),
		slog.Bool("removed", aerr.Removed),
		slog.String("error", err.Error()))

	if s.notifier != nil {
		s.notifier.Notice(noticeFor(aerr))
	}
	return aerr
}

func noticeFor(e *ActivationError) Notice {
	text := "Could not bring window " + e.WindowID + " to front"
	switch {
	case e.TimedOut:
		text += " (timed out)"
	case errors.Is(e.Err, window.ErrWindowNotFound):
		text += " (window closed)"
	case errors.Is(e.Err, window.ErrAppNotRunning):
		text += " (terminal not running)"
	}
	if e.Removed {
		text += "; removed from list"
	}
	return Notice{WindowID: e.WindowID, Level: LevelError, Text: text}
}
