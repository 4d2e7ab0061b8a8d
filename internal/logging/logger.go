// Package logging sets up the process-wide slog logger and hands out
// per-component loggers.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Component names used as the "component" attribute.
const (
	CompHTTP   = "http"
	CompIngest = "ingest"
	CompFocus  = "focus"
	CompWS     = "ws"
	CompWindow = "window"
	CompConfig = "config"
	CompDemo   = "demo"
	CompClient = "client"
	CompApp    = "app"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string

	// Format is "text" (default) or "json"
	Format string

	// File is the log file path. Empty means stderr.
	File string

	// MaxSizeMB is the max size in MB before rotation (default: 10)
	MaxSizeMB int

	// MaxBackups is rotated files to keep (default: 3)
	MaxBackups int

	// MaxAgeDays is days to keep rotated files (default: 7)
	MaxAgeDays int

	// Compress rotated files
	Compress bool
}

var (
	globalMu     sync.RWMutex
	globalLogger *slog.Logger
	rotator      *lumberjack.Logger
)

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init installs the global logger. It may be called again to reconfigure.
func Init(cfg Config) {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 3
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 7
	}

	globalMu.Lock()
	defer globalMu.Unlock()

	if rotator != nil {
		_ = rotator.Close()
		rotator = nil
	}

	var w io.Writer = os.Stderr
	if cfg.File != "" {
		rotator = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		w = rotator
	}

	globalLogger = slog.New(newHandler(w, cfg))
}

// InitWriter installs a logger writing to w. Used by tests and by commands
// that want logs on a specific stream.
func InitWriter(w io.Writer, cfg Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = slog.New(newHandler(w, cfg))
}

func newHandler(w io.Writer, cfg Config) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Close flushes and closes the rotating log file, if any.
func Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if rotator == nil {
		return nil
	}
	err := rotator.Close()
	rotator = nil
	return err
}

// Logger returns the global logger. Safe to call before Init; logs then go to
// stderr at info level.
func Logger() *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return globalLogger
}

// ForComponent returns a logger tagged with the component name. The handler
// is resolved at log time, so package-level component loggers pick up a
// later Init.
func ForComponent(name string) *slog.Logger {
	return slog.New(&dynamicHandler{component: name})
}

type dynamicHandler struct {
	component string
	attrs     []slog.Attr
	group     string
}

func (h *dynamicHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return Logger().Handler().Enabled(ctx, level)
}

func (h *dynamicHandler) Handle(ctx context.Context, r slog.Record) error {
	handler := Logger().Handler().WithAttrs([]slog.Attr{slog.String("component", h.component)})
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	if h.group != "" {
		handler = handler.WithGroup(h.group)
	}
	return handler.Handle(ctx, r)
}

func (h *dynamicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &dynamicHandler{component: h.component, attrs: merged, group: h.group}
}

func (h *dynamicHandler) WithGroup(name string) slog.Handler {
	return &dynamicHandler{component: h.component, attrs: h.attrs, group: name}
}
