package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/termfocus/termfocus/internal/config"
	"github.com/termfocus/termfocus/internal/demo"
	"github.com/termfocus/termfocus/internal/focus"
	"github.com/termfocus/termfocus/internal/logging"
	"github.com/termfocus/termfocus/internal/session"
	"github.com/termfocus/termfocus/internal/window"
	"github.com/termfocus/termfocus/internal/ws"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session registry and ingestion endpoint",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().IntP("port", "p", 0, "Override server port")
	cmd.Flags().Bool("demo", false, "Use the in-memory window backend and generate fake sessions")
	return cmd
}

// serveConfig loads the config and applies serve's flag overrides on top of
// the file and environment.
func serveConfig(cmd *cobra.Command) (*config.Config, string, error) {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return nil, path, err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if demoMode, _ := cmd.Flags().GetBool("demo"); demoMode {
		cfg.Window.Backend = config.BackendDemo
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, path, err := serveConfig(cmd)
	if err != nil {
		return err
	}

	logging.Init(loggingConfig(cfg.Logging))
	defer logging.Close()
	log := logging.Logger()

	backend, err := window.New(cfg.Window)
	if err != nil {
		return err
	}

	store := session.NewStore()
	broadcaster := ws.NewBroadcaster(store, cfg.UI.BroadcastThrottle, cfg.UI.SnapshotInterval)
	store.SetOnChange(broadcaster.OnStoreChange)

	focusSvc := focus.NewService(store, backend, focus.OptionsFromConfig(cfg.Activation))
	focusSvc.SetNotifier(broadcaster)

	server := ws.NewServer(store, broadcaster, focusSvc, ws.Options{
		ValidateID: backend.ValidateID,
		RateLimit:  cfg.Server.RateLimit,
		RateBurst:  cfg.Server.RateBurst,
	})

	// Bind before starting anything so a busy port fails fast.
	ln, err := ws.Listen(cfg.Addr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting",
		slog.String("addr", ln.Addr().String()),
		slog.String("backend", backend.Name()),
		slog.String("version", version))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ws.Serve(gctx, ln, server.Handler())
	})
	g.Go(func() error {
		broadcaster.Run(gctx)
		return nil
	})

	if _, err := os.Stat(filepath.Dir(path)); err == nil {
		g.Go(func() error {
			return config.Watch(gctx, path, func(next *config.Config) {
				focusSvc.SetOptions(focus.OptionsFromConfig(next.Activation))
				logging.Init(loggingConfig(next.Logging))
			})
		})
	}

	if d, ok := backend.(*window.Demo); ok {
		if demoMode, _ := cmd.Flags().GetBool("demo"); demoMode {
			gen := demo.NewGenerator(store, d, demo.DefaultInterval)
			g.Go(func() error { return gen.Run(gctx) })
		}
	}

	err = g.Wait()
	log.Info("stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
