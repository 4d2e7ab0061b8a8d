package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvPort, "")
	path := writeConfig(t, t.TempDir(), `
server:
  port: 9999
  host: "::1"
activation:
  timeout: 2s
  on_failure: remove
window:
  backend: tmux
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "::1", cfg.Server.Host)
	assert.Equal(t, 2*time.Second, cfg.Activation.Timeout)
	assert.Equal(t, OnFailureRemove, cfg.Activation.OnFailure)
	assert.Equal(t, BackendTmux, cfg.Window.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unspecified fields keep their defaults.
	assert.Equal(t, 5*time.Second, cfg.UI.SnapshotInterval)
	assert.Equal(t, "Terminal", cfg.Window.TerminalApp)
	assert.Equal(t, "[::1]:9999", cfg.Addr())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	t.Setenv(EnvPort, "")
	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultHost, cfg.Server.Host)
	assert.Equal(t, OnFailureKeep, cfg.Activation.OnFailure)
	assert.Equal(t, 5*time.Second, cfg.Activation.Timeout)
	assert.Zero(t, cfg.Server.RateLimit, "ingestion is unlimited by default")
	assert.Equal(t, "http://127.0.0.1:9876", cfg.BaseURL())
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), ":::not valid yaml")
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvPortOverride(t *testing.T) {
	t.Setenv(EnvPort, "12000")
	path := writeConfig(t, t.TempDir(), "server:\n  port: 9999\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12000, cfg.Server.Port)

	cfg, err = LoadOrDefault("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 12000, cfg.Server.Port)
}

func TestEnvPortInvalid(t *testing.T) {
	t.Setenv(EnvPort, "abc")
	_, err := LoadOrDefault("/nonexistent/config.yaml")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"localhost", func(c *Config) { c.Server.Host = "localhost" }, true},
		{"ipv6 loopback", func(c *Config) { c.Server.Host = "::1" }, true},
		{"all interfaces", func(c *Config) { c.Server.Host = "0.0.0.0" }, false},
		{"lan address", func(c *Config) { c.Server.Host = "192.168.1.10" }, false},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, false},
		{"port too big", func(c *Config) { c.Server.Port = 70000 }, false},
		{"negative rate", func(c *Config) { c.Server.RateLimit = -1 }, false},
		{"zero timeout", func(c *Config) { c.Activation.Timeout = 0 }, false},
		{"unknown policy", func(c *Config) { c.Activation.OnFailure = "ignore" }, false},
		{"unknown backend", func(c *Config) { c.Window.Backend = "iterm" }, false},
		{"zero throttle", func(c *Config) { c.UI.BroadcastThrottle = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestDefaultPathEnv(t *testing.T) {
	t.Setenv(EnvConfig, "/tmp/custom.yaml")
	assert.Equal(t, "/tmp/custom.yaml", DefaultPath())
}

func TestWatchReloads(t *testing.T) {
	t.Setenv(EnvPort, "")
	dir := t.TempDir()
	path := writeConfig(t, dir, "activation:\n  on_failure: keep\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { got <- c })
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("activation:\n  on_failure: remove\n"), 0o644))

	select {
	case cfg := <-got:
		assert.Equal(t, OnFailureRemove, cfg.Activation.OnFailure)
	case <-time.After(3 * time.Second):
		t.Fatal("Watch did not report the changed config")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
