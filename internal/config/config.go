package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 9876

	// EnvPort overrides server.port.
	EnvPort = "TERMFOCUS_PORT"
	// EnvConfig overrides the config file location.
	EnvConfig = "TERMFOCUS_CONFIG"
)

// Stale-session policies applied when activating a window fails.
const (
	OnFailureKeep   = "keep"
	OnFailureRemove = "remove"
)

// Window backends.
const (
	BackendAuto     = "auto"
	BackendTerminal = "terminal"
	BackendTmux     = "tmux"
	BackendDemo     = "demo"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	UI         UIConfig         `yaml:"ui"`
	Activation ActivationConfig `yaml:"activation"`
	Window     WindowConfig     `yaml:"window"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
	// RateLimit is the sustained number of ingestion requests per second;
	// 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

type UIConfig struct {
	SnapshotInterval  time.Duration `yaml:"snapshot_interval"`
	BroadcastThrottle time.Duration `yaml:"broadcast_throttle"`
}

type ActivationConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	OnFailure string        `yaml:"on_failure"`
}

type WindowConfig struct {
	Backend     string `yaml:"backend"`
	TerminalApp string `yaml:"terminal_app"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: DefaultPort,
			Host: DefaultHost,
		},
		UI: UIConfig{
			SnapshotInterval:  5 * time.Second,
			BroadcastThrottle: 100 * time.Millisecond,
		},
		Activation: ActivationConfig{
			Timeout:   5 * time.Second,
			OnFailure: OnFailureKeep,
		},
		Window: WindowConfig{
			Backend:     BackendAuto,
			TerminalApp: "Terminal",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// DefaultPath returns $TERMFOCUS_CONFIG, or config.yaml under the user's
// config directory.
func DefaultPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "termfocus", "config.yaml")
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults
// (still subject to environment overrides).
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg = defaultConfig()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	v := strings.TrimSpace(os.Getenv(EnvPort))
	if v == "" {
		return nil
	}
	port, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not a port number", ErrInvalidConfig, EnvPort, v)
	}
	c.Server.Port = port
	return nil
}

// Addr is the host:port the ingestion server listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// BaseURL is the HTTP URL clients use to reach the server.
func (c *Config) BaseURL() string {
	return "http://" + c.Addr()
}

// Validate checks ranges and enumerations. The server must bind to a
// loopback address.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if !isLoopback(c.Server.Host) {
		return fmt.Errorf("%w: server.host %q is not a loopback address", ErrInvalidConfig, c.Server.Host)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("%w: server.rate_limit must not be negative", ErrInvalidConfig)
	}
	if c.UI.SnapshotInterval <= 0 {
		return fmt.Errorf("%w: ui.snapshot_interval must be positive", ErrInvalidConfig)
	}
	if c.UI.BroadcastThrottle <= 0 {
		return fmt.Errorf("%w: ui.broadcast_throttle must be positive", ErrInvalidConfig)
	}
	if c.Activation.Timeout <= 0 {
		return fmt.Errorf("%w: activation.timeout must be positive", ErrInvalidConfig)
	}
	switch c.Activation.OnFailure {
	case OnFailureKeep, OnFailureRemove:
	default:
		return fmt.Errorf("%w: activation.on_failure %q (use %s or %s)",
			ErrInvalidConfig, c.Activation.OnFailure, OnFailureKeep, OnFailureRemove)
	}
	switch c.Window.Backend {
	case BackendAuto, BackendTerminal, BackendTmux, BackendDemo:
	default:
		return fmt.Errorf("%w: window.backend %q", ErrInvalidConfig, c.Window.Backend)
	}
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
