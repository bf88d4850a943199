// Package config loads linkinbio settings from defaults, a YAML file, a
// .env file and LINKINBIO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/multierr"
)

// EnvPrefix is the prefix of environment overrides, e.g. LINKINBIO_PORT.
const EnvPrefix = "LINKINBIO_"

// Config holds the service configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port int `koanf:"port"`

	// Stories is the stories list location: a file path or http(s) URL.
	Stories string `koanf:"stories"`

	// AssetsDir is the directory local image sources are resolved against
	// and served from.
	AssetsDir string `koanf:"assets_dir"`

	// DurationMS is the per-slide duration in milliseconds.
	DurationMS int `koanf:"duration_ms"`

	// FrameIntervalMS is the progress tick interval in milliseconds.
	FrameIntervalMS int `koanf:"frame_interval_ms"`

	// ProbeAssets makes the server load images itself instead of waiting
	// for clients to report load results.
	ProbeAssets bool `koanf:"probe_assets"`

	// ProbeTimeoutMS bounds a single asset probe.
	ProbeTimeoutMS int `koanf:"probe_timeout_ms"`

	// SessionTTLMS is how long closed sessions are kept before reaping.
	SessionTTLMS int `koanf:"session_ttl_ms"`

	// AllowAllOrigins enables CORS for any origin.
	AllowAllOrigins bool `koanf:"allow_all_origins"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            8080,
		Stories:         "offers.json",
		AssetsDir:       "public",
		DurationMS:      5000,
		FrameIntervalMS: 16,
		ProbeAssets:     true,
		ProbeTimeoutMS:  10000,
		SessionTTLMS:    60000,
		LogLevel:        "info",
	}
}

// Load reads configuration from the given YAML file, then the .env file in
// the working directory (if any), then environment overrides. A missing
// config file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	// .env only fills variables that are not already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var err error

	if c.Port < 1 || c.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}
	if c.Stories == "" {
		err = multierr.Append(err, fmt.Errorf("stories is required"))
	}
	if c.DurationMS <= 0 {
		err = multierr.Append(err, fmt.Errorf("duration_ms must be positive, got %d", c.DurationMS))
	}
	if c.FrameIntervalMS <= 0 {
		err = multierr.Append(err, fmt.Errorf("frame_interval_ms must be positive, got %d", c.FrameIntervalMS))
	}
	if c.ProbeTimeoutMS < 0 {
		err = multierr.Append(err, fmt.Errorf("probe_timeout_ms must be non-negative, got %d", c.ProbeTimeoutMS))
	}
	if c.SessionTTLMS < 0 {
		err = multierr.Append(err, fmt.Errorf("session_ttl_ms must be non-negative, got %d", c.SessionTTLMS))
	}
	if _, lerr := ParseLevel(c.LogLevel); lerr != nil {
		err = multierr.Append(err, lerr)
	}

	return err
}

// Duration returns the per-slide duration.
func (c *Config) Duration() time.Duration {
	return time.Duration(c.DurationMS) * time.Millisecond
}

// FrameInterval returns the progress tick interval.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMS) * time.Millisecond
}

// ProbeTimeout returns the per-asset probe timeout.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMS) * time.Millisecond
}

// SessionTTL returns how long closed sessions are kept.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMS) * time.Millisecond
}

// ParseLevel converts a log level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q: must be one of debug, info, warn, error", name)
	}
}
