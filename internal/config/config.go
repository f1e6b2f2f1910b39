// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-stash.
//
// go-stash is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package config holds the daemon and CLI settings record. Settings come
// from a YAML file in the data directory, overridden by environment
// variables; everything has a working default so a fresh install needs
// no file at all.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the optional settings file inside the data dir.
	ConfigFileName = "config.yaml"

	// StashFileName is the encrypted record file.
	StashFileName = "stash.json"

	// SocketFileName is the daemon's listening socket.
	SocketFileName = "daemon.sock"

	// PIDFileName records the running daemon's process id.
	PIDFileName = "daemon.pid"

	// LogFileName receives daemon logs when file logging is enabled.
	LogFileName = "stashd.log"
)

const (
	// DefaultInactivityLockSeconds locks the session after 15 minutes
	// without a request.
	DefaultInactivityLockSeconds = 900

	// DefaultClipboardClearSeconds wipes a copied secret after 30 seconds.
	DefaultClipboardClearSeconds = 30
)

// Config represents the complete daemon configuration
type Config struct {
	// DataDir is the base directory for all application data.
	DataDir string `yaml:"data_dir"`

	// InactivityLockSeconds auto-locks the session after this many idle
	// seconds. Zero disables the inactivity timer.
	InactivityLockSeconds int `yaml:"inactivity_lock_seconds"`

	// ClipboardClearSeconds is the clipboard compare-and-clear deadline.
	ClipboardClearSeconds int `yaml:"clipboard_clear_seconds"`

	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// File writes logs to <data_dir>/stashd.log instead of stderr.
	File bool `yaml:"file"`
}

// RateLimitConfig controls password attempt throttling
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	AttemptsPerMinute int  `yaml:"attempts_per_minute"`
	Burst             int  `yaml:"burst"`
}

// MetricsConfig controls the optional loopback metrics endpoint
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// DefaultDataDir returns ~/.local/go-stash, or a relative fallback when
// the home directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".go-stash"
	}
	return filepath.Join(home, ".local", "go-stash")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DataDir:               DefaultDataDir(),
		InactivityLockSeconds: DefaultInactivityLockSeconds,
		ClipboardClearSeconds: DefaultClipboardClearSeconds,
		Logging: LoggingConfig{
			Level: "info",
			File:  true,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			AttemptsPerMinute: 30,
			Burst:             10,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9465",
		},
	}
}

// Load builds the configuration for dataDir: defaults, then the optional
// config.yaml inside it, then environment variable overrides. A non-empty
// dataDir outranks STASH_DATA_DIR; an empty one selects STASH_DATA_DIR
// when set, else the default location.
func Load(dataDir string) (*Config, error) {
	cfg := Default()
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	path := filepath.Join(cfg.DataDir, ConfigFileName)
	// #nosec G304 - the path is derived from the user's own data dir
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		// A data_dir inside the file cannot relocate the file itself.
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if dir := os.Getenv("STASH_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if level := os.Getenv("STASH_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if v := os.Getenv("STASH_INACTIVITY_LOCK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.InactivityLockSeconds = n
		}
	}
	if v := os.Getenv("STASH_CLIPBOARD_CLEAR_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			cfg.ClipboardClearSeconds = n
		}
	}
}

// Validate checks the configuration for out-of-range values.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}
	if c.InactivityLockSeconds < 0 {
		return fmt.Errorf("inactivity_lock_seconds cannot be negative")
	}
	if c.ClipboardClearSeconds < 1 {
		return fmt.Errorf("clipboard_clear_seconds must be at least 1")
	}
	if c.RateLimit.Enabled && c.RateLimit.AttemptsPerMinute < 1 {
		return fmt.Errorf("ratelimit.attempts_per_minute must be at least 1 when enabled")
	}
	return nil
}

// StashPath returns the encrypted record file path.
func (c *Config) StashPath() string {
	return filepath.Join(c.DataDir, StashFileName)
}

// SocketPath returns the daemon socket path.
func (c *Config) SocketPath() string {
	return filepath.Join(c.DataDir, SocketFileName)
}

// PIDPath returns the daemon PID file path.
func (c *Config) PIDPath() string {
	return filepath.Join(c.DataDir, PIDFileName)
}

// LogPath returns the daemon log file path.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, LogFileName)
}
