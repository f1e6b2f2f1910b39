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

package cli

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-stash/internal/config"
	"github.com/jeremyhahn/go-stash/pkg/client"
)

// Config holds global CLI configuration
type Config struct {
	// DataDir overrides the stash data directory
	DataDir string

	// OutputFormat controls output formatting (text, json)
	OutputFormat string

	// Verbose enables verbose logging
	Verbose bool
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		OutputFormat: "text",
	}
}

// dataDir resolves the effective data directory: flag, then the
// STASH_DATA_DIR environment variable, then the built-in default.
func (c *Config) dataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return viper.GetString("data_dir")
}

// DaemonConfig loads the daemon settings for the selected data
// directory.
func (c *Config) DaemonConfig() (*config.Config, error) {
	return config.Load(c.dataDir())
}

// CreateClient builds a daemon client that spawns stashd on demand.
func (c *Config) CreateClient() (*client.Client, *config.Config, error) {
	cfg, err := c.DaemonConfig()
	if err != nil {
		return nil, nil, err
	}
	cl := client.New(client.Config{
		SocketPath: cfg.SocketPath(),
		AutoSpawn:  true,
		DaemonPath: daemonBinary(),
		DaemonArgs: []string{"--data-dir", cfg.DataDir},
	})
	return cl, cfg, nil
}

// daemonBinary locates stashd: a sibling of the running binary wins,
// then PATH, then the bare name for a best-effort spawn.
func daemonBinary() string {
	if exe, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exe), "stashd")
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
			return sibling
		}
	}
	if path, err := exec.LookPath("stashd"); err == nil {
		return path
	}
	return "stashd"
}
