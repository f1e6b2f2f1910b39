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

// stashd is the stash daemon. It binds the Unix socket inside the data
// directory and serves until stopped by the stop verb or a signal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/jeremyhahn/go-stash/internal/config"
	"github.com/jeremyhahn/go-stash/internal/daemon"
	"github.com/jeremyhahn/go-stash/internal/process"
	"github.com/jeremyhahn/go-stash/pkg/logging"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	dataDir := flag.String("data-dir", "", "data directory (default is $HOME/.local/go-stash)")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("stashd\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	cfg, err := config.Load(*dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stashd: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger, closer, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stashd: %v\n", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}

	d := daemon.New(cfg, logger, nil)
	if err := d.Run(context.Background()); err != nil {
		if errors.Is(err, process.ErrAlreadyRunning) {
			fmt.Fprintln(os.Stderr, "stashd: already running")
			os.Exit(1)
		}
		logger.WithError(err).Error("daemon exited")
		os.Exit(1)
	}
}

// buildLogger opens the log file in the data directory when configured,
// falling back to stderr.
func buildLogger(cfg *config.Config) (logging.Logger, io.Closer, error) {
	level := logging.ParseLevel(cfg.Logging.Level)
	if !cfg.Logging.File {
		return logging.NewSlogAdapter(&logging.SlogConfig{Level: level}), nil, nil
	}
	return logging.OpenFile(cfg.LogPath(), level)
}
