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
	"context"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-stash/internal/daemon"
	"github.com/jeremyhahn/go-stash/pkg/logging"
)

// daemonCmd runs the daemon in the foreground, logging to stderr. The
// normal path is the stashd binary spawned on demand; this command is
// for development and for service managers that supervise foreground
// processes.
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the stash daemon in the foreground",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := getConfig().DaemonConfig()
		if err != nil {
			handleError(err)
		}

		level := logging.ParseLevel(cfg.Logging.Level)
		if getConfig().Verbose {
			level = logging.LevelDebug
		}
		logger := logging.NewSlogAdapter(&logging.SlogConfig{Level: level})

		d := daemon.New(cfg, logger, nil)
		if err := d.Run(context.Background()); err != nil {
			handleError(err)
		}
	},
}
