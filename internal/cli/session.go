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
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-stash/internal/process"
	"github.com/jeremyhahn/go-stash/pkg/client"
)

// stopWait is how long the stop command waits for the daemon to exit
// after SIGTERM before escalating to SIGKILL.
const stopWait = 3 * time.Second

// unlockCmd starts a session in the daemon.
var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Unlock the stash",
	Long:  `Prompt for the master password and unlock the stash in the daemon.`,
	Run: func(cmd *cobra.Command, args []string) {
		c, _, err := getConfig().CreateClient()
		if err != nil {
			handleError(err)
		}
		password, err := promptPassword("Master password: ")
		if err != nil {
			handleError(err)
		}
		if err := c.Unlock(password); err != nil {
			handleError(err)
		}
		if err := printer().PrintSuccess("Stash unlocked"); err != nil {
			handleError(err)
		}
	},
}

// lockCmd wipes the session key in the daemon.
var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Lock the stash",
	Run: func(cmd *cobra.Command, args []string) {
		c, _, err := getConfig().CreateClient()
		if err != nil {
			handleError(err)
		}
		if err := c.Lock(); err != nil {
			handleError(err)
		}
		if err := printer().PrintSuccess("Stash locked"); err != nil {
			handleError(err)
		}
	},
}

// healthCmd reports daemon liveness and lock state without spawning a
// daemon.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show daemon status",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := getConfig().DaemonConfig()
		if err != nil {
			handleError(err)
		}
		if !client.Running(cfg.SocketPath()) {
			if err := printer().PrintNotRunning(); err != nil {
				handleError(err)
			}
			return
		}
		c := client.New(client.Config{SocketPath: cfg.SocketPath()})
		health, err := c.Health()
		if err != nil {
			handleError(err)
		}
		if err := printer().PrintHealth(health); err != nil {
			handleError(err)
		}
	},
}

// stopCmd shuts the daemon down, escalating to signals when the stop
// verb is not enough.
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	Long: `Ask the daemon to lock and shut down. If it does not exit within a
few seconds it is terminated, then killed, and leftover socket and PID
files are removed.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := getConfig().DaemonConfig()
		if err != nil {
			handleError(err)
		}

		if client.Running(cfg.SocketPath()) {
			c := client.New(client.Config{SocketPath: cfg.SocketPath()})
			if err := c.Stop(); err != nil && !errors.Is(err, client.ErrDaemonUnavailable) {
				handleError(err)
			}
		}
		if err := process.StopDaemon(cfg.PIDPath(), cfg.SocketPath(), stopWait); err != nil {
			handleError(err)
		}
		if err := printer().PrintSuccess("Daemon stopped"); err != nil {
			handleError(err)
		}
	},
}
