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

package process

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

const (
	// stopPollInterval is how often StopDaemon re-probes liveness after
	// SIGTERM.
	stopPollInterval = 100 * time.Millisecond
)

// SpawnDaemon starts binary with args as a detached background process
// in its own session, so it survives the spawning CLI's exit. Returns
// the child pid.
func SpawnDaemon(binary string, args ...string) (int, error) {
	cmd := exec.Command(binary, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("process: spawn %s: %w", binary, err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("process: release spawned pid %d: %w", pid, err)
	}
	return pid, nil
}

// StopDaemon terminates the daemon recorded at pidPath: SIGTERM, then a
// liveness poll for wait, then SIGKILL if it will not die. Leftover
// socket and PID files are removed either way so the next start is
// clean. A missing or dead pid is not an error.
func StopDaemon(pidPath, socketPath string, wait time.Duration) error {
	pid := ReadPID(pidPath)
	if pid == 0 || !Alive(pid) {
		removeDaemonFiles(pidPath, socketPath)
		return nil
	}

	if err := Terminate(pid); err != nil {
		return err
	}

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if !Alive(pid) {
			removeDaemonFiles(pidPath, socketPath)
			return nil
		}
		time.Sleep(stopPollInterval)
	}

	if err := Kill(pid); err != nil {
		return err
	}
	removeDaemonFiles(pidPath, socketPath)
	return nil
}

// removeDaemonFiles is best-effort cleanup after a kill; a live daemon
// removes its own files on shutdown.
func removeDaemonFiles(pidPath, socketPath string) {
	for _, path := range []string{socketPath, pidPath} {
		if path != "" {
			_ = os.Remove(path)
		}
	}
}
