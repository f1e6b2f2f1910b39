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

// Package process manages the daemon's PID file and liveness checks.
// The flock on daemon.pid is the single source of truth for "a daemon is
// running"; the socket file is only a rendezvous point.
package process

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrAlreadyRunning indicates another daemon holds the PID file lock.
var ErrAlreadyRunning = errors.New("process: daemon already running")

// PIDFile is an exclusively locked file recording the daemon's pid.
type PIDFile struct {
	path string
	file *os.File
}

// Acquire opens the PID file, takes a non-blocking exclusive flock, and
// writes the current pid. Returns ErrAlreadyRunning when another live
// process holds the lock.
func Acquire(path string) (*PIDFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("process: open pid file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("process: lock pid file: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("process: truncate pid file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("process: write pid file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("process: sync pid file: %w", err)
	}
	return &PIDFile{path: path, file: f}, nil
}

// Release unlocks and removes the PID file. Safe to call once on clean
// shutdown; the flock dies with the process either way.
func (p *PIDFile) Release() error {
	if p.file == nil {
		return nil
	}
	err := os.Remove(p.path)
	closeErr := p.file.Close()
	p.file = nil
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("process: remove pid file: %w", err)
	}
	return closeErr
}

// ReadPID parses the pid recorded at path. Returns 0 when the file is
// missing or does not contain a pid.
func ReadPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// Alive reports whether a process with the given pid exists. Signal 0
// probes without delivering anything; EPERM still means alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// Terminate sends SIGTERM to pid.
func Terminate(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("process: invalid pid %d", pid)
	}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return fmt.Errorf("process: signal pid %d: %w", pid, err)
	}
	return nil
}

// Kill sends SIGKILL to pid.
func Kill(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("process: invalid pid %d", pid)
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil {
		return fmt.Errorf("process: kill pid %d: %w", pid, err)
	}
	return nil
}
