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

package daemon

import (
	"time"

	"github.com/jeremyhahn/go-stash/pkg/fingerprint"
	"github.com/jeremyhahn/go-stash/pkg/logging"
)

// armInactivityTimer starts the auto-lock countdown after an unlock.
// The timer fires at lastActivity + timeout; a callback that finds
// fresher activity rearms for the remainder instead of locking.
func (s *Session) armInactivityTimer() {
	if s.inactivityTimeout <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armInactivityLocked(s.inactivityTimeout)
}

func (s *Session) armInactivityLocked(d time.Duration) {
	if s.inactivityTimer != nil {
		s.inactivityTimer.Stop()
	}
	s.inactivityTimer = time.AfterFunc(d, s.onInactivity)
}

func (s *Session) onInactivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unlocked {
		return
	}
	idle := time.Since(s.lastActivity)
	if idle < s.inactivityTimeout {
		s.armInactivityLocked(s.inactivityTimeout - idle)
		return
	}
	s.logger.Info("inactivity timeout, locking",
		logging.Int64("idle_seconds", int64(idle.Seconds())))
	s.metrics.AutoLock()
	s.lockLocked()
}

// ScheduleClipboardClear arms the clipboard compare-and-clear timer with
// the fingerprint of value. A second call supersedes the first.
func (s *Session) ScheduleClipboardClear(value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unlocked {
		return ErrLocked
	}
	s.touchLocked()

	if s.clipboardTimer != nil {
		s.clipboardTimer.Stop()
	}
	s.clipboardPrint = fingerprint.New(value)
	s.clipboardPending = true
	s.clipboardTimer = time.AfterFunc(s.clipboardTimeout, s.onClipboardDeadline)
	return nil
}

func (s *Session) onClipboardDeadline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.clipboardPending {
		return
	}
	s.clipboardPending = false

	current, err := s.clip.Read()
	if err != nil {
		s.logger.WithError(err).Warn("clipboard read failed, skipping clear")
		return
	}
	if !s.clipboardPrint.Matches(current) {
		s.logger.Debug("clipboard changed since copy, leaving it alone")
		return
	}
	if err := s.clip.Clear(); err != nil {
		s.logger.WithError(err).Warn("clipboard clear failed")
		return
	}
	s.metrics.ClipboardCleared()
	s.logger.Info("clipboard cleared")
}

// cancelClipboardLocked drops any pending clipboard clear. Callers
// hold mu. Lock uses this so a wiped session never fires a late clear.
func (s *Session) cancelClipboardLocked() {
	if s.clipboardTimer != nil {
		s.clipboardTimer.Stop()
		s.clipboardTimer = nil
	}
	s.clipboardPending = false
	s.clipboardPrint = fingerprint.Fingerprint{}
}

// Shutdown stops both timers and locks the session. Called on daemon
// exit; a pending clipboard clear is cancelled with the lock, not
// performed, so the clipboard is left as it is.
func (s *Session) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inactivityTimer != nil {
		s.inactivityTimer.Stop()
		s.inactivityTimer = nil
	}
	s.lockLocked()
}
