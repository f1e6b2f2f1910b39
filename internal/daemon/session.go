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

// Package daemon implements the long-lived background process: the
// locked/unlocked session state machine, the auto-lock and clipboard
// timers, the Unix socket server, and the command handlers.
package daemon

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeremyhahn/go-stash/pkg/clipboard"
	"github.com/jeremyhahn/go-stash/pkg/envelope"
	"github.com/jeremyhahn/go-stash/pkg/fingerprint"
	"github.com/jeremyhahn/go-stash/pkg/logging"
	"github.com/jeremyhahn/go-stash/pkg/metrics"
	"github.com/jeremyhahn/go-stash/pkg/stash"
)

// Session sentinel errors, mapped to wire tags by the handler layer.
var (
	// ErrLocked indicates the operation requires an unlocked session.
	ErrLocked = errors.New("daemon: stash is locked")

	// ErrStale indicates the stash file changed between key derivation
	// and the state transition, and retries were exhausted.
	ErrStale = errors.New("daemon: stash changed during unlock")

	// ErrEmptyValue rejects empty secret values on add.
	ErrEmptyValue = errors.New("daemon: value cannot be empty")

	// ErrKeyExists rejects a rename target that is already taken.
	ErrKeyExists = errors.New("daemon: key already exists")
)

// unlockRetries bounds the derive-then-apply loop when another request
// rewrites the stash file between the two phases.
const unlockRetries = 3

// Session is the daemon's mutable core: the derived key and decrypted
// secret map while unlocked, nothing while locked. All access is
// serialized by mu; the scrypt derivation runs outside it.
type Session struct {
	mu sync.Mutex

	st      *stash.Stash
	logger  logging.Logger
	metrics *metrics.Metrics
	clip    clipboard.Clipboard

	unlocked     bool
	key          []byte
	salt         []byte
	params       envelope.KDFParams
	secrets      map[string]string
	lastActivity time.Time

	inactivityTimeout time.Duration
	inactivityTimer   *time.Timer

	clipboardTimeout time.Duration
	clipboardTimer   *time.Timer
	clipboardPending bool
	clipboardPrint   fingerprint.Fingerprint
}

// SessionConfig wires a Session's collaborators and timer durations.
type SessionConfig struct {
	Stash             *stash.Stash
	Logger            logging.Logger
	Metrics           *metrics.Metrics
	Clipboard         clipboard.Clipboard
	InactivityTimeout time.Duration
	ClipboardTimeout  time.Duration
}

// NewSession creates a locked session.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Clipboard == nil {
		cfg.Clipboard = clipboard.Noop{}
	}
	return &Session{
		st:                cfg.Stash,
		logger:            cfg.Logger,
		metrics:           cfg.Metrics,
		clip:              cfg.Clipboard,
		inactivityTimeout: cfg.InactivityTimeout,
		clipboardTimeout:  cfg.ClipboardTimeout,
	}
}

// Stash returns the underlying store.
func (s *Session) Stash() *stash.Stash {
	return s.st
}

// Unlocked reports the session state.
func (s *Session) Unlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlocked
}

// Unlock derives the key from password against the persisted record and
// enters UNLOCKED. The derivation runs outside the mutex; the transition
// revalidates the record under it and retries when the file moved. An
// unlock while already unlocked re-verifies the password and refreshes
// the in-memory state without relocking on failure.
func (s *Session) Unlock(password []byte) error {
	for attempt := 0; attempt < unlockRetries; attempt++ {
		rec, err := s.st.Store().LoadRecord()
		if err != nil {
			return err
		}

		start := time.Now()
		res, err := s.st.UnlockRecord(rec, password)
		s.metrics.ObserveDerivation(time.Since(start))
		if err != nil {
			if errors.Is(err, stash.ErrWrongPassword) {
				s.metrics.UnlockFailure()
			}
			return err
		}

		if s.applyUnlock(rec, res) {
			s.metrics.SetUnlocked(true)
			s.armInactivityTimer()
			return nil
		}
		envelope.Zero(res.Key)
	}
	return ErrStale
}

// applyUnlock installs the unlock result if the record on disk is still
// the one the key was derived against.
func (s *Session) applyUnlock(rec *stash.Record, res *stash.UnlockResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.st.Store().LoadRecord()
	if err != nil {
		return false
	}
	if !bytes.Equal(cur.Salt, rec.Salt) || !bytes.Equal(cur.Nonce, rec.Nonce) {
		return false
	}

	if s.unlocked {
		envelope.Zero(s.key)
	}
	s.unlocked = true
	s.key = res.Key
	s.salt = res.Salt
	s.params = res.Params
	s.secrets = res.Secrets
	s.lastActivity = time.Now()
	return true
}

// Lock wipes key material, drops the secret map, and cancels the
// clipboard timer. Locking a locked session is a no-op.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockLocked()
}

// lockLocked is Lock with mu already held.
func (s *Session) lockLocked() {
	if !s.unlocked {
		return
	}
	envelope.Zero(s.key)
	s.key = nil
	s.salt = nil
	s.secrets = nil
	s.unlocked = false
	s.cancelClipboardLocked()
	s.metrics.SetUnlocked(false)
	s.logger.Info("session locked")
}

// List returns the sorted keys, optionally filtered by substring.
func (s *Session) List(filter string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unlocked {
		return nil, ErrLocked
	}
	s.touchLocked()

	keys := make([]string, 0, len(s.secrets))
	for k := range s.secrets {
		if filter == "" || strings.Contains(k, filter) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Get returns the secret value for key.
func (s *Session) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unlocked {
		return "", ErrLocked
	}
	s.touchLocked()

	value, ok := s.secrets[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", stash.ErrNoSuchKey, key)
	}
	return value, nil
}

// Add inserts or replaces a secret and persists the stash under the
// session key. The write happens under the mutex so concurrent adds
// serialize against each other and against unlock revalidation.
func (s *Session) Add(key, value string) error {
	if err := stash.ValidateKey(key); err != nil {
		return err
	}
	if value == "" {
		return ErrEmptyValue
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unlocked {
		return ErrLocked
	}
	s.touchLocked()

	old, existed := s.secrets[key]
	s.secrets[key] = value
	if err := s.persistLocked(); err != nil {
		// Roll back so memory matches the file that is still on disk.
		if existed {
			s.secrets[key] = old
		} else {
			delete(s.secrets, key)
		}
		return err
	}
	return nil
}

// Delete removes a secret and persists the stash.
func (s *Session) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unlocked {
		return ErrLocked
	}
	s.touchLocked()

	value, ok := s.secrets[key]
	if !ok {
		return fmt.Errorf("%w: %q", stash.ErrNoSuchKey, key)
	}
	delete(s.secrets, key)
	if err := s.persistLocked(); err != nil {
		s.secrets[key] = value
		return err
	}
	return nil
}

// Rename moves a secret to a new key and persists the stash. The target
// must pass key validation and must not already hold a secret.
func (s *Session) Rename(key, newKey string) error {
	if err := stash.ValidateKey(newKey); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unlocked {
		return ErrLocked
	}
	s.touchLocked()

	value, ok := s.secrets[key]
	if !ok {
		return fmt.Errorf("%w: %q", stash.ErrNoSuchKey, key)
	}
	if key == newKey {
		return nil
	}
	if _, taken := s.secrets[newKey]; taken {
		return fmt.Errorf("%w: %q", ErrKeyExists, newKey)
	}
	delete(s.secrets, key)
	s.secrets[newKey] = value
	if err := s.persistLocked(); err != nil {
		delete(s.secrets, newKey)
		s.secrets[key] = value
		return err
	}
	return nil
}

// ChangePassword verifies the old password against the persisted record,
// derives a key from the new password with a fresh salt, and re-encrypts.
// Both derivations run outside the mutex. Works in either state; an
// unlocked session keeps running under the new key.
func (s *Session) ChangePassword(oldPassword, newPassword []byte) error {
	if len(newPassword) == 0 {
		return stash.ErrEmptyPassword
	}

	for attempt := 0; attempt < unlockRetries; attempt++ {
		rec, err := s.st.Store().LoadRecord()
		if err != nil {
			return err
		}

		start := time.Now()
		res, err := s.st.UnlockRecord(rec, oldPassword)
		s.metrics.ObserveDerivation(time.Since(start))
		if err != nil {
			if errors.Is(err, stash.ErrWrongPassword) {
				s.metrics.UnlockFailure()
			}
			return err
		}

		newSalt, err := envelope.NewSalt()
		if err != nil {
			envelope.Zero(res.Key)
			return err
		}
		start = time.Now()
		newKey, err := envelope.DeriveKey(newPassword, newSalt, res.Params)
		s.metrics.ObserveDerivation(time.Since(start))
		if err != nil {
			envelope.Zero(res.Key)
			return err
		}

		ok, err := s.applyChangePassword(rec, res, newKey, newSalt)
		if err != nil {
			envelope.Zero(res.Key)
			envelope.Zero(newKey)
			return err
		}
		if ok {
			envelope.Zero(res.Key)
			return nil
		}
		envelope.Zero(res.Key)
		envelope.Zero(newKey)
	}
	return ErrStale
}

func (s *Session) applyChangePassword(rec *stash.Record, res *stash.UnlockResult, newKey, newSalt []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.st.Store().LoadRecord()
	if err != nil {
		return false, err
	}
	if !bytes.Equal(cur.Salt, rec.Salt) || !bytes.Equal(cur.Nonce, rec.Nonce) {
		return false, nil
	}

	// While unlocked the in-memory map is authoritative; at rest the
	// decrypted snapshot is.
	secrets := res.Secrets
	if s.unlocked {
		secrets = s.secrets
	}

	if err := s.st.PersistWithKey(secrets, newKey, newSalt, res.Params); err != nil {
		return false, err
	}
	s.metrics.Persist()

	if s.unlocked {
		envelope.Zero(s.key)
		s.key = newKey
		s.salt = newSalt
		s.params = res.Params
		s.touchLocked()
	} else {
		envelope.Zero(newKey)
	}
	s.logger.Info("master password changed")
	return true, nil
}

// persistLocked re-encrypts the current map under the session key.
// Callers hold mu.
func (s *Session) persistLocked() error {
	if err := s.st.PersistWithKey(s.secrets, s.key, s.salt, s.params); err != nil {
		return err
	}
	s.metrics.Persist()
	return nil
}

// touchLocked records activity for the inactivity deadline. Callers
// hold mu.
func (s *Session) touchLocked() {
	s.lastActivity = time.Now()
}
