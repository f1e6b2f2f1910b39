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

package stash

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// Stash file permissions (owner rw only). Explicit on open so the
	// encrypted blob is never readable by other users regardless of umask.
	stashFilePerms = 0600

	// Data directory permissions (owner rwx only).
	dataDirPerms = 0700

	tmpSuffix = ".tmp"
)

// Store owns the encrypted stash file and its atomic write protocol.
// It never sees plaintext; callers hand it fully encoded records.
type Store struct {
	path string
}

// NewStore creates a store for the stash file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the stash file path.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether the stash file exists.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// LoadRecord reads and parses the stash file. The ciphertext stays
// encrypted; only the record structure is validated.
// Returns ErrNoStash if the file is missing, ErrCorrupt if it is malformed.
func (s *Store) LoadRecord() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoStash
		}
		return nil, fmt.Errorf("stash: read %s: %w", s.path, err)
	}
	return ParseRecord(data)
}

// WriteRecord persists a record atomically: serialize to an owner-only
// temporary sibling, flush and sync, then rename over the stash file.
// A crash before the rename leaves the previous file intact; a crash after
// leaves the new file valid. A temporary file abandoned by an earlier
// aborted write is removed first.
func (s *Store) WriteRecord(rec *Record) error {
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), dataDirPerms); err != nil {
		return fmt.Errorf("stash: create data directory: %w", err)
	}

	tmpPath := s.path + tmpSuffix
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("stash: remove stale temp file: %w", err)
	}

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, stashFilePerms)
	if err != nil {
		return fmt.Errorf("stash: create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("stash: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("stash: sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("stash: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("stash: rename into place: %w", err)
	}

	// Sync the directory so the rename itself survives a crash.
	if dir, err := os.Open(filepath.Dir(s.path)); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}

	return nil
}
