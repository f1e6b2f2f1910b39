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

import "errors"

var (
	// ErrNoStash indicates the stash file does not exist (first-run state).
	ErrNoStash = errors.New("stash: not initialized")

	// ErrCorrupt indicates the stash file is present but malformed,
	// carries an unsupported version, or fails base64 decoding.
	ErrCorrupt = errors.New("stash: file is corrupt")

	// ErrWrongPassword indicates AEAD verification failed. A wrong
	// password and a tampered file are deliberately indistinguishable.
	ErrWrongPassword = errors.New("stash: wrong password")

	// ErrAlreadyInitialized indicates init was called on an existing stash.
	ErrAlreadyInitialized = errors.New("stash: already initialized")

	// ErrEmptyPassword indicates an empty password was supplied where a
	// non-empty one is required.
	ErrEmptyPassword = errors.New("stash: password cannot be empty")

	// ErrNoSuchKey indicates a lookup or delete on an absent key.
	ErrNoSuchKey = errors.New("stash: no such key")

	// ErrInvalidKey indicates a key that fails the validity rules:
	// non-empty, at most 256 bytes, no NUL, no leading or trailing
	// whitespace.
	ErrInvalidKey = errors.New("stash: invalid key")
)
