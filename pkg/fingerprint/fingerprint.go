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

// Package fingerprint produces one-way digests of secret values. The
// daemon keeps only the fingerprint of a value handed to the clipboard,
// never the value itself, and uses it for the compare-and-clear check.
package fingerprint

import (
	"crypto/sha256"
	"crypto/subtle"
)

// Size is the digest length in bytes.
const Size = sha256.Size

// Fingerprint is a SHA-256 digest of a secret value.
type Fingerprint [Size]byte

// New computes the fingerprint of value.
func New(value string) Fingerprint {
	return sha256.Sum256([]byte(value))
}

// Matches reports whether value has this fingerprint. The comparison is
// constant time.
func (f Fingerprint) Matches(value string) bool {
	sum := sha256.Sum256([]byte(value))
	return subtle.ConstantTimeCompare(f[:], sum[:]) == 1
}
