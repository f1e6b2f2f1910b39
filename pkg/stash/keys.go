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
	"sort"
	"strings"
	"unicode"
)

// MaxKeyLength is the maximum secret key length in bytes.
const MaxKeyLength = 256

// ValidateKey checks a secret key against the validity rules: non-empty,
// at most 256 bytes, no embedded NUL, no leading or trailing whitespace.
// Anything else is permitted.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: key exceeds %d bytes", ErrInvalidKey, MaxKeyLength)
	}
	if strings.ContainsRune(key, '\x00') {
		return fmt.Errorf("%w: key contains NUL byte", ErrInvalidKey)
	}
	if strings.TrimFunc(key, unicode.IsSpace) != key {
		return fmt.Errorf("%w: key has leading or trailing whitespace", ErrInvalidKey)
	}
	return nil
}

// SortedKeys returns the map's keys in lexicographic order. Callers that
// need ordering sort at the boundary; the map itself is unordered.
func SortedKeys(secrets map[string]string) []string {
	keys := make([]string, 0, len(secrets))
	for k := range secrets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
