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

package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	f := New("s3cret")
	assert.True(t, f.Matches("s3cret"))
	assert.False(t, f.Matches("s3cret "))
	assert.False(t, f.Matches(""))
}

func TestDeterministic(t *testing.T) {
	assert.Equal(t, New("abc"), New("abc"))
	assert.NotEqual(t, New("abc"), New("abd"))
}

func TestEmptyValue(t *testing.T) {
	f := New("")
	assert.True(t, f.Matches(""))
	assert.False(t, f.Matches("x"))
}
