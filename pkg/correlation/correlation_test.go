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

package correlation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithConnectionID(t *testing.T) {
	ctx := WithConnectionID(context.Background(), "abc")
	assert.Equal(t, "abc", GetConnectionID(ctx))
}

func TestGetConnectionIDMissing(t *testing.T) {
	assert.Empty(t, GetConnectionID(context.Background()))
	assert.Empty(t, GetConnectionID(nil)) //nolint:staticcheck
}

func TestNewIDUnique(t *testing.T) {
	assert.NotEqual(t, NewID(), NewID())
}

func TestGetOrGenerate(t *testing.T) {
	ctx := WithConnectionID(context.Background(), "keep")
	assert.Equal(t, "keep", GetOrGenerate(ctx))
	assert.NotEmpty(t, GetOrGenerate(context.Background()))
}
