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

// Package correlation tags each accepted connection with a unique id so
// log lines from a single request can be grepped together.
package correlation

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

// ConnectionIDKey is the context key for storing connection IDs.
const ConnectionIDKey contextKey = "connection-id"

// WithConnectionID adds a connection ID to the context.
func WithConnectionID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ConnectionIDKey, id)
}

// GetConnectionID retrieves the connection ID from context.
// Returns an empty string if none is present.
func GetConnectionID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(ConnectionIDKey).(string); ok {
		return id
	}
	return ""
}

// NewID generates a new UUID v4 connection ID.
func NewID() string {
	return uuid.New().String()
}

// GetOrGenerate retrieves an existing connection ID from context or
// generates a new one if none exists.
func GetOrGenerate(ctx context.Context) string {
	if id := GetConnectionID(ctx); id != "" {
		return id
	}
	return NewID()
}
