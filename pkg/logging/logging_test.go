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

package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("info"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestSlogAdapterWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogAdapter(&SlogConfig{Writer: &buf, Level: LevelDebug})

	log.Info("daemon started", String("socket", "/tmp/daemon.sock"), Int("pid", 42))
	out := buf.String()
	assert.Contains(t, out, "daemon started")
	assert.Contains(t, out, "socket=/tmp/daemon.sock")
	assert.Contains(t, out, "pid=42")
}

func TestSlogAdapterLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogAdapter(&SlogConfig{Writer: &buf, Level: LevelWarn})

	log.Debug("hidden")
	log.Info("hidden too")
	log.Warn("shown")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestWithAccumulatesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogAdapter(&SlogConfig{Writer: &buf, Level: LevelDebug})

	child := log.With(String("conn", "abc123"))
	child.Info("request handled", String("verb", "list"))
	out := buf.String()
	assert.Contains(t, out, "conn=abc123")
	assert.Contains(t, out, "verb=list")
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogAdapter(&SlogConfig{Writer: &buf, Level: LevelDebug})

	log.WithError(errors.New("boom")).Error("handler failed")
	assert.Contains(t, buf.String(), "boom")
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "stashd.log")
	log, closer, err := OpenFile(path, LevelInfo)
	require.NoError(t, err)
	defer closer.Close()

	log.Info("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard().Error("dropped", Any("x", struct{}{}))
	})
}
