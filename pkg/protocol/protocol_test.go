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

package protocol

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := &Request{Command: CmdGet, Params: map[string]string{"key": "work/api"}}
	require.NoError(t, WriteRequest(&buf, req))
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))

	got, err := ReadRequest(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, CmdGet, got.Command)
	assert.Equal(t, "work/api", got.Param("key"))
}

func TestRequestMissingParams(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(`{"command":"lock"}` + "\n"))
	req, err := ReadRequest(r)
	require.NoError(t, err)
	assert.NotNil(t, req.Params)
	assert.Empty(t, req.Param("key"))
}

func TestRequestMalformed(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("not json\n"))
	_, err := ReadRequest(r)
	assert.Error(t, err)
}

func TestRequestEOF(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(""))
	_, err := ReadRequest(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestRequestUnterminatedLine(t *testing.T) {
	// A request whose final line lacks the newline still parses.
	r := bufio.NewReader(strings.NewReader(`{"command":"health"}`))
	req, err := ReadRequest(r)
	require.NoError(t, err)
	assert.Equal(t, CmdHealth, req.Command)
}

func TestResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	resp := Success(map[string]any{"keys": []string{"a", "b"}})
	require.NoError(t, WriteResponse(&buf, resp))

	got, err := ReadResponse(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.True(t, got.Ok)
	assert.Equal(t, []string{"a", "b"}, got.DataStrings("keys"))
}

func TestFailCarriesTagAndMessage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, Failf(TagNoSuchKey, "no secret named %q", "nope")))

	got, err := ReadResponse(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.False(t, got.Ok)
	assert.Equal(t, TagNoSuchKey, got.Error)
	assert.Contains(t, got.Message, "nope")
}

func TestSuccessNeverNilData(t *testing.T) {
	resp := Success(nil)
	assert.NotNil(t, resp.Data)
}

func TestDataAccessors(t *testing.T) {
	resp := &Response{
		Ok: true,
		Data: map[string]any{
			"value":    "s3cret",
			"unlocked": true,
			"keys":     []any{"a", "b"},
		},
	}
	assert.Equal(t, "s3cret", resp.DataString("value"))
	assert.True(t, resp.DataBool("unlocked"))
	assert.Equal(t, []string{"a", "b"}, resp.DataStrings("keys"))

	assert.Empty(t, resp.DataString("missing"))
	assert.False(t, resp.DataBool("missing"))
	assert.Nil(t, resp.DataStrings("missing"))
}

func TestErrorTagsAreStable(t *testing.T) {
	// The wire contract: these exact strings, forever.
	tags := map[string]string{
		TagLocked:        "Locked",
		TagWrongPassword: "WrongPassword",
		TagNoStash:       "NoStash",
		TagCorruptStash:  "CorruptStash",
		TagNoSuchKey:     "NoSuchKey",
		TagInvalidKey:    "InvalidKey",
		TagBadRequest:    "BadRequest",
		TagInternal:      "Internal",
	}
	for got, want := range tags {
		assert.Equal(t, want, got)
	}
}
