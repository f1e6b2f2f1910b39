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

// Package protocol defines the line-JSON wire contract spoken over the
// daemon socket: one request line in, one response line out, connection
// closed. The verb set and error tags are stable; clients match on the
// tag, never on the message text.
package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Recognized verbs.
const (
	CmdHealth                 = "health"
	CmdUnlock                 = "unlock"
	CmdLock                   = "lock"
	CmdList                   = "list"
	CmdGet                    = "get"
	CmdAdd                    = "add"
	CmdDelete                 = "delete"
	CmdRename                 = "rename"
	CmdChangePassword         = "change_password"
	CmdScheduleClipboardClear = "schedule_clipboard_clear"
	CmdStop                   = "stop"
)

// Stable error tags carried in Response.Error.
const (
	TagLocked        = "Locked"
	TagWrongPassword = "WrongPassword"
	TagNoStash       = "NoStash"
	TagCorruptStash  = "CorruptStash"
	TagNoSuchKey     = "NoSuchKey"
	TagInvalidKey    = "InvalidKey"
	TagBadRequest    = "BadRequest"
	TagInternal      = "Internal"
)

// MaxLineBytes bounds a single request or response line. Secret values are
// small; anything larger is a protocol violation, not a legitimate request.
const MaxLineBytes = 1 << 20

// Request is a single command sent to the daemon. Params carries the
// verb's string arguments; a missing params object is an empty map.
type Request struct {
	Command string            `json:"command"`
	Params  map[string]string `json:"params,omitempty"`
}

// Param returns the named parameter, or "" if absent.
func (r *Request) Param(name string) string {
	return r.Params[name]
}

// Response is the daemon's answer. On success Ok is true and Data carries
// the verb's result fields. On failure Ok is false, Error holds a stable
// tag, and Message a human-readable explanation that never contains
// passwords, keys, or secret values.
type Response struct {
	Ok      bool           `json:"ok"`
	Data    map[string]any `json:"data,omitempty"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Success builds an ok response with the given data fields.
func Success(data map[string]any) *Response {
	if data == nil {
		data = map[string]any{}
	}
	return &Response{Ok: true, Data: data}
}

// Fail builds an error response carrying the stable tag and message.
func Fail(tag, message string) *Response {
	return &Response{Ok: false, Error: tag, Message: message}
}

// Failf builds an error response with a formatted message.
func Failf(tag, format string, args ...any) *Response {
	return Fail(tag, fmt.Sprintf(format, args...))
}

// WriteRequest encodes a request as a single JSON line.
func WriteRequest(w io.Writer, req *Request) error {
	return writeLine(w, req)
}

// WriteResponse encodes a response as a single JSON line.
func WriteResponse(w io.Writer, resp *Response) error {
	return writeLine(w, resp)
}

func writeLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("protocol: encode: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("protocol: write: %w", err)
	}
	return nil
}

// ReadRequest reads one newline-terminated JSON request. A malformed line
// yields an error the server maps to BadRequest; an immediate EOF is
// returned as io.EOF so the server can close silently.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, fmt.Errorf("protocol: malformed request: %w", err)
	}
	if req.Params == nil {
		req.Params = map[string]string{}
	}
	return &req, nil
}

// ReadResponse reads one newline-terminated JSON response.
func ReadResponse(r *bufio.Reader) (*Response, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("protocol: malformed response: %w", err)
	}
	return &resp, nil
}

func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if err == io.EOF && len(line) > 0 {
		// A final unterminated line still counts as one line.
		return line, nil
	}
	if err != nil {
		return nil, err
	}
	if len(line) > MaxLineBytes {
		return nil, fmt.Errorf("protocol: line exceeds %d bytes", MaxLineBytes)
	}
	return line, nil
}

// DataString extracts a string field from a response's data object.
func (r *Response) DataString(name string) string {
	if s, ok := r.Data[name].(string); ok {
		return s
	}
	return ""
}

// DataStrings extracts a string slice field from a response's data object.
// JSON arrays decode as []any, whose string elements are kept; a []string
// set by an in-process handler is returned as a copy.
func (r *Response) DataStrings(name string) []string {
	if s, ok := r.Data[name].([]string); ok {
		return append([]string(nil), s...)
	}
	raw, ok := r.Data[name].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// DataBool extracts a bool field from a response's data object.
func (r *Response) DataBool(name string) bool {
	b, ok := r.Data[name].(bool)
	return ok && b
}
