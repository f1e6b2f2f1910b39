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

package daemon

import (
	"errors"
	"os"
	"time"

	"github.com/jeremyhahn/go-stash/pkg/logging"
	"github.com/jeremyhahn/go-stash/pkg/metrics"
	"github.com/jeremyhahn/go-stash/pkg/protocol"
	"github.com/jeremyhahn/go-stash/pkg/ratelimit"
	"github.com/jeremyhahn/go-stash/pkg/stash"
)

// Handler dispatches wire requests against the session. It owns the
// error-to-tag mapping; sentinel errors never cross the socket.
type Handler struct {
	session *Session
	limiter *ratelimit.Limiter
	logger  logging.Logger
	metrics *metrics.Metrics

	// requestStop asks the daemon to shut down after the response is
	// written. Wired by the daemon; nil in unit tests.
	requestStop func()
}

// NewHandler builds the dispatch layer.
func NewHandler(session *Session, limiter *ratelimit.Limiter, logger logging.Logger, m *metrics.Metrics, requestStop func()) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	if m == nil {
		m = metrics.New()
	}
	if limiter == nil {
		limiter = ratelimit.New(nil)
	}
	return &Handler{
		session:     session,
		limiter:     limiter,
		logger:      logger,
		metrics:     m,
		requestStop: requestStop,
	}
}

// Dispatch routes one request to its handler and returns the response.
func (h *Handler) Dispatch(req *protocol.Request) *protocol.Response {
	start := time.Now()
	resp := h.dispatch(req)

	outcome := "ok"
	if !resp.Ok {
		outcome = resp.Error
	}
	h.metrics.ObserveRequest(req.Command, outcome, time.Since(start))
	h.logger.Debug("request handled",
		logging.String("verb", req.Command),
		logging.String("outcome", outcome))
	return resp
}

func (h *Handler) dispatch(req *protocol.Request) *protocol.Response {
	switch req.Command {
	case protocol.CmdHealth:
		return h.health()
	case protocol.CmdUnlock:
		return h.unlock(req)
	case protocol.CmdLock:
		h.session.Lock()
		return protocol.Success(nil)
	case protocol.CmdList:
		return h.list(req)
	case protocol.CmdGet:
		return h.get(req)
	case protocol.CmdAdd:
		return h.add(req)
	case protocol.CmdDelete:
		return h.delete(req)
	case protocol.CmdRename:
		return h.rename(req)
	case protocol.CmdChangePassword:
		return h.changePassword(req)
	case protocol.CmdScheduleClipboardClear:
		return h.scheduleClipboardClear(req)
	case protocol.CmdStop:
		return h.stop()
	case "":
		return protocol.Fail(protocol.TagBadRequest, "missing command")
	default:
		return protocol.Failf(protocol.TagBadRequest, "unknown command %q", req.Command)
	}
}

func (h *Handler) health() *protocol.Response {
	return protocol.Success(map[string]any{
		"unlocked": h.session.Unlocked(),
		"pid":      os.Getpid(),
	})
}

func (h *Handler) unlock(req *protocol.Request) *protocol.Response {
	password := req.Param("password")
	if password == "" {
		return protocol.Fail(protocol.TagBadRequest, "missing 'password' parameter")
	}
	if !h.limiter.Allow() {
		h.logger.Warn("unlock attempt rate limited")
		return protocol.Fail(protocol.TagWrongPassword, "too many attempts, slow down")
	}
	if err := h.session.Unlock([]byte(password)); err != nil {
		return errorResponse(err)
	}
	return protocol.Success(nil)
}

func (h *Handler) list(req *protocol.Request) *protocol.Response {
	keys, err := h.session.List(req.Param("filter"))
	if err != nil {
		return errorResponse(err)
	}
	return protocol.Success(map[string]any{"keys": keys})
}

func (h *Handler) get(req *protocol.Request) *protocol.Response {
	key := req.Param("key")
	if key == "" {
		return protocol.Fail(protocol.TagBadRequest, "missing 'key' parameter")
	}
	value, err := h.session.Get(key)
	if err != nil {
		return errorResponse(err)
	}
	return protocol.Success(map[string]any{"value": value})
}

func (h *Handler) add(req *protocol.Request) *protocol.Response {
	key, value := req.Param("key"), req.Param("value")
	if key == "" {
		return protocol.Fail(protocol.TagBadRequest, "missing 'key' parameter")
	}
	if value == "" {
		return protocol.Fail(protocol.TagBadRequest, "missing or empty 'value' parameter")
	}
	if err := h.session.Add(key, value); err != nil {
		return errorResponse(err)
	}
	return protocol.Success(nil)
}

func (h *Handler) delete(req *protocol.Request) *protocol.Response {
	key := req.Param("key")
	if key == "" {
		return protocol.Fail(protocol.TagBadRequest, "missing 'key' parameter")
	}
	if err := h.session.Delete(key); err != nil {
		return errorResponse(err)
	}
	return protocol.Success(nil)
}

func (h *Handler) rename(req *protocol.Request) *protocol.Response {
	key, newKey := req.Param("key"), req.Param("new_key")
	if key == "" || newKey == "" {
		return protocol.Fail(protocol.TagBadRequest, "missing 'key' or 'new_key' parameter")
	}
	if err := h.session.Rename(key, newKey); err != nil {
		return errorResponse(err)
	}
	return protocol.Success(nil)
}

func (h *Handler) changePassword(req *protocol.Request) *protocol.Response {
	oldPassword, newPassword := req.Param("old"), req.Param("new")
	if oldPassword == "" || newPassword == "" {
		return protocol.Fail(protocol.TagBadRequest, "missing 'old' or 'new' parameter")
	}
	if !h.limiter.Allow() {
		h.logger.Warn("change_password attempt rate limited")
		return protocol.Fail(protocol.TagWrongPassword, "too many attempts, slow down")
	}
	if err := h.session.ChangePassword([]byte(oldPassword), []byte(newPassword)); err != nil {
		return errorResponse(err)
	}
	return protocol.Success(nil)
}

func (h *Handler) scheduleClipboardClear(req *protocol.Request) *protocol.Response {
	value := req.Param("value")
	if value == "" {
		return protocol.Fail(protocol.TagBadRequest, "missing 'value' parameter")
	}
	if err := h.session.ScheduleClipboardClear(value); err != nil {
		return errorResponse(err)
	}
	return protocol.Success(nil)
}

func (h *Handler) stop() *protocol.Response {
	h.session.Lock()
	if h.requestStop != nil {
		h.requestStop()
	}
	return protocol.Success(nil)
}

// errorResponse maps sentinel errors to stable wire tags. The message is
// the error text, which never carries passwords, keys, or secret values.
func errorResponse(err error) *protocol.Response {
	switch {
	case errors.Is(err, ErrLocked):
		return protocol.Fail(protocol.TagLocked, "stash is locked")
	case errors.Is(err, stash.ErrWrongPassword):
		return protocol.Fail(protocol.TagWrongPassword, "wrong password or tampered stash")
	case errors.Is(err, stash.ErrNoStash):
		return protocol.Fail(protocol.TagNoStash, "stash file does not exist")
	case errors.Is(err, stash.ErrCorrupt):
		return protocol.Fail(protocol.TagCorruptStash, "stash file is corrupt")
	case errors.Is(err, stash.ErrNoSuchKey):
		return protocol.Fail(protocol.TagNoSuchKey, err.Error())
	case errors.Is(err, stash.ErrInvalidKey):
		return protocol.Fail(protocol.TagInvalidKey, err.Error())
	case errors.Is(err, ErrKeyExists):
		return protocol.Fail(protocol.TagInvalidKey, err.Error())
	case errors.Is(err, ErrEmptyValue):
		return protocol.Fail(protocol.TagBadRequest, err.Error())
	case errors.Is(err, stash.ErrEmptyPassword):
		return protocol.Fail(protocol.TagBadRequest, "password cannot be empty")
	default:
		return protocol.Fail(protocol.TagInternal, "internal error")
	}
}
