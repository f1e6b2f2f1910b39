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
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jeremyhahn/go-stash/internal/process"
	"github.com/jeremyhahn/go-stash/pkg/correlation"
	"github.com/jeremyhahn/go-stash/pkg/logging"
	"github.com/jeremyhahn/go-stash/pkg/protocol"
)

const (
	// requestReadTimeout closes a connection whose client never sends a
	// complete line.
	requestReadTimeout = 10 * time.Second

	// socketPerms keeps the socket owner-only.
	socketPerms = 0600
)

// Server accepts connections on the Unix socket and runs one
// request/response exchange per connection.
type Server struct {
	socketPath string
	pidPath    string
	handler    *Handler
	logger     logging.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    sync.WaitGroup
	closed   bool
}

// NewServer creates a server for the socket at socketPath. pidPath is
// used to decide whether a stale socket belongs to a live daemon.
func NewServer(socketPath, pidPath string, handler *Handler, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		socketPath: socketPath,
		pidPath:    pidPath,
		handler:    handler,
		logger:     logger,
	}
}

// Listen binds the socket, replacing a stale one left by a dead daemon.
// A socket whose recorded pid is still alive refuses the bind.
func (s *Server) Listen() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0700); err != nil {
		return fmt.Errorf("daemon: create socket directory: %w", err)
	}

	if _, err := os.Stat(s.socketPath); err == nil {
		pid := process.ReadPID(s.pidPath)
		if pid != 0 && process.Alive(pid) {
			return fmt.Errorf("daemon: socket %s is held by live pid %d", s.socketPath, pid)
		}
		s.logger.Warn("removing stale socket", logging.String("path", s.socketPath))
		if err := os.Remove(s.socketPath); err != nil {
			return fmt.Errorf("daemon: remove stale socket: %w", err)
		}
	}

	// Hold the socket at 0600 from birth; chmod after listen would leave
	// a window at the umask default.
	oldMask := setUmask(0o177)
	ln, err := net.Listen("unix", s.socketPath)
	setUmask(oldMask)
	if err != nil {
		return fmt.Errorf("daemon: listen %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, socketPerms); err != nil {
		_ = ln.Close()
		return fmt.Errorf("daemon: chmod socket: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.closed = false
	s.mu.Unlock()
	s.logger.Info("listening", logging.String("socket", s.socketPath))
	return nil
}

// Serve accepts connections until Close. Each connection is handled on
// its own goroutine; the session mutex serializes the handlers.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("daemon: Serve before Listen")
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || errors.Is(err, net.ErrClosed) {
				s.conns.Wait()
				return nil
			}
			return fmt.Errorf("daemon: accept: %w", err)
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConn(conn)
		}()
	}
}

// handleConn runs the single request/response exchange.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	connID := correlation.NewID()
	log := s.logger.With(logging.String("conn", connID))

	if err := conn.SetReadDeadline(time.Now().Add(requestReadTimeout)); err != nil {
		log.WithError(err).Warn("set read deadline failed")
		return
	}

	req, err := protocol.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			// No complete line within the timeout: close silently.
			log.Debug("request read timed out")
			return
		}
		s.respond(conn, log, protocol.Fail(protocol.TagBadRequest, "request is not a valid JSON line"))
		return
	}

	s.respond(conn, log, s.handler.Dispatch(req))
}

func (s *Server) respond(conn net.Conn, log logging.Logger, resp *protocol.Response) {
	_ = conn.SetWriteDeadline(time.Now().Add(requestReadTimeout))
	if err := protocol.WriteResponse(conn, resp); err != nil {
		log.WithError(err).Warn("write response failed")
	}
}

// Close stops accepting and unlinks the socket. In-flight connections
// finish inside Serve before it returns.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.listener == nil {
		return nil
	}
	s.closed = true
	return s.listener.Close()
}

// Addr returns the socket path the server is bound to.
func (s *Server) Addr() string {
	return s.socketPath
}
