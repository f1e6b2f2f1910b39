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

// Package client talks to the stash daemon over its Unix socket. Each
// call opens a fresh connection, writes one request line, and reads one
// response line, matching the daemon's one-exchange-per-connection
// contract.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/jeremyhahn/go-stash/internal/process"
	"github.com/jeremyhahn/go-stash/pkg/protocol"
)

const (
	// spawnPollInterval is how often Connect re-probes the socket while
	// waiting for a freshly spawned daemon.
	spawnPollInterval = 50 * time.Millisecond

	// DefaultSpawnWait bounds how long Connect waits for a spawned
	// daemon to bind its socket.
	DefaultSpawnWait = 5 * time.Second

	// dialTimeout bounds a single connection attempt.
	dialTimeout = 2 * time.Second

	// exchangeTimeout bounds the full request/response round trip. The
	// daemon's own read deadline is 10 s; unlock key derivation can take
	// seconds on slow machines, so allow more.
	exchangeTimeout = 30 * time.Second
)

// ErrDaemonUnavailable indicates no daemon answered on the socket and
// spawning one was disabled or failed.
var ErrDaemonUnavailable = errors.New("client: daemon unavailable")

// Error is a daemon failure response surfaced to callers. Tag is one of
// the stable protocol tags; Message is the daemon's human-readable text.
type Error struct {
	Tag     string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Tag
	}
	return fmt.Sprintf("%s: %s", e.Tag, e.Message)
}

// IsTag reports whether err is a daemon Error carrying the given tag.
func IsTag(err error, tag string) bool {
	var de *Error
	return errors.As(err, &de) && de.Tag == tag
}

// Config describes how to reach (and if necessary start) the daemon.
type Config struct {
	// SocketPath is the daemon's Unix socket.
	SocketPath string

	// AutoSpawn starts the daemon when the socket does not answer.
	AutoSpawn bool

	// DaemonPath is the stashd binary to spawn. Empty means "stashd"
	// resolved via PATH.
	DaemonPath string

	// DaemonArgs are extra arguments for the spawned daemon, typically
	// the --data-dir flag.
	DaemonArgs []string

	// SpawnWait bounds the socket poll after spawning. Zero means
	// DefaultSpawnWait.
	SpawnWait time.Duration
}

// Client is a thin wrapper over the wire protocol. It is safe for
// concurrent use; every call is an independent connection.
type Client struct {
	cfg Config
}

// New creates a client for the given configuration.
func New(cfg Config) *Client {
	if cfg.SpawnWait <= 0 {
		cfg.SpawnWait = DefaultSpawnWait
	}
	if cfg.DaemonPath == "" {
		cfg.DaemonPath = "stashd"
	}
	return &Client{cfg: cfg}
}

// SocketPath returns the socket the client targets.
func (c *Client) SocketPath() string {
	return c.cfg.SocketPath
}

// Do sends one request and returns the decoded response. A failure
// response becomes an *Error carrying the wire tag.
func (c *Client) Do(req *protocol.Request) (*protocol.Response, error) {
	conn, err := c.connect()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(exchangeTimeout))
	if err := protocol.WriteRequest(conn, req); err != nil {
		return nil, fmt.Errorf("client: write request: %w", err)
	}
	resp, err := protocol.ReadResponse(bufio.NewReader(conn))
	if err != nil {
		return nil, fmt.Errorf("client: read response: %w", err)
	}
	if !resp.Ok {
		return resp, &Error{Tag: resp.Error, Message: resp.Message}
	}
	return resp, nil
}

// connect dials the socket, spawning the daemon and polling when the
// first attempt fails and AutoSpawn is on.
func (c *Client) connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.cfg.SocketPath, dialTimeout)
	if err == nil {
		return conn, nil
	}
	if !c.cfg.AutoSpawn {
		return nil, fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}

	if _, err := process.SpawnDaemon(c.cfg.DaemonPath, c.cfg.DaemonArgs...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}

	deadline := time.Now().Add(c.cfg.SpawnWait)
	for {
		conn, err = net.DialTimeout("unix", c.cfg.SocketPath, dialTimeout)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: spawned daemon never bound %s", ErrDaemonUnavailable, c.cfg.SocketPath)
		}
		time.Sleep(spawnPollInterval)
	}
}

// Health reports whether a daemon answers and whether it is unlocked.
type Health struct {
	Unlocked bool
	PID      int
}

// Health queries the daemon's health verb.
func (c *Client) Health() (*Health, error) {
	resp, err := c.Do(&protocol.Request{Command: protocol.CmdHealth})
	if err != nil {
		return nil, err
	}
	h := &Health{Unlocked: resp.DataBool("unlocked")}
	if pid, ok := resp.Data["pid"].(float64); ok {
		h.PID = int(pid)
	}
	return h, nil
}

// Unlock decrypts the stash with the master password.
func (c *Client) Unlock(password string) error {
	_, err := c.Do(&protocol.Request{
		Command: protocol.CmdUnlock,
		Params:  map[string]string{"password": password},
	})
	return err
}

// Lock wipes the session key and returns the daemon to LOCKED.
func (c *Client) Lock() error {
	_, err := c.Do(&protocol.Request{Command: protocol.CmdLock})
	return err
}

// List returns the sorted key names, optionally filtered by substring.
func (c *Client) List(filter string) ([]string, error) {
	req := &protocol.Request{Command: protocol.CmdList}
	if filter != "" {
		req.Params = map[string]string{"filter": filter}
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	return resp.DataStrings("keys"), nil
}

// Get returns the secret value stored under key.
func (c *Client) Get(key string) (string, error) {
	resp, err := c.Do(&protocol.Request{
		Command: protocol.CmdGet,
		Params:  map[string]string{"key": key},
	})
	if err != nil {
		return "", err
	}
	return resp.DataString("value"), nil
}

// Add stores value under key and persists the stash.
func (c *Client) Add(key, value string) error {
	_, err := c.Do(&protocol.Request{
		Command: protocol.CmdAdd,
		Params:  map[string]string{"key": key, "value": value},
	})
	return err
}

// Delete removes key and persists the stash.
func (c *Client) Delete(key string) error {
	_, err := c.Do(&protocol.Request{
		Command: protocol.CmdDelete,
		Params:  map[string]string{"key": key},
	})
	return err
}

// Rename moves a secret from key to newKey and persists the stash.
func (c *Client) Rename(key, newKey string) error {
	_, err := c.Do(&protocol.Request{
		Command: protocol.CmdRename,
		Params:  map[string]string{"key": key, "new_key": newKey},
	})
	return err
}

// ChangePassword re-encrypts the stash under a new master password.
func (c *Client) ChangePassword(oldPassword, newPassword string) error {
	_, err := c.Do(&protocol.Request{
		Command: protocol.CmdChangePassword,
		Params:  map[string]string{"old": oldPassword, "new": newPassword},
	})
	return err
}

// ScheduleClipboardClear asks the daemon to clear the clipboard later if
// it still holds value.
func (c *Client) ScheduleClipboardClear(value string) error {
	_, err := c.Do(&protocol.Request{
		Command: protocol.CmdScheduleClipboardClear,
		Params:  map[string]string{"value": value},
	})
	return err
}

// Stop asks the daemon to lock and shut down.
func (c *Client) Stop() error {
	_, err := c.Do(&protocol.Request{Command: protocol.CmdStop})
	return err
}

// Running reports whether something is listening on the socket without
// spawning a daemon.
func Running(socketPath string) bool {
	if _, err := os.Stat(socketPath); err != nil {
		return false
	}
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
