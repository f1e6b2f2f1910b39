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
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-stash/pkg/protocol"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	handler, _ := newTestHandler(t)

	srv := NewServer(filepath.Join(dir, "daemon.sock"), filepath.Join(dir, "daemon.pid"), handler, nil)
	require.NoError(t, srv.Listen())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve()
	}()
	t.Cleanup(func() {
		require.NoError(t, srv.Close())
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Serve did not return after Close")
		}
	})
	return srv
}

func exchange(t *testing.T, srv *Server, req *protocol.Request) *protocol.Response {
	t.Helper()
	conn, err := net.Dial("unix", srv.Addr())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, protocol.WriteRequest(conn, req))
	resp, err := protocol.ReadResponse(bufio.NewReader(conn))
	require.NoError(t, err)
	return resp
}

func TestServerExchange(t *testing.T) {
	srv := startTestServer(t)

	resp := exchange(t, srv, &protocol.Request{Command: protocol.CmdHealth})
	require.True(t, resp.Ok)
	assert.Equal(t, false, resp.Data["unlocked"])

	resp = exchange(t, srv, &protocol.Request{
		Command: protocol.CmdUnlock,
		Params:  map[string]string{"password": "hunter2"},
	})
	require.True(t, resp.Ok, "unlock failed: %s", resp.Message)

	resp = exchange(t, srv, &protocol.Request{
		Command: protocol.CmdAdd,
		Params:  map[string]string{"key": "k", "value": "v"},
	})
	require.True(t, resp.Ok)

	resp = exchange(t, srv, &protocol.Request{
		Command: protocol.CmdGet,
		Params:  map[string]string{"key": "k"},
	})
	require.True(t, resp.Ok)
	assert.Equal(t, "v", resp.Data["value"])
}

func TestServerMalformedLine(t *testing.T) {
	srv := startTestServer(t)

	conn, err := net.Dial("unix", srv.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = fmt.Fprintln(conn, "this is not json")
	require.NoError(t, err)

	resp, err := protocol.ReadResponse(bufio.NewReader(conn))
	require.NoError(t, err)
	require.False(t, resp.Ok)
	assert.Equal(t, protocol.TagBadRequest, resp.Error)
}

func TestServerConcurrentClients(t *testing.T) {
	srv := startTestServer(t)

	resp := exchange(t, srv, &protocol.Request{
		Command: protocol.CmdUnlock,
		Params:  map[string]string{"password": "hunter2"},
	})
	require.True(t, resp.Ok)

	done := make(chan *protocol.Response, 8)
	for i := 0; i < 8; i++ {
		go func(i int) {
			done <- exchange(t, srv, &protocol.Request{
				Command: protocol.CmdAdd,
				Params:  map[string]string{"key": fmt.Sprintf("key-%d", i), "value": "v"},
			})
		}(i)
	}
	for i := 0; i < 8; i++ {
		resp := <-done
		require.True(t, resp.Ok, "concurrent add failed: %s", resp.Message)
	}

	resp = exchange(t, srv, &protocol.Request{Command: protocol.CmdList})
	require.True(t, resp.Ok)
	assert.Len(t, resp.DataStrings("keys"), 8)
}

func TestServerSocketPermissions(t *testing.T) {
	srv := startTestServer(t)

	info, err := os.Stat(srv.Addr())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestServerReplacesStaleSocket(t *testing.T) {
	dir := t.TempDir()
	socketPath := filepath.Join(dir, "daemon.sock")
	pidPath := filepath.Join(dir, "daemon.pid")

	// A dead daemon left its socket behind. No process owns the pid.
	require.NoError(t, os.WriteFile(socketPath, nil, 0600))
	require.NoError(t, os.WriteFile(pidPath, []byte("999999"), 0600))

	handler, _ := newTestHandler(t)
	srv := NewServer(socketPath, pidPath, handler, nil)
	require.NoError(t, srv.Listen())
	t.Cleanup(func() { _ = srv.Close() })
}

func TestServerRefusesLiveSocket(t *testing.T) {
	dir := t.TempDir()
	socketPath := filepath.Join(dir, "daemon.sock")
	pidPath := filepath.Join(dir, "daemon.pid")

	require.NoError(t, os.WriteFile(socketPath, nil, 0600))
	require.NoError(t, os.WriteFile(pidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0600))

	handler, _ := newTestHandler(t)
	srv := NewServer(socketPath, pidPath, handler, nil)
	err := srv.Listen()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "live pid")
}

func TestServerServeBeforeListen(t *testing.T) {
	handler, _ := newTestHandler(t)
	srv := NewServer(filepath.Join(t.TempDir(), "daemon.sock"), "", handler, nil)
	require.Error(t, srv.Serve())
}
