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
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jeremyhahn/go-stash/internal/config"
	"github.com/jeremyhahn/go-stash/internal/process"
	"github.com/jeremyhahn/go-stash/pkg/clipboard"
	"github.com/jeremyhahn/go-stash/pkg/logging"
	"github.com/jeremyhahn/go-stash/pkg/metrics"
	"github.com/jeremyhahn/go-stash/pkg/ratelimit"
	"github.com/jeremyhahn/go-stash/pkg/stash"
)

// Daemon ties the session, socket server, PID file, and optional
// metrics endpoint into one process lifecycle.
type Daemon struct {
	cfg     *config.Config
	logger  logging.Logger
	metrics *metrics.Metrics

	session *Session
	server  *Server
	pidFile *process.PIDFile
	mserver *metrics.Server

	stopOnce sync.Once
	stopped  chan struct{}
}

// New assembles a daemon from configuration. clip may be nil to use
// whatever clipboard tool the system provides.
func New(cfg *config.Config, logger logging.Logger, clip clipboard.Clipboard) *Daemon {
	if logger == nil {
		logger = logging.Discard()
	}
	if clip == nil {
		clip = clipboard.Detect()
	}

	m := metrics.New()
	session := NewSession(SessionConfig{
		Stash:             stash.New(cfg.StashPath()),
		Logger:            logger,
		Metrics:           m,
		Clipboard:         clip,
		InactivityTimeout: time.Duration(cfg.InactivityLockSeconds) * time.Second,
		ClipboardTimeout:  time.Duration(cfg.ClipboardClearSeconds) * time.Second,
	})

	d := &Daemon{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		session: session,
		stopped: make(chan struct{}),
	}

	limiter := ratelimit.New(&ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		AttemptsPerMinute: cfg.RateLimit.AttemptsPerMinute,
		Burst:             cfg.RateLimit.Burst,
	})
	handler := NewHandler(session, limiter, logger, m, d.Stop)
	d.server = NewServer(cfg.SocketPath(), cfg.PIDPath(), handler, logger)
	return d
}

// Session exposes the state machine, mainly for tests.
func (d *Daemon) Session() *Session {
	return d.session
}

// Run acquires the PID file, binds the socket, and serves until Stop or
// a termination signal. It always releases the PID file and wipes key
// material on the way out.
func (d *Daemon) Run(ctx context.Context) error {
	if err := os.MkdirAll(d.cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("daemon: create data directory: %w", err)
	}

	pidFile, err := process.Acquire(d.cfg.PIDPath())
	if err != nil {
		return err
	}
	d.pidFile = pidFile
	defer func() {
		if err := d.pidFile.Release(); err != nil {
			d.logger.WithError(err).Warn("pid file release failed")
		}
	}()

	// The pid file now records this process, so Listen would take a
	// leftover socket for a live daemon's. Holding the flock proves no
	// other daemon runs, so any socket still present is stale.
	if err := os.Remove(d.cfg.SocketPath()); err == nil {
		d.logger.Warn("removed stale socket", logging.String("path", d.cfg.SocketPath()))
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("daemon: remove stale socket: %w", err)
	}

	// Probe the record early so a corrupt stash shows up in the log at
	// startup, not on first unlock. A missing file is a fresh install.
	if st := d.session.Stash(); st.Exists() {
		if _, err := st.Store().LoadRecord(); err != nil {
			d.logger.WithError(err).Warn("stash record unreadable")
		}
	} else {
		d.logger.Info("no stash file yet", logging.String("path", d.cfg.StashPath()))
	}

	if err := d.server.Listen(); err != nil {
		return err
	}

	if d.cfg.Metrics.Enabled {
		ms, err := metrics.NewServer(d.cfg.Metrics.ListenAddr, d.metrics, d.logger)
		if err != nil {
			d.logger.WithError(err).Warn("metrics endpoint disabled")
		} else {
			d.mserver = ms
			go ms.Start()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGTERM, unix.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			d.logger.Info("signal received, stopping", logging.String("signal", sig.String()))
			d.Stop()
		case <-ctx.Done():
			d.Stop()
		case <-d.stopped:
		}
	}()

	d.logger.Info("daemon started",
		logging.Int("pid", os.Getpid()),
		logging.String("data_dir", d.cfg.DataDir))

	serveErr := d.server.Serve()

	d.session.Shutdown()
	if d.mserver != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = d.mserver.Shutdown(shutdownCtx)
		cancel()
	}
	d.logger.Info("daemon stopped")
	return serveErr
}

// Stop initiates shutdown: the listener closes, Serve drains in-flight
// connections and returns, and Run cleans up. Safe to call more than
// once and from handler goroutines.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopped)
		// The stop response must reach the client before the connection
		// dies with the listener; handler goroutines finish first.
		go func() {
			if err := d.server.Close(); err != nil {
				d.logger.WithError(err).Warn("listener close failed")
			}
		}()
	})
}
