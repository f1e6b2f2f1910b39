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

// Package ratelimit throttles password attempts. The stash is a local
// single-user store, so a single token bucket covers all connections;
// the limiter slows an offline guesser who has gained socket access
// without blocking an interactive user.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket over password verification attempts
// (unlock and change_password).
type Limiter struct {
	mu      sync.Mutex
	bucket  *rate.Limiter
	enabled bool
}

// Config holds rate limiter configuration.
type Config struct {
	// Enabled controls whether rate limiting is active.
	Enabled bool

	// AttemptsPerMinute sets the sustained attempt rate.
	AttemptsPerMinute int

	// Burst allows short bursts above the sustained rate.
	// If not set, defaults to AttemptsPerMinute.
	Burst int
}

// DefaultConfig allows 30 attempts per minute with a burst of 10, far
// above what a human retyping a password reaches.
func DefaultConfig() *Config {
	return &Config{Enabled: true, AttemptsPerMinute: 30, Burst: 10}
}

// New creates a limiter from the configuration. A nil config disables
// limiting.
func New(config *Config) *Limiter {
	if config == nil {
		config = &Config{Enabled: false}
	}
	burst := config.Burst
	if burst == 0 {
		burst = config.AttemptsPerMinute
	}
	perSecond := rate.Limit(float64(config.AttemptsPerMinute) / 60.0)
	return &Limiter{
		bucket:  rate.NewLimiter(perSecond, burst),
		enabled: config.Enabled,
	}
}

// Allow reports whether another password attempt may proceed now.
func (l *Limiter) Allow() bool {
	if !l.enabled {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bucket.Allow()
}

// Reserve returns how long the caller must wait before the next attempt
// is admitted, consuming the reservation. Zero means go ahead.
func (l *Limiter) Reserve() time.Duration {
	if !l.enabled {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bucket.Reserve().Delay()
}

// Enabled reports whether limiting is active.
func (l *Limiter) Enabled() bool {
	return l.enabled
}
