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

// Package metrics records daemon operation counters and timings with
// Prometheus collectors. Label values are verbs and stable error tags
// only; key names and secret values never become labels.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the daemon's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	unlockFailures   prometheus.Counter
	deriveDuration   prometheus.Histogram
	persistTotal     prometheus.Counter
	sessionUnlocked  prometheus.Gauge
	autoLocksTotal   prometheus.Counter
	clipboardCleared prometheus.Counter
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stashd",
			Name:      "requests_total",
			Help:      "Requests handled, by verb and outcome (ok or error tag).",
		}, []string{"verb", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stashd",
			Name:      "request_duration_seconds",
			Help:      "Request handling time, by verb.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"verb"}),
		unlockFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stashd",
			Name:      "unlock_failures_total",
			Help:      "Password verification failures.",
		}),
		deriveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stashd",
			Name:      "key_derivation_seconds",
			Help:      "scrypt key derivation time.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		persistTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stashd",
			Name:      "persist_total",
			Help:      "Atomic stash file writes.",
		}),
		sessionUnlocked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stashd",
			Name:      "session_unlocked",
			Help:      "1 while the session is unlocked, else 0.",
		}),
		autoLocksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stashd",
			Name:      "auto_locks_total",
			Help:      "Locks triggered by the inactivity timer.",
		}),
		clipboardCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stashd",
			Name:      "clipboard_clears_total",
			Help:      "Clipboard compare-and-clear operations that wiped the clipboard.",
		}),
	}
	reg.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.unlockFailures,
		m.deriveDuration,
		m.persistTotal,
		m.sessionUnlocked,
		m.autoLocksTotal,
		m.clipboardCleared,
	)
	return m
}

// Registry exposes the private registry for the exposition server.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one handled request. outcome is "ok" or the
// stable error tag.
func (m *Metrics) ObserveRequest(verb, outcome string, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(verb, outcome).Inc()
	m.requestDuration.WithLabelValues(verb).Observe(elapsed.Seconds())
}

// UnlockFailure counts one failed password verification.
func (m *Metrics) UnlockFailure() {
	m.unlockFailures.Inc()
}

// ObserveDerivation records one scrypt derivation.
func (m *Metrics) ObserveDerivation(elapsed time.Duration) {
	m.deriveDuration.Observe(elapsed.Seconds())
}

// Persist counts one atomic stash file write.
func (m *Metrics) Persist() {
	m.persistTotal.Inc()
}

// SetUnlocked tracks the session state gauge.
func (m *Metrics) SetUnlocked(unlocked bool) {
	if unlocked {
		m.sessionUnlocked.Set(1)
	} else {
		m.sessionUnlocked.Set(0)
	}
}

// AutoLock counts one inactivity-timer lock.
func (m *Metrics) AutoLock() {
	m.autoLocksTotal.Inc()
}

// ClipboardCleared counts one successful compare-and-clear wipe.
func (m *Metrics) ClipboardCleared() {
	m.clipboardCleared.Inc()
}
