// Package metrics exposes publisher and watchdog counters through a private
// Prometheus registry. There is no HTTP endpoint: the registry is written to a
// node_exporter textfile so collection stays filesystem-only.
package metrics

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Skip reasons for publish cycles that did not replace the artifact.
const (
	SkipEmpty      = "empty"
	SkipRace       = "race"
	SkipUnchanged  = "unchanged"
	SkipIncomplete = "incomplete"
	SkipError      = "error"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	path     string

	cycles        prometheus.Counter
	published     prometheus.Counter
	skipped       *prometheus.CounterVec
	lastPublish   prometheus.Gauge
	frameAge      prometheus.Gauge
	launches      prometheus.Counter
	exits         *prometheus.CounterVec
	restartsTotal prometheus.Gauge
	state         *prometheus.GaugeVec

	mu        sync.Mutex
	lastFlush time.Time
}

// New creates a registry. path is the textfile target; empty disables Flush.
func New(path string) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		path:     path,
		cycles: f.NewCounter(prometheus.CounterOpts{
			Name: "adris_publish_cycles_total",
			Help: "Total number of publish cycles run",
		}),
		published: f.NewCounter(prometheus.CounterOpts{
			Name: "adris_frames_published_total",
			Help: "Total number of frames atomically published",
		}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "adris_publish_skipped_total",
			Help: "Publish cycles that left the artifact untouched",
		}, []string{"reason"}),
		lastPublish: f.NewGauge(prometheus.GaugeOpts{
			Name: "adris_last_publish_timestamp_seconds",
			Help: "Unix time of the last successful publish",
		}),
		frameAge: f.NewGauge(prometheus.GaugeOpts{
			Name: "adris_frame_age_seconds",
			Help: "Age of the newest numbered frame at the last cycle",
		}),
		launches: f.NewCounter(prometheus.CounterOpts{
			Name: "adris_watchdog_launches_total",
			Help: "Total number of application launch attempts",
		}),
		exits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "adris_watchdog_exits_total",
			Help: "Application exits by outcome",
		}, []string{"status"}),
		restartsTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "adris_watchdog_restarts",
			Help: "Cumulative restart count of the current watchdog",
		}),
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "adris_watchdog_state",
			Help: "1 for the current watchdog lifecycle state",
		}, []string{"state"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveCycle counts one publish cycle.
func (m *Metrics) ObserveCycle() {
	if m == nil {
		return
	}
	m.cycles.Inc()
}

// ObservePublish counts a replaced artifact and records when it happened.
func (m *Metrics) ObservePublish(at time.Time) {
	if m == nil {
		return
	}
	m.published.Inc()
	m.lastPublish.Set(float64(at.UnixNano()) / 1e9)
}

// ObserveSkip counts a cycle that left the artifact untouched; reason is one
// of the Skip constants.
func (m *Metrics) ObserveSkip(reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(reason).Inc()
}

// SetFrameAge records the age of the newest numbered frame.
func (m *Metrics) SetFrameAge(age time.Duration) {
	if m == nil {
		return
	}
	m.frameAge.Set(age.Seconds())
}

// ObserveLaunch counts a launch attempt and records the restart count.
func (m *Metrics) ObserveLaunch(restarts int) {
	if m == nil {
		return
	}
	m.launches.Inc()
	m.restartsTotal.Set(float64(restarts))
}

// ObserveExit counts an application exit by outcome.
func (m *Metrics) ObserveExit(status string) {
	if m == nil {
		return
	}
	m.exits.WithLabelValues(status).Inc()
}

// SetWatchdogState marks state as the current watchdog state.
func (m *Metrics) SetWatchdogState(state string) {
	if m == nil {
		return
	}
	m.state.Reset()
	m.state.WithLabelValues(state).Set(1)
}

// Flush writes the registry to the textfile atomically.
func (m *Metrics) Flush() error {
	if m == nil || m.path == "" {
		return nil
	}
	m.mu.Lock()
	m.lastFlush = time.Now()
	m.mu.Unlock()
	return prometheus.WriteToTextfile(m.path, m.registry)
}

// MaybeFlush flushes when at least every has elapsed since the last flush.
func (m *Metrics) MaybeFlush(every time.Duration) error {
	if m == nil || m.path == "" {
		return nil
	}
	m.mu.Lock()
	due := time.Since(m.lastFlush) >= every
	m.mu.Unlock()
	if !due {
		return nil
	}
	return m.Flush()
}

// RolePath derives a per-process textfile from path so that processes
// sharing one configuration never overwrite each other's file:
// /x/adris.prom with role "watchdog" becomes /x/adris_watchdog.prom.
func RolePath(path, role string) string {
	if path == "" || role == "" {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + role + ext
}
