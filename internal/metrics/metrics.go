// Package metrics registers the Prometheus instrumentation backing the
// supervisor's observable state (spec.md §6, SPEC_FULL.md ambient stack).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every counter/gauge the supervisor and decoder path
// update. A nil-safe zero value is never used — callers always get one via
// New, which registers everything against a private registry so repeated
// Client construction in tests never collides with prometheus's global
// default registry.
type Metrics struct {
	Registry *prometheus.Registry

	connects         prometheus.Counter
	reconnects       prometheus.Counter
	dialFailures     prometheus.Counter
	watchdogExpiries prometheus.Counter
	resyncs          prometheus.Counter
	segmentsDecoded  prometheus.Counter
	completedFiles   prometheus.Counter
	connected        prometheus.Gauge
}

// New constructs and registers a fresh set of metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "byteblaster", Name: "connects_total",
			Help: "Number of TCP connections established.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "byteblaster", Name: "reconnects_total",
			Help: "Number of times a session ended and a new one was started.",
		}),
		dialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "byteblaster", Name: "dial_failures_total",
			Help: "Number of failed dial attempts.",
		}),
		watchdogExpiries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "byteblaster", Name: "watchdog_expiries_total",
			Help: "Number of sessions torn down by watchdog timeout.",
		}),
		resyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "byteblaster", Name: "decoder_resyncs_total",
			Help: "Number of times the decoder exception budget forced a reconnect.",
		}),
		segmentsDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "byteblaster", Name: "segments_decoded_total",
			Help: "Number of validated QBT segments emitted by the decoder.",
		}),
		completedFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "byteblaster", Name: "completed_files_total",
			Help: "Number of files fully reassembled.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "byteblaster", Name: "connected",
			Help: "1 if a session currently has a live socket, 0 otherwise.",
		}),
	}
	reg.MustRegister(m.connects, m.reconnects, m.dialFailures, m.watchdogExpiries,
		m.resyncs, m.segmentsDecoded, m.completedFiles, m.connected)
	return m
}

func (m *Metrics) IncConnect()         { m.connects.Inc() }
func (m *Metrics) IncReconnect()       { m.reconnects.Inc() }
func (m *Metrics) IncDialFailure()     { m.dialFailures.Inc() }
func (m *Metrics) IncWatchdogExpiry()  { m.watchdogExpiries.Inc() }
func (m *Metrics) IncResync()          { m.resyncs.Inc() }
func (m *Metrics) IncSegmentsDecoded() { m.segmentsDecoded.Inc() }
func (m *Metrics) IncCompletedFile()   { m.completedFiles.Inc() }

// SetConnected updates the connected-state gauge; v must be 0 or 1.
func (m *Metrics) SetConnected(v float64) { m.connected.Set(v) }
