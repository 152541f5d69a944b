// Package metrics collects request counters for the server and exposes them
// in Prometheus text format. It is passed around as an explicit handle, never
// process-global state, so tests can run servers in isolation.
package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/matteso1/kevel/internal/storage"
)

// EngineStats is satisfied by engines that report storage statistics (the
// log-structured store does; the LevelDB backend does not).
type EngineStats interface {
	Stats() storage.Stats
}

// Metrics collects and exposes server metrics.
type Metrics struct {
	// Counters
	getsTotal    atomic.Uint64
	setsTotal    atomic.Uint64
	removesTotal atomic.Uint64
	errorsTotal  atomic.Uint64

	// Gauges
	activeConnections atomic.Int64

	// Histograms (simplified as averages)
	requestLatencySum atomic.Uint64
	requestLatencyN   atomic.Uint64

	startTime time.Time
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// RecordGet records a served get request.
func (m *Metrics) RecordGet(latency time.Duration) {
	m.getsTotal.Add(1)
	m.recordLatency(latency)
}

// RecordSet records a served set request.
func (m *Metrics) RecordSet(latency time.Duration) {
	m.setsTotal.Add(1)
	m.recordLatency(latency)
}

// RecordRemove records a served remove request.
func (m *Metrics) RecordRemove(latency time.Duration) {
	m.removesTotal.Add(1)
	m.recordLatency(latency)
}

// RecordError records a request that failed with a storage or protocol error.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

func (m *Metrics) recordLatency(latency time.Duration) {
	m.requestLatencySum.Add(uint64(latency.Microseconds()))
	m.requestLatencyN.Add(1)
}

// ConnectionOpened increments active connections.
func (m *Metrics) ConnectionOpened() {
	m.activeConnections.Add(1)
}

// ConnectionClosed decrements active connections.
func (m *Metrics) ConnectionClosed() {
	m.activeConnections.Add(-1)
}

// Handler returns an HTTP handler for the /metrics endpoint. Storage gauges
// are included when the engine reports them.
func (m *Metrics) Handler(engine any) http.HandlerFunc {
	stats, _ := engine.(EngineStats)

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		uptime := time.Since(m.startTime).Seconds()
		fmt.Fprintf(w, "# HELP kevel_uptime_seconds Time since server started\n")
		fmt.Fprintf(w, "# TYPE kevel_uptime_seconds gauge\n")
		fmt.Fprintf(w, "kevel_uptime_seconds %.2f\n\n", uptime)

		fmt.Fprintf(w, "# HELP kevel_gets_total Total get requests served\n")
		fmt.Fprintf(w, "# TYPE kevel_gets_total counter\n")
		fmt.Fprintf(w, "kevel_gets_total %d\n\n", m.getsTotal.Load())

		fmt.Fprintf(w, "# HELP kevel_sets_total Total set requests served\n")
		fmt.Fprintf(w, "# TYPE kevel_sets_total counter\n")
		fmt.Fprintf(w, "kevel_sets_total %d\n\n", m.setsTotal.Load())

		fmt.Fprintf(w, "# HELP kevel_removes_total Total remove requests served\n")
		fmt.Fprintf(w, "# TYPE kevel_removes_total counter\n")
		fmt.Fprintf(w, "kevel_removes_total %d\n\n", m.removesTotal.Load())

		fmt.Fprintf(w, "# HELP kevel_errors_total Total failed requests\n")
		fmt.Fprintf(w, "# TYPE kevel_errors_total counter\n")
		fmt.Fprintf(w, "kevel_errors_total %d\n\n", m.errorsTotal.Load())

		fmt.Fprintf(w, "# HELP kevel_active_connections Current active connections\n")
		fmt.Fprintf(w, "# TYPE kevel_active_connections gauge\n")
		fmt.Fprintf(w, "kevel_active_connections %d\n\n", m.activeConnections.Load())

		latencyN := m.requestLatencyN.Load()
		if latencyN > 0 {
			avgLatency := float64(m.requestLatencySum.Load()) / float64(latencyN) / 1000.0 // ms
			fmt.Fprintf(w, "# HELP kevel_request_latency_ms Average request latency\n")
			fmt.Fprintf(w, "# TYPE kevel_request_latency_ms gauge\n")
			fmt.Fprintf(w, "kevel_request_latency_ms %.2f\n\n", avgLatency)
		}

		if stats != nil {
			st := stats.Stats()
			fmt.Fprintf(w, "# HELP kevel_live_keys Live keys in the index\n")
			fmt.Fprintf(w, "# TYPE kevel_live_keys gauge\n")
			fmt.Fprintf(w, "kevel_live_keys %d\n\n", st.Keys)

			fmt.Fprintf(w, "# HELP kevel_segments Segment files on disk\n")
			fmt.Fprintf(w, "# TYPE kevel_segments gauge\n")
			fmt.Fprintf(w, "kevel_segments %d\n\n", st.Segments)

			fmt.Fprintf(w, "# HELP kevel_log_bytes Total log bytes on disk\n")
			fmt.Fprintf(w, "# TYPE kevel_log_bytes gauge\n")
			fmt.Fprintf(w, "kevel_log_bytes %d\n\n", st.TotalBytes)

			fmt.Fprintf(w, "# HELP kevel_stale_bytes Log bytes unreachable from the index\n")
			fmt.Fprintf(w, "# TYPE kevel_stale_bytes gauge\n")
			fmt.Fprintf(w, "kevel_stale_bytes %d\n\n", st.StaleBytes)

			fmt.Fprintf(w, "# HELP kevel_compactions_total Completed compaction runs\n")
			fmt.Fprintf(w, "# TYPE kevel_compactions_total counter\n")
			fmt.Fprintf(w, "kevel_compactions_total %d\n", st.Compactions)
		}
	}
}

// Snapshot contains current metric values.
type Snapshot struct {
	GetsTotal         uint64
	SetsTotal         uint64
	RemovesTotal      uint64
	ErrorsTotal       uint64
	ActiveConnections int64
	UptimeSeconds     float64
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		GetsTotal:         m.getsTotal.Load(),
		SetsTotal:         m.setsTotal.Load(),
		RemovesTotal:      m.removesTotal.Load(),
		ErrorsTotal:       m.errorsTotal.Load(),
		ActiveConnections: m.activeConnections.Load(),
		UptimeSeconds:     time.Since(m.startTime).Seconds(),
	}
}
