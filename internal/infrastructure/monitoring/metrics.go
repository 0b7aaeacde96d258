package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. All recording methods are safe to
// call on a nil *Metrics, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Fetch metrics
	FetchAttempts *prometheus.CounterVec
	FetchDuration prometheus.Histogram

	// Cache metrics
	CacheOps *prometheus.CounterVec

	// Bridge metrics
	BridgeMessages  *prometheus.CounterVec
	BridgeState     prometheus.Gauge
	BridgeFlushes   prometheus.Histogram
	PendingEvents   prometheus.Gauge
	DroppedEvents   prometheus.Counter
	RuntimeRestarts *prometheus.CounterVec

	// Connectivity metrics
	Online prometheus.Gauge

	// Debug server metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	WSConnections   prometheus.Gauge

	// Snapshot for the JSON state endpoint
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the debug state endpoint.
type Snapshot struct {
	FetchSuccesses  int64
	FetchFailures   int64
	MessagesIn      int64
	MessagesOut     int64
	EventsDropped   int64
	RuntimeRestarts int64
}

// NewMetrics creates a metrics collector on its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FetchAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zapic_fetch_attempts_total",
				Help: "Total number of page fetch attempts",
			},
			[]string{"result"},
		),
		FetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "zapic_fetch_duration_seconds",
				Help:    "Page fetch attempt duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),

		CacheOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zapic_cache_operations_total",
				Help: "Total number of cache store operations",
			},
			[]string{"entry", "op", "result"},
		),

		BridgeMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zapic_bridge_messages_total",
				Help: "Total number of bridge messages",
			},
			[]string{"direction", "type"},
		),
		BridgeState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "zapic_bridge_state",
				Help: "Current bridge state (0 not created, 1 loaded, 2 started, 3 ready)",
			},
		),
		BridgeFlushes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "zapic_bridge_flush_batch_size",
				Help:    "Number of outbound messages per script evaluation",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
			},
		),
		PendingEvents: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "zapic_bridge_pending_events",
				Help: "Number of events waiting for the bridge to become ready",
			},
		),
		DroppedEvents: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "zapic_bridge_dropped_events_total",
				Help: "Total number of pending events dropped on overflow",
			},
		),
		RuntimeRestarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zapic_runtime_restarts_total",
				Help: "Total number of web runtime teardowns",
			},
			[]string{"reason"},
		),

		Online: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "zapic_online",
				Help: "1 when the network is reachable",
			},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zapic_debug_http_requests_total",
				Help: "Total number of debug server HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zapic_debug_http_request_duration_seconds",
				Help:    "Debug server request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "zapic_debug_ws_connections",
				Help: "Number of connected bridge tap clients",
			},
		),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// RecordFetch records one fetch attempt.
func (m *Metrics) RecordFetch(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(result).Inc()
	m.FetchDuration.Observe(duration.Seconds())

	m.mu.Lock()
	if result == "success" {
		m.snapshot.FetchSuccesses++
	} else {
		m.snapshot.FetchFailures++
	}
	m.mu.Unlock()
}

// RecordCacheOp records a cache store operation.
func (m *Metrics) RecordCacheOp(entry, op, result string) {
	if m == nil {
		return
	}
	m.CacheOps.WithLabelValues(entry, op, result).Inc()
}

// RecordMessage records a bridge message; direction is "in" or "out".
func (m *Metrics) RecordMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.BridgeMessages.WithLabelValues(direction, msgType).Inc()

	m.mu.Lock()
	if direction == "in" {
		m.snapshot.MessagesIn++
	} else {
		m.snapshot.MessagesOut++
	}
	m.mu.Unlock()
}

// RecordFlush records the size of one outbound evaluation batch.
func (m *Metrics) RecordFlush(size int) {
	if m == nil {
		return
	}
	m.BridgeFlushes.Observe(float64(size))
}

// SetBridgeState records the bridge state ordinal.
func (m *Metrics) SetBridgeState(state int) {
	if m == nil {
		return
	}
	m.BridgeState.Set(float64(state))
}

// SetPendingEvents records the pending event backlog length.
func (m *Metrics) SetPendingEvents(n int) {
	if m == nil {
		return
	}
	m.PendingEvents.Set(float64(n))
}

// AddDroppedEvents records events dropped on queue overflow.
func (m *Metrics) AddDroppedEvents(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DroppedEvents.Add(float64(n))

	m.mu.Lock()
	m.snapshot.EventsDropped += int64(n)
	m.mu.Unlock()
}

// RecordRuntimeRestart records a web runtime teardown.
func (m *Metrics) RecordRuntimeRestart(reason string) {
	if m == nil {
		return
	}
	m.RuntimeRestarts.WithLabelValues(reason).Inc()

	m.mu.Lock()
	m.snapshot.RuntimeRestarts++
	m.mu.Unlock()
}

// SetOnline records connectivity.
func (m *Metrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.Online.Set(1)
	} else {
		m.Online.Set(0)
	}
}

// RecordHTTPRequest records a debug server request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncWSConnections increments bridge tap connections.
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements bridge tap connections.
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
