package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordingUpdatesSnapshot(t *testing.T) {
	m := NewMetrics()

	m.RecordFetch("success", 10*time.Millisecond)
	m.RecordFetch("http_error", 5*time.Millisecond)
	m.RecordFetch("io_error", 5*time.Millisecond)
	m.RecordMessage("in", "APP_STARTED")
	m.RecordMessage("out", "OPEN_PAGE")
	m.RecordMessage("out", "SUBMIT_EVENT")
	m.AddDroppedEvents(3)
	m.AddDroppedEvents(0)
	m.RecordRuntimeRestart("crash")

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.FetchSuccesses)
	assert.Equal(t, int64(2), snap.FetchFailures)
	assert.Equal(t, int64(1), snap.MessagesIn)
	assert.Equal(t, int64(2), snap.MessagesOut)
	assert.Equal(t, int64(3), snap.EventsDropped)
	assert.Equal(t, int64(1), snap.RuntimeRestarts)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.FetchAttempts.WithLabelValues("success")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.DroppedEvents))
}

func TestGauges(t *testing.T) {
	m := NewMetrics()

	m.SetBridgeState(3)
	m.SetPendingEvents(42)
	m.SetOnline(true)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.BridgeState))
	assert.Equal(t, float64(42), testutil.ToFloat64(m.PendingEvents))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Online))

	m.SetOnline(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Online))
}

func TestSeparateRegistries(t *testing.T) {
	// Two collectors must not collide on registration
	a := NewMetrics()
	b := NewMetrics()
	a.RecordCacheOp("web-page", "read", "hit")

	assert.Equal(t, 1, testutil.CollectAndCount(a.CacheOps))
	assert.Equal(t, 0, testutil.CollectAndCount(b.CacheOps))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordFetch("success", time.Millisecond)
		m.RecordCacheOp("events", "write", "ok")
		m.RecordMessage("in", "PAGE_READY")
		m.RecordFlush(2)
		m.SetBridgeState(1)
		m.SetPendingEvents(1)
		m.AddDroppedEvents(1)
		m.RecordRuntimeRestart("crash")
		m.SetOnline(true)
		m.RecordHTTPRequest("GET", "/health", "200", time.Millisecond)
		m.IncWSConnections()
		m.DecWSConnections()
	})
	assert.Equal(t, Snapshot{}, m.Snapshot())
	assert.NotNil(t, m.Registry())
}
