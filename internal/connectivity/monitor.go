package connectivity

import (
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/zapic/internal/infrastructure/monitoring"
)

// Listener is notified when connectivity changes.
type Listener func(online bool)

type status int

const (
	statusUnknown status = iota
	statusOnline
	statusOffline
)

// Monitor tracks whether the network is reachable and notifies listeners
// on changes. Repeating the current status notifies nobody.
type Monitor struct {
	logger  *zap.Logger
	metrics *monitoring.Metrics

	// deliver is held from the status write until every listener has
	// returned, so notifications arrive in the order the status changed.
	deliver sync.Mutex

	mu        sync.Mutex
	status    status
	nextID    int
	listeners map[int]Listener
}

// NewMonitor creates a monitor whose status is unknown.
func NewMonitor(logger *zap.Logger, metrics *monitoring.Metrics) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		logger:    logger,
		metrics:   metrics,
		listeners: make(map[int]Listener),
	}
}

// SetOnline records that the network is reachable.
func (m *Monitor) SetOnline() {
	m.set(statusOnline)
}

// SetOffline records that the network is unreachable.
func (m *Monitor) SetOffline() {
	m.set(statusOffline)
}

// Online reports whether the network was last seen reachable.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == statusOnline
}

// Subscribe registers l. The returned function removes it. Listeners run
// synchronously and must not call SetOnline or SetOffline.
func (m *Monitor) Subscribe(l Listener) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Monitor) set(s status) {
	m.deliver.Lock()
	defer m.deliver.Unlock()

	m.mu.Lock()
	if m.status == s {
		m.mu.Unlock()
		return
	}
	m.status = s

	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	listeners := make([]Listener, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		listeners = append(listeners, m.listeners[id])
	}
	m.mu.Unlock()

	online := s == statusOnline
	m.metrics.SetOnline(online)
	m.logger.Info("Connectivity changed", zap.Bool("online", online))

	for _, l := range listeners {
		l(online)
	}
}
