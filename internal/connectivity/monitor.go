// Package connectivity tracks whether the backend is reachable and tells
// interested parties when that changes.
package connectivity

import (
	"sync"

	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/logging"
)

// Listener is invoked once per online/offline transition.
type Listener func(online bool)

// Monitor holds a single isOnline flag. Listeners are only called when the
// flag actually flips; repeated signals for the same state are dropped.
type Monitor struct {
	mu         sync.Mutex
	online     bool
	listeners  map[int]Listener
	reconnects map[int]func()
	nextID     int

	// notifyMu serializes callbacks so listeners observe transitions in order.
	notifyMu sync.Mutex
}

// NewMonitor creates a Monitor in the given initial state.
func NewMonitor(initial bool) *Monitor {
	return &Monitor{
		online:     initial,
		listeners:  make(map[int]Listener),
		reconnects: make(map[int]func()),
	}
}

// IsOnline returns the current state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records a platform connectivity signal. It returns true when the
// state changed and listeners were notified.
func (m *Monitor) Set(online bool) bool {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	var reconnects []func()
	if online {
		for _, fn := range m.reconnects {
			reconnects = append(reconnects, fn)
		}
	}
	m.mu.Unlock()

	logging.Info("Connectivity changed", map[string]interface{}{
		"was_online": !online,
		"is_online":  online,
	})

	for _, l := range listeners {
		l(online)
	}
	for _, fn := range reconnects {
		fn()
	}
	return true
}

// Subscribe registers l for every transition and returns a function that
// unregisters it.
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

// OnReconnect registers fn for false -> true transitions only.
func (m *Monitor) OnReconnect(fn func()) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.reconnects[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.reconnects, id)
		m.mu.Unlock()
	}
}
