package health

import (
	"sort"
	"sync"
	"time"
)

// Monitor tracks the health of named components. All methods are safe for
// concurrent use; a nil Monitor ignores updates, so wiring health in is
// always optional.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewMonitor creates an empty health monitor
func NewMonitor() *Monitor {
	return &Monitor{statuses: make(map[string]Status)}
}

// Update records a component's status
func (m *Monitor) Update(name string, status Status) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
}

// UpdateHealthy marks a component healthy
func (m *Monitor) UpdateHealthy(name, message string) {
	m.Update(name, NewHealthy(name, message))
}

// UpdateUnhealthy marks a component unhealthy
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.Update(name, NewUnhealthy(name, message))
}

// Remove drops a component from monitoring, as when a listener stops
func (m *Monitor) Remove(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, name)
}

// Get returns one component's status
func (m *Monitor) Get(name string) (Status, bool) {
	if m == nil {
		return Status{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[name]
	return status, ok
}

// Aggregate returns the rolled-up status of all monitored components,
// sub-statuses sorted by component name
func (m *Monitor) Aggregate(systemName string) Status {
	if m == nil {
		return Aggregate(systemName, nil)
	}
	m.mu.RLock()
	subs := make([]Status, 0, len(m.statuses))
	for _, status := range m.statuses {
		subs = append(subs, status)
	}
	m.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].Component < subs[j].Component })
	return Aggregate(systemName, subs)
}
