package health

import (
	"encoding/json"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"
)

// Monitor tracks health of multiple components in a thread-safe manner.
// Components either push updates or register a probe evaluated on every read.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	probes   map[string]func() Status
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
		probes:   make(map[string]func() Status),
	}
}

// Update sets the status of a named component
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
}

// UpdateHealthy is a convenience method to update a component as healthy
func (m *Monitor) UpdateHealthy(name, message string) {
	m.Update(name, NewHealthy(name, message))
}

// UpdateUnhealthy is a convenience method to update a component as unhealthy
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.Update(name, NewUnhealthy(name, message))
}

// UpdateDegraded is a convenience method to update a component as degraded
func (m *Monitor) UpdateDegraded(name, message string) {
	m.Update(name, NewDegraded(name, message))
}

// Probe registers fn as the status source of name. A probe wins over pushed
// updates for the same name.
func (m *Monitor) Probe(name string, fn func() Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[name] = fn
}

// Get retrieves the health status for a named component
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	probe, hasProbe := m.probes[name]
	status, exists := m.statuses[name]
	m.mu.RUnlock()

	if hasProbe {
		s := probe()
		s.Component = name
		return s, true
	}
	return status, exists
}

// Remove removes a component from monitoring
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, name)
	delete(m.probes, name)
}

// ListComponents returns the monitored component names, sorted
func (m *Monitor) ListComponents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := slices.Collect(maps.Keys(m.statuses))
	for name := range m.probes {
		if _, ok := m.statuses[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// AggregateHealth returns the aggregated health of every component, ordered by name
func (m *Monitor) AggregateHealth(systemName string) Status {
	names := m.ListComponents()
	subStatuses := make([]Status, 0, len(names))
	for _, name := range names {
		if s, ok := m.Get(name); ok {
			subStatuses = append(subStatuses, s)
		}
	}
	return Aggregate(systemName, subStatuses)
}

// Handler serves the aggregate as JSON: 200 when healthy or degraded, 503 when unhealthy
func (m *Monitor) Handler(systemName string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := m.AggregateHealth(systemName)
		w.Header().Set("Content-Type", "application/json")
		if status.IsUnhealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
}
