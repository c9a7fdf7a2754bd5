package health

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/reStrike-d-o-o/reStrike-VTA/component"
)

// Check reports the health of something that is not a component, such as
// the scoring link.
type Check func() Status

// Monitor aggregates the health of watched components and named checks.
// Statuses are computed on demand.
type Monitor struct {
	system string

	mu         sync.RWMutex
	components []component.Discoverable
	checks     []namedCheck
}

type namedCheck struct {
	name  string
	check Check
}

// NewMonitor creates a monitor reporting under system.
func NewMonitor(system string) *Monitor {
	return &Monitor{system: system}
}

// Watch adds components. Their Health is read on every Status call.
func (m *Monitor) Watch(components ...component.Discoverable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, components...)
}

// AddCheck registers check under name, replacing any check of that name.
func (m *Monitor) AddCheck(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.checks {
		if m.checks[i].name == name {
			m.checks[i].check = check
			return
		}
	}
	m.checks = append(m.checks, namedCheck{name: name, check: check})
}

// Status aggregates every watched component and check, in registration order.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	components := append([]component.Discoverable(nil), m.components...)
	checks := append([]namedCheck(nil), m.checks...)
	m.mu.RUnlock()

	subs := make([]Status, 0, len(components)+len(checks))
	for _, c := range components {
		subs = append(subs, FromComponentHealth(c.Meta().Name, c.Health()))
	}
	for _, c := range checks {
		s := c.check()
		s.Component = c.name
		subs = append(subs, s)
	}
	return Aggregate(m.system, subs)
}

// Handler serves Status as JSON: 200 when healthy or degraded, 503 when
// unhealthy.
func (m *Monitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		status := m.Status()
		w.Header().Set("Content-Type", "application/json")
		if status.IsUnhealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
}
