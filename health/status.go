// Package health aggregates component health for the feed's /health endpoint.
package health

import (
	"regexp"
	"strconv"
	"time"

	"github.com/reStrike-d-o-o/reStrike-VTA/component"
)

// Status levels
const (
	LevelHealthy   = "healthy"
	LevelDegraded  = "degraded"
	LevelUnhealthy = "unhealthy"
)

var (
	urlRegex         = regexp.MustCompile(`(?:https?|nats|wss?)://[^\s]+`)
	unixPathRegex    = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	windowsPathRegex = regexp.MustCompile(`[A-Z]:\\[^:\s]+`)
	ipAddrRegex      = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex        = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex  = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status is the health of one component, or of the system when it carries
// sub-statuses.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related metrics
type Metrics struct {
	Uptime       time.Duration `json:"uptime"`
	ErrorCount   int           `json:"error_count"`
	LastActivity time.Time     `json:"last_activity,omitempty"`
}

func newStatus(name, level, message string) Status {
	return Status{
		Component: name,
		Healthy:   level == LevelHealthy,
		Status:    level,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a healthy status
func NewHealthy(name, message string) Status {
	return newStatus(name, LevelHealthy, message)
}

// NewDegraded creates a degraded status. Degraded is served, but flagged.
func NewDegraded(name, message string) Status {
	return newStatus(name, LevelDegraded, message)
}

// NewUnhealthy creates an unhealthy status
func NewUnhealthy(name, message string) Status {
	return newStatus(name, LevelUnhealthy, message)
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool { return s.Status == LevelHealthy }

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool { return s.Status == LevelDegraded }

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool { return s.Status == LevelUnhealthy }

// Aggregate combines subs: unhealthy if any is unhealthy, else degraded if any
// is degraded, else healthy. subs is copied.
func Aggregate(name string, subs []Status) Status {
	if len(subs) == 0 {
		return NewHealthy(name, "No components registered")
	}

	var unhealthy, degraded int
	for _, sub := range subs {
		switch {
		case sub.IsUnhealthy():
			unhealthy++
		case sub.IsDegraded():
			degraded++
		}
	}

	var status Status
	switch {
	case unhealthy > 0:
		status = NewUnhealthy(name, pluralize(unhealthy, "component is unhealthy", "components are unhealthy"))
	case degraded > 0:
		status = NewDegraded(name, pluralize(degraded, "component is degraded", "components are degraded"))
	default:
		status = NewHealthy(name, "All components are healthy")
	}
	status.SubStatuses = append([]Status(nil), subs...)
	return status
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return strconv.Itoa(n) + " " + many
}

// FromComponentHealth converts a component.HealthStatus. LastError is
// sanitized before it is exposed.
func FromComponentHealth(name string, ch component.HealthStatus) Status {
	level, message := LevelUnhealthy, "Component not running"
	if ch.Healthy {
		level, message = LevelHealthy, "Component healthy"
	}
	if ch.LastError != "" {
		message = sanitizeErrorMessage(ch.LastError)
	}

	s := newStatus(name, level, message)
	s.Metrics = &Metrics{
		Uptime:       ch.Uptime,
		ErrorCount:   ch.ErrorCount,
		LastActivity: ch.LastCheck,
	}
	return s
}

// sanitizeErrorMessage masks URLs, paths, addresses, ports and credentials.
func sanitizeErrorMessage(err string) string {
	if err == "" {
		return ""
	}

	s := urlRegex.ReplaceAllString(err, "[URL]")
	s = unixPathRegex.ReplaceAllString(s, "[PATH]")
	s = windowsPathRegex.ReplaceAllString(s, "[PATH]")
	s = ipAddrRegex.ReplaceAllString(s, "[IP]")
	s = portRegex.ReplaceAllString(s, "[PORT]")
	return credentialRegex.ReplaceAllString(s, "[REDACTED]")
}
