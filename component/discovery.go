package component

import (
	"time"
)

// Component types reported in Metadata.Type
const (
	TypeInput  = "input"
	TypeOutput = "output"
)

// Discoverable is what the command and the health endpoint can inspect on a
// running part of the feed: the UDP listener and every output.
type Discoverable interface {
	Meta() Metadata
	Health() HealthStatus
	DataFlow() FlowMetrics
}

// Metadata describes a component instance
type Metadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// HealthStatus is a point-in-time health report. ErrorCount is cumulative
// since the component was created.
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	LastCheck  time.Time     `json:"last_check"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Uptime     time.Duration `json:"uptime"`
}

// FlowMetrics summarises traffic through a component. Rates are averages
// over the component's uptime; ErrorRate is errors per message handled.
type FlowMetrics struct {
	MessagesPerSecond float64   `json:"messages_per_second"`
	BytesPerSecond    float64   `json:"bytes_per_second"`
	ErrorRate         float64   `json:"error_rate"`
	LastActivity      time.Time `json:"last_activity"`
}
