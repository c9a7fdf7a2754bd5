package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/reStrike-d-o-o/reStrike-VTA/errors"
)

// metricKey identifies a collector by the component that owns it.
type metricKey struct {
	service string
	name    string
}

func (k metricKey) String() string { return k.service + "." + k.name }

// MetricsRegistry owns the Prometheus registry of one feed process. Core ingest
// metrics are registered up front; components add their own collectors under
// a service name, usually "<kind>_<instance>".
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics

	mu         sync.Mutex
	collectors map[metricKey]prometheus.Collector
}

// NewMetricsRegistry creates a registry with the core ingest metrics and the
// Go runtime and process collectors already registered.
func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		prometheusRegistry: prometheus.NewRegistry(),
		Metrics:            NewMetrics(),
		collectors:         make(map[metricKey]prometheus.Collector),
	}

	r.prometheusRegistry.MustRegister(r.Metrics.collectors()...)
	r.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// CoreMetrics returns the core ingest metrics
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.Metrics
}

// RegisterCounter registers a counter owned by service
func (r *MetricsRegistry) RegisterCounter(service, name string, c prometheus.Counter) error {
	return r.register(metricKey{service, name}, c)
}

// RegisterGauge registers a gauge owned by service
func (r *MetricsRegistry) RegisterGauge(service, name string, g prometheus.Gauge) error {
	return r.register(metricKey{service, name}, g)
}

// RegisterHistogram registers a histogram owned by service
func (r *MetricsRegistry) RegisterHistogram(service, name string, h prometheus.Histogram) error {
	return r.register(metricKey{service, name}, h)
}

// RegisterCounterVec registers a counter vector owned by service
func (r *MetricsRegistry) RegisterCounterVec(service, name string, v *prometheus.CounterVec) error {
	return r.register(metricKey{service, name}, v)
}

// register rejects a second collector under the same key, and a collector
// whose descriptors clash with one registered under another key.
func (r *MetricsRegistry) register(key metricKey, c prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.collectors[key]; exists {
		return errors.WrapInvalid(fmt.Errorf("metric %s already registered", key),
			"MetricsRegistry", "register", "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if stderrors.As(err, &already) {
			return errors.WrapInvalid(err, "MetricsRegistry", "register",
				fmt.Sprintf("prometheus conflict for metric %s", key))
		}
		return errors.WrapFatal(err, "MetricsRegistry", "register", "register collector with prometheus")
	}

	r.collectors[key] = c
	return nil
}

// Unregister removes the collector registered by service under name. It
// reports whether a collector was removed.
func (r *MetricsRegistry) Unregister(service, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey{service, name}
	c, ok := r.collectors[key]
	if !ok || !r.prometheusRegistry.Unregister(c) {
		return false
	}
	delete(r.collectors, key)
	return true
}
