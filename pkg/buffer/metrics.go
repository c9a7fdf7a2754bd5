package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/reStrike-d-o-o/reStrike-VTA/metric"
)

var metricNames = []string{"queue_writes", "queue_reads", "queue_drops", "queue_size", "queue_utilization"}

// bufferMetrics exports the statistics of one buffer, labelled by queue name.
type bufferMetrics struct {
	registry *metric.MetricsRegistry
	label    string

	writes      prometheus.Counter
	reads       prometheus.Counter
	drops       prometheus.Counter
	size        prometheus.Gauge
	utilization prometheus.Gauge
}

func newBufferMetrics(registry *metric.MetricsRegistry, label string) (*bufferMetrics, error) {
	labels := prometheus.Labels{"queue": label}
	m := &bufferMetrics{
		registry: registry,
		label:    label,
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "queue",
			Name:        "writes_total",
			ConstLabels: labels,
			Help:        "Items written to the queue",
		}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "queue",
			Name:        "reads_total",
			ConstLabels: labels,
			Help:        "Items read from the queue",
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "queue",
			Name:        "drops_total",
			ConstLabels: labels,
			Help:        "Items lost to the overflow policy",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "queue",
			Name:        "size",
			ConstLabels: labels,
			Help:        "Items currently queued",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "queue",
			Name:        "utilization",
			ConstLabels: labels,
			Help:        "Queue fill ratio (0.0 to 1.0)",
		}),
	}

	collectors := []prometheus.Collector{m.writes, m.reads, m.drops, m.size, m.utilization}
	for i, c := range collectors {
		var err error
		switch v := c.(type) {
		case prometheus.Gauge:
			err = registry.RegisterGauge(label, metricNames[i], v)
		case prometheus.Counter:
			err = registry.RegisterCounter(label, metricNames[i], v)
		}
		if err != nil {
			m.unregisterFirst(i)
			return nil, err
		}
	}

	return m, nil
}

func (m *bufferMetrics) unregisterFirst(n int) {
	for _, name := range metricNames[:n] {
		m.registry.Unregister(m.label, name)
	}
}

func (m *bufferMetrics) unregister() {
	m.unregisterFirst(len(metricNames))
}

func (m *bufferMetrics) recordWrite(size, capacity int) {
	m.writes.Inc()
	m.updateSize(size, capacity)
}

func (m *bufferMetrics) recordRead(size, capacity int) {
	m.reads.Inc()
	m.updateSize(size, capacity)
}

func (m *bufferMetrics) recordDrop() {
	m.drops.Inc()
}

func (m *bufferMetrics) updateSize(size, capacity int) {
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}
