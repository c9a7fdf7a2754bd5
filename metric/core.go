package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric exported by the feed.
const Namespace = "vta"

// Metrics contains the ingest pipeline metrics shared by all components
type Metrics struct {
	DatagramsReceived prometheus.Counter
	DatagramsDropped  *prometheus.CounterVec
	StatementsDecoded *prometheus.CounterVec
	DecodeErrors      *prometheus.CounterVec
	ReduceDuration    prometheus.Histogram
	Notifications     *prometheus.CounterVec
	SubscriberDrops   *prometheus.CounterVec
	Subscribers       prometheus.Gauge
	ScoringLinkUp     prometheus.Gauge
	SinkErrors        *prometheus.CounterVec
	NATSConnected     prometheus.Gauge
}

// NewMetrics creates the core metric set
func NewMetrics() *Metrics {
	return &Metrics{
		DatagramsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ingest",
			Name:      "datagrams_total",
			Help:      "Datagrams handed to the pipeline",
		}),
		DatagramsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ingest",
			Name:      "datagrams_dropped_total",
			Help:      "Datagrams dropped before tokenizing",
		}, []string{"reason"}),
		StatementsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "decoder",
			Name:      "statements_total",
			Help:      "Statements decoded into events",
		}, []string{"tag"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "decoder",
			Name:      "errors_total",
			Help:      "Statements rejected by the decoder",
		}, []string{"kind"}),
		ReduceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "reducer",
			Name:      "duration_seconds",
			Help:      "Time to apply one event to the match state",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "publisher",
			Name:      "notifications_total",
			Help:      "Notifications published to subscribers",
		}, []string{"kind"}),
		SubscriberDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "publisher",
			Name:      "subscriber_drops_total",
			Help:      "Notifications evicted from a full subscriber queue",
		}, []string{"subscriber"}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "publisher",
			Name:      "subscribers",
			Help:      "Active subscriptions",
		}),
		ScoringLinkUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "match",
			Name:      "scoring_link_up",
			Help:      "Last connection notice from the scoring system (0=disconnected, 1=connected)",
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sink",
			Name:      "errors_total",
			Help:      "Errors raised by output sinks",
		}, []string{"sink"}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "nats",
			Name:      "connected",
			Help:      "NATS connection status (0=disconnected, 1=connected)",
		}),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.DatagramsReceived,
		c.DatagramsDropped,
		c.StatementsDecoded,
		c.DecodeErrors,
		c.ReduceDuration,
		c.Notifications,
		c.SubscriberDrops,
		c.Subscribers,
		c.ScoringLinkUp,
		c.SinkErrors,
		c.NATSConnected,
	}
}

// RecordDatagram counts a datagram accepted by the listener
func (c *Metrics) RecordDatagram() {
	c.DatagramsReceived.Inc()
}

// RecordDatagramDropped counts a datagram dropped for reason
func (c *Metrics) RecordDatagramDropped(reason string) {
	c.DatagramsDropped.WithLabelValues(reason).Inc()
}

// RecordStatement counts a decoded statement by tag
func (c *Metrics) RecordStatement(tag string) {
	c.StatementsDecoded.WithLabelValues(tag).Inc()
}

// RecordDecodeError counts a rejected statement by error kind
func (c *Metrics) RecordDecodeError(kind string) {
	c.DecodeErrors.WithLabelValues(kind).Inc()
}

// RecordReduce observes one reduction
func (c *Metrics) RecordReduce(d time.Duration) {
	c.ReduceDuration.Observe(d.Seconds())
}

// RecordNotification counts a published notification by kind
func (c *Metrics) RecordNotification(kind string) {
	c.Notifications.WithLabelValues(kind).Inc()
}

// RecordSubscriberDrop counts a notification evicted from subscriber's queue
func (c *Metrics) RecordSubscriberDrop(subscriber string) {
	c.SubscriberDrops.WithLabelValues(subscriber).Inc()
}

// RecordScoringLink updates the scoring link gauge
func (c *Metrics) RecordScoringLink(connected bool) {
	c.ScoringLinkUp.Set(boolGauge(connected))
}

// RecordSinkError counts an output sink failure
func (c *Metrics) RecordSinkError(sink string) {
	c.SinkErrors.WithLabelValues(sink).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	c.NATSConnected.Set(boolGauge(connected))
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
