// Package metric provides the Prometheus registry and HTTP endpoint for the
// match feed.
//
// MetricsRegistry owns a private prometheus.Registry preloaded with the core
// ingest metrics (datagrams, decode results, reducer latency, publisher
// fan-out, sink failures) and the Go runtime collectors. Components register
// their own collectors under a "service.metric" key so duplicate registration
// is reported as an invalid-class error instead of a panic:
//
//	registry := metric.NewMetricsRegistry()
//	registry.CoreMetrics().RecordStatement("clk")
//
//	server := metric.NewServer(":9090", "/metrics", registry,
//	    metric.WithHandler("/state", stateHandler))
//	if err := server.Start(); err != nil {
//	    return err
//	}
//	defer server.Stop(5 * time.Second)
package metric
