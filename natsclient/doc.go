// Package natsclient wraps the NATS Go client with circuit breaker protection,
// health callbacks and JetStream publishing for the match feed sinks.
//
// # Circuit Breaker
//
// After a threshold of consecutive failures (default 5) the client reports
// StatusCircuitOpen and fails fast with ErrCircuitOpen. The breaker half-opens
// after a backoff that doubles per round up to one minute.
//
// # Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("vtafeed"),
//	    natsclient.WithHealthChangeCallback(func(ok bool) { ... }),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.ConnectWithRetry(ctx, errors.DefaultRetryConfig()); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	err = client.Publish(ctx, "vta.state", payload)
//
// # Testing
//
// NewTestClient starts a NATS server with testcontainers, optionally with
// JetStream or user auth, and returns it with a connected Client. Integration
// tests using it are skipped under -short.
package natsclient
