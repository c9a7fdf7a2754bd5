// Package vta is the live scoring feed for PSS taekwondo competitions.
//
// The scoring software sends short ASCII datagrams over UDP, each carrying one
// or more `;`-terminated statements. The feed turns that stream into a live
// match state and fans it out to overlays and downstream systems.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│  input/udp      Socket Listener     │  one goroutine, arrival stamps
//	└─────────────────────────────────────┘
//	           ↓ protocol.Datagram
//	┌─────────────────────────────────────┐
//	│  protocol       Tokenizer, Decoder  │  tag registry, typed events
//	│  match          State Reducer       │  pure, deterministic
//	│  pipeline       ordering, metrics   │  single writer of the state
//	└─────────────────────────────────────┘
//	           ↓ publisher.Notification
//	┌─────────────────────────────────────┐
//	│  publisher      Event Publisher     │  per-subscriber bounded queues
//	└─────────────────────────────────────┘
//	           ↓ subscriptions
//	  output/websocket   overlay feed and GET /state
//	  output/nats        <prefix>.event.<kind>, <prefix>.state, <prefix>.diagnostic
//	  output/journal     SQLite statement journal with replay
//
// Ingestion never blocks on a subscriber: a slow subscriber loses its oldest
// queued notifications and the loss is counted.
//
// # Packages
//
//   - errors: classified errors, domain sentinels and backoff retries
//   - config: layered JSON/YAML/TOML configuration with VTA_ overrides
//   - component: lifecycle contract and ordered start/stop groups
//   - metric: Prometheus registry, core ingest metrics and the HTTP server
//   - health: health aggregation behind /health
//   - natsclient: NATS connection with circuit breaker and JetStream helpers
//   - pkg/buffer: the bounded circular buffer behind each subscription
//
// The cmd/vtafeed binary wires everything together.
package vta
