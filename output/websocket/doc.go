// Package websocket serves the overlay feed to broadcast graphics.
//
// # Overview
//
// The Output subscribes to the publisher under its own name and writes every
// notification to every connected client as a JSON output.Envelope:
//
//	{"type":"state","id":"6f1c...","seq":42,"timestamp":1773482400000,"payload":{...}}
//
// A client receives the current match state as its first message, so an
// overlay that reconnects mid-match is complete straight away. Its seq is the
// last sequence number published at connect time; envelopes with a seq at or
// below it that arrive afterwards carry nothing new.
//
// # Endpoints
//
//   - Path (default /ws): the WebSocket feed
//   - StatePath (default /state): GET returns the current state as JSON
//
// # Slow Clients
//
// Broadcasts write to all clients in parallel with a write deadline. A client
// that fails a write or a ping is disconnected. The output's own queue in the
// publisher drops the oldest notifications if broadcasting falls behind.
//
// # Metrics
//
// vta_websocket_* metrics carry an "output" label with the instance name:
// messages_sent_total{type}, bytes_sent_total, clients_connected,
// client_connections_total, client_disconnections_total{disconnect_reason},
// broadcast_duration_seconds and errors_total{error_type}.
package websocket
