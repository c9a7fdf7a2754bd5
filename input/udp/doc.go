// Package udp provides the socket listener for the scoring system's datagrams.
//
// # Overview
//
// The scoring software broadcasts one or more statements per datagram to a
// fixed UDP port (6000 by default). The Listener binds that port, reads one
// datagram at a time and hands it to a Handler on the same goroutine, so the
// order in which datagrams arrive is the order in which they are processed.
//
// # Quick Start
//
//	listener := udp.NewListener(udp.ListenerDeps{
//	    Config:          udp.DefaultConfig(),
//	    Handler:         pipeline,
//	    MetricsRegistry: registry,
//	    Logger:          logger,
//	})
//	if err := listener.Initialize(); err != nil {
//	    return err
//	}
//	if err := listener.Start(ctx); err != nil {
//	    return err // wraps errors.ErrBind, classified fatal
//	}
//	defer listener.Stop(5 * time.Second)
//
// # Error Handling
//
//   - Bind failures are fatal and wrap errors.ErrBind.
//   - Read failures on an open socket wrap errors.ErrReceive, are logged and
//     counted, and the loop continues.
//   - Datagrams containing bytes outside 7-bit ASCII are not tokenized; they
//     go to Handler.HandleDropped with errors.ErrNonASCII.
//
// # Shutdown
//
// The read loop polls with a short read deadline. Stop closes the socket,
// lets the datagram currently being handled finish, and waits for the loop to
// exit up to the given timeout.
//
// # Metrics
//
//   - vta_udp_bytes_received_total
//   - vta_udp_socket_errors_total
//   - vta_udp_last_activity_timestamp
//   - vta_ingest_datagrams_total and vta_ingest_datagrams_dropped_total{reason="non_ascii"}
package udp
