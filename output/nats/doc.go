// Package nats publishes match notifications to NATS.
//
// Every notification from the publisher is wrapped in an output.Envelope and
// published on a subject derived from its kind:
//
//	<prefix>.event.<event kind>   e.g. vta.event.score
//	<prefix>.state
//	<prefix>.diagnostic
//
// With Config.Stream set the sink ensures a JetStream stream capturing
// "<prefix>.>" and publishes with acknowledgement. Transient publish failures
// are retried with exponential backoff; an envelope that still fails is
// counted as a sink error and skipped.
package nats
