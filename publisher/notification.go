package publisher

import (
	"time"

	"github.com/reStrike-d-o-o/reStrike-VTA/match"
	"github.com/reStrike-d-o-o/reStrike-VTA/protocol"
)

// Kind distinguishes the three notification streams.
type Kind int

const (
	// KindEvent carries one decoded event.
	KindEvent Kind = iota
	// KindState carries the match state after one applied reduction.
	KindState
	// KindDiagnostic carries a rejected statement or a dropped datagram.
	KindDiagnostic
)

var kindNames = [...]string{
	KindEvent:      "event",
	KindState:      "state",
	KindDiagnostic: "diagnostic",
}

// String returns the lower-case stream name.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Notification is one item delivered to subscribers. Exactly one of Event,
// State or Err is meaningful, selected by Kind.
type Notification struct {
	Kind Kind
	Seq  uint64
	At   time.Time

	Event protocol.Event
	State match.State

	// Err and Raw describe a diagnostic. Raw is the offending statement text
	// or, for dropped datagrams, the datagram payload.
	Err error
	Raw string
}

// EventNotification builds an event notification.
func EventNotification(ev protocol.Event) Notification {
	return Notification{Kind: KindEvent, At: ev.Arrival(), Event: ev}
}

// StateNotification builds a state notification stamped with the arrival
// time of the event that produced it.
func StateNotification(s match.State, at time.Time) Notification {
	return Notification{Kind: KindState, At: at, State: s}
}

// DiagnosticNotification builds a diagnostic notification.
func DiagnosticNotification(err error, raw string, at time.Time) Notification {
	return Notification{Kind: KindDiagnostic, At: at, Err: err, Raw: raw}
}
