// Package output holds what the feed's sinks share: the JSON envelope every
// notification is serialized into, and the payload shapes inside it.
package output

import (
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"github.com/reStrike-d-o-o/reStrike-VTA/errors"
	"github.com/reStrike-d-o-o/reStrike-VTA/match"
	"github.com/reStrike-d-o-o/reStrike-VTA/protocol"
	"github.com/reStrike-d-o-o/reStrike-VTA/publisher"
)

// Envelope wraps every message a sink emits.
//
// Type is "event", "state" or "diagnostic". ID is unique per envelope. Seq is
// the publisher sequence number, so consumers can order and de-duplicate
// across sinks. Timestamp is the datagram arrival time in Unix milliseconds.
type Envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Seq       uint64          `json:"seq"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Diagnostic is the payload of a diagnostic envelope.
type Diagnostic struct {
	Kind   string `json:"kind"`
	Tag    string `json:"tag,omitempty"`
	Field  int    `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error"`
	Raw    string `json:"raw,omitempty"`
}

// NewDiagnostic describes err, which rejected raw.
func NewDiagnostic(err error, raw string) Diagnostic {
	d := Diagnostic{Kind: "rejected", Raw: raw}
	if err == nil {
		return d
	}
	d.Error = err.Error()

	var de *protocol.DecodeError
	switch {
	case stderrors.As(err, &de):
		d.Kind = de.Kind.String()
		d.Tag = de.Tag
		d.Reason = de.Reason
		if de.Field >= 0 {
			d.Field = de.Field
		}
	case stderrors.Is(err, errors.ErrNonASCII):
		d.Kind = "non_ascii"
	}
	return d
}

// StateEnvelope wraps a state snapshot that is not tied to a notification,
// such as the snapshot sent to a newly connected client.
func StateEnvelope(s match.State, seq uint64, at time.Time) (Envelope, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return Envelope{}, errors.WrapInvalid(err, "output", "StateEnvelope", "marshal state")
	}
	return newEnvelope(publisher.KindState.String(), seq, at, payload), nil
}

// Wrap builds the envelope for a notification.
func Wrap(n publisher.Notification) (Envelope, error) {
	var (
		payload []byte
		err     error
	)
	switch n.Kind {
	case publisher.KindEvent:
		payload, err = json.Marshal(protocol.NewRecord(n.Event))
	case publisher.KindState:
		payload, err = json.Marshal(n.State)
	case publisher.KindDiagnostic:
		payload, err = json.Marshal(NewDiagnostic(n.Err, n.Raw))
	default:
		err = errors.ErrInvalidData
	}
	if err != nil {
		return Envelope{}, errors.WrapInvalid(err, "output", "Wrap", "marshal "+n.Kind.String()+" payload")
	}
	return newEnvelope(n.Kind.String(), n.Seq, n.At, payload), nil
}

// Marshal is Wrap followed by JSON encoding.
func Marshal(n publisher.Notification) ([]byte, error) {
	env, err := Wrap(n)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func newEnvelope(typ string, seq uint64, at time.Time, payload []byte) Envelope {
	return Envelope{
		Type:      typ,
		ID:        uuid.NewString(),
		Seq:       seq,
		Timestamp: at.UnixMilli(),
		Payload:   payload,
	}
}
