package protocol

import (
	"net"
	"time"
	"unicode/utf8"
)

// Datagram is one UDP payload as received, before tokenizing.
type Datagram struct {
	Payload    []byte
	Source     net.Addr
	ReceivedAt time.Time
}

// IsASCII reports whether every byte of p is 7-bit ASCII.
func IsASCII(p []byte) bool {
	for _, b := range p {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// Record is the serializable form of an event used by output sinks.
type Record struct {
	Kind Kind      `json:"kind"`
	Tag  string    `json:"tag"`
	Wire string    `json:"wire"`
	At   time.Time `json:"at"`
	Data Event     `json:"data"`
}

// NewRecord wraps ev with its kind, tag and wire form.
func NewRecord(ev Event) Record {
	return Record{
		Kind: ev.Kind(),
		Tag:  Tag(ev),
		Wire: Encode(ev),
		At:   ev.Arrival(),
		Data: ev,
	}
}
