package protocol

import (
	"fmt"

	"github.com/reStrike-d-o-o/reStrike-VTA/errors"
)

// ErrorKind classifies a rejected statement.
type ErrorKind int

const (
	UnknownTag ErrorKind = iota + 1
	ArityMismatch
	InvalidField
)

func (k ErrorKind) String() string {
	switch k {
	case UnknownTag:
		return "unknown_tag"
	case ArityMismatch:
		return "arity_mismatch"
	case InvalidField:
		return "invalid_field"
	default:
		return "unknown"
	}
}

func (k ErrorKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ErrorKind) UnmarshalText(text []byte) error {
	for _, v := range []ErrorKind{UnknownTag, ArityMismatch, InvalidField} {
		if v.String() == string(text) {
			*k = v
			return nil
		}
	}
	return fmt.Errorf("unknown error kind %q", text)
}

func (k ErrorKind) sentinel() error {
	switch k {
	case UnknownTag:
		return errors.ErrUnknownTag
	case ArityMismatch:
		return errors.ErrArityMismatch
	default:
		return errors.ErrInvalidField
	}
}

// DecodeError describes a statement the decoder rejected. It unwraps to the
// matching sentinel in the errors package.
type DecodeError struct {
	Kind ErrorKind `json:"kind"`
	Tag  string    `json:"tag"`
	// Field is the zero-based index of the offending field, or -1.
	Field  int    `json:"field"`
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

func (e *DecodeError) Error() string {
	tag := e.Tag
	if tag == "" {
		tag = "<leading text>"
	}
	if e.Field >= 0 {
		return fmt.Sprintf("decode %s field %d: %s: %s", tag, e.Field, e.Kind.sentinel(), e.Reason)
	}
	return fmt.Sprintf("decode %s: %s: %s", tag, e.Kind.sentinel(), e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Kind.sentinel() }

func unknownTag(st Statement, reason string) *DecodeError {
	return &DecodeError{Kind: UnknownTag, Tag: st.Tag, Field: -1, Raw: st.Raw, Reason: reason}
}

func arityMismatch(st Statement, format string, args ...any) *DecodeError {
	return &DecodeError{Kind: ArityMismatch, Tag: st.Tag, Field: -1, Raw: st.Raw, Reason: fmt.Sprintf(format, args...)}
}

func invalidField(st Statement, field int, format string, args ...any) *DecodeError {
	return &DecodeError{Kind: InvalidField, Tag: st.Tag, Field: field, Raw: st.Raw, Reason: fmt.Sprintf(format, args...)}
}
