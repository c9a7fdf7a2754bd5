// Package errors provides standardized error handling for the match feed.
//
// # Overview
//
// Errors fall into three classes: Transient (temporary, retryable), Invalid
// (bad input, non-retryable) and Fatal (unrecoverable, stop processing).
// Components make retry and shutdown decisions from the class instead of
// matching error strings.
//
// # Scoring Stream Sentinels
//
// The ingest path reports its failures through a fixed set of sentinels:
//
//	ErrBind           socket could not be opened (fatal, reported from Start)
//	ErrReceive        read failed on an open socket (logged, loop continues)
//	ErrNonASCII       datagram dropped before tokenizing
//	ErrUnknownTag     statement tag not in the registry
//	ErrArityMismatch  wrong number or shape of fields
//	ErrInvalidField   field failed to parse for its tag
//
// Decode failures carry richer context in protocol.DecodeError, which unwraps
// to the matching sentinel so errors.Is works across package boundaries.
//
// # Error Wrapping Pattern
//
// All wrapping follows the format:
//
//	"component.method: action failed: %w"
//
//	errors.WrapTransient(err, "Component", "Method", "action")  // retryable
//	errors.WrapInvalid(err, "Component", "Method", "action")    // validation
//	errors.WrapFatal(err, "Component", "Method", "action")      // unrecoverable
//
// # Retry
//
// Retry runs an operation under the exponential backoff described by a
// RetryConfig and stops early on any non-transient error:
//
//	conn, err := errors.Retry(ctx, errors.DefaultRetryConfig(), func() (*nats.Conn, error) {
//	    return nats.Connect(url)
//	})
package errors
