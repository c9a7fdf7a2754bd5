// Package errors provides the error classification used across the match feed.
// It includes error classes, standard error variables, domain sentinels for the
// scoring stream, and helpers for consistent wrapping.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Lifecycle, connection and configuration errors
var (
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrAlreadyStopped = errors.New("component already stopped")
	ErrShuttingDown   = errors.New("component is shutting down")

	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")

	ErrInvalidData       = errors.New("invalid data format")
	ErrParsingFailed     = errors.New("parsing failed")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrMissingConfig     = errors.New("missing required configuration")
	ErrResourceExhausted = errors.New("resource exhausted")
)

// Scoring stream errors. Ingest errors are raised by the socket listener,
// statement errors by the stream decoder.
var (
	// ErrBind means the listening socket could not be opened. Always fatal.
	ErrBind = errors.New("socket bind failed")
	// ErrReceive is a failed read on an open socket. Logged, never fatal.
	ErrReceive = errors.New("datagram receive failed")
	// ErrNonASCII marks a datagram that carried bytes outside 7-bit ASCII.
	ErrNonASCII = errors.New("non-ascii payload")

	// ErrUnknownTag marks a statement whose tag is not registered.
	ErrUnknownTag = errors.New("unknown tag")
	// ErrArityMismatch marks a statement with the wrong number or shape of fields.
	ErrArityMismatch = errors.New("arity mismatch")
	// ErrInvalidField marks a field that does not parse for its tag.
	ErrInvalidField = errors.New("invalid field")
)

// Sentinels checked before the message patterns. An error matching one of
// these lists is never reclassified by its text.
var (
	transientSentinels = []error{
		ErrConnectionLost, ErrConnectionTimeout, ErrReceive,
		context.DeadlineExceeded, context.Canceled,
	}
	fatalSentinels = []error{
		ErrBind, ErrInvalidConfig, ErrMissingConfig, ErrResourceExhausted,
	}
	invalidSentinels = []error{
		ErrInvalidData, ErrParsingFailed,
		ErrUnknownTag, ErrArityMismatch, ErrInvalidField, ErrNonASCII,
	}
)

// Message fragments for unclassified errors from drivers and the network.
// SQLite reports a locked journal as "database is locked (SQLITE_BUSY)".
var (
	transientPatterns = []string{"timeout", "connection", "network", "temporary", "unavailable", "busy", "retry"}
	fatalPatterns     = []string{"fatal", "panic", "corrupted", "invalid config", "missing config", "out of memory", "disk full"}
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

func classOf(err error) (ErrorClass, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	return 0, false
}

func isAny(err error, sentinels []error) bool {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

func mentions(err error, patterns []string) bool {
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorTransient
	}
	if isAny(err, transientSentinels) {
		return true
	}
	if isAny(err, invalidSentinels) || isAny(err, fatalSentinels) {
		return false
	}
	return mentions(err, transientPatterns)
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorFatal
	}
	return isAny(err, fatalSentinels) || mentions(err, fatalPatterns)
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorInvalid
	}
	return isAny(err, invalidSentinels)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient // Default for nil
	}

	if IsTransient(err) {
		return ErrorTransient
	}
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}

	// Unknown errors default to transient to allow retry
	return ErrorTransient
}

func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// RetryConfig defines configuration for retry operations
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns the retry policy used for network sinks
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// BackOff builds the exponential backoff matching this config.
func (rc RetryConfig) BackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rc.InitialDelay
	b.MaxInterval = rc.MaxDelay
	if rc.BackoffFactor > 1 {
		b.Multiplier = rc.BackoffFactor
	}
	return b
}

// Retry runs op until it succeeds, the retry budget is spent, or ctx ends.
// Only transient errors are retried; anything else is returned at once.
func Retry[T any](ctx context.Context, rc RetryConfig, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(rc.BackOff()),
		backoff.WithMaxTries(uint(rc.MaxRetries+1)),
	)
}
