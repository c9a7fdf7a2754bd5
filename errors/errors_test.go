package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"connection lost", ErrConnectionLost, true},
		{"receive failure", ErrReceive, true},
		{"wrapped receive failure", fmt.Errorf("read: %w", ErrReceive), true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"bind failure", ErrBind, false},
		{"bind failure mentioning network", fmt.Errorf("network unreachable: %w", ErrBind), false},
		{"unknown tag", ErrUnknownTag, false},
		{"invalid data", ErrInvalidData, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"locked journal", fmt.Errorf("database is locked (5) (SQLITE_BUSY)"), true},
		{"config error mentioning timeout", fmt.Errorf("read timeout: %w", ErrInvalidConfig), false},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsTransient(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"bind failure", ErrBind, true},
		{"invalid config", ErrInvalidConfig, true},
		{"missing config", ErrMissingConfig, true},
		{"resource exhausted", ErrResourceExhausted, true},
		{"connection timeout", ErrConnectionTimeout, false},
		{"arity mismatch", ErrArityMismatch, false},
		{"fatal in message", fmt.Errorf("fatal system error occurred"), true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsFatal(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid data", ErrInvalidData, true},
		{"parsing failed", ErrParsingFailed, true},
		{"unknown tag", ErrUnknownTag, true},
		{"arity mismatch", ErrArityMismatch, true},
		{"invalid field", fmt.Errorf("clk field 0: %w", ErrInvalidField), true},
		{"non-ascii payload", ErrNonASCII, true},
		{"connection timeout", ErrConnectionTimeout, false},
		{"classified invalid", &ClassifiedError{Class: ErrorInvalid, Err: fmt.Errorf("test")}, true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsInvalid(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil error", nil, ErrorTransient},
		{"connection timeout", ErrConnectionTimeout, ErrorTransient},
		{"receive failure", ErrReceive, ErrorTransient},
		{"bind failure", ErrBind, ErrorFatal},
		{"invalid config", ErrInvalidConfig, ErrorFatal},
		{"invalid data", ErrInvalidData, ErrorInvalid},
		{"unknown tag", ErrUnknownTag, ErrorInvalid},
		{"non-ascii payload", ErrNonASCII, ErrorInvalid},
		{"unknown error", fmt.Errorf("unknown error"), ErrorTransient},
		{"classified error", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, ErrorFatal},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := Classify(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassifiedError(t *testing.T) {
	baseErr := fmt.Errorf("base error")
	ce := newClassified(ErrorTransient, baseErr, "testComponent", "testOperation", "custom message")

	if ce.Class != ErrorTransient {
		t.Errorf("expected ErrorTransient, got %v", ce.Class)
	}
	if ce.Component != "testComponent" {
		t.Errorf("expected testComponent, got %s", ce.Component)
	}
	if ce.Operation != "testOperation" {
		t.Errorf("expected testOperation, got %s", ce.Operation)
	}
	if ce.Error() != "custom message" {
		t.Errorf("expected 'custom message', got %s", ce.Error())
	}
	if !errors.Is(ce, baseErr) {
		t.Error("classified error should unwrap to base error")
	}

	bare := newClassified(ErrorTransient, baseErr, "c", "o", "")
	if bare.Error() != "base error" {
		t.Errorf("expected 'base error', got %s", bare.Error())
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "component", "method", "action") != nil {
		t.Error("wrapping nil should return nil")
	}

	result := Wrap(fmt.Errorf("address in use"), "UDPListener", "Start", "bind socket")
	expected := "UDPListener.Start: bind socket failed: address in use"
	if result == nil || result.Error() != expected {
		t.Errorf("expected '%s', got '%v'", expected, result)
	}
}

func TestWrapClassified(t *testing.T) {
	tests := []struct {
		name     string
		wrapFunc func(error, string, string, string) error
		class    ErrorClass
	}{
		{"WrapTransient", WrapTransient, ErrorTransient},
		{"WrapFatal", WrapFatal, ErrorFatal},
		{"WrapInvalid", WrapInvalid, ErrorInvalid},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := test.wrapFunc(ErrBind, "component", "method", "action")

			var ce *ClassifiedError
			if !errors.As(result, &ce) {
				t.Fatal("result should be a ClassifiedError")
			}
			if ce.Class != test.class {
				t.Errorf("expected %v, got %v", test.class, ce.Class)
			}
			if !errors.Is(result, ErrBind) {
				t.Error("classified error should unwrap to the sentinel")
			}
			if !strings.Contains(ce.Error(), "component.method: action failed") {
				t.Errorf("error should contain standard format, got: %s", ce.Error())
			}
		})
	}
}

func TestRetry(t *testing.T) {
	rc := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		v, err := Retry(context.Background(), rc, func() (int, error) {
			calls++
			if calls < 3 {
				return 0, ErrConnectionLost
			}
			return 42, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != 42 || calls != 3 {
			t.Errorf("expected 42 after 3 calls, got %d after %d", v, calls)
		}
	})

	t.Run("stops on non-transient error", func(t *testing.T) {
		calls := 0
		_, err := Retry(context.Background(), rc, func() (int, error) {
			calls++
			return 0, ErrInvalidData
		})
		if !errors.Is(err, ErrInvalidData) {
			t.Errorf("expected ErrInvalidData, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected a single attempt, got %d", calls)
		}
	})

	t.Run("gives up after max tries", func(t *testing.T) {
		calls := 0
		_, err := Retry(context.Background(), rc, func() (int, error) {
			calls++
			return 0, ErrConnectionTimeout
		})
		if !errors.Is(err, ErrConnectionTimeout) {
			t.Errorf("expected ErrConnectionTimeout, got %v", err)
		}
		if calls != rc.MaxRetries+1 {
			t.Errorf("expected %d attempts, got %d", rc.MaxRetries+1, calls)
		}
	})
}

func TestRetryConfig_BackOff(t *testing.T) {
	rc := RetryConfig{InitialDelay: 200 * time.Millisecond, MaxDelay: 10 * time.Second, BackoffFactor: 1.5}
	b := rc.BackOff()
	if b.InitialInterval != 200*time.Millisecond {
		t.Errorf("expected InitialInterval 200ms, got %v", b.InitialInterval)
	}
	if b.MaxInterval != 10*time.Second {
		t.Errorf("expected MaxInterval 10s, got %v", b.MaxInterval)
	}
	if b.Multiplier != 1.5 {
		t.Errorf("expected Multiplier 1.5, got %f", b.Multiplier)
	}
}

func BenchmarkClassify(b *testing.B) {
	err := ErrUnknownTag
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Classify(err)
	}
}
