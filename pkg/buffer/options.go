package buffer

import (
	"github.com/reStrike-d-o-o/reStrike-VTA/metric"
)

// Option configures buffer behavior.
type Option[T any] func(*bufferOptions[T])

type bufferOptions[T any] struct {
	overflowPolicy OverflowPolicy
	dropCallback   DropCallback[T]

	// metricsReg is optional; when set the buffer statistics are also exported
	metricsReg *metric.MetricsRegistry

	// metricsLabel becomes the "queue" label on exported metrics
	metricsLabel string
}

// WithOverflowPolicy sets the overflow behavior. Defaults to DropOldest.
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(opts *bufferOptions[T]) {
		opts.overflowPolicy = policy
	}
}

// WithMetrics exports the buffer statistics to registry under the given label.
// A nil registry or empty label disables export.
func WithMetrics[T any](registry *metric.MetricsRegistry, label string) Option[T] {
	return func(opts *bufferOptions[T]) {
		if registry != nil && label != "" {
			opts.metricsReg = registry
			opts.metricsLabel = label
		}
	}
}

// WithDropCallback sets a callback invoked for each item lost to overflow.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(opts *bufferOptions[T]) {
		opts.dropCallback = callback
	}
}

func applyOptions[T any](options ...Option[T]) *bufferOptions[T] {
	opts := &bufferOptions[T]{
		overflowPolicy: DropOldest,
	}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	return opts
}
