package buffer

import (
	"sync"

	"github.com/reStrike-d-o-o/reStrike-VTA/errors"
)

// circularBuffer is a ring of fixed capacity guarded by a single mutex.
type circularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	stats    *Statistics
	metrics  *bufferMetrics
	opts     *bufferOptions[T]

	ready  chan struct{}
	closed bool
}

func newCircularBuffer[T any](capacity int, opts *bufferOptions[T]) (*circularBuffer[T], error) {
	if capacity <= 0 {
		capacity = 1
	}

	var metrics *bufferMetrics
	if opts.metricsReg != nil && opts.metricsLabel != "" {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsLabel)
		if err != nil {
			return nil, errors.WrapInvalid(err, "buffer", "newCircularBuffer", "metrics registration")
		}
	}

	return &circularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
		ready:    make(chan struct{}, 1),
	}, nil
}

// Write adds an item to the buffer according to the overflow policy.
func (cb *circularBuffer[T]) Write(item T) error {
	dropped, hasDropped, err := cb.write(item)
	if hasDropped && cb.opts.dropCallback != nil {
		cb.opts.dropCallback(dropped)
	}
	return err
}

func (cb *circularBuffer[T]) write(item T) (dropped T, hasDropped bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed {
		return dropped, false, errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "Write", "buffer closed")
	}

	if cb.size == cb.capacity {
		cb.stats.Drop()
		if cb.metrics != nil {
			cb.metrics.recordDrop()
		}

		if cb.opts.overflowPolicy == DropNewest {
			return item, true, nil
		}

		var zero T
		dropped = cb.items[cb.tail]
		cb.items[cb.tail] = zero
		cb.tail = (cb.tail + 1) % cb.capacity
		cb.size--
		hasDropped = true
	}

	cb.items[cb.head] = item
	cb.head = (cb.head + 1) % cb.capacity
	cb.size++

	cb.stats.Write()
	cb.stats.UpdateSize(int64(cb.size))
	if cb.metrics != nil {
		cb.metrics.recordWrite(cb.size, cb.capacity)
	}

	select {
	case cb.ready <- struct{}{}:
	default:
	}

	return dropped, hasDropped, nil
}

// Read retrieves and removes one item from the buffer.
func (cb *circularBuffer[T]) Read() (T, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var zero T
	if cb.size == 0 {
		return zero, false
	}

	item := cb.items[cb.tail]
	cb.items[cb.tail] = zero
	cb.tail = (cb.tail + 1) % cb.capacity
	cb.size--

	cb.stats.Read()
	cb.stats.UpdateSize(int64(cb.size))
	if cb.metrics != nil {
		cb.metrics.recordRead(cb.size, cb.capacity)
	}

	return item, true
}

// ReadBatch retrieves and removes up to max items from the buffer.
func (cb *circularBuffer[T]) ReadBatch(max int) []T {
	if max <= 0 {
		return nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.size == 0 {
		return nil
	}

	n := max
	if n > cb.size {
		n = cb.size
	}

	result := make([]T, n)
	var zero T
	for i := 0; i < n; i++ {
		result[i] = cb.items[cb.tail]
		cb.items[cb.tail] = zero
		cb.tail = (cb.tail + 1) % cb.capacity
		cb.size--
		cb.stats.Read()
	}

	cb.stats.UpdateSize(int64(cb.size))
	if cb.metrics != nil {
		cb.metrics.updateSize(cb.size, cb.capacity)
	}

	return result
}

// Peek retrieves one item without removing it from the buffer.
func (cb *circularBuffer[T]) Peek() (T, bool) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	var zero T
	if cb.size == 0 {
		return zero, false
	}
	return cb.items[cb.tail], true
}

func (cb *circularBuffer[T]) Size() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.size
}

func (cb *circularBuffer[T]) Capacity() int {
	return cb.capacity
}

func (cb *circularBuffer[T]) IsFull() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.size == cb.capacity
}

func (cb *circularBuffer[T]) IsEmpty() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.size == 0
}

// Clear removes all items from the buffer.
func (cb *circularBuffer[T]) Clear() {
	cb.mu.Lock()

	var dropped []T
	if cb.opts.dropCallback != nil && cb.size > 0 {
		dropped = make([]T, cb.size)
		for i := 0; i < cb.size; i++ {
			dropped[i] = cb.items[(cb.tail+i)%cb.capacity]
		}
	}

	var zero T
	for i := range cb.items {
		cb.items[i] = zero
	}
	cb.head, cb.tail, cb.size = 0, 0, 0

	cb.stats.UpdateSize(0)
	if cb.metrics != nil {
		cb.metrics.updateSize(0, cb.capacity)
	}
	cb.mu.Unlock()

	for _, item := range dropped {
		cb.opts.dropCallback(item)
	}
}

func (cb *circularBuffer[T]) Ready() <-chan struct{} {
	return cb.ready
}

func (cb *circularBuffer[T]) Stats() *Statistics {
	return cb.stats
}

// Close rejects further writes. Buffered items stay readable.
func (cb *circularBuffer[T]) Close() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed {
		return nil
	}
	cb.closed = true
	close(cb.ready)

	if cb.metrics != nil {
		cb.metrics.unregister()
	}
	return nil
}
