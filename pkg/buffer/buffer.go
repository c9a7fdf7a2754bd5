// Package buffer provides a generic, thread-safe bounded queue with overflow
// policies. It backs the per-subscriber queues of the event publisher: writers
// never block, and readers are woken through a signal channel.
package buffer

// Buffer is a bounded FIFO of items of type T.
type Buffer[T any] interface {
	// Write adds an item. When the buffer is full the overflow policy decides
	// which item is lost; Write itself never blocks.
	Write(item T) error

	// Read removes and returns the oldest item, or false if the buffer is empty.
	Read() (T, bool)

	// ReadBatch removes and returns up to max items in FIFO order.
	ReadBatch(max int) []T

	// Peek returns the oldest item without removing it.
	Peek() (T, bool)

	Size() int
	Capacity() int
	IsFull() bool
	IsEmpty() bool

	// Clear drops every buffered item, invoking the drop callback for each.
	Clear()

	// Ready is signalled after a write. The channel holds at most one pending
	// signal, so readers must drain with Read/ReadBatch after each wakeup.
	Ready() <-chan struct{}

	// Stats returns the buffer statistics.
	Stats() *Statistics

	// Close rejects further writes and closes the Ready channel.
	Close() error
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest item to make room for the new one.
	DropOldest OverflowPolicy = iota

	// DropNewest discards the incoming item.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// DropCallback is called, outside the buffer lock, for every item lost to overflow.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a circular buffer with the given capacity.
// Capacity below one is raised to one. Metrics registration failures are returned.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newCircularBuffer(capacity, opts)
}
