package publisher

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"github.com/reStrike-d-o-o/reStrike-VTA/pkg/buffer"
)

// ErrSubscriptionClosed is returned by Next once the subscription is closed
// and its queue is empty.
var ErrSubscriptionClosed = stderrors.New("subscription closed")

// SubscribeOption configures a single subscription.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	queueSize int
	kinds     []Kind
}

// WithSubscriberQueueSize overrides the publisher's default queue capacity.
func WithSubscriberQueueSize(n int) SubscribeOption {
	return func(c *subscribeConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithKinds restricts the subscription to the given notification kinds.
// Without it every kind is delivered.
func WithKinds(kinds ...Kind) SubscribeOption {
	return func(c *subscribeConfig) {
		c.kinds = append(c.kinds, kinds...)
	}
}

// Subscription is one subscriber's handle. Next and Drain may be called from
// a single consumer goroutine; Close and Dropped are safe from anywhere.
type Subscription struct {
	name    string
	mask    uint8
	buf     buffer.Buffer[Notification]
	pub     *Publisher
	dropped atomic.Uint64
	once    sync.Once
}

func newSubscription(p *Publisher, name string, cfg subscribeConfig) (*Subscription, error) {
	sub := &Subscription{name: name, pub: p}

	if len(cfg.kinds) == 0 {
		sub.mask = 1<<KindEvent | 1<<KindState | 1<<KindDiagnostic
	}
	for _, k := range cfg.kinds {
		sub.mask |= 1 << k
	}

	opts := []buffer.Option[Notification]{
		buffer.WithOverflowPolicy[Notification](buffer.DropOldest),
		buffer.WithDropCallback[Notification](func(Notification) {
			sub.dropped.Add(1)
			if p.metrics != nil {
				p.metrics.RecordSubscriberDrop(name)
			}
		}),
	}
	if p.registry != nil {
		opts = append(opts, buffer.WithMetrics[Notification](p.registry, "subscriber_"+name))
	}

	buf, err := buffer.NewCircularBuffer(cfg.queueSize, opts...)
	if err != nil {
		return nil, err
	}
	sub.buf = buf
	return sub, nil
}

func (s *Subscription) accepts(k Kind) bool {
	return s.mask&(1<<k) != 0
}

// Name returns the subscriber name.
func (s *Subscription) Name() string {
	return s.name
}

// Next blocks until a notification is available, ctx ends, or the
// subscription is closed with nothing left to read.
func (s *Subscription) Next(ctx context.Context) (Notification, error) {
	ready := s.buf.Ready()
	for {
		if n, ok := s.buf.Read(); ok {
			return n, nil
		}
		select {
		case <-ctx.Done():
			return Notification{}, ctx.Err()
		case _, open := <-ready:
			if !open {
				if n, ok := s.buf.Read(); ok {
					return n, nil
				}
				return Notification{}, ErrSubscriptionClosed
			}
		}
	}
}

// Drain removes up to max queued notifications without blocking.
func (s *Subscription) Drain(max int) []Notification {
	return s.buf.ReadBatch(max)
}

// Pending returns the number of queued notifications.
func (s *Subscription) Pending() int {
	return s.buf.Size()
}

// Dropped returns how many notifications this subscriber lost to overflow.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches the subscription from the publisher. Queued notifications
// remain readable.
func (s *Subscription) Close() error {
	s.pub.remove(s)
	s.closeQueue()
	return nil
}

func (s *Subscription) closeQueue() {
	s.once.Do(func() {
		_ = s.buf.Close()
	})
}
