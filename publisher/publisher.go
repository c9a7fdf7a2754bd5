package publisher

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/reStrike-d-o-o/reStrike-VTA/errors"
	"github.com/reStrike-d-o-o/reStrike-VTA/metric"
)

// DefaultQueueSize is the per-subscriber queue capacity when none is configured.
const DefaultQueueSize = 256

// ErrDuplicateSubscriber is returned when a name is already subscribed.
var ErrDuplicateSubscriber = stderrors.New("subscriber name already in use")

// Publisher distributes notifications to subscribers. It is safe for
// concurrent use, though the pipeline is normally its only publisher.
type Publisher struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool

	seq atomic.Uint64

	queueSize int
	registry  *metric.MetricsRegistry
	metrics   *metric.Metrics
	logger    *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithQueueSize sets the default per-subscriber queue capacity.
func WithQueueSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithMetrics exports publisher and subscriber queue metrics to registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(p *Publisher) {
		if registry != nil {
			p.registry = registry
			p.metrics = registry.CoreMetrics()
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a publisher with no subscribers.
func New(opts ...Option) *Publisher {
	p := &Publisher{
		subs:      make(map[string]*Subscription),
		queueSize: DefaultQueueSize,
		logger:    slog.Default().With("component", "publisher"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe registers a named subscriber. Names must be unique among live
// subscriptions; a closed subscription frees its name.
func (p *Publisher) Subscribe(name string, opts ...SubscribeOption) (*Subscription, error) {
	if name == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Publisher", "Subscribe", "validate subscriber name")
	}

	cfg := subscribeConfig{queueSize: p.queueSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, errors.WrapInvalid(errors.ErrShuttingDown, "Publisher", "Subscribe", "check publisher state")
	}
	if _, exists := p.subs[name]; exists {
		return nil, errors.WrapInvalid(fmt.Errorf("%q: %w", name, ErrDuplicateSubscriber), "Publisher", "Subscribe", "register subscriber")
	}

	sub, err := newSubscription(p, name, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "Publisher", "Subscribe", "create subscriber queue")
	}
	p.subs[name] = sub
	p.updateSubscriberGauge()

	p.logger.Debug("Subscriber added", "subscriber", name, "queue_size", cfg.queueSize)
	return sub, nil
}

// Publish stamps n with the next sequence number and enqueues it for every
// subscriber that accepts its kind. It never blocks. The stamped
// notification is returned. Publishing after Close is a no-op that still
// returns the notification unstamped.
func (p *Publisher) Publish(n Notification) Notification {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return n
	}

	n.Seq = p.seq.Add(1)
	if p.metrics != nil {
		p.metrics.RecordNotification(n.Kind.String())
	}

	for _, sub := range p.subs {
		if !sub.accepts(n.Kind) {
			continue
		}
		if err := sub.buf.Write(n); err != nil {
			// The subscription is closing; it is removed right after.
			p.logger.Debug("Dropped notification for closing subscriber", "subscriber", sub.name, "seq", n.Seq)
		}
	}
	return n
}

// Seq returns the last sequence number handed out.
func (p *Publisher) Seq() uint64 {
	return p.seq.Load()
}

// Subscribers returns the number of live subscriptions.
func (p *Publisher) Subscribers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}

// Close closes every subscription and rejects new ones. Waiting readers
// receive ErrSubscriptionClosed once their queues are drained.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	subs := make([]*Subscription, 0, len(p.subs))
	for _, sub := range p.subs {
		subs = append(subs, sub)
	}
	p.subs = make(map[string]*Subscription)
	p.updateSubscriberGauge()
	p.mu.Unlock()

	for _, sub := range subs {
		sub.closeQueue()
	}
	p.logger.Debug("Publisher closed", "subscribers", len(subs))
	return nil
}

func (p *Publisher) remove(sub *Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.subs[sub.name]; ok && cur == sub {
		delete(p.subs, sub.name)
		p.updateSubscriberGauge()
	}
}

// caller holds p.mu
func (p *Publisher) updateSubscriberGauge() {
	if p.metrics != nil {
		p.metrics.Subscribers.Set(float64(len(p.subs)))
	}
}
