// Package pipeline turns received datagrams into match notifications.
//
// For every datagram the pipeline tokenizes and decodes the payload, then
// walks the statements in wire order: an accepted statement is published as
// an event, reduced into the match state, and the new state is published;
// a rejected statement is published as a diagnostic and skipped. The next
// statement, and the next datagram, see the state left by the previous one.
package pipeline

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/reStrike-d-o-o/reStrike-VTA/input/udp"
	"github.com/reStrike-d-o-o/reStrike-VTA/match"
	"github.com/reStrike-d-o-o/reStrike-VTA/metric"
	"github.com/reStrike-d-o-o/reStrike-VTA/protocol"
	"github.com/reStrike-d-o-o/reStrike-VTA/publisher"
)

// Deps holds the pipeline collaborators
type Deps struct {
	Publisher       *publisher.Publisher    // Required
	MetricsRegistry *metric.MetricsRegistry // Optional
	Logger          *slog.Logger            // Optional
}

// Pipeline is the single writer of the match state. HandleDatagram and
// HandleDropped must be called from one goroutine; State may be called from
// any.
type Pipeline struct {
	reducer  *match.Reducer
	pub      *publisher.Publisher
	metrics  *metric.Metrics
	logger   *slog.Logger
	snapshot atomic.Pointer[match.State]

	datagrams  atomic.Int64
	statements atomic.Int64
	rejected   atomic.Int64
}

var _ udp.Handler = (*Pipeline)(nil)

// New creates a pipeline starting from the empty match state
func New(deps Deps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "pipeline")
	}

	p := &Pipeline{
		reducer: match.NewReducer(),
		pub:     deps.Publisher,
		logger:  logger,
	}
	if deps.MetricsRegistry != nil {
		p.metrics = deps.MetricsRegistry.CoreMetrics()
	}
	initial := p.reducer.State()
	p.snapshot.Store(&initial)
	return p
}

// HandleDatagram processes every statement of d in order
func (p *Pipeline) HandleDatagram(d protocol.Datagram) {
	p.datagrams.Add(1)

	for _, r := range protocol.Parse(string(d.Payload), d.ReceivedAt) {
		if r.Err != nil {
			p.reject(r, d.ReceivedAt)
			continue
		}
		p.accept(r)
	}
}

// HandleDropped publishes a diagnostic for a datagram the listener refused
func (p *Pipeline) HandleDropped(d protocol.Datagram, err error) {
	p.publish(publisher.DiagnosticNotification(err, string(d.Payload), d.ReceivedAt))
}

func (p *Pipeline) accept(r protocol.Result) {
	p.statements.Add(1)
	if p.metrics != nil {
		p.metrics.RecordStatement(r.Statement.Tag)
	}

	n := publisher.EventNotification(r.Event)
	n.Raw = r.Statement.Raw
	p.publish(n)

	start := time.Now()
	state, err := p.reducer.Apply(r.Event)
	if p.metrics != nil {
		p.metrics.RecordReduce(time.Since(start))
	}
	if err != nil {
		p.rejected.Add(1)
		p.logger.Warn("Event not applied", "tag", r.Statement.Tag, "raw", r.Statement.Raw, "error", err)
		p.publish(publisher.DiagnosticNotification(err, r.Statement.Raw, r.Event.Arrival()))
		return
	}
	p.snapshot.Store(&state)

	if c, ok := r.Event.(protocol.Connection); ok {
		p.logger.Info("Scoring system link changed", "port", c.Port, "connected", c.Connected)
		if p.metrics != nil {
			p.metrics.RecordScoringLink(c.Connected)
		}
	}

	p.publish(publisher.StateNotification(state, r.Event.Arrival()))
}

func (p *Pipeline) reject(r protocol.Result, at time.Time) {
	p.rejected.Add(1)
	if p.metrics != nil {
		p.metrics.RecordDecodeError(r.Err.Kind.String())
	}
	p.logger.Debug("Statement rejected", "tag", r.Statement.Tag, "raw", r.Statement.Raw, "error", r.Err)
	p.publish(publisher.DiagnosticNotification(r.Err, r.Statement.Raw, at))
}

func (p *Pipeline) publish(n publisher.Notification) {
	if p.pub != nil {
		p.pub.Publish(n)
	}
}

// State returns the latest match state
func (p *Pipeline) State() match.State {
	return *p.snapshot.Load()
}

// Stats reports how much the pipeline has processed
type Stats struct {
	Datagrams  int64 `json:"datagrams"`
	Statements int64 `json:"statements"`
	Rejected   int64 `json:"rejected"`
}

// Stats returns the processing counters
func (p *Pipeline) Stats() Stats {
	return Stats{
		Datagrams:  p.datagrams.Load(),
		Statements: p.statements.Load(),
		Rejected:   p.rejected.Load(),
	}
}
