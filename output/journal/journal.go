package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/reStrike-d-o-o/reStrike-VTA/component"
	"github.com/reStrike-d-o-o/reStrike-VTA/errors"
	"github.com/reStrike-d-o-o/reStrike-VTA/metric"
	"github.com/reStrike-d-o-o/reStrike-VTA/publisher"
)

// Config holds configuration for the statement journal
type Config struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Path    string `json:"path" yaml:"path" toml:"path" env:"PATH"`
	// BatchSize caps the notifications written per transaction.
	BatchSize int `json:"batch_size" yaml:"batch_size" toml:"batch_size" env:"BATCH_SIZE"`
	QueueSize int `json:"queue_size" yaml:"queue_size" toml:"queue_size" env:"QUEUE_SIZE"`
}

// DefaultConfig returns the journal defaults. The journal is off by default.
func DefaultConfig() Config {
	return Config{
		Path:      "vta-journal.db",
		BatchSize: 64,
		QueueSize: 4096,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Path == "" {
		return errors.WrapInvalid(fmt.Errorf("path: %w", errors.ErrMissingConfig), "journal.Config", "Validate", "path validation")
	}
	if c.BatchSize < 1 {
		return errors.WrapInvalid(fmt.Errorf("batch size %d: %w", c.BatchSize, errors.ErrInvalidConfig), "journal.Config", "Validate", "batch validation")
	}
	if c.QueueSize < 0 {
		return errors.WrapInvalid(fmt.Errorf("negative queue size: %w", errors.ErrInvalidConfig), "journal.Config", "Validate", "queue validation")
	}
	return nil
}

// OutputDeps holds runtime dependencies for the journal
type OutputDeps struct {
	Name            string                  // Instance name, also the subscriber name
	Config          Config                  // Journal configuration
	Publisher       *publisher.Publisher    // Required
	Retry           *errors.RetryConfig     // Optional, errors.DefaultRetryConfig when nil
	MetricsRegistry *metric.MetricsRegistry // Optional
	Logger          *slog.Logger            // Optional
}

// Output appends every event and diagnostic notification to a Store.
type Output struct {
	name      string
	config    Config
	publisher *publisher.Publisher
	retry     errors.RetryConfig
	logger    *slog.Logger
	rows      *prometheus.CounterVec
	core      *metric.Metrics

	mu        sync.Mutex
	running   bool
	startTime time.Time
	store     *Store
	sub       *publisher.Subscription
	wg        sync.WaitGroup

	written      atomic.Int64
	errors       atomic.Int64
	lastActivity atomic.Value // time.Time
}

var _ component.LifecycleComponent = (*Output)(nil)

// NewOutput creates the journal. The file is not opened until Start.
func NewOutput(deps OutputDeps) *Output {
	name := deps.Name
	if name == "" {
		name = "journal"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "journal", "name", name)
	}
	retry := errors.DefaultRetryConfig()
	if deps.Retry != nil {
		retry = *deps.Retry
	}

	j := &Output{
		name:      name,
		config:    deps.Config,
		publisher: deps.Publisher,
		retry:     retry,
		logger:    logger,
		startTime: time.Now(),
	}
	if deps.MetricsRegistry != nil {
		j.core = deps.MetricsRegistry.CoreMetrics()
		j.rows = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "journal",
			Name:        "rows_written_total",
			Help:        "Notifications written to the journal",
			ConstLabels: prometheus.Labels{"output": name},
		}, []string{"type"})
		if err := deps.MetricsRegistry.RegisterCounterVec("journal_"+name, "rows_written", j.rows); err != nil {
			logger.Warn("Journal metrics not registered", "error", err)
		}
	}
	j.lastActivity.Store(time.Time{})
	return j
}

// Meta returns the component metadata
func (j *Output) Meta() component.Metadata {
	return component.Metadata{
		Name:        j.name,
		Type:        component.TypeOutput,
		Description: "SQLite statement journal at " + j.config.Path,
		Version:     "1.0.0",
	}
}

// Health returns the current health status of the component
func (j *Output) Health() component.HealthStatus {
	j.mu.Lock()
	healthy := j.running
	j.mu.Unlock()

	return component.HealthStatus{
		Healthy:    healthy,
		LastCheck:  time.Now(),
		ErrorCount: int(j.errors.Load()),
		Uptime:     time.Since(j.startTime),
	}
}

// DataFlow returns the current data flow metrics
func (j *Output) DataFlow() component.FlowMetrics {
	written := j.written.Load()
	errCount := j.errors.Load()
	lastActivity, _ := j.lastActivity.Load().(time.Time)

	var rate, errorRate float64
	if uptime := time.Since(j.startTime).Seconds(); uptime > 0 {
		rate = float64(written) / uptime
	}
	if written > 0 {
		errorRate = float64(errCount) / float64(written)
	}
	return component.FlowMetrics{
		MessagesPerSecond: rate,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Initialize validates configuration and dependencies
func (j *Output) Initialize() error {
	if err := j.config.Validate(); err != nil {
		return err
	}
	if j.publisher == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "journal", "Initialize", "publisher is required")
	}
	return nil
}

// Start opens the journal, begins a run and subscribes to events and
// diagnostics.
func (j *Output) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return nil
	}

	store, err := Open(j.config.Path)
	if err != nil {
		return err
	}
	run, err := store.BeginRun(ctx)
	if err != nil {
		_ = store.Close()
		return err
	}

	sub, err := j.publisher.Subscribe(j.name,
		publisher.WithSubscriberQueueSize(j.config.QueueSize),
		publisher.WithKinds(publisher.KindEvent, publisher.KindDiagnostic),
	)
	if err != nil {
		_ = store.Close()
		return errors.Wrap(err, "journal", "Start", "subscribe to publisher")
	}

	j.store = store
	j.sub = sub
	j.running = true
	j.startTime = time.Now()

	j.wg.Add(1)
	go j.writeLoop(sub, store)

	j.logger.Info("Journal started", "path", j.config.Path, "run", run)
	return nil
}

// Stop closes the subscription, writes what is still queued and closes the file.
func (j *Output) Stop(timeout time.Duration) error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = false
	sub, store := j.sub, j.store
	j.mu.Unlock()

	_ = sub.Close()

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"journal", "Stop", "graceful shutdown")
	}

	j.mu.Lock()
	j.sub, j.store = nil, nil
	j.mu.Unlock()

	if err := store.Close(); err != nil {
		return errors.Wrap(err, "journal", "Stop", "close store")
	}
	return nil
}

// Written returns the number of rows written.
func (j *Output) Written() int64 {
	return j.written.Load()
}

func (j *Output) writeLoop(sub *publisher.Subscription, store *Store) {
	defer j.wg.Done()

	ctx := context.Background()
	for {
		n, err := sub.Next(ctx)
		if err != nil {
			return
		}
		batch := append([]publisher.Notification{n}, sub.Drain(j.config.BatchSize-1)...)
		j.write(ctx, store, batch)
	}
}

func (j *Output) write(ctx context.Context, store *Store, batch []publisher.Notification) {
	written, err := errors.Retry(ctx, j.retry, func() (int, error) {
		return store.Append(ctx, batch)
	})
	if err != nil {
		j.errors.Add(1)
		if j.core != nil {
			j.core.RecordSinkError("journal")
		}
		j.logger.Error("Journal write failed", "first_seq", batch[0].Seq, "count", len(batch), "error", err)
		return
	}

	j.written.Add(int64(written))
	j.lastActivity.Store(time.Now())
	if j.rows != nil {
		for _, n := range batch {
			j.rows.WithLabelValues(n.Kind.String()).Inc()
		}
	}
}
