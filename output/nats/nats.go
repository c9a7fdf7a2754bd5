package nats

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/reStrike-d-o-o/reStrike-VTA/component"
	"github.com/reStrike-d-o-o/reStrike-VTA/errors"
	"github.com/reStrike-d-o-o/reStrike-VTA/metric"
	"github.com/reStrike-d-o-o/reStrike-VTA/natsclient"
	"github.com/reStrike-d-o-o/reStrike-VTA/output"
	"github.com/reStrike-d-o-o/reStrike-VTA/publisher"
)

// Config holds configuration for the NATS sink
type Config struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled" env:"ENABLED"`
	URL     string `json:"url" yaml:"url" toml:"url" env:"URL"`
	// Prefix is the first subject token, e.g. "vta" gives "vta.state".
	Prefix string `json:"prefix" yaml:"prefix" toml:"prefix" env:"PREFIX"`
	// Stream, when set, publishes through JetStream into a stream of that
	// name capturing "<prefix>.>".
	Stream    string `json:"stream" yaml:"stream" toml:"stream" env:"STREAM"`
	QueueSize int    `json:"queue_size" yaml:"queue_size" toml:"queue_size" env:"QUEUE_SIZE"`

	User     string `json:"user,omitempty" yaml:"user" toml:"user" env:"USER"`
	Password string `json:"password,omitempty" yaml:"password" toml:"password" env:"PASSWORD"`
	Token    string `json:"token,omitempty" yaml:"token" toml:"token" env:"TOKEN"`
	TLS      TLS    `json:"tls" yaml:"tls" toml:"tls" envPrefix:"TLS_"`
}

// TLS points at PEM files. Any non-empty field turns TLS on.
type TLS struct {
	Cert string `json:"cert,omitempty" yaml:"cert" toml:"cert" env:"CERT"`
	Key  string `json:"key,omitempty" yaml:"key" toml:"key" env:"KEY"`
	CA   string `json:"ca,omitempty" yaml:"ca" toml:"ca" env:"CA"`
}

func (t TLS) enabled() bool {
	return t.Cert != "" || t.Key != "" || t.CA != ""
}

// DefaultConfig returns the NATS sink defaults. The sink is off by default.
func DefaultConfig() Config {
	return Config{
		URL:       "nats://localhost:4222",
		Prefix:    "vta",
		QueueSize: 1024,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.URL == "" {
		return errors.WrapInvalid(fmt.Errorf("url: %w", errors.ErrMissingConfig), "nats.Config", "Validate", "url validation")
	}
	if c.Prefix == "" || strings.ContainsAny(c.Prefix, " \t*>") || strings.HasPrefix(c.Prefix, ".") || strings.HasSuffix(c.Prefix, ".") {
		return errors.WrapInvalid(fmt.Errorf("prefix %q: %w", c.Prefix, errors.ErrInvalidConfig), "nats.Config", "Validate", "prefix validation")
	}
	if c.QueueSize < 0 {
		return errors.WrapInvalid(fmt.Errorf("negative queue size: %w", errors.ErrInvalidConfig), "nats.Config", "Validate", "queue validation")
	}
	if c.Password != "" && c.User == "" {
		return errors.WrapInvalid(fmt.Errorf("password without user: %w", errors.ErrInvalidConfig), "nats.Config", "Validate", "auth validation")
	}
	if c.User != "" && c.Token != "" {
		return errors.WrapInvalid(fmt.Errorf("user and token are exclusive: %w", errors.ErrInvalidConfig), "nats.Config", "Validate", "auth validation")
	}
	if (c.TLS.Cert == "") != (c.TLS.Key == "") {
		return errors.WrapInvalid(fmt.Errorf("tls cert and key go together: %w", errors.ErrInvalidConfig), "nats.Config", "Validate", "tls validation")
	}
	return nil
}

// Client is the publish side of natsclient.Client
type Client interface {
	Publish(ctx context.Context, subject string, data []byte) error
	PublishToStream(ctx context.Context, subject string, data []byte) error
}

// OutputDeps holds runtime dependencies for the NATS sink
type OutputDeps struct {
	Name            string                  // Instance name, also the subscriber name
	Config          Config                  // Sink configuration
	Publisher       *publisher.Publisher    // Required
	Client          Client                  // Optional, dialed from Config.URL when nil
	Retry           *errors.RetryConfig     // Optional, errors.DefaultRetryConfig when nil
	MetricsRegistry *metric.MetricsRegistry // Optional
	Logger          *slog.Logger            // Optional
}

// Subject returns the subject a notification is published on.
func Subject(prefix string, n publisher.Notification) string {
	switch n.Kind {
	case publisher.KindEvent:
		return prefix + ".event." + n.Event.Kind().String()
	case publisher.KindState:
		return prefix + ".state"
	default:
		return prefix + ".diagnostic"
	}
}

type sinkMetrics struct {
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
}

func newSinkMetrics(registry *metric.MetricsRegistry, name string, logger *slog.Logger) *sinkMetrics {
	if registry == nil {
		return nil
	}
	labels := prometheus.Labels{"output": name}
	m := &sinkMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "nats",
			Name:        "published_total",
			Help:        "Envelopes published to NATS",
			ConstLabels: labels,
		}, []string{"type"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "nats",
			Name:        "publish_failures_total",
			Help:        "Envelopes that could not be published after retries",
			ConstLabels: labels,
		}, []string{"type"}),
	}

	service := "nats_" + name
	if err := stderrors.Join(
		registry.RegisterCounterVec(service, "published", m.published),
		registry.RegisterCounterVec(service, "publish_failures", m.failed),
	); err != nil {
		logger.Warn("NATS sink metrics not registered", "error", err)
	}
	return m
}

// Output publishes every notification as an output.Envelope.
type Output struct {
	name      string
	config    Config
	publisher *publisher.Publisher
	client    Client
	owned     *natsclient.Client
	retry     errors.RetryConfig
	logger    *slog.Logger
	metrics   *sinkMetrics
	core      *metric.Metrics

	mu        sync.Mutex
	running   bool
	startTime time.Time
	sub       *publisher.Subscription
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	published    atomic.Int64
	failures     atomic.Int64
	lastActivity atomic.Value // time.Time
}

var _ component.LifecycleComponent = (*Output)(nil)

// NewOutput creates the NATS sink. Nothing connects until Start.
func NewOutput(deps OutputDeps) *Output {
	name := deps.Name
	if name == "" {
		name = "nats"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "nats-output", "name", name)
	}
	retry := errors.DefaultRetryConfig()
	if deps.Retry != nil {
		retry = *deps.Retry
	}

	o := &Output{
		name:      name,
		config:    deps.Config,
		publisher: deps.Publisher,
		client:    deps.Client,
		retry:     retry,
		logger:    logger,
		metrics:   newSinkMetrics(deps.MetricsRegistry, name, logger),
		startTime: time.Now(),
	}
	if deps.MetricsRegistry != nil {
		o.core = deps.MetricsRegistry.CoreMetrics()
	}
	o.lastActivity.Store(time.Time{})
	return o
}

// Meta returns the component metadata
func (o *Output) Meta() component.Metadata {
	return component.Metadata{
		Name:        o.name,
		Type:        component.TypeOutput,
		Description: fmt.Sprintf("NATS sink publishing under %s.>", o.config.Prefix),
		Version:     "1.0.0",
	}
}

// Health reports healthy while running with a live connection.
func (o *Output) Health() component.HealthStatus {
	o.mu.Lock()
	healthy := o.running
	owned := o.owned
	o.mu.Unlock()

	status := component.HealthStatus{
		Healthy:    healthy,
		LastCheck:  time.Now(),
		ErrorCount: int(o.failures.Load()),
		Uptime:     time.Since(o.startTime),
	}
	if owned != nil && !owned.IsHealthy() {
		status.Healthy = false
		status.LastError = "nats " + owned.Status().String()
	}
	return status
}

// DataFlow returns the current data flow metrics
func (o *Output) DataFlow() component.FlowMetrics {
	published := o.published.Load()
	failures := o.failures.Load()
	lastActivity, _ := o.lastActivity.Load().(time.Time)

	var rate, errorRate float64
	if uptime := time.Since(o.startTime).Seconds(); uptime > 0 {
		rate = float64(published) / uptime
	}
	if total := published + failures; total > 0 {
		errorRate = float64(failures) / float64(total)
	}
	return component.FlowMetrics{
		MessagesPerSecond: rate,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Initialize validates configuration and dependencies
func (o *Output) Initialize() error {
	if err := o.config.Validate(); err != nil {
		return err
	}
	if o.publisher == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "nats-output", "Initialize", "publisher is required")
	}
	return nil
}

// Start connects when no client was injected, ensures the stream when one is
// configured, subscribes and starts forwarding.
func (o *Output) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return nil
	}

	if o.client == nil {
		nc, err := o.dial(ctx)
		if err != nil {
			return err
		}
		o.client = nc
		o.owned = nc
	}

	if o.config.Stream != "" && o.owned != nil {
		cfg := jetstream.StreamConfig{
			Name:     o.config.Stream,
			Subjects: []string{o.config.Prefix + ".>"},
		}
		if _, err := o.owned.EnsureStream(ctx, cfg); err != nil {
			o.closeOwned()
			return errors.Wrap(err, "nats-output", "Start", "ensure stream "+o.config.Stream)
		}
	}

	sub, err := o.publisher.Subscribe(o.name, publisher.WithSubscriberQueueSize(o.config.QueueSize))
	if err != nil {
		o.closeOwned()
		return errors.Wrap(err, "nats-output", "Start", "subscribe to publisher")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.sub = sub
	o.cancel = cancel
	o.running = true
	o.startTime = time.Now()

	o.wg.Add(1)
	go o.forward(runCtx, sub)

	o.logger.Info("NATS sink started", "prefix", o.config.Prefix, "stream", o.config.Stream)
	return nil
}

func (o *Output) dial(ctx context.Context) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithName("vtafeed-" + o.name),
		natsclient.WithLogger(o.logger),
	}
	if o.core != nil {
		opts = append(opts, natsclient.WithHealthChangeCallback(o.core.RecordNATSStatus))
	}
	opts = append(opts, authOptions(o.config)...)

	nc, err := natsclient.NewClient(o.config.URL, opts...)
	if err != nil {
		return nil, err
	}
	if err := nc.ConnectWithRetry(ctx, o.retry); err != nil {
		return nil, errors.Wrap(err, "nats-output", "Start", "connect to "+o.config.URL)
	}
	return nc, nil
}

func authOptions(cfg Config) []natsclient.ClientOption {
	var opts []natsclient.ClientOption
	switch {
	case cfg.User != "":
		opts = append(opts, natsclient.WithCredentials(cfg.User, cfg.Password))
	case cfg.Token != "":
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}
	if cfg.TLS.enabled() {
		opts = append(opts, natsclient.WithTLS(cfg.TLS.Cert, cfg.TLS.Key, cfg.TLS.CA))
	}
	return opts
}

func (o *Output) closeOwned() {
	if o.owned == nil {
		return
	}
	if err := o.owned.Close(context.Background()); err != nil {
		o.logger.Warn("NATS close error", "error", err)
	}
	o.client, o.owned = nil, nil
}

// Stop releases the subscription, waits for the in-flight publish and closes
// the connection the sink dialed itself.
func (o *Output) Stop(timeout time.Duration) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = false
	sub, cancel := o.sub, o.cancel
	o.mu.Unlock()

	_ = sub.Close()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"nats-output", "Stop", "graceful shutdown")
	}
	cancel()

	o.mu.Lock()
	o.sub = nil
	o.closeOwned()
	o.mu.Unlock()
	return err
}

// Published returns the number of envelopes delivered to NATS.
func (o *Output) Published() int64 {
	return o.published.Load()
}

// Failures returns the number of envelopes dropped after retries.
func (o *Output) Failures() int64 {
	return o.failures.Load()
}

func (o *Output) forward(ctx context.Context, sub *publisher.Subscription) {
	defer o.wg.Done()
	for {
		n, err := sub.Next(ctx)
		if err != nil {
			return
		}
		o.send(ctx, n)
	}
}

func (o *Output) send(ctx context.Context, n publisher.Notification) {
	kind := n.Kind.String()
	data, err := output.Marshal(n)
	if err != nil {
		o.recordFailure(kind)
		o.logger.Warn("Notification not encoded", "seq", n.Seq, "error", err)
		return
	}

	subject := Subject(o.config.Prefix, n)
	_, err = errors.Retry(ctx, o.retry, func() (struct{}, error) {
		if o.config.Stream != "" {
			return struct{}{}, o.client.PublishToStream(ctx, subject, data)
		}
		return struct{}{}, o.client.Publish(ctx, subject, data)
	})
	if err != nil {
		o.recordFailure(kind)
		o.logger.Warn("NATS publish failed", "subject", subject, "seq", n.Seq, "error", err)
		return
	}

	o.published.Add(1)
	o.lastActivity.Store(time.Now())
	if o.metrics != nil {
		o.metrics.published.WithLabelValues(kind).Inc()
	}
}

func (o *Output) recordFailure(kind string) {
	o.failures.Add(1)
	if o.metrics != nil {
		o.metrics.failed.WithLabelValues(kind).Inc()
	}
	if o.core != nil {
		o.core.RecordSinkError("nats")
	}
}
