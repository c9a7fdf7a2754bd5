// Package udp provides the socket listener that receives scoring datagrams
package udp

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/reStrike-d-o-o/reStrike-VTA/component"
	"github.com/reStrike-d-o-o/reStrike-VTA/errors"
	"github.com/reStrike-d-o-o/reStrike-VTA/metric"
	"github.com/reStrike-d-o-o/reStrike-VTA/protocol"
)

const (
	// DefaultPort is the port the scoring software sends to.
	DefaultPort = 6000
	// DefaultBind listens on every interface.
	DefaultBind = "0.0.0.0"

	maxDatagramSize = 65536
	readDeadline    = 100 * time.Millisecond
)

// Handler receives datagrams from the listener. Both methods are called on
// the listener goroutine, one datagram at a time, in arrival order; the next
// datagram is not read until the call returns.
type Handler interface {
	// HandleDatagram receives a 7-bit ASCII datagram.
	HandleDatagram(d protocol.Datagram)
	// HandleDropped receives a datagram rejected before tokenizing.
	HandleDropped(d protocol.Datagram, err error)
}

// Metrics holds Prometheus metrics for the listener
type Metrics struct {
	bytesReceived prometheus.Counter
	socketErrors  prometheus.Counter
	lastActivity  prometheus.Gauge
}

func newMetrics(registry *metric.MetricsRegistry, port int, logger *slog.Logger) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp",
			Name:      "bytes_received_total",
			Help:      "Total bytes received from the scoring system",
		}),
		socketErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp",
			Name:      "socket_errors_total",
			Help:      "Socket read errors encountered",
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp",
			Name:      "last_activity_timestamp",
			Help:      "Unix timestamp of last received datagram",
		}),
	}

	serviceName := fmt.Sprintf("udp_%d", port)
	for name, err := range map[string]error{
		"bytes_received": registry.RegisterCounter(serviceName, "bytes_received", m.bytesReceived),
		"socket_errors":  registry.RegisterCounter(serviceName, "socket_errors", m.socketErrors),
		"last_activity":  registry.RegisterGauge(serviceName, "last_activity", m.lastActivity),
	} {
		if err != nil {
			logger.Warn("Listener metric not registered", "metric", name, "error", err)
		}
	}

	return m
}

// Config holds the socket settings
type Config struct {
	Bind string `json:"bind" yaml:"bind" toml:"bind" env:"BIND"`
	Port int    `json:"port" yaml:"port" toml:"port" env:"PORT"`
	// ReadBufferBytes sizes the OS receive buffer; 0 keeps the system default.
	ReadBufferBytes int `json:"read_buffer_bytes" yaml:"read_buffer_bytes" toml:"read_buffer_bytes" env:"READ_BUFFER_BYTES"`
}

// DefaultConfig returns the listener defaults
func DefaultConfig() Config {
	return Config{
		Bind:            DefaultBind,
		Port:            DefaultPort,
		ReadBufferBytes: 256 * 1024,
	}
}

// Validate checks the socket settings. Port 0 asks the OS for a free port.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.WrapInvalid(fmt.Errorf("port %d out of range: %w", c.Port, errors.ErrInvalidConfig),
			"udp.Config", "Validate", "port validation")
	}
	if c.ReadBufferBytes < 0 {
		return errors.WrapInvalid(fmt.Errorf("negative read buffer: %w", errors.ErrInvalidConfig),
			"udp.Config", "Validate", "buffer validation")
	}
	return nil
}

// Address returns the host:port the listener binds to
func (c Config) Address() string {
	bind := c.Bind
	if bind == "" {
		bind = DefaultBind
	}
	return net.JoinHostPort(bind, strconv.Itoa(c.Port))
}

// ListenerDeps holds runtime dependencies for the listener
type ListenerDeps struct {
	Name            string                  // Instance name
	Config          Config                  // Socket configuration
	Handler         Handler                 // Runtime dependency
	MetricsRegistry *metric.MetricsRegistry // Runtime dependency
	Logger          *slog.Logger            // Runtime dependency
}

// Listener receives datagrams on one UDP socket and hands them to a Handler
type Listener struct {
	name    string
	config  Config
	handler Handler
	logger  *slog.Logger
	core    *metric.Metrics
	metrics *Metrics
	now     func() time.Time

	// Lifecycle management
	shutdown  chan struct{}
	done      chan struct{}
	running   atomic.Bool
	startTime time.Time
	mu        sync.RWMutex
	conn      *net.UDPConn

	// Counters (atomic for thread safety)
	received     atomic.Int64
	bytes        atomic.Int64
	dropped      atomic.Int64
	errors       atomic.Int64
	lastActivity atomic.Value // time.Time
	lastError    atomic.Value // string
}

var _ component.LifecycleComponent = (*Listener)(nil)

// NewListener creates a listener. The socket is not opened until Start.
func NewListener(deps ListenerDeps) *Listener {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "udp-listener", "port", deps.Config.Port)
	}

	l := &Listener{
		name:      deps.Name,
		config:    deps.Config,
		handler:   deps.Handler,
		logger:    logger,
		metrics:   newMetrics(deps.MetricsRegistry, deps.Config.Port, logger),
		now:       time.Now,
		startTime: time.Now(),
	}
	if deps.MetricsRegistry != nil {
		l.core = deps.MetricsRegistry.CoreMetrics()
	}
	l.lastActivity.Store(time.Time{})
	l.lastError.Store("")
	return l
}

// Meta returns the component metadata
func (l *Listener) Meta() component.Metadata {
	name := l.name
	if name == "" {
		name = fmt.Sprintf("udp-listener-%d", l.config.Port)
	}
	return component.Metadata{
		Name:        name,
		Type:        component.TypeInput,
		Description: fmt.Sprintf("Scoring datagram listener on %s", l.config.Address()),
		Version:     "1.0.0",
	}
}

// Health returns the current health status of the component
func (l *Listener) Health() component.HealthStatus {
	l.mu.RLock()
	connected := l.conn != nil
	l.mu.RUnlock()

	lastError, _ := l.lastError.Load().(string)
	return component.HealthStatus{
		Healthy:    l.running.Load() && connected,
		LastCheck:  time.Now(),
		ErrorCount: int(l.errors.Load()),
		LastError:  lastError,
		Uptime:     time.Since(l.startTime),
	}
}

// DataFlow returns the current data flow metrics
func (l *Listener) DataFlow() component.FlowMetrics {
	received := l.received.Load()
	bytes := l.bytes.Load()
	failed := l.errors.Load() + l.dropped.Load()
	lastActivity, _ := l.lastActivity.Load().(time.Time)

	var perSecond, bytesPerSecond, errorRate float64
	if uptime := time.Since(l.startTime).Seconds(); uptime > 0 {
		perSecond = float64(received) / uptime
		bytesPerSecond = float64(bytes) / uptime
	}
	if received > 0 {
		errorRate = float64(failed) / float64(received)
	}

	return component.FlowMetrics{
		MessagesPerSecond: perSecond,
		BytesPerSecond:    bytesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Initialize validates configuration and dependencies
func (l *Listener) Initialize() error {
	if err := l.config.Validate(); err != nil {
		return err
	}
	if l.handler == nil {
		return errors.WrapInvalid(fmt.Errorf("nil datagram handler"),
			"udp-listener", "Initialize", "handler validation")
	}
	return nil
}

// Start binds the socket and begins reading. A bind failure is fatal and
// wraps errors.ErrBind.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running.Load() {
		return nil
	}
	if l.handler == nil {
		return errors.WrapInvalid(fmt.Errorf("nil datagram handler"),
			"udp-listener", "Start", "handler validation")
	}

	if err := l.bindSocket(); err != nil {
		return errors.WrapFatal(err, "udp-listener", "Start", "socket binding")
	}

	l.shutdown = make(chan struct{})
	l.done = make(chan struct{})
	l.running.Store(true)
	l.startTime = time.Now()

	l.logger.Info("Listening for scoring datagrams", "address", l.conn.LocalAddr().String())

	conn, shutdown, done := l.conn, l.shutdown, l.done
	go func() {
		defer close(done)
		l.readLoop(ctx, conn, shutdown)
	}()

	return nil
}

func (l *Listener) bindSocket() error {
	address := l.config.Address()
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return fmt.Errorf("resolve %s: %w: %w", address, errors.ErrBind, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w: %w", address, errors.ErrBind, err)
	}

	if size := l.config.ReadBufferBytes; size > 0 {
		if err := conn.SetReadBuffer(size); err != nil {
			// some systems cap the receive buffer
			l.logger.Warn("Could not set UDP buffer size", "buffer_size", size, "error", err)
		}
	}

	l.conn = conn
	return nil
}

// Addr returns the bound local address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Stop closes the socket and waits for the in-flight datagram to finish.
func (l *Listener) Stop(timeout time.Duration) error {
	l.mu.Lock()
	if !l.running.Load() {
		l.mu.Unlock()
		return nil
	}
	l.running.Store(false)
	close(l.shutdown)
	_ = l.conn.Close()
	done := l.done
	l.mu.Unlock()

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"udp-listener", "Stop", "graceful shutdown")
	}

	l.mu.Lock()
	l.conn = nil
	l.mu.Unlock()

	l.logger.Info("Listener stopped", "received", l.received.Load(), "dropped", l.dropped.Load())
	return nil
}

// datagramReader is the read side of *net.UDPConn.
type datagramReader interface {
	SetReadDeadline(t time.Time) error
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
}

func (l *Listener) readLoop(ctx context.Context, conn datagramReader, shutdown <-chan struct{}) {
	buf := make([]byte, maxDatagramSize)

	for {
		select {
		case <-ctx.Done():
			return
		case <-shutdown:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))

		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if stderrors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case <-shutdown:
				return
			default:
			}

			l.recordReceiveError(err)
			if stderrors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		l.deliver(buf[:n], src)
	}
}

func (l *Listener) recordReceiveError(err error) {
	l.errors.Add(1)
	wrapped := errors.Wrap(fmt.Errorf("%w: %w", errors.ErrReceive, err), "udp-listener", "readLoop", "read datagram")
	l.lastError.Store(wrapped.Error())
	if l.metrics != nil {
		l.metrics.socketErrors.Inc()
	}
	l.logger.Warn("Datagram receive failed", "error", wrapped)
}

func (l *Listener) deliver(payload []byte, src *net.UDPAddr) {
	now := l.now()

	l.received.Add(1)
	l.bytes.Add(int64(len(payload)))
	l.lastActivity.Store(now)
	if l.metrics != nil {
		l.metrics.bytesReceived.Add(float64(len(payload)))
		l.metrics.lastActivity.Set(float64(now.Unix()))
	}

	d := protocol.Datagram{
		Payload:    append([]byte(nil), payload...),
		Source:     src,
		ReceivedAt: now,
	}

	if !protocol.IsASCII(d.Payload) {
		l.dropped.Add(1)
		if l.core != nil {
			l.core.RecordDatagramDropped("non_ascii")
		}
		l.logger.Warn("Dropped non-ASCII datagram", "source", src.String(), "bytes", len(payload))
		l.handler.HandleDropped(d, errors.ErrNonASCII)
		return
	}

	if l.core != nil {
		l.core.RecordDatagram()
	}
	l.handler.HandleDatagram(d)
}
