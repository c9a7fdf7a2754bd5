package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/reStrike-d-o-o/reStrike-VTA/errors"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Error messages
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrCircuitOpen  = stderrors.New("circuit breaker is open")
)

// Connection defaults. The scoring feed keeps one long-lived connection per
// process, so reconnects are unlimited unless a caller says otherwise.
const (
	defaultReconnectWait  = 2 * time.Second
	defaultPingInterval   = 30 * time.Second
	defaultHealthInterval = 10 * time.Second
	defaultTimeout        = 5 * time.Second
	defaultDrainTimeout   = 30 * time.Second
	maxCircuitBackoff     = time.Minute
)

// Client manages a NATS connection with circuit breaker protection.
type Client struct {
	url    string
	name   string
	logger *slog.Logger

	status   atomic.Value // ConnectionStatus
	failures atomic.Int32

	// Circuit breaker. The breaker opens after circuitThreshold consecutive
	// failures and half-opens again after backoff.
	backoff          atomic.Value // time.Duration
	circuitFailures  atomic.Int32
	circuitThreshold int32

	maxReconnects  int
	timeout        time.Duration
	healthInterval time.Duration
	onHealthChange func(bool)

	// auth holds credential and TLS options; dropped on Close.
	auth []nats.Option

	mu         sync.RWMutex
	conn       *nats.Conn
	js         jetstream.JetStream
	subs       []*nats.Subscription
	healthDone chan struct{}

	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates a new NATS client with optional configuration
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:              url,
		logger:           slog.Default().With("component", "natsclient"),
		maxReconnects:    -1,
		healthInterval:   defaultHealthInterval,
		circuitThreshold: 5,
		timeout:          defaultTimeout,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	c.status.Store(StatusDisconnected)
	c.backoff.Store(time.Second)

	c.logger.Debug("Created NATS client", "url", url)
	return c, nil
}

// URL returns the NATS server URL
func (m *Client) URL() string {
	return m.url
}

// Status returns the current connection status
func (m *Client) Status() ConnectionStatus {
	val := m.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

func (m *Client) setStatus(status ConnectionStatus) {
	m.status.Store(status)
}

// IsHealthy reports whether the client holds a live connection.
func (m *Client) IsHealthy() bool {
	return m.Status() == StatusConnected
}

// Failures returns the failure count since the last successful operation.
func (m *Client) Failures() int32 {
	return m.failures.Load()
}

// Backoff returns the current circuit breaker backoff.
func (m *Client) Backoff() time.Duration {
	return m.backoff.Load().(time.Duration)
}

func (m *Client) recordFailure() {
	total := m.failures.Add(1)
	round := m.circuitFailures.Add(1)

	m.logger.Debug("Recorded NATS failure", "total", total, "circuit_failures", round)

	if round < m.circuitThreshold {
		return
	}

	current := m.Status()
	backoff := m.Backoff()
	next := min(backoff*2, maxCircuitBackoff)

	if current != StatusCircuitOpen {
		if !m.status.CompareAndSwap(current, StatusCircuitOpen) {
			return
		}
		m.backoff.Store(next)
		m.circuitFailures.Store(0)
		m.logger.Warn("Circuit breaker opened", "failures", round, "backoff", backoff)
		time.AfterFunc(backoff, m.testCircuit)
		return
	}

	m.backoff.Store(next)
	m.circuitFailures.Store(0)
	m.logger.Warn("Circuit breaker still open", "backoff", next)
}

func (m *Client) resetCircuit() {
	m.failures.Store(0)
	m.circuitFailures.Store(0)
	m.backoff.Store(time.Second)

	if m.Status() == StatusCircuitOpen {
		m.setStatus(StatusDisconnected)
	}
}

// testCircuit half-opens the breaker so the next Connect may try again.
func (m *Client) testCircuit() {
	if m.status.CompareAndSwap(StatusCircuitOpen, StatusDisconnected) {
		m.logger.Debug("Circuit breaker half-open")
	}
}

// ConnectionOptions returns the options passed to nats.Connect
func (m *Client) ConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(m.maxReconnects),
		nats.ReconnectWait(defaultReconnectWait),
		nats.PingInterval(defaultPingInterval),
		nats.Timeout(m.timeout),
		nats.DrainTimeout(defaultDrainTimeout),
		nats.DisconnectErrHandler(m.handleDisconnect),
		nats.ReconnectHandler(m.handleReconnect),
		nats.ClosedHandler(m.handleClosed),
		nats.ErrorHandler(m.handleError),
	}
	if m.name != "" {
		opts = append(opts, nats.Name(m.name))
	}
	return append(opts, m.auth...)
}

// Connect establishes connection to NATS server
func (m *Client) Connect(ctx context.Context) error {
	if m.closed.Load() {
		return errors.ErrShuttingDown
	}
	if m.Status() == StatusCircuitOpen {
		return ErrCircuitOpen
	}

	m.setStatus(StatusConnecting)
	m.logger.Info("Connecting to NATS", "url", m.url)

	opts := m.ConnectionOptions()
	connectDone := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(m.url, opts...)
		if err != nil {
			connectDone <- err
			return
		}

		m.mu.Lock()
		m.conn = conn
		if js, err := jetstream.New(conn); err == nil {
			m.js = js
		}
		m.mu.Unlock()

		connectDone <- nil
	}()

	select {
	case err := <-connectDone:
		if err != nil {
			return m.connectFailed(errors.WrapTransient(err, "Client", "Connect", "establish connection"))
		}
	case <-ctx.Done():
		return m.connectFailed(errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled"))
	}

	m.setStatus(StatusConnected)
	m.resetCircuit()
	m.logger.Info("Connected to NATS", "url", m.url)

	if m.healthInterval > 0 {
		m.startHealthMonitoring()
	}
	m.notifyHealth(true)

	return nil
}

func (m *Client) connectFailed(err error) error {
	m.recordFailure()
	if m.Status() == StatusCircuitOpen {
		return ErrCircuitOpen
	}
	m.setStatus(StatusDisconnected)
	return err
}

// ConnectWithRetry calls Connect under the retry policy until it succeeds,
// the budget is spent, or the circuit opens.
func (m *Client) ConnectWithRetry(ctx context.Context, rc errors.RetryConfig) error {
	_, err := errors.Retry(ctx, rc, func() (struct{}, error) {
		return struct{}{}, m.Connect(ctx)
	})
	return err
}

// Close drains the connection and releases subscriptions.
func (m *Client) Close(ctx context.Context) error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()

	if m.closed.Swap(true) {
		return nil
	}

	m.stopHealthMonitoring()

	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, sub := range m.subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe"))
		}
	}
	m.subs = nil

	if m.conn != nil {
		drainTimeout := defaultDrainTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
				drainTimeout = remaining
			}
		}

		conn := m.conn
		drainDone := make(chan error, 1)
		go func() {
			drainDone <- conn.Drain()
		}()

		select {
		case err := <-drainDone:
			if err != nil {
				errs = append(errs, errors.Wrap(err, "Client", "Close", "drain connection"))
			}
		case <-time.After(drainTimeout):
			errs = append(errs, errors.WrapTransient(
				fmt.Errorf("drain timeout after %v", drainTimeout), "Client", "Close", "drain"))
		case <-ctx.Done():
			errs = append(errs, errors.Wrap(ctx.Err(), "Client", "Close", "drain"))
		}

		conn.Close()
		m.conn = nil
		m.js = nil
	}

	m.auth = nil
	m.setStatus(StatusDisconnected)

	if err := stderrors.Join(errs...); err != nil {
		m.logger.Error("NATS close finished with errors", "error", err)
		return err
	}
	return nil
}

// RTT returns the round trip time to the server.
func (m *Client) RTT() (time.Duration, error) {
	conn := m.connected()
	if conn == nil {
		return 0, ErrNotConnected
	}
	return conn.RTT()
}

func (m *Client) connected() *nats.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil || !m.conn.IsConnected() {
		return nil
	}
	return m.conn
}

// Subscribe subscribes to a NATS subject. Each handler call gets a context
// derived from ctx with a 30-second timeout.
func (m *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || !m.conn.IsConnected() {
		return ErrNotConnected
	}

	sub, err := m.conn.Subscribe(subject, func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		handler(msgCtx, msg.Data)
	})
	if err != nil {
		return err
	}

	m.subs = append(m.subs, sub)
	return nil
}

// Publish publishes a message to a NATS subject
func (m *Client) Publish(_ context.Context, subject string, data []byte) error {
	if m.Status() == StatusCircuitOpen {
		return ErrCircuitOpen
	}
	conn := m.connected()
	if conn == nil {
		return errors.WrapTransient(ErrNotConnected, "Client", "Publish", "check connection")
	}
	if err := conn.Publish(subject, data); err != nil {
		m.recordFailure()
		return errors.WrapTransient(err, "Client", "Publish", "publish "+subject)
	}
	return nil
}

// JetStream returns the JetStream context
func (m *Client) JetStream() (jetstream.JetStream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.js == nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("JetStream not initialized"),
			"Client", "JetStream", "get JetStream context")
	}
	return m.js, nil
}

// EnsureStream creates the stream, or updates it when it already exists.
func (m *Client) EnsureStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	if m.Status() == StatusCircuitOpen {
		return nil, ErrCircuitOpen
	}
	if m.Status() != StatusConnected {
		return nil, ErrNotConnected
	}

	js, err := m.JetStream()
	if err != nil {
		m.recordFailure()
		return nil, err
	}

	stream, err := js.CreateStream(ctx, cfg)
	if err != nil && isAlreadyExistsError(err) {
		stream, err = js.UpdateStream(ctx, cfg)
	}
	if err != nil {
		m.recordFailure()
		return nil, errors.WrapTransient(err, "Client", "EnsureStream", "create stream "+cfg.Name)
	}

	m.resetCircuit()
	return stream, nil
}

// PublishToStream publishes to a JetStream stream and waits for the ack.
func (m *Client) PublishToStream(ctx context.Context, subject string, data []byte) error {
	if m.Status() == StatusCircuitOpen {
		return ErrCircuitOpen
	}
	if m.Status() != StatusConnected {
		return errors.WrapTransient(ErrNotConnected, "Client", "PublishToStream", "check connection")
	}

	js, err := m.JetStream()
	if err != nil {
		m.recordFailure()
		return err
	}

	if _, err := js.Publish(ctx, subject, data); err != nil {
		m.recordFailure()
		return errors.WrapTransient(err, "Client", "PublishToStream", "publish "+subject)
	}

	m.resetCircuit()
	return nil
}

func (m *Client) notifyHealth(healthy bool) {
	if m.onHealthChange != nil {
		go m.onHealthChange(healthy)
	}
}

func (m *Client) handleDisconnect(_ *nats.Conn, err error) {
	if m.closed.Load() {
		return
	}
	m.setStatus(StatusReconnecting)
	m.logger.Warn("Disconnected from NATS", "error", err)
	m.notifyHealth(false)
}

func (m *Client) handleReconnect(_ *nats.Conn) {
	m.setStatus(StatusConnected)
	m.resetCircuit()
	m.logger.Info("Reconnected to NATS", "url", m.url)
	m.notifyHealth(true)
}

func (m *Client) handleClosed(_ *nats.Conn) {
	m.setStatus(StatusDisconnected)
	m.notifyHealth(false)
}

func (m *Client) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	m.logger.Error("NATS error", "error", err)
}

func (m *Client) startHealthMonitoring() {
	m.stopHealthMonitoring()

	m.mu.Lock()
	done := make(chan struct{})
	m.healthDone = done
	interval := m.healthInterval
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		lastHealthy := m.IsHealthy()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.mu.RLock()
				conn := m.conn
				m.mu.RUnlock()
				if conn == nil {
					continue
				}

				healthy := conn.IsConnected()
				if _, err := conn.RTT(); err != nil {
					healthy = false
				}

				if healthy && m.Status() != StatusConnected {
					m.setStatus(StatusConnected)
				} else if !healthy && m.Status() == StatusConnected {
					m.setStatus(StatusReconnecting)
				}

				if healthy != lastHealthy {
					m.notifyHealth(healthy)
				}
				lastHealthy = healthy
			}
		}
	}()
}

func (m *Client) stopHealthMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.healthDone != nil {
		close(m.healthDone)
		m.healthDone = nil
	}
}

func isAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "already exists") ||
		strings.Contains(errStr, "stream name already in use")
}
