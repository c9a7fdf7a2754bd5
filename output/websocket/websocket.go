// Package websocket provides the overlay feed: a WebSocket server that pushes
// match notifications to broadcast graphics clients
package websocket

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/reStrike-d-o-o/reStrike-VTA/component"
	"github.com/reStrike-d-o-o/reStrike-VTA/errors"
	"github.com/reStrike-d-o-o/reStrike-VTA/match"
	"github.com/reStrike-d-o-o/reStrike-VTA/metric"
	"github.com/reStrike-d-o-o/reStrike-VTA/output"
	"github.com/reStrike-d-o-o/reStrike-VTA/publisher"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	readTimeout  = 2 * pingInterval
)

// Config holds configuration for the overlay feed
type Config struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Addr      string `json:"addr" yaml:"addr" toml:"addr" env:"ADDR"`
	Path      string `json:"path" yaml:"path" toml:"path" env:"PATH"`
	StatePath string `json:"state_path" yaml:"state_path" toml:"state_path" env:"STATE_PATH"`
	// QueueSize bounds the notifications waiting to be broadcast.
	QueueSize int `json:"queue_size" yaml:"queue_size" toml:"queue_size" env:"QUEUE_SIZE"`
}

// DefaultConfig returns the overlay feed defaults
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Addr:      "0.0.0.0:8081",
		Path:      "/ws",
		StatePath: "/state",
		QueueSize: 1024,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return errors.WrapInvalid(fmt.Errorf("addr %q: %w", c.Addr, errors.ErrInvalidConfig), "websocket.Config", "Validate", "address validation")
	}
	if c.Path == "" || c.Path[0] != '/' {
		return errors.WrapInvalid(fmt.Errorf("path %q: %w", c.Path, errors.ErrInvalidConfig), "websocket.Config", "Validate", "path validation")
	}
	if c.StatePath != "" && (c.StatePath[0] != '/' || c.StatePath == c.Path) {
		return errors.WrapInvalid(fmt.Errorf("state path %q: %w", c.StatePath, errors.ErrInvalidConfig), "websocket.Config", "Validate", "state path validation")
	}
	if c.QueueSize < 0 {
		return errors.WrapInvalid(fmt.Errorf("negative queue size: %w", errors.ErrInvalidConfig), "websocket.Config", "Validate", "queue validation")
	}
	return nil
}

// StateSource provides the current match state.
type StateSource interface {
	State() match.State
}

// OutputDeps holds runtime dependencies for the overlay feed
type OutputDeps struct {
	Name            string                  // Instance name, also the subscriber name
	Config          Config                  // Server configuration
	Publisher       *publisher.Publisher    // Required
	States          StateSource             // Required
	MetricsRegistry *metric.MetricsRegistry // Optional
	Logger          *slog.Logger            // Optional
}

// Metrics holds Prometheus metrics for the overlay feed
type Metrics struct {
	messagesSent       *prometheus.CounterVec
	bytesSent          prometheus.Counter
	clientsConnected   prometheus.Gauge
	connectionTotal    prometheus.Counter
	disconnectionTotal *prometheus.CounterVec
	broadcastDuration  prometheus.Histogram
	errorsTotal        *prometheus.CounterVec
}

func newMetrics(registry *metric.MetricsRegistry, name string, logger *slog.Logger) *Metrics {
	if registry == nil {
		return nil
	}

	labels := prometheus.Labels{"output": name}
	m := &Metrics{
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "websocket",
			Name:        "messages_sent_total",
			Help:        "Envelopes sent to overlay clients",
			ConstLabels: labels,
		}, []string{"type"}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "websocket",
			Name:        "bytes_sent_total",
			Help:        "Bytes sent to overlay clients",
			ConstLabels: labels,
		}),
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "websocket",
			Name:        "clients_connected",
			Help:        "Number of currently connected clients",
			ConstLabels: labels,
		}),
		connectionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "websocket",
			Name:        "client_connections_total",
			Help:        "Total client connections (including disconnected)",
			ConstLabels: labels,
		}),
		disconnectionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "websocket",
			Name:        "client_disconnections_total",
			Help:        "Total client disconnections",
			ConstLabels: labels,
		}, []string{"disconnect_reason"}),
		broadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "websocket",
			Name:        "broadcast_duration_seconds",
			Help:        "Time to broadcast one envelope to all clients",
			Buckets:     []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			ConstLabels: labels,
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "websocket",
			Name:        "errors_total",
			Help:        "Overlay feed errors",
			ConstLabels: labels,
		}, []string{"error_type"}),
	}

	service := "websocket_" + name
	for metricName, err := range map[string]error{
		"messages_sent":        registry.RegisterCounterVec(service, "messages_sent", m.messagesSent),
		"bytes_sent":           registry.RegisterCounter(service, "bytes_sent", m.bytesSent),
		"clients_connected":    registry.RegisterGauge(service, "clients_connected", m.clientsConnected),
		"client_connections":   registry.RegisterCounter(service, "client_connections", m.connectionTotal),
		"client_disconnection": registry.RegisterCounterVec(service, "client_disconnections", m.disconnectionTotal),
		"broadcast_duration":   registry.RegisterHistogram(service, "broadcast_duration", m.broadcastDuration),
		"errors":               registry.RegisterCounterVec(service, "errors", m.errorsTotal),
	} {
		if err != nil {
			logger.Warn("Overlay metric not registered", "metric", metricName, "error", err)
		}
	}
	return m
}

// clientInfo holds information about a connected overlay client
type clientInfo struct {
	conn        *websocket.Conn
	connectedAt time.Time
	closed      atomic.Bool
	closeOnce   sync.Once
	writeMutex  sync.Mutex // Protects concurrent writes to the same connection
}

// Output serves the overlay feed. Every notification from the publisher is
// wrapped in an output.Envelope and written to every connected client. A
// client receives the current state as its first message.
type Output struct {
	name      string
	config    Config
	publisher *publisher.Publisher
	states    StateSource
	logger    *slog.Logger
	metrics   *Metrics
	core      *metric.Metrics

	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]*clientInfo
	clientsMu sync.RWMutex

	// Lifecycle management
	mu        sync.RWMutex
	running   bool
	startTime time.Time
	server    *http.Server
	listener  net.Listener
	sub       *publisher.Subscription
	shutdown  chan struct{}
	wg        sync.WaitGroup

	messagesSent atomic.Int64
	bytesSent    atomic.Int64
	errors       atomic.Int64
	lastActivity atomic.Value // time.Time
}

var _ component.LifecycleComponent = (*Output)(nil)

// NewOutput creates the overlay feed. The server is not started until Start.
func NewOutput(deps OutputDeps) *Output {
	name := deps.Name
	if name == "" {
		name = "overlay"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "websocket-output", "name", name)
	}

	w := &Output{
		name:      name,
		config:    deps.Config,
		publisher: deps.Publisher,
		states:    deps.States,
		logger:    logger,
		metrics:   newMetrics(deps.MetricsRegistry, name, logger),
		upgrader: websocket.Upgrader{
			// overlays are served from arbitrary local origins
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		clients:   make(map[*websocket.Conn]*clientInfo),
		startTime: time.Now(),
	}
	if deps.MetricsRegistry != nil {
		w.core = deps.MetricsRegistry.CoreMetrics()
	}
	w.lastActivity.Store(time.Time{})
	return w
}

// Meta returns the component metadata
func (w *Output) Meta() component.Metadata {
	return component.Metadata{
		Name:        w.name,
		Type:        component.TypeOutput,
		Description: fmt.Sprintf("Overlay WebSocket feed on %s%s", w.config.Addr, w.config.Path),
		Version:     "1.0.0",
	}
}

// Health returns the current health status of the component
func (w *Output) Health() component.HealthStatus {
	w.mu.RLock()
	healthy := w.running && w.server != nil
	w.mu.RUnlock()

	return component.HealthStatus{
		Healthy:    healthy,
		LastCheck:  time.Now(),
		ErrorCount: int(w.errors.Load()),
		Uptime:     time.Since(w.startTime),
	}
}

// DataFlow returns the current data flow metrics
func (w *Output) DataFlow() component.FlowMetrics {
	messages := w.messagesSent.Load()
	bytes := w.bytesSent.Load()
	errCount := w.errors.Load()
	lastActivity, _ := w.lastActivity.Load().(time.Time)

	var messagesPerSecond, bytesPerSecond, errorRate float64
	if uptime := time.Since(w.startTime).Seconds(); uptime > 0 {
		messagesPerSecond = float64(messages) / uptime
		bytesPerSecond = float64(bytes) / uptime
	}
	if messages > 0 {
		errorRate = float64(errCount) / float64(messages)
	}

	return component.FlowMetrics{
		MessagesPerSecond: messagesPerSecond,
		BytesPerSecond:    bytesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Initialize validates configuration and dependencies
func (w *Output) Initialize() error {
	if err := w.config.Validate(); err != nil {
		return err
	}
	if w.publisher == nil || w.states == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "websocket-output", "Initialize", "publisher and state source are required")
	}
	return nil
}

// Start subscribes to the publisher and begins serving
func (w *Output) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "websocket-output", "Start", "context already cancelled or timed out")
	}

	ln, err := net.Listen("tcp", w.config.Addr)
	if err != nil {
		return errors.WrapFatal(err, "websocket-output", "Start", fmt.Sprintf("listen on %s", w.config.Addr))
	}

	sub, err := w.publisher.Subscribe(w.name, publisher.WithSubscriberQueueSize(w.config.QueueSize))
	if err != nil {
		_ = ln.Close()
		return errors.Wrap(err, "websocket-output", "Start", "subscribe to publisher")
	}

	w.listener = ln
	w.sub = sub
	w.server = &http.Server{
		Handler:           w.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	w.shutdown = make(chan struct{})
	w.running = true
	w.startTime = time.Now()

	w.wg.Add(3)
	go w.runServer(w.server, ln)
	go w.broadcastLoop(ctx, sub)
	go w.maintainClients(w.shutdown)

	w.logger.Info("Overlay feed listening", "address", ln.Addr().String(), "path", w.config.Path)
	return nil
}

// Handler returns the HTTP handler serving the feed and the state endpoint
func (w *Output) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(w.config.Path, w.handleWebSocket)
	if w.config.StatePath != "" {
		mux.HandleFunc(w.config.StatePath, w.handleState)
	}
	return mux
}

// Addr returns the bound address, or nil when not running
func (w *Output) Addr() net.Addr {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.listener == nil {
		return nil
	}
	return w.listener.Addr()
}

// Stop closes the server, all clients and the subscription
func (w *Output) Stop(timeout time.Duration) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.shutdown)
	server, sub := w.server, w.sub
	w.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		w.logger.Warn("HTTP server shutdown error", "error", err)
	}
	_ = sub.Close()
	w.closeAllClients()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"websocket-output", "Stop", "graceful shutdown")
	}

	w.mu.Lock()
	w.server, w.listener, w.sub = nil, nil, nil
	w.mu.Unlock()
	return nil
}

func (w *Output) runServer(server *http.Server, ln net.Listener) {
	defer w.wg.Done()
	if err := server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		w.errors.Add(1)
		w.logger.Error("HTTP server failed", "error", err)
	}
}

func (w *Output) broadcastLoop(ctx context.Context, sub *publisher.Subscription) {
	defer w.wg.Done()
	for {
		n, err := sub.Next(ctx)
		if err != nil {
			return
		}

		data, err := output.Marshal(n)
		if err != nil {
			w.recordError("envelope_marshal")
			w.logger.Warn("Notification not encoded", "seq", n.Seq, "error", err)
			continue
		}
		w.broadcastToClients(n.Kind.String(), data)
	}
}

func (w *Output) handleState(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		rw.Header().Set("Allow", "GET, HEAD")
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(w.states.State()); err != nil {
		w.recordError("state_encode")
	}
}

func (w *Output) handleWebSocket(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.recordError("connection_upgrade")
		return
	}

	info := &clientInfo{conn: conn, connectedAt: time.Now()}

	// Hold the client's write lock across registration and the initial
	// snapshot so broadcasts queue behind it.
	info.writeMutex.Lock()
	w.clientsMu.Lock()
	w.clients[conn] = info
	clientCount := len(w.clients)
	w.clientsMu.Unlock()

	if w.metrics != nil {
		w.metrics.connectionTotal.Inc()
		w.metrics.clientsConnected.Set(float64(clientCount))
	}

	err = w.writeSnapshot(info)
	info.writeMutex.Unlock()
	if err != nil {
		w.recordError("client_send")
		w.removeClient(info, "send_error")
		return
	}

	w.logger.Debug("Overlay client connected", "remote", r.RemoteAddr, "clients", clientCount)

	w.wg.Add(1)
	go w.handleClient(info)
}

// caller holds info.writeMutex
func (w *Output) writeSnapshot(info *clientInfo) error {
	s := w.states.State()
	env, err := output.StateEnvelope(s, w.publisher.Seq(), time.Now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_ = info.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := info.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	w.recordSent("state", len(data))
	return nil
}

// handleClient reads until the client goes away. Overlay clients never send
// data; reading keeps pong and close frames flowing.
func (w *Output) handleClient(info *clientInfo) {
	defer w.wg.Done()
	defer w.removeClient(info, "normal")

	info.conn.SetPongHandler(func(string) error {
		return info.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_ = info.conn.SetReadDeadline(time.Now().Add(readTimeout))
		if _, _, err := info.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (w *Output) removeClient(info *clientInfo, reason string) {
	info.closeOnce.Do(func() {
		info.closed.Store(true)

		w.clientsMu.Lock()
		delete(w.clients, info.conn)
		clientCount := len(w.clients)
		w.clientsMu.Unlock()

		if w.metrics != nil {
			w.metrics.disconnectionTotal.WithLabelValues(reason).Inc()
			w.metrics.clientsConnected.Set(float64(clientCount))
		}
		_ = info.conn.Close()
	})
}

func (w *Output) closeAllClients() {
	for _, info := range w.snapshotClients() {
		w.removeClient(info, "shutdown")
	}
}

func (w *Output) snapshotClients() []*clientInfo {
	w.clientsMu.RLock()
	defer w.clientsMu.RUnlock()
	list := make([]*clientInfo, 0, len(w.clients))
	for _, info := range w.clients {
		if !info.closed.Load() {
			list = append(list, info)
		}
	}
	return list
}

// Clients returns the number of connected clients
func (w *Output) Clients() int {
	w.clientsMu.RLock()
	defer w.clientsMu.RUnlock()
	return len(w.clients)
}

func (w *Output) broadcastToClients(kind string, data []byte) {
	start := time.Now()
	w.lastActivity.Store(start)

	var wg sync.WaitGroup
	for _, info := range w.snapshotClients() {
		wg.Add(1)
		go func(info *clientInfo) {
			defer wg.Done()
			if err := w.sendToClient(info, data); err != nil {
				w.recordError("client_send")
				w.removeClient(info, "send_error")
				return
			}
			w.recordSent(kind, len(data))
		}(info)
	}
	wg.Wait()

	if w.metrics != nil {
		w.metrics.broadcastDuration.Observe(time.Since(start).Seconds())
	}
}

func (w *Output) sendToClient(info *clientInfo, data []byte) error {
	info.writeMutex.Lock()
	defer info.writeMutex.Unlock()

	if info.closed.Load() {
		return nil
	}
	_ = info.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return info.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *Output) maintainClients(shutdown <-chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-shutdown:
			return
		case <-ticker.C:
			for _, info := range w.snapshotClients() {
				info.writeMutex.Lock()
				err := info.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
				info.writeMutex.Unlock()
				if err != nil {
					w.removeClient(info, "ping_failed")
				}
			}
		}
	}
}

func (w *Output) recordSent(kind string, n int) {
	w.messagesSent.Add(1)
	w.bytesSent.Add(int64(n))
	if w.metrics != nil {
		w.metrics.messagesSent.WithLabelValues(kind).Inc()
		w.metrics.bytesSent.Add(float64(n))
	}
}

func (w *Output) recordError(errorType string) {
	w.errors.Add(1)
	if w.metrics != nil {
		w.metrics.errorsTotal.WithLabelValues(errorType).Inc()
	}
	if w.core != nil {
		w.core.RecordSinkError("websocket")
	}
}
