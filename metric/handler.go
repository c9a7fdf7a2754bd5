package metric

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reStrike-d-o-o/reStrike-VTA/errors"
)

// Server exposes the registry over HTTP together with any extra handlers
// (health, state queries) mounted by the caller.
type Server struct {
	addr     string
	path     string
	registry *MetricsRegistry
	extra    map[string]http.Handler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// ServerOption configures a metrics Server
type ServerOption func(*Server)

// WithHandler mounts handler at path next to the metrics endpoint.
func WithHandler(path string, handler http.Handler) ServerOption {
	return func(s *Server) {
		s.extra[path] = handler
	}
}

// NewServer creates a metrics server. An empty addr defaults to ":9090" and an
// empty path to "/metrics".
func NewServer(addr, path string, registry *MetricsRegistry, opts ...ServerOption) *Server {
	if path == "" {
		path = "/metrics"
	}
	if addr == "" {
		addr = ":9090"
	}

	s := &Server{
		addr:     addr,
		path:     path,
		registry: registry,
		extra:    make(map[string]http.Handler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the HTTP mux served by the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(
		s.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	))

	if _, ok := s.extra["/health"]; !ok {
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		})
	}
	for path, h := range s.extra {
		mux.Handle(path, h)
	}
	return mux
}

// Start binds the listen address and serves in the background. Bind errors
// are returned synchronously.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Start", "start metrics server")
	}
	if s.registry == nil {
		return errors.WrapFatal(fmt.Errorf("nil registry"), "Server", "Start", "metrics registry check")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.WrapFatal(err, "Server", "Start", fmt.Sprintf("listen on %s", s.addr))
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.done = make(chan struct{})

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		_ = srv.Serve(ln)
	}(s.server, s.done)

	return nil
}

// Stop shuts the server down, waiting up to timeout for in-flight requests.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := s.server.Shutdown(ctx)
	<-s.done
	s.server = nil
	s.listener = nil
	if err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "shutdown HTTP server")
	}
	return nil
}

// Address returns the metrics URL, using the bound port once started.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := s.addr
	if s.listener != nil {
		addr = s.listener.Addr().String()
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + s.path
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(host, port), s.path)
}
