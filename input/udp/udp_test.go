package udp

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reStrike-d-o-o/reStrike-VTA/errors"
	"github.com/reStrike-d-o-o/reStrike-VTA/metric"
	"github.com/reStrike-d-o-o/reStrike-VTA/protocol"
)

type recordingHandler struct {
	mu       sync.Mutex
	accepted []protocol.Datagram
	dropped  []error
	notify   chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{notify: make(chan struct{}, 64)}
}

func (h *recordingHandler) HandleDatagram(d protocol.Datagram) {
	h.mu.Lock()
	h.accepted = append(h.accepted, d)
	h.mu.Unlock()
	h.notify <- struct{}{}
}

func (h *recordingHandler) HandleDropped(_ protocol.Datagram, err error) {
	h.mu.Lock()
	h.dropped = append(h.dropped, err)
	h.mu.Unlock()
	h.notify <- struct{}{}
}

func (h *recordingHandler) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-h.notify:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d datagrams", i, n)
		}
	}
}

func testConfig() Config {
	return Config{Bind: "127.0.0.1", Port: 0}
}

func startListener(t *testing.T, h Handler, registry *metric.MetricsRegistry) *Listener {
	t.Helper()
	l := NewListener(ListenerDeps{Config: testConfig(), Handler: h, MetricsRegistry: registry})
	require.NoError(t, l.Initialize())
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { _ = l.Stop(time.Second) })
	return l
}

func send(t *testing.T, addr net.Addr, payloads ...[]byte) {
	t.Helper()
	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	for _, p := range payloads {
		_, err := conn.Write(p)
		require.NoError(t, err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 6000, cfg.Port)
	assert.Equal(t, "0.0.0.0", cfg.Bind)
	assert.Equal(t, "0.0.0.0:6000", cfg.Address())
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"os assigned port", Config{Port: 0}, false},
		{"negative port", Config{Port: -1}, true},
		{"port too large", Config{Port: 70000}, true},
		{"negative buffer", Config{Port: 6000, ReadBufferBytes: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				assert.ErrorIs(t, err, errors.ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestInitializeRequiresHandler(t *testing.T) {
	l := NewListener(ListenerDeps{Config: testConfig()})
	err := l.Initialize()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestReceivesDatagramsInOrder(t *testing.T) {
	h := newRecordingHandler()
	l := startListener(t, h, nil)
	require.NotNil(t, l.Addr())

	send(t, l.Addr(), []byte("clk;2:00;"), []byte("rnd;1;"), []byte("sc1;3;sc2;0;"))
	h.wait(t, 3)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.accepted, 3)
	assert.Equal(t, "clk;2:00;", string(h.accepted[0].Payload))
	assert.Equal(t, "rnd;1;", string(h.accepted[1].Payload))
	assert.Equal(t, "sc1;3;sc2;0;", string(h.accepted[2].Payload))
	assert.False(t, h.accepted[0].ReceivedAt.IsZero())
	assert.NotNil(t, h.accepted[0].Source)
}

func TestDropsNonASCII(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	h := newRecordingHandler()
	l := startListener(t, h, registry)

	send(t, l.Addr(), []byte("at1;J\xc3\xb6rg;"), []byte("rnd;2;"))
	h.wait(t, 2)

	h.mu.Lock()
	require.Len(t, h.dropped, 1)
	assert.ErrorIs(t, h.dropped[0], errors.ErrNonASCII)
	require.Len(t, h.accepted, 1)
	assert.Equal(t, "rnd;2;", string(h.accepted[0].Payload))
	h.mu.Unlock()

	core := registry.CoreMetrics()
	assert.Equal(t, 1.0, prom.ToFloat64(core.DatagramsDropped.WithLabelValues("non_ascii")))
	assert.Equal(t, 1.0, prom.ToFloat64(core.DatagramsReceived))
	assert.Greater(t, l.DataFlow().ErrorRate, 0.0)
}

func TestNonASCIIDropIsLoggedAsWarning(t *testing.T) {
	var buf bytes.Buffer
	h := newRecordingHandler()
	l := NewListener(ListenerDeps{
		Config:  testConfig(),
		Handler: h,
		Logger:  slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})

	l.deliver([]byte("at1;J\xc3\xb6rg;"), &net.UDPAddr{IP: net.IPv4(192, 168, 1, 20), Port: 51000})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "Dropped non-ASCII datagram", entry["msg"])
	assert.Equal(t, "192.168.1.20:51000", entry["source"])
}

func TestBindConflictIsFatal(t *testing.T) {
	h := newRecordingHandler()
	first := startListener(t, h, nil)

	port := first.Addr().(*net.UDPAddr).Port
	second := NewListener(ListenerDeps{Config: Config{Bind: "127.0.0.1", Port: port}, Handler: h})

	err := second.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBind)
	assert.True(t, errors.IsFatal(err))
	assert.False(t, second.Health().Healthy)
}

func TestStopReleasesSocket(t *testing.T) {
	h := newRecordingHandler()
	l := NewListener(ListenerDeps{Config: testConfig(), Handler: h})
	require.NoError(t, l.Start(context.Background()))
	assert.True(t, l.Health().Healthy)

	addr := l.Addr().String()
	require.NoError(t, l.Stop(time.Second))
	assert.Nil(t, l.Addr())
	assert.False(t, l.Health().Healthy)
	require.NoError(t, l.Stop(time.Second), "stop is idempotent")

	conn, err := net.ListenPacket("udp", addr)
	require.NoError(t, err, "port must be free after Stop")
	_ = conn.Close()
}

func TestMeta(t *testing.T) {
	l := NewListener(ListenerDeps{Config: DefaultConfig()})
	meta := l.Meta()
	assert.Equal(t, "udp-listener-6000", meta.Name)
	assert.Equal(t, "input", meta.Type)
	assert.Contains(t, meta.Description, "0.0.0.0:6000")

	named := NewListener(ListenerDeps{Name: "pss", Config: DefaultConfig()})
	assert.Equal(t, "pss", named.Meta().Name)
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

type readResult struct {
	payload string
	err     error
}

// scriptedReader replays results in order, then reports read timeouts.
type scriptedReader struct {
	mu      sync.Mutex
	results []readResult
	src     *net.UDPAddr
}

func (r *scriptedReader) SetReadDeadline(time.Time) error { return nil }

func (r *scriptedReader) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.results) == 0 {
		time.Sleep(time.Millisecond)
		return 0, nil, timeoutError{}
	}
	next := r.results[0]
	r.results = r.results[1:]
	if next.err != nil {
		return 0, nil, next.err
	}
	return copy(b, next.payload), r.src, nil
}

func TestReceiveErrorIsRecordedAndLoopContinues(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	h := newRecordingHandler()
	l := NewListener(ListenerDeps{Config: testConfig(), Handler: h, MetricsRegistry: registry})

	reader := &scriptedReader{
		src: &net.UDPAddr{IP: net.IPv4(192, 168, 1, 20), Port: 51000},
		results: []readResult{
			{err: &net.OpError{Op: "read", Net: "udp", Err: syscall.ECONNREFUSED}},
			{payload: "rnd;1;"},
			{err: &net.OpError{Op: "read", Net: "udp", Err: syscall.ECONNRESET}},
			{payload: "sc1;4;"},
		},
	}

	shutdown := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.readLoop(context.Background(), reader, shutdown)
	}()

	h.wait(t, 2)
	close(shutdown)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not stop")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.accepted, 2)
	assert.Equal(t, "rnd;1;", string(h.accepted[0].Payload))
	assert.Equal(t, "sc1;4;", string(h.accepted[1].Payload))
	assert.Empty(t, h.dropped)

	assert.EqualValues(t, 2, l.errors.Load())
	assert.Contains(t, l.lastError.Load().(string), "connection reset")
	assert.Equal(t, 2.0, prom.ToFloat64(l.metrics.socketErrors))
}

func TestClosedSocketEndsReadLoop(t *testing.T) {
	h := newRecordingHandler()
	l := NewListener(ListenerDeps{Config: testConfig(), Handler: h})
	reader := &scriptedReader{results: []readResult{{err: net.ErrClosed}}}

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.readLoop(context.Background(), reader, make(chan struct{}))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop kept running on a closed socket")
	}
	assert.EqualValues(t, 1, l.errors.Load())
}
