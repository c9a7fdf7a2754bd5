package natsclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testImage        = "nats:2.11.7-alpine"
	testDialTimeout  = 5 * time.Second
	testStartTimeout = 30 * time.Second
)

// TestServer is a NATS server running in a container with a Client
// connected to it. User and Password are set when the server requires them.
type TestServer struct {
	Client   *Client
	URL      string
	User     string
	Password string
}

type testServerConfig struct {
	jetstream bool
	user      string
	password  string
}

// TestOption configures NewTestClient
type TestOption func(*testServerConfig)

// WithJetStream starts the server with JetStream enabled
func WithJetStream() TestOption {
	return func(c *testServerConfig) { c.jetstream = true }
}

// WithUserAuth makes the server require the given user and password.
func WithUserAuth(user, password string) TestOption {
	return func(c *testServerConfig) { c.user, c.password = user, password }
}

// NewTestClient starts a NATS container and connects a Client to it. The
// container and the client are released through t.Cleanup.
func NewTestClient(t testing.TB, opts ...TestOption) *TestServer {
	t.Helper()

	var cfg testServerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        testImage,
			ExposedPorts: []string{"4222/tcp", "8222/tcp"},
			Cmd:          cfg.serverArgs(),
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("4222/tcp"),
				wait.ForHTTP("/healthz").WithPort("8222/tcp").WithStartupTimeout(testStartTimeout),
			),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start NATS container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := containerURL(ctx, container)
	if err != nil {
		t.Fatalf("NATS container address: %v", err)
	}

	clientOpts := []ClientOption{
		WithTimeout(testDialTimeout),
		WithMaxReconnects(0),
		WithHealthInterval(0),
	}
	if cfg.user != "" {
		clientOpts = append(clientOpts, WithCredentials(cfg.user, cfg.password))
	}
	client, err := NewClient(url, clientOpts...)
	if err != nil {
		t.Fatalf("NATS client: %v", err)
	}
	// Registered after the container, so it runs first.
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	dialCtx, cancel := context.WithTimeout(ctx, testDialTimeout)
	defer cancel()
	if err := client.Connect(dialCtx); err != nil {
		t.Fatalf("connect to NATS container: %v", err)
	}

	return &TestServer{Client: client, URL: url, User: cfg.user, Password: cfg.password}
}

func (c testServerConfig) serverArgs() []string {
	args := []string{"--port", "4222", "--http_port", "8222"}
	if c.jetstream {
		args = append(args, "--js")
	}
	if c.user != "" {
		args = append(args, "--user", c.user, "--pass", c.password)
	}
	return args
}

func containerURL(ctx context.Context, container testcontainers.Container) (string, error) {
	host, err := container.Host(ctx)
	if err != nil {
		return "", err
	}
	port, err := container.MappedPort(ctx, "4222")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("nats://%s:%s", host, port.Port()), nil
}
