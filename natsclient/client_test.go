package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reStrike-d-o-o/reStrike-VTA/errors"
)

// Nothing listens on port 1, so connects fail fast.
const unreachableURL = "nats://127.0.0.1:1"

func TestConnectionStatusString(t *testing.T) {
	cases := map[ConnectionStatus]string{
		StatusDisconnected:   "disconnected",
		StatusConnecting:     "connecting",
		StatusConnected:      "connected",
		StatusReconnecting:   "reconnecting",
		StatusCircuitOpen:    "circuit_open",
		ConnectionStatus(42): "unknown",
	}
	for status, want := range cases {
		assert.Equal(t, want, status.String())
	}
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", c.URL())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
	assert.Equal(t, time.Second, c.Backoff())
	assert.Zero(t, c.Failures())
}

func TestNewClientRejectsBadOption(t *testing.T) {
	_, err := NewClient("nats://localhost:4222", WithTimeout(0))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestConnectionOptionsIncludeAuth(t *testing.T) {
	plain, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	authed, err := NewClient("nats://localhost:4222",
		WithCredentials("judge", "secret"),
		WithName("vtafeed"),
	)
	require.NoError(t, err)

	assert.Len(t, authed.ConnectionOptions(), len(plain.ConnectionOptions())+2)

	secured, err := NewClient("nats://localhost:4222",
		WithToken("court-3"),
		WithTLS("client.pem", "client-key.pem", "ca.pem"),
	)
	require.NoError(t, err)
	assert.Len(t, secured.ConnectionOptions(), len(plain.ConnectionOptions())+4)

	require.NoError(t, secured.Close(context.Background()))
	assert.Len(t, secured.ConnectionOptions(), len(plain.ConnectionOptions()), "auth dropped on close")
}

func TestAuthOptionValidation(t *testing.T) {
	tests := []struct {
		name string
		opt  ClientOption
	}{
		{"credentials without user", WithCredentials("", "secret")},
		{"empty token", WithToken("")},
		{"cert without key", WithTLS("client.pem", "", "")},
		{"zero threshold", WithCircuitBreakerThreshold(0)},
		{"negative health interval", WithHealthInterval(-time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient("nats://localhost:4222", tt.opt)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestPublishWithoutConnection(t *testing.T) {
	c, err := NewClient(unreachableURL)
	require.NoError(t, err)

	err = c.Publish(context.Background(), "vta.state", []byte("{}"))
	assert.ErrorIs(t, err, ErrNotConnected)

	err = c.PublishToStream(context.Background(), "vta.state", []byte("{}"))
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = c.RTT()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectFailureIsTransient(t *testing.T) {
	c, err := NewClient(unreachableURL, WithTimeout(200*time.Millisecond), WithHealthInterval(0))
	require.NoError(t, err)

	err = c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.EqualValues(t, 1, c.Failures())
}

func TestCircuitOpensAndHalfOpens(t *testing.T) {
	c, err := NewClient(unreachableURL,
		WithTimeout(200*time.Millisecond),
		WithHealthInterval(0),
		WithCircuitBreakerThreshold(1),
	)
	require.NoError(t, err)

	err = c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, StatusCircuitOpen, c.Status())
	assert.Equal(t, 2*time.Second, c.Backoff())

	err = c.Publish(context.Background(), "vta.state", nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	assert.Eventually(t, func() bool {
		return c.Status() == StatusDisconnected
	}, 3*time.Second, 20*time.Millisecond)
}

func TestConnectWithRetrySpendsBudget(t *testing.T) {
	c, err := NewClient(unreachableURL,
		WithTimeout(200*time.Millisecond),
		WithHealthInterval(0),
		WithCircuitBreakerThreshold(10),
	)
	require.NoError(t, err)

	rc := errors.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	err = c.ConnectWithRetry(context.Background(), rc)
	require.Error(t, err)
	assert.EqualValues(t, 3, c.Failures())
}

func TestCloseIsIdempotent(t *testing.T) {
	c, err := NewClient(unreachableURL)
	require.NoError(t, err)

	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))

	err = c.Connect(context.Background())
	assert.ErrorIs(t, err, errors.ErrShuttingDown)
}
