package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// ClientOption configures a Client before it connects.
type ClientOption func(*Client) error

// WithName sets the connection name shown by the server's monitoring endpoints.
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.name = name
		return nil
	}
}

// WithLogger sets the logger for connection events
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithTimeout sets the dial timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithMaxReconnects bounds reconnection attempts; -1 retries forever.
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) error {
		c.maxReconnects = n
		return nil
	}
}

// WithHealthInterval sets how often the connection health is checked. Zero
// disables the check.
func WithHealthInterval(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("health interval must not be negative, got %v", d)
		}
		c.healthInterval = d
		return nil
	}
}

// WithHealthChangeCallback is called on its own goroutine whenever the
// connection is lost or regained.
func WithHealthChangeCallback(fn func(healthy bool)) ClientOption {
	return func(c *Client) error {
		c.onHealthChange = fn
		return nil
	}
}

// WithCircuitBreakerThreshold sets the consecutive failures that open the circuit.
func WithCircuitBreakerThreshold(threshold int32) ClientOption {
	return func(c *Client) error {
		if threshold < 1 {
			return fmt.Errorf("circuit breaker threshold must be at least 1, got %d", threshold)
		}
		c.circuitThreshold = threshold
		return nil
	}
}

// WithCredentials authenticates with a user and password.
func WithCredentials(user, password string) ClientOption {
	return func(c *Client) error {
		if user == "" {
			return fmt.Errorf("credentials require a user")
		}
		c.auth = append(c.auth, nats.UserInfo(user, password))
		return nil
	}
}

// WithToken authenticates with a bearer token.
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		if token == "" {
			return fmt.Errorf("empty token")
		}
		c.auth = append(c.auth, nats.Token(token))
		return nil
	}
}

// WithTLS enables TLS. The client certificate is optional, but cert and key
// must be given together. An empty caFile trusts the system roots.
func WithTLS(certFile, keyFile, caFile string) ClientOption {
	return func(c *Client) error {
		if (certFile == "") != (keyFile == "") {
			return fmt.Errorf("tls client certificate needs both cert and key")
		}
		c.auth = append(c.auth, nats.Secure())
		if certFile != "" {
			c.auth = append(c.auth, nats.ClientCert(certFile, keyFile))
		}
		if caFile != "" {
			c.auth = append(c.auth, nats.RootCAs(caFile))
		}
		return nil
	}
}
