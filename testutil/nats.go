// Package testutil provides in-memory test doubles shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// Message is one publish recorded by MockNATSClient.
type Message struct {
	Subject string
	Data    []byte
	Stream  bool
}

// MockNATSClient is an in-memory stand-in for the NATS client publish path.
// It records every message in publish order and can be told to fail.
// Safe for concurrent use.
type MockNATSClient struct {
	mu       sync.RWMutex
	messages []Message
	failures []error
	closed   bool
}

// NewMockNATSClient creates a new mock NATS client.
func NewMockNATSClient() *MockNATSClient {
	return &MockNATSClient{}
}

// Publish records a core NATS publish.
func (c *MockNATSClient) Publish(_ context.Context, subject string, data []byte) error {
	return c.record(subject, data, false)
}

// PublishToStream records a JetStream publish.
func (c *MockNATSClient) PublishToStream(_ context.Context, subject string, data []byte) error {
	return c.record(subject, data, true)
}

func (c *MockNATSClient) record(subject string, data []byte, stream bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}
	if len(c.failures) > 0 {
		err := c.failures[0]
		c.failures = c.failures[1:]
		return err
	}

	c.messages = append(c.messages, Message{
		Subject: subject,
		Data:    append([]byte(nil), data...),
		Stream:  stream,
	})
	return nil
}

// FailNext makes the next len(errs) publishes return errs in order.
func (c *MockNATSClient) FailNext(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, errs...)
}

// Messages returns every recorded message in publish order.
func (c *MockNATSClient) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Subjects returns the subject of every recorded message in publish order.
func (c *MockNATSClient) Subjects() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.Subject
	}
	return out
}

// GetMessages returns the payloads published to subject.
func (c *MockNATSClient) GetMessages(subject string) [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out [][]byte
	for _, m := range c.messages {
		if m.Subject == subject {
			out = append(out, m.Data)
		}
	}
	return out
}

// Close makes further publishes fail.
func (c *MockNATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// WaitForMessageCount waits until at least count messages were recorded.
func WaitForMessageCount(t testing.TB, client *MockNATSClient, count int, timeout time.Duration) []Message {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if msgs := client.Messages(); len(msgs) >= count {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d messages, got %d after %v", count, len(client.Messages()), timeout)
	return nil
}
