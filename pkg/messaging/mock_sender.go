package messaging

import (
	"context"
	"sync"
)

// MockMessageSender records sent events in memory for testing.
type MockMessageSender struct {
	mu       sync.Mutex
	messages []*OrderEventMessage
	closed   bool
}

// NewMockMessageSender creates a new MockMessageSender.
func NewMockMessageSender() *MockMessageSender {
	return &MockMessageSender{}
}

// SendOrderEvent records the message.
func (m *MockMessageSender) SendOrderEvent(_ context.Context, msg *OrderEventMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

// Messages returns a snapshot of everything sent so far.
func (m *MockMessageSender) Messages() []*OrderEventMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*OrderEventMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

// Close marks the sender closed.
func (m *MockMessageSender) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockMessageSender) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Ensure MockMessageSender implements MessageSender.
var _ MessageSender = (*MockMessageSender)(nil)
