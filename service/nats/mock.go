package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu               sync.RWMutex
	paymentEvents    []*PaymentEvent
	harvestingEvents []*HarvestingEvent
	publishError     error
	closed           bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishPayments records the events and returns any configured error.
func (m *MockPublisher) PublishPayments(ctx context.Context, events []*PaymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.paymentEvents = append(m.paymentEvents, events...)
	return nil
}

// PublishHarvesting records the event and returns any configured error.
func (m *MockPublisher) PublishHarvesting(ctx context.Context, event *HarvestingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.harvestingEvents = append(m.harvestingEvents, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// PaymentEvents returns a copy of all published payment events.
func (m *MockPublisher) PaymentEvents() []*PaymentEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*PaymentEvent, len(m.paymentEvents))
	copy(events, m.paymentEvents)
	return events
}

// HarvestingEvents returns a copy of all published harvesting events.
func (m *MockPublisher) HarvestingEvents() []*HarvestingEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*HarvestingEvent, len(m.harvestingEvents))
	copy(events, m.harvestingEvents)
	return events
}

// SetPublishError configures the mock to fail every publish.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Reset clears all published events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paymentEvents = nil
	m.harvestingEvents = nil
	m.publishError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
