package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu        sync.Mutex
	schedules map[string]time.Duration // map[scheduleID]interval
	input     CheckPaymentsInput
	createErr error
	deleteErr error
}

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{
		schedules: make(map[string]time.Duration),
	}
}

// UpsertCheckSchedules records both schedules, creating or updating them.
func (m *MockScheduler) UpsertCheckSchedules(ctx context.Context, interval time.Duration, input CheckPaymentsInput) error {
	if m.createErr != nil {
		return m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range scheduleIDs() {
		m.schedules[id] = interval
	}
	m.input = input
	return nil
}

// DeleteCheckSchedules records that both schedules were deleted.
func (m *MockScheduler) DeleteCheckSchedules(ctx context.Context) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.schedules) == 0 {
		return fmt.Errorf("no schedules found")
	}
	m.schedules = make(map[string]time.Duration)
	return nil
}

// SetCreateError makes UpsertCheckSchedules return an error.
func (m *MockScheduler) SetCreateError(err error) {
	m.createErr = err
}

// SetDeleteError makes DeleteCheckSchedules return an error.
func (m *MockScheduler) SetDeleteError(err error) {
	m.deleteErr = err
}

// ScheduleInterval returns the interval of a schedule.
func (m *MockScheduler) ScheduleInterval(id string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	interval, exists := m.schedules[id]
	return interval, exists
}

// PaymentsInput returns the input the payments schedule was last upserted with.
func (m *MockScheduler) PaymentsInput() CheckPaymentsInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.input
}

// ScheduleCount returns the number of schedules.
func (m *MockScheduler) ScheduleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.schedules)
}
