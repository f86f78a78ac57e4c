package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/nemnotify/service/metrics"
	"github.com/brojonat/nemnotify/service/nem"
)

type mockStatusSource struct {
	mock.Mock
}

func (m *mockStatusSource) AccountStatus(ctx context.Context, address, node string) (string, error) {
	args := m.Called(ctx, address, node)
	return args.String(0), args.Error(1)
}

func (m *mockStatusSource) LastError() string {
	args := m.Called()
	return args.String(0)
}

func TestHarvestingCheck(t *testing.T) {
	tests := []struct {
		name          string
		status        string
		err           error
		lastErr       string
		wantActive    bool
		wantLastError string
		wantMessage   bool
	}{
		{
			name:       "unlocked",
			status:     "UNLOCKED",
			wantActive: true,
		},
		{
			name:        "locked",
			status:      "LOCKED",
			wantMessage: true,
		},
		{
			name:          "query failure",
			err:           fmt.Errorf("%w: all down", nem.ErrNetwork),
			lastErr:       "alice2.nem.ninja:7890: status 503",
			wantLastError: "alice2.nem.ninja:7890: status 503",
			wantMessage:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := new(mockStatusSource)
			source.On("AccountStatus", mock.Anything, "TREMOTE", "node.example").Return(tt.status, tt.err)
			source.On("LastError").Return(tt.lastErr).Maybe()

			h := NewHarvestingNotifier(source, metrics.NewMetrics(prometheus.NewRegistry()), nil)
			report, err := h.Check(context.Background(), "t-remote", "node.example")
			require.NoError(t, err)

			assert.Equal(t, tt.wantActive, report.Active)
			assert.Equal(t, tt.wantLastError, report.LastError)
			if tt.wantMessage {
				require.NotNil(t, report.Message)
				assert.Contains(t, report.Message.Body, "Harvesting is disabled")
				if tt.wantLastError != "" {
					assert.Contains(t, report.Message.Body, tt.wantLastError)
				}
			} else {
				assert.Nil(t, report.Message)
			}
			source.AssertExpectations(t)
		})
	}
}

func TestHarvestingCheck_NotConfigured(t *testing.T) {
	source := new(mockStatusSource)
	h := NewHarvestingNotifier(source, nil, nil)

	_, err := h.Check(context.Background(), "", "node.example")
	assert.True(t, errors.Is(err, ErrNotConfigured))

	_, err = h.Check(context.Background(), "TREMOTE", "")
	assert.True(t, errors.Is(err, ErrNotConfigured))

	source.AssertNotCalled(t, "AccountStatus", mock.Anything, mock.Anything, mock.Anything)
}
