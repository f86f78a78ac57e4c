package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/brojonat/nemnotify/service/metrics"
	"github.com/brojonat/nemnotify/service/nem"
)

// StatusUnlocked is the account status of a remote account that is harvesting.
const StatusUnlocked = "UNLOCKED"

const harvestingSubjectFormat = "NEM Harvesting Stopped for: %s"

// StatusSource reports the status of an account as seen by one node.
type StatusSource interface {
	AccountStatus(ctx context.Context, address, node string) (string, error)
	LastError() string
}

// HarvestingReport is the outcome of one harvesting check.
type HarvestingReport struct {
	Remote string `json:"remote"`
	Node   string `json:"node"`
	Active bool   `json:"active"`
	// Status is the reported account status, empty when the query failed.
	Status string `json:"status"`
	// LastError is set only when the node could not be queried.
	LastError string   `json:"last_error,omitempty"`
	Message   *Message `json:"message,omitempty"`
}

// HarvestingNotifier checks that a delegated harvesting account is unlocked.
type HarvestingNotifier struct {
	source  StatusSource
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewHarvestingNotifier(source StatusSource, m *metrics.Metrics, logger *slog.Logger) *HarvestingNotifier {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &HarvestingNotifier{source: source, metrics: m, logger: logger}
}

// Check queries node for the status of remote. Only an UNLOCKED status is
// active; anything else produces a message.
func (h *HarvestingNotifier) Check(ctx context.Context, remote, node string) (*HarvestingReport, error) {
	remote = nem.NormalizeAddress(remote)
	if remote == "" || node == "" {
		h.logger.DebugContext(ctx, "harvesting check skipped, remote or node not configured")
		return nil, ErrNotConfigured
	}

	report := &HarvestingReport{Remote: remote, Node: node}
	status, err := h.source.AccountStatus(ctx, remote, node)
	switch {
	case errors.Is(err, nem.ErrNotConfigured):
		return nil, ErrNotConfigured
	case err != nil:
		report.LastError = h.source.LastError()
		if report.LastError == "" {
			report.LastError = err.Error()
		}
		h.logger.WarnContext(ctx, "harvesting status query failed",
			"remote", remote,
			"node", node,
			"error", err,
		)
	default:
		report.Status = status
		report.Active = status == StatusUnlocked
	}

	if h.metrics != nil {
		h.metrics.SetHarvestingActive(remote, report.Active)
	}

	if !report.Active {
		report.Message = FormatHarvestingMessage(report)
	}
	return report, nil
}

// FormatHarvestingMessage renders the notification for an inactive report.
func FormatHarvestingMessage(r *HarvestingReport) *Message {
	body := fmt.Sprintf("Harvesting is disabled for remote account %s on node %s.\n", r.Remote, r.Node)
	if r.Status != "" {
		body += fmt.Sprintf("\nReported status: %s\n", r.Status)
	}
	if r.LastError != "" {
		body += fmt.Sprintf("\nThe node could not be queried: %s\n", r.LastError)
	}
	return &Message{
		Subject: fmt.Sprintf(harvestingSubjectFormat, r.Remote),
		Body:    body,
	}
}
