package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/nemnotify/service/db"
	"github.com/brojonat/nemnotify/service/metrics"
	natspkg "github.com/brojonat/nemnotify/service/nats"
	"github.com/brojonat/nemnotify/service/notify"
	"github.com/brojonat/nemnotify/service/settings"
)

// Notification kinds, used in the notification log and metrics.
const (
	KindPayment    = "payment"
	KindHarvesting = "harvesting"
)

// CheckPaymentsInput contains the input parameters for CheckPaymentsWorkflow.
type CheckPaymentsInput struct {
	// NotifyOnFirstRun sends every existing transfer when no marker is stored.
	// When false the first run only records the newest transfer as the marker.
	NotifyOnFirstRun bool `json:"notify_on_first_run"`
}

// CheckPaymentsResult contains the result of a payment check.
type CheckPaymentsResult struct {
	Address          string    `json:"address"`
	Skipped          bool      `json:"skipped"`   // no address configured
	Baselined        bool      `json:"baselined"` // first run, marker recorded without notifying
	TransactionCount int       `json:"transaction_count"`
	Notified         bool      `json:"notified"`
	Marker           string    `json:"marker"`
	CheckTime        time.Time `json:"check_time"`
}

// CheckHarvestingInput contains the input parameters for CheckHarvestingWorkflow.
type CheckHarvestingInput struct{}

// CheckHarvestingResult contains the result of a harvesting check.
type CheckHarvestingResult struct {
	Remote    string    `json:"remote"`
	Skipped   bool      `json:"skipped"`
	Active    bool      `json:"active"`
	LastError string    `json:"last_error,omitempty"`
	Notified  bool      `json:"notified"`
	CheckTime time.Time `json:"check_time"`
}

// BaselineInput contains parameters for the BaselineMarker activity.
type BaselineInput struct {
	Address string `json:"address"`
}

// BaselineResult contains the newest transfer hash, empty for an address with no history.
type BaselineResult struct {
	Marker string `json:"marker"`
}

// FindPaymentsInput contains parameters for the FindPayments activity.
type FindPaymentsInput struct {
	Address string `json:"address"`
	Marker  string `json:"marker"`
}

// FindPaymentsResult contains the new transfers and the formatted notification.
type FindPaymentsResult struct {
	Address   string                  `json:"address"`
	NewMarker string                  `json:"new_marker"`
	Message   *notify.Message         `json:"message,omitempty"`
	Events    []*natspkg.PaymentEvent `json:"events"`
	Stop      string                  `json:"stop"`
}

// SendNotificationInput contains parameters for the SendNotification activity.
type SendNotificationInput struct {
	Kind    string         `json:"kind"`
	Address string         `json:"address"`
	Message notify.Message `json:"message"`
	Marker  string         `json:"marker,omitempty"`
	TxCount int            `json:"tx_count"`
}

// SaveMarkerInput contains parameters for the SaveMarker activity.
type SaveMarkerInput struct {
	Address string `json:"address"`
	Marker  string `json:"marker"`
}

// SaveMarkerResult reports whether the marker was stored. It is not stored
// when the monitored address changed during the check.
type SaveMarkerResult struct {
	Saved bool `json:"saved"`
}

// CheckHarvestingActivityInput contains parameters for the CheckHarvesting activity.
type CheckHarvestingActivityInput struct {
	Remote string `json:"remote"`
	Node   string `json:"node"`
}

// PaymentChecker finds new payments. *notify.PaymentNotifier satisfies it.
type PaymentChecker interface {
	Check(ctx context.Context, address, marker string) (*notify.PaymentReport, error)
	Baseline(ctx context.Context, address string) (string, error)
}

// HarvestingChecker checks a harvesting account. *notify.HarvestingNotifier satisfies it.
type HarvestingChecker interface {
	Check(ctx context.Context, remote, node string) (*notify.HarvestingReport, error)
}

// NotificationLog records sent notifications and prunes old ones.
// *db.Store satisfies it.
type NotificationLog interface {
	RecordNotification(ctx context.Context, params db.RecordNotificationParams) (*db.Notification, error)
	DeleteNotificationsOlderThan(ctx context.Context, before time.Time) error
}

// PublisherInterface defines the NATS publishing operations needed by activities.
// This allows for easy mocking in tests.
type PublisherInterface interface {
	PublishPayments(ctx context.Context, events []*natspkg.PaymentEvent) error
	PublishHarvesting(ctx context.Context, event *natspkg.HarvestingEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
// Following go-kit pattern, all dependencies are explicit.
// sender, log and publisher are optional.
type Activities struct {
	store      settings.Store
	payments   PaymentChecker
	harvesting HarvestingChecker
	sender     notify.Sender
	log        NotificationLog
	publisher  PublisherInterface
	metrics    *metrics.Metrics
	logger     *slog.Logger

	// retention is how long log entries are kept; zero keeps them forever.
	retention time.Duration
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(
	store settings.Store,
	payments PaymentChecker,
	harvesting HarvestingChecker,
	sender notify.Sender,
	log NotificationLog,
	publisher PublisherInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		store:      store,
		payments:   payments,
		harvesting: harvesting,
		sender:     sender,
		log:        log,
		publisher:  publisher,
		metrics:    m,
		logger:     logger,
	}
}

func (a *Activities) observe(activity string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordActivityDuration(activity, time.Since(start).Seconds())
	}
}

// LoadSettings reads the stored notifier settings.
func (a *Activities) LoadSettings(ctx context.Context) (*settings.Settings, error) {
	defer a.observe("LoadSettings", time.Now())

	s, err := a.store.Load(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to load settings", "error", err)
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return &s, nil
}

// BaselineMarker returns the newest incoming transfer of an address.
func (a *Activities) BaselineMarker(ctx context.Context, input BaselineInput) (*BaselineResult, error) {
	defer a.observe("BaselineMarker", time.Now())

	marker, err := a.payments.Baseline(ctx, input.Address)
	if err != nil {
		a.logger.WarnContext(ctx, "failed to baseline marker",
			"address", input.Address,
			"error", err,
		)
		return nil, err
	}
	return &BaselineResult{Marker: marker}, nil
}

// FindPayments reconciles the address against its marker and formats the
// notification for anything new. Node failures yield an empty result: the
// next scheduled run retries from the same marker.
func (a *Activities) FindPayments(ctx context.Context, input FindPaymentsInput) (*FindPaymentsResult, error) {
	defer a.observe("FindPayments", time.Now())

	report, err := a.payments.Check(ctx, input.Address, input.Marker)
	if errors.Is(err, notify.ErrNotConfigured) {
		return &FindPaymentsResult{Address: input.Address, NewMarker: input.Marker}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check payments: %w", err)
	}

	a.logger.InfoContext(ctx, "payment check finished",
		"address", report.Address,
		"new_transactions", len(report.Transactions),
		"stop", report.Stop,
	)

	return &FindPaymentsResult{
		Address:   report.Address,
		NewMarker: report.NewMarker,
		Message:   report.Message,
		Events:    natspkg.FromPaymentReport(report),
		Stop:      string(report.Stop),
	}, nil
}

// SendNotification delivers a message and appends it to the notification
// log, pruning entries older than the retention period. Without a configured
// sender the message is only logged. A failed log write does not fail the
// activity.
func (a *Activities) SendNotification(ctx context.Context, input SendNotificationInput) error {
	defer a.observe("SendNotification", time.Now())

	if a.sender == nil {
		a.logger.InfoContext(ctx, "mail not configured, notification logged only",
			"kind", input.Kind,
			"subject", input.Message.Subject,
			"body", input.Message.Body,
		)
	} else if err := a.sender.Send(ctx, input.Message); err != nil {
		a.recordNotification(input.Kind, "error")
		a.logger.ErrorContext(ctx, "failed to send notification",
			"kind", input.Kind,
			"address", input.Address,
			"error", err,
		)
		return fmt.Errorf("failed to send notification: %w", err)
	}
	a.recordNotification(input.Kind, "sent")

	if a.log != nil {
		var marker *string
		if input.Marker != "" {
			marker = &input.Marker
		}
		_, err := a.log.RecordNotification(ctx, db.RecordNotificationParams{
			Kind:    input.Kind,
			Address: input.Address,
			Subject: input.Message.Subject,
			Body:    input.Message.Body,
			Marker:  marker,
			TxCount: input.TxCount,
		})
		if err != nil {
			a.logger.WarnContext(ctx, "failed to record notification", "error", err)
		}
		a.pruneNotifications(ctx)
	}
	return nil
}

func (a *Activities) pruneNotifications(ctx context.Context) {
	if a.retention <= 0 {
		return
	}
	before := time.Now().Add(-a.retention)
	if err := a.log.DeleteNotificationsOlderThan(ctx, before); err != nil {
		a.logger.WarnContext(ctx, "failed to prune notification log", "before", before, "error", err)
	}
}

func (a *Activities) recordNotification(kind, status string) {
	if a.metrics != nil {
		a.metrics.RecordNotification(kind, status)
	}
}

// SaveMarker stores the marker unless the monitored address changed.
func (a *Activities) SaveMarker(ctx context.Context, input SaveMarkerInput) (*SaveMarkerResult, error) {
	defer a.observe("SaveMarker", time.Now())

	err := a.store.SetMarker(ctx, input.Address, input.Marker)
	if errors.Is(err, settings.ErrAddressChanged) {
		a.logger.InfoContext(ctx, "address changed during check, marker dropped",
			"address", input.Address,
			"marker", input.Marker,
		)
		return &SaveMarkerResult{Saved: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save marker: %w", err)
	}
	a.logger.DebugContext(ctx, "marker saved",
		"address", input.Address,
		"marker", input.Marker,
	)
	return &SaveMarkerResult{Saved: true}, nil
}

// PublishPayments publishes payment events. Without a publisher it does nothing.
func (a *Activities) PublishPayments(ctx context.Context, events []*natspkg.PaymentEvent) error {
	defer a.observe("PublishPayments", time.Now())

	if a.publisher == nil || len(events) == 0 {
		return nil
	}
	return a.publisher.PublishPayments(ctx, events)
}

// CheckHarvesting queries the harvesting status. A nil report means the
// remote account or node is not configured.
func (a *Activities) CheckHarvesting(ctx context.Context, input CheckHarvestingActivityInput) (*notify.HarvestingReport, error) {
	defer a.observe("CheckHarvesting", time.Now())

	report, err := a.harvesting.Check(ctx, input.Remote, input.Node)
	if errors.Is(err, notify.ErrNotConfigured) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check harvesting: %w", err)
	}

	a.logger.InfoContext(ctx, "harvesting check finished",
		"remote", report.Remote,
		"active", report.Active,
		"status", report.Status,
		"last_error", report.LastError,
	)
	return report, nil
}

// PublishHarvesting publishes the outcome of a harvesting check. Without a
// publisher it does nothing.
func (a *Activities) PublishHarvesting(ctx context.Context, report *notify.HarvestingReport) error {
	defer a.observe("PublishHarvesting", time.Now())

	if a.publisher == nil || report == nil {
		return nil
	}
	return a.publisher.PublishHarvesting(ctx, natspkg.FromHarvestingReport(report))
}
