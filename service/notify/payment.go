package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/brojonat/nemnotify/service/metrics"
	"github.com/brojonat/nemnotify/service/nem"
)

const (
	paymentSubjectFormat = "New NEM Transactions for: %s"
	paymentIntro         = "The following new transactions have been received:"
	timeLayout           = "2006-01-02 15:04:05"
)

// PaymentReport is the outcome of one payment check.
type PaymentReport struct {
	Address string         `json:"address"`
	Stop    nem.StopReason `json:"stop"`
	// Transactions newer than the marker, newest first.
	Transactions []nem.Transaction `json:"-"`
	// NewMarker is the marker to persist once Message has been delivered.
	// It equals the input marker when nothing new was found.
	NewMarker string `json:"new_marker"`
	// Message is nil when there is nothing to send.
	Message *Message `json:"message,omitempty"`
}

// PaymentNotifier finds new incoming transfers and formats the notification.
// It does not send or persist anything: the caller delivers Message and then
// stores NewMarker.
type PaymentNotifier struct {
	fetcher    nem.TransferFetcher
	reconciler *nem.Reconciler
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewPaymentNotifier(fetcher nem.TransferFetcher, opts nem.ReconcilerOptions, m *metrics.Metrics, logger *slog.Logger) *PaymentNotifier {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	opts.Direction = nem.Incoming
	return &PaymentNotifier{
		fetcher:    fetcher,
		reconciler: nem.NewReconciler(fetcher, opts, m, logger),
		metrics:    m,
		logger:     logger,
	}
}

// Check reconciles address against marker. It returns ErrNotConfigured when
// address is empty; every other failure yields a report with no message.
//
// A fetch error ends the cycle without a message so that the next cycle
// retries from the same marker instead of skipping the unfetched range.
func (p *PaymentNotifier) Check(ctx context.Context, address, marker string) (*PaymentReport, error) {
	address = nem.NormalizeAddress(address)
	if address == "" {
		p.logger.DebugContext(ctx, "payment check skipped, no address configured")
		return nil, ErrNotConfigured
	}

	res := p.reconciler.Reconcile(ctx, address, marker)
	report := &PaymentReport{
		Address:   address,
		NewMarker: marker,
		Stop:      res.Stop,
	}

	if res.Stop == nem.StopFetchError {
		p.logger.WarnContext(ctx, "payment check incomplete, will retry",
			"address", address,
			"collected", len(res.Transactions),
			"error", res.Err,
		)
		return report, nil
	}
	if len(res.Transactions) == 0 {
		return report, nil
	}

	report.Transactions = res.Transactions
	report.NewMarker = res.NewestHash()
	report.Message = FormatPaymentMessage(address, res.Transactions)
	return report, nil
}

// Baseline returns the hash of the newest incoming transfer without
// notifying, for a first run with no marker. It returns "" for an address
// with no history.
func (p *PaymentNotifier) Baseline(ctx context.Context, address string) (string, error) {
	address = nem.NormalizeAddress(address)
	if address == "" {
		return "", ErrNotConfigured
	}
	page, err := p.fetcher.Transfers(ctx, nem.Incoming, address, "")
	if err != nil {
		return "", fmt.Errorf("failed to fetch newest transfers: %w", err)
	}
	if len(page) == 0 {
		return "", nil
	}
	p.logger.InfoContext(ctx, "payment marker baselined",
		"address", address,
		"marker", page[0].Hash,
	)
	return page[0].Hash, nil
}

// FormatPaymentMessage renders txns (newest first) as a notification with
// one line per transaction, oldest first.
func FormatPaymentMessage(address string, txns []nem.Transaction) *Message {
	var b strings.Builder
	b.WriteString(paymentIntro)
	b.WriteString("\n\n")
	for i := len(txns) - 1; i >= 0; i-- {
		b.WriteString(FormatTransactionLine(txns[i]))
		b.WriteString("\n")
	}
	return &Message{
		Subject: fmt.Sprintf(paymentSubjectFormat, address),
		Body:    b.String(),
	}
}

// FormatTransactionLine renders one transaction, e.g.
// "Date: 2015-03-29 00:06:25 Amount: 2.5 XEM Type: Transfer Message: hi".
func FormatTransactionLine(txn nem.Transaction) string {
	line := fmt.Sprintf("Date: %s Amount: %s XEM Type: %s",
		txn.Time().Format(timeLayout),
		txn.TotalAmount(nem.NativeMosaic).String(),
		txn.Type(),
	)
	if msg := txn.MessageText(); msg != "" {
		line += " Message: " + msg
	}
	return line
}
