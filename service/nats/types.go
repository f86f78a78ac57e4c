package nats

import (
	"time"

	"github.com/brojonat/nemnotify/service/nem"
	"github.com/brojonat/nemnotify/service/notify"
)

// PaymentEvent is one incoming transfer, published to "nem.payments.{address}".
type PaymentEvent struct {
	// Transaction identifiers
	Hash   string `json:"hash"`
	Height int64  `json:"height"`

	// Account information
	Address  string `json:"address"` // monitored (receiving) address
	Signer   string `json:"signer,omitempty"`
	Multisig bool   `json:"multisig"`

	// Transaction details
	Amount  string `json:"amount"` // XEM, decimal string
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`

	// Timing information
	Timestamp   time.Time `json:"timestamp"`
	PublishedAt time.Time `json:"published_at"`
}

// HarvestingEvent is the result of a harvesting check, published to
// "nem.harvesting.{remote}".
type HarvestingEvent struct {
	Remote      string    `json:"remote"`
	Node        string    `json:"node"`
	Active      bool      `json:"active"`
	Status      string    `json:"status,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// FromPaymentReport converts a payment report into one event per
// transaction, oldest first.
func FromPaymentReport(report *notify.PaymentReport) []*PaymentEvent {
	if report == nil {
		return nil
	}
	now := time.Now().UTC()
	events := make([]*PaymentEvent, 0, len(report.Transactions))
	for i := len(report.Transactions) - 1; i >= 0; i-- {
		txn := report.Transactions[i]
		payload := txn.Payload()
		events = append(events, &PaymentEvent{
			Hash:        txn.Hash,
			Height:      txn.Height,
			Address:     report.Address,
			Signer:      payload.Signer,
			Multisig:    txn.Kind == nem.KindMultisig,
			Amount:      txn.TotalAmount(nem.NativeMosaic).String(),
			Type:        txn.Type().String(),
			Message:     txn.MessageText(),
			Timestamp:   txn.Time(),
			PublishedAt: now,
		})
	}
	return events
}

// FromHarvestingReport converts a harvesting report to an event.
func FromHarvestingReport(report *notify.HarvestingReport) *HarvestingEvent {
	return &HarvestingEvent{
		Remote:      report.Remote,
		Node:        report.Node,
		Active:      report.Active,
		Status:      report.Status,
		LastError:   report.LastError,
		PublishedAt: time.Now().UTC(),
	}
}
