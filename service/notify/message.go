package notify

import (
	"context"
	"errors"
)

// ErrNotConfigured means the notifier is missing the address or node it needs.
// Callers treat it as a silent skip.
var ErrNotConfigured = errors.New("notifier not configured")

// Message is an outbound notification.
type Message struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers a notification message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
