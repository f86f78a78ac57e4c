package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/brojonat/nemnotify/service/metrics"
)

// Publisher defines the interface for publishing notifier events to NATS.
type Publisher interface {
	// PublishPayments publishes one event per new transfer to
	// "nem.payments.{address}". A failed event does not stop the rest.
	PublishPayments(ctx context.Context, events []*PaymentEvent) error

	// PublishHarvesting publishes a harvesting check result to
	// "nem.harvesting.{remote}".
	PublishHarvesting(ctx context.Context, event *HarvestingEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes notifier events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for notifier events.
	StreamName = "NEM_EVENTS"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "nem.>"

	// StreamRetention is how long messages are retained (30 days by default).
	StreamRetention = 30 * 24 * time.Hour
)

// PaymentSubject returns the subject for payments to address.
func PaymentSubject(address string) string {
	return "nem.payments." + address
}

// HarvestingSubject returns the subject for harvesting checks of remote.
func HarvestingSubject(remote string) string {
	return "nem.harvesting." + remote
}

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	// Connect to NATS
	nc, err := nats.Connect(natsURL,
		nats.Name("nemnotify-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	// Create JetStream context
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	// Ensure stream exists
	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Try to get existing stream
	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Payment and harvesting events from NEM accounts",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	_, err = p.js.CreateStream(ctx, streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

func (p *JetStreamPublisher) publish(ctx context.Context, subject string, v any) error {
	start := time.Now()
	status := "success"
	defer func() {
		if p.metrics != nil {
			p.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
		}
	}()

	data, err := json.Marshal(v)
	if err != nil {
		status = "error"
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		status = "error"
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// PublishPayments publishes each payment event, logging failures.
func (p *JetStreamPublisher) PublishPayments(ctx context.Context, events []*PaymentEvent) error {
	if len(events) == 0 {
		return nil
	}

	failed := 0
	for _, event := range events {
		if err := p.publish(ctx, PaymentSubject(event.Address), event); err != nil {
			p.logger.ErrorContext(ctx, "failed to publish payment event",
				"hash", event.Hash,
				"address", event.Address,
				"error", err,
			)
			failed++
			continue
		}
	}

	p.logger.DebugContext(ctx, "published payment events",
		"count", len(events),
		"failed", failed,
	)
	if failed == len(events) {
		return fmt.Errorf("failed to publish all %d payment events", failed)
	}
	return nil
}

// PublishHarvesting publishes a harvesting check result.
func (p *JetStreamPublisher) PublishHarvesting(ctx context.Context, event *HarvestingEvent) error {
	subject := HarvestingSubject(event.Remote)
	if err := p.publish(ctx, subject, event); err != nil {
		return err
	}
	p.logger.DebugContext(ctx, "published harvesting event",
		"subject", subject,
		"active", event.Active,
	)
	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
