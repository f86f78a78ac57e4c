package temporal

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/nemnotify/service/metrics"
	"github.com/brojonat/nemnotify/service/notify"
	"github.com/brojonat/nemnotify/service/settings"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	// Temporal connection settings
	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string

	// Dependencies
	Store      settings.Store
	Payments   PaymentChecker
	Harvesting HarvestingChecker
	Sender     notify.Sender      // Optional: if nil, notifications are only logged
	Log        NotificationLog    // Optional
	Publisher  PublisherInterface // Optional
	Metrics    *metrics.Metrics   // Optional: if nil, no metrics will be recorded
	Logger     *slog.Logger

	// NotificationRetention prunes older log entries; zero keeps them forever.
	NotificationRetention time.Duration
}

// Worker wraps a Temporal worker and provides lifecycle management.
type Worker struct {
	client client.Client
	worker worker.Worker
	logger *slog.Logger
}

// NewWorker creates and configures a new Temporal worker.
// The worker will process workflows and activities on the configured task queue.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	logger := config.Logger.With("component", "temporal_worker")

	logger.Info("creating temporal worker",
		"host", config.TemporalHost,
		"namespace", config.TemporalNamespace,
		"task_queue", config.TaskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  config.TemporalHost,
		Namespace: config.TemporalNamespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal: %w", err)
	}

	// A single notifier instance only ever runs one check of each kind.
	w := worker.New(c, config.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     4,
		MaxConcurrentWorkflowTaskExecutionSize: 4,
	})

	w.RegisterWorkflow(CheckPaymentsWorkflow)
	w.RegisterWorkflow(CheckHarvestingWorkflow)
	logger.Info("registered workflows", "names", []string{"CheckPaymentsWorkflow", "CheckHarvestingWorkflow"})

	activities := NewActivities(
		config.Store,
		config.Payments,
		config.Harvesting,
		config.Sender,
		config.Log,
		config.Publisher,
		config.Metrics,
		logger,
	)
	activities.retention = config.NotificationRetention

	// Activities are registered by name, matching the ExecuteActivity calls in the workflows
	w.RegisterActivity(activities.LoadSettings)
	w.RegisterActivity(activities.BaselineMarker)
	w.RegisterActivity(activities.FindPayments)
	w.RegisterActivity(activities.SendNotification)
	w.RegisterActivity(activities.SaveMarker)
	w.RegisterActivity(activities.PublishPayments)
	w.RegisterActivity(activities.CheckHarvesting)
	w.RegisterActivity(activities.PublishHarvesting)

	logger.Info("registered activities",
		"activities", []string{
			"LoadSettings", "BaselineMarker", "FindPayments", "SendNotification",
			"SaveMarker", "PublishPayments", "CheckHarvesting", "PublishHarvesting",
		},
	)

	return &Worker{
		client: c,
		worker: w,
		logger: logger,
	}, nil
}

// Start begins processing workflows and activities.
// This method blocks until Stop is called or an interrupt is received.
func (w *Worker) Start() error {
	w.logger.Info("starting temporal worker")
	err := w.worker.Run(worker.InterruptCh())
	if err != nil {
		w.logger.Error("worker stopped with error", "error", err)
		return fmt.Errorf("worker stopped with error: %w", err)
	}
	w.logger.Info("worker stopped gracefully")
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping temporal worker")
	w.worker.Stop()
	w.client.Close()
	w.logger.Info("temporal worker stopped")
}
