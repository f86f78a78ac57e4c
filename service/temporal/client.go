package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// scheduleAction returns the workflow started by a schedule.
func (c *Client) scheduleAction(id string, input CheckPaymentsInput) *client.ScheduleWorkflowAction {
	if id == PaymentsScheduleID {
		return &client.ScheduleWorkflowAction{
			ID:        "check-payments",
			Workflow:  CheckPaymentsWorkflow,
			TaskQueue: c.taskQueue,
			Args:      []interface{}{input},
		}
	}
	return &client.ScheduleWorkflowAction{
		ID:        "check-harvesting",
		Workflow:  CheckHarvestingWorkflow,
		TaskQueue: c.taskQueue,
		Args:      []interface{}{CheckHarvestingInput{}},
	}
}

// UpsertCheckSchedules creates or updates the payment and harvesting schedules.
// Overlapping runs are skipped, so a slow check never runs twice at once.
func (c *Client) UpsertCheckSchedules(ctx context.Context, interval time.Duration, input CheckPaymentsInput) error {
	for _, id := range scheduleIDs() {
		if err := c.upsertSchedule(ctx, id, interval, input); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) upsertSchedule(ctx context.Context, id string, interval time.Duration, input CheckPaymentsInput) error {
	c.logger.Debug("upserting check schedule",
		"schedule_id", id,
		"interval", interval,
	)

	action := c.scheduleAction(id, input)
	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if _, err := handle.Describe(ctx); err != nil {
		// Schedule doesn't exist or error getting it - create new one
		c.logger.Debug("schedule not found, creating new one",
			"schedule_id", id,
			"error", err,
		)
		_, err = c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
			ID: id,
			Spec: client.ScheduleSpec{
				Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
			},
			Action:  action,
			Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
			Memo: map[string]interface{}{
				"created_by": "nemnotify",
			},
		})
		if err != nil {
			c.logger.Error("failed to create schedule", "schedule_id", id, "error", err)
			return fmt.Errorf("failed to create schedule %q: %w", id, err)
		}
		c.logger.Info("check schedule created", "schedule_id", id, "interval", interval)
		return nil
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(in client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			in.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{
				{Every: interval},
			}
			in.Description.Schedule.Action = action
			return &client.ScheduleUpdate{
				Schedule: &in.Description.Schedule,
			}, nil
		},
	})
	if err != nil {
		c.logger.Error("failed to update schedule", "schedule_id", id, "error", err)
		return fmt.Errorf("failed to update schedule %q: %w", id, err)
	}

	c.logger.Info("check schedule updated", "schedule_id", id, "interval", interval)
	return nil
}

// DeleteCheckSchedules deletes the payment and harvesting schedules.
func (c *Client) DeleteCheckSchedules(ctx context.Context) error {
	for _, id := range scheduleIDs() {
		handle := c.client.ScheduleClient().GetHandle(ctx, id)
		if err := handle.Delete(ctx); err != nil {
			c.logger.Error("failed to delete schedule", "schedule_id", id, "error", err)
			return fmt.Errorf("failed to delete schedule %q: %w", id, err)
		}
		c.logger.Info("check schedule deleted", "schedule_id", id)
	}
	return nil
}

// ScheduleStatus summarizes one check schedule.
type ScheduleStatus struct {
	ID         string        `json:"id"`
	Interval   time.Duration `json:"interval"`
	Paused     bool          `json:"paused"`
	Note       string        `json:"note,omitempty"`
	LastAction *time.Time    `json:"last_action,omitempty"`
	NextAction *time.Time    `json:"next_action,omitempty"`
}

// DescribeCheckSchedules returns the state of both check schedules.
func (c *Client) DescribeCheckSchedules(ctx context.Context) ([]ScheduleStatus, error) {
	var out []ScheduleStatus
	for _, id := range scheduleIDs() {
		desc, err := c.client.ScheduleClient().GetHandle(ctx, id).Describe(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe schedule %q: %w", id, err)
		}
		status := ScheduleStatus{ID: id}
		if desc.Schedule.State != nil {
			status.Paused = desc.Schedule.State.Paused
			status.Note = desc.Schedule.State.Note
		}
		if desc.Schedule.Spec != nil && len(desc.Schedule.Spec.Intervals) > 0 {
			status.Interval = desc.Schedule.Spec.Intervals[0].Every
		}
		if n := len(desc.Info.RecentActions); n > 0 {
			t := desc.Info.RecentActions[n-1].ActualTime
			status.LastAction = &t
		}
		if len(desc.Info.NextActionTimes) > 0 {
			t := desc.Info.NextActionTimes[0]
			status.NextAction = &t
		}
		out = append(out, status)
	}
	return out, nil
}

// PauseCheckSchedules pauses both check schedules with note.
func (c *Client) PauseCheckSchedules(ctx context.Context, note string) error {
	for _, id := range scheduleIDs() {
		handle := c.client.ScheduleClient().GetHandle(ctx, id)
		if err := handle.Pause(ctx, client.SchedulePauseOptions{Note: note}); err != nil {
			return fmt.Errorf("failed to pause schedule %q: %w", id, err)
		}
		c.logger.Info("check schedule paused", "schedule_id", id, "note", note)
	}
	return nil
}

// ResumeCheckSchedules unpauses both check schedules with note.
func (c *Client) ResumeCheckSchedules(ctx context.Context, note string) error {
	for _, id := range scheduleIDs() {
		handle := c.client.ScheduleClient().GetHandle(ctx, id)
		if err := handle.Unpause(ctx, client.ScheduleUnpauseOptions{Note: note}); err != nil {
			return fmt.Errorf("failed to resume schedule %q: %w", id, err)
		}
		c.logger.Info("check schedule resumed", "schedule_id", id, "note", note)
	}
	return nil
}

// RunPaymentsCheck starts CheckPaymentsWorkflow once and waits for its result.
func (c *Client) RunPaymentsCheck(ctx context.Context, input CheckPaymentsInput) (*CheckPaymentsResult, error) {
	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        fmt.Sprintf("check-payments-manual-%d", time.Now().Unix()),
		TaskQueue: c.taskQueue,
	}, CheckPaymentsWorkflow, input)
	if err != nil {
		return nil, fmt.Errorf("failed to start payments check: %w", err)
	}
	var result CheckPaymentsResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("payments check failed: %w", err)
	}
	return &result, nil
}

// RunHarvestingCheck starts CheckHarvestingWorkflow once and waits for its result.
func (c *Client) RunHarvestingCheck(ctx context.Context) (*CheckHarvestingResult, error) {
	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        fmt.Sprintf("check-harvesting-manual-%d", time.Now().Unix()),
		TaskQueue: c.taskQueue,
	}, CheckHarvestingWorkflow, CheckHarvestingInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to start harvesting check: %w", err)
	}
	var result CheckHarvestingResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("harvesting check failed: %w", err)
	}
	return &result, nil
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
