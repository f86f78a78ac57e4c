package temporal

import (
	"fmt"
	"time"

	"github.com/brojonat/nemnotify/service/notify"
	"github.com/brojonat/nemnotify/service/settings"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

func activityContext(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 300 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})
}

// CheckPaymentsWorkflow checks the configured address for incoming transfers
// newer than the stored marker. It is triggered by a Temporal schedule.
//
// The workflow performs these steps:
// 1. Load settings (LoadSettings activity)
// 2. Find transfers newer than the marker (FindPayments activity), or on a
// first run record the newest transfer as the marker (BaselineMarker)
// 3. Mail the notification (SendNotification activity)
// 4. Store the new marker (SaveMarker activity)
// 5. Publish the transfers to NATS (PublishPayments activity, best effort)
//
// A failed send leaves the marker unchanged, so the next run resends.
func CheckPaymentsWorkflow(ctx workflow.Context, input CheckPaymentsInput) (*CheckPaymentsResult, error) {
	logger := workflow.GetLogger(ctx)
	ctx = activityContext(ctx)

	result := &CheckPaymentsResult{CheckTime: workflow.Now(ctx)}

	var st *settings.Settings
	if err := workflow.ExecuteActivity(ctx, a.LoadSettings).Get(ctx, &st); err != nil {
		return result, fmt.Errorf("failed to load settings: %w", err)
	}
	result.Address = st.Address
	result.Marker = st.Marker
	if st.Address == "" {
		logger.Info("no address configured, skipping payment check")
		result.Skipped = true
		return result, nil
	}
	logger.Info("CheckPaymentsWorkflow started", "address", st.Address, "marker", st.Marker)

	if st.Marker == "" && !input.NotifyOnFirstRun {
		var baseline *BaselineResult
		err := workflow.ExecuteActivity(ctx, a.BaselineMarker, BaselineInput{Address: st.Address}).Get(ctx, &baseline)
		if err != nil {
			return result, fmt.Errorf("failed to baseline marker: %w", err)
		}
		result.Baselined = true
		if baseline.Marker == "" {
			logger.Info("address has no transfers yet", "address", st.Address)
			return result, nil
		}
		if err := saveMarker(ctx, st.Address, baseline.Marker, result); err != nil {
			return result, err
		}
		logger.Info("marker baselined", "address", st.Address, "marker", result.Marker)
		return result, nil
	}

	var found *FindPaymentsResult
	err := workflow.ExecuteActivity(ctx, a.FindPayments, FindPaymentsInput{
		Address: st.Address,
		Marker:  st.Marker,
	}).Get(ctx, &found)
	if err != nil {
		return result, fmt.Errorf("failed to find payments: %w", err)
	}
	result.TransactionCount = len(found.Events)

	if found.Message == nil {
		logger.Info("no new payments", "address", st.Address, "stop", found.Stop)
		return result, nil
	}

	err = workflow.ExecuteActivity(ctx, a.SendNotification, SendNotificationInput{
		Kind:    KindPayment,
		Address: st.Address,
		Message: *found.Message,
		Marker:  found.NewMarker,
		TxCount: len(found.Events),
	}).Get(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to send payment notification: %w", err)
	}
	result.Notified = true

	if found.NewMarker != "" && found.NewMarker != st.Marker {
		if err := saveMarker(ctx, st.Address, found.NewMarker, result); err != nil {
			return result, err
		}
	}

	if len(found.Events) > 0 {
		err = workflow.ExecuteActivity(ctx, a.PublishPayments, found.Events).Get(ctx, nil)
		if err != nil {
			logger.Warn("failed to publish payment events", "address", st.Address, "error", err)
		}
	}

	logger.Info("CheckPaymentsWorkflow completed",
		"address", st.Address,
		"transaction_count", result.TransactionCount,
		"marker", result.Marker,
	)
	return result, nil
}

func saveMarker(ctx workflow.Context, address, marker string, result *CheckPaymentsResult) error {
	var saved *SaveMarkerResult
	err := workflow.ExecuteActivity(ctx, a.SaveMarker, SaveMarkerInput{
		Address: address,
		Marker:  marker,
	}).Get(ctx, &saved)
	if err != nil {
		return fmt.Errorf("failed to save marker: %w", err)
	}
	if saved.Saved {
		result.Marker = marker
	}
	return nil
}

// CheckHarvestingWorkflow checks whether the configured remote account is
// still harvesting on its node and mails a notification when it is not.
// While harvesting stays disabled every run notifies again.
func CheckHarvestingWorkflow(ctx workflow.Context, input CheckHarvestingInput) (*CheckHarvestingResult, error) {
	logger := workflow.GetLogger(ctx)
	ctx = activityContext(ctx)

	result := &CheckHarvestingResult{CheckTime: workflow.Now(ctx)}

	var st *settings.Settings
	if err := workflow.ExecuteActivity(ctx, a.LoadSettings).Get(ctx, &st); err != nil {
		return result, fmt.Errorf("failed to load settings: %w", err)
	}
	result.Remote = st.HarvestRemote

	var report *notify.HarvestingReport
	err := workflow.ExecuteActivity(ctx, a.CheckHarvesting, CheckHarvestingActivityInput{
		Remote: st.HarvestRemote,
		Node:   st.HarvestNode,
	}).Get(ctx, &report)
	if err != nil {
		return result, fmt.Errorf("failed to check harvesting: %w", err)
	}
	if report == nil {
		logger.Info("harvesting not configured, skipping check")
		result.Skipped = true
		return result, nil
	}
	result.Active = report.Active
	result.LastError = report.LastError

	if report.Message != nil {
		err = workflow.ExecuteActivity(ctx, a.SendNotification, SendNotificationInput{
			Kind:    KindHarvesting,
			Address: report.Remote,
			Message: *report.Message,
		}).Get(ctx, nil)
		if err != nil {
			return result, fmt.Errorf("failed to send harvesting notification: %w", err)
		}
		result.Notified = true
	}

	err = workflow.ExecuteActivity(ctx, a.PublishHarvesting, report).Get(ctx, nil)
	if err != nil {
		logger.Warn("failed to publish harvesting event", "remote", report.Remote, "error", err)
	}

	logger.Info("CheckHarvestingWorkflow completed",
		"remote", report.Remote,
		"active", report.Active,
		"notified", result.Notified,
	)
	return result, nil
}
