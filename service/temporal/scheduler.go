package temporal

import (
	"context"
	"time"
)

// Schedule IDs of the two periodic checks.
const (
	PaymentsScheduleID   = "nemnotify-payments"
	HarvestingScheduleID = "nemnotify-harvesting"
)

// Scheduler manages the Temporal schedules that trigger the checks.
// One schedule runs CheckPaymentsWorkflow, the other CheckHarvestingWorkflow.
type Scheduler interface {
	// UpsertCheckSchedules creates both schedules, or updates their interval
	// and input if they exist.
	UpsertCheckSchedules(ctx context.Context, interval time.Duration, input CheckPaymentsInput) error

	// DeleteCheckSchedules deletes both schedules. This stops all checks.
	DeleteCheckSchedules(ctx context.Context) error
}

// scheduleIDs lists the schedules managed by a Scheduler.
func scheduleIDs() []string {
	return []string{PaymentsScheduleID, HarvestingScheduleID}
}
