package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/fieldsync/internal/models"
)

// ScheduleRequest carries create/update parameters from the (out of
// scope) API layer.
type ScheduleRequest struct {
	UserID        string              `json:"user_id" validate:"required"`
	ScheduleType  models.ScheduleType `json:"schedule_type" validate:"required"`
	IntervalHours float64             `json:"interval_hours" validate:"required,gt=0"`
	ActiveHours   *models.ActiveHours `json:"active_hours,omitempty"`
	Enabled       bool                `json:"enabled"`
}

// TriggerOptions modifies manual trigger behavior.
type TriggerOptions struct {
	// IgnoreActiveHours fires the run even when the current time falls
	// outside the schedule's active-hours window.
	IgnoreActiveHours bool
}

// ScheduleStatus is the inspectable state of one schedule row.
type ScheduleStatus struct {
	Schedule  *models.Schedule `json:"schedule"`
	IsRunning bool             `json:"is_running"`
	LastError string           `json:"last_error,omitempty"`
}

// SchedulerService computes due-ness and next-run times and drives the
// poll loop. Management operations are consumed by the external API layer.
type SchedulerService interface {
	Start() error
	Stop() error
	IsRunning() bool

	CreateSchedule(ctx context.Context, req *ScheduleRequest) (*models.Schedule, error)
	UpdateSchedule(ctx context.Context, req *ScheduleRequest) (*models.Schedule, error)
	RemoveSchedule(ctx context.Context, userID string, scheduleType models.ScheduleType) error
	GetStatus(ctx context.Context, userID string, scheduleType models.ScheduleType) (*ScheduleStatus, error)
	GetHistory(ctx context.Context, userID string, scheduleType models.ScheduleType, since, until time.Time, limit int) ([]*models.RunHistory, error)

	// Trigger marks the schedule due now; the next poll tick fires it
	// with trigger type "manual".
	Trigger(ctx context.Context, userID string, scheduleType models.ScheduleType, opts TriggerOptions) error
}

// JobExecutor is the unit of work the scheduler invokes. Execute never
// lets an error propagate; it always returns a terminal outcome.
type JobExecutor interface {
	Execute(ctx context.Context, desc models.JobDescriptor) models.RunOutcome
}

// JobResolver resolves a serializable job descriptor to its executor at
// execution time.
type JobResolver interface {
	Resolve(jobType models.ScheduleType) (JobExecutor, error)
}
