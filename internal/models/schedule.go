package models

import (
	"fmt"
	"time"
)

// ScheduleType identifies the kind of recurring work a schedule drives.
type ScheduleType string

const (
	// ScheduleTypeWorkOrderScrape re-runs the work-order extraction pass.
	ScheduleTypeWorkOrderScrape ScheduleType = "workorder_scrape"
)

// TriggerType records whether a run was initiated by the recurring
// scheduler or by an explicit manual request.
type TriggerType string

const (
	TriggerScheduled TriggerType = "scheduled"
	TriggerManual    TriggerType = "manual"
)

// ActiveHours is the daily window during which scheduled runs may fire.
// Start is inclusive, End exclusive; both are hours in [0, 24).
type ActiveHours struct {
	Start int `json:"start" validate:"gte=0,lt=24"`
	End   int `json:"end" validate:"gte=0,lte=24"`
}

// Contains reports whether hour falls inside the [Start, End) window.
func (a ActiveHours) Contains(hour int) bool {
	return hour >= a.Start && hour < a.End
}

// Schedule is one recurring-extraction row per (user, schedule type).
// NextRun is nil iff Enabled is false. Running is the storage-level claim
// preventing two concurrent executions of the same row.
type Schedule struct {
	UserID              string       `json:"user_id"`
	Type                ScheduleType `json:"schedule_type"`
	IntervalHours       float64      `json:"interval_hours"`
	ActiveHours         *ActiveHours `json:"active_hours,omitempty"`
	Enabled             bool         `json:"enabled"`
	LastRun             *time.Time   `json:"last_run,omitempty"`
	NextRun             *time.Time   `json:"next_run,omitempty"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	Running             bool         `json:"-"`
	PendingTrigger      TriggerType  `json:"-"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// Interval converts the fractional hour setting to a duration.
func (s *Schedule) Interval() time.Duration {
	return time.Duration(s.IntervalHours * float64(time.Hour))
}

// RunHistory is one append-only row per executed run. Rows are never
// mutated after insert.
type RunHistory struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	ScheduleType   ScheduleType `json:"schedule_type"`
	StartedAt      time.Time    `json:"started_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	Success        bool         `json:"success"`
	ItemsProcessed int          `json:"items_processed"`
	ErrorMessage   string       `json:"error_message,omitempty"`
	TriggerType    TriggerType  `json:"trigger_type"`
}

// JobDescriptor is the serializable unit of scheduled work. Descriptors
// are resolved through a registry at execution time, never bound methods
// or closures, so the schedule survives restarts.
type JobDescriptor struct {
	UserID  string       `json:"user_id"`
	JobType ScheduleType `json:"job_type"`
	Trigger TriggerType  `json:"trigger"`
}

// RunOutcome is the terminal result of a job execution. Executors always
// return an outcome; they never propagate errors to the scheduler.
type RunOutcome struct {
	RunID          string
	Success        bool
	ItemsProcessed int
	Error          string
}

// ScrapeStats summarizes a full extraction pass over the portal.
type ScrapeStats struct {
	Candidates     int
	Extracted      int
	Skipped        int
	ItemsProcessed int
	NewWorkOrders  []string // external ids first seen this run
}

// ValidateScheduleParams checks interval and window sanity shared by
// create and update operations.
func ValidateScheduleParams(intervalHours float64, window *ActiveHours) error {
	if intervalHours <= 0 {
		return fmt.Errorf("interval_hours must be positive, got %v", intervalHours)
	}
	if window != nil {
		if window.Start < 0 || window.Start > 23 {
			return fmt.Errorf("active_hours start must be in [0,23], got %d", window.Start)
		}
		if window.End < 1 || window.End > 24 {
			return fmt.Errorf("active_hours end must be in [1,24], got %d", window.End)
		}
		if window.Start >= window.End {
			return fmt.Errorf("active_hours start (%d) must be before end (%d)", window.Start, window.End)
		}
	}
	return nil
}
