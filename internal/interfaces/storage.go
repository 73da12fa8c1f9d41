package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/fieldsync/internal/models"
)

// WorkOrderStorage persists extracted work orders with idempotent upsert
// semantics keyed by (user id, external id).
type WorkOrderStorage interface {
	// Upsert inserts or updates by natural key. Returns true when the
	// work order was first seen (insert path).
	Upsert(ctx context.Context, order *models.WorkOrder) (created bool, err error)
	Get(ctx context.Context, userID, externalID string) (*models.WorkOrder, error)
	ListByUser(ctx context.Context, userID string) ([]*models.WorkOrder, error)
	CountByUser(ctx context.Context, userID string) (int, error)
}

// SnapshotStorage archives markdown renditions of scraped detail pages
// for offline re-extraction and debugging.
type SnapshotStorage interface {
	Put(ctx context.Context, key string, markdown string) error
	Get(ctx context.Context, key string) (string, error)
}

// ScheduleStorage is the relational persistence for schedule rows.
// At most one row exists per (user id, schedule type).
type ScheduleStorage interface {
	Save(ctx context.Context, schedule *models.Schedule) error
	Get(ctx context.Context, userID string, scheduleType models.ScheduleType) (*models.Schedule, error)
	Delete(ctx context.Context, userID string, scheduleType models.ScheduleType) error
	List(ctx context.Context) ([]*models.Schedule, error)

	// ListDue returns enabled, unclaimed rows with next_run <= now.
	ListDue(ctx context.Context, now time.Time) ([]*models.Schedule, error)

	// Claim atomically marks the row running. Returns false when the row
	// is already claimed, disabled or missing; a row can only be claimed
	// once even under concurrent pollers.
	Claim(ctx context.Context, userID string, scheduleType models.ScheduleType) (bool, error)

	// CompleteRun releases the claim and writes last_run, next_run and
	// consecutive_failures as one atomic update so a concurrent manual
	// trigger cannot produce a lost update.
	CompleteRun(ctx context.Context, userID string, scheduleType models.ScheduleType, lastRun time.Time, nextRun *time.Time, consecutiveFailures int) error

	// MarkDue sets next_run for a manual trigger without touching the
	// rest of the row.
	MarkDue(ctx context.Context, userID string, scheduleType models.ScheduleType, at time.Time, trigger models.TriggerType) error

	// ReleaseOrphanedClaims clears running flags left behind by an
	// unclean shutdown. Returns the number of rows released.
	ReleaseOrphanedClaims(ctx context.Context) (int, error)
}

// RunHistoryStorage is the append-only run audit log.
type RunHistoryStorage interface {
	Append(ctx context.Context, run *models.RunHistory) error
	List(ctx context.Context, userID string, scheduleType models.ScheduleType, since, until time.Time, limit int) ([]*models.RunHistory, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
