package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fieldsync/internal/models"
)

// ScheduleStorage is the relational store for schedule rows. One row per
// (user id, schedule type); the running column is the execution claim.
type ScheduleStorage struct {
	db     *sql.DB
	logger arbor.ILogger
}

// NewScheduleStorage creates a schedule storage backed by db.
func NewScheduleStorage(db *sql.DB, logger arbor.ILogger) *ScheduleStorage {
	return &ScheduleStorage{db: db, logger: logger}
}

const scheduleColumns = `user_id, schedule_type, interval_hours, active_start, active_end,
	enabled, last_run, next_run, consecutive_failures, running, pending_trigger,
	created_at, updated_at`

// Save inserts or updates the schedule's settings. The claim columns
// (running, pending_trigger) are owned by Claim/CompleteRun/MarkDue and
// are deliberately left alone on the update path.
func (s *ScheduleStorage) Save(ctx context.Context, schedule *models.Schedule) error {
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	var activeStart, activeEnd sql.NullInt64
	if schedule.ActiveHours != nil {
		activeStart = sql.NullInt64{Int64: int64(schedule.ActiveHours.Start), Valid: true}
		activeEnd = sql.NullInt64{Int64: int64(schedule.ActiveHours.End), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 'scheduled', ?, ?)
		ON CONFLICT(user_id, schedule_type) DO UPDATE SET
			interval_hours       = excluded.interval_hours,
			active_start         = excluded.active_start,
			active_end           = excluded.active_end,
			enabled              = excluded.enabled,
			last_run             = excluded.last_run,
			next_run             = excluded.next_run,
			consecutive_failures = excluded.consecutive_failures,
			updated_at           = excluded.updated_at`,
		schedule.UserID, string(schedule.Type), schedule.IntervalHours,
		activeStart, activeEnd, boolToInt(schedule.Enabled),
		toNullUnix(schedule.LastRun), toNullUnix(schedule.NextRun),
		schedule.ConsecutiveFailures,
		toUnix(schedule.CreatedAt), toUnix(schedule.UpdatedAt))
	if err != nil {
		return models.NewPersistenceError("save schedule", err)
	}
	return nil
}

// Get returns the schedule for (userID, scheduleType), or nil when no
// row exists.
func (s *ScheduleStorage) Get(ctx context.Context, userID string, scheduleType models.ScheduleType) (*models.Schedule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE user_id = ? AND schedule_type = ?`,
		userID, string(scheduleType))

	schedule, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewPersistenceError("get schedule", err)
	}
	return schedule, nil
}

// Delete removes the schedule row. Deleting a missing row is not an error.
func (s *ScheduleStorage) Delete(ctx context.Context, userID string, scheduleType models.ScheduleType) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM schedules WHERE user_id = ? AND schedule_type = ?`,
		userID, string(scheduleType))
	if err != nil {
		return models.NewPersistenceError("delete schedule", err)
	}
	return nil
}

// List returns every schedule row.
func (s *ScheduleStorage) List(ctx context.Context) ([]*models.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scheduleColumns+` FROM schedules ORDER BY user_id, schedule_type`)
	if err != nil {
		return nil, models.NewPersistenceError("list schedules", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// ListDue returns enabled, unclaimed schedules whose next_run has
// arrived, oldest first so the most overdue user goes first.
func (s *ScheduleStorage) ListDue(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE enabled = 1 AND running = 0
		  AND next_run IS NOT NULL AND next_run <= ?
		ORDER BY next_run ASC`,
		toUnix(now))
	if err != nil {
		return nil, models.NewPersistenceError("list due schedules", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// Claim atomically marks the row running. The WHERE clause is the whole
// mechanism: two concurrent claimers race on running = 0 and exactly one
// update can win.
func (s *ScheduleStorage) Claim(ctx context.Context, userID string, scheduleType models.ScheduleType) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET running = 1, updated_at = ?
		WHERE user_id = ? AND schedule_type = ? AND running = 0 AND enabled = 1`,
		toUnix(time.Now()), userID, string(scheduleType))
	if err != nil {
		return false, models.NewPersistenceError("claim schedule", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, models.NewPersistenceError("claim schedule", err)
	}
	return n == 1, nil
}

// CompleteRun releases the claim and writes the post-run fields in one
// statement so a concurrent manual trigger cannot interleave a lost
// update between them.
func (s *ScheduleStorage) CompleteRun(ctx context.Context, userID string, scheduleType models.ScheduleType, lastRun time.Time, nextRun *time.Time, consecutiveFailures int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET
			running = 0,
			pending_trigger = 'scheduled',
			last_run = ?,
			next_run = ?,
			consecutive_failures = ?,
			updated_at = ?
		WHERE user_id = ? AND schedule_type = ?`,
		toUnix(lastRun), toNullUnix(nextRun), consecutiveFailures,
		toUnix(time.Now()), userID, string(scheduleType))
	if err != nil {
		return models.NewPersistenceError("complete run", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.NewPersistenceError("complete run", err)
	}
	if n == 0 {
		return models.NewPersistenceError("complete run",
			fmt.Errorf("schedule %s/%s no longer exists", userID, scheduleType))
	}
	return nil
}

// MarkDue pulls next_run forward for a manual trigger, leaving every
// other setting untouched.
func (s *ScheduleStorage) MarkDue(ctx context.Context, userID string, scheduleType models.ScheduleType, at time.Time, trigger models.TriggerType) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET next_run = ?, pending_trigger = ?, updated_at = ?
		WHERE user_id = ? AND schedule_type = ?`,
		toUnix(at), string(trigger), toUnix(time.Now()),
		userID, string(scheduleType))
	if err != nil {
		return models.NewPersistenceError("mark schedule due", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.NewPersistenceError("mark schedule due", err)
	}
	if n == 0 {
		return models.NewPersistenceError("mark schedule due",
			fmt.Errorf("schedule %s/%s not found", userID, scheduleType))
	}
	return nil
}

// ReleaseOrphanedClaims clears running flags left behind by an unclean
// shutdown. Runs once at startup, before the poll loop starts.
func (s *ScheduleStorage) ReleaseOrphanedClaims(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET running = 0, updated_at = ? WHERE running = 1`,
		toUnix(time.Now()))
	if err != nil {
		return 0, models.NewPersistenceError("release orphaned claims", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, models.NewPersistenceError("release orphaned claims", err)
	}
	if n > 0 {
		s.logger.Warn().Int64("count", n).Msg("Released schedule claims orphaned by previous shutdown")
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*models.Schedule, error) {
	var (
		schedule               models.Schedule
		scheduleType, trigger  string
		activeStart, activeEnd sql.NullInt64
		enabled, running       int
		lastRun, nextRun       sql.NullInt64
		createdAt, updatedAt   int64
	)

	err := row.Scan(&schedule.UserID, &scheduleType, &schedule.IntervalHours,
		&activeStart, &activeEnd, &enabled, &lastRun, &nextRun,
		&schedule.ConsecutiveFailures, &running, &trigger,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	schedule.Type = models.ScheduleType(scheduleType)
	schedule.Enabled = enabled == 1
	schedule.Running = running == 1
	schedule.PendingTrigger = models.TriggerType(trigger)
	schedule.LastRun = fromNullUnix(lastRun)
	schedule.NextRun = fromNullUnix(nextRun)
	schedule.CreatedAt = fromUnix(createdAt)
	schedule.UpdatedAt = fromUnix(updatedAt)

	if activeStart.Valid && activeEnd.Valid {
		schedule.ActiveHours = &models.ActiveHours{
			Start: int(activeStart.Int64),
			End:   int(activeEnd.Int64),
		}
	}
	return &schedule, nil
}

func collectSchedules(rows *sql.Rows) ([]*models.Schedule, error) {
	var out []*models.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, models.NewPersistenceError("scan schedule", err)
		}
		out = append(out, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewPersistenceError("scan schedules", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
