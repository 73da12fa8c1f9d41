package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fieldsync/internal/models"
)

// RunHistoryStorage is the append-only audit log of executed runs.
type RunHistoryStorage struct {
	db     *sql.DB
	logger arbor.ILogger
}

// NewRunHistoryStorage creates a run history storage backed by db.
func NewRunHistoryStorage(db *sql.DB, logger arbor.ILogger) *RunHistoryStorage {
	return &RunHistoryStorage{db: db, logger: logger}
}

// Append inserts one run row. Rows are never updated afterwards.
func (s *RunHistoryStorage) Append(ctx context.Context, run *models.RunHistory) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_history
			(id, user_id, schedule_type, started_at, completed_at,
			 success, items_processed, error_message, trigger_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.UserID, string(run.ScheduleType),
		toUnix(run.StartedAt), toNullUnix(run.CompletedAt),
		boolToInt(run.Success), run.ItemsProcessed, run.ErrorMessage,
		string(run.TriggerType))
	if err != nil {
		return models.NewPersistenceError("append run history", err)
	}
	return nil
}

// List returns runs for (userID, scheduleType) inside the [since, until]
// window, newest first. A zero since or until leaves that side open;
// limit <= 0 means no limit.
func (s *RunHistoryStorage) List(ctx context.Context, userID string, scheduleType models.ScheduleType, since, until time.Time, limit int) ([]*models.RunHistory, error) {
	sinceUnix := int64(0)
	if !since.IsZero() {
		sinceUnix = toUnix(since)
	}
	untilUnix := int64(1) << 62
	if !until.IsZero() {
		untilUnix = toUnix(until)
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, schedule_type, started_at, completed_at,
		       success, items_processed, error_message, trigger_type
		FROM run_history
		WHERE user_id = ? AND schedule_type = ?
		  AND started_at >= ? AND started_at <= ?
		ORDER BY started_at DESC
		LIMIT ?`,
		userID, string(scheduleType), sinceUnix, untilUnix, limit)
	if err != nil {
		return nil, models.NewPersistenceError("list run history", err)
	}
	defer rows.Close()

	var out []*models.RunHistory
	for rows.Next() {
		var (
			run                   models.RunHistory
			scheduleType, trigger string
			startedAt             int64
			completedAt           sql.NullInt64
			success               int
		)
		err := rows.Scan(&run.ID, &run.UserID, &scheduleType, &startedAt,
			&completedAt, &success, &run.ItemsProcessed, &run.ErrorMessage,
			&trigger)
		if err != nil {
			return nil, models.NewPersistenceError("scan run history", err)
		}
		run.ScheduleType = models.ScheduleType(scheduleType)
		run.TriggerType = models.TriggerType(trigger)
		run.StartedAt = fromUnix(startedAt)
		run.CompletedAt = fromNullUnix(completedAt)
		run.Success = success == 1
		out = append(out, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewPersistenceError("scan run history", err)
	}
	return out, nil
}

// PruneBefore deletes runs older than cutoff and returns how many went.
func (s *RunHistoryStorage) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM run_history WHERE started_at < ?`, toUnix(cutoff))
	if err != nil {
		return 0, models.NewPersistenceError("prune run history", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, models.NewPersistenceError("prune run history", err)
	}
	if n > 0 {
		s.logger.Info().Int64("count", n).Msg("Pruned old run history rows")
	}
	return n, nil
}
