package sqlite

import (
	"database/sql"
	"fmt"
	"time"
)

// Timestamps are stored as UTC unix seconds so range predicates compare
// numerically instead of lexically.

const schema = `
CREATE TABLE IF NOT EXISTS schedules (
	user_id              TEXT    NOT NULL,
	schedule_type        TEXT    NOT NULL,
	interval_hours       REAL    NOT NULL,
	active_start         INTEGER,
	active_end           INTEGER,
	enabled              INTEGER NOT NULL DEFAULT 1,
	last_run             INTEGER,
	next_run             INTEGER,
	consecutive_failures INTEGER NOT NULL DEFAULT 0,
	running              INTEGER NOT NULL DEFAULT 0,
	pending_trigger      TEXT    NOT NULL DEFAULT 'scheduled',
	created_at           INTEGER NOT NULL,
	updated_at           INTEGER NOT NULL,
	PRIMARY KEY (user_id, schedule_type)
);

CREATE INDEX IF NOT EXISTS idx_schedules_next_run
	ON schedules (enabled, running, next_run);

CREATE TABLE IF NOT EXISTS run_history (
	id              TEXT PRIMARY KEY,
	user_id         TEXT    NOT NULL,
	schedule_type   TEXT    NOT NULL,
	started_at      INTEGER NOT NULL,
	completed_at    INTEGER,
	success         INTEGER NOT NULL DEFAULT 0,
	items_processed INTEGER NOT NULL DEFAULT 0,
	error_message   TEXT    NOT NULL DEFAULT '',
	trigger_type    TEXT    NOT NULL DEFAULT 'scheduled'
);

CREATE INDEX IF NOT EXISTS idx_run_history_lookup
	ON run_history (user_id, schedule_type, started_at);

CREATE TABLE IF NOT EXISTS portal_credentials (
	user_id       TEXT PRIMARY KEY,
	service       TEXT NOT NULL DEFAULT '',
	username      TEXT NOT NULL,
	password      TEXT NOT NULL,
	valid         INTEGER NOT NULL DEFAULT 1,
	last_verified INTEGER
);
`

// Migrate applies the schema. Statements are idempotent so startup can
// always run it.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}
	return nil
}

func toUnix(t time.Time) int64 {
	return t.UTC().Unix()
}

func toNullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().Unix(), Valid: true}
}

func fromUnix(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

func fromNullUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromUnix(v.Int64)
	return &t
}
