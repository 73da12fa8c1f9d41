package sqlite

import (
	"database/sql"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fieldsync/internal/common"
)

// Manager owns the sqlite connection and its typed stores.
type Manager struct {
	db     *sql.DB
	logger arbor.ILogger

	Schedules   *ScheduleStorage
	History     *RunHistoryStorage
	Credentials *CredentialStorage
}

// NewManager opens the database, applies the schema and builds the
// stores.
func NewManager(config common.SQLiteConfig, logger arbor.ILogger) (*Manager, error) {
	db, err := Open(config.Path)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info().Str("path", config.Path).Msg("SQLite storage ready")

	return &Manager{
		db:          db,
		logger:      logger,
		Schedules:   NewScheduleStorage(db, logger),
		History:     NewRunHistoryStorage(db, logger),
		Credentials: NewCredentialStorage(db),
	}, nil
}

// Close closes the underlying database.
func (m *Manager) Close() error {
	return m.db.Close()
}
