package badger

import (
	"errors"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/fieldsync/internal/common"
)

// Manager owns the badger store and its typed storages.
type Manager struct {
	store  *badgerhold.Store
	logger arbor.ILogger

	WorkOrders *WorkOrderStorage
	Snapshots  *SnapshotStorage
}

// NewManager opens the document store and builds the storages.
func NewManager(config common.BadgerConfig, logger arbor.ILogger) (*Manager, error) {
	store, err := Open(config.Path, config.ResetOnStartup)
	if err != nil {
		return nil, err
	}

	logger.Info().Str("path", config.Path).Msg("Badger storage ready")

	return &Manager{
		store:      store,
		logger:     logger,
		WorkOrders: NewWorkOrderStorage(store, logger),
		Snapshots:  NewSnapshotStorage(store),
	}, nil
}

// RunGC reclaims value-log space. Badger returns ErrNoRewrite when there
// was nothing to collect, which is not a failure.
func (m *Manager) RunGC() error {
	err := m.store.Badger().RunValueLogGC(0.5)
	if errors.Is(err, badgerdb.ErrNoRewrite) {
		return nil
	}
	return err
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
