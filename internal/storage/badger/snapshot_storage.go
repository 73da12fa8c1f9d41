package badger

import (
	"context"
	"errors"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/fieldsync/internal/models"
)

// snapshotRecord is the stored markdown rendition of one scraped page.
type snapshotRecord struct {
	Key       string
	Markdown  string
	UpdatedAt time.Time
}

// SnapshotStorage archives page snapshots in the document store.
type SnapshotStorage struct {
	store *badgerhold.Store
}

// NewSnapshotStorage creates a snapshot storage backed by store.
func NewSnapshotStorage(store *badgerhold.Store) *SnapshotStorage {
	return &SnapshotStorage{store: store}
}

// Put stores (or replaces) the snapshot under key.
func (s *SnapshotStorage) Put(ctx context.Context, key string, markdown string) error {
	record := snapshotRecord{
		Key:       key,
		Markdown:  markdown,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.store.Upsert(key, &record); err != nil {
		return models.NewPersistenceError("put snapshot", err)
	}
	return nil
}

// Get returns the snapshot markdown for key, or "" when none exists.
func (s *SnapshotStorage) Get(ctx context.Context, key string) (string, error) {
	var record snapshotRecord
	err := s.store.Get(key, &record)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", models.NewPersistenceError("get snapshot", err)
	}
	return record.Markdown, nil
}
