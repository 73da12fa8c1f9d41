package badger

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/fieldsync/internal/models"
)

// WorkOrderStorage persists work orders in the document store, keyed by
// (user id, external id).
type WorkOrderStorage struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// NewWorkOrderStorage creates a work order storage backed by store.
func NewWorkOrderStorage(store *badgerhold.Store, logger arbor.ILogger) *WorkOrderStorage {
	return &WorkOrderStorage{store: store, logger: logger}
}

// Upsert inserts or updates by natural key and reports whether the work
// order was first seen. Re-scraping never resets FirstSeenAt, and a list
// pass whose detail pass failed never erases previously scraped
// equipment.
func (s *WorkOrderStorage) Upsert(ctx context.Context, order *models.WorkOrder) (bool, error) {
	now := time.Now().UTC()
	key := order.Key()

	var existing models.WorkOrder
	err := s.store.Get(key, &existing)
	switch {
	case errors.Is(err, badgerhold.ErrNotFound):
		order.FirstSeenAt = now
		order.UpdatedAt = now
		if err := s.store.Upsert(key, order); err != nil {
			return false, models.NewPersistenceError("insert work order", err)
		}
		return true, nil
	case err != nil:
		return false, models.NewPersistenceError("get work order", err)
	}

	order.FirstSeenAt = existing.FirstSeenAt
	order.UpdatedAt = now
	if order.Completion == models.CompletionPending && len(order.Dispensers) == 0 {
		order.Dispensers = existing.Dispensers
		order.Completion = existing.Completion
	}

	if err := s.store.Upsert(key, order); err != nil {
		return false, models.NewPersistenceError("update work order", err)
	}
	return false, nil
}

// Get returns the work order for (userID, externalID), or nil when it
// was never scraped.
func (s *WorkOrderStorage) Get(ctx context.Context, userID, externalID string) (*models.WorkOrder, error) {
	var order models.WorkOrder
	err := s.store.Get(models.WorkOrderKey(userID, externalID), &order)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewPersistenceError("get work order", err)
	}
	return &order, nil
}

// ListByUser returns every work order scraped for userID.
func (s *WorkOrderStorage) ListByUser(ctx context.Context, userID string) ([]*models.WorkOrder, error) {
	var orders []*models.WorkOrder
	err := s.store.Find(&orders, badgerhold.Where("UserID").Eq(userID))
	if err != nil {
		return nil, models.NewPersistenceError("list work orders", err)
	}
	return orders, nil
}

// CountByUser returns how many work orders are stored for userID.
func (s *WorkOrderStorage) CountByUser(ctx context.Context, userID string) (int, error) {
	n, err := s.store.Count(&models.WorkOrder{}, badgerhold.Where("UserID").Eq(userID))
	if err != nil {
		return 0, models.NewPersistenceError("count work orders", err)
	}
	return int(n), nil
}
