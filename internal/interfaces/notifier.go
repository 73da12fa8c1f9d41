package interfaces

import "context"

// Notifier receives the set of newly discovered work-order ids per run.
// Delivery (email/push) happens in an external channel; at-least-once is
// acceptable here.
type Notifier interface {
	NotifyNewWorkOrders(ctx context.Context, userID string, externalIDs []string) error
}
