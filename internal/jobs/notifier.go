package jobs

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fieldsync/internal/interfaces"
)

// LogNotifier records new work orders in the log. Delivery to an
// external channel plugs in behind the same interface.
type LogNotifier struct {
	logger arbor.ILogger
}

var _ interfaces.Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger arbor.ILogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyNewWorkOrders logs the newly discovered ids.
func (n *LogNotifier) NotifyNewWorkOrders(ctx context.Context, userID string, externalIDs []string) error {
	n.logger.Info().
		Str("user_id", userID).
		Int("count", len(externalIDs)).
		Strs("external_ids", externalIDs).
		Msg("New work orders discovered")
	return nil
}
