package scraper

import (
	"context"
	"math/rand"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fieldsync/internal/models"
)

// RetryPolicy bounds retries around transient page loads. Only
// navigation failures are retried; authentication, extraction and
// persistence failures are never transient.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. Backoff doubles per attempt with jitter.
func (p RetryPolicy) Do(ctx context.Context, logger arbor.ILogger, op string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := p.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !models.IsNavigation(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		sleep := backoff + time.Duration(rand.Int63n(int64(backoff/2)+1))
		logger.Warn().
			Str("op", op).
			Int("attempt", attempt).
			Str("backoff", sleep.String()).
			Err(err).
			Msg("Transient navigation failure, retrying")

		select {
		case <-ctx.Done():
			return models.NewNavigationError(op, ctx.Err())
		case <-time.After(sleep):
		}
		backoff *= 2
	}
	return err
}
