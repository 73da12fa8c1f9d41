package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fieldsync/internal/common"
	"github.com/ternarybob/fieldsync/internal/interfaces"
	"github.com/ternarybob/fieldsync/internal/models"
	"github.com/ternarybob/fieldsync/internal/services/scheduler"
)

// scrapeRunner is the orchestrator surface the executor needs.
type scrapeRunner interface {
	Run(ctx context.Context, driver interfaces.PageDriver, userID string) (*models.ScrapeStats, error)
}

// ScrapeExecutor runs one full work-order extraction for one user.
// Execute is a terminal boundary: credentials, browser, scraping and
// persistence failures all collapse into the returned outcome, one
// history row is always written, and the schedule claim is always
// released.
type ScrapeExecutor struct {
	credentials interfaces.CredentialStore
	sessions    interfaces.SessionManager
	runner      scrapeRunner
	schedules   interfaces.ScheduleStorage
	history     interfaces.RunHistoryStorage
	notifier    interfaces.Notifier
	logger      arbor.ILogger

	now func() time.Time
}

var _ interfaces.JobExecutor = (*ScrapeExecutor)(nil)

// NewScrapeExecutor creates the work-order scrape executor.
func NewScrapeExecutor(
	credentials interfaces.CredentialStore,
	sessions interfaces.SessionManager,
	runner scrapeRunner,
	schedules interfaces.ScheduleStorage,
	history interfaces.RunHistoryStorage,
	notifier interfaces.Notifier,
	logger arbor.ILogger,
) *ScrapeExecutor {
	return &ScrapeExecutor{
		credentials: credentials,
		sessions:    sessions,
		runner:      runner,
		schedules:   schedules,
		history:     history,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
	}
}

// Execute runs the scrape and returns its terminal outcome. It never
// returns an error; the scheduler loop must survive anything that
// happens in here.
func (e *ScrapeExecutor) Execute(ctx context.Context, desc models.JobDescriptor) models.RunOutcome {
	runID := common.NewRunID()
	log := e.logger.WithCorrelationId(runID)
	startedAt := e.now().UTC()

	log.Info().
		Str("user_id", desc.UserID).
		Str("job_type", string(desc.JobType)).
		Str("trigger", string(desc.Trigger)).
		Msg("Scrape run starting")

	stats, runErr := e.scrape(ctx, desc.UserID, log)
	completedAt := e.now().UTC()

	outcome := models.RunOutcome{
		RunID:   runID,
		Success: runErr == nil,
	}
	if stats != nil {
		outcome.ItemsProcessed = stats.ItemsProcessed
	}
	if runErr != nil {
		outcome.Error = runErr.Error()
		log.Warn().
			Str("user_id", desc.UserID).
			Str("error_kind", string(models.KindOf(runErr))).
			Err(runErr).
			Msg("Scrape run failed")
	}

	e.appendHistory(ctx, runID, desc, startedAt, completedAt, outcome, log)
	e.completeSchedule(ctx, desc, completedAt, outcome.Success, log)

	if outcome.Success && stats != nil && len(stats.NewWorkOrders) > 0 && e.notifier != nil {
		if err := e.notifier.NotifyNewWorkOrders(ctx, desc.UserID, stats.NewWorkOrders); err != nil {
			log.Warn().Err(err).Msg("New work order notification failed")
		}
	}

	log.Info().
		Str("user_id", desc.UserID).
		Bool("success", outcome.Success).
		Int("items_processed", outcome.ItemsProcessed).
		Int64("duration_ms", completedAt.Sub(startedAt).Milliseconds()).
		Msg("Scrape run finished")
	return outcome
}

// scrape does the credential, session and orchestration work. Session
// cleanup is scoped here so the browser dies with the run no matter how
// the run ends.
func (e *ScrapeExecutor) scrape(ctx context.Context, userID string, log arbor.ILogger) (stats *models.ScrapeStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprintf("%v", r)).Msg("Recovered from panic in scrape run")
			err = fmt.Errorf("panic during scrape: %v", r)
		}
	}()

	cred, err := e.credentials.Retrieve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, models.NewAuthenticationError("retrieve credentials",
			fmt.Errorf("no portal credentials stored for user %s", userID))
	}
	if !cred.Valid {
		return nil, models.NewAuthenticationError("retrieve credentials",
			fmt.Errorf("stored credentials for user %s are marked invalid", userID))
	}

	session, err := e.sessions.NewSession(ctx, userID)
	if err != nil {
		return nil, models.NewNavigationError("create browser session", err)
	}
	defer session.Cleanup()

	if err := session.Login(ctx, cred); err != nil {
		return nil, err
	}

	return e.runner.Run(ctx, session, userID)
}

// appendHistory writes the single audit row for this run. A failed
// append is logged and swallowed: losing an audit row must not turn a
// successful scrape into a failed one.
func (e *ScrapeExecutor) appendHistory(ctx context.Context, runID string, desc models.JobDescriptor, startedAt, completedAt time.Time, outcome models.RunOutcome, log arbor.ILogger) {
	run := &models.RunHistory{
		ID:             runID,
		UserID:         desc.UserID,
		ScheduleType:   desc.JobType,
		StartedAt:      startedAt,
		CompletedAt:    &completedAt,
		Success:        outcome.Success,
		ItemsProcessed: outcome.ItemsProcessed,
		ErrorMessage:   outcome.Error,
		TriggerType:    desc.Trigger,
	}
	if err := e.history.Append(ctx, run); err != nil {
		log.Error().Err(err).Msg("Failed to append run history row")
	}
}

// completeSchedule releases the claim and advances next_run in one
// atomic storage update.
func (e *ScrapeExecutor) completeSchedule(ctx context.Context, desc models.JobDescriptor, completedAt time.Time, success bool, log arbor.ILogger) {
	schedule, err := e.schedules.Get(ctx, desc.UserID, desc.JobType)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load schedule after run")
		return
	}
	if schedule == nil {
		// Removed mid-run; nothing left to release.
		return
	}

	failures := 0
	if !success {
		failures = schedule.ConsecutiveFailures + 1
	}

	var nextRun *time.Time
	if schedule.Enabled {
		next := scheduler.RepairOverdue(
			scheduler.NextRun(completedAt, schedule.Interval(), schedule.ActiveHours),
			e.now(), schedule.Interval(), schedule.ActiveHours)
		nextRun = &next
	}

	if err := e.schedules.CompleteRun(ctx, desc.UserID, desc.JobType, completedAt, nextRun, failures); err != nil {
		log.Error().Err(err).Msg("Failed to complete schedule after run")
	}
}
