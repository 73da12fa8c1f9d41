package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fieldsync/internal/common"
	"github.com/ternarybob/fieldsync/internal/interfaces"
	"github.com/ternarybob/fieldsync/internal/models"
)

// Service drives the recurring-extraction poll loop and owns schedule
// management. Due rows are claimed through storage before execution, so
// a second poller (or an overlapping tick) can never double-fire a row.
type Service struct {
	config    common.SchedulerConfig
	schedules interfaces.ScheduleStorage
	history   interfaces.RunHistoryStorage
	resolver  interfaces.JobResolver
	logger    arbor.ILogger
	validate  *validator.Validate

	// now is the clock; tests substitute it.
	now func() time.Time

	mu         sync.Mutex
	cron       *cron.Cron
	running    bool
	stopCancel context.CancelFunc
	lastErrors map[string]string
}

// Compile-time interface check.
var _ interfaces.SchedulerService = (*Service)(nil)

// NewService creates the scheduler service.
func NewService(
	config common.SchedulerConfig,
	schedules interfaces.ScheduleStorage,
	history interfaces.RunHistoryStorage,
	resolver interfaces.JobResolver,
	logger arbor.ILogger,
) *Service {
	return &Service{
		config:     config,
		schedules:  schedules,
		history:    history,
		resolver:   resolver,
		logger:     logger,
		validate:   validator.New(),
		now:        time.Now,
		lastErrors: make(map[string]string),
	}
}

// Start releases claims orphaned by the previous process, prunes old
// history and begins polling.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.schedules.ReleaseOrphanedClaims(ctx); err != nil {
		return fmt.Errorf("failed to release orphaned claims: %w", err)
	}

	if s.config.HistoryRetentionDays > 0 {
		cutoff := s.now().AddDate(0, 0, -s.config.HistoryRetentionDays)
		if _, err := s.history.PruneBefore(ctx, cutoff); err != nil {
			// Retention is housekeeping; a failed prune does not block startup.
			s.logger.Warn().Err(err).Msg("History prune failed at startup")
		}
	}

	runCtx, stopCancel := context.WithCancel(context.Background())
	s.stopCancel = stopCancel

	s.cron = cron.New()
	spec := "@every " + s.config.PollInterval
	if _, err := s.cron.AddFunc(spec, func() { s.tick(runCtx) }); err != nil {
		stopCancel()
		return fmt.Errorf("invalid poll interval %q: %w", s.config.PollInterval, err)
	}
	s.cron.Start()
	s.running = true

	s.logger.Info().Str("poll_interval", s.config.PollInterval).Msg("Scheduler started")
	return nil
}

// Stop halts polling and waits for an in-flight tick to finish.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}

	stopCtx := s.cron.Stop()
	if s.stopCancel != nil {
		s.stopCancel()
	}

	select {
	case <-stopCtx.Done():
	case <-time.After(60 * time.Second):
		s.logger.Warn().Msg("Timed out waiting for in-flight run during shutdown")
	}

	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning reports whether the poll loop is active.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// tick claims and executes every due schedule sequentially. One slow
// user delays the others by design; runs are browser-heavy and the
// process budgets for one browser at a time.
func (s *Service) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("panic", fmt.Sprintf("%v", r)).Msg("Recovered from panic in scheduler tick")
		}
	}()

	now := s.now()
	due, err := s.schedules.ListDue(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list due schedules")
		return
	}

	for _, schedule := range due {
		if ctx.Err() != nil {
			return
		}

		claimed, err := s.schedules.Claim(ctx, schedule.UserID, schedule.Type)
		if err != nil {
			s.logger.Error().
				Str("user_id", schedule.UserID).
				Err(err).
				Msg("Failed to claim due schedule")
			continue
		}
		if !claimed {
			// Another claimer won the row since ListDue.
			continue
		}

		s.execute(ctx, schedule, now)
	}
}

// execute resolves and runs one claimed schedule.
func (s *Service) execute(ctx context.Context, schedule *models.Schedule, now time.Time) {
	trigger := schedule.PendingTrigger
	if trigger == "" {
		trigger = models.TriggerScheduled
	}

	executor, err := s.resolver.Resolve(schedule.Type)
	if err != nil {
		// No executor registered is a deployment fault, not the user's.
		// The claim still has to be released and the run recorded.
		s.logger.Error().
			Str("user_id", schedule.UserID).
			Str("schedule_type", string(schedule.Type)).
			Err(err).
			Msg("No executor for schedule type")
		s.recordUnresolvable(ctx, schedule, trigger, now, err)
		return
	}

	outcome := executor.Execute(ctx, models.JobDescriptor{
		UserID:  schedule.UserID,
		JobType: schedule.Type,
		Trigger: trigger,
	})

	key := statusKey(schedule.UserID, schedule.Type)
	s.mu.Lock()
	if outcome.Success {
		delete(s.lastErrors, key)
	} else {
		s.lastErrors[key] = outcome.Error
	}
	s.mu.Unlock()

	s.logger.Info().
		Str("user_id", schedule.UserID).
		Str("run_id", outcome.RunID).
		Bool("success", outcome.Success).
		Int("items", outcome.ItemsProcessed).
		Msg("Schedule run finished")
}

// recordUnresolvable writes the audit row and releases the claim when no
// executor could even start.
func (s *Service) recordUnresolvable(ctx context.Context, schedule *models.Schedule, trigger models.TriggerType, now time.Time, cause error) {
	completed := s.now()
	run := &models.RunHistory{
		ID:           common.NewRunID(),
		UserID:       schedule.UserID,
		ScheduleType: schedule.Type,
		StartedAt:    now,
		CompletedAt:  &completed,
		Success:      false,
		ErrorMessage: cause.Error(),
		TriggerType:  trigger,
	}
	if err := s.history.Append(ctx, run); err != nil {
		s.logger.Error().Err(err).Msg("Failed to append run history")
	}

	next := RepairOverdue(NextRun(now, schedule.Interval(), schedule.ActiveHours),
		s.now(), schedule.Interval(), schedule.ActiveHours)
	if err := s.schedules.CompleteRun(ctx, schedule.UserID, schedule.Type,
		now, &next, schedule.ConsecutiveFailures+1); err != nil {
		s.logger.Error().Err(err).Msg("Failed to release claim after unresolvable run")
	}
}

// CreateSchedule creates the single schedule row for (user, type). The
// first run lands one interval out, snapped into the window.
func (s *Service) CreateSchedule(ctx context.Context, req *interfaces.ScheduleRequest) (*models.Schedule, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	existing, err := s.schedules.Get(ctx, req.UserID, req.ScheduleType)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("schedule already exists for user %s type %s", req.UserID, req.ScheduleType)
	}

	schedule := &models.Schedule{
		UserID:        req.UserID,
		Type:          req.ScheduleType,
		IntervalHours: req.IntervalHours,
		ActiveHours:   req.ActiveHours,
		Enabled:       req.Enabled,
	}
	if req.Enabled {
		next := NextRun(s.now(), schedule.Interval(), schedule.ActiveHours)
		schedule.NextRun = &next
	}

	if err := s.schedules.Save(ctx, schedule); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", req.UserID).
		Str("schedule_type", string(req.ScheduleType)).
		Float64("interval_hours", req.IntervalHours).
		Bool("enabled", req.Enabled).
		Msg("Schedule created")
	return schedule, nil
}

// UpdateSchedule rewrites the settings of an existing row and recomputes
// next_run under the new interval and window.
func (s *Service) UpdateSchedule(ctx context.Context, req *interfaces.ScheduleRequest) (*models.Schedule, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	schedule, err := s.schedules.Get(ctx, req.UserID, req.ScheduleType)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, fmt.Errorf("no schedule for user %s type %s", req.UserID, req.ScheduleType)
	}

	schedule.IntervalHours = req.IntervalHours
	schedule.ActiveHours = req.ActiveHours
	schedule.Enabled = req.Enabled

	if !req.Enabled {
		// Disabled rows carry no next run at all.
		schedule.NextRun = nil
	} else {
		now := s.now()
		base := now
		if schedule.LastRun != nil {
			base = *schedule.LastRun
		}
		next := RepairOverdue(NextRun(base, schedule.Interval(), schedule.ActiveHours),
			now, schedule.Interval(), schedule.ActiveHours)
		schedule.NextRun = &next
	}

	if err := s.schedules.Save(ctx, schedule); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", req.UserID).
		Bool("enabled", req.Enabled).
		Msg("Schedule updated")
	return schedule, nil
}

// RemoveSchedule deletes the row. History rows stay; the audit log is
// append-only.
func (s *Service) RemoveSchedule(ctx context.Context, userID string, scheduleType models.ScheduleType) error {
	if err := s.schedules.Delete(ctx, userID, scheduleType); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.lastErrors, statusKey(userID, scheduleType))
	s.mu.Unlock()
	return nil
}

// GetStatus returns the schedule row plus its live execution state.
func (s *Service) GetStatus(ctx context.Context, userID string, scheduleType models.ScheduleType) (*interfaces.ScheduleStatus, error) {
	schedule, err := s.schedules.Get(ctx, userID, scheduleType)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, fmt.Errorf("no schedule for user %s type %s", userID, scheduleType)
	}

	s.mu.Lock()
	lastError := s.lastErrors[statusKey(userID, scheduleType)]
	s.mu.Unlock()

	return &interfaces.ScheduleStatus{
		Schedule:  schedule,
		IsRunning: schedule.Running,
		LastError: lastError,
	}, nil
}

// GetHistory returns the run audit log for (user, type).
func (s *Service) GetHistory(ctx context.Context, userID string, scheduleType models.ScheduleType, since, until time.Time, limit int) ([]*models.RunHistory, error) {
	return s.history.List(ctx, userID, scheduleType, since, until, limit)
}

// Trigger marks the schedule due immediately. The next poll tick picks
// it up with trigger type "manual"; Trigger itself never runs the job.
func (s *Service) Trigger(ctx context.Context, userID string, scheduleType models.ScheduleType, opts interfaces.TriggerOptions) error {
	schedule, err := s.schedules.Get(ctx, userID, scheduleType)
	if err != nil {
		return err
	}
	if schedule == nil {
		return fmt.Errorf("no schedule for user %s type %s", userID, scheduleType)
	}
	if !schedule.Enabled {
		return fmt.Errorf("schedule for user %s is disabled", userID)
	}
	if schedule.Running {
		return fmt.Errorf("schedule for user %s is already running", userID)
	}

	now := s.now()
	if schedule.ActiveHours != nil && !opts.IgnoreActiveHours && !schedule.ActiveHours.Contains(now.Hour()) {
		return fmt.Errorf("current hour %d is outside active hours %d..%d",
			now.Hour(), schedule.ActiveHours.Start, schedule.ActiveHours.End)
	}

	if err := s.schedules.MarkDue(ctx, userID, scheduleType, now, models.TriggerManual); err != nil {
		return err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("schedule_type", string(scheduleType)).
		Msg("Manual trigger queued")
	return nil
}

func (s *Service) validateRequest(req *interfaces.ScheduleRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("invalid schedule request: %w", err)
	}
	return models.ValidateScheduleParams(req.IntervalHours, req.ActiveHours)
}

func statusKey(userID string, scheduleType models.ScheduleType) string {
	return userID + ":" + string(scheduleType)
}
