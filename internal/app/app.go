package app

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fieldsync/internal/browser"
	"github.com/ternarybob/fieldsync/internal/common"
	"github.com/ternarybob/fieldsync/internal/jobs"
	"github.com/ternarybob/fieldsync/internal/models"
	"github.com/ternarybob/fieldsync/internal/scraper"
	"github.com/ternarybob/fieldsync/internal/services/scheduler"
	badgerstore "github.com/ternarybob/fieldsync/internal/storage/badger"
	"github.com/ternarybob/fieldsync/internal/storage/sqlite"
)

// App holds all application components and dependencies.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	SQLite *sqlite.Manager
	Badger *badgerstore.Manager

	Sessions     *browser.Manager
	Orchestrator *scraper.Orchestrator
	Registry     *jobs.Registry
	Scheduler    *scheduler.Service
}

// New initializes the application with all dependencies.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	sqliteManager, err := sqlite.NewManager(cfg.Storage.SQLite, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sqlite storage: %w", err)
	}
	app.SQLite = sqliteManager

	badgerManager, err := badgerstore.NewManager(cfg.Storage.Badger, logger)
	if err != nil {
		sqliteManager.Close()
		return nil, fmt.Errorf("failed to initialize badger storage: %w", err)
	}
	app.Badger = badgerManager

	app.Sessions = browser.NewManager(cfg.Portal, logger)
	app.Orchestrator = scraper.NewOrchestrator(cfg.Portal, cfg.Scraper,
		badgerManager.WorkOrders, badgerManager.Snapshots, logger)

	app.Registry = jobs.NewRegistry()
	scrapeExecutor := jobs.NewScrapeExecutor(
		sqliteManager.Credentials,
		app.Sessions,
		app.Orchestrator,
		sqliteManager.Schedules,
		sqliteManager.History,
		jobs.NewLogNotifier(logger),
		logger,
	)
	app.Registry.Register(models.ScheduleTypeWorkOrderScrape, scrapeExecutor)

	app.Scheduler = scheduler.NewService(cfg.Scheduler,
		sqliteManager.Schedules, sqliteManager.History, app.Registry, logger)

	return app, nil
}

// Start begins the scheduler poll loop.
func (a *App) Start() error {
	return a.Scheduler.Start()
}

// Close shuts everything down in dependency order: scheduler first so no
// new runs start, then sessions, then storage.
func (a *App) Close() {
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Scheduler stop failed")
		}
	}
	if a.Sessions != nil {
		if err := a.Sessions.Shutdown(); err != nil {
			a.Logger.Warn().Err(err).Msg("Session manager shutdown failed")
		}
	}
	if a.Badger != nil {
		if err := a.Badger.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Badger close failed")
		}
	}
	if a.SQLite != nil {
		if err := a.SQLite.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("SQLite close failed")
		}
	}
}
