package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Portal      PortalConfig    `toml:"portal"`
	Storage     StorageConfig   `toml:"storage"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Scraper     ScraperConfig   `toml:"scraper"`
	Logging     LoggingConfig   `toml:"logging"`
}

// PortalConfig describes the external work-management portal and the
// browser settings used to drive it.
type PortalConfig struct {
	BaseURL           string        `toml:"base_url" validate:"required,url"`
	LoginPath         string        `toml:"login_path" validate:"required"`
	WorkOrdersPath    string        `toml:"work_orders_path" validate:"required"`
	UserAgent         string        `toml:"user_agent"`
	Headless          bool          `toml:"headless"`
	DisableGPU        bool          `toml:"disable_gpu"`
	NoSandbox         bool          `toml:"no_sandbox"`
	LoginTimeout      time.Duration `toml:"login_timeout"`      // Bounded wait for the post-submit landing page
	NavigationTimeout time.Duration `toml:"navigation_timeout"` // Per-navigation wait budget
	NavigationDelay   time.Duration `toml:"navigation_delay"`   // Minimum delay between page loads
}

type StorageConfig struct {
	SQLite SQLiteConfig `toml:"sqlite"`
	Badger BadgerConfig `toml:"badger"`
}

// SQLiteConfig represents the relational store holding schedules,
// run history and portal credentials.
type SQLiteConfig struct {
	Path string `toml:"path" validate:"required"`
}

// BadgerConfig represents the document store holding work orders and
// page snapshots.
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"`
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type SchedulerConfig struct {
	PollInterval         string `toml:"poll_interval" validate:"required"` // e.g. "1m" - poll tick cadence
	HistoryRetentionDays int    `toml:"history_retention_days" validate:"gte=0"`
}

type ScraperConfig struct {
	PageSize         int           `toml:"page_size"`         // Preferred list page size (best effort)
	MaxPages         int           `toml:"max_pages"`         // Pagination safety bound
	NavRetries       int           `toml:"nav_retries"`       // Bounded retries for transient navigation failures
	NavRetryBackoff  time.Duration `toml:"nav_retry_backoff"` // Initial backoff between navigation retries
	ArchiveSnapshots bool          `toml:"archive_snapshots"` // Store markdown snapshots of detail pages
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability;
// only user-facing settings should be exposed in fieldsync.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Portal: PortalConfig{
			BaseURL:           "https://portal.example.com",
			LoginPath:         "/login",
			WorkOrdersPath:    "/workorders",
			UserAgent:         "Fieldsync/1.0",
			Headless:          true,
			DisableGPU:        true,
			NoSandbox:         true,
			LoginTimeout:      30 * time.Second,
			NavigationTimeout: 20 * time.Second,
			NavigationDelay:   500 * time.Millisecond,
		},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path: "./data/fieldsync.db",
			},
			Badger: BadgerConfig{
				Path:           "./data/badger",
				ResetOnStartup: false,
			},
		},
		Scheduler: SchedulerConfig{
			PollInterval:         "1m",
			HistoryRetentionDays: 90,
		},
		Scraper: ScraperConfig{
			PageSize:         100,
			MaxPages:         50,
			NavRetries:       3,
			NavRetryBackoff:  2 * time.Second,
			ArchiveSnapshots: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier
// files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FIELDSYNC_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if baseURL := os.Getenv("FIELDSYNC_PORTAL_BASE_URL"); baseURL != "" {
		config.Portal.BaseURL = baseURL
	}
	if headless := os.Getenv("FIELDSYNC_PORTAL_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Portal.Headless = h
		}
	}
	if sqlitePath := os.Getenv("FIELDSYNC_SQLITE_PATH"); sqlitePath != "" {
		config.Storage.SQLite.Path = sqlitePath
	}
	if badgerPath := os.Getenv("FIELDSYNC_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if pollInterval := os.Getenv("FIELDSYNC_SCHEDULER_POLL_INTERVAL"); pollInterval != "" {
		config.Scheduler.PollInterval = pollInterval
	}
	if retention := os.Getenv("FIELDSYNC_SCHEDULER_HISTORY_RETENTION_DAYS"); retention != "" {
		if d, err := strconv.Atoi(retention); err == nil {
			config.Scheduler.HistoryRetentionDays = d
		}
	}
	if level := os.Getenv("FIELDSYNC_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// Validate checks the configuration for structural problems before startup.
func Validate(config *Config) error {
	v := validator.New()
	if err := v.Struct(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := time.ParseDuration(config.Scheduler.PollInterval); err != nil {
		return fmt.Errorf("invalid scheduler poll_interval %q: %w", config.Scheduler.PollInterval, err)
	}

	return nil
}

// PollInterval returns the parsed poll tick cadence.
// Validate guarantees the string parses.
func (c *Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.Scheduler.PollInterval)
	if err != nil {
		return time.Minute
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
