package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURI         string
	CalendarID          string
	CalendarCredentials string
	AIAPIKey            string
	AIBaseURL           string
	AIModel             string
	Timezone            string
	SyncConfigPath      string
	ServeAddr           string

	Sync SyncConfig
}

// SyncConfig holds the tuning knobs read from the optional YAML file.
type SyncConfig struct {
	// HorizonMonths is how far ahead instances are materialized.
	HorizonMonths int `yaml:"horizon_months"`
	// SyncWindowDays is the length of the reconciled window starting today.
	SyncWindowDays int `yaml:"sync_window_days"`
	// Schedule is the cron expression of the serve loop.
	Schedule string `yaml:"schedule"`
	// Workers bounds concurrent per-community passes.
	Workers int `yaml:"workers"`

	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
	MaxAttempts   int     `yaml:"max_attempts"`

	// Fallback remote search of the retention cleaner.
	RetentionWindowDays int `yaml:"retention_window_days"`
	RetentionYears      int `yaml:"retention_years"`
}

// DefaultSyncConfig returns the tuning used when no YAML file is given.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		HorizonMonths:       3,
		SyncWindowDays:      30,
		Schedule:            "0 4 * * *",
		Workers:             4,
		RatePerSecond:       5,
		Burst:               5,
		MaxAttempts:         4,
		RetentionWindowDays: 180,
		RetentionYears:      3,
	}
}

// Normalize fills zero values with defaults so partial files still work.
func (s *SyncConfig) Normalize() {
	d := DefaultSyncConfig()
	if s.HorizonMonths <= 0 {
		s.HorizonMonths = d.HorizonMonths
	}
	if s.SyncWindowDays <= 0 {
		s.SyncWindowDays = d.SyncWindowDays
	}
	if s.Schedule == "" {
		s.Schedule = d.Schedule
	}
	if s.Workers <= 0 {
		s.Workers = d.Workers
	}
	if s.RatePerSecond <= 0 {
		s.RatePerSecond = d.RatePerSecond
	}
	if s.Burst <= 0 {
		s.Burst = d.Burst
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = d.MaxAttempts
	}
	if s.RetentionWindowDays <= 0 {
		s.RetentionWindowDays = d.RetentionWindowDays
	}
	if s.RetentionYears <= 0 {
		s.RetentionYears = d.RetentionYears
	}
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional in production
	}

	cfg := &Config{
		DatabaseURI:         os.Getenv("DATABASE_URI"),
		CalendarID:          os.Getenv("GOOGLE_CALENDAR_ID"),
		CalendarCredentials: os.Getenv("GOOGLE_CALENDAR_CREDENTIALS"),
		AIAPIKey:            os.Getenv("AI_API_KEY"),
		AIBaseURL:           getEnvOrDefault("AI_BASE_URL", "https://openrouter.ai/api/v1"),
		AIModel:             getEnvOrDefault("AI_MODEL", "openai/gpt-4o-mini"),
		Timezone:            getEnvOrDefault("TIMEZONE", "Asia/Tokyo"),
		SyncConfigPath:      os.Getenv("SYNC_CONFIG"),
		ServeAddr:           getEnvOrDefault("SERVE_ADDR", ":8080"),
	}

	sync, err := LoadSyncConfig(cfg.SyncConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.Sync = *sync
	return cfg, nil
}

// LoadSyncConfig reads the YAML tuning file. An empty path or a missing file
// yields the defaults.
func LoadSyncConfig(path string) (*SyncConfig, error) {
	sync := DefaultSyncConfig()
	if path == "" {
		return &sync, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &sync, nil
		}
		return nil, fmt.Errorf("failed to read sync config: %w", err)
	}

	sync = SyncConfig{}
	if err := yaml.Unmarshal(data, &sync); err != nil {
		return nil, fmt.Errorf("failed to parse sync config %s: %w", path, err)
	}
	sync.Normalize()
	return &sync, nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Requirement names a credential a command needs.
type Requirement int

const (
	NeedDatabase Requirement = 1 << iota
	NeedCalendar
)

// Validate reports missing credentials for the requested features. These are
// the only fatal errors of the sync commands.
func (c *Config) Validate(need Requirement) error {
	var errs []error
	if need&NeedDatabase != 0 && c.DatabaseURI == "" {
		errs = append(errs, errors.New("DATABASE_URI is required"))
	}
	if need&NeedCalendar != 0 && c.CalendarID == "" {
		errs = append(errs, errors.New("GOOGLE_CALENDAR_ID is required"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
