package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSyncConfig_Defaults(t *testing.T) {
	cfg, err := LoadSyncConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSyncConfig(), *cfg)

	cfg, err = LoadSyncConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSyncConfig(), *cfg)
}

func TestLoadSyncConfig_PartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("horizon_months: 6\nworkers: 8\nschedule: \"*/30 * * * *\"\n"), 0o600))

	cfg, err := LoadSyncConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.HorizonMonths)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "*/30 * * * *", cfg.Schedule)
	assert.Equal(t, 30, cfg.SyncWindowDays)
	assert.Equal(t, 4, cfg.MaxAttempts)
	assert.Equal(t, 180, cfg.RetentionWindowDays)
}

func TestLoadSyncConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: [1, 2"), 0o600))

	_, err := LoadSyncConfig(path)
	assert.ErrorContains(t, err, "failed to parse sync config")
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URI", "postgres://localhost/meetups")
	t.Setenv("GOOGLE_CALENDAR_ID", "team@group.calendar.google.com")
	t.Setenv("TIMEZONE", "")
	t.Setenv("AI_MODEL", "")
	t.Setenv("SYNC_CONFIG", "")
	t.Setenv("SERVE_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/meetups", cfg.DatabaseURI)
	assert.Equal(t, "Asia/Tokyo", cfg.Timezone)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.AIModel)
	assert.Equal(t, ":8080", cfg.ServeAddr)
	assert.Equal(t, 3, cfg.Sync.HorizonMonths)
	assert.NoError(t, cfg.Validate(NeedDatabase|NeedCalendar))
}

func TestValidate(t *testing.T) {
	cfg := &Config{Timezone: "Asia/Tokyo"}
	err := cfg.Validate(NeedDatabase | NeedCalendar)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URI is required")
	assert.Contains(t, err.Error(), "GOOGLE_CALENDAR_ID is required")

	cfg.DatabaseURI = "postgres://x"
	assert.NoError(t, cfg.Validate(NeedDatabase))

	cfg.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate(NeedDatabase))
}
