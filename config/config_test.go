package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load([]string{"--env-file", ""})
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "leave.db", cfg.Database.Path)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.True(t, cfg.Scheduler.Enabled)
}

func TestLoad_Precedence(t *testing.T) {
	// GIVEN: a file, a dotenv file, process env and flags all setting values
	file := writeFile(t, "leave.yaml", `
http:
  port: 9000
database:
  path: /var/lib/leave/file.db
timezone: Asia/Kolkata
payroll_cycle:
  start_day: 26
  end_day: 25
financial_year:
  start_month: 4
  start_day: 1
scheduler:
  check_interval: 5m
  accrual_day: 2
`)
	envFile := writeFile(t, ".env", "LEAVE_DB=/tmp/dotenv.db\nLEAVE_LOG_LEVEL=debug\n")
	t.Setenv("LEAVE_CONFIG", file)
	t.Setenv("LEAVE_LOG_LEVEL", "warn")
	t.Cleanup(func() { os.Unsetenv("LEAVE_DB") })

	// WHEN: loading with a port flag
	cfg, err := Load([]string{"--env-file", envFile, "--port", "9100"})
	require.NoError(t, err)

	// THEN: flags > process env > dotenv > file > defaults
	assert.Equal(t, 9100, cfg.HTTP.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "/tmp/dotenv.db", cfg.Database.Path)
	assert.Equal(t, 26, cfg.Cycle.StartDay)
	assert.Equal(t, time.April, cfg.FinancialYear.StartMonth)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.CheckInterval)
	assert.Equal(t, 2, cfg.Scheduler.AccrualDay)
	assert.Equal(t, 2, cfg.Scheduler.AccrualHour, "unset file keys keep defaults")
	assert.Equal(t, "Asia/Kolkata", cfg.Location().String())
}

func TestLoad_FlagsOverrideSchedulerAndCORS(t *testing.T) {
	cfg, err := Load([]string{"--env-file", "", "--scheduler=false", "--cors-origins", "https://hr.example.com,https://admin.example.com"})
	require.NoError(t, err)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, []string{"https://hr.example.com", "https://admin.example.com"}, cfg.HTTP.CORSOrigins)
}

func TestLoad_RejectsUnknownFileKeys(t *testing.T) {
	file := writeFile(t, "bad.yaml", "http:\n  prot: 9000\n")
	_, err := Load([]string{"--env-file", "", "--config", file})
	assert.Error(t, err)
}

func TestLoad_RejectsBadEnv(t *testing.T) {
	t.Setenv("LEAVE_PORT", "eighty")
	_, err := Load([]string{"--env-file", ""})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate_CollectsProblems(t *testing.T) {
	cfg := Defaults()
	cfg.HTTP.Port = 0
	cfg.Timezone = "Mars/Olympus"
	cfg.Log.Level = "loud"
	cfg.Scheduler.AccrualDay = 31

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	for _, want := range []string{"http.port", "timezone", "log.level", "accrual_day"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLogger_BuildsForBothModes(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	logger, err := cfg.Logger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	cfg.Log.Development = true
	cfg.Log.Level = "debug"
	logger, err = cfg.Logger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))
}
