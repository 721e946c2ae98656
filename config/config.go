/*
Package config loads the server configuration.

PRECEDENCE (lowest to highest):
  1. Built-in defaults (Defaults)
  2. YAML file named by --config or LEAVE_CONFIG
  3. Environment variables, after loading --env-file (.env) with godotenv.
     Variables already set in the process environment win over the file.
  4. Command-line flags that were explicitly set

ENVIRONMENT:
  LEAVE_CONFIG             YAML file path
  LEAVE_PORT               HTTP port
  LEAVE_DB                 SQLite path (":memory:" for an in-memory DB)
  LEAVE_TIMEZONE           IANA zone for "today" and the scheduler
  LEAVE_LOG_LEVEL          debug | info | warn | error
  LEAVE_LOG_DEVELOPMENT    true for console logs
  LEAVE_CORS_ORIGINS       comma-separated origins
  LEAVE_SETTINGS_FILE      settings document seeded at startup
  LEAVE_SCHEDULER_ENABLED  false disables the in-process scheduler
  LEAVE_CYCLE_START_DAY    payroll cycle start day
  LEAVE_CYCLE_END_DAY      payroll cycle end day

SEE ALSO:
  - cmd/server/main.go: consumer
  - factory/settings.go: the settings document format
*/
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zones resolve in minimal containers

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/warp/leave-ledger/calendar"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// =============================================================================
// TYPES
// =============================================================================

type Config struct {
	HTTP          HTTPConfig                   `yaml:"http"`
	Database      DatabaseConfig               `yaml:"database"`
	Timezone      string                       `yaml:"timezone"`
	Log           LogConfig                    `yaml:"log"`
	Cycle         calendar.CycleConfig         `yaml:"payroll_cycle"`
	FinancialYear calendar.FinancialYearConfig `yaml:"financial_year"`
	Scheduler     SchedulerConfig              `yaml:"scheduler"`

	// SettingsFile is a YAML or JSON settings document applied at startup.
	SettingsFile string `yaml:"settings_file"`

	location *time.Location
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type SchedulerConfig struct {
	Enabled       bool          `yaml:"enabled"`
	CheckInterval time.Duration `yaml:"check_interval"`
	AccrualDay    int           `yaml:"accrual_day"`
	AccrualHour   int           `yaml:"accrual_hour"`
	ResetHour     int           `yaml:"reset_hour"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:5173", "http://localhost:8080"},
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{Path: "leave.db"},
		Timezone: "UTC",
		Log:      LogConfig{Level: "info"},
		Cycle:    calendar.CycleConfig{StartDay: 1},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			CheckInterval: 15 * time.Minute,
			AccrualDay:    1,
			AccrualHour:   2,
			ResetHour:     1,
		},
	}
}

// Location returns the loaded timezone. Valid after Load or Validate.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// =============================================================================
// LOADING
// =============================================================================

type flagValues struct {
	fs *pflag.FlagSet

	configPath   string
	envFile      string
	port         int
	db           string
	timezone     string
	logLevel     string
	dev          bool
	cors         []string
	settingsFile string
	scheduler    bool
}

func newFlags(name string) *flagValues {
	f := &flagValues{fs: pflag.NewFlagSet(name, pflag.ContinueOnError)}
	f.fs.StringVar(&f.configPath, "config", "", "YAML config file (env LEAVE_CONFIG)")
	f.fs.StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before reading LEAVE_* variables")
	f.fs.IntVarP(&f.port, "port", "p", 0, "HTTP server port")
	f.fs.StringVar(&f.db, "db", "", `SQLite database path (":memory:" for in-memory)`)
	f.fs.StringVar(&f.timezone, "timezone", "", "IANA timezone for dates and the scheduler")
	f.fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	f.fs.BoolVar(&f.dev, "dev", false, "development logging")
	f.fs.StringSliceVar(&f.cors, "cors-origins", nil, "allowed CORS origins")
	f.fs.StringVar(&f.settingsFile, "settings", "", "settings document seeded at startup")
	f.fs.BoolVar(&f.scheduler, "scheduler", true, "run the in-process scheduler")
	return f
}

// Load resolves the configuration from defaults, file, environment and the
// given command-line arguments (without the program name).
func Load(args []string) (*Config, error) {
	flags := newFlags("leave-server")
	if err := flags.fs.Parse(args); err != nil {
		return nil, err
	}

	if flags.envFile != "" {
		if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", flags.envFile, err)
		}
	}

	cfg := Defaults()

	path := flags.configPath
	if path == "" {
		path = os.Getenv("LEAVE_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, v)
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, key, v)
		}
		*dst = b
		return nil
	}

	str("LEAVE_DB", &c.Database.Path)
	str("LEAVE_TIMEZONE", &c.Timezone)
	str("LEAVE_LOG_LEVEL", &c.Log.Level)
	str("LEAVE_SETTINGS_FILE", &c.SettingsFile)
	if v, ok := lookup("LEAVE_CORS_ORIGINS"); ok && v != "" {
		c.HTTP.CORSOrigins = splitList(v)
	}
	for _, err := range []error{
		num("LEAVE_PORT", &c.HTTP.Port),
		num("LEAVE_CYCLE_START_DAY", &c.Cycle.StartDay),
		num("LEAVE_CYCLE_END_DAY", &c.Cycle.EndDay),
		flag("LEAVE_LOG_DEVELOPMENT", &c.Log.Development),
		flag("LEAVE_SCHEDULER_ENABLED", &c.Scheduler.Enabled),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyFlags(f *flagValues) {
	changed := f.fs.Changed
	if changed("port") {
		c.HTTP.Port = f.port
	}
	if changed("db") {
		c.Database.Path = f.db
	}
	if changed("timezone") {
		c.Timezone = f.timezone
	}
	if changed("log-level") {
		c.Log.Level = f.logLevel
	}
	if changed("dev") {
		c.Log.Development = f.dev
	}
	if changed("cors-origins") {
		c.HTTP.CORSOrigins = f.cors
	}
	if changed("settings") {
		c.SettingsFile = f.settingsFile
	}
	if changed("scheduler") {
		c.Scheduler.Enabled = f.scheduler
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks ranges and loads the timezone.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.HTTP.Port >= 1 && c.HTTP.Port <= 65535, "http.port %d out of range", c.HTTP.Port)
	check(c.Database.Path != "", "database.path required")
	check(c.Cycle.StartDay >= 1 && c.Cycle.StartDay <= 31, "payroll_cycle.start_day %d out of range 1-31", c.Cycle.StartDay)
	check(c.Cycle.EndDay >= 0 && c.Cycle.EndDay <= 31, "payroll_cycle.end_day %d out of range 0-31", c.Cycle.EndDay)
	check(c.FinancialYear.StartMonth >= 0 && c.FinancialYear.StartMonth <= 12,
		"financial_year.start_month %d out of range 1-12", c.FinancialYear.StartMonth)
	check(c.FinancialYear.StartDay >= 0 && c.FinancialYear.StartDay <= 31,
		"financial_year.start_day %d out of range 1-31", c.FinancialYear.StartDay)
	check(c.Scheduler.AccrualDay >= 1 && c.Scheduler.AccrualDay <= 28,
		"scheduler.accrual_day %d out of range 1-28", c.Scheduler.AccrualDay)
	check(c.Scheduler.AccrualHour >= 0 && c.Scheduler.AccrualHour <= 23,
		"scheduler.accrual_hour %d out of range 0-23", c.Scheduler.AccrualHour)
	check(c.Scheduler.ResetHour >= 0 && c.Scheduler.ResetHour <= 23,
		"scheduler.reset_hour %d out of range 0-23", c.Scheduler.ResetHour)
	check(!c.Scheduler.Enabled || c.Scheduler.CheckInterval >= time.Second,
		"scheduler.check_interval %s below 1s", c.Scheduler.CheckInterval)

	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		problems = append(problems, fmt.Sprintf("log.level %q unknown", c.Log.Level))
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		problems = append(problems, fmt.Sprintf("timezone %q: %v", c.Timezone, err))
	} else {
		c.location = loc
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// =============================================================================
// LOGGER
// =============================================================================

// Logger builds the process logger: JSON in production, console in
// development.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
