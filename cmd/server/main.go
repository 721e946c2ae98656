/*
main.go - Application entry point

PURPOSE:
  Starts the leave ledger server: loads configuration, opens the SQLite
  store, seeds settings, wires the services and serves HTTP until
  SIGINT/SIGTERM.

STARTUP SEQUENCE:
  1. Load configuration (defaults, YAML, .env, LEAVE_*, flags)
  2. Build the zap logger and install it globally
  3. Open and migrate the SQLite store
  4. Apply the settings document, if configured
  5. Wire ledger, accrual engine, reset service, CCL workflow
  6. Start the scheduler and the HTTP server

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for an in-flight job)
  2. Stop accepting connections, drain requests (http.shutdown_timeout)
  3. Close the database

EXAMPLES:
  ./server --config=/etc/leave/leave.yaml
  ./server --db=":memory:" --dev --log-level=debug
  LEAVE_PORT=3000 LEAVE_TIMEZONE=Asia/Kolkata ./server

SEE ALSO:
  - config/config.go:       configuration sources
  - api/server.go:          router configuration
  - store/sqlite/sqlite.go: database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/api"
	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/ccl"
	"github.com/warp/leave-ledger/config"
	"github.com/warp/leave-ledger/factory"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
	"github.com/warp/leave-ledger/settings"
	"github.com/warp/leave-ledger/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	logger, err := cfg.Logger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SettingsFile != "" {
		if err := seedSettings(ctx, cfg.SettingsFile, store); err != nil {
			return err
		}
		logger.Info("settings applied", zap.String("file", cfg.SettingsFile))
	}

	loc := cfg.Location()
	l := ledger.New(store, ledger.WithLocation(loc))
	resolver := calendar.NewResolver(cfg.Cycle, cfg.FinancialYear)
	cascade := settings.NewCascade(store)

	engine := leave.NewEngine(l, store, cascade, resolver, logger)
	engine.Attendance = store
	engine.CompOffs = store
	engine.Runs = store

	resets := leave.NewResetService(l, store, cascade, resolver, logger)
	resets.Runs = store

	jobs := api.NewJobs(engine, resets)
	workflow := ccl.NewService(store, store, store, l, cascade, logger)
	balances := leave.NewBalanceService(l, store, resolver, logger)

	handler := api.NewHandler(store, l, jobs, balances, workflow, cascade, resolver, loc, logger)
	router := api.NewRouter(handler, api.RouterOptions{AllowedOrigins: cfg.HTTP.CORSOrigins})

	scheduler := api.NewScheduler(jobs, loc, logger)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.CheckInterval = cfg.Scheduler.CheckInterval
	scheduler.AccrualDay = cfg.Scheduler.AccrualDay
	scheduler.AccrualHour = cfg.Scheduler.AccrualHour
	scheduler.ResetHour = cfg.Scheduler.ResetHour
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  2 * cfg.HTTP.ReadTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.HTTP.Port),
			zap.String("db", cfg.Database.Path),
			zap.String("timezone", loc.String()),
			zap.Bool("custom_cycle", resolver.IsCustomCycle()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func seedSettings(ctx context.Context, path string, w factory.LayerWriter) error {
	f := factory.NewSettingsFactory()
	doc, err := f.LoadFile(path)
	if err != nil {
		return fmt.Errorf("settings file: %w", err)
	}
	if err := f.Apply(ctx, doc, w); err != nil {
		return fmt.Errorf("apply settings: %w", err)
	}
	return nil
}
