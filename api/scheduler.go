/*
scheduler.go - Automated accrual and annual-reset scheduler

PURPOSE:
  Fires the monthly accrual batch and the daily annual-reset check without
  an external cron.

DESIGN:
  - A background goroutine ticks every CheckInterval
  - Each tick evaluates the wall clock in the configured timezone
  - Monthly accrual: on AccrualDay at or after AccrualHour, for the
    previous calendar month
  - Annual reset:    every day at or after ResetHour, for employees whose
    reset date is today
  - Each job fires at most once per slot ("accrual:2026-03",
    "reset:2026-04-01"); the ledger's idempotency keys make a repeat after
    restart harmless
  - Jobs are run through Jobs, so a manual HTTP trigger racing the
    scheduler shares one execution

USAGE:
  s := NewScheduler(jobs, loc, logger)
  s.Start()
  // ... later
  s.Stop()

SEE ALSO:
  - jobs.go:     singleflight-coalesced job runners
  - handlers.go: manual trigger endpoints
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-ledger/calendar"
)

// Scheduler runs the batch jobs on their calendar slots.
type Scheduler struct {
	Jobs          *Jobs
	Location      *time.Location
	CheckInterval time.Duration
	AccrualDay    int // day of month, 1-28
	AccrualHour   int
	ResetHour     int
	Enabled       bool
	Now           func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	fired  map[string]bool
	logger *zap.Logger
}

func NewScheduler(jobs *Jobs, loc *time.Location, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.L()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		Jobs:          jobs,
		Location:      loc,
		CheckInterval: 15 * time.Minute,
		AccrualDay:    1,
		AccrualHour:   2,
		ResetHour:     1,
		Enabled:       true,
		Now:           time.Now,
		fired:         make(map[string]bool),
		logger:        logger.Named("api.scheduler"),
	}
}

// Start begins the scheduler. It is a no-op when disabled.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info("scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run()

	s.logger.Info("scheduler started",
		zap.Duration("check_interval", s.CheckInterval),
		zap.Int("accrual_day", s.AccrualDay),
		zap.Int("accrual_hour", s.AccrualHour),
		zap.Int("reset_hour", s.ResetHour),
		zap.String("timezone", s.Location.String()))
}

// Stop stops the scheduler and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.ticker == nil {
		s.mu.Unlock()
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.ticker = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	s.Tick(context.Background())

	for {
		select {
		case <-s.ticker.C:
			s.Tick(context.Background())
		case <-s.stop:
			return
		}
	}
}

// Tick evaluates both jobs against the current time and runs the ones whose
// slot has opened. It returns the slot keys that fired.
func (s *Scheduler) Tick(ctx context.Context) []string {
	now := s.Now().In(s.Location)
	today := calendar.FromTime(now)
	var fired []string

	if now.Day() == s.AccrualDay && now.Hour() >= s.AccrualHour {
		prev := calendar.StartOfMonth(today.Year(), today.Month()).AddMonths(-1)
		slot := fmt.Sprintf("accrual:%04d-%02d", prev.Year(), prev.Month())
		if s.claim(slot) {
			fired = append(fired, slot)
			result, err := s.Jobs.Accrue(ctx, prev.Month(), prev.Year())
			if err != nil {
				s.release(slot)
				s.logger.Error("scheduled accrual failed", zap.String("slot", slot), zap.Error(err))
			} else {
				s.logger.Info("scheduled accrual complete",
					zap.String("slot", slot),
					zap.Int("processed", result.Processed),
					zap.Int("errors", len(result.Errors)))
			}
		}
	}

	if now.Hour() >= s.ResetHour {
		slot := "reset:" + today.String()
		if s.claim(slot) {
			fired = append(fired, slot)
			result, err := s.Jobs.ResetDue(ctx, today)
			if err != nil {
				s.release(slot)
				s.logger.Error("scheduled reset failed", zap.String("slot", slot), zap.Error(err))
			} else if result.Processed > 0 {
				s.logger.Info("scheduled reset complete",
					zap.String("slot", slot),
					zap.Int("reset", result.Reset),
					zap.Int("errors", len(result.Errors)))
			}
		}
	}
	return fired
}

// claim marks a slot as taken and reports whether it was free.
func (s *Scheduler) claim(slot string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired[slot] {
		return false
	}
	s.fired[slot] = true
	return true
}

// release frees a slot after a failed run so the next tick retries it.
func (s *Scheduler) release(slot string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fired, slot)
}
