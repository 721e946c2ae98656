package api

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/leave"
)

// Jobs runs the batch jobs for both the HTTP triggers and the scheduler.
// Concurrent calls for the same job and period share one execution.
type Jobs struct {
	Engine *leave.Engine
	Resets *leave.ResetService

	group singleflight.Group
}

func NewJobs(engine *leave.Engine, resets *leave.ResetService) *Jobs {
	return &Jobs{Engine: engine, Resets: resets}
}

// Accrue posts monthly accruals for the cycle ending in month/year.
func (j *Jobs) Accrue(ctx context.Context, month time.Month, year int) (leave.RunResult, error) {
	return do[leave.RunResult](&j.group, fmt.Sprintf("accrual:%04d-%02d", year, month), func() (leave.RunResult, error) {
		return j.Engine.PostMonthlyAccruals(ctx, month, year)
	})
}

// ExpireCCL runs only the CCL expiry sweep for the cycle ending in month/year.
func (j *Jobs) ExpireCCL(ctx context.Context, month time.Month, year int) (leave.RunResult, error) {
	return do[leave.RunResult](&j.group, fmt.Sprintf("ccl-expiry:%04d-%02d", year, month), func() (leave.RunResult, error) {
		return j.Engine.ExpireCompOffs(ctx, j.Engine.Calendar.CycleForMonth(year, month))
	})
}

// Reset forces the annual reset for every active employee on date.
func (j *Jobs) Reset(ctx context.Context, date calendar.Date) (leave.ResetResult, error) {
	return do[leave.ResetResult](&j.group, "reset:"+date.String(), func() (leave.ResetResult, error) {
		return j.Resets.Run(ctx, date)
	})
}

// ResetDue resets the employees whose reset date is today.
func (j *Jobs) ResetDue(ctx context.Context, today calendar.Date) (leave.ResetResult, error) {
	return do[leave.ResetResult](&j.group, "reset-due:"+today.String(), func() (leave.ResetResult, error) {
		return j.Resets.RunIfDue(ctx, today)
	})
}

func do[T any](g *singleflight.Group, key string, fn func() (T, error)) (T, error) {
	v, err, _ := g.Do(key, func() (any, error) { return fn() })
	out, _ := v.(T)
	return out, err
}
