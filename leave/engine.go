package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/ledger"
	"github.com/warp/leave-ledger/settings"
)

// =============================================================================
// ENGINE - Monthly accrual batch
// =============================================================================

// Engine posts monthly CL/EL credits and CCL expiries.
type Engine struct {
	Ledger    *ledger.Ledger
	Directory Directory
	Settings  *settings.Cascade
	Calendar  *calendar.Resolver

	Attendance AttendanceSource // optional; nil counts zero attendance days
	CompOffs   CompOffStore     // optional; nil disables the expiry sweep
	Runs       RunRecorder      // optional

	Now    func() time.Time
	logger *zap.Logger
}

func NewEngine(l *ledger.Ledger, dir Directory, cascade *settings.Cascade, resolver *calendar.Resolver, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.L()
	}
	return &Engine{
		Ledger:    l,
		Directory: dir,
		Settings:  cascade,
		Calendar:  resolver,
		Now:       time.Now,
		logger:    logger.Named("leave.accrual"),
	}
}

// PostMonthlyAccruals runs the monthly batch for every active employee.
func (e *Engine) PostMonthlyAccruals(ctx context.Context, month time.Month, year int) (RunResult, error) {
	return e.run(ctx, month, year, "")
}

// PostMonthlyAccrualsFor runs the monthly batch for a single employee.
func (e *Engine) PostMonthlyAccrualsFor(ctx context.Context, employeeID string, month time.Month, year int) (RunResult, error) {
	if employeeID == "" {
		return RunResult{}, fmt.Errorf("employee id required")
	}
	return e.run(ctx, month, year, employeeID)
}

func (e *Engine) run(ctx context.Context, month time.Month, year int, only string) (RunResult, error) {
	if month < time.January || month > time.December {
		return RunResult{}, fmt.Errorf("invalid month %d", month)
	}
	started := e.Now()
	cycle := e.Calendar.CycleForMonth(year, month)
	result := RunResult{
		Month:      month,
		Year:       year,
		CycleStart: cycle.Start,
		CycleEnd:   cycle.End,
		Errors:     []EmployeeError{},
	}

	employees, err := e.employees(ctx, only)
	if err != nil {
		return result, err
	}

	log := e.logger.With(zap.Stringer("cycle_start", cycle.Start), zap.Stringer("cycle_end", cycle.End))
	log.Info("monthly accrual started", zap.Int("employees", len(employees)))

	for _, emp := range employees {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Processed++
		e.safely(&result.Errors, emp.ID, func() {
			e.accrueEmployee(ctx, emp, cycle, &result)
		})
	}

	log.Info("monthly accrual finished",
		zap.Int("processed", result.Processed),
		zap.Int("cl_credits", result.CLCredits),
		zap.Int("el_credits", result.ELCredits),
		zap.Int("expired_ccls", result.ExpiredCCLs),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)))

	e.record(ctx, Run{
		Kind:      RunMonthlyAccrual,
		Period:    cycle.Period,
		StartedAt: started,
		Processed: result.Processed,
		Posted:    result.CLCredits + result.ELCredits + result.ExpiredCCLs,
		Skipped:   result.Skipped,
		Errors:    result.Errors,
	})
	return result, nil
}

func (e *Engine) employees(ctx context.Context, only string) ([]Employee, error) {
	if only == "" {
		employees, err := e.Directory.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("list active employees: %w", err)
		}
		return employees, nil
	}
	emp, err := e.Directory.Get(ctx, only)
	if err != nil {
		return nil, err
	}
	if !emp.Active {
		return nil, nil
	}
	return []Employee{emp}, nil
}

// accrueEmployee runs every stage for one employee. Stages fail
// independently: a CL failure does not stop EL or expiry.
func (e *Engine) accrueEmployee(ctx context.Context, emp Employee, cycle calendar.PayrollCycle, result *RunResult) {
	fail := func(stage Stage, err error) {
		e.logger.Warn("accrual failed",
			zap.String("employee_id", emp.ID), zap.String("stage", string(stage)), zap.Error(err))
		result.Errors = append(result.Errors, EmployeeError{EmployeeID: emp.ID, Stage: stage, Message: err.Error()})
	}

	ls, err := e.Settings.Leaves(ctx, emp.DepartmentID, emp.DivisionID)
	if err != nil {
		fail(StageSettings, err)
		return
	}

	// CL
	cl := CasualLeaveCredit(emp.JoiningDate, cycle, ls.MonthlyCasualLeave())
	switch posted, err := e.postCredit(ctx, emp, ledger.CL, ledger.AutoMonthlyCL, cl, cycle); {
	case err != nil:
		fail(StageCL, err)
	case posted:
		result.CLCredits++
	case cl.IsPositive():
		result.Skipped++
	}

	// EL
	el, err := e.earnedLeave(ctx, emp, ls, cycle)
	if err != nil {
		fail(StageEL, err)
	} else {
		switch posted, err := e.postCredit(ctx, emp, ledger.EL, ledger.AutoMonthlyEL, el, cycle); {
		case err != nil:
			fail(StageEL, err)
		case posted:
			result.ELCredits++
		case el.IsPositive():
			result.Skipped++
		}
	}

	// CCL expiry
	if e.CompOffs != nil {
		expired, skipped, errs := e.expireFor(ctx, emp, ls, cycle)
		result.ExpiredCCLs += expired
		result.Skipped += skipped
		result.Errors = append(result.Errors, errs...)
	}
}

func (e *Engine) earnedLeave(ctx context.Context, emp Employee, ls settings.LeaveSettings, cycle calendar.PayrollCycle) (decimal.Decimal, error) {
	days := 0
	if ls.ELMode == settings.ELModeAttendance && e.Attendance != nil {
		// Only count the days the employee was actually employed.
		window := cycle.Period
		if emp.JoiningDate.After(window.Start) {
			window.Start = emp.JoiningDate
		}
		if window.Valid() {
			n, err := e.Attendance.AttendanceDays(ctx, emp.ID, window)
			if err != nil {
				return decimal.Zero, fmt.Errorf("attendance days: %w", err)
			}
			days = n
		}
	}
	return EarnedLeaveCredit(ls, emp.JoiningDate, cycle, days), nil
}

// postCredit appends one auto-generated CREDIT dated at cycle end and bumps
// the cache. Zero credits are not posted. posted is false when the entry
// already exists.
func (e *Engine) postCredit(ctx context.Context, emp Employee, lt ledger.LeaveType, auto ledger.AutoType, days decimal.Decimal, cycle calendar.PayrollCycle) (posted bool, err error) {
	if !days.IsPositive() {
		return false, nil
	}
	tx := ledger.Transaction{
		EmployeeID:        emp.ID,
		LeaveType:         lt,
		Type:              ledger.Credit,
		Days:              days,
		StartDate:         cycle.End,
		EndDate:           cycle.End,
		Reason:            fmt.Sprintf("Monthly %s accrual for %s %d (%s to %s)", lt, cycle.Month, cycle.Year, cycle.Start, cycle.End),
		AutoGenerated:     true,
		AutoGeneratedType: auto,
		IdempotencyKey:    ledger.AutoKey(emp.ID, lt, auto, cycle.Start),
		CreatedBy:         "system",
	}
	_, posted, err = e.postAndCache(ctx, tx)
	return posted, err
}

// postAndCache appends tx and applies its signed effect to the cache.
func (e *Engine) postAndCache(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, bool, error) {
	stored, err := e.Ledger.AddTransaction(ctx, tx)
	if errors.Is(err, ledger.ErrDuplicateIdempotencyKey) {
		e.logger.Warn("entry already posted, skipping",
			zap.String("employee_id", tx.EmployeeID),
			zap.String("leave_type", string(tx.LeaveType)),
			zap.String("idempotency_key", tx.IdempotencyKey))
		return ledger.Transaction{}, false, nil
	}
	if err != nil {
		return ledger.Transaction{}, false, err
	}
	e.logger.Debug("posted",
		zap.String("employee_id", stored.EmployeeID),
		zap.String("leave_type", string(stored.LeaveType)),
		zap.String("type", string(stored.Type)),
		zap.Stringer("days", stored.Days))

	if err := e.Directory.AdjustBalance(ctx, stored.EmployeeID, stored.LeaveType, stored.Signed()); err != nil {
		return stored, true, fmt.Errorf("update %s cache after %s: %w", stored.LeaveType, stored.ID, err)
	}
	return stored, true, nil
}

// safely runs fn and turns a panic into an EmployeeError.
func (e *Engine) safely(errs *[]EmployeeError, employeeID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic while processing employee",
				zap.String("employee_id", employeeID), zap.Any("panic", r))
			*errs = append(*errs, EmployeeError{EmployeeID: employeeID, Stage: StagePanic, Message: fmt.Sprint(r)})
		}
	}()
	fn()
}

func (e *Engine) record(ctx context.Context, run Run) {
	if e.Runs == nil {
		return
	}
	run.ID = uuid.NewString()
	run.FinishedAt = e.Now()
	if err := e.Runs.RecordRun(ctx, run); err != nil {
		e.logger.Warn("record run failed", zap.String("kind", string(run.Kind)), zap.Error(err))
	}
}
