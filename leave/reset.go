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
// ANNUAL RESET
// =============================================================================

// ResetService resets CL once a year:
//
//	unused      = max(0, CL balance of the financial year ending the day before)
//	carry       = min(unused, MaxCarryForward)
//	newBalance  = ResetToBalance + carry
//
// The change is posted as an ADJUSTMENT of newBalance minus the current
// financial-year balance, then PaidLeaves is overwritten with newBalance.
type ResetService struct {
	Ledger    *ledger.Ledger
	Directory Directory
	Settings  *settings.Cascade
	Calendar  *calendar.Resolver
	Runs      RunRecorder // optional

	Now    func() time.Time
	logger *zap.Logger
}

func NewResetService(l *ledger.Ledger, dir Directory, cascade *settings.Cascade, resolver *calendar.Resolver, logger *zap.Logger) *ResetService {
	if logger == nil {
		logger = zap.L()
	}
	return &ResetService{
		Ledger:    l,
		Directory: dir,
		Settings:  cascade,
		Calendar:  resolver,
		Now:       time.Now,
		logger:    logger.Named("leave.reset"),
	}
}

// NextResetDate returns the first reset date on or after today. A reset day
// past the end of a short month falls on its last day.
func NextResetDate(today calendar.Date, ls settings.LeaveSettings) calendar.Date {
	next := calendar.DateClamped(today.Year(), ls.ResetMonth, ls.ResetDay)
	if next.Before(today) {
		next = calendar.DateClamped(today.Year()+1, ls.ResetMonth, ls.ResetDay)
	}
	return next
}

// NextResetDateFor resolves the employee's settings and returns their next
// reset date.
func (s *ResetService) NextResetDateFor(ctx context.Context, employeeID string, today calendar.Date) (calendar.Date, error) {
	emp, err := s.Directory.Get(ctx, employeeID)
	if err != nil {
		return calendar.Date{}, err
	}
	ls, err := s.Settings.Leaves(ctx, emp.DepartmentID, emp.DivisionID)
	if err != nil {
		return calendar.Date{}, err
	}
	return NextResetDate(today, ls), nil
}

// RunIfDue resets every active employee whose next reset date is today.
// Employees not due are neither processed nor counted.
func (s *ResetService) RunIfDue(ctx context.Context, today calendar.Date) (ResetResult, error) {
	return s.run(ctx, today, true)
}

// Run forces a reset dated resetDate for every active employee.
func (s *ResetService) Run(ctx context.Context, resetDate calendar.Date) (ResetResult, error) {
	return s.run(ctx, resetDate, false)
}

func (s *ResetService) run(ctx context.Context, resetDate calendar.Date, onlyDue bool) (ResetResult, error) {
	started := s.Now()
	result := ResetResult{ResetDate: resetDate, Errors: []EmployeeError{}}

	employees, err := s.Directory.ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("list active employees: %w", err)
	}

	for _, emp := range employees {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("panic during reset", zap.String("employee_id", emp.ID), zap.Any("panic", r))
					result.Errors = append(result.Errors, EmployeeError{EmployeeID: emp.ID, Stage: StagePanic, Message: fmt.Sprint(r)})
				}
			}()

			ls, err := s.Settings.Leaves(ctx, emp.DepartmentID, emp.DivisionID)
			if err != nil {
				result.Processed++
				result.Errors = append(result.Errors, EmployeeError{EmployeeID: emp.ID, Stage: StageSettings, Message: err.Error()})
				return
			}
			if onlyDue && !NextResetDate(resetDate, ls).Equal(resetDate) {
				return
			}

			result.Processed++
			posted, err := s.resetEmployee(ctx, emp, ls, resetDate)
			switch {
			case err != nil:
				s.logger.Warn("annual reset failed", zap.String("employee_id", emp.ID), zap.Error(err))
				result.Errors = append(result.Errors, EmployeeError{EmployeeID: emp.ID, Stage: StageReset, Message: err.Error()})
			case posted:
				result.Reset++
			default:
				result.Skipped++
			}
		}()
	}

	if result.Processed > 0 || !onlyDue {
		s.logger.Info("annual reset finished",
			zap.Stringer("reset_date", resetDate),
			zap.Int("processed", result.Processed),
			zap.Int("reset", result.Reset),
			zap.Int("skipped", result.Skipped),
			zap.Int("errors", len(result.Errors)))
		s.record(ctx, started, result)
	}
	return result, nil
}

// Plan is the computed reset for one employee.
type Plan struct {
	Unused       decimal.Decimal `json:"unused_prior_year"`
	CarryForward decimal.Decimal `json:"carry_forward"`
	NewBalance   decimal.Decimal `json:"new_balance"`
	Current      decimal.Decimal `json:"current_balance"`
	Delta        decimal.Decimal `json:"delta"`
}

// PlanReset computes the reset amounts from the ledger without writing.
func (s *ResetService) PlanReset(ctx context.Context, employeeID string, ls settings.LeaveSettings, resetDate calendar.Date) (Plan, error) {
	prior := s.Calendar.FinancialYearFor(resetDate.AddDays(-1))
	priorWindow := calendar.Period{Start: prior.Start, End: calendar.Min(prior.End, resetDate.AddDays(-1))}
	unused, err := s.Ledger.BalanceInRange(ctx, employeeID, ledger.CL, priorWindow)
	if err != nil {
		return Plan{}, fmt.Errorf("prior year CL balance: %w", err)
	}
	unused = decimal.Max(unused, decimal.Zero)

	current := s.Calendar.FinancialYearFor(resetDate)
	currentBalance, err := s.Ledger.BalanceInRange(ctx, employeeID, ledger.CL, calendar.Period{Start: current.Start, End: resetDate})
	if err != nil {
		return Plan{}, fmt.Errorf("current CL balance: %w", err)
	}

	carry := decimal.Min(unused, ls.MaxCarryForward)
	newBalance := ls.ResetToBalance.Add(carry)
	return Plan{
		Unused:       unused,
		CarryForward: carry,
		NewBalance:   newBalance,
		Current:      currentBalance,
		Delta:        newBalance.Sub(currentBalance),
	}, nil
}

// resetEmployee posts the reset adjustment and overwrites the CL cache.
// posted is false when the reset for this date already exists.
func (s *ResetService) resetEmployee(ctx context.Context, emp Employee, ls settings.LeaveSettings, resetDate calendar.Date) (bool, error) {
	key := ledger.AutoKey(emp.ID, ledger.CL, ledger.AutoAnnualReset, resetDate)
	exists, err := s.Ledger.Store.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	plan, err := s.PlanReset(ctx, emp.ID, ls, resetDate)
	if err != nil {
		return false, err
	}

	// A zero delta is still posted so the key records that the reset ran.
	_, err = s.Ledger.AddTransaction(ctx, ledger.Transaction{
		EmployeeID: emp.ID,
		LeaveType:  ledger.CL,
		Type:       ledger.Adjustment,
		Days:       plan.Delta,
		StartDate:  resetDate,
		EndDate:    resetDate,
		Reason: fmt.Sprintf("Annual reset to %s (base %s + carry forward %s)",
			plan.NewBalance, ls.ResetToBalance, plan.CarryForward),
		AutoGenerated:     true,
		AutoGeneratedType: ledger.AutoAnnualReset,
		IdempotencyKey:    key,
		CreatedBy:         "system",
	})
	if errors.Is(err, ledger.ErrDuplicateIdempotencyKey) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.logger.Debug("annual reset posted",
		zap.String("employee_id", emp.ID),
		zap.Stringer("days", plan.Delta),
		zap.Stringer("new_balance", plan.NewBalance))

	if err := s.Directory.SetBalance(ctx, emp.ID, ledger.CL, plan.NewBalance); err != nil {
		return true, fmt.Errorf("overwrite CL cache: %w", err)
	}
	return true, nil
}

func (s *ResetService) record(ctx context.Context, started time.Time, result ResetResult) {
	if s.Runs == nil {
		return
	}
	run := Run{
		ID:         uuid.NewString(),
		Kind:       RunAnnualReset,
		Period:     calendar.Period{Start: result.ResetDate, End: result.ResetDate},
		StartedAt:  started,
		FinishedAt: s.Now(),
		Processed:  result.Processed,
		Posted:     result.Reset,
		Skipped:    result.Skipped,
		Errors:     result.Errors,
	}
	if err := s.Runs.RecordRun(ctx, run); err != nil {
		s.logger.Warn("record run failed", zap.Error(err))
	}
}
