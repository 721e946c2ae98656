package leave

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/ledger"
	"github.com/warp/leave-ledger/settings"
)

// =============================================================================
// CCL EXPIRY SWEEP
// =============================================================================

// ExpiryCutoff is the worked date before which an approved CCL grant expires
// in the given cycle.
func ExpiryCutoff(cycle calendar.PayrollCycle, expiryMonths int) calendar.Date {
	return cycle.Start.AddMonths(-expiryMonths)
}

// ExpiryKey is the idempotency key of a grant's EXPIRY entry. A grant can
// expire only once, whatever cycle the sweep runs in.
func ExpiryKey(grantID string) string {
	return "ccl-expiry:" + grantID
}

// ExpireCompOffs runs only the CCL expiry sweep for a cycle.
func (e *Engine) ExpireCompOffs(ctx context.Context, cycle calendar.PayrollCycle) (RunResult, error) {
	started := e.Now()
	result := RunResult{
		Month:      cycle.Month,
		Year:       cycle.Year,
		CycleStart: cycle.Start,
		CycleEnd:   cycle.End,
		Errors:     []EmployeeError{},
	}
	if e.CompOffs == nil {
		return result, nil
	}

	employees, err := e.Directory.ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("list active employees: %w", err)
	}
	for _, emp := range employees {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Processed++
		e.safely(&result.Errors, emp.ID, func() {
			ls, err := e.Settings.Leaves(ctx, emp.DepartmentID, emp.DivisionID)
			if err != nil {
				result.Errors = append(result.Errors, EmployeeError{EmployeeID: emp.ID, Stage: StageSettings, Message: err.Error()})
				return
			}
			expired, skipped, errs := e.expireFor(ctx, emp, ls, cycle)
			result.ExpiredCCLs += expired
			result.Skipped += skipped
			result.Errors = append(result.Errors, errs...)
		})
	}

	e.logger.Info("ccl expiry finished",
		zap.Stringer("cycle_start", cycle.Start),
		zap.Int("expired_ccls", result.ExpiredCCLs),
		zap.Int("errors", len(result.Errors)))

	e.record(ctx, Run{
		Kind:      RunCCLExpiry,
		Period:    cycle.Period,
		StartedAt: started,
		Processed: result.Processed,
		Posted:    result.ExpiredCCLs,
		Skipped:   result.Skipped,
		Errors:    result.Errors,
	})
	return result, nil
}

// expireFor posts one EXPIRY per due grant, dated at cycle start. A failed
// write is logged and the sweep moves to the next grant.
func (e *Engine) expireFor(ctx context.Context, emp Employee, ls settings.LeaveSettings, cycle calendar.PayrollCycle) (expired, skipped int, errs []EmployeeError) {
	cutoff := ExpiryCutoff(cycle, ls.CCLExpiryMonths)
	grants, err := e.CompOffs.ExpirableCompOffs(ctx, emp.ID, cutoff)
	if err != nil {
		e.logger.Warn("list expirable comp-offs failed", zap.String("employee_id", emp.ID), zap.Error(err))
		return 0, 0, []EmployeeError{{EmployeeID: emp.ID, Stage: StageCCLExpiry, Message: err.Error()}}
	}

	for _, g := range grants {
		tx := ledger.Transaction{
			EmployeeID:        emp.ID,
			LeaveType:         ledger.CCL,
			Type:              ledger.Expiry,
			Days:              g.Days,
			StartDate:         cycle.Start,
			EndDate:           cycle.Start,
			Reason:            fmt.Sprintf("CCL for %s expired after %d months", g.WorkedDate, ls.CCLExpiryMonths),
			AutoGenerated:     true,
			AutoGeneratedType: ledger.AutoCCLExpiry,
			ReferenceID:       g.ID,
			IdempotencyKey:    ExpiryKey(g.ID),
			CreatedBy:         "system",
		}

		stored, posted, err := e.postAndCache(ctx, tx)
		if err != nil && !posted {
			e.logger.Warn("ccl expiry write failed",
				zap.String("employee_id", emp.ID), zap.String("grant_id", g.ID), zap.Error(err))
			errs = append(errs, EmployeeError{EmployeeID: emp.ID, Stage: StageCCLExpiry, Message: err.Error()})
			continue
		}
		if err != nil {
			// Ledger written, cache not. Still mark the grant so it is not swept again.
			errs = append(errs, EmployeeError{EmployeeID: emp.ID, Stage: StageCCLExpiry, Message: err.Error()})
		}

		ref := stored.ID
		if !posted {
			ref = tx.IdempotencyKey
		}
		if err := e.CompOffs.MarkCompOffExpired(ctx, g.ID, ref); err != nil {
			e.logger.Warn("mark comp-off expired failed",
				zap.String("employee_id", emp.ID), zap.String("grant_id", g.ID), zap.Error(err))
			errs = append(errs, EmployeeError{EmployeeID: emp.ID, Stage: StageCCLExpiry, Message: err.Error()})
			continue
		}
		if posted {
			expired++
		} else {
			skipped++
		}
	}
	return expired, skipped, errs
}
