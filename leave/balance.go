package leave

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/ledger"
)

// =============================================================================
// BALANCE SERVICE - Scoped balances and cache reconciliation
// =============================================================================

// BalanceService reads balances from the ledger with each leave type's scope:
// CL inside the financial year, EL and CCL over the employee's lifetime.
type BalanceService struct {
	Ledger    *ledger.Ledger
	Directory Directory
	Calendar  *calendar.Resolver

	logger *zap.Logger
}

func NewBalanceService(l *ledger.Ledger, dir Directory, resolver *calendar.Resolver, logger *zap.Logger) *BalanceService {
	if logger == nil {
		logger = zap.L()
	}
	return &BalanceService{Ledger: l, Directory: dir, Calendar: resolver, logger: logger.Named("leave.balance")}
}

// Balances is an employee's balance per leave type as of a date.
type Balances struct {
	EmployeeID    string                 `json:"employee_id"`
	AsOf          calendar.Date          `json:"as_of"`
	FinancialYear calendar.FinancialYear `json:"financial_year"`
	CL            decimal.Decimal        `json:"cl"`
	EL            decimal.Decimal        `json:"el"`
	CCL           decimal.Decimal        `json:"ccl"`
}

// Get returns the value for a leave type.
func (b Balances) Get(lt ledger.LeaveType) decimal.Decimal {
	switch lt {
	case ledger.CL:
		return b.CL
	case ledger.EL:
		return b.EL
	case ledger.CCL:
		return b.CCL
	}
	return decimal.Zero
}

// Balance returns one scoped balance.
func (s *BalanceService) Balance(ctx context.Context, employeeID string, lt ledger.LeaveType, asOf calendar.Date) (decimal.Decimal, error) {
	if lt == ledger.CL {
		fy := s.Calendar.FinancialYearFor(asOf)
		return s.Ledger.BalanceInRange(ctx, employeeID, lt, calendar.Period{Start: fy.Start, End: asOf})
	}
	return s.Ledger.BalanceAsOf(ctx, employeeID, lt, asOf)
}

// Balances returns every scoped balance for an employee.
func (s *BalanceService) Balances(ctx context.Context, employeeID string, asOf calendar.Date) (Balances, error) {
	if _, err := s.Directory.Get(ctx, employeeID); err != nil {
		return Balances{}, err
	}
	out := Balances{EmployeeID: employeeID, AsOf: asOf, FinancialYear: s.Calendar.FinancialYearFor(asOf)}
	for _, lt := range ledger.LeaveTypes() {
		v, err := s.Balance(ctx, employeeID, lt, asOf)
		if err != nil {
			return Balances{}, fmt.Errorf("%s balance: %w", lt, err)
		}
		switch lt {
		case ledger.CL:
			out.CL = v
		case ledger.EL:
			out.EL = v
		case ledger.CCL:
			out.CCL = v
		}
	}
	return out, nil
}

// Drift is a mismatch between the ledger and a cache field.
type Drift struct {
	LeaveType  ledger.LeaveType `json:"leave_type"`
	Ledger     decimal.Decimal  `json:"ledger"`
	Cached     decimal.Decimal  `json:"cached"`
	Difference decimal.Decimal  `json:"difference"` // ledger - cached
}

type Reconciliation struct {
	EmployeeID string        `json:"employee_id"`
	AsOf       calendar.Date `json:"as_of"`
	InSync     bool          `json:"in_sync"`
	Drifts     []Drift       `json:"drifts"`
}

// Reconcile compares ledger balances with the employee's cached fields.
func (s *BalanceService) Reconcile(ctx context.Context, employeeID string, asOf calendar.Date) (Reconciliation, error) {
	emp, err := s.Directory.Get(ctx, employeeID)
	if err != nil {
		return Reconciliation{}, err
	}
	balances, err := s.Balances(ctx, employeeID, asOf)
	if err != nil {
		return Reconciliation{}, err
	}

	rec := Reconciliation{EmployeeID: employeeID, AsOf: asOf, Drifts: []Drift{}}
	for _, lt := range ledger.LeaveTypes() {
		fromLedger, cached := balances.Get(lt), emp.CachedBalance(lt)
		if !fromLedger.Equal(cached) {
			rec.Drifts = append(rec.Drifts, Drift{
				LeaveType:  lt,
				Ledger:     fromLedger,
				Cached:     cached,
				Difference: fromLedger.Sub(cached),
			})
		}
	}
	rec.InSync = len(rec.Drifts) == 0
	return rec, nil
}

// Sync rewrites every drifted cache field from the ledger.
func (s *BalanceService) Sync(ctx context.Context, employeeID string, asOf calendar.Date) (Reconciliation, error) {
	rec, err := s.Reconcile(ctx, employeeID, asOf)
	if err != nil {
		return rec, err
	}
	for _, d := range rec.Drifts {
		if err := s.Directory.SetBalance(ctx, employeeID, d.LeaveType, d.Ledger); err != nil {
			return rec, fmt.Errorf("sync %s cache: %w", d.LeaveType, err)
		}
		s.logger.Info("cache synced from ledger",
			zap.String("employee_id", employeeID),
			zap.String("leave_type", string(d.LeaveType)),
			zap.Stringer("difference", d.Difference))
	}
	return rec, nil
}
