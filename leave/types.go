/*
Package leave runs the leave accrual batch jobs on top of the ledger.

PURPOSE:
  Once a month the Engine credits Casual Leave (CL) and Earned Leave (EL)
  to every active employee for the payroll cycle that just ended, and
  expires Compensatory Casual Leave (CCL) that was never used. Once a year
  the ResetService resets CL with a capped carry-forward.

KEY CONCEPTS:
  - Employee:       directory record with denormalized balance caches
  - Directory:      read employees, write only the balance caches
  - Engine:         monthly CL/EL credits and the CCL expiry sweep
  - ResetService:   annual CL reset posted as an ADJUSTMENT
  - BalanceService: scoped balances and cache reconciliation

FAIL-SOFT BATCHES:
  Employees are processed one at a time. An error (or panic) for one
  employee is recorded in the result with the employee's ID and the loop
  moves on. Nothing spans the whole batch: earlier postings stay committed.

IDEMPOTENCY:
  Every auto-generated posting carries a deterministic key, see
  ledger.AutoKey. A key that already exists is skipped and counted, so a
  job can be re-run for the same month without double-posting.

BALANCE SCOPES:
  CL   sum of entries inside the financial year containing the as-of date
  EL   lifetime sum
  CCL  lifetime sum

SEE ALSO:
  - accrual.go: pure credit calculations and rounding
  - engine.go:  monthly batch
  - expiry.go:  CCL expiry sweep
  - reset.go:   annual reset
  - balance.go: balances and reconciliation
*/
package leave

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/ledger"
)

var ErrEmployeeNotFound = errors.New("employee not found")

// =============================================================================
// EMPLOYEE DIRECTORY
// =============================================================================

// Employee is the directory record the engine reads. The balance fields are
// caches of the ledger and may drift; see BalanceService.Reconcile.
type Employee struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	DepartmentID      string         `json:"department_id"`
	DivisionID        string         `json:"division_id,omitempty"`
	JoiningDate       calendar.Date  `json:"joining_date"`
	Active            bool           `json:"active"`
	ReportingManagers []string       `json:"reporting_managers,omitempty"`
	WeeklyOffs        []time.Weekday `json:"weekly_offs,omitempty"`

	PaidLeaves       decimal.Decimal `json:"paid_leaves"`       // CL
	EarnedLeaves     decimal.Decimal `json:"earned_leaves"`     // EL
	CompensatoryOffs decimal.Decimal `json:"compensatory_offs"` // CCL
}

// CachedBalance returns the cache field for a leave type.
func (e Employee) CachedBalance(lt ledger.LeaveType) decimal.Decimal {
	switch lt {
	case ledger.CL:
		return e.PaidLeaves
	case ledger.EL:
		return e.EarnedLeaves
	case ledger.CCL:
		return e.CompensatoryOffs
	}
	return decimal.Zero
}

// IsWeeklyOff reports whether d falls on one of the employee's weekly offs.
func (e Employee) IsWeeklyOff(d calendar.Date) bool {
	for _, w := range e.WeeklyOffs {
		if d.Weekday() == w {
			return true
		}
	}
	return false
}

// Directory is the employee directory collaborator. The engine only writes
// balance caches.
type Directory interface {
	// Get returns ErrEmployeeNotFound for unknown IDs.
	Get(ctx context.Context, employeeID string) (Employee, error)

	ListActive(ctx context.Context) ([]Employee, error)

	// AdjustBalance adds delta to a cache field atomically.
	AdjustBalance(ctx context.Context, employeeID string, leaveType ledger.LeaveType, delta decimal.Decimal) error

	// SetBalance overwrites a cache field.
	SetBalance(ctx context.Context, employeeID string, leaveType ledger.LeaveType, value decimal.Decimal) error
}

// AttendanceSource counts the days an employee attended inside a period.
type AttendanceSource interface {
	AttendanceDays(ctx context.Context, employeeID string, period calendar.Period) (int, error)
}

// =============================================================================
// COMP-OFFS - The slice of CCL grants the expiry sweep needs
// =============================================================================

// CompOff is an approved CCL grant as seen by the expiry sweep.
type CompOff struct {
	ID         string
	EmployeeID string
	WorkedDate calendar.Date
	Days       decimal.Decimal
}

// CompOffStore lists and expires approved CCL grants.
type CompOffStore interface {
	// ExpirableCompOffs returns approved, unused, unexpired grants for the
	// employee worked strictly before the given date.
	ExpirableCompOffs(ctx context.Context, employeeID string, before calendar.Date) ([]CompOff, error)

	// MarkCompOffExpired flags a grant as expired by a ledger entry.
	MarkCompOffExpired(ctx context.Context, grantID, transactionID string) error
}

// =============================================================================
// RESULTS
// =============================================================================

// Stage names the step that failed for an employee.
type Stage string

const (
	StageSettings  Stage = "settings"
	StageCL        Stage = "cl_accrual"
	StageEL        Stage = "el_accrual"
	StageCCLExpiry Stage = "ccl_expiry"
	StageReset     Stage = "annual_reset"
	StagePanic     Stage = "panic"
)

// EmployeeError records a per-employee failure in a batch.
type EmployeeError struct {
	EmployeeID string `json:"employee_id"`
	Stage      Stage  `json:"stage"`
	Message    string `json:"error"`
}

func (e EmployeeError) Error() string {
	return e.EmployeeID + ": " + string(e.Stage) + ": " + e.Message
}

// RunResult is the output of a monthly accrual run.
type RunResult struct {
	Month       time.Month      `json:"month"`
	Year        int             `json:"year"`
	CycleStart  calendar.Date   `json:"cycle_start"`
	CycleEnd    calendar.Date   `json:"cycle_end"`
	Processed   int             `json:"processed"`
	CLCredits   int             `json:"cl_credits"`
	ELCredits   int             `json:"el_credits"`
	ExpiredCCLs int             `json:"expired_ccls"`
	Skipped     int             `json:"skipped"`
	Errors      []EmployeeError `json:"errors"`
}

// ResetResult is the output of an annual reset run.
type ResetResult struct {
	ResetDate calendar.Date   `json:"reset_date"`
	Processed int             `json:"processed"`
	Reset     int             `json:"reset"`
	Skipped   int             `json:"skipped"`
	Errors    []EmployeeError `json:"errors"`
}

// =============================================================================
// RUN RECORDING
// =============================================================================

type RunKind string

const (
	RunMonthlyAccrual RunKind = "monthly_accrual"
	RunCCLExpiry      RunKind = "ccl_expiry"
	RunAnnualReset    RunKind = "annual_reset"
)

// Run is the persisted record of one batch invocation.
type Run struct {
	ID         string          `json:"id"`
	Kind       RunKind         `json:"kind"`
	Period     calendar.Period `json:"period"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Processed  int             `json:"processed"`
	Posted     int             `json:"posted"`
	Skipped    int             `json:"skipped"`
	Errors     []EmployeeError `json:"errors"`
}

// RunRecorder persists batch runs. Optional on every service.
type RunRecorder interface {
	RecordRun(ctx context.Context, run Run) error
}
