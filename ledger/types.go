/*
Package ledger is the append-only record of every leave balance change.

PURPOSE:
  Balances are never stored as a number that can be edited. They are the
  signed sum of ledger transactions:

    CREDIT     +days   monthly accrual, CCL grant
    DEBIT      -days   leave taken
    EXPIRY     -days   unused CCL past its window
    ADJUSTMENT ±days   manual correction, annual reset

CRITICAL INVARIANTS:
  1. APPEND-ONLY: the Store has no update or delete.
  2. IMMUTABLE: a wrong entry is corrected with a new ADJUSTMENT.
  3. IDEMPOTENT: an idempotency key is written at most once.
  4. ORDER-FREE: BalanceAsOf depends only on the set of transactions,
     never on the order they were appended.

AUTO-GENERATED ENTRIES:
  Entries posted by batch jobs carry AutoGenerated=true, an AutoType and a
  deterministic key (AutoKey) so re-running a job never double-posts.

SEE ALSO:
  - ledger.go:       Ledger service (validation, balances, summaries)
  - store.go:        Store interface and query Filter
  - store/memory.go: in-memory Store
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/calendar"
)

// =============================================================================
// LEAVE TYPES
// =============================================================================

type LeaveType string

const (
	CL  LeaveType = "CL"  // casual leave, scoped to the financial year
	EL  LeaveType = "EL"  // earned leave, lifetime
	CCL LeaveType = "CCL" // compensatory casual leave, lifetime
)

// LeaveTypes lists every leave type.
func LeaveTypes() []LeaveType { return []LeaveType{CL, EL, CCL} }

func (t LeaveType) Valid() bool {
	switch t {
	case CL, EL, CCL:
		return true
	}
	return false
}

// =============================================================================
// TRANSACTION TYPES
// =============================================================================

type Type string

const (
	Credit     Type = "CREDIT"
	Debit      Type = "DEBIT"
	Expiry     Type = "EXPIRY"
	Adjustment Type = "ADJUSTMENT"
)

func (t Type) Valid() bool {
	switch t {
	case Credit, Debit, Expiry, Adjustment:
		return true
	}
	return false
}

// AutoType identifies the job that posted an auto-generated entry.
type AutoType string

const (
	AutoMonthlyCL   AutoType = "MONTHLY_CL"
	AutoMonthlyEL   AutoType = "MONTHLY_EL"
	AutoCCLExpiry   AutoType = "CCL_EXPIRY"
	AutoCCLGrant    AutoType = "CCL_GRANT"
	AutoAnnualReset AutoType = "ANNUAL_RESET"
)

// StatusApproved is the status of every entry the engine writes.
const StatusApproved = "approved"

// =============================================================================
// TRANSACTION
// =============================================================================

// Transaction is one immutable ledger entry. Days is non-negative except for
// ADJUSTMENT, where the sign carries the direction.
type Transaction struct {
	ID                string          `json:"id"`
	EmployeeID        string          `json:"employee_id"`
	LeaveType         LeaveType       `json:"leave_type"`
	Type              Type            `json:"transaction_type"`
	Days              decimal.Decimal `json:"days"`
	StartDate         calendar.Date   `json:"start_date"`
	EndDate           calendar.Date   `json:"end_date"`
	Reason            string          `json:"reason,omitempty"`
	Status            string          `json:"status"`
	AutoGenerated     bool            `json:"auto_generated"`
	AutoGeneratedType AutoType        `json:"auto_generated_type,omitempty"`
	ReferenceID       string          `json:"reference_id,omitempty"`
	IdempotencyKey    string          `json:"idempotency_key,omitempty"`
	CreatedBy         string          `json:"created_by,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Signed returns the entry's effect on the balance.
func (tx Transaction) Signed() decimal.Decimal {
	switch tx.Type {
	case Debit, Expiry:
		return tx.Days.Neg()
	default:
		return tx.Days
	}
}

// AutoKey is the idempotency key for an auto-generated entry. One employee,
// leave type, job and cycle start produce exactly one key.
func AutoKey(employeeID string, leaveType LeaveType, auto AutoType, cycleStart calendar.Date) string {
	return fmt.Sprintf("%s:%s:%s:%s", auto, employeeID, leaveType, cycleStart)
}

// Summary breaks a balance down by transaction type. All values are
// magnitudes except Adjustments and Net, which are signed.
type Summary struct {
	EmployeeID  string          `json:"employee_id"`
	LeaveType   LeaveType       `json:"leave_type"`
	Period      calendar.Period `json:"period"`
	Credits     decimal.Decimal `json:"credits"`
	Debits      decimal.Decimal `json:"debits"`
	Expiries    decimal.Decimal `json:"expiries"`
	Adjustments decimal.Decimal `json:"adjustments"`
	Net         decimal.Decimal `json:"net"`
	Count       int             `json:"count"`
}
