/*
dto.go - Request and response bodies for the HTTP API

NAMING CONVENTION:
  - *Request:  request bodies, validated with go-playground/validator tags
  - *Response: response wrappers that are not a domain type

  Domain types (ledger.Transaction, ccl.Grant, leave.RunResult, ...) already
  carry JSON tags and are returned as-is.

SEE ALSO:
  - handlers.go: uses these types
  - errors.go:   ErrorResponse
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
	"github.com/warp/leave-ledger/settings"
)

// =============================================================================
// BATCH JOBS
// =============================================================================

// RunAccrualRequest selects a payroll month. Zero values default to the
// previous calendar month.
type RunAccrualRequest struct {
	Month int `json:"month" validate:"omitempty,min=1,max=12"`
	Year  int `json:"year" validate:"omitempty,min=1970,max=9999"`
}

// RunResetRequest forces a reset on Date. A zero date runs the reset for
// every employee whose reset falls today.
type RunResetRequest struct {
	Date calendar.Date `json:"date"`
}

type NextResetResponse struct {
	EmployeeID string        `json:"employee_id"`
	Today      calendar.Date `json:"today"`
	NextReset  calendar.Date `json:"next_reset"`
}

// =============================================================================
// EMPLOYEES
// =============================================================================

type CreateEmployeeRequest struct {
	ID                string         `json:"id" validate:"required,max=64"`
	Name              string         `json:"name" validate:"required"`
	DepartmentID      string         `json:"department_id"`
	DivisionID        string         `json:"division_id"`
	JoiningDate       calendar.Date  `json:"joining_date"`
	Active            *bool          `json:"active"`
	ReportingManagers []string       `json:"reporting_managers" validate:"dive,required"`
	WeeklyOffs        []time.Weekday `json:"weekly_offs" validate:"dive,min=0,max=6"`
}

func (r CreateEmployeeRequest) employee() leave.Employee {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return leave.Employee{
		ID:                r.ID,
		Name:              r.Name,
		DepartmentID:      r.DepartmentID,
		DivisionID:        r.DivisionID,
		JoiningDate:       r.JoiningDate,
		Active:            active,
		ReportingManagers: r.ReportingManagers,
		WeeklyOffs:        r.WeeklyOffs,
	}
}

type HolidayRequest struct {
	DepartmentID string        `json:"department_id"`
	Date         calendar.Date `json:"date"`
	Name         string        `json:"name" validate:"required"`
}

type PunchRequest struct {
	At time.Time `json:"at" validate:"required"`
}

type OnDutyRequest struct {
	Date   calendar.Date `json:"date"`
	Status string        `json:"status" validate:"required,oneof=pending approved rejected"`
}

// =============================================================================
// LEDGER
// =============================================================================

// TransactionRequest is a manually posted ledger entry for the employee in
// the URL.
type TransactionRequest struct {
	LeaveType      ledger.LeaveType `json:"leave_type" validate:"required,oneof=CL EL CCL"`
	Type           ledger.Type      `json:"transaction_type" validate:"required,oneof=CREDIT DEBIT EXPIRY ADJUSTMENT"`
	Days           decimal.Decimal  `json:"days"`
	StartDate      calendar.Date    `json:"start_date"`
	EndDate        calendar.Date    `json:"end_date"`
	Reason         string           `json:"reason" validate:"max=500"`
	ReferenceID    string           `json:"reference_id"`
	IdempotencyKey string           `json:"idempotency_key" validate:"max=200"`
	CreatedBy      string           `json:"created_by"`
}

func (r TransactionRequest) transaction(employeeID string) ledger.Transaction {
	return ledger.Transaction{
		EmployeeID:     employeeID,
		LeaveType:      r.LeaveType,
		Type:           r.Type,
		Days:           r.Days,
		StartDate:      r.StartDate,
		EndDate:        r.EndDate,
		Reason:         r.Reason,
		ReferenceID:    r.ReferenceID,
		IdempotencyKey: r.IdempotencyKey,
		CreatedBy:      r.CreatedBy,
	}
}

type BatchTransactionRequest struct {
	Transactions []TransactionRequest `json:"transactions" validate:"required,min=1,max=1000,dive"`
}

type AdjustmentRequest struct {
	LeaveType ledger.LeaveType `json:"leave_type" validate:"required,oneof=CL EL CCL"`
	Days      decimal.Decimal  `json:"days"`
	Reason    string           `json:"reason" validate:"required,max=500"`
}

type TransactionsResponse struct {
	EmployeeID   string               `json:"employee_id"`
	Transactions []ledger.Transaction `json:"transactions"`
	Net          decimal.Decimal      `json:"net"`
}

// =============================================================================
// SETTINGS & CALENDAR
// =============================================================================

type EmployeeSettingsResponse struct {
	EmployeeID   string             `json:"employee_id"`
	DepartmentID string             `json:"department_id"`
	DivisionID   string             `json:"division_id,omitempty"`
	Settings     settings.Effective `json:"settings"`
}

type CycleResponse struct {
	Date          calendar.Date          `json:"date"`
	PayrollCycle  calendar.PayrollCycle  `json:"payroll_cycle"`
	FinancialYear calendar.FinancialYear `json:"financial_year"`
}

// =============================================================================
// CCL
// =============================================================================

type ApproveRequest struct {
	Comment string `json:"comment" validate:"max=500"`
}

type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}
