package settings

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category names a settings group.
type Category string

const (
	CategoryLeaves              Category = "leaves"
	CategoryLoans               Category = "loans"
	CategorySalaryAdvance       Category = "salary_advance"
	CategoryPermissions         Category = "permissions"
	CategoryOvertime            Category = "overtime"
	CategoryAttendanceDeduction Category = "attendance_deduction"
)

// Categories lists every category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryLeaves, CategoryLoans, CategorySalaryAdvance,
		CategoryPermissions, CategoryOvertime, CategoryAttendanceDeduction,
	}
}

// =============================================================================
// LAYER - One level of the cascade
// =============================================================================

// Layer is one level of configuration. A nil category or nil field inherits
// from the next level down.
type Layer struct {
	DepartmentID string `json:"department_id,omitempty"`
	DivisionID   string `json:"division_id,omitempty"`

	Leaves              *LeaveOverride               `json:"leaves,omitempty"`
	Loans               *LoanOverride                `json:"loans,omitempty"`
	SalaryAdvance       *SalaryAdvanceOverride       `json:"salary_advance,omitempty"`
	Permissions         *PermissionOverride          `json:"permissions,omitempty"`
	Overtime            *OvertimeOverride            `json:"overtime,omitempty"`
	AttendanceDeduction *AttendanceDeductionOverride `json:"attendance_deduction,omitempty"`
}

// =============================================================================
// LEAVES
// =============================================================================

// ELMode selects how earned leave accrues.
type ELMode string

const (
	ELModeFixed      ELMode = "fixed"      // flat amount every cycle
	ELModeAttendance ELMode = "attendance" // sum of matching attendance brackets
)

// ELBracket grants Earned days when a cycle's attendance count is within
// [MinDays, MaxDays]. Brackets are cumulative: every matching bracket counts.
type ELBracket struct {
	MinDays int             `json:"min_days"`
	MaxDays int             `json:"max_days"`
	Earned  decimal.Decimal `json:"el_earned"`
}

// Matches reports whether days falls in the bracket.
func (b ELBracket) Matches(days int) bool {
	return days >= b.MinDays && days <= b.MaxDays
}

type LeaveOverride struct {
	CasualLeavePerYear *decimal.Decimal `json:"cl_per_year,omitempty"`
	ResetToBalance     *decimal.Decimal `json:"reset_to_balance,omitempty"`
	MaxCarryForward    *decimal.Decimal `json:"max_carry_forward,omitempty"`
	ResetMonth         *time.Month      `json:"reset_month,omitempty"`
	ResetDay           *int             `json:"reset_day,omitempty"`

	ELMode            *ELMode          `json:"el_mode,omitempty"`
	ELFixedPerMonth   *decimal.Decimal `json:"el_fixed_per_month,omitempty"`
	ELBrackets        *[]ELBracket     `json:"el_brackets,omitempty"`
	ELMonthlyCap      *decimal.Decimal `json:"el_monthly_cap,omitempty"`
	ELProbationMonths *int             `json:"el_probation_months,omitempty"`

	CCLExpiryMonths  *int      `json:"ccl_expiry_months,omitempty"`
	CCLApprovalSteps *[]string `json:"ccl_approval_steps,omitempty"`
}

// LeaveSettings is the resolved leave configuration.
type LeaveSettings struct {
	CasualLeavePerYear decimal.Decimal `json:"cl_per_year"`
	ResetToBalance     decimal.Decimal `json:"reset_to_balance"`
	MaxCarryForward    decimal.Decimal `json:"max_carry_forward"`
	ResetMonth         time.Month      `json:"reset_month"`
	ResetDay           int             `json:"reset_day"`

	ELMode            ELMode          `json:"el_mode"`
	ELFixedPerMonth   decimal.Decimal `json:"el_fixed_per_month"`
	ELBrackets        []ELBracket     `json:"el_brackets"`
	ELMonthlyCap      decimal.Decimal `json:"el_monthly_cap"` // zero = uncapped
	ELProbationMonths int             `json:"el_probation_months"`

	CCLExpiryMonths  int      `json:"ccl_expiry_months"`
	CCLApprovalSteps []string `json:"ccl_approval_steps"`
}

// MonthlyCasualLeave is the full-cycle CL credit.
func (s LeaveSettings) MonthlyCasualLeave() decimal.Decimal {
	return s.CasualLeavePerYear.Div(decimal.NewFromInt(12))
}

// =============================================================================
// LOANS / SALARY ADVANCE
// =============================================================================

type LoanOverride struct {
	Enabled          *bool            `json:"enabled,omitempty"`
	MaxAmount        *decimal.Decimal `json:"max_amount,omitempty"`
	MaxInstallments  *int             `json:"max_installments,omitempty"`
	InterestRate     *decimal.Decimal `json:"interest_rate,omitempty"`
	MinServiceMonths *int             `json:"min_service_months,omitempty"`
}

type LoanSettings struct {
	Enabled          bool            `json:"enabled"`
	MaxAmount        decimal.Decimal `json:"max_amount"`
	MaxInstallments  int             `json:"max_installments"`
	InterestRate     decimal.Decimal `json:"interest_rate"`
	MinServiceMonths int             `json:"min_service_months"`
}

type SalaryAdvanceOverride struct {
	Enabled            *bool            `json:"enabled,omitempty"`
	MaxPercentOfSalary *decimal.Decimal `json:"max_percent_of_salary,omitempty"`
	MaxRequestsPerYear *int             `json:"max_requests_per_year,omitempty"`
}

type SalaryAdvanceSettings struct {
	Enabled            bool            `json:"enabled"`
	MaxPercentOfSalary decimal.Decimal `json:"max_percent_of_salary"`
	MaxRequestsPerYear int             `json:"max_requests_per_year"`
}

// =============================================================================
// PERMISSIONS / OVERTIME
// =============================================================================

// PermissionOverride configures short-absence permissions (late arrival,
// early leave) measured in minutes.
type PermissionOverride struct {
	MaxPerMonth          *int  `json:"max_per_month,omitempty"`
	MaxMinutesPerRequest *int  `json:"max_minutes_per_request,omitempty"`
	RequiresApproval     *bool `json:"requires_approval,omitempty"`
}

type PermissionSettings struct {
	MaxPerMonth          int  `json:"max_per_month"`
	MaxMinutesPerRequest int  `json:"max_minutes_per_request"`
	RequiresApproval     bool `json:"requires_approval"`
}

type OvertimeOverride struct {
	Enabled          *bool            `json:"enabled,omitempty"`
	RateMultiplier   *decimal.Decimal `json:"rate_multiplier,omitempty"`
	MinMinutes       *int             `json:"min_minutes,omitempty"`
	MaxHoursPerMonth *decimal.Decimal `json:"max_hours_per_month,omitempty"`
	ConvertToCCL     *bool            `json:"convert_to_ccl,omitempty"`
}

type OvertimeSettings struct {
	Enabled          bool            `json:"enabled"`
	RateMultiplier   decimal.Decimal `json:"rate_multiplier"`
	MinMinutes       int             `json:"min_minutes"`
	MaxHoursPerMonth decimal.Decimal `json:"max_hours_per_month"` // zero = uncapped
	ConvertToCCL     bool            `json:"convert_to_ccl"`
}

// =============================================================================
// ATTENDANCE DEDUCTION
// =============================================================================

// DeductionRule deducts DeductDays once a violation repeats AfterOccurrences
// times in a cycle. A disabled rule deducts nothing.
type DeductionRule struct {
	Enabled          bool            `json:"enabled"`
	AfterOccurrences int             `json:"after_occurrences"`
	DeductDays       decimal.Decimal `json:"deduct_days"`
}

type AttendanceDeductionOverride struct {
	LateGraceMinutes *int           `json:"late_grace_minutes,omitempty"`
	Late             *DeductionRule `json:"late,omitempty"`
	EarlyExit        *DeductionRule `json:"early_exit,omitempty"`
	Absent           *DeductionRule `json:"absent,omitempty"`
}

type AttendanceDeductionSettings struct {
	LateGraceMinutes int           `json:"late_grace_minutes"`
	Late             DeductionRule `json:"late"`
	EarlyExit        DeductionRule `json:"early_exit"`
	Absent           DeductionRule `json:"absent"`
}

// =============================================================================
// ALL
// =============================================================================

// Effective bundles every resolved category.
type Effective struct {
	DepartmentID        string                      `json:"department_id"`
	DivisionID          string                      `json:"division_id"`
	Leaves              LeaveSettings               `json:"leaves"`
	Loans               LoanSettings                `json:"loans"`
	SalaryAdvance       SalaryAdvanceSettings       `json:"salary_advance"`
	Permissions         PermissionSettings          `json:"permissions"`
	Overtime            OvertimeSettings            `json:"overtime"`
	AttendanceDeduction AttendanceDeductionSettings `json:"attendance_deduction"`
}
