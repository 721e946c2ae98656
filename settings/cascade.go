package settings

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Repository supplies cascade layers. Missing layers are returned as nil,
// never as an error.
type Repository interface {
	// Override returns the override for a department, or for one division
	// inside it. divisionID "" addresses the department-wide override.
	Override(ctx context.Context, departmentID, divisionID string) (*Layer, error)

	// Defaults returns the global default layer.
	Defaults(ctx context.Context) (*Layer, error)
}

// =============================================================================
// HARD DEFAULTS
// =============================================================================

func DefaultLeaves() LeaveSettings {
	return LeaveSettings{
		CasualLeavePerYear: decimal.NewFromInt(12),
		ResetToBalance:     decimal.NewFromInt(12),
		MaxCarryForward:    decimal.Zero,
		ResetMonth:         time.January,
		ResetDay:           1,
		ELMode:             ELModeFixed,
		ELFixedPerMonth:    decimal.NewFromFloat(1.25),
		ELMonthlyCap:       decimal.Zero,
		CCLExpiryMonths:    3,
	}
}

func DefaultLoans() LoanSettings {
	return LoanSettings{MaxInstallments: 12, MinServiceMonths: 6}
}

func DefaultSalaryAdvance() SalaryAdvanceSettings {
	return SalaryAdvanceSettings{MaxPercentOfSalary: decimal.NewFromInt(50), MaxRequestsPerYear: 1}
}

func DefaultPermissions() PermissionSettings {
	return PermissionSettings{MaxPerMonth: 2, MaxMinutesPerRequest: 120, RequiresApproval: true}
}

func DefaultOvertime() OvertimeSettings {
	return OvertimeSettings{RateMultiplier: decimal.NewFromFloat(1.5), MinMinutes: 30}
}

func DefaultAttendanceDeduction() AttendanceDeductionSettings {
	return AttendanceDeductionSettings{}
}

// =============================================================================
// CASCADE
// =============================================================================

// Cascade resolves effective settings from a Repository.
type Cascade struct {
	repo Repository
}

// NewCascade returns a cascade reading layers from repo.
func NewCascade(repo Repository) *Cascade {
	return &Cascade{repo: repo}
}

// layers holds the three configurable levels. Any of them may be nil.
type layers struct {
	division, department, global *Layer
}

func (c *Cascade) load(ctx context.Context, departmentID, divisionID string) (layers, error) {
	var l layers
	var err error

	if departmentID != "" {
		if divisionID != "" {
			if l.division, err = c.repo.Override(ctx, departmentID, divisionID); err != nil {
				return l, fmt.Errorf("load division override %s/%s: %w", departmentID, divisionID, err)
			}
		}
		if l.department, err = c.repo.Override(ctx, departmentID, ""); err != nil {
			return l, fmt.Errorf("load department override %s: %w", departmentID, err)
		}
	}
	if l.global, err = c.repo.Defaults(ctx); err != nil {
		return l, fmt.Errorf("load global defaults: %w", err)
	}
	return l, nil
}

// pick projects the same category out of every layer: (override, global).
// override is the division value if set, else the department value.
func pick[C any, T any](l layers, category func(*Layer) *C, field func(*C) *T) (override, global *T) {
	get := func(layer *Layer) *T {
		if layer == nil {
			return nil
		}
		c := category(layer)
		if c == nil {
			return nil
		}
		return field(c)
	}
	return First(get(l.division), get(l.department)), get(l.global)
}

// field resolves one leaf through the whole cascade.
func field[C any, T any](l layers, category func(*Layer) *C, get func(*C) *T, hard T) T {
	override, global := pick(l, category, get)
	return Resolve(override, global, hard)
}

// =============================================================================
// CATEGORY RESOLVERS
// =============================================================================

func leavesOf(l *Layer) *LeaveOverride { return l.Leaves }

// Leaves returns the effective leave settings for an employee's department
// and division.
func (c *Cascade) Leaves(ctx context.Context, departmentID, divisionID string) (LeaveSettings, error) {
	l, err := c.load(ctx, departmentID, divisionID)
	if err != nil {
		return DefaultLeaves(), err
	}
	return resolveLeaves(l), nil
}

func resolveLeaves(l layers) LeaveSettings {
	hard := DefaultLeaves()
	out := LeaveSettings{
		ResetToBalance:    field(l, leavesOf, func(o *LeaveOverride) *decimal.Decimal { return o.ResetToBalance }, hard.ResetToBalance),
		MaxCarryForward:   field(l, leavesOf, func(o *LeaveOverride) *decimal.Decimal { return o.MaxCarryForward }, hard.MaxCarryForward),
		ResetMonth:        field(l, leavesOf, func(o *LeaveOverride) *time.Month { return o.ResetMonth }, hard.ResetMonth),
		ResetDay:          field(l, leavesOf, func(o *LeaveOverride) *int { return o.ResetDay }, hard.ResetDay),
		ELMode:            field(l, leavesOf, func(o *LeaveOverride) *ELMode { return o.ELMode }, hard.ELMode),
		ELFixedPerMonth:   field(l, leavesOf, func(o *LeaveOverride) *decimal.Decimal { return o.ELFixedPerMonth }, hard.ELFixedPerMonth),
		ELBrackets:        field(l, leavesOf, func(o *LeaveOverride) *[]ELBracket { return o.ELBrackets }, hard.ELBrackets),
		ELMonthlyCap:      field(l, leavesOf, func(o *LeaveOverride) *decimal.Decimal { return o.ELMonthlyCap }, hard.ELMonthlyCap),
		ELProbationMonths: field(l, leavesOf, func(o *LeaveOverride) *int { return o.ELProbationMonths }, hard.ELProbationMonths),
		CCLExpiryMonths:   field(l, leavesOf, func(o *LeaveOverride) *int { return o.CCLExpiryMonths }, hard.CCLExpiryMonths),
		CCLApprovalSteps:  field(l, leavesOf, func(o *LeaveOverride) *[]string { return o.CCLApprovalSteps }, hard.CCLApprovalSteps),
	}

	// CL per year: override, then global CL per year, then the global reset
	// balance, then the hard default. The global cl_per_year step is an
	// addition to override ?? globalResetBalance ?? 12; without it the
	// chain is unchanged.
	override, global := pick(l, leavesOf, func(o *LeaveOverride) *decimal.Decimal { return o.CasualLeavePerYear })
	_, globalReset := pick(l, leavesOf, func(o *LeaveOverride) *decimal.Decimal { return o.ResetToBalance })
	out.CasualLeavePerYear = Resolve(override, First(global, globalReset), hard.CasualLeavePerYear)

	if out.ResetMonth < time.January || out.ResetMonth > time.December {
		out.ResetMonth = hard.ResetMonth
	}
	if out.ResetDay < 1 || out.ResetDay > 31 {
		out.ResetDay = hard.ResetDay
	}
	return out
}

func loansOf(l *Layer) *LoanOverride { return l.Loans }

func (c *Cascade) Loans(ctx context.Context, departmentID, divisionID string) (LoanSettings, error) {
	l, err := c.load(ctx, departmentID, divisionID)
	if err != nil {
		return DefaultLoans(), err
	}
	return resolveLoans(l), nil
}

func resolveLoans(l layers) LoanSettings {
	hard := DefaultLoans()
	return LoanSettings{
		Enabled:          field(l, loansOf, func(o *LoanOverride) *bool { return o.Enabled }, hard.Enabled),
		MaxAmount:        field(l, loansOf, func(o *LoanOverride) *decimal.Decimal { return o.MaxAmount }, hard.MaxAmount),
		MaxInstallments:  field(l, loansOf, func(o *LoanOverride) *int { return o.MaxInstallments }, hard.MaxInstallments),
		InterestRate:     field(l, loansOf, func(o *LoanOverride) *decimal.Decimal { return o.InterestRate }, hard.InterestRate),
		MinServiceMonths: field(l, loansOf, func(o *LoanOverride) *int { return o.MinServiceMonths }, hard.MinServiceMonths),
	}
}

func advanceOf(l *Layer) *SalaryAdvanceOverride { return l.SalaryAdvance }

func (c *Cascade) SalaryAdvance(ctx context.Context, departmentID, divisionID string) (SalaryAdvanceSettings, error) {
	l, err := c.load(ctx, departmentID, divisionID)
	if err != nil {
		return DefaultSalaryAdvance(), err
	}
	return resolveSalaryAdvance(l), nil
}

func resolveSalaryAdvance(l layers) SalaryAdvanceSettings {
	hard := DefaultSalaryAdvance()
	return SalaryAdvanceSettings{
		Enabled:            field(l, advanceOf, func(o *SalaryAdvanceOverride) *bool { return o.Enabled }, hard.Enabled),
		MaxPercentOfSalary: field(l, advanceOf, func(o *SalaryAdvanceOverride) *decimal.Decimal { return o.MaxPercentOfSalary }, hard.MaxPercentOfSalary),
		MaxRequestsPerYear: field(l, advanceOf, func(o *SalaryAdvanceOverride) *int { return o.MaxRequestsPerYear }, hard.MaxRequestsPerYear),
	}
}

func permissionsOf(l *Layer) *PermissionOverride { return l.Permissions }

func (c *Cascade) Permissions(ctx context.Context, departmentID, divisionID string) (PermissionSettings, error) {
	l, err := c.load(ctx, departmentID, divisionID)
	if err != nil {
		return DefaultPermissions(), err
	}
	return resolvePermissions(l), nil
}

func resolvePermissions(l layers) PermissionSettings {
	hard := DefaultPermissions()
	return PermissionSettings{
		MaxPerMonth:          field(l, permissionsOf, func(o *PermissionOverride) *int { return o.MaxPerMonth }, hard.MaxPerMonth),
		MaxMinutesPerRequest: field(l, permissionsOf, func(o *PermissionOverride) *int { return o.MaxMinutesPerRequest }, hard.MaxMinutesPerRequest),
		RequiresApproval:     field(l, permissionsOf, func(o *PermissionOverride) *bool { return o.RequiresApproval }, hard.RequiresApproval),
	}
}

func overtimeOf(l *Layer) *OvertimeOverride { return l.Overtime }

func (c *Cascade) Overtime(ctx context.Context, departmentID, divisionID string) (OvertimeSettings, error) {
	l, err := c.load(ctx, departmentID, divisionID)
	if err != nil {
		return DefaultOvertime(), err
	}
	return resolveOvertime(l), nil
}

func resolveOvertime(l layers) OvertimeSettings {
	hard := DefaultOvertime()
	return OvertimeSettings{
		Enabled:          field(l, overtimeOf, func(o *OvertimeOverride) *bool { return o.Enabled }, hard.Enabled),
		RateMultiplier:   field(l, overtimeOf, func(o *OvertimeOverride) *decimal.Decimal { return o.RateMultiplier }, hard.RateMultiplier),
		MinMinutes:       field(l, overtimeOf, func(o *OvertimeOverride) *int { return o.MinMinutes }, hard.MinMinutes),
		MaxHoursPerMonth: field(l, overtimeOf, func(o *OvertimeOverride) *decimal.Decimal { return o.MaxHoursPerMonth }, hard.MaxHoursPerMonth),
		ConvertToCCL:     field(l, overtimeOf, func(o *OvertimeOverride) *bool { return o.ConvertToCCL }, hard.ConvertToCCL),
	}
}

func deductionOf(l *Layer) *AttendanceDeductionOverride { return l.AttendanceDeduction }

func (c *Cascade) AttendanceDeduction(ctx context.Context, departmentID, divisionID string) (AttendanceDeductionSettings, error) {
	l, err := c.load(ctx, departmentID, divisionID)
	if err != nil {
		return DefaultAttendanceDeduction(), err
	}
	return resolveAttendanceDeduction(l), nil
}

func resolveAttendanceDeduction(l layers) AttendanceDeductionSettings {
	hard := DefaultAttendanceDeduction()
	return AttendanceDeductionSettings{
		LateGraceMinutes: field(l, deductionOf, func(o *AttendanceDeductionOverride) *int { return o.LateGraceMinutes }, hard.LateGraceMinutes),
		Late:             field(l, deductionOf, func(o *AttendanceDeductionOverride) *DeductionRule { return o.Late }, hard.Late),
		EarlyExit:        field(l, deductionOf, func(o *AttendanceDeductionOverride) *DeductionRule { return o.EarlyExit }, hard.EarlyExit),
		Absent:           field(l, deductionOf, func(o *AttendanceDeductionOverride) *DeductionRule { return o.Absent }, hard.Absent),
	}
}

// All resolves every category with a single read of each layer.
func (c *Cascade) All(ctx context.Context, departmentID, divisionID string) (Effective, error) {
	l, err := c.load(ctx, departmentID, divisionID)
	if err != nil {
		return Effective{}, err
	}
	return Effective{
		DepartmentID:        departmentID,
		DivisionID:          divisionID,
		Leaves:              resolveLeaves(l),
		Loans:               resolveLoans(l),
		SalaryAdvance:       resolveSalaryAdvance(l),
		Permissions:         resolvePermissions(l),
		Overtime:            resolveOvertime(l),
		AttendanceDeduction: resolveAttendanceDeduction(l),
	}, nil
}
