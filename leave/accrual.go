package leave

import (
	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/settings"
)

// =============================================================================
// ROUNDING
// =============================================================================

var (
	half = decimal.NewFromFloat(0.5)
	two  = decimal.NewFromInt(2)
)

// RoundToHalf rounds to the nearest 0.5, halves away from zero.
func RoundToHalf(v decimal.Decimal) decimal.Decimal {
	return v.Mul(two).Round(0).Div(two)
}

// RoundAccrual applies the CL minimum credit: anything in (0, 0.5) becomes 0.5,
// everything else rounds to the nearest 0.5. Negative input yields zero.
func RoundAccrual(v decimal.Decimal) decimal.Decimal {
	if !v.IsPositive() {
		return decimal.Zero
	}
	if v.LessThan(half) {
		return half
	}
	return RoundToHalf(v)
}

// =============================================================================
// CASUAL LEAVE
// =============================================================================

// CasualLeaveCredit returns the CL credit for one cycle.
//
//	joined after cycle end      0
//	joined on or before start   monthlyBase
//	joined inside the cycle     monthlyBase * daysInService / cycleDays
//
// Both day counts are inclusive.
func CasualLeaveCredit(joining calendar.Date, cycle calendar.PayrollCycle, monthlyBase decimal.Decimal) decimal.Decimal {
	if joining.After(cycle.End) {
		return decimal.Zero
	}
	if !joining.After(cycle.Start) {
		return RoundAccrual(monthlyBase)
	}

	inService := calendar.Period{Start: joining, End: cycle.End}.Days()
	total := cycle.Days()
	if total == 0 {
		return decimal.Zero
	}
	raw := monthlyBase.Mul(decimal.NewFromInt(int64(inService))).Div(decimal.NewFromInt(int64(total)))
	return RoundAccrual(raw)
}

// =============================================================================
// EARNED LEAVE
// =============================================================================

// ProbationComplete reports whether the employee has served enough whole
// months by the end of the cycle to earn EL.
func ProbationComplete(joining calendar.Date, cycle calendar.PayrollCycle, months int) bool {
	if joining.After(cycle.End) {
		return false
	}
	return calendar.MonthsBetween(joining, cycle.End) >= months
}

// EarnedLeaveCredit returns the EL credit for one cycle.
//
// Attendance mode sums every bracket the attendance count falls into, then
// applies the monthly cap when it is positive. Fixed mode grants the flat
// monthly amount. Both are gated on probation and rounded to the nearest 0.5.
func EarnedLeaveCredit(s settings.LeaveSettings, joining calendar.Date, cycle calendar.PayrollCycle, attendanceDays int) decimal.Decimal {
	if !ProbationComplete(joining, cycle, s.ELProbationMonths) {
		return decimal.Zero
	}

	var raw decimal.Decimal
	switch s.ELMode {
	case settings.ELModeAttendance:
		raw = decimal.Zero
		for _, b := range s.ELBrackets {
			if b.Matches(attendanceDays) {
				raw = raw.Add(b.Earned)
			}
		}
		if s.ELMonthlyCap.IsPositive() && raw.GreaterThan(s.ELMonthlyCap) {
			raw = s.ELMonthlyCap
		}
	default:
		raw = s.ELFixedPerMonth
	}

	if !raw.IsPositive() {
		return decimal.Zero
	}
	return RoundToHalf(raw)
}
