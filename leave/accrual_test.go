package leave_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/settings"
)

func d(s string) calendar.Date { return calendar.MustParse(s) }

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func assertDays(t *testing.T, want float64, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %v got %s %v", want, got.String(), msgAndArgs)
}

// Jan 26 - Feb 25 2026, 31 days.
func febCycle() calendar.PayrollCycle {
	return calendar.NewResolver(calendar.CycleConfig{StartDay: 26, EndDay: 25}, calendar.FinancialYearConfig{}).
		CycleForMonth(2026, 2)
}

// =============================================================================
// ROUNDING TESTS
// =============================================================================

func TestRoundAccrual(t *testing.T) {
	cases := []struct {
		raw, want float64
	}{
		{0, 0},
		{-0.3, 0},
		{0.01, 0.5},
		{0.49, 0.5},
		{0.5, 0.5},
		{0.677, 0.5},
		{0.75, 1},
		{1, 1},
		{1.24, 1},
		{1.25, 1.5},
		{2.8, 3},
	}
	for _, c := range cases {
		assertDays(t, c.want, leave.RoundAccrual(dec(c.raw)), "raw %v", c.raw)
	}
}

func TestRoundToHalf_NoFloor(t *testing.T) {
	assertDays(t, 0, leave.RoundToHalf(dec(0.2)))
	assertDays(t, 0.5, leave.RoundToHalf(dec(0.25)))
}

// =============================================================================
// CASUAL LEAVE TESTS
// =============================================================================

func TestCasualLeaveCredit_JoinedBeforeCycle(t *testing.T) {
	// GIVEN: joined 2026-01-10, cycle Jan 26 - Feb 25, 12 CL a year
	// THEN: full monthly base of 1.0
	assertDays(t, 1, leave.CasualLeaveCredit(d("2026-01-10"), febCycle(), dec(1)))
}

func TestCasualLeaveCredit_JoinedOnCycleStart(t *testing.T) {
	assertDays(t, 1, leave.CasualLeaveCredit(d("2026-01-26"), febCycle(), dec(1)))
}

func TestCasualLeaveCredit_JoinedInsideCycle(t *testing.T) {
	// GIVEN: joined 2026-02-05, 21 of 31 days in service
	// THEN: raw 0.677 rounds to 0.5
	assertDays(t, 0.5, leave.CasualLeaveCredit(d("2026-02-05"), febCycle(), dec(1)))
}

func TestCasualLeaveCredit_FloorRule(t *testing.T) {
	// Joined on the last day: 1/31 of a day, lifted to 0.5
	assertDays(t, 0.5, leave.CasualLeaveCredit(d("2026-02-25"), febCycle(), dec(1)))
}

func TestCasualLeaveCredit_JoinedAfterCycle(t *testing.T) {
	assertDays(t, 0, leave.CasualLeaveCredit(d("2026-02-26"), febCycle(), dec(1)))
}

func TestCasualLeaveCredit_LargerBase(t *testing.T) {
	// 18 a year = 1.5 a month; joined Feb 1: 25/31 * 1.5 = 1.21 -> 1.0
	assertDays(t, 1, leave.CasualLeaveCredit(d("2026-02-01"), febCycle(), dec(18).Div(dec(12))))
}

// =============================================================================
// EARNED LEAVE TESTS
// =============================================================================

func attendanceSettings() settings.LeaveSettings {
	s := settings.DefaultLeaves()
	s.ELMode = settings.ELModeAttendance
	s.ELBrackets = []settings.ELBracket{
		{MinDays: 15, MaxDays: 31, Earned: dec(0.5)},
		{MinDays: 20, MaxDays: 31, Earned: dec(0.5)},
		{MinDays: 25, MaxDays: 31, Earned: dec(1)},
	}
	return s
}

func TestEarnedLeaveCredit_BracketsAreCumulative(t *testing.T) {
	s := attendanceSettings()
	joined := d("2025-01-01")

	assertDays(t, 0, leave.EarnedLeaveCredit(s, joined, febCycle(), 10))
	assertDays(t, 0.5, leave.EarnedLeaveCredit(s, joined, febCycle(), 15))
	assertDays(t, 1, leave.EarnedLeaveCredit(s, joined, febCycle(), 22))
	assertDays(t, 2, leave.EarnedLeaveCredit(s, joined, febCycle(), 26))
}

func TestEarnedLeaveCredit_MonthlyCap(t *testing.T) {
	s := attendanceSettings()
	s.ELMonthlyCap = dec(1.5)

	assertDays(t, 1.5, leave.EarnedLeaveCredit(s, d("2025-01-01"), febCycle(), 26))
}

func TestEarnedLeaveCredit_ProbationGate(t *testing.T) {
	s := attendanceSettings()
	s.ELProbationMonths = 6

	// Joined 2025-09-01: 5 whole months by Feb 25
	assertDays(t, 0, leave.EarnedLeaveCredit(s, d("2025-09-01"), febCycle(), 26))
	// Joined 2025-08-25: 6 whole months by Feb 25
	assertDays(t, 2, leave.EarnedLeaveCredit(s, d("2025-08-25"), febCycle(), 26))
}

func TestEarnedLeaveCredit_FixedMode(t *testing.T) {
	s := settings.DefaultLeaves()
	s.ELFixedPerMonth = dec(1)

	assertDays(t, 1, leave.EarnedLeaveCredit(s, d("2025-01-01"), febCycle(), 0))
	assertDays(t, 0, leave.EarnedLeaveCredit(s, d("2026-03-01"), febCycle(), 0))

	s.ELProbationMonths = 3
	assertDays(t, 0, leave.EarnedLeaveCredit(s, d("2026-01-01"), febCycle(), 0))
}

func TestExpiryCutoff(t *testing.T) {
	assert.Equal(t, d("2025-10-26"), leave.ExpiryCutoff(febCycle(), 3))
}
