package calendar_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-ledger/calendar"
)

func d(s string) calendar.Date { return calendar.MustParse(s) }

// =============================================================================
// PAYROLL CYCLE TESTS
// =============================================================================

func TestPayrollCycle_CalendarMonth(t *testing.T) {
	r := calendar.NewResolver(calendar.CycleConfig{StartDay: 1}, calendar.FinancialYearConfig{})

	cycle := r.PayrollCycleFor(d("2026-02-10"))

	assert.Equal(t, d("2026-02-01"), cycle.Start)
	assert.Equal(t, d("2026-02-28"), cycle.End)
	assert.Equal(t, time.February, cycle.Month)
	assert.Equal(t, 2026, cycle.Year)
	assert.False(t, cycle.IsCustomCycle)
}

func TestPayrollCycle_CustomCutoff_BeforeStartDay(t *testing.T) {
	// GIVEN: cycles run from the 26th to the 25th
	// WHEN: resolving a date before the 26th
	// THEN: it belongs to the cycle that began last month
	r := calendar.NewResolver(calendar.CycleConfig{StartDay: 26, EndDay: 25}, calendar.FinancialYearConfig{})

	cycle := r.PayrollCycleFor(d("2026-02-10"))

	assert.Equal(t, d("2026-01-26"), cycle.Start)
	assert.Equal(t, d("2026-02-25"), cycle.End)
	assert.Equal(t, time.February, cycle.Month)
	assert.True(t, cycle.IsCustomCycle)
	assert.Equal(t, 31, cycle.Days())
}

func TestPayrollCycle_CustomCutoff_OnStartDay(t *testing.T) {
	r := calendar.NewResolver(calendar.CycleConfig{StartDay: 26, EndDay: 25}, calendar.FinancialYearConfig{})

	cycle := r.PayrollCycleFor(d("2026-02-26"))

	assert.Equal(t, d("2026-02-26"), cycle.Start)
	assert.Equal(t, d("2026-03-25"), cycle.End)
	assert.Equal(t, time.March, cycle.Month)
}

func TestPayrollCycle_EndDayDefaultsToDayBeforeStart(t *testing.T) {
	r := calendar.NewResolver(calendar.CycleConfig{StartDay: 21}, calendar.FinancialYearConfig{})

	cycle := r.PayrollCycleFor(d("2026-05-01"))

	assert.Equal(t, d("2026-04-21"), cycle.Start)
	assert.Equal(t, d("2026-05-20"), cycle.End)
}

func TestPayrollCycle_EndDayClampedToMonthLength(t *testing.T) {
	// End day 30 falls past the end of February
	r := calendar.NewResolver(calendar.CycleConfig{StartDay: 31, EndDay: 30}, calendar.FinancialYearConfig{})

	cycle := r.PayrollCycleFor(d("2026-02-10"))

	assert.Equal(t, d("2026-01-31"), cycle.Start)
	assert.Equal(t, d("2026-02-28"), cycle.End)
}

func TestPayrollCycle_YearBoundary(t *testing.T) {
	r := calendar.NewResolver(calendar.CycleConfig{StartDay: 26, EndDay: 25}, calendar.FinancialYearConfig{})

	cycle := r.PayrollCycleFor(d("2026-12-28"))

	assert.Equal(t, d("2026-12-26"), cycle.Start)
	assert.Equal(t, d("2027-01-25"), cycle.End)
	assert.Equal(t, time.January, cycle.Month)
	assert.Equal(t, 2027, cycle.Year)
}

func TestCycleForMonth_UsesMidMonthProbe(t *testing.T) {
	r := calendar.NewResolver(calendar.CycleConfig{StartDay: 26, EndDay: 25}, calendar.FinancialYearConfig{})

	cycle := r.CycleForMonth(2026, time.February)

	assert.Equal(t, d("2026-01-26"), cycle.Start)
	assert.Equal(t, d("2026-02-25"), cycle.End)
}

// =============================================================================
// FINANCIAL YEAR TESTS
// =============================================================================

func TestFinancialYear_DefaultsToCalendarYear(t *testing.T) {
	r := calendar.NewResolver(calendar.CycleConfig{}, calendar.FinancialYearConfig{})

	fy := r.FinancialYearFor(d("2026-07-04"))

	assert.Equal(t, d("2026-01-01"), fy.Start)
	assert.Equal(t, d("2026-12-31"), fy.End)
	assert.Equal(t, "2026", fy.Label)
}

func TestFinancialYear_AprilStart(t *testing.T) {
	r := calendar.NewResolver(calendar.CycleConfig{}, calendar.FinancialYearConfig{StartMonth: time.April, StartDay: 1})

	before := r.FinancialYearFor(d("2026-03-31"))
	on := r.FinancialYearFor(d("2026-04-01"))

	assert.Equal(t, d("2025-04-01"), before.Start)
	assert.Equal(t, d("2026-03-31"), before.End)
	assert.Equal(t, "2025-26", before.Label)
	assert.Equal(t, d("2026-04-01"), on.Start)
	assert.Equal(t, d("2027-03-31"), on.End)

	prev := r.PreviousFinancialYear(on)
	assert.Equal(t, before, prev)
}

// =============================================================================
// DATE TESTS
// =============================================================================

func TestDate_AddMonthsClamps(t *testing.T) {
	assert.Equal(t, d("2026-02-28"), d("2026-05-31").AddMonths(-3))
	assert.Equal(t, d("2024-02-29"), d("2024-01-31").AddMonths(1))
}

func TestMonthsBetween(t *testing.T) {
	assert.Equal(t, 2, calendar.MonthsBetween(d("2026-01-10"), d("2026-04-09")))
	assert.Equal(t, 3, calendar.MonthsBetween(d("2026-01-10"), d("2026-04-10")))
	assert.Equal(t, 1, calendar.MonthsBetween(d("2026-01-31"), d("2026-02-28")))
	assert.Equal(t, 0, calendar.MonthsBetween(d("2026-04-10"), d("2026-01-10")))
}

func TestPeriod_DaysAndOverlap(t *testing.T) {
	p := calendar.Period{Start: d("2026-01-26"), End: d("2026-02-25")}
	assert.Equal(t, 31, p.Days())

	overlap, ok := p.Overlap(calendar.Period{Start: d("2026-02-05"), End: d("2026-12-31")})
	require.True(t, ok)
	assert.Equal(t, 21, overlap.Days())

	_, ok = p.Overlap(calendar.Period{Start: d("2026-03-01"), End: d("2026-03-31")})
	assert.False(t, ok)
}

func TestDate_JSON(t *testing.T) {
	type payload struct {
		On  calendar.Date `json:"on"`
		Off calendar.Date `json:"off"`
	}
	b, err := json.Marshal(payload{On: d("2026-02-10")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"on":"2026-02-10","off":null}`, string(b))

	var back payload
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, d("2026-02-10"), back.On)
	assert.True(t, back.Off.IsZero())
}
