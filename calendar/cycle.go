package calendar

import (
	"fmt"
	"time"
)

// =============================================================================
// CYCLE CONFIGURATION
// =============================================================================

// CycleConfig describes the payroll cycle cut-off.
//
//	StartDay 1            calendar month (Feb 1 - Feb 28)
//	StartDay 26, EndDay 25 custom cut-off (Jan 26 - Feb 25)
//
// EndDay 0 means "the day before StartDay".
type CycleConfig struct {
	StartDay int `yaml:"start_day" json:"start_day"`
	EndDay   int `yaml:"end_day" json:"end_day"`
}

// FinancialYearConfig describes where the financial year starts.
// The zero value is the calendar year.
type FinancialYearConfig struct {
	StartMonth time.Month `yaml:"start_month" json:"start_month"`
	StartDay   int        `yaml:"start_day" json:"start_day"`
}

// PayrollCycle is the accrual window for one payroll month.
// Month and Year name the month the cycle ends in.
type PayrollCycle struct {
	Period
	Month         time.Month `json:"month"`
	Year          int        `json:"year"`
	IsCustomCycle bool       `json:"is_custom_cycle"`
}

// FinancialYear is the window CL balances are scoped to.
type FinancialYear struct {
	Period
	Label string `json:"label"`
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver converts dates into payroll cycles and financial years.
// Results are deterministic for a given configuration.
type Resolver struct {
	Cycle         CycleConfig
	FinancialYear FinancialYearConfig
}

// NewResolver returns a resolver with the given configuration.
func NewResolver(cycle CycleConfig, fy FinancialYearConfig) *Resolver {
	return &Resolver{Cycle: cycle, FinancialYear: fy}
}

func (r *Resolver) startDay() int {
	if r.Cycle.StartDay < 1 || r.Cycle.StartDay > 31 {
		return 1
	}
	return r.Cycle.StartDay
}

// IsCustomCycle reports whether cycles are cut off mid-month.
func (r *Resolver) IsCustomCycle() bool {
	return r.startDay() != 1
}

// PayrollCycleFor returns the payroll cycle containing date.
func (r *Resolver) PayrollCycleFor(date Date) PayrollCycle {
	start := r.startDay()
	if start == 1 {
		return PayrollCycle{
			Period: Period{
				Start: StartOfMonth(date.Year(), date.Month()),
				End:   EndOfMonth(date.Year(), date.Month()),
			},
			Month: date.Month(),
			Year:  date.Year(),
		}
	}

	// The cycle that starts in date's month.
	cycleStart := DateClamped(date.Year(), date.Month(), start)
	if date.Before(cycleStart) {
		prev := StartOfMonth(date.Year(), date.Month()).AddMonths(-1)
		cycleStart = DateClamped(prev.Year(), prev.Month(), start)
	}

	next := StartOfMonth(cycleStart.Year(), cycleStart.Month()).AddMonths(1)
	cycleEnd := DateClamped(next.Year(), next.Month(), r.endDay(start))

	return PayrollCycle{
		Period:        Period{Start: cycleStart, End: cycleEnd},
		Month:         cycleEnd.Month(),
		Year:          cycleEnd.Year(),
		IsCustomCycle: true,
	}
}

func (r *Resolver) endDay(start int) int {
	if r.Cycle.EndDay >= 1 && r.Cycle.EndDay <= 31 {
		return r.Cycle.EndDay
	}
	return start - 1
}

// CycleForMonth returns the cycle for a payroll month. It probes the 15th so
// a custom cut-off never lands on a boundary.
func (r *Resolver) CycleForMonth(year int, month time.Month) PayrollCycle {
	return r.PayrollCycleFor(NewDate(year, month, 15))
}

// FinancialYearFor returns the financial year containing date.
func (r *Resolver) FinancialYearFor(date Date) FinancialYear {
	month := r.FinancialYear.StartMonth
	if month < time.January || month > time.December {
		month = time.January
	}
	day := r.FinancialYear.StartDay
	if day < 1 {
		day = 1
	}

	start := DateClamped(date.Year(), month, day)
	if date.Before(start) {
		start = DateClamped(date.Year()-1, month, day)
	}
	end := DateClamped(start.Year()+1, month, day).AddDays(-1)

	label := fmt.Sprintf("%d", start.Year())
	if end.Year() != start.Year() {
		label = fmt.Sprintf("%d-%02d", start.Year(), end.Year()%100)
	}
	return FinancialYear{Period: Period{Start: start, End: end}, Label: label}
}

// PreviousFinancialYear returns the financial year ending the day before fy starts.
func (r *Resolver) PreviousFinancialYear(fy FinancialYear) FinancialYear {
	return r.FinancialYearFor(fy.Start.AddDays(-1))
}
