/*
Package calendar provides the date arithmetic used by the leave engine.

PURPOSE:
  Leave accrual works on whole days. Times of day and time zones only matter
  when deciding what "today" is, so everything below that boundary uses Date,
  a UTC-midnight value type that cannot carry a clock component.

KEY CONCEPTS:
  - Date:          a calendar day (2026-02-10)
  - Period:        an inclusive [Start, End] range of days
  - PayrollCycle:  the window a month's accrual is computed over
  - FinancialYear: the window CL balances are scoped to

SEE ALSO:
  - period.go: Period type
  - cycle.go:  payroll cycle and financial year resolution
*/
package calendar

import (
	"encoding/json"
	"fmt"
	"time"
)

// Layout is the wire format for dates.
const Layout = "2006-01-02"

// =============================================================================
// DATE - A calendar day
// =============================================================================

// Date is a calendar day stored as UTC midnight.
// The zero value is "no date".
type Date struct {
	t time.Time
}

// NewDate returns the given day. Out-of-range values are normalized the way
// time.Date normalizes them (Feb 30 becomes Mar 2).
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateClamped returns the given day, clamping day into [1, last day of month].
// Feb 30 becomes Feb 28 (or 29).
func DateClamped(year int, month time.Month, day int) Date {
	// Normalize month overflow first so (2026, 13, x) means January 2027.
	first := NewDate(year, month, 1)
	last := DaysInMonth(first.Year(), first.Month())
	if day < 1 {
		day = 1
	}
	if day > last {
		day = last
	}
	return NewDate(first.Year(), first.Month(), day)
}

// FromTime returns the calendar day of t in t's own location.
func FromTime(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// Today returns the current day in loc. A nil loc means UTC.
func Today(loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return FromTime(time.Now().In(loc))
}

// Parse parses a YYYY-MM-DD string.
func Parse(s string) (Date, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return FromTime(t), nil
}

// MustParse is Parse for tests and constants.
func MustParse(s string) Date {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Properties
func (d Date) Time() time.Time       { return d.t }
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }

// Comparison
func (d Date) Before(o Date) bool        { return d.t.Before(o.t) }
func (d Date) After(o Date) bool         { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool         { return d.t.Equal(o.t) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.t.After(o.t) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.t.Before(o.t) }

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	switch {
	case d.Before(o):
		return -1
	case d.After(o):
		return 1
	default:
		return 0
	}
}

// AddDays moves n days forward (or back for negative n).
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// AddMonths moves n months, clamping the day to the target month's length.
// May 31 minus three months is Feb 28, never Mar 3.
func (d Date) AddMonths(n int) Date {
	return DateClamped(d.Year(), d.Month()+time.Month(n), d.Day())
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(Layout)
}

// =============================================================================
// SERIALIZATION
// =============================================================================

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// =============================================================================
// UTILITIES
// =============================================================================

// DaysBetween returns to - from in days (negative when to is earlier).
func DaysBetween(from, to Date) int {
	return int(to.t.Sub(from.t).Hours() / 24)
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func StartOfMonth(year int, month time.Month) Date { return NewDate(year, month, 1) }

func EndOfMonth(year int, month time.Month) Date {
	return NewDate(year, month, DaysInMonth(year, month))
}

// MonthsBetween returns the number of whole months elapsed from from to to.
// Jan 10 → Apr 9 is 2 months; Jan 10 → Apr 10 is 3. Negative spans return 0.
func MonthsBetween(from, to Date) int {
	if to.Before(from) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() && to.Day() != DaysInMonth(to.Year(), to.Month()) {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// Min returns the earlier of two dates.
func Min(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

// Max returns the later of two dates.
func Max(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}
