package calendar

// =============================================================================
// PERIOD - An inclusive range of days
// =============================================================================

// Period is the inclusive range [Start, End].
type Period struct {
	Start Date `json:"start_date"`
	End   Date `json:"end_date"`
}

// Contains returns true if d is within [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Days returns the number of days in the period, counting both ends.
// An inverted period has zero days.
func (p Period) Days() int {
	if p.End.Before(p.Start) {
		return 0
	}
	return DaysBetween(p.Start, p.End) + 1
}

// Overlap returns the intersection of two periods and whether it is non-empty.
func (p Period) Overlap(o Period) (Period, bool) {
	start := Max(p.Start, o.Start)
	end := Min(p.End, o.End)
	if end.Before(start) {
		return Period{}, false
	}
	return Period{Start: start, End: end}, true
}

// Valid reports whether End is not before Start.
func (p Period) Valid() bool {
	return !p.Start.IsZero() && !p.End.IsZero() && !p.End.Before(p.Start)
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
