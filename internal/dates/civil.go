package dates

import (
	"fmt"
	"time"
)

// CivilDate is a calendar date without a time component or timezone.
// Sale records carry dates in wildly inconsistent formats; everything is
// normalized into this type before any range comparison happens.
type CivilDate struct {
	Year  int
	Month int // 1-12
	Day   int
}

// String formats the date as YYYY-MM-DD.
func (d CivilDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// IsZero reports whether the date is the zero value.
func (d CivilDate) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Compare returns -1, 0 or 1 comparing d against other chronologically.
func (d CivilDate) Compare(other CivilDate) int {
	a := d.Year*10000 + d.Month*100 + d.Day
	b := other.Year*10000 + other.Month*100 + other.Day
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Before reports whether d is chronologically before other.
func (d CivilDate) Before(other CivilDate) bool { return d.Compare(other) < 0 }

// After reports whether d is chronologically after other.
func (d CivilDate) After(other CivilDate) bool { return d.Compare(other) > 0 }

// FromTime extracts the calendar date from t in the local timezone.
func FromTime(t time.Time) CivilDate {
	y, m, day := t.Local().Date()
	return CivilDate{Year: y, Month: int(m), Day: day}
}

// Today returns the current local calendar date.
func Today() CivilDate {
	return FromTime(time.Now())
}

// FirstOfMonth returns the first day of d's month.
func (d CivilDate) FirstOfMonth() CivilDate {
	return CivilDate{Year: d.Year, Month: d.Month, Day: 1}
}

// Range is an inclusive date range.
type Range struct {
	Start CivilDate
	End   CivilDate
}

// Validate checks that the range is well formed (end not before start).
func (r Range) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("date range is incomplete")
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("end date %s is before start date %s", r.End, r.Start)
	}
	return nil
}

// Contains reports whether d falls inside the range (inclusive bounds).
func (r Range) Contains(d CivilDate) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// String formats the range as "YYYY-MM-DD..YYYY-MM-DD".
func (r Range) String() string {
	return r.Start.String() + ".." + r.End.String()
}
