/*
time.go - Date arithmetic for effective-dated attendance data

PURPOSE:
  Pure functions over time.Time. A zero time.Time means "absent" everywhere
  in this package: functions that need a date return the zero value, false,
  or 0 instead of panicking.

MONTH ARITHMETIC:
  time.AddDate normalizes overflow (Jan 31 + 1 month = Mar 3). Attendance
  rules expect the calendar clamp instead (Jan 31 + 1 month = Feb 28/29),
  so AddMonths and AddYears clamp the day to the last day of the target month.

  DateAfter applies years, then months, then days:
    DateAfter(2013-02-28, 1, 1, 1) = 2014-03-29

SEE ALSO:
  - calendar.go: era-aware formatting
  - sequence.go: code numbering
  - effective.go: latest-as-of lookups built on these helpers
*/
package generic

import (
	"time"
)

// DateLayout is the wire and storage layout for dates.
const DateLayout = "2006-01-02"

// =============================================================================
// CONSTRUCTION
// =============================================================================

// NewDate returns midnight UTC of the given day.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a DateLayout string. An empty string is an absent date.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// FormatISO renders a date in DateLayout, or "" when absent.
func FormatISO(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// =============================================================================
// TRUNCATION
// =============================================================================

func TruncateToDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func TruncateToMinute(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return a.IsZero() && b.IsZero()
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// =============================================================================
// ARITHMETIC
// =============================================================================

func AddYears(t time.Time, n int) time.Time { return AddMonths(t, 12*n) }

// AddMonths adds n calendar months, clamping the day to the end of the
// resulting month.
func AddMonths(t time.Time, n int) time.Time {
	if t.IsZero() || n == 0 {
		return t
	}
	y, m, d := t.Date()
	total := int(m) - 1 + n
	ny := y + floorDiv(total, 12)
	nm := time.Month(total - floorDiv(total, 12)*12 + 1)
	if last := DaysInMonth(ny, nm); d > last {
		d = last
	}
	return time.Date(ny, nm, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func AddDays(t time.Time, n int) time.Time {
	if t.IsZero() {
		return t
	}
	return t.AddDate(0, 0, n)
}

func AddHours(t time.Time, n int) time.Time {
	if t.IsZero() {
		return t
	}
	return t.Add(time.Duration(n) * time.Hour)
}

func AddMinutes(t time.Time, n int) time.Time {
	if t.IsZero() {
		return t
	}
	return t.Add(time.Duration(n) * time.Minute)
}

// DateAfter adds years, then months, then days.
func DateAfter(base time.Time, years, months, days int) time.Time {
	if base.IsZero() {
		return base
	}
	return AddDays(AddMonths(AddYears(base, years), months), days)
}

// DaysInMonth returns the number of days in the month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func StartOfMonth(year int, month time.Month) time.Time { return NewDate(year, month, 1) }

func EndOfMonth(year int, month time.Month) time.Time {
	return NewDate(year, month, DaysInMonth(year, month))
}

// =============================================================================
// DIFFERENCES
// =============================================================================

// DaysBetween returns the whole days from start to end, truncated toward
// zero. Absent arguments yield 0.
func DaysBetween(start, end time.Time) int {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	return int(end.Sub(start) / (24 * time.Hour))
}

// MonthsBetween counts calendar months crossed from start to end.
func MonthsBetween(start, end time.Time) int {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	return (end.Year()*12 + int(end.Month())) - (start.Year()*12 + int(start.Month()))
}

// HoursBetween returns the whole hours from standard to date, rounded toward
// negative infinity. 90 minutes is 1, minus 90 minutes is -2.
func HoursBetween(date, standard time.Time) int {
	if date.IsZero() || standard.IsZero() {
		return 0
	}
	diff := date.Sub(standard)
	h := diff / time.Hour
	if diff < 0 && diff%time.Hour != 0 {
		h--
	}
	return int(h)
}

// =============================================================================
// INTERVALS
// =============================================================================

// IntervalContains reports whether target lies in [start, end]. An absent
// start checks only the upper bound, an absent end checks only the lower
// bound, and with both absent every present target is contained.
func IntervalContains(target, start, end time.Time) bool {
	if target.IsZero() {
		return false
	}
	if !start.IsZero() && target.Before(start) {
		return false
	}
	if !end.IsZero() && target.After(end) {
		return false
	}
	return true
}

// InDateAfter reports whether target falls between start and the date
// years/months/days later. The last day is excluded unless containLastDay.
func InDateAfter(target, start time.Time, years, months, days int, containLastDay bool) bool {
	if target.IsZero() {
		return false
	}
	end := DateAfter(start, years, months, days)
	if !containLastDay {
		end = AddDays(end, -1)
	}
	return IntervalContains(target, start, end)
}

// DateRange returns every day from start to end inclusive.
func DateRange(start, end time.Time) []time.Time {
	if start.IsZero() || end.IsZero() {
		return nil
	}
	start, end = TruncateToDay(start), TruncateToDay(end)
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
