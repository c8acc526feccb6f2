package resolver

import (
	"time"

	"github.com/warp/attendance-engine/generic"
)

// Cutoff defines the closing day of an attendance period.
type Cutoff struct {
	generic.Version
	Name string `json:"name"`

	// CutoffDay is the last day of a period, 1-27; 0 (or anything outside
	// 1-27) closes at month end.
	CutoffDay int `json:"cutoff_day"`
}

// TermFor returns the cutoff period containing date.
func (c Cutoff) TermFor(date time.Time) (start, end time.Time) {
	d := generic.TruncateToDay(date)
	if d.IsZero() {
		return time.Time{}, time.Time{}
	}
	y, m, day := d.Date()
	if c.monthEnd() {
		return time.Date(y, m, 1, 0, 0, 0, 0, d.Location()), time.Date(y, m, generic.DaysInMonth(y, m), 0, 0, 0, 0, d.Location())
	}
	closing := time.Date(y, m, c.CutoffDay, 0, 0, 0, 0, d.Location())
	if day > c.CutoffDay {
		closing = generic.AddMonths(closing, 1)
	}
	return generic.AddDays(generic.AddMonths(closing, -1), 1), closing
}

// TermOf returns the cutoff period that closes in the given month.
func (c Cutoff) TermOf(year int, month time.Month) (start, end time.Time) {
	if c.monthEnd() {
		return generic.StartOfMonth(year, month), generic.EndOfMonth(year, month)
	}
	return c.TermFor(generic.NewDate(year, month, c.CutoffDay))
}

func (c Cutoff) monthEnd() bool { return c.CutoffDay <= 0 || c.CutoffDay > 27 }
