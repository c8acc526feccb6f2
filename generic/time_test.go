package generic_test

import (
	"testing"
	"time"

	"github.com/warp/attendance-engine/generic"
)

func day(y int, m time.Month, d int) time.Time { return generic.NewDate(y, m, d) }

// =============================================================================
// ARITHMETIC
// =============================================================================

func TestDateAfter_AppliesYearMonthDayInOrder(t *testing.T) {
	// GIVEN: 2013-02-28
	// WHEN: 1 year, 1 month, 1 day later
	// THEN: 2014-03-29 (year and month resolve before the day increment)
	got := generic.DateAfter(day(2013, time.February, 28), 1, 1, 1)
	if !got.Equal(day(2014, time.March, 29)) {
		t.Fatalf("DateAfter = %s, want 2014-03-29", got.Format(generic.DateLayout))
	}
}

func TestAddMonths_ClampsToMonthEnd(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		n    int
		want time.Time
	}{
		{"jan31 plus one", day(2025, time.January, 31), 1, day(2025, time.February, 28)},
		{"leap year", day(2024, time.January, 31), 1, day(2024, time.February, 29)},
		{"backwards across year", day(2025, time.March, 31), -13, day(2024, time.February, 29)},
		{"no clamp needed", day(2025, time.January, 15), 2, day(2025, time.March, 15)},
		{"twelve months", day(2025, time.May, 31), 12, day(2026, time.May, 31)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := generic.AddMonths(tt.in, tt.n); !got.Equal(tt.want) {
				t.Errorf("AddMonths(%s, %d) = %s, want %s", tt.in.Format(generic.DateLayout), tt.n,
					got.Format(generic.DateLayout), tt.want.Format(generic.DateLayout))
			}
		})
	}
}

func TestAddYears_LeapDay(t *testing.T) {
	got := generic.AddYears(day(2024, time.February, 29), 1)
	if !got.Equal(day(2025, time.February, 28)) {
		t.Errorf("AddYears(2024-02-29, 1) = %s", got.Format(generic.DateLayout))
	}
}

func TestAddHoursMinutes(t *testing.T) {
	base := time.Date(2025, time.March, 10, 23, 30, 0, 0, time.UTC)
	if got := generic.AddHours(base, 1); !got.Equal(time.Date(2025, time.March, 11, 0, 30, 0, 0, time.UTC)) {
		t.Errorf("AddHours = %v", got)
	}
	if got := generic.AddMinutes(base, -45); !got.Equal(time.Date(2025, time.March, 10, 22, 45, 0, 0, time.UTC)) {
		t.Errorf("AddMinutes = %v", got)
	}
}

func TestArithmetic_AbsentStaysAbsent(t *testing.T) {
	var zero time.Time
	if !generic.AddDays(zero, 3).IsZero() || !generic.AddMonths(zero, 1).IsZero() || !generic.DateAfter(zero, 1, 1, 1).IsZero() {
		t.Error("arithmetic on an absent date must stay absent")
	}
}

func TestTruncate(t *testing.T) {
	in := time.Date(2025, time.March, 10, 13, 47, 59, 999, time.UTC)
	if got := generic.TruncateToDay(in); !got.Equal(day(2025, time.March, 10)) {
		t.Errorf("TruncateToDay = %v", got)
	}
	if got := generic.TruncateToMinute(in); !got.Equal(time.Date(2025, time.March, 10, 13, 47, 0, 0, time.UTC)) {
		t.Errorf("TruncateToMinute = %v", got)
	}
}

// =============================================================================
// DIFFERENCES
// =============================================================================

func TestDaysBetween(t *testing.T) {
	if got := generic.DaysBetween(day(2025, time.January, 1), day(2025, time.March, 1)); got != 59 {
		t.Errorf("DaysBetween = %d, want 59", got)
	}
	// Partial days truncate.
	end := time.Date(2025, time.January, 2, 23, 0, 0, 0, time.UTC)
	if got := generic.DaysBetween(day(2025, time.January, 1), end); got != 1 {
		t.Errorf("DaysBetween partial = %d, want 1", got)
	}
	if got := generic.DaysBetween(time.Time{}, end); got != 0 {
		t.Errorf("DaysBetween absent = %d, want 0", got)
	}
}

func TestMonthsBetween(t *testing.T) {
	if got := generic.MonthsBetween(day(2024, time.November, 30), day(2025, time.February, 1)); got != 3 {
		t.Errorf("MonthsBetween = %d, want 3", got)
	}
	if got := generic.MonthsBetween(day(2025, time.February, 1), day(2024, time.November, 30)); got != -3 {
		t.Errorf("MonthsBetween reversed = %d, want -3", got)
	}
}

func TestHoursBetween_FloorsNegativeDifferences(t *testing.T) {
	std := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		date time.Time
		want int
	}{
		{std.Add(90 * time.Minute), 1},
		{std.Add(2 * time.Hour), 2},
		{std.Add(-90 * time.Minute), -2},
		{std.Add(-2 * time.Hour), -2},
		{std.Add(-1 * time.Minute), -1},
		{std, 0},
	}
	for _, tt := range tests {
		if got := generic.HoursBetween(tt.date, std); got != tt.want {
			t.Errorf("HoursBetween(%v) = %d, want %d", tt.date.Sub(std), got, tt.want)
		}
	}
}

// =============================================================================
// INTERVALS
// =============================================================================

func TestIntervalContains(t *testing.T) {
	start, end := day(2025, time.April, 1), day(2025, time.April, 30)
	var none time.Time
	tests := []struct {
		name   string
		target time.Time
		start  time.Time
		end    time.Time
		want   bool
	}{
		{"inside", day(2025, time.April, 15), start, end, true},
		{"start bound inclusive", start, start, end, true},
		{"end bound inclusive", end, start, end, true},
		{"before", day(2025, time.March, 31), start, end, false},
		{"open start below end", day(2020, time.January, 1), none, end, true},
		{"open start above end", day(2025, time.May, 1), none, end, false},
		{"open end above start", day(2030, time.January, 1), start, none, true},
		{"open end below start", day(2025, time.March, 1), start, none, false},
		{"both open", day(2025, time.March, 1), none, none, true},
		{"absent target", none, start, end, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := generic.IntervalContains(tt.target, tt.start, tt.end); got != tt.want {
				t.Errorf("IntervalContains = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInDateAfter(t *testing.T) {
	start := day(2025, time.January, 31)
	// One month later clamps to Feb 28.
	if !generic.InDateAfter(day(2025, time.February, 28), start, 0, 1, 0, true) {
		t.Error("last day should be contained when containLastDay")
	}
	if generic.InDateAfter(day(2025, time.February, 28), start, 0, 1, 0, false) {
		t.Error("last day should be excluded without containLastDay")
	}
	if generic.InDateAfter(time.Time{}, start, 0, 1, 0, true) {
		t.Error("absent target is never contained")
	}
}

func TestDateRange(t *testing.T) {
	got := generic.DateRange(day(2025, time.February, 27), day(2025, time.March, 2))
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	if !got[2].Equal(day(2025, time.March, 1)) {
		t.Errorf("got[2] = %v", got[2])
	}
	if generic.DateRange(day(2025, time.March, 2), day(2025, time.March, 1)) != nil {
		t.Error("reversed range should be empty")
	}
}

// =============================================================================
// CALENDAR FORMATTING
// =============================================================================

func TestFormatDate_CalendarSystems(t *testing.T) {
	tests := []struct {
		date time.Time
		cal  generic.CalendarSystem
		want string
	}{
		{day(2025, time.October, 19), generic.Gregorian, "2025/10/19"},
		{day(2025, time.October, 19), generic.JapaneseEra, "令和7年10月19日"},
		{day(2019, time.April, 30), generic.JapaneseEra, "平成31年04月30日"},
		{day(2019, time.May, 1), generic.JapaneseEra, "令和1年05月01日"},
		{day(1989, time.January, 7), generic.JapaneseEra, "昭和64年01月07日"},
		{day(1850, time.January, 1), generic.JapaneseEra, "1850/01/01"},
		{time.Time{}, generic.JapaneseEra, ""},
	}
	for _, tt := range tests {
		if got := generic.FormatDate(tt.date, tt.cal); got != tt.want {
			t.Errorf("FormatDate(%s, %d) = %q, want %q", tt.date.Format(generic.DateLayout), tt.cal, got, tt.want)
		}
	}
}
