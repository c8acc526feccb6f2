package generic

import (
	"fmt"
	"time"
)

// CalendarSystem selects how FormatDate renders the year.
type CalendarSystem int

const (
	Gregorian CalendarSystem = iota
	JapaneseEra
)

type era struct {
	name  string
	start time.Time
}

// Newest first.
var japaneseEras = []era{
	{"令和", NewDate(2019, time.May, 1)},
	{"平成", NewDate(1989, time.January, 8)},
	{"昭和", NewDate(1926, time.December, 25)},
	{"大正", NewDate(1912, time.July, 30)},
	{"明治", NewDate(1868, time.January, 25)},
}

// FormatDate renders t in the requested calendar system. Gregorian dates use
// yyyy/MM/dd; era dates use <era><year>年MM月dd日. Dates before the first
// known era fall back to Gregorian.
func FormatDate(t time.Time, cal CalendarSystem) string {
	if t.IsZero() {
		return ""
	}
	if cal == JapaneseEra {
		day := NewDate(t.Year(), t.Month(), t.Day())
		for _, e := range japaneseEras {
			if !day.Before(e.start) {
				return fmt.Sprintf("%s%d年%02d月%02d日", e.name, t.Year()-e.start.Year()+1, t.Month(), t.Day())
			}
		}
	}
	return t.Format("2006/01/02")
}
