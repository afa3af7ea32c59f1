// Package calendar holds the date arithmetic used for due dates.
//
// Due dates are calendar dates: they are represented as time.Time values at
// midnight UTC and never carry a time of day.
package calendar

import "time"

const Layout = "2006-01-02"

// Date returns midnight UTC of the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the time of day of t, keeping the calendar day t has in its own location.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// Parse reads a YYYY-MM-DD date.
func Parse(s string) (time.Time, error) {
	return time.ParseInLocation(Layout, s, time.UTC)
}

// Format renders t as YYYY-MM-DD.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// DaysIn returns the number of days of month in year.
func DaysIn(year int, month time.Month) int {
	return Date(year, month+1, 0).Day()
}

// AddMonths moves t forward (or back) by n calendar months and pins the result to
// anchorDay, clamping to the last day of the target month. Unlike time.AddDate,
// January 31 plus one month is February 28/29, never March 2/3.
// An anchorDay <= 0 uses t's own day of month.
func AddMonths(t time.Time, n int, anchorDay int) time.Time {
	if anchorDay <= 0 {
		anchorDay = t.Day()
	}
	y, m, _ := t.Date()
	total := int(m) - 1 + n
	y += floorDiv(total, 12)
	m = time.Month(total-floorDiv(total, 12)*12) + 1

	day := anchorDay
	if last := DaysIn(y, m); day > last {
		day = last
	}
	return Date(y, m, day)
}

// DaysBetween returns the number of whole days elapsed from `from` to `to`,
// rounded down; negative when to is before from.
func DaysBetween(from, to time.Time) int {
	d := to.Sub(from)
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
