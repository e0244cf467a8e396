// Package calendar handles date-only values. Dates are stored and exchanged
// as YYYY-MM-DD strings and manipulated as UTC midnights.
package calendar

import (
	"fmt"
	"time"
)

const Layout = "2006-01-02"

// Parse reads a YYYY-MM-DD string into a UTC midnight.
func Parse(s string) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// MustParse is Parse for literals in tests and fixtures.
func MustParse(s string) time.Time {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func Format(t time.Time) string {
	return Day(t).Format(Layout)
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current UTC calendar date as a string.
func Today(now time.Time) string {
	return Format(now)
}

func AddDays(t time.Time, n int) time.Time {
	return Day(t).AddDate(0, 0, n)
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}
