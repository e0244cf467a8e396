// Package streak computes streaks and completion statistics over a sparse
// daily history. Days without a check-in never break a streak; only an
// explicit failure does. Incremental and Compute implement the same
// backward walk and must stay in agreement.
package streak

import (
	"math"
	"sort"
	"time"

	"github.com/arnold/stakeit-api/internal/calendar"
)

// Day is one recorded check-in. Date is a UTC calendar date.
type Day struct {
	Date      time.Time
	Completed bool
}

type Stats struct {
	CurrentStreak  int
	LongestStreak  int
	TotalCheckIns  int
	CompletedCount int
	FailedCount    int
	CompletionRate float64
	LastCheckIn    *time.Time
}

// Incremental returns the streak value for a new check-in on date given the
// goal's earlier history. It walks back one calendar day at a time from
// date-1: a completed day extends the streak, a failed day ends the walk and
// a missing day is skipped. Entries on or after date are ignored.
func Incremental(prior []Day, date time.Time, completed bool) int {
	if !completed {
		return 0
	}

	date = calendar.Day(date)
	byDate := make(map[time.Time]bool, len(prior))
	var earliest time.Time
	for _, d := range prior {
		day := calendar.Day(d.Date)
		if !day.Before(date) {
			continue
		}
		byDate[day] = d.Completed
		if earliest.IsZero() || day.Before(earliest) {
			earliest = day
		}
	}
	if len(byDate) == 0 {
		return 1
	}

	count := 1
	for day := calendar.AddDays(date, -1); !day.Before(earliest); day = calendar.AddDays(day, -1) {
		done, ok := byDate[day]
		if !ok {
			continue
		}
		if !done {
			break
		}
		count++
	}
	return count
}

// Compute performs the full recompute over history as of today. Entries
// after today are excluded from the current streak but still count toward
// totals and the longest run.
func Compute(history []Day, today time.Time) Stats {
	days := Sorted(history)
	today = calendar.Day(today)

	var stats Stats
	stats.TotalCheckIns = len(days)

	run := 0
	for _, d := range days {
		if d.Completed {
			stats.CompletedCount++
			run++
			if run > stats.LongestStreak {
				stats.LongestStreak = run
			}
		} else {
			stats.FailedCount++
			run = 0
		}
	}

	for i := len(days) - 1; i >= 0; i-- {
		if days[i].Date.After(today) {
			continue
		}
		if !days[i].Completed {
			break
		}
		stats.CurrentStreak++
	}

	stats.CompletionRate = CompletionRate(stats.CompletedCount, stats.TotalCheckIns)

	if len(days) > 0 {
		last := days[len(days)-1].Date
		stats.LastCheckIn = &last
	}
	return stats
}

// CompletionRate returns completed/total*100 rounded to two decimals, or 0
// when there are no check-ins.
func CompletionRate(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	rate := float64(completed) / float64(total) * 100
	return math.Round(rate*100) / 100
}

// MissedDays counts calendar days in [start, end] with no check-in.
func MissedDays(history []Day, start, end time.Time) int {
	start, end = calendar.Day(start), calendar.Day(end)
	if end.Before(start) {
		return 0
	}

	seen := make(map[time.Time]struct{}, len(history))
	for _, d := range history {
		day := calendar.Day(d.Date)
		if day.Before(start) || day.After(end) {
			continue
		}
		seen[day] = struct{}{}
	}
	return calendar.DaysBetween(start, end) + 1 - len(seen)
}

// Sorted returns a copy of history in ascending date order with dates
// normalized to UTC midnight.
func Sorted(history []Day) []Day {
	days := make([]Day, len(history))
	for i, d := range history {
		days[i] = Day{Date: calendar.Day(d.Date), Completed: d.Completed}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	return days
}
