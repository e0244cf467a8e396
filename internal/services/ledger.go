package services

import (
	"context"

	"github.com/arnold/stakeit-api/internal/calendar"
	"github.com/arnold/stakeit-api/internal/models"
	"github.com/arnold/stakeit-api/internal/repository"
	"github.com/arnold/stakeit-api/internal/streak"
	"github.com/shopspring/decimal"
)

// The ledger functions below are the only code that writes Goal counters.
// They run on the transaction-bound Store that wrote the check-in and leave
// the goal dirty; the caller saves it in the same transaction.

// applyCheckIn folds a newly inserted check-in into the goal's counters.
func (s *GoalService) applyCheckIn(ctx context.Context, tx *repository.Store, goal *models.Goal, checkIn *models.CheckIn) error {
	if checkIn.Completed {
		goal.SuccessfulDays++
	} else {
		goal.FailedDays++
	}

	history, err := tx.ListCheckIns(ctx, goal.ID, repository.DateRange{})
	if err != nil {
		return err
	}

	newest := len(history) == 0 || history[len(history)-1].Date == checkIn.Date
	if newest {
		goal.CurrentStreak = checkIn.StreakCount
		if goal.CurrentStreak > goal.LongestStreak {
			goal.LongestStreak = goal.CurrentStreak
		}
	} else {
		// A backdated entry can join or split runs that come after it.
		if err := restreakAfter(ctx, tx, history, checkIn.Date); err != nil {
			return err
		}
		s.refreshStreaks(goal, history)
	}

	goal.MissedDays = missedDays(goal, history, s.clock.today())
	return nil
}

// reviseCheckIn applies a completed/failed flip made by an update.
func (s *GoalService) reviseCheckIn(ctx context.Context, tx *repository.Store, goal *models.Goal, wasCompleted bool, checkIn *models.CheckIn) error {
	if wasCompleted != checkIn.Completed {
		if checkIn.Completed {
			goal.SuccessfulDays++
			goal.FailedDays--
		} else {
			goal.SuccessfulDays--
			goal.FailedDays++
		}
	}

	history, err := tx.ListCheckIns(ctx, goal.ID, repository.DateRange{})
	if err != nil {
		return err
	}
	if err := restreakAfter(ctx, tx, history, checkIn.Date); err != nil {
		return err
	}
	s.refreshStreaks(goal, history)
	return nil
}

// restreakAfter recomputes the stored streak of every check-in dated after
// date, in ascending order. history must be the goal's full ascending
// history including the row just written; it is updated in place.
func restreakAfter(ctx context.Context, tx *repository.Store, history []models.CheckIn, date string) error {
	days := toDays(history)
	for i := range history {
		c := &history[i]
		if c.Date <= date {
			continue
		}
		want := streak.Incremental(days, calendar.MustParse(c.Date), c.Completed)
		if want == c.StreakCount {
			continue
		}
		if err := tx.SetStreakCount(ctx, c.ID, want); err != nil {
			return err
		}
		c.StreakCount = want
	}
	return nil
}

// recordPenalty adds a settled penalty to the goal's running total.
func (s *GoalService) recordPenalty(goal *models.Goal, payment *models.Payment) {
	if payment == nil || payment.Status != models.PaymentStatusCompleted {
		return
	}
	goal.TotalPaid = goal.TotalPaid.Add(payment.Amount)
}

func (s *GoalService) refreshStreaks(goal *models.Goal, history []models.CheckIn) {
	stats := streak.Compute(toDays(history), calendar.MustParse(s.clock.today()))
	goal.CurrentStreak = stats.CurrentStreak
	goal.LongestStreak = stats.LongestStreak
}

// recompute derives every counter from the stored history. It is the source
// of truth the cached counters are checked against.
func (s *GoalService) recompute(ctx context.Context, store *repository.Store, goal *models.Goal) (*models.GoalStats, error) {
	history, err := store.ListCheckIns(ctx, goal.ID, repository.DateRange{})
	if err != nil {
		return nil, err
	}
	penalties, err := store.ListPayments(ctx, repository.PaymentFilter{
		GoalID:   &goal.ID,
		Types:    []models.PaymentType{models.PaymentTypeFailurePenalty},
		Statuses: []models.PaymentStatus{models.PaymentStatusCompleted},
	})
	if err != nil {
		return nil, err
	}

	today := s.clock.today()
	computed := streak.Compute(toDays(history), calendar.MustParse(today))

	totalPaid := decimal.Zero
	for _, p := range penalties {
		totalPaid = totalPaid.Add(p.Amount)
	}

	stats := &models.GoalStats{
		GoalID:         goal.ID,
		CurrentStreak:  computed.CurrentStreak,
		LongestStreak:  computed.LongestStreak,
		TotalCheckIns:  computed.TotalCheckIns,
		CompletedDays:  computed.CompletedCount,
		FailedDays:     computed.FailedCount,
		MissedDays:     missedDays(goal, history, today),
		CompletionRate: computed.CompletionRate,
		DaysRemaining:  daysRemaining(goal, today),
		TotalPaid:      totalPaid,
		Cached:         goal.Counters(),
	}
	if computed.LastCheckIn != nil {
		last := calendar.Format(*computed.LastCheckIn)
		stats.LastCheckIn = &last
	}
	stats.Drift = !stats.Cached.Equal(stats.Counters())
	return stats, nil
}

func toDays(history []models.CheckIn) []streak.Day {
	days := make([]streak.Day, 0, len(history))
	for _, c := range history {
		date, err := calendar.Parse(c.Date)
		if err != nil {
			continue
		}
		days = append(days, streak.Day{Date: date, Completed: c.Completed})
	}
	return days
}

// missedDays counts days from the start date through yesterday (capped at
// the end date) that have no check-in. Today is never missed yet.
func missedDays(goal *models.Goal, history []models.CheckIn, today string) int {
	start, err := calendar.Parse(goal.StartDate)
	if err != nil {
		return 0
	}
	end, err := calendar.Parse(goal.EndDate)
	if err != nil {
		return 0
	}
	yesterday := calendar.AddDays(calendar.MustParse(today), -1)
	if yesterday.Before(end) {
		end = yesterday
	}
	return streak.MissedDays(toDays(history), start, end)
}

func daysRemaining(goal *models.Goal, today string) int {
	if today < goal.StartDate {
		return goal.DurationDays
	}
	if today > goal.EndDate {
		return 0
	}
	return calendar.DaysBetween(calendar.MustParse(today), calendar.MustParse(goal.EndDate)) + 1
}
