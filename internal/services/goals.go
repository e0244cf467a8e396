package services

import (
	"context"
	"strings"
	"time"

	"github.com/arnold/stakeit-api/internal/apperr"
	"github.com/arnold/stakeit-api/internal/calendar"
	"github.com/arnold/stakeit-api/internal/logger"
	"github.com/arnold/stakeit-api/internal/models"
	"github.com/arnold/stakeit-api/internal/payments"
	"github.com/arnold/stakeit-api/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GoalService owns the goal lifecycle and its cached counters.
type GoalService struct {
	store    *repository.Store
	payments *payments.Orchestrator
	clock    Clock
}

func NewGoalService(store *repository.Store, orchestrator *payments.Orchestrator, clock Clock) *GoalService {
	return &GoalService{store: store, payments: orchestrator, clock: clock}
}

// Create opens an Active goal and, for a positive stake, records the stake
// authorization in the same transaction.
func (s *GoalService) Create(ctx context.Context, userID uuid.UUID, req models.CreateGoalRequest) (*models.Goal, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperr.New(apperr.KindValidation, "Title is required")
	}
	if req.DurationDays < 1 || req.DurationDays > 365 {
		return nil, apperr.New(apperr.KindValidation, "Duration must be between 1 and 365 days")
	}
	if req.TotalStakeAmount.IsNegative() {
		return nil, apperr.New(apperr.KindValidation, "Stake amount cannot be negative")
	}
	if req.ReminderTime != nil {
		if _, err := time.Parse("15:04", *req.ReminderTime); err != nil {
			return nil, apperr.New(apperr.KindValidation, "Reminder time must be HH:MM")
		}
	}

	startDate := s.clock.today()
	if req.StartDate != nil && *req.StartDate != "" {
		if _, err := calendar.Parse(*req.StartDate); err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, "Start date must be YYYY-MM-DD", err)
		}
		startDate = *req.StartDate
	}
	start := calendar.MustParse(startDate)

	category := req.Category
	if category == "" {
		category = "general"
	}

	total := req.TotalStakeAmount.Round(2)
	goal := &models.Goal{
		UserID:           userID,
		Title:            title,
		Description:      req.Description,
		Category:         category,
		Status:           models.GoalStatusActive,
		StartDate:        startDate,
		EndDate:          calendar.Format(calendar.AddDays(start, req.DurationDays-1)),
		DurationDays:     req.DurationDays,
		TotalStakeAmount: total,
		DailyStakeAmount: models.DailyStake(total, req.DurationDays),
		Currency:         s.payments.Currency(),
		ReminderTime:     req.ReminderTime,
		TotalPaid:        decimal.Zero,
	}

	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.CreateGoal(ctx, goal); err != nil {
			return apperr.Internal(err)
		}
		if total.IsPositive() {
			if _, err := s.payments.AuthorizeStake(ctx, tx, userID, goal, total); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperr.As(err)
	}

	logger.Info("goal created", "goal", goal.ID, "user", userID, "days", goal.DurationDays, "daily", goal.DailyStakeAmount.StringFixed(2))
	return goal, nil
}

func (s *GoalService) Get(ctx context.Context, userID, goalID uuid.UUID) (*models.Goal, error) {
	goal, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, lookup(err, "Goal")
	}
	if err := ensureOwner(goal, userID); err != nil {
		return nil, err
	}
	return goal, nil
}

func (s *GoalService) List(ctx context.Context, userID uuid.UUID, status models.GoalStatus) ([]models.Goal, error) {
	goals, err := s.store.ListGoals(ctx, repository.GoalFilter{UserID: userID, Status: status})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return goals, nil
}

func (s *GoalService) Pause(ctx context.Context, userID, goalID uuid.UUID) (*models.Goal, error) {
	return s.transition(ctx, userID, goalID, func(goal *models.Goal) error {
		if goal.Status != models.GoalStatusActive {
			return apperr.New(apperr.KindInvalidTransition, "Only active goals can be paused")
		}
		goal.Status = models.GoalStatusPaused
		return nil
	})
}

func (s *GoalService) Resume(ctx context.Context, userID, goalID uuid.UUID) (*models.Goal, error) {
	return s.transition(ctx, userID, goalID, func(goal *models.Goal) error {
		if goal.Status != models.GoalStatusPaused {
			return apperr.New(apperr.KindInvalidTransition, "Only paused goals can be resumed")
		}
		goal.Status = models.GoalStatusActive
		return nil
	})
}

func (s *GoalService) Cancel(ctx context.Context, userID, goalID uuid.UUID) (*models.Goal, error) {
	return s.transition(ctx, userID, goalID, func(goal *models.Goal) error {
		if goal.Status.Terminal() {
			return apperr.New(apperr.KindInvalidTransition, "Goal is already "+string(goal.Status))
		}
		goal.Status = models.GoalStatusCancelled
		return nil
	})
}

func (s *GoalService) transition(ctx context.Context, userID, goalID uuid.UUID, apply func(*models.Goal) error) (*models.Goal, error) {
	var goal *models.Goal
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		goal, err = tx.GetGoalForUpdate(ctx, goalID)
		if err != nil {
			return lookup(err, "Goal")
		}
		if err := ensureOwner(goal, userID); err != nil {
			return err
		}
		from := goal.Status
		if err := apply(goal); err != nil {
			return err
		}
		if err := tx.SaveGoal(ctx, goal); err != nil {
			return apperr.Internal(err)
		}
		logger.Info("goal status changed", "goal", goal.ID, "from", from, "to", goal.Status)
		return nil
	})
	if err != nil {
		return nil, apperr.As(err)
	}
	return goal, nil
}

// Stats recomputes the goal's statistics from its full history and reports
// whether the cached counters have drifted. Drift is logged, not repaired.
func (s *GoalService) Stats(ctx context.Context, userID, goalID uuid.UUID) (*models.GoalStats, error) {
	goal, err := s.Get(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	stats, err := s.recompute(ctx, s.store, goal)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if stats.Drift {
		logger.Warn("goal counters drifted", "goal", goal.ID, "cached", stats.Cached, "recomputed", stats.Counters())
	}
	return stats, nil
}

// Reconcile rewrites the cached counters from the recompute.
func (s *GoalService) Reconcile(ctx context.Context, userID, goalID uuid.UUID) (*models.GoalStats, error) {
	var stats *models.GoalStats
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		goal, err := tx.GetGoalForUpdate(ctx, goalID)
		if err != nil {
			return lookup(err, "Goal")
		}
		if err := ensureOwner(goal, userID); err != nil {
			return err
		}
		if stats, err = s.reconcile(ctx, tx, goal); err != nil {
			return apperr.Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.As(err)
	}
	return stats, nil
}

// ReconcileAny repairs a goal without an ownership check, for operators.
func (s *GoalService) ReconcileAny(ctx context.Context, goalID uuid.UUID) (*models.GoalStats, error) {
	var stats *models.GoalStats
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		goal, err := tx.GetGoalForUpdate(ctx, goalID)
		if err != nil {
			return lookup(err, "Goal")
		}
		if stats, err = s.reconcile(ctx, tx, goal); err != nil {
			return apperr.Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.As(err)
	}
	return stats, nil
}

func (s *GoalService) reconcile(ctx context.Context, tx *repository.Store, goal *models.Goal) (*models.GoalStats, error) {
	stats, err := s.recompute(ctx, tx, goal)
	if err != nil {
		return nil, err
	}

	fresh := stats.Counters()
	goal.SuccessfulDays = fresh.SuccessfulDays
	goal.FailedDays = fresh.FailedDays
	goal.MissedDays = fresh.MissedDays
	goal.CurrentStreak = fresh.CurrentStreak
	goal.LongestStreak = fresh.LongestStreak
	goal.TotalPaid = fresh.TotalPaid
	if err := tx.SaveGoal(ctx, goal); err != nil {
		return nil, err
	}

	if stats.Drift {
		logger.Info("goal counters reconciled", "goal", goal.ID, "was", stats.Cached, "now", fresh)
	}
	stats.Cached = fresh
	stats.Drift = false
	return stats, nil
}
