package services

import (
	"context"
	"errors"
	"strings"

	"github.com/arnold/stakeit-api/internal/apperr"
	"github.com/arnold/stakeit-api/internal/calendar"
	"github.com/arnold/stakeit-api/internal/logger"
	"github.com/arnold/stakeit-api/internal/models"
	"github.com/arnold/stakeit-api/internal/payments"
	"github.com/arnold/stakeit-api/internal/repository"
	"github.com/arnold/stakeit-api/internal/streak"
	"github.com/google/uuid"
)

// CheckInService is the daily check-in state machine.
type CheckInService struct {
	store    *repository.Store
	goals    *GoalService
	payments *payments.Orchestrator
	notifier *Notifier
	clock    Clock
}

func NewCheckInService(store *repository.Store, goals *GoalService, orchestrator *payments.Orchestrator, notifier *Notifier, clock Clock) *CheckInService {
	return &CheckInService{store: store, goals: goals, payments: orchestrator, notifier: notifier, clock: clock}
}

// Submit records the caller's outcome for a goal on date (today when
// empty). Completed and failed outcomes create the day's single check-in; a
// failure with a positive daily stake is charged before commit. Payment
// failures are reported in the result and never undo the check-in.
func (s *CheckInService) Submit(ctx context.Context, userID, goalID uuid.UUID, req models.SubmitCheckInRequest) (*models.CheckInResult, error) {
	outcome := models.Outcome(strings.ToLower(string(req.Outcome)))
	if !outcome.Valid() {
		return nil, apperr.New(apperr.KindValidation, "Outcome must be one of completed, failed or defer")
	}

	today := s.clock.today()
	date := today
	if req.Date != nil && *req.Date != "" {
		if _, err := calendar.Parse(*req.Date); err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, "Date must be YYYY-MM-DD", err)
		}
		date = *req.Date
	}
	if date > today {
		return nil, apperr.New(apperr.KindValidation, "Cannot check in for a future date")
	}

	if outcome == models.OutcomeDefer {
		return s.deferCheckIn(ctx, userID, goalID, date)
	}

	completed := outcome == models.OutcomeCompleted
	result := &models.CheckInResult{}
	var (
		penaltyErr error
		charged    bool
	)

	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		goal, err := s.lockOpenGoal(ctx, tx, userID, goalID)
		if err != nil {
			return err
		}
		if date < goal.StartDate || date > goal.EndDate {
			return apperr.New(apperr.KindInvalidState, "Date is outside the goal's period")
		}

		prior, err := tx.CheckInsBefore(ctx, goal.ID, date)
		if err != nil {
			return apperr.Internal(err)
		}

		checkIn := &models.CheckIn{
			GoalID:      goal.ID,
			Date:        date,
			Completed:   completed,
			Notes:       req.Notes,
			CheckedInAt: s.clock.now().UTC(),
			StreakCount: streak.Incremental(toDays(prior), calendar.MustParse(date), completed),
		}
		if err := tx.InsertCheckIn(ctx, checkIn); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.New(apperr.KindDuplicateCheckIn, "You have already checked in for "+date)
			}
			return apperr.Internal(err)
		}

		if err := s.goals.applyCheckIn(ctx, tx, goal, checkIn); err != nil {
			return apperr.Internal(err)
		}

		if !completed {
			charged, penaltyErr = s.chargePenalty(ctx, tx, goal, checkIn, result)
			if penaltyErr != nil && !nonFatalPaymentKind(penaltyErr) {
				return penaltyErr
			}
		}

		if err := tx.SaveGoal(ctx, goal); err != nil {
			return apperr.Internal(err)
		}
		result.CheckIn = checkIn
		result.Goal = goal
		return nil
	})
	if err != nil {
		s.logOrphanedCharge(result.Payment, err)
		return nil, apperr.As(err)
	}

	logger.Info("check-in recorded", "goal", goalID, "date", date, "completed", completed, "streak", result.CheckIn.StreakCount)
	s.notifyPenalty(ctx, result, charged, penaltyErr)
	return result, nil
}

func (s *CheckInService) deferCheckIn(ctx context.Context, userID, goalID uuid.UUID, date string) (*models.CheckInResult, error) {
	goal, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, lookup(err, "Goal")
	}
	if err := ensureOwner(goal, userID); err != nil {
		return nil, err
	}
	if goal.Status != models.GoalStatusActive {
		return nil, apperr.New(apperr.KindInvalidState, "Goal is "+string(goal.Status)+", check-ins are closed")
	}
	if date < goal.StartDate || date > goal.EndDate {
		return nil, apperr.New(apperr.KindInvalidState, "Date is outside the goal's period")
	}

	s.notifier.ScheduleReminder(ctx, goal, date)
	return &models.CheckInResult{Deferred: true, Goal: goal}, nil
}

// Update revises the completed flag and/or notes. Flipping a success to a
// failure charges the penalty like Submit; flipping a failure to a success
// never reverses a charge.
func (s *CheckInService) Update(ctx context.Context, userID, checkInID uuid.UUID, req models.UpdateCheckInRequest) (*models.CheckInResult, error) {
	result := &models.CheckInResult{}
	var (
		penaltyErr error
		charged    bool
	)

	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		checkIn, err := tx.GetCheckInForUpdate(ctx, checkInID)
		if err != nil {
			return lookup(err, "Check-in")
		}
		goal, err := tx.GetGoalForUpdate(ctx, checkIn.GoalID)
		if err != nil {
			return lookup(err, "Goal")
		}
		if err := ensureOwner(goal, userID); err != nil {
			return err
		}
		if goal.Status.Terminal() {
			return apperr.New(apperr.KindInvalidState, "Goal is "+string(goal.Status)+", check-ins are closed")
		}

		wasCompleted := checkIn.Completed
		if req.Notes != nil {
			checkIn.Notes = req.Notes
		}
		if req.Completed != nil && *req.Completed != wasCompleted {
			prior, err := tx.CheckInsBefore(ctx, goal.ID, checkIn.Date)
			if err != nil {
				return apperr.Internal(err)
			}
			checkIn.Completed = *req.Completed
			checkIn.StreakCount = streak.Incremental(toDays(prior), calendar.MustParse(checkIn.Date), checkIn.Completed)
		}
		if err := tx.SaveCheckIn(ctx, checkIn); err != nil {
			return apperr.Internal(err)
		}

		if wasCompleted != checkIn.Completed {
			if err := s.goals.reviseCheckIn(ctx, tx, goal, wasCompleted, checkIn); err != nil {
				return apperr.Internal(err)
			}
			if !checkIn.Completed && !checkIn.PaymentProcessed {
				charged, penaltyErr = s.chargePenalty(ctx, tx, goal, checkIn, result)
				if penaltyErr != nil && !nonFatalPaymentKind(penaltyErr) {
					return penaltyErr
				}
			}
			if err := tx.SaveGoal(ctx, goal); err != nil {
				return apperr.Internal(err)
			}
		}

		result.CheckIn = checkIn
		result.Goal = goal
		return nil
	})
	if err != nil {
		s.logOrphanedCharge(result.Payment, err)
		return nil, apperr.As(err)
	}

	s.notifyPenalty(ctx, result, charged, penaltyErr)
	return result, nil
}

// Delete hard-removes a check-in. Counters and payments are left as they
// are; Stats reports the resulting drift and Reconcile repairs it.
func (s *CheckInService) Delete(ctx context.Context, userID, checkInID uuid.UUID) error {
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		checkIn, err := tx.GetCheckIn(ctx, checkInID)
		if err != nil {
			return lookup(err, "Check-in")
		}
		goal, err := tx.GetGoal(ctx, checkIn.GoalID)
		if err != nil {
			return lookup(err, "Goal")
		}
		if err := ensureOwner(goal, userID); err != nil {
			return err
		}
		if err := tx.DeleteCheckIn(ctx, checkIn.ID); err != nil {
			return lookup(err, "Check-in")
		}
		logger.Info("check-in deleted", "goal", goal.ID, "date", checkIn.Date, "paymentProcessed", checkIn.PaymentProcessed)
		return nil
	})
	if err != nil {
		return apperr.As(err)
	}
	return nil
}

// Today returns the caller's check-in for the current UTC date, or nil.
func (s *CheckInService) Today(ctx context.Context, userID, goalID uuid.UUID) (*models.CheckIn, error) {
	goal, err := s.goals.Get(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	checkIn, err := s.store.GetCheckInByDate(ctx, goal.ID, s.clock.today())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return checkIn, nil
}

// List returns the goal's check-ins in date order, bounded by r.
func (s *CheckInService) List(ctx context.Context, userID, goalID uuid.UUID, r repository.DateRange) ([]models.CheckIn, error) {
	for _, d := range []string{r.From, r.To} {
		if d == "" {
			continue
		}
		if _, err := calendar.Parse(d); err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, "Dates must be YYYY-MM-DD", err)
		}
	}

	goal, err := s.goals.Get(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	checkIns, err := s.store.ListCheckIns(ctx, goal.ID, r)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return checkIns, nil
}

// ChargePenalty retries the penalty for a failed check-in left unprocessed
// by a decline or an outage.
func (s *CheckInService) ChargePenalty(ctx context.Context, userID, checkInID uuid.UUID) (*models.CheckInResult, error) {
	result := &models.CheckInResult{}
	var (
		penaltyErr error
		charged    bool
	)

	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		checkIn, err := tx.GetCheckInForUpdate(ctx, checkInID)
		if err != nil {
			return lookup(err, "Check-in")
		}
		goal, err := tx.GetGoalForUpdate(ctx, checkIn.GoalID)
		if err != nil {
			return lookup(err, "Goal")
		}
		if err := ensureOwner(goal, userID); err != nil {
			return err
		}
		if checkIn.Completed {
			return apperr.New(apperr.KindInvalidState, "Completed check-ins carry no penalty")
		}
		if !goal.DailyStakeAmount.IsPositive() {
			return apperr.New(apperr.KindInvalidState, "Goal has no stake")
		}

		charged, penaltyErr = s.chargePenalty(ctx, tx, goal, checkIn, result)
		if penaltyErr != nil && !nonFatalPaymentKind(penaltyErr) {
			return penaltyErr
		}
		if err := tx.SaveGoal(ctx, goal); err != nil {
			return apperr.Internal(err)
		}
		result.CheckIn = checkIn
		result.Goal = goal
		return nil
	})
	if err != nil {
		s.logOrphanedCharge(result.Payment, err)
		return nil, apperr.As(err)
	}

	s.notifyPenalty(ctx, result, charged, penaltyErr)
	return result, nil
}

// chargePenalty runs the orchestrator inside tx and folds a newly settled
// charge into the goal total. It reports whether money moved on this call.
// The returned error is the orchestrator's; callers decide whether it is
// fatal.
func (s *CheckInService) chargePenalty(ctx context.Context, tx *repository.Store, goal *models.Goal, checkIn *models.CheckIn, result *models.CheckInResult) (bool, error) {
	if !goal.DailyStakeAmount.IsPositive() {
		return false, nil
	}

	user, err := tx.GetUser(ctx, goal.UserID)
	if err != nil {
		return false, lookup(err, "User")
	}

	alreadySettled := checkIn.PaymentProcessed
	payment, err := s.payments.ChargeFailurePenalty(ctx, tx, user, goal, checkIn, goal.DailyStakeAmount)
	result.Payment = payment
	if err != nil {
		result.PaymentError = paymentError(err)
		return false, err
	}

	charged := !alreadySettled && checkIn.PaymentProcessed
	if charged {
		s.goals.recordPenalty(goal, payment)
	}
	return charged, nil
}

func (s *CheckInService) lockOpenGoal(ctx context.Context, tx *repository.Store, userID, goalID uuid.UUID) (*models.Goal, error) {
	goal, err := tx.GetGoalForUpdate(ctx, goalID)
	if err != nil {
		return nil, lookup(err, "Goal")
	}
	if err := ensureOwner(goal, userID); err != nil {
		return nil, err
	}
	if goal.Status != models.GoalStatusActive {
		return nil, apperr.New(apperr.KindInvalidState, "Goal is "+string(goal.Status)+", check-ins are closed")
	}
	return goal, nil
}

// logOrphanedCharge reports money the processor took for a transaction that
// then failed to commit. The local record of it is gone.
func (s *CheckInService) logOrphanedCharge(payment *models.Payment, err error) {
	if payment == nil || payment.ProcessorTransactionID == nil {
		return
	}
	if payment.Status != models.PaymentStatusCompleted && payment.Status != models.PaymentStatusProcessing {
		return
	}
	logger.Error("orphaned processor charge",
		"processorTransaction", *payment.ProcessorTransactionID,
		"idempotencyKey", payment.IdempotencyKey,
		"checkIn", payment.CheckInID,
		"amount", payment.Amount.StringFixed(2),
		"err", err)
}

func (s *CheckInService) notifyPenalty(ctx context.Context, result *models.CheckInResult, charged bool, penaltyErr error) {
	if result.Goal == nil || result.CheckIn == nil {
		return
	}
	if penaltyErr != nil {
		s.notifier.PenaltyFailed(ctx, result.Goal, result.CheckIn, apperr.As(penaltyErr).Message)
		return
	}
	if charged {
		s.notifier.PenaltyCharged(ctx, result.Goal, result.Payment)
	}
}
