package services

import (
	"context"

	"github.com/arnold/stakeit-api/internal/apperr"
	"github.com/arnold/stakeit-api/internal/models"
	"github.com/arnold/stakeit-api/internal/payments"
	"github.com/arnold/stakeit-api/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentService exposes stake operations and payment history to callers.
type PaymentService struct {
	store    *repository.Store
	payments *payments.Orchestrator
	notifier *Notifier
}

func NewPaymentService(store *repository.Store, orchestrator *payments.Orchestrator, notifier *Notifier) *PaymentService {
	return &PaymentService{store: store, payments: orchestrator, notifier: notifier}
}

// AuthorizeStake records the stake for a goal. amount defaults to the
// goal's total stake.
func (s *PaymentService) AuthorizeStake(ctx context.Context, userID, goalID uuid.UUID, amount *decimal.Decimal) (*models.Payment, error) {
	var payment *models.Payment
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		goal, err := s.lockOwnedGoal(ctx, tx, userID, goalID)
		if err != nil {
			return err
		}
		if goal.Status.Terminal() {
			return apperr.New(apperr.KindInvalidState, "Goal is "+string(goal.Status))
		}
		stake := goal.TotalStakeAmount
		if amount != nil {
			stake = *amount
		}
		payment, err = s.payments.AuthorizeStake(ctx, tx, userID, goal, stake)
		return err
	})
	if err != nil {
		return nil, apperr.As(err)
	}
	return payment, nil
}

// CaptureStake charges the goal's authorized stake. A declined capture is
// persisted on the authorization and returned with the error.
func (s *PaymentService) CaptureStake(ctx context.Context, userID, goalID uuid.UUID) (*models.Payment, error) {
	var (
		payment    *models.Payment
		captureErr error
	)
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		goal, err := s.lockOwnedGoal(ctx, tx, userID, goalID)
		if err != nil {
			return err
		}
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return lookup(err, "User")
		}
		payment, captureErr = s.payments.CaptureStake(ctx, tx, user, goal)
		if captureErr != nil && !nonFatalPaymentKind(captureErr) {
			return captureErr
		}
		return nil
	})
	if err != nil {
		return nil, apperr.As(err)
	}
	if captureErr != nil {
		return payment, apperr.As(captureErr)
	}
	return payment, nil
}

// RefundStake returns the goal's captured stake to the user.
func (s *PaymentService) RefundStake(ctx context.Context, userID, goalID uuid.UUID) (*models.Payment, error) {
	var (
		goal      *models.Goal
		refund    *models.Payment
		refundErr error
	)
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		goal, err = s.lockOwnedGoal(ctx, tx, userID, goalID)
		if err != nil {
			return err
		}
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return lookup(err, "User")
		}
		refund, refundErr = s.payments.RefundStake(ctx, tx, user, goal)
		if refundErr != nil && (refund == nil || !nonFatalPaymentKind(refundErr)) {
			return refundErr
		}
		return nil
	})
	if err != nil {
		return nil, apperr.As(err)
	}
	if refundErr != nil {
		return refund, apperr.As(refundErr)
	}

	if refund.Status == models.PaymentStatusCompleted {
		s.notifier.StakeRefunded(ctx, goal, refund)
	}
	return refund, nil
}

// ListForGoal returns the goal's payments, newest first.
func (s *PaymentService) ListForGoal(ctx context.Context, userID, goalID uuid.UUID) ([]models.Payment, error) {
	if _, err := s.ownedGoal(ctx, s.store, userID, goalID); err != nil {
		return nil, err
	}
	list, err := s.store.ListPayments(ctx, repository.PaymentFilter{UserID: userID, GoalID: &goalID})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return list, nil
}

// List returns all of the caller's payments, optionally of one type.
func (s *PaymentService) List(ctx context.Context, userID uuid.UUID, paymentType models.PaymentType) ([]models.Payment, error) {
	f := repository.PaymentFilter{UserID: userID}
	if paymentType != "" {
		f.Types = []models.PaymentType{paymentType}
	}
	list, err := s.store.ListPayments(ctx, f)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return list, nil
}

func (s *PaymentService) ownedGoal(ctx context.Context, store *repository.Store, userID, goalID uuid.UUID) (*models.Goal, error) {
	goal, err := store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, lookup(err, "Goal")
	}
	if err := ensureOwner(goal, userID); err != nil {
		return nil, err
	}
	return goal, nil
}

// lockOwnedGoal is ownedGoal with the goal row locked until the transaction
// ends, so stake reads and writes for one goal do not interleave.
func (s *PaymentService) lockOwnedGoal(ctx context.Context, tx *repository.Store, userID, goalID uuid.UUID) (*models.Goal, error) {
	goal, err := tx.GetGoalForUpdate(ctx, goalID)
	if err != nil {
		return nil, lookup(err, "Goal")
	}
	if err := ensureOwner(goal, userID); err != nil {
		return nil, err
	}
	return goal, nil
}
