// Package payments moves money through the processor and keeps the Payment
// audit trail in step with it. Every operation runs against the caller's
// transaction-bound Store, so the payment rows commit or roll back together
// with the check-in or goal write that caused them.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arnold/stakeit-api/internal/apperr"
	"github.com/arnold/stakeit-api/internal/locks"
	"github.com/arnold/stakeit-api/internal/logger"
	"github.com/arnold/stakeit-api/internal/models"
	"github.com/arnold/stakeit-api/internal/processor"
	"github.com/arnold/stakeit-api/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Options struct {
	Currency string
	Charity  string
	// Timeout bounds each processor call.
	Timeout time.Duration
	Locker  locks.Locker
	Now     func() time.Time
}

type Orchestrator struct {
	processor processor.Processor
	locker    locks.Locker
	currency  string
	charity   string
	timeout   time.Duration
	now       func() time.Time
}

func New(p processor.Processor, opts Options) *Orchestrator {
	o := &Orchestrator{
		processor: p,
		locker:    opts.Locker,
		currency:  opts.Currency,
		charity:   opts.Charity,
		timeout:   opts.Timeout,
		now:       opts.Now,
	}
	if o.locker == nil {
		o.locker = locks.NewLocal()
	}
	if o.currency == "" {
		o.currency = "usd"
	}
	if o.timeout <= 0 {
		o.timeout = 10 * time.Second
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

func (o *Orchestrator) Currency() string {
	return o.currency
}

// AuthorizeStake records that the user committed amount to goal. No money
// moves. Repeated calls for the same goal return the existing record.
func (o *Orchestrator) AuthorizeStake(ctx context.Context, store *repository.Store, userID uuid.UUID, goal *models.Goal, amount decimal.Decimal) (*models.Payment, error) {
	if !amount.IsPositive() {
		return nil, apperr.New(apperr.KindValidation, "Stake amount must be greater than zero")
	}

	release, err := o.lockStake(ctx, goal)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := store.LatestPayment(ctx, repository.PaymentFilter{
		GoalID: &goal.ID,
		Types:  []models.PaymentType{models.PaymentTypeStakeAuthorization},
	})
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internal(err)
	}

	payment := &models.Payment{
		UserID:         userID,
		GoalID:         &goal.ID,
		Amount:         amount.Round(2),
		Currency:       o.currency,
		Type:           models.PaymentTypeStakeAuthorization,
		Status:         models.PaymentStatusAuthorized,
		IdempotencyKey: "stake-" + goal.ID.String(),
		Metadata:       datatypes.JSONMap{"goalId": goal.ID.String()},
	}
	if err := store.CreatePayment(ctx, payment); err != nil {
		return nil, apperr.Internal(err)
	}

	logger.Info("stake authorized", "goal", goal.ID, "amount", payment.Amount.StringFixed(2))
	return payment, nil
}

// CaptureStake charges the goal's authorized stake. A decline leaves the
// authorization in place with the failure recorded so capture can be retried
// with another card.
func (o *Orchestrator) CaptureStake(ctx context.Context, store *repository.Store, user *models.User, goal *models.Goal) (*models.Payment, error) {
	release, err := o.lockStake(ctx, goal)
	if err != nil {
		return nil, err
	}
	defer release()

	stake, err := store.LatestPayment(ctx, repository.PaymentFilter{
		GoalID: &goal.ID,
		Types:  []models.PaymentType{models.PaymentTypeStakeAuthorization},
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.KindInvalidState, "Goal has no stake to capture")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	switch stake.Status {
	case models.PaymentStatusCompleted, models.PaymentStatusProcessing:
		return stake, nil
	case models.PaymentStatusAuthorized:
	default:
		return nil, apperr.New(apperr.KindInvalidState, fmt.Sprintf("Stake is %s and cannot be captured", stake.Status))
	}

	customerID, instrumentID, err := o.resolveInstrument(ctx, store, user)
	if err != nil {
		return nil, err
	}

	attempts := intMeta(stake.Metadata, "captureAttempts")
	res, err := o.charge(ctx, processor.ChargeRequest{
		CustomerID:     customerID,
		InstrumentID:   instrumentID,
		Amount:         stake.Amount,
		Currency:       stake.Currency,
		Description:    "Stake for goal: " + goal.Title,
		Metadata:       map[string]string{"goalId": goal.ID.String(), "userId": user.ID.String(), "type": string(stake.Type)},
		IdempotencyKey: fmt.Sprintf("stake-capture-%s-%d", stake.ID, attempts),
	})
	if err != nil {
		if apperr.Is(err, apperr.KindProcessorDeclined) {
			stake.FailureReason = strPtr(apperr.As(err).Message)
			stake.Metadata = withMeta(stake.Metadata, "captureAttempts", attempts+1)
			if uerr := store.UpdatePayment(ctx, stake); uerr != nil {
				return nil, apperr.Internal(uerr)
			}
		}
		return stake, err
	}

	stake.ProcessorTransactionID = &res.ID
	switch res.Status {
	case processor.StatusSucceeded:
		now := o.now().UTC()
		stake.Status = models.PaymentStatusCompleted
		stake.ProcessedAt = &now
		stake.FailureReason = nil
	case processor.StatusDeclined, processor.StatusCanceled:
		stake.ProcessorTransactionID = nil
		stake.FailureReason = strPtr(declineReason(res))
		stake.Metadata = withMeta(stake.Metadata, "captureAttempts", attempts+1)
		if err := store.UpdatePayment(ctx, stake); err != nil {
			return nil, apperr.Internal(err)
		}
		return stake, apperr.New(apperr.KindProcessorDeclined, *stake.FailureReason)
	default:
		stake.Status = models.PaymentStatusProcessing
	}

	if err := store.UpdatePayment(ctx, stake); err != nil {
		return nil, apperr.Internal(err)
	}
	logger.Info("stake captured", "goal", goal.ID, "payment", stake.ID, "status", stake.Status)
	return stake, nil
}

// ChargeFailurePenalty collects amount for a failed check-in. At most one
// penalty per check-in ever completes: a processed check-in or a completed
// penalty short-circuits without calling the processor, an outage leaves a
// pending row whose idempotency key the next attempt reuses, and only an
// explicit decline advances to a fresh key.
//
// The returned payment is non-nil whenever a row was written, including
// when the error is ProcessorDeclined or ProcessorUnavailable. On success the
// check-in is marked processed in store; goal totals are left to the caller.
func (o *Orchestrator) ChargeFailurePenalty(ctx context.Context, store *repository.Store, user *models.User, goal *models.Goal, checkIn *models.CheckIn, amount decimal.Decimal) (*models.Payment, error) {
	release, err := o.locker.Obtain(ctx, "penalty:"+checkIn.ID.String(), o.timeout*2)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProcessorUnavailable, "A charge for this check-in is already in progress", err)
	}
	defer release()

	if checkIn.PaymentProcessed && checkIn.PaymentID != nil {
		existing, err := store.GetPayment(ctx, *checkIn.PaymentID)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		return existing, nil
	}

	prior, err := store.ListPayments(ctx, repository.PaymentFilter{
		CheckInID: &checkIn.ID,
		Types:     []models.PaymentType{models.PaymentTypeFailurePenalty},
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	var (
		payment  *models.Payment
		declined int
	)
	for i := range prior {
		p := &prior[i]
		switch p.Status {
		case models.PaymentStatusCompleted:
			// Settled earlier but the check-in was never marked.
			if err := o.markProcessed(ctx, store, checkIn, p); err != nil {
				return nil, err
			}
			return p, nil
		case models.PaymentStatusProcessing:
			return p, nil
		case models.PaymentStatusPending:
			if payment == nil {
				payment = p
			}
		case models.PaymentStatusFailed:
			declined++
		}
	}

	if !amount.IsPositive() {
		return nil, nil
	}

	customerID, instrumentID, err := o.resolveInstrument(ctx, store, user)
	if err != nil {
		return nil, err
	}

	if payment == nil {
		charity := o.charity
		payment = &models.Payment{
			UserID:         user.ID,
			GoalID:         &goal.ID,
			CheckInID:      &checkIn.ID,
			Amount:         amount.Round(2),
			Currency:       o.currency,
			Type:           models.PaymentTypeFailurePenalty,
			Status:         models.PaymentStatusPending,
			IdempotencyKey: fmt.Sprintf("penalty-%s-%d", checkIn.ID, declined),
			CharityName:    &charity,
			Metadata: datatypes.JSONMap{
				"goalId":    goal.ID.String(),
				"checkInId": checkIn.ID.String(),
				"date":      checkIn.Date,
			},
		}
		if err := store.CreatePayment(ctx, payment); err != nil {
			return nil, apperr.Internal(err)
		}
	}

	res, err := o.charge(ctx, processor.ChargeRequest{
		CustomerID:   customerID,
		InstrumentID: instrumentID,
		Amount:       payment.Amount,
		Currency:     payment.Currency,
		Description:  fmt.Sprintf("Missed goal \"%s\" on %s", goal.Title, checkIn.Date),
		Metadata: map[string]string{
			"goalId":    goal.ID.String(),
			"checkInId": checkIn.ID.String(),
			"userId":    user.ID.String(),
			"type":      string(models.PaymentTypeFailurePenalty),
		},
		IdempotencyKey: payment.IdempotencyKey,
	})
	if err != nil {
		return o.recordChargeError(ctx, store, payment, err)
	}

	now := o.now().UTC()
	payment.ProcessorTransactionID = &res.ID
	switch res.Status {
	case processor.StatusSucceeded:
		payment.Status = models.PaymentStatusCompleted
		payment.ProcessedAt = &now
		payment.FailureReason = nil
	case processor.StatusDeclined, processor.StatusCanceled:
		payment.Status = models.PaymentStatusFailed
		payment.ProcessedAt = &now
		payment.FailureReason = strPtr(declineReason(res))
	default:
		payment.Status = models.PaymentStatusProcessing
	}
	if err := store.UpdatePayment(ctx, payment); err != nil {
		return nil, apperr.Internal(err)
	}

	switch payment.Status {
	case models.PaymentStatusCompleted:
		if err := o.markProcessed(ctx, store, checkIn, payment); err != nil {
			return nil, err
		}
		logger.Info("penalty charged", "checkIn", checkIn.ID, "payment", payment.ID, "amount", payment.Amount.StringFixed(2))
	case models.PaymentStatusFailed:
		logger.Warn("penalty declined", "checkIn", checkIn.ID, "payment", payment.ID, "reason", *payment.FailureReason)
		return payment, apperr.New(apperr.KindProcessorDeclined, *payment.FailureReason)
	default:
		logger.Info("penalty pending settlement", "checkIn", checkIn.ID, "payment", payment.ID)
	}
	return payment, nil
}

// RefundStake returns the goal's captured stake in full. Repeated calls
// return the existing refund unless the previous attempt was declined.
func (o *Orchestrator) RefundStake(ctx context.Context, store *repository.Store, user *models.User, goal *models.Goal) (*models.Payment, error) {
	release, err := o.lockStake(ctx, goal)
	if err != nil {
		return nil, err
	}
	defer release()

	refunds, err := store.ListPayments(ctx, repository.PaymentFilter{
		GoalID: &goal.ID,
		Types:  []models.PaymentType{models.PaymentTypeRefund},
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	var (
		refund   *models.Payment
		declined int
	)
	for i := range refunds {
		r := &refunds[i]
		switch r.Status {
		case models.PaymentStatusCompleted, models.PaymentStatusProcessing:
			return r, nil
		case models.PaymentStatusPending:
			if refund == nil {
				refund = r
			}
		case models.PaymentStatusFailed:
			declined++
		}
	}

	stake, err := store.LatestPayment(ctx, repository.PaymentFilter{
		GoalID:   &goal.ID,
		Types:    []models.PaymentType{models.PaymentTypeStakeAuthorization},
		Statuses: []models.PaymentStatus{models.PaymentStatusCompleted},
	})
	if errors.Is(err, repository.ErrNotFound) || (err == nil && stake.ProcessorTransactionID == nil) {
		return nil, apperr.New(apperr.KindNothingToRefund, "No captured stake to refund for this goal")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if refund == nil {
		refund = &models.Payment{
			UserID:         user.ID,
			GoalID:         &goal.ID,
			Amount:         stake.Amount.Neg(),
			Currency:       stake.Currency,
			Type:           models.PaymentTypeRefund,
			Status:         models.PaymentStatusPending,
			IdempotencyKey: fmt.Sprintf("refund-%s-%d", stake.ID, declined),
			Metadata: datatypes.JSONMap{
				"goalId":         goal.ID.String(),
				"stakePaymentId": stake.ID.String(),
			},
		}
		if err := store.CreatePayment(ctx, refund); err != nil {
			return nil, apperr.Internal(err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	res, err := o.processor.Refund(callCtx, processor.RefundRequest{
		ChargeID:       *stake.ProcessorTransactionID,
		Amount:         stake.Amount,
		Metadata:       map[string]string{"goalId": goal.ID.String(), "userId": user.ID.String()},
		IdempotencyKey: refund.IdempotencyKey,
	})
	cancel()
	if err != nil {
		return o.recordChargeError(ctx, store, refund, classify(err))
	}

	now := o.now().UTC()
	refund.ProcessorTransactionID = &res.ID
	switch res.Status {
	case processor.StatusSucceeded:
		refund.Status = models.PaymentStatusCompleted
		refund.ProcessedAt = &now
	case processor.StatusDeclined, processor.StatusCanceled:
		refund.Status = models.PaymentStatusFailed
		refund.ProcessedAt = &now
		refund.FailureReason = strPtr(declineReason(res))
	default:
		refund.Status = models.PaymentStatusProcessing
	}
	if err := store.UpdatePayment(ctx, refund); err != nil {
		return nil, apperr.Internal(err)
	}

	if refund.Status == models.PaymentStatusFailed {
		return refund, apperr.New(apperr.KindProcessorDeclined, *refund.FailureReason)
	}
	if refund.Status == models.PaymentStatusCompleted {
		stake.Status = models.PaymentStatusRefunded
		if err := store.UpdatePayment(ctx, stake); err != nil {
			return nil, apperr.Internal(err)
		}
	}

	logger.Info("stake refund", "goal", goal.ID, "refund", refund.ID, "status", refund.Status)
	return refund, nil
}

// resolveInstrument finds or creates the processor customer for user and
// returns its default card. The customer id is cached on the user row.
func (o *Orchestrator) resolveInstrument(ctx context.Context, store *repository.Store, user *models.User) (string, string, error) {
	customerID := user.ProcessorCustomerID
	if customerID == "" {
		callCtx, cancel := context.WithTimeout(ctx, o.timeout)
		id, err := o.processor.CreateOrGetCustomer(callCtx, user.Email)
		cancel()
		if err != nil {
			return "", "", classify(err)
		}
		if err := store.SetProcessorCustomer(ctx, user.ID, id); err != nil {
			return "", "", apperr.Internal(err)
		}
		user.ProcessorCustomerID = id
		customerID = id
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	instrumentID, err := o.processor.DefaultInstrument(callCtx, customerID)
	if err != nil {
		return "", "", classify(err)
	}
	return customerID, instrumentID, nil
}

func (o *Orchestrator) charge(ctx context.Context, req processor.ChargeRequest) (processor.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	res, err := o.processor.Charge(callCtx, req)
	if err != nil {
		return processor.Result{}, classify(err)
	}
	return res, nil
}

// recordChargeError persists the outcome of a failed processor call. A
// decline fails the row; anything else leaves it pending for a retry with
// the same key.
func (o *Orchestrator) recordChargeError(ctx context.Context, store *repository.Store, payment *models.Payment, err error) (*models.Payment, error) {
	appErr := apperr.As(err)
	if appErr.Kind == apperr.KindProcessorDeclined {
		now := o.now().UTC()
		payment.Status = models.PaymentStatusFailed
		payment.ProcessedAt = &now
		payment.FailureReason = strPtr(appErr.Message)
		logger.Warn("processor declined", "payment", payment.ID, "type", payment.Type, "reason", appErr.Message)
	} else {
		payment.FailureReason = strPtr(appErr.Message)
		logger.Warn("processor unavailable", "payment", payment.ID, "type", payment.Type, "err", err)
	}
	if uerr := store.UpdatePayment(ctx, payment); uerr != nil {
		return nil, apperr.Internal(uerr)
	}
	return payment, appErr
}

func (o *Orchestrator) markProcessed(ctx context.Context, store *repository.Store, checkIn *models.CheckIn, payment *models.Payment) error {
	checkIn.PaymentProcessed = true
	checkIn.AmountCharged = decimal.NewNullDecimal(payment.Amount)
	checkIn.PaymentID = &payment.ID
	if err := store.SaveCheckIn(ctx, checkIn); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// classify maps processor errors onto the service error kinds. Timeouts and
// unrecognised failures are treated as unavailability: the outcome is unknown.
func classify(err error) *apperr.Error {
	var decline *processor.DeclineError
	switch {
	case errors.As(err, &decline):
		msg := decline.Reason
		if msg == "" {
			msg = "Your card was declined"
		}
		return apperr.Wrap(apperr.KindProcessorDeclined, msg, err)
	case errors.Is(err, processor.ErrNoInstrument):
		return apperr.Wrap(apperr.KindPaymentMethodRequired, "Add a payment method to continue", err)
	default:
		return apperr.Wrap(apperr.KindProcessorUnavailable, "The payment processor is unavailable, please try again", err)
	}
}

func declineReason(res processor.Result) string {
	if res.FailureReason != "" {
		return res.FailureReason
	}
	return "Payment " + res.Status.String()
}

func strPtr(s string) *string {
	return &s
}

// lockStake serializes authorize, capture and refund for one goal's stake.
func (o *Orchestrator) lockStake(ctx context.Context, goal *models.Goal) (func(), error) {
	release, err := o.locker.Obtain(ctx, "stake:"+goal.ID.String(), o.timeout*2)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProcessorUnavailable, "A stake operation for this goal is already in progress", err)
	}
	return release, nil
}

// intMeta reads a counter from metadata. Values loaded from the database
// arrive as json.Number; freshly set ones keep their Go type.
func intMeta(m datatypes.JSONMap, key string) int {
	switch v := m[key].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return int(n)
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func withMeta(m datatypes.JSONMap, key string, value interface{}) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range m {
		out[k] = v
	}
	out[key] = value
	return out
}
