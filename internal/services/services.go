// Package services holds the accountability core: the goal ledger, the
// check-in state machine and the payment operations exposed to handlers.
// Every operation takes the caller's user id explicitly and returns
// *apperr.Error values only.
package services

import (
	"errors"
	"time"

	"github.com/arnold/stakeit-api/internal/apperr"
	"github.com/arnold/stakeit-api/internal/calendar"
	"github.com/arnold/stakeit-api/internal/models"
	"github.com/arnold/stakeit-api/internal/repository"
	"github.com/google/uuid"
)

// Clock returns the current time. Services default to time.Now.
type Clock func() time.Time

func (c Clock) today() string {
	if c == nil {
		return calendar.Today(time.Now())
	}
	return calendar.Today(c())
}

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// lookup translates a repository read error for entity into a service error.
func lookup(err error, entity string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.New(apperr.KindNotFound, entity+" not found")
	}
	return apperr.Internal(err)
}

func ensureOwner(goal *models.Goal, userID uuid.UUID) error {
	if goal.UserID != userID {
		return apperr.New(apperr.KindForbidden, "You do not have access to this goal")
	}
	return nil
}

// paymentError summarises a non-fatal payment failure for a check-in result.
func paymentError(err error) *models.PaymentError {
	appErr := apperr.As(err)
	return &models.PaymentError{
		Kind:      string(appErr.Kind),
		Message:   appErr.Message,
		Retryable: appErr.Retryable(),
	}
}

// nonFatalPaymentKind reports whether a penalty failure of this kind leaves
// the check-in recorded.
func nonFatalPaymentKind(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindProcessorDeclined, apperr.KindProcessorUnavailable, apperr.KindPaymentMethodRequired:
		return true
	}
	return false
}
