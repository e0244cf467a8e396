// Package apperr defines the error kinds surfaced by the service layer.
// Every error leaving a service is an *Error so handlers can map it to a
// status code without inspecting storage or processor errors.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound              Kind = "not_found"
	KindUnauthorized          Kind = "unauthorized"
	KindForbidden             Kind = "forbidden"
	KindInvalidState          Kind = "invalid_state"
	KindInvalidTransition     Kind = "invalid_transition"
	KindDuplicateCheckIn      Kind = "duplicate_check_in"
	KindPaymentMethodRequired Kind = "payment_method_required"
	KindProcessorUnavailable  Kind = "processor_unavailable"
	KindProcessorDeclined     Kind = "processor_declined"
	KindNothingToRefund       Kind = "nothing_to_refund"
	KindValidation            Kind = "validation"
	KindInternal              Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may safely repeat the operation.
func (e *Error) Retryable() bool {
	return e.Kind == KindProcessorUnavailable
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Internal wraps an unexpected error. The message shown to users is generic.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "Something went wrong, please try again", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As returns err as an *Error, wrapping it as internal when it is not one.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
