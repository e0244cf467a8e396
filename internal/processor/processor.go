// Package processor is the boundary to the external card-payment processor.
// Vendor statuses and errors are mapped here to a closed set so callers
// never match on vendor strings.
package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type Status int

const (
	StatusUnknown Status = iota
	// StatusSucceeded means money moved.
	StatusSucceeded
	// StatusPending means the processor accepted the request but has not
	// settled it yet.
	StatusPending
	// StatusDeclined means the processor refused the request.
	StatusDeclined
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusPending:
		return "pending"
	case StatusDeclined:
		return "declined"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

var (
	// ErrUnavailable wraps timeouts, network failures and processor-side
	// outages. The outcome of the request is unknown.
	ErrUnavailable = errors.New("payment processor unavailable")
	// ErrNoInstrument is returned when the customer has no usable card.
	ErrNoInstrument = errors.New("no default payment instrument")
)

// DeclineError is an explicit refusal from the processor.
type DeclineError struct {
	Code   string
	Reason string
}

func (e *DeclineError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("declined (%s): %s", e.Code, e.Reason)
	}
	return "declined: " + e.Reason
}

type ChargeRequest struct {
	CustomerID     string
	InstrumentID   string
	Amount         decimal.Decimal
	Currency       string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

type RefundRequest struct {
	ChargeID       string
	Amount         decimal.Decimal
	Metadata       map[string]string
	IdempotencyKey string
}

type Result struct {
	ID            string
	Status        Status
	FailureReason string
}

type Processor interface {
	CreateOrGetCustomer(ctx context.Context, email string) (string, error)
	DefaultInstrument(ctx context.Context, customerID string) (string, error)
	Charge(ctx context.Context, req ChargeRequest) (Result, error)
	Refund(ctx context.Context, req RefundRequest) (Result, error)
}

// MinorUnits converts a 2-digit decimal amount to the smallest currency unit.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// Disabled is used when no processor credentials are configured. Every
// call reports the processor as unavailable so no money movement is ever
// assumed.
type Disabled struct{}

func (Disabled) CreateOrGetCustomer(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: not configured", ErrUnavailable)
}

func (Disabled) DefaultInstrument(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: not configured", ErrUnavailable)
}

func (Disabled) Charge(context.Context, ChargeRequest) (Result, error) {
	return Result{}, fmt.Errorf("%w: not configured", ErrUnavailable)
}

func (Disabled) Refund(context.Context, RefundRequest) (Result, error) {
	return Result{}, fmt.Errorf("%w: not configured", ErrUnavailable)
}
