package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Stripe implements Processor with PaymentIntents charged off-session
// against the customer's saved card.
type Stripe struct {
	api *client.API
}

// NewStripe builds a client whose every request is bounded by timeout.
// The library's own network retries are disabled; retrying is the
// caller's decision and is made safe by idempotency keys.
func NewStripe(secretKey string, timeout time.Duration) *Stripe {
	cfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
	}
	return &Stripe{api: client.New(secretKey, backends)}
}

func (s *Stripe) CreateOrGetCustomer(ctx context.Context, email string) (string, error) {
	list := &stripe.CustomerListParams{Email: stripe.String(email)}
	list.Context = ctx
	list.Limit = stripe.Int64(1)

	it := s.api.Customers.List(list)
	if it.Next() {
		return it.Customer().ID, nil
	}
	if err := it.Err(); err != nil {
		return "", mapError(err)
	}

	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	params.SetIdempotencyKey("customer-" + email)
	c, err := s.api.Customers.New(params)
	if err != nil {
		return "", mapError(err)
	}
	return c.ID, nil
}

func (s *Stripe) DefaultInstrument(ctx context.Context, customerID string) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	c, err := s.api.Customers.Get(customerID, params)
	if err != nil {
		return "", mapError(err)
	}
	if c.InvoiceSettings != nil && c.InvoiceSettings.DefaultPaymentMethod != nil {
		return c.InvoiceSettings.DefaultPaymentMethod.ID, nil
	}

	list := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	list.Context = ctx
	list.Limit = stripe.Int64(1)

	it := s.api.PaymentMethods.List(list)
	if it.Next() {
		return it.PaymentMethod().ID, nil
	}
	if err := it.Err(); err != nil {
		return "", mapError(err)
	}
	return "", ErrNoInstrument
}

func (s *Stripe) Charge(ctx context.Context, req ChargeRequest) (Result, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(MinorUnits(req.Amount)),
		Currency:      stripe.String(req.Currency),
		Customer:      stripe.String(req.CustomerID),
		PaymentMethod: stripe.String(req.InstrumentID),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return Result{}, mapError(err)
	}

	res := Result{ID: pi.ID, Status: paymentIntentStatus(pi.Status)}
	if pi.LastPaymentError != nil {
		res.FailureReason = pi.LastPaymentError.Msg
	}
	return res, nil
}

func (s *Stripe) Refund(ctx context.Context, req RefundRequest) (Result, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.ChargeID),
		Amount:        stripe.Int64(MinorUnits(req.Amount)),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	r, err := s.api.Refunds.New(params)
	if err != nil {
		return Result{}, mapError(err)
	}
	return Result{ID: r.ID, Status: refundStatus(r.Status), FailureReason: string(r.FailureReason)}, nil
}

func paymentIntentStatus(s stripe.PaymentIntentStatus) Status {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		return StatusPending
	case stripe.PaymentIntentStatusRequiresPaymentMethod,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresConfirmation:
		// Off-session charges cannot complete authentication.
		return StatusDeclined
	case stripe.PaymentIntentStatusCanceled:
		return StatusCanceled
	}
	return StatusUnknown
}

func refundStatus(s stripe.RefundStatus) Status {
	switch s {
	case stripe.RefundStatusSucceeded:
		return StatusSucceeded
	case stripe.RefundStatusPending, stripe.RefundStatusRequiresAction:
		return StatusPending
	case stripe.RefundStatusFailed:
		return StatusDeclined
	case stripe.RefundStatusCanceled:
		return StatusCanceled
	}
	return StatusUnknown
}

func mapError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		// Transport failures and client timeouts.
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if se.HTTPStatusCode == 0 || se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= 500 {
		return fmt.Errorf("%w: %s", ErrUnavailable, se.Msg)
	}

	code := string(se.Code)
	if se.DeclineCode != "" {
		code = string(se.DeclineCode)
	}
	return &DeclineError{Code: code, Reason: se.Msg}
}
