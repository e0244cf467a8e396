// Package processortest provides an in-memory processor.Processor for tests.
package processortest

import (
	"context"
	"fmt"
	"sync"

	"github.com/arnold/stakeit-api/internal/processor"
)

// Fake records every call and answers according to its fields. The zero
// value has no customers and no instruments; use New for a ready processor.
type Fake struct {
	mu sync.Mutex

	// NoInstrument makes DefaultInstrument report a missing card.
	NoInstrument bool
	// Decline makes Charge and Refund return a DeclineError.
	Decline bool
	// Unavailable makes every call fail with processor.ErrUnavailable.
	Unavailable bool
	// ChargeStatus and RefundStatus are returned on success; they default
	// to StatusSucceeded.
	ChargeStatus processor.Status
	RefundStatus processor.Status

	customers map[string]string
	// results replays the first answer for a repeated idempotency key.
	results map[string]processor.Result

	Charges []processor.ChargeRequest
	Refunds []processor.RefundRequest
	seq     int
}

func New() *Fake {
	return &Fake{
		ChargeStatus: processor.StatusSucceeded,
		RefundStatus: processor.StatusSucceeded,
	}
}

func (f *Fake) CreateOrGetCustomer(_ context.Context, email string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Unavailable {
		return "", fmt.Errorf("%w: fake outage", processor.ErrUnavailable)
	}
	if f.customers == nil {
		f.customers = make(map[string]string)
	}
	if id, ok := f.customers[email]; ok {
		return id, nil
	}
	f.seq++
	id := fmt.Sprintf("cus_%d", f.seq)
	f.customers[email] = id
	return id, nil
}

func (f *Fake) DefaultInstrument(_ context.Context, customerID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Unavailable {
		return "", fmt.Errorf("%w: fake outage", processor.ErrUnavailable)
	}
	if f.NoInstrument {
		return "", processor.ErrNoInstrument
	}
	return "pm_" + customerID, nil
}

func (f *Fake) Charge(_ context.Context, req processor.ChargeRequest) (processor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Charges = append(f.Charges, req)
	if f.Unavailable {
		return processor.Result{}, fmt.Errorf("%w: fake outage", processor.ErrUnavailable)
	}
	if f.Decline {
		return processor.Result{}, &processor.DeclineError{Code: "card_declined", Reason: "Your card was declined."}
	}
	return f.remember(req.IdempotencyKey, "pi", f.ChargeStatus), nil
}

func (f *Fake) Refund(_ context.Context, req processor.RefundRequest) (processor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Refunds = append(f.Refunds, req)
	if f.Unavailable {
		return processor.Result{}, fmt.Errorf("%w: fake outage", processor.ErrUnavailable)
	}
	if f.Decline {
		return processor.Result{}, &processor.DeclineError{Code: "charge_already_refunded", Reason: "Charge has already been refunded."}
	}
	return f.remember(req.IdempotencyKey, "re", f.RefundStatus), nil
}

func (f *Fake) remember(key, prefix string, status processor.Status) processor.Result {
	if f.results == nil {
		f.results = make(map[string]processor.Result)
	}
	if key != "" {
		if res, ok := f.results[key]; ok {
			return res
		}
	}
	f.seq++
	res := processor.Result{ID: fmt.Sprintf("%s_%d", prefix, f.seq), Status: status}
	if key != "" {
		f.results[key] = res
	}
	return res
}

// ChargeCount returns the number of Charge calls, including failed ones.
func (f *Fake) ChargeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Charges)
}

func (f *Fake) RefundCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Refunds)
}

// Set mutates the fake's behaviour under its lock.
func (f *Fake) Set(fn func(f *Fake)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// LastCharge returns the most recent charge request.
func (f *Fake) LastCharge() (processor.ChargeRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Charges) == 0 {
		return processor.ChargeRequest{}, false
	}
	return f.Charges[len(f.Charges)-1], true
}
