// Package billing reports call usage for metered billing.
package billing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/client"
)

// Reporter records one completed call's usage.
type Reporter interface {
	ReportCall(ctx context.Context, callSID string, duration time.Duration) error
}

// StripeReporter sends one billing meter event per completed call, valued in
// whole seconds.
type StripeReporter struct {
	api        *client.API
	eventName  string
	customerID string
}

// NewStripeReporter creates a reporter against the given meter event name and
// customer.
func NewStripeReporter(apiKey, eventName, customerID string) *StripeReporter {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeReporter{
		api:        api,
		eventName:  eventName,
		customerID: customerID,
	}
}

// ReportCall sends the meter event. The call SID doubles as the event
// identifier so retries cannot double-bill.
func (r *StripeReporter) ReportCall(ctx context.Context, callSID string, duration time.Duration) error {
	params := &stripe.BillingMeterEventParams{
		EventName:  stripe.String(r.eventName),
		Identifier: stripe.String(callSID),
		Payload: map[string]string{
			"value":              strconv.Itoa(billedSeconds(duration)),
			"stripe_customer_id": r.customerID,
		},
	}
	params.Context = ctx

	if _, err := r.api.BillingMeterEvents.New(params); err != nil {
		return fmt.Errorf("meter event for %s: %w", callSID, err)
	}
	return nil
}

// billedSeconds rounds a call down to whole seconds, with a one-second
// minimum so short calls still meter.
func billedSeconds(d time.Duration) int {
	seconds := int(d.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return seconds
}

// NopReporter is used when billing is not configured.
type NopReporter struct{}

// ReportCall does nothing.
func (NopReporter) ReportCall(context.Context, string, time.Duration) error {
	return nil
}
