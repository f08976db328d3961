package payments

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/refund"
)

// Refunder issues refunds against the payment provider. amountCents of zero
// means a full refund.
type Refunder interface {
	Refund(ctx context.Context, paymentIntentID string, amountCents int64) error
}

// StripeRefunder refunds through Stripe's package-level client. stripe.Key
// must be set before use.
type StripeRefunder struct{}

func (StripeRefunder) Refund(ctx context.Context, paymentIntentID string, amountCents int64) error {
	if paymentIntentID == "" {
		return fmt.Errorf("refund: missing payment intent id")
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	if amountCents > 0 {
		params.Amount = stripe.Int64(amountCents)
	}
	params.Context = ctx
	_, err := refund.New(params)
	return err
}
