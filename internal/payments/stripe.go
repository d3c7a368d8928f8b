package payments

import (
	"context"
	"strconv"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// StripeClient places a manual-capture hold for an order's estimated fare and
// captures or releases it when the order ends.
type StripeClient struct {
	Currency   string
	CustomerID string
}

func NewStripeClient(apiKey, currency, customerID string) *StripeClient {
	stripe.Key = apiKey
	if currency == "" {
		currency = "lkr"
	}
	return &StripeClient{Currency: currency, CustomerID: customerID}
}

// Hold creates a PaymentIntent with capture_method=manual. The order id is
// the idempotency key, so a restarted client re-attaching a pending order
// gets the same hold back.
func (s *StripeClient) Hold(ctx context.Context, orderID int64, amount int64) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(s.Currency),
	}
	params.Context = ctx
	if s.CustomerID != "" {
		params.Customer = stripe.String(s.CustomerID)
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	params.AddMetadata("order_id", strconv.FormatInt(orderID, 10))
	params.SetIdempotencyKey("order-hold-" + strconv.FormatInt(orderID, 10))
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

func (s *StripeClient) Capture(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	_, err := paymentintent.Capture(paymentIntentID, params)
	return err
}

// Cancel releases the hold.
func (s *StripeClient) Cancel(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	_, err := paymentintent.Cancel(paymentIntentID, params)
	return err
}
