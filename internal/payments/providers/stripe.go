package providers

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	"github.com/nmarchetti-dev/tradepost-backend/pkg/config"
	pkgerrors "github.com/nmarchetti-dev/tradepost-backend/pkg/errors"
)

var errStripeAPIKeyRequired = errors.New("stripe api key is required")

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeIntentAPIFunc func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)

func (f stripeIntentAPIFunc) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return f(params)
}

// StripeClient creates PaymentIntents through the Stripe SDK.
type StripeClient struct {
	api stripeIntentAPI
}

// NewStripeClient initializes the Stripe SDK once with the configured key.
func NewStripeClient(cfg config.StripeConfig) (*StripeClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errStripeAPIKeyRequired
	}
	stripe.Key = apiKey
	return &StripeClient{api: stripeIntentAPIFunc(paymentintent.New)}, nil
}

// CreateCharge opens a Stripe PaymentIntent. The intent ID is the external
// reference echoed back by the payment_intent.* webhook events.
func (c *StripeClient) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(strings.ToLower(string(req.Currency))),
	}
	params.Context = ctx
	params.AddMetadata("orderId", req.OrderID.String())
	if req.BuyerEmail != "" {
		params.ReceiptEmail = stripe.String(req.BuyerEmail)
	}

	intent, err := c.api.New(params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe payment intent")
	}
	if intent == nil || intent.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe response missing intent id")
	}

	result := &ChargeResult{ExternalRef: intent.ID}
	if intent.ClientSecret != "" {
		secret := intent.ClientSecret
		result.ClientSecret = &secret
	}
	return result, nil
}
