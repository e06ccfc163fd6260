// Package providers holds the outbound charge clients for each supported
// PSP. Every client maps its provider's checkout call onto the shared
// ChargeRequest/ChargeResult pair so the payment service stays
// provider-agnostic.
package providers

import (
	"context"

	"github.com/google/uuid"

	"github.com/nmarchetti-dev/tradepost-backend/pkg/enums"
)

// ChargeRequest carries what every PSP needs to open a checkout.
type ChargeRequest struct {
	OrderID     uuid.UUID
	Reference   string
	AmountCents int64
	Currency    enums.Currency
	BuyerEmail  string
}

// ChargeResult is the normalized outcome of a charge initialization.
// ExternalRef is the PSP transaction reference later echoed by webhooks.
type ChargeResult struct {
	ExternalRef  string
	CheckoutURL  *string
	ClientSecret *string
}

// ChargeClient initializes a charge with one PSP.
type ChargeClient interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// Registry resolves the charge client for a provider.
type Registry map[enums.PaymentProvider]ChargeClient

// For returns the client registered for the provider, or nil.
func (r Registry) For(provider enums.PaymentProvider) ChargeClient {
	if r == nil {
		return nil
	}
	return r[provider]
}
