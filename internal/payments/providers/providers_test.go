package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/nmarchetti-dev/tradepost-backend/pkg/config"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/enums"
	pkgerrors "github.com/nmarchetti-dev/tradepost-backend/pkg/errors"
)

func TestPaystackCreateCharge(t *testing.T) {
	var gotAuth string
	var gotBody paystackInitializeRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/initialize" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]any{
				"authorization_url": "https://checkout.paystack.com/abc123",
				"reference":         gotBody.Reference,
			},
		})
	}))
	defer server.Close()

	client, err := NewPaystackClient(config.PaystackConfig{SecretKey: "sk_test_x", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	result, err := client.CreateCharge(context.Background(), ChargeRequest{
		OrderID:     uuid.New(),
		Reference:   "ord-ref-1",
		AmountCents: 150000,
		Currency:    enums.CurrencyNGN,
		BuyerEmail:  "buyer@example.com",
	})
	if err != nil {
		t.Fatalf("create charge: %v", err)
	}

	if gotAuth != "Bearer sk_test_x" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotBody.Amount != 150000 {
		t.Fatalf("expected subunit amount 150000, got %d", gotBody.Amount)
	}
	if result.ExternalRef != "ord-ref-1" {
		t.Fatalf("unexpected reference %s", result.ExternalRef)
	}
	if result.CheckoutURL == nil || *result.CheckoutURL != "https://checkout.paystack.com/abc123" {
		t.Fatalf("checkout url not mapped")
	}
}

func TestPaystackCreateChargeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": false, "message": "Invalid key"})
	}))
	defer server.Close()

	client, _ := NewPaystackClient(config.PaystackConfig{SecretKey: "sk_test_x", BaseURL: server.URL})
	_, err := client.CreateCharge(context.Background(), ChargeRequest{Reference: "r", AmountCents: 100, Currency: enums.CurrencyNGN})
	if codeOf(err) != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestPaystackCreateChargeUpstreamStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, _ := NewPaystackClient(config.PaystackConfig{SecretKey: "sk_test_x", BaseURL: server.URL})
	_, err := client.CreateCharge(context.Background(), ChargeRequest{Reference: "r", AmountCents: 100, Currency: enums.CurrencyNGN})
	if codeOf(err) != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestFlutterwaveCreateChargeSendsMajorUnits(t *testing.T) {
	var gotBody flutterwavePaymentRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]any{"link": "https://checkout.flutterwave.com/pay/xyz"},
		})
	}))
	defer server.Close()

	client, err := NewFlutterwaveClient(config.FlutterwaveConfig{SecretKey: "flw_sk", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	result, err := client.CreateCharge(context.Background(), ChargeRequest{
		Reference:   "tx-ref-9",
		AmountCents: 250050,
		Currency:    enums.CurrencyGHS,
		BuyerEmail:  "buyer@example.com",
	})
	if err != nil {
		t.Fatalf("create charge: %v", err)
	}

	if gotBody.Amount != "2500.5" {
		t.Fatalf("expected major unit amount 2500.5, got %s", gotBody.Amount)
	}
	if result.ExternalRef != "tx-ref-9" {
		t.Fatalf("tx_ref must be the external reference, got %s", result.ExternalRef)
	}
	if result.CheckoutURL == nil || *result.CheckoutURL != "https://checkout.flutterwave.com/pay/xyz" {
		t.Fatalf("payment link not mapped")
	}
}

func TestFlutterwaveCreateChargeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "error", "message": "invalid currency"})
	}))
	defer server.Close()

	client, _ := NewFlutterwaveClient(config.FlutterwaveConfig{SecretKey: "flw_sk", BaseURL: server.URL})
	_, err := client.CreateCharge(context.Background(), ChargeRequest{Reference: "r", AmountCents: 100, Currency: enums.CurrencyUSD})
	if codeOf(err) != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestStripeCreateCharge(t *testing.T) {
	client := &StripeClient{api: stripeIntentAPIFunc(func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
		if *params.Amount != 9900 {
			t.Errorf("expected amount 9900, got %d", *params.Amount)
		}
		if *params.Currency != "usd" {
			t.Errorf("expected currency usd, got %s", *params.Currency)
		}
		return &stripe.PaymentIntent{ID: "pi_123", ClientSecret: "pi_123_secret"}, nil
	})}

	result, err := client.CreateCharge(context.Background(), ChargeRequest{
		OrderID:     uuid.New(),
		AmountCents: 9900,
		Currency:    enums.CurrencyUSD,
	})
	if err != nil {
		t.Fatalf("create charge: %v", err)
	}
	if result.ExternalRef != "pi_123" {
		t.Fatalf("intent id must be the external reference, got %s", result.ExternalRef)
	}
	if result.ClientSecret == nil || *result.ClientSecret != "pi_123_secret" {
		t.Fatalf("client secret not mapped")
	}
}

func TestRegistryFor(t *testing.T) {
	stripeClient := &StripeClient{}
	registry := Registry{enums.PaymentProviderStripe: stripeClient}

	if registry.For(enums.PaymentProviderStripe) != stripeClient {
		t.Fatal("expected registered client")
	}
	if registry.For(enums.PaymentProviderPaystack) != nil {
		t.Fatal("expected nil for unregistered provider")
	}
	if Registry(nil).For(enums.PaymentProviderStripe) != nil {
		t.Fatal("expected nil from nil registry")
	}
}

func codeOf(err error) pkgerrors.Code {
	if appErr := pkgerrors.As(err); appErr != nil {
		return appErr.Code()
	}
	return ""
}
