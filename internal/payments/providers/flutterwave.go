package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nmarchetti-dev/tradepost-backend/pkg/config"
	pkgerrors "github.com/nmarchetti-dev/tradepost-backend/pkg/errors"
)

const flutterwaveBodyReadLimit int64 = 64 * 1024

var errFlutterwaveSecretRequired = errors.New("flutterwave secret key is required")

// FlutterwaveClient wraps the Flutterwave standard payments API.
type FlutterwaveClient struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
}

// FlutterwaveOption configures optional client behavior.
type FlutterwaveOption func(*FlutterwaveClient)

// WithFlutterwaveHTTPClient overrides the default HTTP client.
func WithFlutterwaveHTTPClient(client *http.Client) FlutterwaveOption {
	return func(c *FlutterwaveClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewFlutterwaveClient builds the Flutterwave client from config.
func NewFlutterwaveClient(cfg config.FlutterwaveConfig, opts ...FlutterwaveOption) (*FlutterwaveClient, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errFlutterwaveSecretRequired
	}

	client := &FlutterwaveClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		secretKey:  secret,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.baseURL == "" {
		client.baseURL = "https://api.flutterwave.com/v3"
	}
	return client, nil
}

type flutterwavePaymentRequest struct {
	TxRef    string                     `json:"tx_ref"`
	Amount   string                     `json:"amount"`
	Currency string                     `json:"currency"`
	Customer flutterwavePaymentCustomer `json:"customer"`
}

type flutterwavePaymentCustomer struct {
	Email string `json:"email"`
}

type flutterwavePaymentResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Link string `json:"link"`
	} `json:"data"`
}

// CreateCharge opens a Flutterwave hosted payment. Flutterwave takes the
// amount in major units, so cents are shifted before sending.
func (c *FlutterwaveClient) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	payload := flutterwavePaymentRequest{
		TxRef:    req.Reference,
		Amount:   decimal.NewFromInt(req.AmountCents).Shift(-2).String(),
		Currency: string(req.Currency),
		Customer: flutterwavePaymentCustomer{Email: req.BuyerEmail},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode flutterwave request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build flutterwave request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call flutterwave")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, flutterwaveBodyReadLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read flutterwave response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("flutterwave returned status %d", resp.StatusCode))
	}

	var decoded flutterwavePaymentResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode flutterwave response")
	}
	if !strings.EqualFold(decoded.Status, "success") {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("flutterwave rejected charge: %s", decoded.Message))
	}

	result := &ChargeResult{ExternalRef: req.Reference}
	if decoded.Data.Link != "" {
		link := decoded.Data.Link
		result.CheckoutURL = &link
	}
	return result, nil
}
