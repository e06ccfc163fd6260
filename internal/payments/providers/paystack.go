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

	"github.com/nmarchetti-dev/tradepost-backend/pkg/config"
	pkgerrors "github.com/nmarchetti-dev/tradepost-backend/pkg/errors"
)

const paystackBodyReadLimit int64 = 64 * 1024

var errPaystackSecretRequired = errors.New("paystack secret key is required")

// PaystackClient wraps the Paystack transaction-initialize API.
type PaystackClient struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
}

// PaystackOption configures optional client behavior.
type PaystackOption func(*PaystackClient)

// WithPaystackHTTPClient overrides the default HTTP client.
func WithPaystackHTTPClient(client *http.Client) PaystackOption {
	return func(c *PaystackClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewPaystackClient builds the Paystack client from config.
func NewPaystackClient(cfg config.PaystackConfig, opts ...PaystackOption) (*PaystackClient, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errPaystackSecretRequired
	}

	client := &PaystackClient{
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
		client.baseURL = "https://api.paystack.co"
	}
	return client, nil
}

type paystackInitializeRequest struct {
	Email     string `json:"email"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
}

type paystackInitializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// CreateCharge initializes a Paystack transaction. Amount is already in
// subunits, which is what Paystack expects.
func (c *PaystackClient) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	payload := paystackInitializeRequest{
		Email:     req.BuyerEmail,
		Amount:    req.AmountCents,
		Currency:  string(req.Currency),
		Reference: req.Reference,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode paystack request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build paystack request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call paystack")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, paystackBodyReadLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read paystack response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("paystack returned status %d", resp.StatusCode))
	}

	var decoded paystackInitializeResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode paystack response")
	}
	if !decoded.Status {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("paystack rejected charge: %s", decoded.Message))
	}
	if decoded.Data.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paystack response missing reference")
	}

	result := &ChargeResult{ExternalRef: decoded.Data.Reference}
	if decoded.Data.AuthorizationURL != "" {
		url := decoded.Data.AuthorizationURL
		result.CheckoutURL = &url
	}
	return result, nil
}
