package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	hooks "github.com/nmarchetti-dev/tradepost-backend/internal/webhooks"
	"github.com/nmarchetti-dev/tradepost-backend/internal/webhooks/signature"
	pkgerrors "github.com/nmarchetti-dev/tradepost-backend/pkg/errors"
)

type fakeHandler struct {
	result hooks.Result
	err    error
	calls  int
	body   []byte
}

func (f *fakeHandler) HandleEvent(_ context.Context, body []byte) (hooks.Result, error) {
	f.calls++
	f.body = body
	return f.result, f.err
}

func signPaystack(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func stripeHeader(secret string, at time.Time, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestPaystackWebhook_ValidSignature(t *testing.T) {
	secret := "sk_test_secret"
	verifier, err := signature.NewPaystackVerifier(secret)
	if err != nil {
		t.Fatalf("verifier setup: %v", err)
	}
	svc := &fakeHandler{result: hooks.ResultSettled}
	handler := PaystackWebhook(svc, verifier, nil, time.Second, nil)

	body := []byte(`{"event":"charge.success"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", bytes.NewReader(body))
	req.Header.Set("x-paystack-signature", signPaystack(secret, body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.calls != 1 {
		t.Fatalf("expected service called once, got %d", svc.calls)
	}
	if !bytes.Equal(svc.body, body) {
		t.Fatalf("service should receive the raw body unmodified")
	}
}

func TestPaystackWebhook_InvalidSignature(t *testing.T) {
	verifier, err := signature.NewPaystackVerifier("sk_test_secret")
	if err != nil {
		t.Fatalf("verifier setup: %v", err)
	}
	svc := &fakeHandler{result: hooks.ResultSettled}
	handler := PaystackWebhook(svc, verifier, nil, time.Second, nil)

	body := []byte(`{"event":"charge.success"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", bytes.NewReader(body))
	req.Header.Set("x-paystack-signature", signPaystack("wrong_secret", body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("service should not run on a rejected signature")
	}
}

func TestPaystackWebhook_MissingSignature(t *testing.T) {
	verifier, err := signature.NewPaystackVerifier("sk_test_secret")
	if err != nil {
		t.Fatalf("verifier setup: %v", err)
	}
	svc := &fakeHandler{result: hooks.ResultSettled}
	handler := PaystackWebhook(svc, verifier, nil, time.Second, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("service should not run without a signature")
	}
}

func TestFlutterwaveWebhook_TokenMatch(t *testing.T) {
	verifier, err := signature.NewFlutterwaveVerifier("flw-hash-token")
	if err != nil {
		t.Fatalf("verifier setup: %v", err)
	}
	svc := &fakeHandler{result: hooks.ResultIgnored}
	handler := FlutterwaveWebhook(svc, verifier, nil, time.Second, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/flutterwave", bytes.NewReader([]byte(`{"event":"other"}`)))
	req.Header.Set("verif-hash", "flw-hash-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.calls != 1 {
		t.Fatalf("expected service called once, got %d", svc.calls)
	}
}

func TestFlutterwaveWebhook_TokenMismatch(t *testing.T) {
	verifier, err := signature.NewFlutterwaveVerifier("flw-hash-token")
	if err != nil {
		t.Fatalf("verifier setup: %v", err)
	}
	svc := &fakeHandler{}
	handler := FlutterwaveWebhook(svc, verifier, nil, time.Second, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/flutterwave", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("verif-hash", "not-the-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("service should not run on a token mismatch")
	}
}

func TestStripeWebhook_ValidSignature(t *testing.T) {
	now := time.Now()
	verifier, err := signature.NewStripeVerifier("whsec_test", signature.DefaultStripeTolerance, nil)
	if err != nil {
		t.Fatalf("verifier setup: %v", err)
	}
	svc := &fakeHandler{result: hooks.ResultSettled}
	handler := StripeWebhook(svc, verifier, nil, time.Second, nil)

	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("stripe-signature", stripeHeader("whsec_test", now, body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.calls != 1 {
		t.Fatalf("expected service called once, got %d", svc.calls)
	}
}

func TestStripeWebhook_StaleTimestamp(t *testing.T) {
	verifier, err := signature.NewStripeVerifier("whsec_test", signature.DefaultStripeTolerance, nil)
	if err != nil {
		t.Fatalf("verifier setup: %v", err)
	}
	svc := &fakeHandler{}
	handler := StripeWebhook(svc, verifier, nil, time.Second, nil)

	body := []byte(`{"id":"evt_1"}`)
	stale := time.Now().Add(-time.Hour)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("stripe-signature", stripeHeader("whsec_test", stale, body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for stale delivery, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("service should not run on a stale delivery")
	}
}

func TestPaystackWebhook_TerminalWorkflowErrorAcked(t *testing.T) {
	secret := "sk_test_secret"
	verifier, err := signature.NewPaystackVerifier(secret)
	if err != nil {
		t.Fatalf("verifier setup: %v", err)
	}

	for _, code := range []pkgerrors.Code{
		pkgerrors.CodeNotFound,
		pkgerrors.CodeConflict,
		pkgerrors.CodeStateConflict,
	} {
		svc := &fakeHandler{err: pkgerrors.New(code, "reconciliation halted")}
		handler := PaystackWebhook(svc, verifier, nil, time.Second, nil)

		body := []byte(`{"event":"charge.success"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", bytes.NewReader(body))
		req.Header.Set("x-paystack-signature", signPaystack(secret, body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 so the psp stops retrying, got %d", code, rec.Code)
		}
		if !bytes.Contains(rec.Body.Bytes(), []byte("discarded")) {
			t.Fatalf("%s: expected a discarded result, got %s", code, rec.Body.String())
		}
	}
}

func TestPaystackWebhook_RetryableErrorStaysNon2xx(t *testing.T) {
	secret := "sk_test_secret"
	verifier, err := signature.NewPaystackVerifier(secret)
	if err != nil {
		t.Fatalf("verifier setup: %v", err)
	}
	svc := &fakeHandler{err: pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")}
	handler := PaystackWebhook(svc, verifier, nil, time.Second, nil)

	body := []byte(`{"event":"charge.success"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", bytes.NewReader(body))
	req.Header.Set("x-paystack-signature", signPaystack(secret, body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 so the psp retries, got %d", rec.Code)
	}
}
