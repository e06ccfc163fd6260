package webhooks

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/nmarchetti-dev/tradepost-backend/api/responses"
	hooks "github.com/nmarchetti-dev/tradepost-backend/internal/webhooks"
	"github.com/nmarchetti-dev/tradepost-backend/internal/webhooks/signature"
	pkgerrors "github.com/nmarchetti-dev/tradepost-backend/pkg/errors"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/logger"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/metrics"
)

// PSPs retry aggressively but bodies are small event JSON.
const maxBodyBytes = 1 << 20

type handlerService interface {
	HandleEvent(ctx context.Context, body []byte) (hooks.Result, error)
}

type bodyVerifier interface {
	Verify(body []byte, header string) error
}

type headerVerifier interface {
	Verify(header string) error
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body")
	}
	return body, nil
}

func rejectSignature(w http.ResponseWriter, r *http.Request, logg *logger.Logger, m *metrics.WebhookMetrics, provider string, err error) {
	if m != nil {
		m.IncRejection(provider, signature.ReasonOf(err))
	}
	responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "signature verification failed"))
}

// terminalCode reports whether retrying the delivery cannot change the
// outcome. Those deliveries are acknowledged with 200 so the PSP stops
// redelivering; the failure is logged for operators instead.
func terminalCode(code pkgerrors.Code) bool {
	switch code {
	case pkgerrors.CodeValidation,
		pkgerrors.CodeNotFound,
		pkgerrors.CodeForbidden,
		pkgerrors.CodeConflict,
		pkgerrors.CodeStateConflict:
		return true
	}
	return false
}

func dispatch(w http.ResponseWriter, r *http.Request, svc handlerService, logg *logger.Logger, m *metrics.WebhookMetrics, provider string, timeout time.Duration, body []byte) {
	ctx := r.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := svc.HandleEvent(ctx, body)
	if m != nil {
		m.ObserveHandleDuration(provider, time.Since(start))
	}
	if err != nil {
		if appErr := pkgerrors.As(err); appErr != nil && terminalCode(appErr.Code()) {
			if m != nil {
				m.IncDelivery(provider, "discarded")
			}
			if logg != nil {
				logCtx := logg.WithFields(r.Context(), map[string]any{
					"provider": provider,
					"code":     string(appErr.Code()),
				})
				logg.Error(logCtx, "webhook delivery discarded", err)
			}
			responses.WriteSuccess(w, map[string]string{"result": "discarded"})
			return
		}
		if m != nil {
			m.IncDelivery(provider, "error")
		}
		responses.WriteError(r.Context(), logg, w, err)
		return
	}

	if m != nil {
		m.IncDelivery(provider, string(result))
	}
	if logg != nil {
		logCtx := logg.WithFields(r.Context(), map[string]any{
			"provider": provider,
			"outcome":  string(result),
		})
		logg.Info(logCtx, "webhook delivery handled")
	}
	responses.WriteSuccess(w, map[string]string{"result": string(result)})
}

// PaystackWebhook verifies the x-paystack-signature header over the raw
// body, then hands the event to the paystack service.
func PaystackWebhook(svc handlerService, verifier bodyVerifier, m *metrics.WebhookMetrics, timeout time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || verifier == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook handler unavailable"))
			return
		}

		body, err := readBody(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := verifier.Verify(body, r.Header.Get("x-paystack-signature")); err != nil {
			rejectSignature(w, r, logg, m, "paystack", err)
			return
		}

		dispatch(w, r, svc, logg, m, "paystack", timeout, body)
	}
}

// FlutterwaveWebhook checks the verif-hash header against the shared
// secret, then hands the event to the flutterwave service.
func FlutterwaveWebhook(svc handlerService, verifier headerVerifier, m *metrics.WebhookMetrics, timeout time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || verifier == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook handler unavailable"))
			return
		}

		body, err := readBody(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := verifier.Verify(r.Header.Get("verif-hash")); err != nil {
			rejectSignature(w, r, logg, m, "flutterwave", err)
			return
		}

		dispatch(w, r, svc, logg, m, "flutterwave", timeout, body)
	}
}

// StripeWebhook verifies the stripe-signature header over the raw,
// unparsed body within the replay tolerance, then hands the event to the
// stripe service.
func StripeWebhook(svc handlerService, verifier bodyVerifier, m *metrics.WebhookMetrics, timeout time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || verifier == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook handler unavailable"))
			return
		}

		body, err := readBody(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := verifier.Verify(body, r.Header.Get("stripe-signature")); err != nil {
			rejectSignature(w, r, logg, m, "stripe", err)
			return
		}

		dispatch(w, r, svc, logg, m, "stripe", timeout, body)
	}
}
