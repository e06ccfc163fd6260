package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/nmarchetti-dev/tradepost-backend/internal/webhooks"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/db/models"
	pkgerrors "github.com/nmarchetti-dev/tradepost-backend/pkg/errors"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/logger"
)

type reconciler interface {
	MarkSuccessByRef(ctx context.Context, externalRef string, expectedOrderID *uuid.UUID) (*models.Payment, error)
	MarkFailedByRef(ctx context.Context, externalRef string, expectedOrderID *uuid.UUID) (*models.Payment, error)
}

type event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string `json:"id"`
			Metadata struct {
				OrderID string `json:"orderId"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ServiceParams wires the stripe webhook service dependencies.
type ServiceParams struct {
	Reconciler reconciler
	Guard      *webhooks.IdempotencyGuard
	Logger     *logger.Logger
}

// Service handles verified stripe deliveries.
type Service struct {
	reconciler reconciler
	guard      *webhooks.IdempotencyGuard
	logg       *logger.Logger
}

// NewService validates dependencies and returns the service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard required")
	}
	return &Service{
		reconciler: params.Reconciler,
		guard:      params.Guard,
		logg:       params.Logger,
	}, nil
}

// HandleEvent processes one verified delivery. The stripe-signature check
// over the raw body happens in the controller before this runs.
func (s *Service) HandleEvent(ctx context.Context, body []byte) (webhooks.Result, error) {
	var ev event
	if err := json.Unmarshal(body, &ev); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode stripe event")
	}

	var outcome webhooks.Result
	switch ev.Type {
	case "payment_intent.succeeded":
		outcome = webhooks.ResultSettled
	case "payment_intent.payment_failed", "payment_intent.canceled":
		outcome = webhooks.ResultFailed
	default:
		return webhooks.ResultIgnored, nil
	}

	if ev.Data.Object.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}

	eventID := ev.ID
	if eventID == "" {
		eventID = ev.Type + ":" + ev.Data.Object.ID
	}
	seen, err := s.guard.CheckAndMark(ctx, eventID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	if seen {
		return webhooks.ResultDuplicate, nil
	}

	var expectedOrderID *uuid.UUID
	if ev.Data.Object.Metadata.OrderID != "" {
		if id, parseErr := uuid.Parse(ev.Data.Object.Metadata.OrderID); parseErr == nil {
			expectedOrderID = &id
		}
	}

	if outcome == webhooks.ResultSettled {
		_, err = s.reconciler.MarkSuccessByRef(ctx, ev.Data.Object.ID, expectedOrderID)
	} else {
		_, err = s.reconciler.MarkFailedByRef(ctx, ev.Data.Object.ID, expectedOrderID)
	}
	if err != nil {
		if delErr := s.guard.Delete(ctx, eventID); delErr != nil && s.logg != nil {
			s.logg.Error(ctx, "release idempotency mark", delErr)
		}
		return "", err
	}
	return outcome, nil
}
