package paystackwebhook

import (
	"context"
	"encoding/json"
	"strings"

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
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Metadata  struct {
			OrderID string `json:"orderId"`
		} `json:"metadata"`
	} `json:"data"`
}

// ServiceParams wires the paystack webhook service dependencies.
type ServiceParams struct {
	Reconciler reconciler
	Guard      *webhooks.IdempotencyGuard
	Logger     *logger.Logger
}

// Service handles verified paystack deliveries.
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

// HandleEvent processes one verified delivery. The signature must already
// have been checked against the raw body.
func (s *Service) HandleEvent(ctx context.Context, body []byte) (webhooks.Result, error) {
	var ev event
	if err := json.Unmarshal(body, &ev); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode paystack event")
	}

	var outcome webhooks.Result
	switch {
	case ev.Event == "charge.success" && strings.EqualFold(ev.Data.Status, "success"):
		outcome = webhooks.ResultSettled
	case ev.Event == "charge.failed":
		outcome = webhooks.ResultFailed
	default:
		return webhooks.ResultIgnored, nil
	}

	if ev.Data.Reference == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "event reference missing")
	}

	eventID := ev.Event + ":" + ev.Data.Reference
	seen, err := s.guard.CheckAndMark(ctx, eventID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	if seen {
		return webhooks.ResultDuplicate, nil
	}

	expectedOrderID := parseOrderID(ev.Data.Metadata.OrderID)
	if outcome == webhooks.ResultSettled {
		_, err = s.reconciler.MarkSuccessByRef(ctx, ev.Data.Reference, expectedOrderID)
	} else {
		_, err = s.reconciler.MarkFailedByRef(ctx, ev.Data.Reference, expectedOrderID)
	}
	if err != nil {
		if delErr := s.guard.Delete(ctx, eventID); delErr != nil && s.logg != nil {
			s.logg.Error(ctx, "release idempotency mark", delErr)
		}
		return "", err
	}
	return outcome, nil
}

func parseOrderID(raw string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
