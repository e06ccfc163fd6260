package flutterwavewebhook

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
		TxRef  string `json:"tx_ref"`
		Status string `json:"status"`
		Meta   struct {
			OrderID string `json:"orderId"`
		} `json:"meta"`
	} `json:"data"`
}

// ServiceParams wires the flutterwave webhook service dependencies.
type ServiceParams struct {
	Reconciler reconciler
	Guard      *webhooks.IdempotencyGuard
	Logger     *logger.Logger
}

// Service handles verified flutterwave deliveries.
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

// HandleEvent processes one verified delivery.
func (s *Service) HandleEvent(ctx context.Context, body []byte) (webhooks.Result, error) {
	var ev event
	if err := json.Unmarshal(body, &ev); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode flutterwave event")
	}

	if ev.Event != "charge.completed" {
		return webhooks.ResultIgnored, nil
	}

	var outcome webhooks.Result
	switch {
	case strings.EqualFold(ev.Data.Status, "successful"):
		outcome = webhooks.ResultSettled
	case strings.EqualFold(ev.Data.Status, "failed"):
		outcome = webhooks.ResultFailed
	default:
		return webhooks.ResultIgnored, nil
	}

	if ev.Data.TxRef == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "event tx_ref missing")
	}

	eventID := ev.Event + ":" + ev.Data.TxRef + ":" + strings.ToLower(ev.Data.Status)
	seen, err := s.guard.CheckAndMark(ctx, eventID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	if seen {
		return webhooks.ResultDuplicate, nil
	}

	var expectedOrderID *uuid.UUID
	if ev.Data.Meta.OrderID != "" {
		if id, parseErr := uuid.Parse(ev.Data.Meta.OrderID); parseErr == nil {
			expectedOrderID = &id
		}
	}

	if outcome == webhooks.ResultSettled {
		_, err = s.reconciler.MarkSuccessByRef(ctx, ev.Data.TxRef, expectedOrderID)
	} else {
		_, err = s.reconciler.MarkFailedByRef(ctx, ev.Data.TxRef, expectedOrderID)
	}
	if err != nil {
		if delErr := s.guard.Delete(ctx, eventID); delErr != nil && s.logg != nil {
			s.logg.Error(ctx, "release idempotency mark", delErr)
		}
		return "", err
	}
	return outcome, nil
}
