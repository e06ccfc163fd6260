package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nmarchetti-dev/tradepost-backend/internal/payments/providers"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/db"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/db/models"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/enums"
	pkgerrors "github.com/nmarchetti-dev/tradepost-backend/pkg/errors"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/logger"
)

// Service creates payment intents and exposes payment snapshots.
type Service interface {
	CreateIntent(ctx context.Context, orderID uuid.UUID, provider enums.PaymentProvider) (*models.Payment, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
}

type service struct {
	repo      Repository
	providers providers.Registry
	logg      *logger.Logger
}

// ServiceParams wires the payment service dependencies.
type ServiceParams struct {
	Repo      Repository
	Providers providers.Registry
	Logger    *logger.Logger
}

// NewService validates dependencies and returns the payment service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if len(params.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider client required")
	}
	return &service{
		repo:      params.Repo,
		providers: params.Providers,
		logg:      params.Logger,
	}, nil
}

// CreateIntent initializes a charge with the chosen PSP and records the
// INITIATED payment. Re-running it for the same order replaces the pending
// payment row rather than stacking a second one.
func (s *service) CreateIntent(ctx context.Context, orderID uuid.UUID, provider enums.PaymentProvider) (*models.Payment, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !provider.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment provider %q", provider))
	}

	client := s.providers.For(provider)
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("payment provider %q is not configured", provider))
	}

	order, buyer, err := s.repo.FindOrderWithBuyer(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is %s, only pending orders take payment", order.Status))
	}

	existing, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if existing != nil && existing.Status != enums.PaymentStatusInitiated {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("payment already %s", existing.Status))
	}

	req := providers.ChargeRequest{
		OrderID:     order.ID,
		Reference:   fmt.Sprintf("ord_%s", order.ID),
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
	}
	if buyer != nil {
		req.BuyerEmail = buyer.Email
	}

	result, err := client.CreateCharge(ctx, req)
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		OrderID:      order.ID,
		Provider:     provider,
		ExternalRef:  result.ExternalRef,
		Status:       enums.PaymentStatusInitiated,
		AmountCents:  order.TotalCents,
		Currency:     order.Currency,
		CheckoutURL:  result.CheckoutURL,
		ClientSecret: result.ClientSecret,
	}
	if err := s.repo.Upsert(ctx, payment); err != nil {
		// Concurrent intents for the same order race on the order_id
		// unique index; the loser retries and sees the stored row.
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, "payment already initiated for order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment")
	}
	if err := s.repo.StampOrderExternalRef(ctx, order.ID, result.ExternalRef); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp order reference")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":     order.ID.String(),
			"provider":     string(provider),
			"external_ref": result.ExternalRef,
		})
		s.logg.Info(logCtx, "payment intent created")
	}
	return payment, nil
}

func (s *service) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	payment, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return payment, nil
}
