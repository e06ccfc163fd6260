package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nmarchetti-dev/tradepost-backend/internal/fees"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/db/models"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/enums"
	pkgerrors "github.com/nmarchetti-dev/tradepost-backend/pkg/errors"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateLine is one requested product in a new order.
type CreateLine struct {
	ProductID uuid.UUID
	Qty       int
}

// Service creates orders and reads them back.
type Service interface {
	Create(ctx context.Context, buyerID uuid.UUID, lines []CreateLine) (*models.Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type service struct {
	repo     Repository
	txRunner txRunner
	logg     *logger.Logger
}

// ServiceParams wires the order service dependencies.
type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// NewService validates dependencies and returns the order service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:     params.Repo,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
	}, nil
}

// Create snapshots product name, price and the seller's fee split into the
// order rows. Later price or tier edits never touch an existing order.
func (s *service) Create(ctx context.Context, buyerID uuid.UUID, lines []CreateLine) (*models.Order, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	for _, line := range lines {
		if line.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if line.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "qty must be positive")
		}
	}

	var created *models.Order
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		buyer, err := repo.FindUser(ctx, buyerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load buyer")
		}
		if buyer == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "buyer not found")
		}

		order := &models.Order{
			BuyerID: buyerID,
			Status:  enums.OrderStatusPending,
		}

		var currency enums.Currency
		for _, line := range lines {
			product, err := repo.FindProduct(ctx, line.ProductID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
			}
			if product == nil {
				return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found", line.ProductID))
			}

			seller, err := repo.FindUser(ctx, product.SellerID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller")
			}
			if seller == nil {
				return pkgerrors.New(pkgerrors.CodeInternal, "product references missing seller")
			}

			if currency == "" {
				currency = product.Currency
			} else if currency != product.Currency {
				return pkgerrors.New(pkgerrors.CodeValidation, "all lines must share one currency")
			}

			gross := product.PriceCents * int64(line.Qty)
			split := fees.ComputeSplit(gross, seller.Tier)

			order.Items = append(order.Items, models.OrderItem{
				ProductID:         product.ID,
				SellerID:          product.SellerID,
				Name:              product.Name,
				Qty:               line.Qty,
				GrossCents:        split.GrossCents,
				FeeCents:          split.FeeCents,
				NetCents:          split.NetCents,
				FulfillmentStatus: enums.FulfillmentStatusPacked,
				PayoutStatus:      enums.PayoutStatusPending,
			})
			order.TotalCents += gross
		}
		order.Currency = currency

		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":    created.ID.String(),
			"buyer_id":    buyerID.String(),
			"total_cents": created.TotalCents,
		})
		s.logg.Info(logCtx, "order created")
	}
	return created, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}
