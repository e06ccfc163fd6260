package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nmarchetti-dev/tradepost-backend/pkg/db/models"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/enums"
	pkgerrors "github.com/nmarchetti-dev/tradepost-backend/pkg/errors"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/logger"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/metrics"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Reconciler applies PSP webhook outcomes to payments exactly once. All
// state transitions and their outbox events commit in a single
// transaction holding a row lock on the payment, so concurrent duplicate
// deliveries serialize and the loser observes the terminal status.
type Reconciler struct {
	txRunner txRunner
	repo     Repository
	outbox   eventEmitter
	metrics  *metrics.WebhookMetrics
	logg     *logger.Logger
}

// ReconcilerParams wires the reconciler dependencies.
type ReconcilerParams struct {
	TransactionRunner txRunner
	Repo              Repository
	Outbox            eventEmitter
	Metrics           *metrics.WebhookMetrics
	Logger            *logger.Logger
}

// NewReconciler validates dependencies and returns the reconciler.
func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &Reconciler{
		txRunner: params.TransactionRunner,
		repo:     params.Repo,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// PaymentEventData is the payload of payment_succeeded / payment_failed
// outbox events. BuyerID tells the notification consumer who to address.
type PaymentEventData struct {
	PaymentID   uuid.UUID      `json:"paymentId"`
	OrderID     uuid.UUID      `json:"orderId"`
	BuyerID     uuid.UUID      `json:"buyerId"`
	ExternalRef string         `json:"externalRef"`
	AmountCents int64          `json:"amountCents"`
	Currency    enums.Currency `json:"currency"`
}

// ItemSoldEventData is the payload of order_item_sold events, one per
// order item so every seller hears exactly once per sold line.
type ItemSoldEventData struct {
	OrderItemID uuid.UUID `json:"orderItemId"`
	OrderID     uuid.UUID `json:"orderId"`
	SellerID    uuid.UUID `json:"sellerId"`
	Name        string    `json:"name"`
	Qty         int       `json:"qty"`
	NetCents    int64     `json:"netCents"`
}

// MarkSuccessByRef settles the payment identified by the PSP reference.
// Replayed deliveries return the stored row without writing anything; a
// success landing on an already failed payment is surfaced as a state
// conflict for manual reconciliation rather than silently overwritten.
func (r *Reconciler) MarkSuccessByRef(ctx context.Context, externalRef string, expectedOrderID *uuid.UUID) (*models.Payment, error) {
	if externalRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external reference is required")
	}

	var settled *models.Payment
	err := r.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)

		payment, err := repo.LockByExternalRef(ctx, externalRef)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payment")
		}
		if payment == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no payment for reference")
		}
		if expectedOrderID != nil && payment.OrderID != *expectedOrderID {
			return pkgerrors.New(pkgerrors.CodeConflict, "reference belongs to a different order")
		}

		switch payment.Status {
		case enums.PaymentStatusSucceeded:
			settled = payment
			r.count("duplicate")
			return nil
		case enums.PaymentStatusFailed:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already failed, success delivery needs manual review")
		}

		now := time.Now()
		if err := repo.UpdateStatus(ctx, payment.ID, enums.PaymentStatusSucceeded, &now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment succeeded")
		}

		order, err := repo.FindOrder(ctx, payment.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "payment references missing order")
		}
		if err := repo.UpdateOrderStatus(ctx, order.ID, enums.OrderStatusPaid); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}

		if err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentSucceeded,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: PaymentEventData{
				PaymentID:   payment.ID,
				OrderID:     order.ID,
				BuyerID:     order.BuyerID,
				ExternalRef: payment.ExternalRef,
				AmountCents: payment.AmountCents,
				Currency:    payment.Currency,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment event")
		}

		items, err := repo.ListOrderItems(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
		}
		for _, item := range items {
			if err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderItemSold,
				AggregateType: enums.AggregateOrderItem,
				AggregateID:   item.ID,
				Data: ItemSoldEventData{
					OrderItemID: item.ID,
					OrderID:     order.ID,
					SellerID:    item.SellerID,
					Name:        item.Name,
					Qty:         item.Qty,
					NetCents:    item.NetCents,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit item sold event")
			}
		}

		payment.Status = enums.PaymentStatusSucceeded
		payment.SettledAt = &now
		settled = payment
		r.count("succeeded")
		return nil
	})
	if err != nil {
		return nil, err
	}

	if r.logg != nil && settled != nil {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"external_ref": externalRef,
			"order_id":     settled.OrderID.String(),
		})
		r.logg.Info(logCtx, "payment reconciled as succeeded")
	}
	return settled, nil
}

// MarkFailedByRef records a failed charge. Repeat failure deliveries are
// no-ops; a failure landing on a settled payment is a state conflict.
func (r *Reconciler) MarkFailedByRef(ctx context.Context, externalRef string, expectedOrderID *uuid.UUID) (*models.Payment, error) {
	if externalRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external reference is required")
	}

	var failed *models.Payment
	err := r.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)

		payment, err := repo.LockByExternalRef(ctx, externalRef)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payment")
		}
		if payment == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no payment for reference")
		}
		if expectedOrderID != nil && payment.OrderID != *expectedOrderID {
			return pkgerrors.New(pkgerrors.CodeConflict, "reference belongs to a different order")
		}

		switch payment.Status {
		case enums.PaymentStatusFailed:
			failed = payment
			r.count("duplicate")
			return nil
		case enums.PaymentStatusSucceeded:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already succeeded, failure delivery needs manual review")
		}

		if err := repo.UpdateStatus(ctx, payment.ID, enums.PaymentStatusFailed, nil); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
		}

		order, err := repo.FindOrder(ctx, payment.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "payment references missing order")
		}
		if err := repo.UpdateOrderStatus(ctx, order.ID, enums.OrderStatusCancelled); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}

		if err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: PaymentEventData{
				PaymentID:   payment.ID,
				OrderID:     order.ID,
				BuyerID:     order.BuyerID,
				ExternalRef: payment.ExternalRef,
				AmountCents: payment.AmountCents,
				Currency:    payment.Currency,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment event")
		}

		payment.Status = enums.PaymentStatusFailed
		failed = payment
		r.count("failed")
		return nil
	})
	if err != nil {
		return nil, err
	}

	if r.logg != nil && failed != nil {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"external_ref": externalRef,
			"order_id":     failed.OrderID.String(),
		})
		r.logg.Info(logCtx, "payment reconciled as failed")
	}
	return failed, nil
}

func (r *Reconciler) count(result string) {
	if r.metrics != nil {
		r.metrics.IncReconciliation(result)
	}
}
