package fulfillment

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
	"github.com/nmarchetti-dev/tradepost-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ShipInput carries the optional carrier details stamped when a seller
// ships. Sellers handing off in person ship with none of them set.
type ShipInput struct {
	Carrier      string
	TrackingCode string
	Note         *string
}

// DeliverInput carries the optional delivery proof.
type DeliverInput struct {
	ProofURL *string
}

// IssueInput carries the seller's note on what went wrong.
type IssueInput struct {
	Note *string
}

// ItemEventData is the payload of item_shipped / item_delivered /
// item_issue_raised outbox events, addressed to the buyer.
type ItemEventData struct {
	OrderItemID  uuid.UUID               `json:"orderItemId"`
	OrderID      uuid.UUID               `json:"orderId"`
	BuyerID      uuid.UUID               `json:"buyerId"`
	SellerID     uuid.UUID               `json:"sellerId"`
	Name         string                  `json:"name"`
	Status       enums.FulfillmentStatus `json:"status"`
	Carrier      *string                 `json:"carrier,omitempty"`
	TrackingCode *string                 `json:"trackingCode,omitempty"`
	Note         *string                 `json:"note,omitempty"`
}

// Service moves order items through the seller-owned fulfillment states.
// Valid transitions are packed→shipped→delivered; issue is reachable from
// anywhere but only the dispute flow leaves it.
type Service interface {
	MarkShipped(ctx context.Context, itemID, sellerID uuid.UUID, input ShipInput) (*models.OrderItem, error)
	MarkDelivered(ctx context.Context, itemID, sellerID uuid.UUID, input DeliverInput) (*models.OrderItem, error)
	MarkIssue(ctx context.Context, itemID, sellerID uuid.UUID, input IssueInput) (*models.OrderItem, error)
}

type service struct {
	repo     Repository
	txRunner txRunner
	outbox   eventEmitter
	logg     *logger.Logger
}

// ServiceParams wires the fulfillment service dependencies.
type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Outbox            eventEmitter
	Logger            *logger.Logger
}

// NewService validates dependencies and returns the fulfillment service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("fulfillment repository required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &service{
		repo:     params.Repo,
		txRunner: params.TransactionRunner,
		outbox:   params.Outbox,
		logg:     params.Logger,
	}, nil
}

func (s *service) MarkShipped(ctx context.Context, itemID, sellerID uuid.UUID, input ShipInput) (*models.OrderItem, error) {
	return s.transition(ctx, itemID, sellerID, enums.FulfillmentStatusShipped, enums.EventItemShipped, input.Note, func(item *models.OrderItem, now time.Time) error {
		if item.FulfillmentStatus != enums.FulfillmentStatusPacked {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot ship a %s item", item.FulfillmentStatus))
		}
		if input.Carrier != "" {
			item.Carrier = &input.Carrier
		}
		if input.TrackingCode != "" {
			item.TrackingCode = &input.TrackingCode
		}
		item.ShippedAt = &now
		return nil
	})
}

func (s *service) MarkDelivered(ctx context.Context, itemID, sellerID uuid.UUID, input DeliverInput) (*models.OrderItem, error) {
	return s.transition(ctx, itemID, sellerID, enums.FulfillmentStatusDelivered, enums.EventItemDelivered, nil, func(item *models.OrderItem, now time.Time) error {
		if item.FulfillmentStatus != enums.FulfillmentStatusShipped {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot deliver a %s item", item.FulfillmentStatus))
		}
		item.DeliveredAt = &now
		item.DeliveryProofURL = input.ProofURL
		return nil
	})
}

// MarkIssue lets a seller flag a problem on their own item. Issue is
// reachable from any state, including delivered.
func (s *service) MarkIssue(ctx context.Context, itemID, sellerID uuid.UUID, input IssueInput) (*models.OrderItem, error) {
	return s.transition(ctx, itemID, sellerID, enums.FulfillmentStatusIssue, enums.EventItemIssueRaised, input.Note, func(item *models.OrderItem, now time.Time) error {
		if item.FulfillmentStatus == enums.FulfillmentStatusIssue {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "item is already flagged")
		}
		return nil
	})
}

func (s *service) transition(
	ctx context.Context,
	itemID, sellerID uuid.UUID,
	target enums.FulfillmentStatus,
	eventType enums.OutboxEventType,
	note *string,
	apply func(item *models.OrderItem, now time.Time) error,
) (*models.OrderItem, error) {
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}

	var updated *models.OrderItem
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		item, err := repo.LockItem(ctx, itemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order item")
		}
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}
		if item.SellerID != sellerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "item belongs to another seller")
		}

		now := time.Now()
		if err := apply(item, now); err != nil {
			return err
		}
		item.FulfillmentStatus = target

		if err := repo.UpdateItem(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order item")
		}

		order, err := repo.FindOrder(ctx, item.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "item references missing order")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateOrderItem,
			AggregateID:   item.ID,
			Actor:         &outbox.ActorRef{UserID: sellerID, Role: string(enums.UserRoleSeller)},
			Data: ItemEventData{
				OrderItemID:  item.ID,
				OrderID:      order.ID,
				BuyerID:      order.BuyerID,
				SellerID:     item.SellerID,
				Name:         item.Name,
				Status:       target,
				Carrier:      item.Carrier,
				TrackingCode: item.TrackingCode,
				Note:         note,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit item event")
		}

		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_item_id": itemID.String(),
			"status":        string(target),
		})
		s.logg.Info(logCtx, "order item transitioned")
	}
	return updated, nil
}
