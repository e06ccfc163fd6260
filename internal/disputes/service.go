package disputes

import (
	"context"
	"fmt"
	"strings"
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

// OpenInput is what a buyer files against one order item.
type OpenInput struct {
	OrderItemID   uuid.UUID
	ReasonCode    string
	Description   string
	PhotoProofURL *string
}

// ResolveInput moves a dispute forward. Status must be one of
// seller_responded, resolved_buyer_compensated, resolved_redelivered or
// rejected.
type ResolveInput struct {
	Status         enums.DisputeStatus
	ResolutionNote *string
}

// DisputeEventData is the payload of dispute_opened / dispute_resolved
// outbox events.
type DisputeEventData struct {
	DisputeID   uuid.UUID           `json:"disputeId"`
	OrderItemID uuid.UUID           `json:"orderItemId"`
	OrderID     uuid.UUID           `json:"orderId"`
	BuyerID     uuid.UUID           `json:"buyerId"`
	SellerID    uuid.UUID           `json:"sellerId"`
	Status      enums.DisputeStatus `json:"status"`
	ReasonCode  string              `json:"reasonCode"`
}

// Service handles the dispute lifecycle. Opening a dispute forces the item
// into the issue fulfillment state in the same transaction; resolving one
// moves the item back out according to the resolution.
type Service interface {
	Open(ctx context.Context, buyerID uuid.UUID, input OpenInput) (*models.Dispute, error)
	Resolve(ctx context.Context, actorID uuid.UUID, actorRole enums.UserRole, disputeID uuid.UUID, input ResolveInput) (*models.Dispute, error)
}

type service struct {
	repo     Repository
	txRunner txRunner
	outbox   eventEmitter
	logg     *logger.Logger
}

// ServiceParams wires the dispute service dependencies.
type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Outbox            eventEmitter
	Logger            *logger.Logger
}

// NewService validates dependencies and returns the dispute service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("dispute repository required")
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

func (s *service) Open(ctx context.Context, buyerID uuid.UUID, input OpenInput) (*models.Dispute, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if input.OrderItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order item id is required")
	}
	if strings.TrimSpace(input.ReasonCode) == "" || strings.TrimSpace(input.Description) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason code and description are required")
	}

	var created *models.Dispute
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		item, err := repo.LockItem(ctx, input.OrderItemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order item")
		}
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}

		order, err := repo.FindOrder(ctx, item.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "order missing for item")
		}
		if order.BuyerID != buyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order item does not belong to buyer")
		}

		existing, err := repo.FindOpenByItem(ctx, item.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check existing disputes")
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "item already has an active dispute")
		}

		dispute := &models.Dispute{
			ID:            uuid.New(),
			OrderItemID:   item.ID,
			BuyerID:       buyerID,
			Status:        enums.DisputeStatusOpen,
			ReasonCode:    strings.TrimSpace(input.ReasonCode),
			Description:   strings.TrimSpace(input.Description),
			PhotoProofURL: input.PhotoProofURL,
		}
		if err := repo.Create(ctx, dispute); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create dispute")
		}

		if item.FulfillmentStatus != enums.FulfillmentStatusIssue {
			item.FulfillmentStatus = enums.FulfillmentStatusIssue
			if err := repo.UpdateItem(ctx, item); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "flag item")
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisputeOpened,
			AggregateType: enums.AggregateDispute,
			AggregateID:   dispute.ID,
			Actor:         &outbox.ActorRef{UserID: buyerID, Role: enums.UserRoleBuyer.String()},
			Data: DisputeEventData{
				DisputeID:   dispute.ID,
				OrderItemID: item.ID,
				OrderID:     order.ID,
				BuyerID:     buyerID,
				SellerID:    item.SellerID,
				Status:      dispute.Status,
				ReasonCode:  dispute.ReasonCode,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit dispute event")
		}

		created = dispute
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"dispute_id":    created.ID.String(),
			"order_item_id": created.OrderItemID.String(),
			"reason_code":   created.ReasonCode,
		})
		s.logg.Info(logCtx, "dispute opened")
	}
	return created, nil
}

func (s *service) Resolve(ctx context.Context, actorID uuid.UUID, actorRole enums.UserRole, disputeID uuid.UUID, input ResolveInput) (*models.Dispute, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id is required")
	}
	if disputeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute id is required")
	}
	if !input.Status.IsValid() || input.Status == enums.DisputeStatusOpen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid target dispute status")
	}

	var updated *models.Dispute
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		dispute, err := repo.LockDispute(ctx, disputeID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load dispute")
		}
		if dispute == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
		}
		if dispute.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "dispute already resolved")
		}

		item, err := repo.LockItem(ctx, dispute.OrderItemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order item")
		}
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "order item missing for dispute")
		}

		switch actorRole {
		case enums.UserRoleAdmin:
		case enums.UserRoleSeller:
			if item.SellerID != actorID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "dispute does not belong to seller")
			}
		default:
			return pkgerrors.New(pkgerrors.CodeForbidden, "only admins and the owning seller may act on a dispute")
		}

		now := time.Now()
		dispute.Status = input.Status
		if input.ResolutionNote != nil {
			dispute.ResolutionNote = input.ResolutionNote
		}
		if input.Status.IsTerminal() {
			dispute.ResolvedByID = &actorID
			dispute.ResolvedAt = &now
		}
		if err := repo.UpdateDispute(ctx, dispute); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update dispute")
		}

		// resolved_buyer_compensated leaves the item in issue; a seller
		// response changes nothing on the item.
		var itemTarget enums.FulfillmentStatus
		switch input.Status {
		case enums.DisputeStatusResolvedRedelivered, enums.DisputeStatusRejected:
			itemTarget = enums.FulfillmentStatusDelivered
		}
		if itemTarget != "" && item.FulfillmentStatus != itemTarget {
			item.FulfillmentStatus = itemTarget
			if err := repo.UpdateItem(ctx, item); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release item")
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisputeResolved,
			AggregateType: enums.AggregateDispute,
			AggregateID:   dispute.ID,
			Actor:         &outbox.ActorRef{UserID: actorID, Role: actorRole.String()},
			Data: DisputeEventData{
				DisputeID:   dispute.ID,
				OrderItemID: item.ID,
				OrderID:     item.OrderID,
				BuyerID:     dispute.BuyerID,
				SellerID:    item.SellerID,
				Status:      dispute.Status,
				ReasonCode:  dispute.ReasonCode,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit dispute event")
		}

		updated = dispute
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"dispute_id": updated.ID.String(),
			"status":     updated.Status.String(),
			"actor_role": actorRole.String(),
		})
		s.logg.Info(logCtx, "dispute updated")
	}
	return updated, nil
}
