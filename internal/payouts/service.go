package payouts

import (
	"context"
	"fmt"
	"sort"
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

// BatchResult summarizes one MarkPaidOut run.
type BatchResult struct {
	BatchID      string
	ItemsStamped int64
	Sellers      []SellerPayout
}

// SellerPayout is the aggregated net released to one seller in a batch.
type SellerPayout struct {
	SellerID  uuid.UUID
	NetCents  int64
	ItemCount int
}

// PayoutEventData is the payload of payout_released outbox events, one per
// seller per batch.
type PayoutEventData struct {
	SellerID  uuid.UUID `json:"sellerId"`
	BatchID   string    `json:"batchId"`
	NetCents  int64     `json:"netCents"`
	ItemCount int       `json:"itemCount"`
}

// Service stamps payout batches onto order items. It does not decide
// eligibility: the operator submits ids and the batch stamps what it is
// given. Eligibility lives in GetPendingForSeller.
type Service interface {
	GetPendingForSeller(ctx context.Context, sellerID uuid.UUID) ([]models.OrderItem, error)
	MarkPaidOut(ctx context.Context, itemIDs []uuid.UUID, batchID string) (*BatchResult, error)
}

type service struct {
	repo     Repository
	txRunner txRunner
	outbox   eventEmitter
	logg     *logger.Logger
}

// ServiceParams wires the payout service dependencies.
type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Outbox            eventEmitter
	Logger            *logger.Logger
}

// NewService validates dependencies and returns the payout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payout repository required")
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

func (s *service) GetPendingForSeller(ctx context.Context, sellerID uuid.UUID) ([]models.OrderItem, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	items, err := s.repo.ListPendingForSeller(ctx, sellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending payouts")
	}
	return items, nil
}

func (s *service) MarkPaidOut(ctx context.Context, itemIDs []uuid.UUID, batchID string) (*BatchResult, error) {
	if len(itemIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item id is required")
	}
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch id is required")
	}
	for _, id := range itemIDs {
		if id == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item ids must be non-zero")
		}
	}

	var result *BatchResult
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		stamped, err := repo.StampPaidOut(ctx, itemIDs, batchID, time.Now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stamp payout batch")
		}

		items, err := repo.ListByBatch(ctx, batchID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read back batch")
		}

		totals := map[uuid.UUID]*SellerPayout{}
		for _, item := range items {
			entry, ok := totals[item.SellerID]
			if !ok {
				entry = &SellerPayout{SellerID: item.SellerID}
				totals[item.SellerID] = entry
			}
			entry.NetCents += item.NetCents
			entry.ItemCount++
		}

		sellers := make([]SellerPayout, 0, len(totals))
		for _, entry := range totals {
			sellers = append(sellers, *entry)
		}
		sort.Slice(sellers, func(i, j int) bool {
			return sellers[i].SellerID.String() < sellers[j].SellerID.String()
		})

		for _, payout := range sellers {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPayoutReleased,
				AggregateType: enums.AggregatePayout,
				AggregateID:   payout.SellerID,
				Data: PayoutEventData{
					SellerID:  payout.SellerID,
					BatchID:   batchID,
					NetCents:  payout.NetCents,
					ItemCount: payout.ItemCount,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit payout event")
			}
		}

		result = &BatchResult{BatchID: batchID, ItemsStamped: stamped, Sellers: sellers}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"batch_id":      result.BatchID,
			"items_stamped": result.ItemsStamped,
			"sellers":       len(result.Sellers),
		})
		s.logg.Info(logCtx, "payout batch released")
	}
	return result, nil
}
