package payouts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nmarchetti-dev/tradepost-backend/pkg/db/models"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/enums"
)

// Repository manages the payout columns on order items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	ListPendingForSeller(ctx context.Context, sellerID uuid.UUID) ([]models.OrderItem, error)
	StampPaidOut(ctx context.Context, itemIDs []uuid.UUID, batchID string, paidAt time.Time) (int64, error)
	ListByBatch(ctx context.Context, batchID string) ([]models.OrderItem, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payout repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListPendingForSeller(ctx context.Context, sellerID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("seller_id = ? AND fulfillment_status = ? AND payout_status = ?",
			sellerID, enums.FulfillmentStatusDelivered, enums.PayoutStatusPending).
		Order("delivered_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) StampPaidOut(ctx context.Context, itemIDs []uuid.UUID, batchID string, paidAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id IN ?", itemIDs).
		Updates(map[string]any{
			"payout_status":   enums.PayoutStatusPaidOut,
			"payout_batch_id": batchID,
			"paid_at":         paidAt,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) ListByBatch(ctx context.Context, batchID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("payout_batch_id = ?", batchID).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
