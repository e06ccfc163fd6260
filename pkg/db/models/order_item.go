package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nmarchetti-dev/tradepost-backend/pkg/enums"
)

// OrderItem is the per-seller line of an order. Gross/fee/net are
// snapshotted when the order is created and never recomputed from the live
// product. The seller owns FulfillmentStatus until a dispute forces it to
// issue.
type OrderItem struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID         uuid.UUID               `gorm:"column:product_id;type:uuid;not null"`
	SellerID          uuid.UUID               `gorm:"column:seller_id;type:uuid;not null;index"`
	Name              string                  `gorm:"column:name;not null"`
	Qty               int                     `gorm:"column:qty;not null;default:1"`
	GrossCents        int64                   `gorm:"column:gross_cents;not null"`
	FeeCents          int64                   `gorm:"column:fee_cents;not null"`
	NetCents          int64                   `gorm:"column:net_cents;not null"`
	FulfillmentStatus enums.FulfillmentStatus `gorm:"column:fulfillment_status;type:fulfillment_status;not null;default:'packed'"`
	PayoutStatus      enums.PayoutStatus      `gorm:"column:payout_status;type:payout_status;not null;default:'pending'"`
	Carrier           *string                 `gorm:"column:carrier"`
	TrackingCode      *string                 `gorm:"column:tracking_code"`
	ShippedAt         *time.Time              `gorm:"column:shipped_at"`
	DeliveredAt       *time.Time              `gorm:"column:delivered_at"`
	DeliveryProofURL  *string                 `gorm:"column:delivery_proof_url"`
	PayoutBatchID     *string                 `gorm:"column:payout_batch_id;index"`
	PaidAt            *time.Time              `gorm:"column:paid_at"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
