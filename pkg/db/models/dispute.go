package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nmarchetti-dev/tradepost-backend/pkg/enums"
)

// Dispute is a buyer complaint against one order item. While open (or
// awaiting resolution after a seller response) the item must sit in the
// issue fulfillment state.
type Dispute struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderItemID    uuid.UUID           `gorm:"column:order_item_id;type:uuid;not null;index"`
	BuyerID        uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null"`
	Status         enums.DisputeStatus `gorm:"column:status;type:dispute_status;not null;default:'open'"`
	ReasonCode     string              `gorm:"column:reason_code;not null"`
	Description    string              `gorm:"column:description;not null"`
	PhotoProofURL  *string             `gorm:"column:photo_proof_url"`
	ResolutionNote *string             `gorm:"column:resolution_note"`
	ResolvedByID   *uuid.UUID          `gorm:"column:resolved_by_id;type:uuid"`
	ResolvedAt     *time.Time          `gorm:"column:resolved_at"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
