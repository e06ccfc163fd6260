package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nmarchetti-dev/tradepost-backend/pkg/enums"
)

// Order is the buyer-facing aggregate. Status only ever moves
// pending -> paid or pending -> cancelled, and only the payment
// reconciler writes it.
type Order struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID     uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null;index"`
	Status      enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`
	TotalCents  int64             `gorm:"column:total_cents;not null"`
	Currency    enums.Currency    `gorm:"column:currency;type:text;not null;default:'USD'"`
	ExternalRef *string           `gorm:"column:external_ref"`
	Items       []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payment     *Payment          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
