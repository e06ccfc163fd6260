package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nmarchetti-dev/tradepost-backend/pkg/enums"
)

// Payment tracks one charge per order. ExternalRef is the PSP's transaction
// identifier and the idempotency key for webhook reconciliation.
type Payment struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID      uuid.UUID             `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	Provider     enums.PaymentProvider `gorm:"column:provider;type:payment_provider;not null"`
	ExternalRef  string                `gorm:"column:external_ref;not null;uniqueIndex"`
	Status       enums.PaymentStatus   `gorm:"column:status;type:payment_status;not null;default:'initiated'"`
	AmountCents  int64                 `gorm:"column:amount_cents;not null"`
	Currency     enums.Currency        `gorm:"column:currency;type:text;not null;default:'USD'"`
	CheckoutURL  *string               `gorm:"column:checkout_url"`
	ClientSecret *string               `gorm:"column:client_secret"`
	SettledAt    *time.Time            `gorm:"column:settled_at"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
