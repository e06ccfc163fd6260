package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nmarchetti-dev/tradepost-backend/pkg/enums"
)

// User is the minimal identity row the payment core needs: buyers receive
// charge receipts, sellers carry the tier that sets their fee rate.
type User struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email     string           `gorm:"column:email;not null;uniqueIndex"`
	Role      enums.UserRole   `gorm:"column:role;type:user_role;not null;default:'buyer'"`
	Tier      enums.SellerTier `gorm:"column:tier;type:seller_tier;not null;default:'standard'"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
