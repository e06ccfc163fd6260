package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nmarchetti-dev/tradepost-backend/pkg/db/models"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/enums"
)

// Repository manages persistence for payments and the order rows the
// reconciler settles alongside them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Upsert(ctx context.Context, payment *models.Payment) error
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	LockByExternalRef(ctx context.Context, externalRef string) (*models.Payment, error)
	UpdateStatus(ctx context.Context, paymentID uuid.UUID, status enums.PaymentStatus, settledAt *time.Time) error

	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderWithBuyer(ctx context.Context, orderID uuid.UUID) (*models.Order, *models.User, error)
	StampOrderExternalRef(ctx context.Context, orderID uuid.UUID, externalRef string) error
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Upsert(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"provider":      payment.Provider,
			"external_ref":  payment.ExternalRef,
			"amount_cents":  payment.AmountCents,
			"currency":      payment.Currency,
			"checkout_url":  payment.CheckoutURL,
			"client_secret": payment.ClientSecret,
			"updated_at":    time.Now(),
		}),
	}).Create(payment).Error
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) LockByExternalRef(ctx context.Context, externalRef string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_ref = ?", externalRef).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) UpdateStatus(ctx context.Context, paymentID uuid.UUID, status enums.PaymentStatus, settledAt *time.Time) error {
	updates := map[string]any{"status": status}
	if settledAt != nil {
		updates["settled_at"] = *settledAt
	}
	return r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Updates(updates).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderWithBuyer(ctx context.Context, orderID uuid.UUID) (*models.Order, *models.User, error) {
	order, err := r.FindOrder(ctx, orderID)
	if err != nil || order == nil {
		return order, nil, err
	}
	var buyer models.User
	err = r.db.WithContext(ctx).Where("id = ?", order.BuyerID).First(&buyer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return order, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return order, &buyer, nil
}

func (r *repository) StampOrderExternalRef(ctx context.Context, orderID uuid.UUID, externalRef string) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("external_ref", externalRef).Error
}

func (r *repository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("status", status).Error
}

func (r *repository) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
