package payments

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nmarchetti-dev/tradepost-backend/internal/payments/providers"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/db/models"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/enums"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/outbox"
)

// stubTxRunner serializes transactions with a mutex so concurrent callers
// observe each other's committed state, mirroring the row lock.
type stubTxRunner struct {
	mu sync.Mutex
}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&gorm.DB{})
}

type stubEmitter struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
	err    error
}

func (s *stubEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *stubEmitter) byType(eventType enums.OutboxEventType) []outbox.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []outbox.DomainEvent
	for _, e := range s.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type stubRepo struct {
	mu sync.Mutex

	payment *models.Payment
	order   *models.Order
	buyer   *models.User
	items   []models.OrderItem

	upserts       []models.Payment
	stampedRefs   []string
	statusUpdates []enums.PaymentStatus
	orderStatuses []enums.OrderStatus

	findErr error
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) Upsert(ctx context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, *payment)
	s.payment = payment
	return nil
}

func (s *stubRepo) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payment == nil || s.payment.OrderID != orderID {
		return nil, nil
	}
	clone := *s.payment
	return &clone, nil
}

func (s *stubRepo) LockByExternalRef(ctx context.Context, externalRef string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.payment == nil || s.payment.ExternalRef != externalRef {
		return nil, nil
	}
	clone := *s.payment
	return &clone, nil
}

func (s *stubRepo) UpdateStatus(ctx context.Context, paymentID uuid.UUID, status enums.PaymentStatus, settledAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusUpdates = append(s.statusUpdates, status)
	s.payment.Status = status
	s.payment.SettledAt = settledAt
	return nil
}

func (s *stubRepo) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.order == nil || s.order.ID != orderID {
		return nil, nil
	}
	clone := *s.order
	return &clone, nil
}

func (s *stubRepo) FindOrderWithBuyer(ctx context.Context, orderID uuid.UUID) (*models.Order, *models.User, error) {
	order, err := s.FindOrder(ctx, orderID)
	if err != nil || order == nil {
		return order, nil, err
	}
	return order, s.buyer, nil
}

func (s *stubRepo) StampOrderExternalRef(ctx context.Context, orderID uuid.UUID, externalRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stampedRefs = append(s.stampedRefs, externalRef)
	s.order.ExternalRef = &externalRef
	return nil
}

func (s *stubRepo) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderStatuses = append(s.orderStatuses, status)
	s.order.Status = status
	return nil
}

func (s *stubRepo) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.OrderItem(nil), s.items...), nil
}

type stubChargeClient struct {
	result *providers.ChargeResult
	err    error
	gotReq providers.ChargeRequest
}

func (s *stubChargeClient) CreateCharge(ctx context.Context, req providers.ChargeRequest) (*providers.ChargeResult, error) {
	s.gotReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}
