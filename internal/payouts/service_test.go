package payouts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nmarchetti-dev/tradepost-backend/pkg/db/models"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/enums"
	pkgerrors "github.com/nmarchetti-dev/tradepost-backend/pkg/errors"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/outbox"
)

type stubTxRunner struct {
	mu sync.Mutex
}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&gorm.DB{})
}

type stubEmitter struct {
	events []outbox.DomainEvent
}

func (s *stubEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type stubRepo struct {
	items map[uuid.UUID]*models.OrderItem
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) ListPendingForSeller(ctx context.Context, sellerID uuid.UUID) ([]models.OrderItem, error) {
	var out []models.OrderItem
	for _, item := range s.items {
		if item.SellerID == sellerID &&
			item.FulfillmentStatus == enums.FulfillmentStatusDelivered &&
			item.PayoutStatus == enums.PayoutStatusPending {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (s *stubRepo) StampPaidOut(ctx context.Context, itemIDs []uuid.UUID, batchID string, paidAt time.Time) (int64, error) {
	var stamped int64
	for _, id := range itemIDs {
		item, ok := s.items[id]
		if !ok {
			continue
		}
		item.PayoutStatus = enums.PayoutStatusPaidOut
		item.PayoutBatchID = &batchID
		at := paidAt
		item.PaidAt = &at
		stamped++
	}
	return stamped, nil
}

func (s *stubRepo) ListByBatch(ctx context.Context, batchID string) ([]models.OrderItem, error) {
	var out []models.OrderItem
	for _, item := range s.items {
		if item.PayoutBatchID != nil && *item.PayoutBatchID == batchID {
			out = append(out, *item)
		}
	}
	return out, nil
}

func addItem(repo *stubRepo, sellerID uuid.UUID, netCents int64, fulfillment enums.FulfillmentStatus, payout enums.PayoutStatus) *models.OrderItem {
	item := &models.OrderItem{
		ID:                uuid.New(),
		OrderID:           uuid.New(),
		SellerID:          sellerID,
		NetCents:          netCents,
		FulfillmentStatus: fulfillment,
		PayoutStatus:      payout,
	}
	repo.items[item.ID] = item
	return item
}

func newFixture(t *testing.T) (Service, *stubRepo, *stubEmitter) {
	t.Helper()
	repo := &stubRepo{items: map[uuid.UUID]*models.OrderItem{}}
	emitter := &stubEmitter{}
	svc, err := NewService(ServiceParams{
		Repo:              repo,
		TransactionRunner: &stubTxRunner{},
		Outbox:            emitter,
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc, repo, emitter
}

func TestMarkPaidOutAggregatesPerSeller(t *testing.T) {
	svc, repo, emitter := newFixture(t)

	sellerA := uuid.New()
	sellerB := uuid.New()
	a1 := addItem(repo, sellerA, 9500, enums.FulfillmentStatusDelivered, enums.PayoutStatusPending)
	a2 := addItem(repo, sellerA, 4700, enums.FulfillmentStatusDelivered, enums.PayoutStatusPending)
	b1 := addItem(repo, sellerB, 3800, enums.FulfillmentStatusDelivered, enums.PayoutStatusPending)

	result, err := svc.MarkPaidOut(context.Background(), []uuid.UUID{a1.ID, a2.ID, b1.ID}, "batch-2026-09")
	if err != nil {
		t.Fatalf("mark paid out: %v", err)
	}

	if result.ItemsStamped != 3 {
		t.Fatalf("expected 3 items stamped, got %d", result.ItemsStamped)
	}
	for _, item := range []*models.OrderItem{a1, a2, b1} {
		if item.PayoutStatus != enums.PayoutStatusPaidOut || item.PayoutBatchID == nil || item.PaidAt == nil {
			t.Fatalf("item %s not fully stamped: %+v", item.ID, item)
		}
	}

	if len(emitter.events) != 2 {
		t.Fatalf("expected one payout_released per seller, got %d", len(emitter.events))
	}
	bySeller := map[uuid.UUID]PayoutEventData{}
	for _, ev := range emitter.events {
		if ev.EventType != enums.EventPayoutReleased {
			t.Fatalf("unexpected event type %s", ev.EventType)
		}
		data := ev.Data.(PayoutEventData)
		bySeller[data.SellerID] = data
	}
	if data := bySeller[sellerA]; data.NetCents != 14200 || data.ItemCount != 2 {
		t.Fatalf("seller A aggregate wrong: %+v", data)
	}
	if data := bySeller[sellerB]; data.NetCents != 3800 || data.ItemCount != 1 {
		t.Fatalf("seller B aggregate wrong: %+v", data)
	}
}

func TestMarkPaidOutStampsWithoutEligibilityFilter(t *testing.T) {
	svc, repo, _ := newFixture(t)

	// Caller owns eligibility. A packed item submitted by mistake is still
	// stamped.
	item := addItem(repo, uuid.New(), 1000, enums.FulfillmentStatusPacked, enums.PayoutStatusPending)

	result, err := svc.MarkPaidOut(context.Background(), []uuid.UUID{item.ID}, "batch-x")
	if err != nil {
		t.Fatalf("mark paid out: %v", err)
	}
	if result.ItemsStamped != 1 || item.PayoutStatus != enums.PayoutStatusPaidOut {
		t.Fatalf("stamp must not filter by state: %+v", item)
	}
}

func TestMarkPaidOutValidation(t *testing.T) {
	svc, _, _ := newFixture(t)

	if _, err := svc.MarkPaidOut(context.Background(), nil, "batch"); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for empty ids, got %v", err)
	}
	if _, err := svc.MarkPaidOut(context.Background(), []uuid.UUID{uuid.New()}, "  "); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for blank batch id, got %v", err)
	}
}

func TestGetPendingForSeller(t *testing.T) {
	svc, repo, _ := newFixture(t)

	sellerID := uuid.New()
	eligible := addItem(repo, sellerID, 9500, enums.FulfillmentStatusDelivered, enums.PayoutStatusPending)
	addItem(repo, sellerID, 4700, enums.FulfillmentStatusShipped, enums.PayoutStatusPending)
	addItem(repo, sellerID, 3800, enums.FulfillmentStatusDelivered, enums.PayoutStatusPaidOut)
	addItem(repo, uuid.New(), 1200, enums.FulfillmentStatusDelivered, enums.PayoutStatusPending)

	items, err := svc.GetPendingForSeller(context.Background(), sellerID)
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if len(items) != 1 || items[0].ID != eligible.ID {
		t.Fatalf("only delivered+pending items for the seller are eligible, got %+v", items)
	}
}
