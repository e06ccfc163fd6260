package fulfillment

import (
	"context"
	"sync"
	"testing"

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
	item    *models.OrderItem
	order   *models.Order
	updates int
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) LockItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error) {
	if s.item == nil || s.item.ID != itemID {
		return nil, nil
	}
	return s.item, nil
}

func (s *stubRepo) UpdateItem(ctx context.Context, item *models.OrderItem) error {
	s.updates++
	s.item = item
	return nil
}

func (s *stubRepo) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if s.order == nil || s.order.ID != orderID {
		return nil, nil
	}
	return s.order, nil
}

func newFixture(t *testing.T, status enums.FulfillmentStatus) (Service, *stubRepo, *stubEmitter) {
	t.Helper()

	orderID := uuid.New()
	repo := &stubRepo{
		item: &models.OrderItem{
			ID:                uuid.New(),
			OrderID:           orderID,
			SellerID:          uuid.New(),
			Name:              "Vintage lamp",
			Qty:               1,
			FulfillmentStatus: status,
		},
		order: &models.Order{ID: orderID, BuyerID: uuid.New(), Status: enums.OrderStatusPaid},
	}
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

func TestMarkShippedStampsCarrierAndEmits(t *testing.T) {
	svc, repo, emitter := newFixture(t, enums.FulfillmentStatusPacked)

	item, err := svc.MarkShipped(context.Background(), repo.item.ID, repo.item.SellerID, ShipInput{Carrier: "DHL", TrackingCode: "TRACK1"})
	if err != nil {
		t.Fatalf("mark shipped: %v", err)
	}

	if item.FulfillmentStatus != enums.FulfillmentStatusShipped {
		t.Fatalf("expected shipped, got %s", item.FulfillmentStatus)
	}
	if item.Carrier == nil || *item.Carrier != "DHL" || item.TrackingCode == nil || *item.TrackingCode != "TRACK1" {
		t.Fatalf("carrier details not stamped: %+v", item)
	}
	if item.ShippedAt == nil {
		t.Fatalf("shipped timestamp not stamped")
	}

	if len(emitter.events) != 1 || emitter.events[0].EventType != enums.EventItemShipped {
		t.Fatalf("expected one item_shipped event, got %+v", emitter.events)
	}
	data := emitter.events[0].Data.(ItemEventData)
	if data.BuyerID != repo.order.BuyerID {
		t.Fatalf("event must address the buyer")
	}
}

func TestMarkShippedWithoutCarrierDetails(t *testing.T) {
	svc, repo, emitter := newFixture(t, enums.FulfillmentStatusPacked)

	item, err := svc.MarkShipped(context.Background(), repo.item.ID, repo.item.SellerID, ShipInput{})
	if err != nil {
		t.Fatalf("mark shipped without carrier: %v", err)
	}
	if item.FulfillmentStatus != enums.FulfillmentStatusShipped {
		t.Fatalf("expected shipped, got %s", item.FulfillmentStatus)
	}
	if item.Carrier != nil || item.TrackingCode != nil {
		t.Fatalf("carrier details must stay unset: %+v", item)
	}
	if item.ShippedAt == nil {
		t.Fatalf("shipped timestamp not stamped")
	}
	if len(emitter.events) != 1 {
		t.Fatalf("expected one item_shipped event")
	}
}

func TestMarkShippedCarriesNote(t *testing.T) {
	svc, repo, emitter := newFixture(t, enums.FulfillmentStatusPacked)
	note := "left at the depot"

	_, err := svc.MarkShipped(context.Background(), repo.item.ID, repo.item.SellerID, ShipInput{Note: &note})
	if err != nil {
		t.Fatalf("mark shipped: %v", err)
	}
	data := emitter.events[0].Data.(ItemEventData)
	if data.Note == nil || *data.Note != note {
		t.Fatalf("note missing from event payload: %+v", data)
	}
}

func TestMarkShippedFromWrongState(t *testing.T) {
	for _, status := range []enums.FulfillmentStatus{
		enums.FulfillmentStatusShipped,
		enums.FulfillmentStatusDelivered,
		enums.FulfillmentStatusIssue,
	} {
		svc, repo, emitter := newFixture(t, status)
		_, err := svc.MarkShipped(context.Background(), repo.item.ID, repo.item.SellerID, ShipInput{Carrier: "DHL", TrackingCode: "T"})
		if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeStateConflict {
			t.Fatalf("expected state conflict shipping a %s item, got %v", status, err)
		}
		if len(emitter.events) != 0 {
			t.Fatalf("rejected transition must not emit")
		}
	}
}

func TestMarkDelivered(t *testing.T) {
	svc, repo, emitter := newFixture(t, enums.FulfillmentStatusShipped)
	proof := "https://cdn.example.com/proof.jpg"

	item, err := svc.MarkDelivered(context.Background(), repo.item.ID, repo.item.SellerID, DeliverInput{ProofURL: &proof})
	if err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if item.FulfillmentStatus != enums.FulfillmentStatusDelivered {
		t.Fatalf("expected delivered, got %s", item.FulfillmentStatus)
	}
	if item.DeliveredAt == nil || item.DeliveryProofURL == nil {
		t.Fatalf("delivery stamps missing: %+v", item)
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType != enums.EventItemDelivered {
		t.Fatalf("expected one item_delivered event")
	}
}

func TestMarkDeliveredRequiresShipped(t *testing.T) {
	svc, repo, _ := newFixture(t, enums.FulfillmentStatusPacked)

	_, err := svc.MarkDelivered(context.Background(), repo.item.ID, repo.item.SellerID, DeliverInput{})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestMarkIssueReachableFromDelivered(t *testing.T) {
	svc, repo, emitter := newFixture(t, enums.FulfillmentStatusDelivered)

	item, err := svc.MarkIssue(context.Background(), repo.item.ID, repo.item.SellerID, IssueInput{})
	if err != nil {
		t.Fatalf("mark issue: %v", err)
	}
	if item.FulfillmentStatus != enums.FulfillmentStatusIssue {
		t.Fatalf("expected issue, got %s", item.FulfillmentStatus)
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType != enums.EventItemIssueRaised {
		t.Fatalf("expected one item_issue_raised event")
	}
}

func TestMarkIssueIdempotentGuard(t *testing.T) {
	svc, repo, _ := newFixture(t, enums.FulfillmentStatusIssue)

	_, err := svc.MarkIssue(context.Background(), repo.item.ID, repo.item.SellerID, IssueInput{})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestOwnershipEnforced(t *testing.T) {
	svc, repo, emitter := newFixture(t, enums.FulfillmentStatusPacked)

	_, err := svc.MarkShipped(context.Background(), repo.item.ID, uuid.New(), ShipInput{Carrier: "DHL", TrackingCode: "T"})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if repo.updates != 0 || len(emitter.events) != 0 {
		t.Fatalf("foreign seller must not write or emit")
	}
}

func TestUnknownItem(t *testing.T) {
	svc, repo, _ := newFixture(t, enums.FulfillmentStatusPacked)

	_, err := svc.MarkShipped(context.Background(), uuid.New(), repo.item.SellerID, ShipInput{Carrier: "DHL", TrackingCode: "T"})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
