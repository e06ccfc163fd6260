package disputes

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
	disputes map[uuid.UUID]*models.Dispute
	item     *models.OrderItem
	order    *models.Order
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) Create(ctx context.Context, dispute *models.Dispute) error {
	s.disputes[dispute.ID] = dispute
	return nil
}

func (s *stubRepo) LockDispute(ctx context.Context, disputeID uuid.UUID) (*models.Dispute, error) {
	return s.disputes[disputeID], nil
}

func (s *stubRepo) UpdateDispute(ctx context.Context, dispute *models.Dispute) error {
	s.disputes[dispute.ID] = dispute
	return nil
}

func (s *stubRepo) FindOpenByItem(ctx context.Context, orderItemID uuid.UUID) (*models.Dispute, error) {
	for _, d := range s.disputes {
		if d.OrderItemID == orderItemID && !d.Status.IsTerminal() {
			return d, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) LockItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error) {
	if s.item == nil || s.item.ID != itemID {
		return nil, nil
	}
	return s.item, nil
}

func (s *stubRepo) UpdateItem(ctx context.Context, item *models.OrderItem) error {
	s.item = item
	return nil
}

func (s *stubRepo) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if s.order == nil || s.order.ID != orderID {
		return nil, nil
	}
	return s.order, nil
}

func newFixture(t *testing.T, itemStatus enums.FulfillmentStatus) (Service, *stubRepo, *stubEmitter) {
	t.Helper()

	orderID := uuid.New()
	repo := &stubRepo{
		disputes: map[uuid.UUID]*models.Dispute{},
		item: &models.OrderItem{
			ID:                uuid.New(),
			OrderID:           orderID,
			SellerID:          uuid.New(),
			Name:              "Ceramic vase",
			Qty:               1,
			FulfillmentStatus: itemStatus,
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

func openDispute(t *testing.T, svc Service, repo *stubRepo) *models.Dispute {
	t.Helper()
	dispute, err := svc.Open(context.Background(), repo.order.BuyerID, OpenInput{
		OrderItemID: repo.item.ID,
		ReasonCode:  "not_as_described",
		Description: "color does not match the listing",
	})
	if err != nil {
		t.Fatalf("open dispute: %v", err)
	}
	return dispute
}

func TestOpenForcesItemIntoIssue(t *testing.T) {
	svc, repo, emitter := newFixture(t, enums.FulfillmentStatusDelivered)

	dispute := openDispute(t, svc, repo)

	if dispute.Status != enums.DisputeStatusOpen {
		t.Fatalf("expected open dispute, got %s", dispute.Status)
	}
	if repo.item.FulfillmentStatus != enums.FulfillmentStatusIssue {
		t.Fatalf("item must be forced into issue, got %s", repo.item.FulfillmentStatus)
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType != enums.EventDisputeOpened {
		t.Fatalf("expected one dispute_opened event, got %+v", emitter.events)
	}
	data := emitter.events[0].Data.(DisputeEventData)
	if data.SellerID != repo.item.SellerID || data.BuyerID != repo.order.BuyerID {
		t.Fatalf("event must carry both parties: %+v", data)
	}
}

func TestOpenRejectsForeignBuyer(t *testing.T) {
	svc, repo, emitter := newFixture(t, enums.FulfillmentStatusDelivered)

	_, err := svc.Open(context.Background(), uuid.New(), OpenInput{
		OrderItemID: repo.item.ID,
		ReasonCode:  "damaged",
		Description: "arrived cracked",
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if len(repo.disputes) != 0 || len(emitter.events) != 0 {
		t.Fatalf("rejected open must not persist anything")
	}
}

func TestOpenRejectsSecondActiveDispute(t *testing.T) {
	svc, repo, _ := newFixture(t, enums.FulfillmentStatusDelivered)
	openDispute(t, svc, repo)

	_, err := svc.Open(context.Background(), repo.order.BuyerID, OpenInput{
		OrderItemID: repo.item.ID,
		ReasonCode:  "damaged",
		Description: "second complaint",
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestOpenUnknownItem(t *testing.T) {
	svc, repo, _ := newFixture(t, enums.FulfillmentStatusDelivered)

	_, err := svc.Open(context.Background(), repo.order.BuyerID, OpenInput{
		OrderItemID: uuid.New(),
		ReasonCode:  "damaged",
		Description: "missing item",
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolveRedeliveredReleasesItem(t *testing.T) {
	svc, repo, emitter := newFixture(t, enums.FulfillmentStatusDelivered)
	dispute := openDispute(t, svc, repo)
	adminID := uuid.New()

	note := "seller shipped a replacement"
	updated, err := svc.Resolve(context.Background(), adminID, enums.UserRoleAdmin, dispute.ID, ResolveInput{
		Status:         enums.DisputeStatusResolvedRedelivered,
		ResolutionNote: &note,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if updated.Status != enums.DisputeStatusResolvedRedelivered {
		t.Fatalf("expected resolved_redelivered, got %s", updated.Status)
	}
	if updated.ResolvedAt == nil || updated.ResolvedByID == nil || *updated.ResolvedByID != adminID {
		t.Fatalf("resolution stamps missing: %+v", updated)
	}
	if repo.item.FulfillmentStatus != enums.FulfillmentStatusDelivered {
		t.Fatalf("redelivery must release the item to delivered, got %s", repo.item.FulfillmentStatus)
	}
	if len(emitter.events) != 2 || emitter.events[1].EventType != enums.EventDisputeResolved {
		t.Fatalf("expected dispute_resolved event, got %+v", emitter.events)
	}
}

func TestResolveCompensatedLeavesItemInIssue(t *testing.T) {
	svc, repo, _ := newFixture(t, enums.FulfillmentStatusDelivered)
	dispute := openDispute(t, svc, repo)

	_, err := svc.Resolve(context.Background(), uuid.New(), enums.UserRoleAdmin, dispute.ID, ResolveInput{
		Status: enums.DisputeStatusResolvedBuyerCompensated,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if repo.item.FulfillmentStatus != enums.FulfillmentStatusIssue {
		t.Fatalf("compensated resolution keeps the item in issue, got %s", repo.item.FulfillmentStatus)
	}
}

func TestResolveRejectedReturnsItemToDelivered(t *testing.T) {
	svc, repo, _ := newFixture(t, enums.FulfillmentStatusDelivered)
	dispute := openDispute(t, svc, repo)

	_, err := svc.Resolve(context.Background(), uuid.New(), enums.UserRoleAdmin, dispute.ID, ResolveInput{
		Status: enums.DisputeStatusRejected,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if repo.item.FulfillmentStatus != enums.FulfillmentStatusDelivered {
		t.Fatalf("rejection returns the item to delivered, got %s", repo.item.FulfillmentStatus)
	}
}

func TestSellerRecordsInterimResponse(t *testing.T) {
	svc, repo, _ := newFixture(t, enums.FulfillmentStatusDelivered)
	dispute := openDispute(t, svc, repo)

	updated, err := svc.Resolve(context.Background(), repo.item.SellerID, enums.UserRoleSeller, dispute.ID, ResolveInput{
		Status: enums.DisputeStatusSellerResponded,
	})
	if err != nil {
		t.Fatalf("seller response: %v", err)
	}
	if updated.Status != enums.DisputeStatusSellerResponded {
		t.Fatalf("expected seller_responded, got %s", updated.Status)
	}
	if updated.ResolvedAt != nil {
		t.Fatalf("a seller response must not stamp resolution")
	}
	if repo.item.FulfillmentStatus != enums.FulfillmentStatusIssue {
		t.Fatalf("seller response leaves the item in issue")
	}
}

func TestOwningSellerResolvesRedelivered(t *testing.T) {
	svc, repo, _ := newFixture(t, enums.FulfillmentStatusDelivered)
	dispute := openDispute(t, svc, repo)

	updated, err := svc.Resolve(context.Background(), repo.item.SellerID, enums.UserRoleSeller, dispute.ID, ResolveInput{
		Status: enums.DisputeStatusResolvedRedelivered,
	})
	if err != nil {
		t.Fatalf("seller resolve: %v", err)
	}
	if updated.Status != enums.DisputeStatusResolvedRedelivered {
		t.Fatalf("expected resolved_redelivered, got %s", updated.Status)
	}
	if updated.ResolvedByID == nil || *updated.ResolvedByID != repo.item.SellerID {
		t.Fatalf("resolution must record the seller as resolver")
	}
	if updated.ResolvedAt == nil {
		t.Fatalf("terminal resolution must stamp resolvedAt")
	}
	if repo.item.FulfillmentStatus != enums.FulfillmentStatusDelivered {
		t.Fatalf("redelivery returns the item to delivered, got %s", repo.item.FulfillmentStatus)
	}
}

func TestResolveRejectsForeignSellerAndBuyer(t *testing.T) {
	svc, repo, _ := newFixture(t, enums.FulfillmentStatusDelivered)
	dispute := openDispute(t, svc, repo)

	_, err := svc.Resolve(context.Background(), uuid.New(), enums.UserRoleSeller, dispute.ID, ResolveInput{
		Status: enums.DisputeStatusSellerResponded,
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("foreign seller must be rejected, got %v", err)
	}

	_, err = svc.Resolve(context.Background(), repo.order.BuyerID, enums.UserRoleBuyer, dispute.ID, ResolveInput{
		Status: enums.DisputeStatusRejected,
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("buyers must not resolve disputes, got %v", err)
	}
}

func TestResolveTerminalDisputeImmutable(t *testing.T) {
	svc, repo, _ := newFixture(t, enums.FulfillmentStatusDelivered)
	dispute := openDispute(t, svc, repo)

	if _, err := svc.Resolve(context.Background(), uuid.New(), enums.UserRoleAdmin, dispute.ID, ResolveInput{
		Status: enums.DisputeStatusRejected,
	}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	_, err := svc.Resolve(context.Background(), uuid.New(), enums.UserRoleAdmin, dispute.ID, ResolveInput{
		Status: enums.DisputeStatusResolvedBuyerCompensated,
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("terminal disputes are immutable, got %v", err)
	}
}

func TestResolveRejectsOpenTarget(t *testing.T) {
	svc, repo, _ := newFixture(t, enums.FulfillmentStatusDelivered)
	dispute := openDispute(t, svc, repo)

	_, err := svc.Resolve(context.Background(), uuid.New(), enums.UserRoleAdmin, dispute.ID, ResolveInput{
		Status: enums.DisputeStatusOpen,
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("open is not a valid target, got %v", err)
	}
}
