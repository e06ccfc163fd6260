package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nmarchetti-dev/tradepost-backend/pkg/config"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/db/models"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/enums"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/outbox"
)

type stubDedup struct {
	keys    map[string]bool
	deleted []string
}

func newStubDedup() *stubDedup {
	return &stubDedup{keys: map[string]bool{}}
}

func (s *stubDedup) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if s.keys[key] {
		return false, nil
	}
	s.keys[key] = true
	return true, nil
}

func (s *stubDedup) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.keys, key)
		s.deleted = append(s.deleted, key)
	}
	return nil
}

func (s *stubDedup) IdempotencyKey(scope, id string) string {
	return "tp:idempotency:" + scope + ":" + id
}

type errorRepo struct {
	*stubRepo
	fail bool
}

func (e *errorRepo) Create(ctx context.Context, notification *models.Notification) error {
	if e.fail {
		return errors.New("insert failed")
	}
	return e.stubRepo.Create(ctx, notification)
}

func envelopeBytes(t *testing.T, eventID string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       raw,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

func newConsumerFixture(t *testing.T) (*Consumer, *stubRepo, *stubDedup) {
	t.Helper()
	repo := newStubRepo()
	dedup := newStubDedup()
	consumer, err := NewConsumer(ConsumerParams{
		Repo:   repo,
		Dedup:  dedup,
		Config: config.NotifyConfig{HandlerTimeout: 5 * time.Second},
	})
	if err != nil {
		t.Fatalf("setup consumer: %v", err)
	}
	return consumer, repo, dedup
}

func TestHandleItemSoldNotifiesSeller(t *testing.T) {
	consumer, repo, _ := newConsumerFixture(t)

	sellerID := uuid.New()
	payload := envelopeBytes(t, "evt-1", map[string]any{
		"orderItemId": uuid.New(),
		"orderId":     uuid.New(),
		"sellerId":    sellerID,
		"name":        "Vintage lamp",
		"qty":         2,
		"netCents":    9500,
	})

	if err := consumer.Handle(context.Background(), string(enums.EventOrderItemSold), payload); err != nil {
		t.Fatalf("handle: %v", err)
	}

	var found bool
	for _, row := range repo.rows {
		if row.UserID == sellerID && row.Type == enums.NotificationTypeOrderToFulfill {
			found = true
		}
	}
	if !found {
		t.Fatalf("seller did not receive an order_to_fulfill notification")
	}
}

func TestHandleDuplicateEventCreatesNothing(t *testing.T) {
	consumer, repo, _ := newConsumerFixture(t)

	payload := envelopeBytes(t, "evt-dup", map[string]any{
		"orderId":     uuid.New(),
		"buyerId":     uuid.New(),
		"amountCents": 25000,
		"currency":    "USD",
	})

	for i := 0; i < 3; i++ {
		if err := consumer.Handle(context.Background(), string(enums.EventPaymentSucceeded), payload); err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
	}
	if len(repo.rows) != 1 {
		t.Fatalf("expected exactly one row for a redelivered event, got %d", len(repo.rows))
	}
}

func TestHandleDisputeResolvedNotifiesBothParties(t *testing.T) {
	consumer, repo, _ := newConsumerFixture(t)

	buyerID := uuid.New()
	sellerID := uuid.New()
	payload := envelopeBytes(t, "evt-2", map[string]any{
		"disputeId":  uuid.New(),
		"buyerId":    buyerID,
		"sellerId":   sellerID,
		"status":     "rejected",
		"reasonCode": "damaged",
	})

	if err := consumer.Handle(context.Background(), string(enums.EventDisputeResolved), payload); err != nil {
		t.Fatalf("handle: %v", err)
	}

	users := map[uuid.UUID]bool{}
	for _, row := range repo.rows {
		if row.Type != enums.NotificationTypeDisputeActivity {
			t.Fatalf("unexpected type %s", row.Type)
		}
		users[row.UserID] = true
	}
	if !users[buyerID] || !users[sellerID] {
		t.Fatalf("both parties must be notified, got %v", users)
	}
}

func TestHandleUnknownEventTypeIsDropped(t *testing.T) {
	consumer, repo, dedup := newConsumerFixture(t)

	payload := envelopeBytes(t, "evt-3", map[string]any{})
	if err := consumer.Handle(context.Background(), "something_else", payload); err != nil {
		t.Fatalf("unknown events must be treated as handled: %v", err)
	}
	if len(repo.rows) != 0 {
		t.Fatalf("unknown events must not create rows")
	}
	if len(dedup.keys) != 0 {
		t.Fatalf("unknown events must not consume the guard")
	}
}

func TestHandleMalformedPayloadIsDropped(t *testing.T) {
	consumer, repo, _ := newConsumerFixture(t)

	if err := consumer.Handle(context.Background(), string(enums.EventPaymentSucceeded), []byte("{not json")); err != nil {
		t.Fatalf("malformed payloads must not redeliver forever: %v", err)
	}
	if len(repo.rows) != 0 {
		t.Fatalf("malformed payloads must not create rows")
	}
}

func TestHandleReleasesGuardOnWriteFailure(t *testing.T) {
	dedup := newStubDedup()
	repo := &errorRepo{stubRepo: newStubRepo(), fail: true}
	consumer, err := NewConsumer(ConsumerParams{
		Repo:   repo,
		Dedup:  dedup,
		Config: config.NotifyConfig{HandlerTimeout: 5 * time.Second},
	})
	if err != nil {
		t.Fatalf("setup consumer: %v", err)
	}

	payload := envelopeBytes(t, "evt-4", map[string]any{
		"orderId":     uuid.New(),
		"buyerId":     uuid.New(),
		"amountCents": 1000,
		"currency":    "USD",
	})

	if err := consumer.Handle(context.Background(), string(enums.EventPaymentSucceeded), payload); err == nil {
		t.Fatalf("write failures must propagate so the message redelivers")
	}
	if len(dedup.deleted) != 1 {
		t.Fatalf("guard must be released so the retry can run, got %v", dedup.deleted)
	}

	repo.fail = false
	if err := consumer.Handle(context.Background(), string(enums.EventPaymentSucceeded), payload); err != nil {
		t.Fatalf("retry after release: %v", err)
	}
	if len(repo.rows) != 1 {
		t.Fatalf("retry must create the row")
	}
}
