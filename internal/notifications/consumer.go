package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nmarchetti-dev/tradepost-backend/pkg/config"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/db/models"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/enums"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/logger"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/outbox"
)

// attribute keys stamped by the outbox publisher.
const (
	AttrEventType = "event_type"
	AttrEventID   = "event_id"
)

const dedupTTL = 24 * time.Hour

type dedupStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

type subscriber interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer turns domain events from the outbox topic into notification rows.
// Delivery is at-least-once; the redis guard keyed on the envelope event id
// keeps each event from producing duplicate rows.
type Consumer struct {
	repo  Repository
	dedup dedupStore
	cfg   config.NotifyConfig
	logg  *logger.Logger
}

// ConsumerParams wires the consumer dependencies.
type ConsumerParams struct {
	Repo   Repository
	Dedup  dedupStore
	Config config.NotifyConfig
	Logger *logger.Logger
}

// NewConsumer validates dependencies and returns the consumer.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("notification repository required")
	}
	if params.Dedup == nil {
		return nil, fmt.Errorf("dedup store required")
	}
	if params.Config.HandlerTimeout <= 0 {
		return nil, fmt.Errorf("handler timeout must be positive")
	}
	return &Consumer{
		repo:  params.Repo,
		dedup: params.Dedup,
		cfg:   params.Config,
		logg:  params.Logger,
	}, nil
}

// Run blocks consuming the subscription until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, sub subscriber) error {
	return sub.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
		handleCtx, cancel := context.WithTimeout(msgCtx, c.cfg.HandlerTimeout)
		defer cancel()

		switch err := c.Handle(handleCtx, msg.Attributes[AttrEventType], msg.Data); {
		case err == nil:
			msg.Ack()
		default:
			if c.logg != nil {
				c.logg.Error(handleCtx, "notification handler failed, message will redeliver", err)
			}
			msg.Nack()
		}
	})
}

// Handle processes one published outbox event. Unknown event types and
// duplicates are treated as handled.
func (c *Consumer) Handle(ctx context.Context, eventType string, payload []byte) error {
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		// A payload that never parses would redeliver forever.
		if c.logg != nil {
			c.logg.Error(ctx, "dropping malformed event payload", err)
		}
		return nil
	}
	if envelope.EventID == "" {
		if c.logg != nil {
			c.logg.Warn(ctx, "dropping event without an event id")
		}
		return nil
	}

	rows, err := c.rowsFor(eventType, envelope.Data)
	if err != nil {
		if c.logg != nil {
			c.logg.Error(ctx, "dropping undecodable event", err)
		}
		return nil
	}
	if len(rows) == 0 {
		return nil
	}

	guardKey := c.dedup.IdempotencyKey("notify", envelope.EventID)
	fresh, err := c.dedup.SetNX(ctx, guardKey, time.Now().Unix(), dedupTTL)
	if err != nil {
		return fmt.Errorf("checking notify guard: %w", err)
	}
	if !fresh {
		return nil
	}

	for _, row := range rows {
		if err := c.repo.Create(ctx, &row); err != nil {
			// Release the guard so the redelivery can retry the writes.
			_ = c.dedup.Del(ctx, guardKey)
			return fmt.Errorf("creating notification: %w", err)
		}
	}

	if c.logg != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{
			"event_id":   envelope.EventID,
			"event_type": eventType,
			"rows":       len(rows),
		})
		c.logg.Info(logCtx, "notifications created")
	}
	return nil
}

type paymentEvent struct {
	OrderID     uuid.UUID `json:"orderId"`
	BuyerID     uuid.UUID `json:"buyerId"`
	AmountCents int64     `json:"amountCents"`
	Currency    string    `json:"currency"`
}

type itemSoldEvent struct {
	OrderItemID uuid.UUID `json:"orderItemId"`
	OrderID     uuid.UUID `json:"orderId"`
	SellerID    uuid.UUID `json:"sellerId"`
	Name        string    `json:"name"`
	Qty         int       `json:"qty"`
	NetCents    int64     `json:"netCents"`
}

type itemEvent struct {
	OrderItemID uuid.UUID `json:"orderItemId"`
	OrderID     uuid.UUID `json:"orderId"`
	BuyerID     uuid.UUID `json:"buyerId"`
	SellerID    uuid.UUID `json:"sellerId"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
}

type disputeEvent struct {
	DisputeID   uuid.UUID `json:"disputeId"`
	OrderItemID uuid.UUID `json:"orderItemId"`
	BuyerID     uuid.UUID `json:"buyerId"`
	SellerID    uuid.UUID `json:"sellerId"`
	Status      string    `json:"status"`
	ReasonCode  string    `json:"reasonCode"`
}

type payoutEvent struct {
	SellerID  uuid.UUID `json:"sellerId"`
	BatchID   string    `json:"batchId"`
	NetCents  int64     `json:"netCents"`
	ItemCount int       `json:"itemCount"`
}

func (c *Consumer) rowsFor(eventType string, data json.RawMessage) ([]models.Notification, error) {
	switch enums.OutboxEventType(eventType) {
	case enums.EventPaymentSucceeded:
		var ev paymentEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return []models.Notification{{
			UserID:  ev.BuyerID,
			Type:    enums.NotificationTypePaymentSuccess,
			Title:   "Payment confirmed",
			Message: fmt.Sprintf("Your payment of %s %s was received. Sellers are preparing your items.", formatAmount(ev.AmountCents), ev.Currency),
			Link:    orderLink(ev.OrderID),
		}}, nil

	case enums.EventPaymentFailed:
		var ev paymentEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return []models.Notification{{
			UserID:  ev.BuyerID,
			Type:    enums.NotificationTypePaymentFailed,
			Title:   "Payment failed",
			Message: "Your payment could not be completed and the order was cancelled.",
			Link:    orderLink(ev.OrderID),
		}}, nil

	case enums.EventOrderItemSold:
		var ev itemSoldEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return []models.Notification{{
			UserID:  ev.SellerID,
			Type:    enums.NotificationTypeOrderToFulfill,
			Title:   "New sale to fulfill",
			Message: fmt.Sprintf("%s (x%d) sold for a net of %s. Pack and ship it.", ev.Name, ev.Qty, formatAmount(ev.NetCents)),
			Link:    itemLink(ev.OrderItemID),
		}}, nil

	case enums.EventItemShipped, enums.EventItemDelivered, enums.EventItemIssueRaised:
		var ev itemEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return []models.Notification{{
			UserID:  ev.BuyerID,
			Type:    enums.NotificationTypeShippingUpdate,
			Title:   "Shipping update",
			Message: fmt.Sprintf("%s is now %s.", ev.Name, ev.Status),
			Link:    itemLink(ev.OrderItemID),
		}}, nil

	case enums.EventDisputeOpened:
		var ev disputeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return []models.Notification{{
			UserID:  ev.SellerID,
			Type:    enums.NotificationTypeDisputeActivity,
			Title:   "Dispute opened",
			Message: fmt.Sprintf("A buyer opened a dispute (%s) against one of your items.", ev.ReasonCode),
			Link:    disputeLink(ev.DisputeID),
		}}, nil

	case enums.EventDisputeResolved:
		var ev disputeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return []models.Notification{
			{
				UserID:  ev.BuyerID,
				Type:    enums.NotificationTypeDisputeActivity,
				Title:   "Dispute updated",
				Message: fmt.Sprintf("Your dispute is now %s.", ev.Status),
				Link:    disputeLink(ev.DisputeID),
			},
			{
				UserID:  ev.SellerID,
				Type:    enums.NotificationTypeDisputeActivity,
				Title:   "Dispute updated",
				Message: fmt.Sprintf("A dispute against your item is now %s.", ev.Status),
				Link:    disputeLink(ev.DisputeID),
			},
		}, nil

	case enums.EventPayoutReleased:
		var ev payoutEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return []models.Notification{{
			UserID:  ev.SellerID,
			Type:    enums.NotificationTypePayoutReleased,
			Title:   "Payout released",
			Message: fmt.Sprintf("%s for %d item(s) was released in batch %s.", formatAmount(ev.NetCents), ev.ItemCount, ev.BatchID),
		}}, nil

	default:
		return nil, nil
	}
}

func formatAmount(cents int64) string {
	return decimal.NewFromInt(cents).Shift(-2).StringFixed(2)
}

func orderLink(orderID uuid.UUID) *string {
	link := "/orders/" + orderID.String()
	return &link
}

func itemLink(itemID uuid.UUID) *string {
	link := "/fulfillment/items/" + itemID.String()
	return &link
}

func disputeLink(disputeID uuid.UUID) *string {
	link := "/disputes/" + disputeID.String()
	return &link
}
