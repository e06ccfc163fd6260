package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregatePayment   OutboxAggregateType = "payment"
	AggregateOrder     OutboxAggregateType = "order"
	AggregateOrderItem OutboxAggregateType = "order_item"
	AggregateDispute   OutboxAggregateType = "dispute"
	AggregatePayout    OutboxAggregateType = "payout"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePayment,
	AggregateOrder,
	AggregateOrderItem,
	AggregateDispute,
	AggregatePayout,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventPaymentSucceeded OutboxEventType = "payment_succeeded"
	EventPaymentFailed    OutboxEventType = "payment_failed"
	EventOrderItemSold    OutboxEventType = "order_item_sold"
	EventItemShipped      OutboxEventType = "item_shipped"
	EventItemDelivered    OutboxEventType = "item_delivered"
	EventItemIssueRaised  OutboxEventType = "item_issue_raised"
	EventDisputeOpened    OutboxEventType = "dispute_opened"
	EventDisputeResolved  OutboxEventType = "dispute_resolved"
	EventPayoutReleased   OutboxEventType = "payout_released"
)

var validOutboxEventTypes = []OutboxEventType{
	EventPaymentSucceeded,
	EventPaymentFailed,
	EventOrderItemSold,
	EventItemShipped,
	EventItemDelivered,
	EventItemIssueRaised,
	EventDisputeOpened,
	EventDisputeResolved,
	EventPayoutReleased,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
