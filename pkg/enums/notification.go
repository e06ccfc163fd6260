package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypePaymentSuccess  NotificationType = "payment_success"
	NotificationTypePaymentFailed   NotificationType = "payment_failed"
	NotificationTypeOrderToFulfill  NotificationType = "order_to_fulfill"
	NotificationTypeShippingUpdate  NotificationType = "shipping_update"
	NotificationTypeDisputeActivity NotificationType = "dispute_activity"
	NotificationTypePayoutReleased  NotificationType = "payout_released"
)

var validNotificationTypes = []NotificationType{
	NotificationTypePaymentSuccess,
	NotificationTypePaymentFailed,
	NotificationTypeOrderToFulfill,
	NotificationTypeShippingUpdate,
	NotificationTypeDisputeActivity,
	NotificationTypePayoutReleased,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
