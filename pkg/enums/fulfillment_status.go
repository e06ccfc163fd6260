package enums

import "fmt"

// FulfillmentStatus tracks the per-item shipping lifecycle, independent of
// the parent order's payment status.
type FulfillmentStatus string

const (
	FulfillmentStatusPacked    FulfillmentStatus = "packed"
	FulfillmentStatusShipped   FulfillmentStatus = "shipped"
	FulfillmentStatusDelivered FulfillmentStatus = "delivered"
	FulfillmentStatusIssue     FulfillmentStatus = "issue"
)

var validFulfillmentStatuses = []FulfillmentStatus{
	FulfillmentStatusPacked,
	FulfillmentStatusShipped,
	FulfillmentStatusDelivered,
	FulfillmentStatusIssue,
}

// String implements fmt.Stringer.
func (f FulfillmentStatus) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FulfillmentStatus.
func (f FulfillmentStatus) IsValid() bool {
	for _, candidate := range validFulfillmentStatuses {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFulfillmentStatus converts raw input into a FulfillmentStatus.
func ParseFulfillmentStatus(value string) (FulfillmentStatus, error) {
	for _, candidate := range validFulfillmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fulfillment status %q", value)
}
