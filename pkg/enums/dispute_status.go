package enums

import "fmt"

// DisputeStatus tracks a buyer dispute from open through resolution.
type DisputeStatus string

const (
	DisputeStatusOpen                     DisputeStatus = "open"
	DisputeStatusSellerResponded          DisputeStatus = "seller_responded"
	DisputeStatusResolvedBuyerCompensated DisputeStatus = "resolved_buyer_compensated"
	DisputeStatusResolvedRedelivered      DisputeStatus = "resolved_redelivered"
	DisputeStatusRejected                 DisputeStatus = "rejected"
)

var validDisputeStatuses = []DisputeStatus{
	DisputeStatusOpen,
	DisputeStatusSellerResponded,
	DisputeStatusResolvedBuyerCompensated,
	DisputeStatusResolvedRedelivered,
	DisputeStatusRejected,
}

// String implements fmt.Stringer.
func (d DisputeStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DisputeStatus.
func (d DisputeStatus) IsValid() bool {
	for _, candidate := range validDisputeStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the dispute is immutable. Disputes never leave
// a resolved or rejected state.
func (d DisputeStatus) IsTerminal() bool {
	switch d {
	case DisputeStatusResolvedBuyerCompensated, DisputeStatusResolvedRedelivered, DisputeStatusRejected:
		return true
	default:
		return false
	}
}

// ParseDisputeStatus converts raw input into a DisputeStatus.
func ParseDisputeStatus(value string) (DisputeStatus, error) {
	for _, candidate := range validDisputeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute status %q", value)
}
