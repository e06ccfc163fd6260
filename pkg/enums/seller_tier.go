package enums

import "fmt"

// SellerTier determines the platform fee rate applied to a seller's items.
type SellerTier string

const (
	SellerTierStandard SellerTier = "standard"
	SellerTierPremium  SellerTier = "premium"
)

var validSellerTiers = []SellerTier{
	SellerTierStandard,
	SellerTierPremium,
}

// String implements fmt.Stringer.
func (s SellerTier) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SellerTier.
func (s SellerTier) IsValid() bool {
	for _, candidate := range validSellerTiers {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSellerTier converts raw input into a SellerTier.
func ParseSellerTier(value string) (SellerTier, error) {
	for _, candidate := range validSellerTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid seller tier %q", value)
}
