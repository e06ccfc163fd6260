package fees

import (
	"github.com/shopspring/decimal"

	"github.com/nmarchetti-dev/tradepost-backend/pkg/enums"
)

var (
	standardRate = decimal.NewFromFloat(0.05)
	premiumRate  = decimal.NewFromFloat(0.03)
)

// Split is the marketplace's cut of one order item and what remains for
// the seller. FeeCents + NetCents always equals the gross that produced it.
type Split struct {
	GrossCents int64
	FeeCents   int64
	NetCents   int64
}

// RateFor returns the commission rate applied to the given seller tier.
// Unknown tiers fall back to the standard rate.
func RateFor(tier enums.SellerTier) decimal.Decimal {
	if tier == enums.SellerTierPremium {
		return premiumRate
	}
	return standardRate
}

// ComputeSplit snapshots the fee for one item at its gross amount. The fee
// is rounded half up to the nearest cent and the net is the remainder, so
// the split reassembles exactly. Non-positive gross yields a zero split.
func ComputeSplit(grossCents int64, tier enums.SellerTier) Split {
	if grossCents <= 0 {
		return Split{}
	}

	gross := decimal.NewFromInt(grossCents)
	fee := gross.Mul(RateFor(tier)).Round(0)

	feeCents := fee.IntPart()
	if feeCents < 0 {
		feeCents = 0
	}
	if feeCents > grossCents {
		feeCents = grossCents
	}

	return Split{
		GrossCents: grossCents,
		FeeCents:   feeCents,
		NetCents:   grossCents - feeCents,
	}
}
