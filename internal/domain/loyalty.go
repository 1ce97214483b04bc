package domain

const (
	// DefaultPointsPerDollar is the accrual rate applied when no settings
	// document has been saved yet.
	DefaultPointsPerDollar int64 = 10
	// DefaultRedeemRateCents is the default cash value of a single point.
	DefaultRedeemRateCents int64 = 10
	// RedemptionBlockPoints is the smallest redeemable unit of points.
	RedemptionBlockPoints int64 = 100
	// RedemptionBlockCents is the cash value of one redemption block.
	RedemptionBlockCents int64 = 500
)

// DefaultLoyaltySettings returns the program configuration used before an
// administrator saves one.
func DefaultLoyaltySettings() LoyaltySettings {
	return LoyaltySettings{
		PointsPerDollar: DefaultPointsPerDollar,
		RedeemRateCents: DefaultRedeemRateCents,
		Active:          true,
	}
}

// RedemptionValueCents converts a point balance into its checkout discount.
// Points redeem only in whole blocks; a partial block contributes nothing.
func RedemptionValueCents(points int64) int64 {
	if points <= 0 {
		return 0
	}
	return (points / RedemptionBlockPoints) * RedemptionBlockCents
}

// SettleCheckout applies a redemption against an order total and returns the
// remaining amount due in cents. The result never goes below zero even when
// the redemption exceeds the total.
func SettleCheckout(totalCents, pointsUsed int64) int64 {
	due := totalCents - RedemptionValueCents(pointsUsed)
	if due < 0 {
		return 0
	}
	return due
}

// CheckoutPointsEarned returns the points accrued for the amount actually
// charged at checkout: one point per whole dollar, zero while the program is
// inactive.
func (s LoyaltySettings) CheckoutPointsEarned(finalAmountCents int64) int64 {
	if !s.Active || finalAmountCents <= 0 {
		return 0
	}
	return finalAmountCents / 100
}

// PointsEarnedForSpend returns the configured accrual for an arbitrary spend,
// PointsPerDollar per whole dollar. Inactive programs accrue nothing.
func (s LoyaltySettings) PointsEarnedForSpend(amountCents int64) int64 {
	if !s.Active || amountCents <= 0 {
		return 0
	}
	return (amountCents / 100) * s.PointsPerDollar
}

// PointsRequiredForPrice returns how many points cover a price in full at the
// configured redeem rate, rounding up.
func (s LoyaltySettings) PointsRequiredForPrice(priceCents int64) int64 {
	if priceCents <= 0 {
		return 0
	}
	rate := s.RedeemRateCents
	if rate <= 0 {
		rate = DefaultRedeemRateCents
	}
	return (priceCents + rate - 1) / rate
}
