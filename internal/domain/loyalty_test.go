package domain

import "testing"

func TestRedemptionValueCents(t *testing.T) {
	cases := []struct {
		points int64
		want   int64
	}{
		{points: 0, want: 0},
		{points: 99, want: 0},
		{points: 100, want: 500},
		{points: 150, want: 500},
		{points: 250, want: 1000},
		{points: -100, want: 0},
	}
	for _, tc := range cases {
		if got := RedemptionValueCents(tc.points); got != tc.want {
			t.Fatalf("RedemptionValueCents(%d) = %d, want %d", tc.points, got, tc.want)
		}
	}
}

func TestSettleCheckoutFloorsAtZero(t *testing.T) {
	if got := SettleCheckout(1200, 100); got != 700 {
		t.Fatalf("expected 700 cents due, got %d", got)
	}
	if got := SettleCheckout(300, 200); got != 0 {
		t.Fatalf("expected zero due when redemption exceeds total, got %d", got)
	}
}

func TestCheckoutPointsEarned(t *testing.T) {
	settings := DefaultLoyaltySettings()
	if got := settings.CheckoutPointsEarned(2599); got != 25 {
		t.Fatalf("expected 25 points for $25.99, got %d", got)
	}
	if got := settings.CheckoutPointsEarned(0); got != 0 {
		t.Fatalf("expected no points for a fully redeemed order, got %d", got)
	}

	settings.Active = false
	if got := settings.CheckoutPointsEarned(2599); got != 0 {
		t.Fatalf("expected no accrual while inactive, got %d", got)
	}
}

func TestPointsEarnedForSpend(t *testing.T) {
	settings := DefaultLoyaltySettings()
	if got := settings.PointsEarnedForSpend(2599); got != 250 {
		t.Fatalf("expected 250 points for $25.99 at 10/dollar, got %d", got)
	}

	settings.PointsPerDollar = 5
	if got := settings.PointsEarnedForSpend(400); got != 20 {
		t.Fatalf("expected 20 points, got %d", got)
	}

	settings.Active = false
	if got := settings.PointsEarnedForSpend(400); got != 0 {
		t.Fatalf("expected no accrual while inactive, got %d", got)
	}
}

func TestPointsRequiredForPrice(t *testing.T) {
	settings := DefaultLoyaltySettings()
	if got := settings.PointsRequiredForPrice(1000); got != 100 {
		t.Fatalf("expected 100 points, got %d", got)
	}
	if got := settings.PointsRequiredForPrice(1001); got != 101 {
		t.Fatalf("expected rounding up to 101 points, got %d", got)
	}
	if got := settings.PointsRequiredForPrice(0); got != 0 {
		t.Fatalf("expected zero points for zero price, got %d", got)
	}
}

func TestEffectivePriceCents(t *testing.T) {
	sale := int64(800)
	p := Product{PriceCents: 1000, SalePriceCents: &sale}
	if got := p.EffectivePriceCents(); got != 800 {
		t.Fatalf("expected sale price, got %d", got)
	}

	higher := int64(1200)
	p.SalePriceCents = &higher
	if got := p.EffectivePriceCents(); got != 1000 {
		t.Fatalf("expected list price when sale is higher, got %d", got)
	}

	p.SalePriceCents = nil
	if got := p.EffectivePriceCents(); got != 1000 {
		t.Fatalf("expected list price, got %d", got)
	}
}
