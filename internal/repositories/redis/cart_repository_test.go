package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	domain "github.com/loyalcart/api/internal/domain"
	"github.com/loyalcart/api/internal/repositories"
)

func newTestRepository(t *testing.T) (*CartRepository, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo, err := NewCartRepository(client)
	if err != nil {
		t.Fatalf("new cart repository: %v", err)
	}
	return repo, mr
}

func TestCartRepositoryRoundTrip(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	cart := domain.Cart{
		UserID: "user-1",
		Items: []domain.CartItem{
			{ProductID: "prod-1", Name: "Mug", Quantity: 2, UnitPriceCents: 1000, LoyaltyType: domain.LoyaltyTypeHybrid},
		},
		TotalCents: 2000,
		UpdatedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	saved, err := repo.SaveCart(ctx, cart)
	if err != nil {
		t.Fatalf("save cart: %v", err)
	}
	if saved.TotalCents != 2000 {
		t.Fatalf("expected total 2000, got %d", saved.TotalCents)
	}

	loaded, err := repo.GetCart(ctx, "user-1")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(loaded.Items) != 1 || loaded.Items[0].ProductID != "prod-1" {
		t.Fatalf("unexpected cart items: %+v", loaded.Items)
	}
	if loaded.Items[0].LoyaltyType != domain.LoyaltyTypeHybrid {
		t.Fatalf("expected hybrid loyalty type, got %s", loaded.Items[0].LoyaltyType)
	}
	if loaded.UserID != "user-1" || loaded.ID != "user-1" {
		t.Fatalf("unexpected cart identity: %+v", loaded)
	}
}

func TestCartRepositoryMissingCartIsNotFound(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, err := repo.GetCart(context.Background(), "absent")
	if err == nil {
		t.Fatalf("expected error for missing cart")
	}
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found classification, got %v", err)
	}
}

func TestCartRepositoryClearIsIdempotent(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	if _, err := repo.SaveCart(ctx, domain.Cart{UserID: "user-1"}); err != nil {
		t.Fatalf("save cart: %v", err)
	}
	if err := repo.ClearCart(ctx, "user-1"); err != nil {
		t.Fatalf("clear cart: %v", err)
	}
	if err := repo.ClearCart(ctx, "user-1"); err != nil {
		t.Fatalf("clear absent cart: %v", err)
	}
	if _, err := repo.GetCart(ctx, "user-1"); err == nil {
		t.Fatalf("expected cleared cart to be gone")
	}
}

func TestCartRepositoryEntriesExpire(t *testing.T) {
	repo, mr := newTestRepository(t)
	ctx := context.Background()

	if _, err := repo.SaveCart(ctx, domain.Cart{UserID: "user-1"}); err != nil {
		t.Fatalf("save cart: %v", err)
	}

	mr.FastForward(defaultCartTTL + time.Minute)

	if _, err := repo.GetCart(ctx, "user-1"); err == nil {
		t.Fatalf("expected expired cart to be gone")
	}
}
