package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/loyalcart/api/internal/domain"
	"github.com/loyalcart/api/internal/platform/auth"
	"github.com/loyalcart/api/internal/services"
)

type stubCartService struct {
	getFn    func(context.Context, string) (services.Cart, error)
	addFn    func(context.Context, services.AddCartItemCommand) (services.Cart, error)
	updateFn func(context.Context, services.UpdateCartItemCommand) (services.Cart, error)
	removeFn func(context.Context, services.RemoveCartItemCommand) (services.Cart, error)
	clearFn  func(context.Context, string) error
}

func (s *stubCartService) GetOrCreateCart(ctx context.Context, userID string) (services.Cart, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
	if s.addFn != nil {
		return s.addFn(ctx, cmd)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) UpdateItemQuantity(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
	if s.removeFn != nil {
		return s.removeFn(ctx, cmd)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) ClearCart(ctx context.Context, userID string) error {
	if s.clearFn != nil {
		return s.clearFn(ctx, userID)
	}
	return errors.New("not implemented")
}

var _ services.CartService = (*stubCartService)(nil)

func sampleCart(now time.Time) services.Cart {
	return services.Cart{
		ID:     "user-1",
		UserID: "user-1",
		Items: []domain.CartItem{
			{ProductID: "prod-1", Name: "Mug", Quantity: 2, UnitPriceCents: 1500, LoyaltyType: domain.LoyaltyTypeHybrid},
		},
		TotalCents: 3000,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestCartHandlersGetCart(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	service := &stubCartService{
		getFn: func(ctx context.Context, userID string) (services.Cart, error) {
			if userID != "user-1" {
				t.Fatalf("expected user-1, got %s", userID)
			}
			return sampleCart(now), nil
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Cart.UserID != "user-1" || resp.Cart.TotalCents != 3000 {
		t.Fatalf("unexpected cart %#v", resp.Cart)
	}
	if resp.Cart.ItemsCount != 1 {
		t.Fatalf("expected 1 item, got %d", resp.Cart.ItemsCount)
	}
	item := resp.Cart.Items[0]
	if item.LineTotalCents != 3000 || item.LoyaltyType != "HYBRID" {
		t.Fatalf("unexpected item %#v", item)
	}
}

func TestCartHandlersAddItem(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	var captured services.AddCartItemCommand
	service := &stubCartService{
		addFn: func(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
			captured = cmd
			return sampleCart(now), nil
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	body := bytes.NewBufferString(`{"product_id":"prod-1","quantity":2}`)
	req := httptest.NewRequest(http.MethodPost, "/cart/items", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" || captured.ProductID != "prod-1" || captured.Quantity != 2 {
		t.Fatalf("unexpected command %#v", captured)
	}
}

func TestCartHandlersAddItemMissingBody(t *testing.T) {
	handler := NewCartHandlers(nil, &stubCartService{})
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/cart/items", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCartHandlersAddItemInsufficientStock(t *testing.T) {
	service := &stubCartService{
		addFn: func(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
			return services.Cart{}, services.ErrCartInsufficientStock
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	body := bytes.NewBufferString(`{"product_id":"prod-1","quantity":99}`)
	req := httptest.NewRequest(http.MethodPost, "/cart/items", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestCartHandlersUpdateItemQuantity(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	var captured services.UpdateCartItemCommand
	service := &stubCartService{
		updateFn: func(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error) {
			captured = cmd
			return sampleCart(now), nil
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	body := bytes.NewBufferString(`{"quantity":5}`)
	req := httptest.NewRequest(http.MethodPatch, "/cart/items/prod-1", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ProductID != "prod-1" || captured.Quantity != 5 {
		t.Fatalf("unexpected command %#v", captured)
	}
}

func TestCartHandlersRemoveItemProductNotFound(t *testing.T) {
	service := &stubCartService{
		removeFn: func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
			return services.Cart{}, services.ErrCartNotFound
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodDelete, "/cart/items/prod-9", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestCartHandlersClearCart(t *testing.T) {
	cleared := false
	service := &stubCartService{
		clearFn: func(ctx context.Context, userID string) error {
			cleared = true
			return nil
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodDelete, "/cart", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !cleared {
		t.Fatalf("expected clear to be invoked")
	}
}
