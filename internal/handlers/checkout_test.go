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

type stubCheckoutService struct {
	checkoutFn func(context.Context, services.CheckoutCommand) (services.CheckoutResult, error)
}

func (s *stubCheckoutService) Checkout(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
	if s.checkoutFn != nil {
		return s.checkoutFn(ctx, cmd)
	}
	return services.CheckoutResult{}, errors.New("not implemented")
}

var _ services.CheckoutService = (*stubCheckoutService)(nil)

func TestCheckoutHandlersSettledOrder(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	var captured services.CheckoutCommand
	service := &stubCheckoutService{
		checkoutFn: func(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
			captured = cmd
			order := sampleOrder(now)
			order.PaymentState = domain.PaymentStatePaid
			return services.CheckoutResult{Order: order, Settled: true}, nil
		},
	}

	handler := NewCheckoutHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	body := bytes.NewBufferString(`{
		"points_to_use": 300,
		"shipping_address": {"name":"Dana","line1":"1 Main St","city":"Springfield","country":"US"}
	}`)
	req := httptest.NewRequest(http.MethodPost, "/checkout", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" || captured.PointsToUse != 300 {
		t.Fatalf("unexpected command %#v", captured)
	}
	if captured.ShippingAddress.City != "Springfield" {
		t.Fatalf("unexpected address %#v", captured.ShippingAddress)
	}

	var resp checkoutResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Settled {
		t.Fatalf("expected settled result")
	}
	if resp.SessionID != "" || resp.CheckoutURL != "" {
		t.Fatalf("expected no session for settled order, got %#v", resp)
	}
	if resp.Order.PaymentState != string(domain.PaymentStatePaid) {
		t.Fatalf("expected paid state, got %s", resp.Order.PaymentState)
	}
}

func TestCheckoutHandlersGatewaySession(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	service := &stubCheckoutService{
		checkoutFn: func(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
			order := sampleOrder(now)
			order.Status = domain.OrderStatusPending
			order.PaymentState = domain.PaymentStatePending
			return services.CheckoutResult{
				Order:       order,
				Settled:     false,
				SessionID:   "cs_test_123",
				CheckoutURL: "https://checkout.stripe.com/pay/cs_test_123",
			}, nil
		},
	}

	handler := NewCheckoutHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	body := bytes.NewBufferString(`{"shipping_address":{"name":"Dana","line1":"1 Main St","city":"Springfield","country":"US"}}`)
	req := httptest.NewRequest(http.MethodPost, "/checkout", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp checkoutResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Settled {
		t.Fatalf("expected pending result")
	}
	if resp.SessionID != "cs_test_123" {
		t.Fatalf("expected session id, got %s", resp.SessionID)
	}
	if resp.CheckoutURL == "" {
		t.Fatalf("expected checkout url")
	}
}

func TestCheckoutHandlersCartEmpty(t *testing.T) {
	service := &stubCheckoutService{
		checkoutFn: func(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{}, services.ErrCheckoutCartEmpty
		},
	}

	handler := NewCheckoutHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	body := bytes.NewBufferString(`{"shipping_address":{"name":"Dana","line1":"1 Main St","city":"Springfield","country":"US"}}`)
	req := httptest.NewRequest(http.MethodPost, "/checkout", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestCheckoutHandlersInsufficientPoints(t *testing.T) {
	service := &stubCheckoutService{
		checkoutFn: func(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{}, services.ErrCheckoutInsufficientPoints
		},
	}

	handler := NewCheckoutHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	body := bytes.NewBufferString(`{"points_to_use":100000,"shipping_address":{"name":"Dana","line1":"1 Main St","city":"Springfield","country":"US"}}`)
	req := httptest.NewRequest(http.MethodPost, "/checkout", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestCheckoutHandlersPaymentFailed(t *testing.T) {
	service := &stubCheckoutService{
		checkoutFn: func(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{}, services.ErrCheckoutPaymentFailed
		},
	}

	handler := NewCheckoutHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	body := bytes.NewBufferString(`{"shipping_address":{"name":"Dana","line1":"1 Main St","city":"Springfield","country":"US"}}`)
	req := httptest.NewRequest(http.MethodPost, "/checkout", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rr.Code)
	}
}

func TestCheckoutHandlersRequiresBody(t *testing.T) {
	handler := NewCheckoutHandlers(nil, &stubCheckoutService{})
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/checkout", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
