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

type stubOrderService struct {
	getFn    func(context.Context, services.GetOrderCommand) (services.Order, error)
	listFn   func(context.Context, services.ListOrdersCommand) (domain.CursorPage[services.Order], error)
	updateFn func(context.Context, services.OrderStatusCommand) (services.Order, error)
	cancelFn func(context.Context, services.CancelOrderCommand) (services.Order, error)
	statsFn  func(context.Context) (services.OrderStats, error)
}

func (s *stubOrderService) GetOrder(ctx context.Context, cmd services.GetOrderCommand) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, cmd services.ListOrdersCommand) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, cmd)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.OrderStatusCommand) (services.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Stats(ctx context.Context) (services.OrderStats, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx)
	}
	return services.OrderStats{}, errors.New("not implemented")
}

var _ services.OrderService = (*stubOrderService)(nil)

func sampleOrder(now time.Time) services.Order {
	confirmed := now.Add(time.Minute)
	return services.Order{
		ID:            "ord_123",
		Number:        "ORD-000042",
		UserID:        "user-1",
		Items:         []domain.OrderItem{{ProductID: "prod-1", Name: "Mug", Quantity: 2, UnitPriceCents: 1500}},
		SubtotalCents: 3000,
		RedeemedCents: 500,
		TotalCents:    2500,
		PointsUsed:    100,
		PointsEarned:  250,
		Status:        domain.OrderStatusConfirmed,
		PaymentState:  domain.PaymentStatePaid,
		ShippingAddress: domain.Address{
			Name:    "Dana",
			Line1:   "1 Main St",
			City:    "Springfield",
			Country: "US",
		},
		CreatedAt:   now,
		ConfirmedAt: &confirmed,
	}
}

func TestOrderHandlersListOrders(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	var captured services.ListOrdersCommand
	service := &stubOrderService{
		listFn: func(ctx context.Context, cmd services.ListOrdersCommand) (domain.CursorPage[services.Order], error) {
			captured = cmd
			return domain.CursorPage[services.Order]{
				Items:         []services.Order{sampleOrder(now)},
				NextPageToken: "tok-next",
			}, nil
		},
	}

	handler := NewOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/orders?status=confirmed&page_size=10&page_token=tok123", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" {
		t.Fatalf("expected user user-1, got %s", captured.UserID)
	}
	if captured.Status == nil || *captured.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected status filter CONFIRMED, got %#v", captured.Status)
	}
	if captured.Pagination.PageSize != 10 || captured.Pagination.PageToken != "tok123" {
		t.Fatalf("unexpected pagination %#v", captured.Pagination)
	}

	var resp orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 order, got %d", len(resp.Items))
	}
	order := resp.Items[0]
	if order.ID != "ord_123" || order.Number != "ORD-000042" {
		t.Fatalf("unexpected order payload: %#v", order)
	}
	if order.TotalCents != 2500 || order.PointsUsed != 100 {
		t.Fatalf("unexpected totals: %#v", order)
	}
	if len(order.Items) != 1 || order.Items[0].LineTotalCents != 3000 {
		t.Fatalf("unexpected line items: %#v", order.Items)
	}
	if resp.NextPageToken != "tok-next" {
		t.Fatalf("expected next page token tok-next, got %s", resp.NextPageToken)
	}
}

func TestOrderHandlersListOrdersInvalidPageSize(t *testing.T) {
	handler := NewOrderHandlers(nil, &stubOrderService{})
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/orders?page_size=abc", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestOrderHandlersListOrdersRequiresIdentity(t *testing.T) {
	handler := NewOrderHandlers(nil, &stubOrderService{})
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestOrderHandlersGetOrder(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	var captured services.GetOrderCommand
	service := &stubOrderService{
		getFn: func(ctx context.Context, cmd services.GetOrderCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder(now), nil
		},
	}

	handler := NewOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_123", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_123" || captured.RequestedBy != "user-1" {
		t.Fatalf("unexpected command %#v", captured)
	}
	if captured.Admin {
		t.Fatalf("expected non-admin read")
	}

	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Order.ShippingAddress.City != "Springfield" {
		t.Fatalf("unexpected address %#v", resp.Order.ShippingAddress)
	}
	if resp.Order.ConfirmedAt == "" {
		t.Fatalf("expected confirmed_at to be set")
	}
}

func TestOrderHandlersGetOrderForbiddenHidesExistence(t *testing.T) {
	service := &stubOrderService{
		getFn: func(ctx context.Context, cmd services.GetOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderForbidden
		},
	}

	handler := NewOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_999", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-2"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestOrderHandlersCancelOrder(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	var captured services.CancelOrderCommand
	service := &stubOrderService{
		cancelFn: func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder(now)
			order.Status = domain.OrderStatusCancelled
			order.CancelReason = cmd.Reason
			return order, nil
		},
	}

	handler := NewOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	body := bytes.NewBufferString(`{"reason":"changed my mind"}`)
	req := httptest.NewRequest(http.MethodPost, "/orders/ord_123/cancel", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_123" || captured.Reason != "changed my mind" {
		t.Fatalf("unexpected command %#v", captured)
	}

	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Order.Status != string(domain.OrderStatusCancelled) {
		t.Fatalf("expected CANCELLED, got %s", resp.Order.Status)
	}
}

func TestOrderHandlersCancelOrderEmptyBodyAllowed(t *testing.T) {
	service := &stubOrderService{
		cancelFn: func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			if cmd.Reason != "" {
				t.Fatalf("expected empty reason, got %q", cmd.Reason)
			}
			return sampleOrder(time.Now()), nil
		},
	}

	handler := NewOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_123/cancel", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestOrderHandlersCancelOrderNotCancellable(t *testing.T) {
	service := &stubOrderService{
		cancelFn: func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotCancellable
		},
	}

	handler := NewOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_123/cancel", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}
