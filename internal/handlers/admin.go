package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/loyalcart/api/internal/domain"
	"github.com/loyalcart/api/internal/platform/auth"
	"github.com/loyalcart/api/internal/platform/httpx"
	"github.com/loyalcart/api/internal/services"
)

const maxAdminBodySize = 16 * 1024

// AdminHandlers exposes staff-only order and loyalty management endpoints.
type AdminHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	payments services.PaymentService
	loyalty  services.LoyaltyService
}

// NewAdminHandlers constructs a new AdminHandlers instance.
func NewAdminHandlers(authn *auth.Authenticator, orders services.OrderService, payments services.PaymentService, loyalty services.LoyaltyService) *AdminHandlers {
	return &AdminHandlers{
		authn:    authn,
		orders:   orders,
		payments: payments,
		loyalty:  loyalty,
	}
}

// Routes registers the /admin endpoints restricted to staff and admin roles.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/orders/stats", h.orderStats)
	r.Patch("/orders/{orderID}/status", h.updateOrderStatus)
	r.Post("/orders/{orderID}/refund", h.refundOrder)
	r.Get("/loyalty/settings", h.getLoyaltySettings)
	r.Put("/loyalty/settings", h.updateLoyaltySettings)
}

type updateOrderStatusRequest struct {
	Status         string  `json:"status"`
	TrackingNumber *string `json:"tracking_number"`
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req updateOrderStatusRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}
	status := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if status == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.OrderStatusCommand{
		OrderID:        orderID,
		TargetStatus:   status,
		TrackingNumber: req.TrackingNumber,
		ActorID:        identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type refundOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *AdminHandlers) refundOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req refundOrderRequest
	if body, err := readLimitedBody(r, maxAdminBodySize); err != nil {
		writeBodyError(w, r, err)
		return
	} else if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
			return
		}
	}

	order, err := h.payments.Refund(ctx, services.RefundCommand{
		OrderID:     orderID,
		RequestedBy: identity.UID,
		Reason:      strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type orderStatsResponse struct {
	OrderCount   int64 `json:"order_count"`
	RevenueCents int64 `json:"revenue_cents"`
}

func (h *AdminHandlers) orderStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	stats, err := h.orders.Stats(ctx)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderStatsResponse{
		OrderCount:   stats.OrderCount,
		RevenueCents: stats.RevenueCents,
	})
}

type loyaltySettingsPayload struct {
	PointsPerDollar int64  `json:"points_per_dollar"`
	RedeemRateCents int64  `json:"redeem_rate_cents"`
	Active          bool   `json:"active"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

type loyaltySettingsResponse struct {
	Settings loyaltySettingsPayload `json:"settings"`
}

func (h *AdminHandlers) getLoyaltySettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.loyalty == nil {
		httpx.WriteError(ctx, w, httpx.NewError("loyalty_service_unavailable", "loyalty service is unavailable", http.StatusServiceUnavailable))
		return
	}

	settings, err := h.loyalty.Settings(ctx)
	if err != nil {
		writeLoyaltyError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, loyaltySettingsResponse{Settings: buildLoyaltySettingsPayload(settings)})
}

type updateLoyaltySettingsRequest struct {
	PointsPerDollar int64 `json:"points_per_dollar"`
	RedeemRateCents int64 `json:"redeem_rate_cents"`
	Active          bool  `json:"active"`
}

func (h *AdminHandlers) updateLoyaltySettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.loyalty == nil {
		httpx.WriteError(ctx, w, httpx.NewError("loyalty_service_unavailable", "loyalty service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req updateLoyaltySettingsRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	settings, err := h.loyalty.UpdateSettings(ctx, services.UpdateLoyaltySettingsCommand{
		PointsPerDollar: req.PointsPerDollar,
		RedeemRateCents: req.RedeemRateCents,
		Active:          req.Active,
		ActorID:         identity.UID,
	})
	if err != nil {
		writeLoyaltyError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, loyaltySettingsResponse{Settings: buildLoyaltySettingsPayload(settings)})
}

func buildLoyaltySettingsPayload(settings services.LoyaltySettings) loyaltySettingsPayload {
	return loyaltySettingsPayload{
		PointsPerDollar: settings.PointsPerDollar,
		RedeemRateCents: settings.RedeemRateCents,
		Active:          settings.Active,
		UpdatedAt:       formatTime(settings.UpdatedAt),
	}
}
