package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/loyalcart/api/internal/platform/auth"
	"github.com/loyalcart/api/internal/platform/httpx"
	"github.com/loyalcart/api/internal/services"
)

const maxCheckoutBodySize = 16 * 1024

// CheckoutHandlers exposes the settlement endpoint for authenticated users.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs a new CheckoutHandlers instance.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes registers the /checkout endpoint.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.checkoutCart)
}

type checkoutRequest struct {
	PointsToUse     int64          `json:"points_to_use"`
	ShippingAddress addressPayload `json:"shipping_address"`
}

type checkoutResponse struct {
	Order       orderPayload `json:"order"`
	Settled     bool         `json:"settled"`
	SessionID   string       `json:"session_id,omitempty"`
	CheckoutURL string       `json:"checkout_url,omitempty"`
}

func (h *CheckoutHandlers) checkoutCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := decodeJSONBody(r, maxCheckoutBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	result, err := h.checkout.Checkout(ctx, services.CheckoutCommand{
		UserID:          identity.UID,
		PointsToUse:     req.PointsToUse,
		ShippingAddress: req.ShippingAddress.toDomain(),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, checkoutResponse{
		Order:       buildOrderPayload(result.Order),
		Settled:     result.Settled,
		SessionID:   strings.TrimSpace(result.SessionID),
		CheckoutURL: strings.TrimSpace(result.CheckoutURL),
	})
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutCartEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart is empty", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutInsufficientPoints):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_points", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutLoyaltyInactive):
		httpx.WriteError(ctx, w, httpx.NewError("loyalty_inactive", "loyalty redemption is currently disabled", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutPaymentMethod):
		httpx.WriteError(ctx, w, httpx.NewError("payment_method_not_accepted", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment session could not be created", http.StatusBadGateway))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "checkout failed", http.StatusInternalServerError))
	}
}
