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

// PaymentHandlers exposes the session verification endpoint used by the
// storefront's post-checkout return page.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{
		authn:    authn,
		payments: payments,
	}
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/sessions/{sessionID}/verify", h.verifySession)
}

type sessionVerificationResponse struct {
	Order        orderPayload `json:"order"`
	GatewayPaid  bool         `json:"gateway_paid"`
	PaymentState string       `json:"payment_state"`
}

func (h *PaymentHandlers) verifySession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "session id is required", http.StatusBadRequest))
		return
	}

	verification, err := h.payments.VerifySession(ctx, services.VerifySessionCommand{
		SessionID:   sessionID,
		RequestedBy: identity.UID,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, sessionVerificationResponse{
		Order:        buildOrderPayload(verification.Order),
		GatewayPaid:  verification.GatewayPaid,
		PaymentState: string(verification.PaymentState),
	})
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentForbidden):
		// Hide other users' sessions rather than confirming their existence.
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentConflict):
		httpx.WriteError(ctx, w, httpx.NewError("payment_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentNotPaid):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_paid", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentAlreadyRefunded):
		httpx.WriteError(ctx, w, httpx.NewError("already_refunded", "order was already refunded", http.StatusConflict))
	case errors.Is(err, services.ErrPaymentGatewayFailed):
		httpx.WriteError(ctx, w, httpx.NewError("gateway_error", "payment gateway request failed", http.StatusBadGateway))
	case errors.Is(err, services.ErrPaymentUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "payment operation failed", http.StatusInternalServerError))
	}
}
