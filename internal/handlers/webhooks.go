package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/loyalcart/api/internal/platform/httpx"
	"github.com/loyalcart/api/internal/services"
)

const maxWebhookBodySize = 256 * 1024

// WebhookHandlers ingests payment gateway callbacks. The endpoint is
// unauthenticated; the request body carries its own signature.
type WebhookHandlers struct {
	payments services.PaymentService
	limiter  rateLimiter
}

// WebhookOption customises webhook handler construction.
type WebhookOption func(*WebhookHandlers)

// WithWebhookRateLimiter throttles webhook deliveries per remote address.
func WithWebhookRateLimiter(limiter rateLimiter) WebhookOption {
	return func(h *WebhookHandlers) {
		h.limiter = limiter
	}
}

// WithWebhookRateLimit installs a fixed-window limiter keyed by remote
// address, allowing limit deliveries per window.
func WithWebhookRateLimit(limit int, window time.Duration) WebhookOption {
	return func(h *WebhookHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, time.Now)
	}
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(payments services.PaymentService, opts ...WebhookOption) *WebhookHandlers {
	h := &WebhookHandlers{payments: payments}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.stripeWebhook)
}

func (h *WebhookHandlers) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(r.RemoteAddr) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many webhook deliveries", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	signature := strings.TrimSpace(r.Header.Get("Stripe-Signature"))
	if signature == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "missing webhook signature", http.StatusBadRequest))
		return
	}

	err = h.payments.HandleWebhook(ctx, services.WebhookCommand{
		Payload:   body,
		Signature: signature,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPaymentWebhookSignature):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		case errors.Is(err, services.ErrPaymentInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		default:
			// Non-2xx makes the gateway retry the delivery later.
			httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "webhook processing failed", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]bool{"received": true})
}
