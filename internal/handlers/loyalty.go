package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loyalcart/api/internal/platform/httpx"
	"github.com/loyalcart/api/internal/services"
)

// LoyaltyHandlers exposes the public conversion-rate endpoint.
type LoyaltyHandlers struct {
	loyalty services.LoyaltyService
}

// NewLoyaltyHandlers constructs a new LoyaltyHandlers instance.
func NewLoyaltyHandlers(loyalty services.LoyaltyService) *LoyaltyHandlers {
	return &LoyaltyHandlers{loyalty: loyalty}
}

// Routes registers the /loyalty endpoints.
func (h *LoyaltyHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/rates", h.conversionRates)
}

type conversionRatesResponse struct {
	PointsPerDollar      int64 `json:"points_per_dollar"`
	RedeemRateCents      int64 `json:"redeem_rate_cents"`
	RedemptionBlock      int64 `json:"redemption_block_points"`
	RedemptionBlockCents int64 `json:"redemption_block_cents"`
	Active               bool  `json:"active"`
}

func (h *LoyaltyHandlers) conversionRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.loyalty == nil {
		httpx.WriteError(ctx, w, httpx.NewError("loyalty_service_unavailable", "loyalty service is unavailable", http.StatusServiceUnavailable))
		return
	}

	rates, err := h.loyalty.ConversionRates(ctx)
	if err != nil {
		writeLoyaltyError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, conversionRatesResponse{
		PointsPerDollar:      rates.PointsPerDollar,
		RedeemRateCents:      rates.RedeemRateCents,
		RedemptionBlock:      rates.RedemptionBlock,
		RedemptionBlockCents: rates.RedemptionBlockCents,
		Active:               rates.Active,
	})
}

func writeLoyaltyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrLoyaltyInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrLoyaltyUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user not found", http.StatusNotFound))
	case errors.Is(err, services.ErrLoyaltyInsufficientPoints):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_points", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrLoyaltyUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("loyalty_service_unavailable", "loyalty service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("loyalty_error", "loyalty operation failed", http.StatusInternalServerError))
	}
}
