package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/loyalcart/api/internal/services"
)

type stubLoyaltyService struct {
	settingsFn func(context.Context) (services.LoyaltySettings, error)
	updateFn   func(context.Context, services.UpdateLoyaltySettingsCommand) (services.LoyaltySettings, error)
	ratesFn    func(context.Context) (services.ConversionRates, error)
	validateFn func(context.Context, string, int64) error
	awardFn    func(context.Context, services.PointsAdjustmentCommand) (int64, error)
	deductFn   func(context.Context, services.PointsAdjustmentCommand) (int64, error)
}

func (s *stubLoyaltyService) Settings(ctx context.Context) (services.LoyaltySettings, error) {
	if s.settingsFn != nil {
		return s.settingsFn(ctx)
	}
	return services.LoyaltySettings{}, errors.New("not implemented")
}

func (s *stubLoyaltyService) UpdateSettings(ctx context.Context, cmd services.UpdateLoyaltySettingsCommand) (services.LoyaltySettings, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.LoyaltySettings{}, errors.New("not implemented")
}

func (s *stubLoyaltyService) ConversionRates(ctx context.Context) (services.ConversionRates, error) {
	if s.ratesFn != nil {
		return s.ratesFn(ctx)
	}
	return services.ConversionRates{}, errors.New("not implemented")
}

func (s *stubLoyaltyService) ValidateRedemption(ctx context.Context, userID string, pointsToUse int64) error {
	if s.validateFn != nil {
		return s.validateFn(ctx, userID, pointsToUse)
	}
	return errors.New("not implemented")
}

func (s *stubLoyaltyService) AwardPoints(ctx context.Context, cmd services.PointsAdjustmentCommand) (int64, error) {
	if s.awardFn != nil {
		return s.awardFn(ctx, cmd)
	}
	return 0, errors.New("not implemented")
}

func (s *stubLoyaltyService) DeductPoints(ctx context.Context, cmd services.PointsAdjustmentCommand) (int64, error) {
	if s.deductFn != nil {
		return s.deductFn(ctx, cmd)
	}
	return 0, errors.New("not implemented")
}

var _ services.LoyaltyService = (*stubLoyaltyService)(nil)

func TestLoyaltyHandlersConversionRates(t *testing.T) {
	service := &stubLoyaltyService{
		ratesFn: func(context.Context) (services.ConversionRates, error) {
			return services.ConversionRates{
				PointsPerDollar:      10,
				RedeemRateCents:      10,
				RedemptionBlock:      100,
				RedemptionBlockCents: 500,
				Active:               true,
			}, nil
		},
	}

	handler := NewLoyaltyHandlers(service)
	router := chi.NewRouter()
	router.Route("/loyalty", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/loyalty/rates", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp conversionRatesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.PointsPerDollar != 10 || resp.RedeemRateCents != 10 {
		t.Fatalf("unexpected rates %#v", resp)
	}
	if resp.RedemptionBlock != 100 || resp.RedemptionBlockCents != 500 {
		t.Fatalf("unexpected redemption block %#v", resp)
	}
	if !resp.Active {
		t.Fatalf("expected active program")
	}
}

func TestLoyaltyHandlersConversionRatesUnavailable(t *testing.T) {
	service := &stubLoyaltyService{
		ratesFn: func(context.Context) (services.ConversionRates, error) {
			return services.ConversionRates{}, services.ErrLoyaltyUnavailable
		},
	}

	handler := NewLoyaltyHandlers(service)
	router := chi.NewRouter()
	router.Route("/loyalty", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/loyalty/rates", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
