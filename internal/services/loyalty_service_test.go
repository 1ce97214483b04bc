package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/loyalcart/api/internal/domain"
	"github.com/loyalcart/api/internal/repositories"
)

type repositoryErrorStub struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repositoryErrorStub) Error() string {
	return "repository error"
}

func (e *repositoryErrorStub) IsNotFound() bool {
	return e.notFound
}

func (e *repositoryErrorStub) IsConflict() bool {
	return e.conflict
}

func (e *repositoryErrorStub) IsUnavailable() bool {
	return e.unavailable
}

type stubLoyaltySettingsRepository struct {
	mu     sync.Mutex
	getFn  func(context.Context) (domain.LoyaltySettings, error)
	saveFn func(context.Context, domain.LoyaltySettings) (domain.LoyaltySettings, error)
	saved  []domain.LoyaltySettings
}

func (s *stubLoyaltySettingsRepository) Get(ctx context.Context) (domain.LoyaltySettings, error) {
	if s.getFn != nil {
		return s.getFn(ctx)
	}
	return domain.LoyaltySettings{}, &repositoryErrorStub{notFound: true}
}

func (s *stubLoyaltySettingsRepository) Save(ctx context.Context, settings domain.LoyaltySettings) (domain.LoyaltySettings, error) {
	s.mu.Lock()
	s.saved = append(s.saved, settings)
	s.mu.Unlock()
	if s.saveFn != nil {
		return s.saveFn(ctx, settings)
	}
	return settings, nil
}

type stubUserRepository struct {
	mu          sync.Mutex
	findFn      func(context.Context, string) (domain.User, error)
	adjustFn    func(context.Context, repositories.LoyaltyPointsAdjustment) (int64, error)
	adjustments []repositories.LoyaltyPointsAdjustment
}

func (s *stubUserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if s.findFn != nil {
		return s.findFn(ctx, userID)
	}
	return domain.User{}, &repositoryErrorStub{notFound: true}
}

func (s *stubUserRepository) AdjustLoyaltyPoints(ctx context.Context, adjustment repositories.LoyaltyPointsAdjustment) (int64, error) {
	s.mu.Lock()
	s.adjustments = append(s.adjustments, adjustment)
	s.mu.Unlock()
	if s.adjustFn != nil {
		return s.adjustFn(ctx, adjustment)
	}
	return 0, nil
}

func newLoyaltyServiceForTest(t *testing.T, settings *stubLoyaltySettingsRepository, users *stubUserRepository) LoyaltyService {
	t.Helper()
	svc, err := NewLoyaltyService(LoyaltyServiceDeps{
		Settings: settings,
		Users:    users,
		Clock: func() time.Time {
			return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("new loyalty service: %v", err)
	}
	return svc
}

func TestLoyaltyServiceSettingsFallsBackToDefaults(t *testing.T) {
	svc := newLoyaltyServiceForTest(t, &stubLoyaltySettingsRepository{}, &stubUserRepository{})

	settings, err := svc.Settings(context.Background())
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if settings.PointsPerDollar != 10 || settings.RedeemRateCents != 10 || !settings.Active {
		t.Fatalf("expected default settings, got %+v", settings)
	}
}

func TestLoyaltyServiceUpdateSettingsValidates(t *testing.T) {
	repo := &stubLoyaltySettingsRepository{}
	svc := newLoyaltyServiceForTest(t, repo, &stubUserRepository{})

	_, err := svc.UpdateSettings(context.Background(), UpdateLoyaltySettingsCommand{PointsPerDollar: 10, RedeemRateCents: 0, Active: true})
	if !errors.Is(err, ErrLoyaltyInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	saved, err := svc.UpdateSettings(context.Background(), UpdateLoyaltySettingsCommand{PointsPerDollar: 5, RedeemRateCents: 20, Active: false, ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if saved.PointsPerDollar != 5 || saved.RedeemRateCents != 20 || saved.Active {
		t.Fatalf("unexpected saved settings: %+v", saved)
	}
	if saved.UpdatedAt.IsZero() {
		t.Fatalf("expected UpdatedAt stamped")
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.saved) != 1 {
		t.Fatalf("expected one save, got %d", len(repo.saved))
	}
}

func TestLoyaltyServiceConversionRates(t *testing.T) {
	repo := &stubLoyaltySettingsRepository{
		getFn: func(context.Context) (domain.LoyaltySettings, error) {
			return domain.LoyaltySettings{PointsPerDollar: 7, RedeemRateCents: 25, Active: true}, nil
		},
	}
	svc := newLoyaltyServiceForTest(t, repo, &stubUserRepository{})

	rates, err := svc.ConversionRates(context.Background())
	if err != nil {
		t.Fatalf("conversion rates: %v", err)
	}
	if rates.PointsPerDollar != 7 || rates.RedeemRateCents != 25 {
		t.Fatalf("unexpected rates: %+v", rates)
	}
	if rates.RedemptionBlock != 100 || rates.RedemptionBlockCents != 500 {
		t.Fatalf("unexpected redemption block: %+v", rates)
	}
}

func TestLoyaltyServiceValidateRedemption(t *testing.T) {
	users := &stubUserRepository{
		findFn: func(context.Context, string) (domain.User, error) {
			return domain.User{ID: "user-1", LoyaltyPoints: 150}, nil
		},
	}
	svc := newLoyaltyServiceForTest(t, &stubLoyaltySettingsRepository{}, users)

	if err := svc.ValidateRedemption(context.Background(), "user-1", 100); err != nil {
		t.Fatalf("expected redemption allowed: %v", err)
	}
	if err := svc.ValidateRedemption(context.Background(), "user-1", 0); err != nil {
		t.Fatalf("expected zero redemption allowed: %v", err)
	}
	if err := svc.ValidateRedemption(context.Background(), "user-1", 200); !errors.Is(err, ErrLoyaltyInsufficientPoints) {
		t.Fatalf("expected insufficient points, got %v", err)
	}
	if err := svc.ValidateRedemption(context.Background(), "user-1", -1); !errors.Is(err, ErrLoyaltyInvalidInput) {
		t.Fatalf("expected invalid input for negative points, got %v", err)
	}
}

func TestLoyaltyServiceAwardAndDeduct(t *testing.T) {
	users := &stubUserRepository{
		adjustFn: func(_ context.Context, adj repositories.LoyaltyPointsAdjustment) (int64, error) {
			return 100 + adj.Delta, nil
		},
	}
	svc := newLoyaltyServiceForTest(t, &stubLoyaltySettingsRepository{}, users)

	balance, err := svc.AwardPoints(context.Background(), PointsAdjustmentCommand{UserID: "user-1", Points: 25, OrderID: "ord_1"})
	if err != nil {
		t.Fatalf("award points: %v", err)
	}
	if balance != 125 {
		t.Fatalf("expected balance 125, got %d", balance)
	}

	balance, err = svc.DeductPoints(context.Background(), PointsAdjustmentCommand{UserID: "user-1", Points: 40, OrderID: "ord_1"})
	if err != nil {
		t.Fatalf("deduct points: %v", err)
	}
	if balance != 60 {
		t.Fatalf("expected balance 60, got %d", balance)
	}

	users.mu.Lock()
	defer users.mu.Unlock()
	if len(users.adjustments) != 2 {
		t.Fatalf("expected two adjustments, got %d", len(users.adjustments))
	}
	if users.adjustments[0].Delta != 25 {
		t.Fatalf("expected award delta 25, got %d", users.adjustments[0].Delta)
	}
	if users.adjustments[1].Delta != -40 {
		t.Fatalf("expected deduct delta -40, got %d", users.adjustments[1].Delta)
	}
}

func TestLoyaltyServiceDeductMapsInsufficiency(t *testing.T) {
	users := &stubUserRepository{
		adjustFn: func(context.Context, repositories.LoyaltyPointsAdjustment) (int64, error) {
			return 0, repositories.NewStockError(repositories.StockErrorInsufficientPoints, "balance too low", nil)
		},
	}
	svc := newLoyaltyServiceForTest(t, &stubLoyaltySettingsRepository{}, users)

	_, err := svc.DeductPoints(context.Background(), PointsAdjustmentCommand{UserID: "user-1", Points: 500})
	if !errors.Is(err, ErrLoyaltyInsufficientPoints) {
		t.Fatalf("expected insufficient points, got %v", err)
	}
}

func TestLoyaltyServiceClawbackFloorsAtZero(t *testing.T) {
	users := &stubUserRepository{
		adjustFn: func(_ context.Context, adj repositories.LoyaltyPointsAdjustment) (int64, error) {
			if !adj.FloorAtZero {
				t.Fatalf("expected floored adjustment")
			}
			return 0, nil
		},
	}
	svc := newLoyaltyServiceForTest(t, &stubLoyaltySettingsRepository{}, users)

	balance, err := svc.DeductPoints(context.Background(), PointsAdjustmentCommand{UserID: "user-1", Points: 500, FloorAtZero: true})
	if err != nil {
		t.Fatalf("deduct with floor: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected zero balance, got %d", balance)
	}
}
