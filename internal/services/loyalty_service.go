package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/loyalcart/api/internal/domain"
	"github.com/loyalcart/api/internal/repositories"
)

var (
	errLoyaltySettingsRepositoryRequired = errors.New("loyalty service: settings repository is required")
	errLoyaltyUsersRepositoryRequired    = errors.New("loyalty service: users repository is required")
	errLoyaltyClockRequired              = errors.New("loyalty service: clock is required")
)

// ErrLoyaltyInvalidInput indicates the caller supplied invalid input.
var ErrLoyaltyInvalidInput = errors.New("loyalty service: invalid input")

// ErrLoyaltyUnavailable indicates the loyalty service cannot reach its backing store.
var ErrLoyaltyUnavailable = errors.New("loyalty service: unavailable")

// ErrLoyaltyUserNotFound indicates the referenced account does not exist.
var ErrLoyaltyUserNotFound = errors.New("loyalty service: user not found")

// ErrLoyaltyInsufficientPoints indicates a deduction exceeds the user's balance.
var ErrLoyaltyInsufficientPoints = errors.New("loyalty service: insufficient points")

// LoyaltyServiceDeps wires the persistence dependencies for the point ledger.
type LoyaltyServiceDeps struct {
	Settings repositories.LoyaltySettingsRepository
	Users    repositories.UserRepository
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

type loyaltyService struct {
	settings repositories.LoyaltySettingsRepository
	users    repositories.UserRepository
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewLoyaltyService constructs a LoyaltyService enforcing dependency validation.
func NewLoyaltyService(deps LoyaltyServiceDeps) (LoyaltyService, error) {
	if deps.Settings == nil {
		return nil, errLoyaltySettingsRepositoryRequired
	}
	if deps.Users == nil {
		return nil, errLoyaltyUsersRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errLoyaltyClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &loyaltyService{
		settings: deps.Settings,
		users:    deps.Users,
		now:      func() time.Time { return deps.Clock().UTC() },
		logger:   logger,
	}, nil
}

// Settings returns the stored program configuration, falling back to the
// defaults when no document has been saved yet.
func (s *loyaltyService) Settings(ctx context.Context) (LoyaltySettings, error) {
	if s == nil || s.settings == nil {
		return LoyaltySettings{}, ErrLoyaltyUnavailable
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.DefaultLoyaltySettings(), nil
		}
		return LoyaltySettings{}, s.translateRepoError(err)
	}
	return normaliseLoyaltySettings(settings), nil
}

func (s *loyaltyService) UpdateSettings(ctx context.Context, cmd UpdateLoyaltySettingsCommand) (LoyaltySettings, error) {
	if s == nil || s.settings == nil {
		return LoyaltySettings{}, ErrLoyaltyUnavailable
	}

	if cmd.PointsPerDollar < 0 {
		return LoyaltySettings{}, fmt.Errorf("%w: points_per_dollar must be non-negative", ErrLoyaltyInvalidInput)
	}
	if cmd.RedeemRateCents <= 0 {
		return LoyaltySettings{}, fmt.Errorf("%w: redeem_rate_cents must be greater than zero", ErrLoyaltyInvalidInput)
	}

	settings := LoyaltySettings{
		PointsPerDollar: cmd.PointsPerDollar,
		RedeemRateCents: cmd.RedeemRateCents,
		Active:          cmd.Active,
		UpdatedAt:       s.now(),
	}

	saved, err := s.settings.Save(ctx, settings)
	if err != nil {
		return LoyaltySettings{}, s.translateRepoError(err)
	}

	s.logger(ctx, "loyalty.settings_updated", map[string]any{
		"actorID":         strings.TrimSpace(cmd.ActorID),
		"pointsPerDollar": saved.PointsPerDollar,
		"redeemRateCents": saved.RedeemRateCents,
		"active":          saved.Active,
	})
	return saved, nil
}

// ConversionRates reports the effective arithmetic clients use to preview
// redemption values before checkout.
func (s *loyaltyService) ConversionRates(ctx context.Context) (ConversionRates, error) {
	settings, err := s.Settings(ctx)
	if err != nil {
		return ConversionRates{}, err
	}
	return ConversionRates{
		PointsPerDollar:      settings.PointsPerDollar,
		RedeemRateCents:      settings.RedeemRateCents,
		RedemptionBlock:      domain.RedemptionBlockPoints,
		RedemptionBlockCents: domain.RedemptionBlockCents,
		Active:               settings.Active,
	}, nil
}

// ValidateRedemption checks that the user's balance covers the requested
// redemption without mutating the ledger.
func (s *loyaltyService) ValidateRedemption(ctx context.Context, userID string, pointsToUse int64) error {
	if s == nil || s.users == nil {
		return ErrLoyaltyUnavailable
	}

	uid := strings.TrimSpace(userID)
	if uid == "" {
		return ErrLoyaltyInvalidInput
	}
	if pointsToUse < 0 {
		return fmt.Errorf("%w: points must be non-negative", ErrLoyaltyInvalidInput)
	}
	if pointsToUse == 0 {
		return nil
	}

	user, err := s.users.FindByID(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return ErrLoyaltyUserNotFound
		}
		return s.translateRepoError(err)
	}
	if user.LoyaltyPoints < pointsToUse {
		return ErrLoyaltyInsufficientPoints
	}
	return nil
}

// AwardPoints credits points to the user and returns the resulting balance.
func (s *loyaltyService) AwardPoints(ctx context.Context, cmd PointsAdjustmentCommand) (int64, error) {
	return s.adjust(ctx, cmd, false)
}

// DeductPoints debits points from the user and returns the resulting balance.
// Without FloorAtZero the deduction fails when the balance is insufficient.
func (s *loyaltyService) DeductPoints(ctx context.Context, cmd PointsAdjustmentCommand) (int64, error) {
	return s.adjust(ctx, cmd, true)
}

func (s *loyaltyService) adjust(ctx context.Context, cmd PointsAdjustmentCommand, deduct bool) (int64, error) {
	if s == nil || s.users == nil {
		return 0, ErrLoyaltyUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return 0, ErrLoyaltyInvalidInput
	}
	if cmd.Points <= 0 {
		return 0, fmt.Errorf("%w: points must be greater than zero", ErrLoyaltyInvalidInput)
	}

	delta := cmd.Points
	if deduct {
		delta = -delta
	}

	balance, err := s.users.AdjustLoyaltyPoints(ctx, repositories.LoyaltyPointsAdjustment{
		UserID:      uid,
		Delta:       delta,
		FloorAtZero: cmd.FloorAtZero,
	})
	if err != nil {
		return 0, s.translateRepoError(err)
	}

	event := "loyalty.points_awarded"
	if deduct {
		event = "loyalty.points_deducted"
	}
	s.logger(ctx, event, map[string]any{
		"userID":  uid,
		"points":  cmd.Points,
		"balance": balance,
		"orderID": strings.TrimSpace(cmd.OrderID),
		"reason":  strings.TrimSpace(cmd.Reason),
	})
	return balance, nil
}

func (s *loyaltyService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) && stockErr.Code == repositories.StockErrorInsufficientPoints {
		return ErrLoyaltyInsufficientPoints
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrLoyaltyUserNotFound
		case repoErr.IsConflict():
			return ErrLoyaltyInsufficientPoints
		case repoErr.IsUnavailable():
			return ErrLoyaltyUnavailable
		}
		return ErrLoyaltyUnavailable
	}
	return ErrLoyaltyUnavailable
}

func normaliseLoyaltySettings(settings domain.LoyaltySettings) domain.LoyaltySettings {
	if settings.PointsPerDollar <= 0 {
		settings.PointsPerDollar = domain.DefaultPointsPerDollar
	}
	if settings.RedeemRateCents <= 0 {
		settings.RedeemRateCents = domain.DefaultRedeemRateCents
	}
	return settings
}
