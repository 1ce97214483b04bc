package firestore

import (
	"context"
	"errors"
	"time"

	domain "github.com/loyalcart/api/internal/domain"
	pfirestore "github.com/loyalcart/api/internal/platform/firestore"
	"github.com/loyalcart/api/internal/repositories"
)

const (
	settingsCollection = "settings"
	loyaltySettingsDoc = "loyalty"
)

type loyaltySettingsDocument struct {
	PointsPerDollar int64     `firestore:"pointsPerDollar"`
	RedeemRateCents int64     `firestore:"redeemRateCents"`
	Active          bool      `firestore:"active"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

// LoyaltySettingsRepository stores the program configuration as a single
// well-known document. A missing document means the program runs on defaults.
type LoyaltySettingsRepository struct {
	base *pfirestore.BaseRepository[loyaltySettingsDocument]
}

// NewLoyaltySettingsRepository constructs a Firestore-backed settings repository.
func NewLoyaltySettingsRepository(provider *pfirestore.Provider) (*LoyaltySettingsRepository, error) {
	if provider == nil {
		return nil, errors.New("loyalty settings repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[loyaltySettingsDocument](provider, settingsCollection, nil, nil)
	return &LoyaltySettingsRepository{base: base}, nil
}

// Get reads the current program configuration. Returns defaults when the
// document has never been written.
func (r *LoyaltySettingsRepository) Get(ctx context.Context) (domain.LoyaltySettings, error) {
	if r == nil || r.base == nil {
		return domain.LoyaltySettings{}, errors.New("loyalty settings repository not initialised")
	}

	doc, err := r.base.Get(ctx, loyaltySettingsDoc)
	if err != nil {
		if isNotFound(err) {
			return domain.DefaultLoyaltySettings(), nil
		}
		return domain.LoyaltySettings{}, err
	}
	return domain.LoyaltySettings{
		PointsPerDollar: doc.Data.PointsPerDollar,
		RedeemRateCents: doc.Data.RedeemRateCents,
		Active:          doc.Data.Active,
		UpdatedAt:       chooseTime(doc.Data.UpdatedAt, doc.UpdateTime),
	}, nil
}

// Save replaces the program configuration.
func (r *LoyaltySettingsRepository) Save(ctx context.Context, settings domain.LoyaltySettings) (domain.LoyaltySettings, error) {
	if r == nil || r.base == nil {
		return domain.LoyaltySettings{}, errors.New("loyalty settings repository not initialised")
	}

	updatedAt := settings.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	doc := loyaltySettingsDocument{
		PointsPerDollar: settings.PointsPerDollar,
		RedeemRateCents: settings.RedeemRateCents,
		Active:          settings.Active,
		UpdatedAt:       updatedAt,
	}
	if _, err := r.base.Set(ctx, loyaltySettingsDoc, doc); err != nil {
		return domain.LoyaltySettings{}, err
	}
	return domain.LoyaltySettings{
		PointsPerDollar: doc.PointsPerDollar,
		RedeemRateCents: doc.RedeemRateCents,
		Active:          doc.Active,
		UpdatedAt:       doc.UpdatedAt,
	}, nil
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

var _ repositories.LoyaltySettingsRepository = (*LoyaltySettingsRepository)(nil)
