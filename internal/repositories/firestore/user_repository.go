package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/loyalcart/api/internal/domain"
	pfirestore "github.com/loyalcart/api/internal/platform/firestore"
	"github.com/loyalcart/api/internal/repositories"
)

const usersCollection = "users"

type userDocument struct {
	Email         string    `firestore:"email"`
	DisplayName   string    `firestore:"displayName"`
	LoyaltyPoints int64     `firestore:"loyaltyPoints"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

// UserRepository reads account documents and owns the atomic point ledger.
type UserRepository struct {
	base     *pfirestore.BaseRepository[userDocument]
	provider *pfirestore.Provider
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, usersCollection, nil, nil)
	return &UserRepository{base: base, provider: provider}, nil
}

// FindByID loads the account by UID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.User{}, errors.New("user repository: user id is required")
	}

	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	return decodeUserDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// AdjustLoyaltyPoints applies a relative balance change inside a transaction.
// The balance never goes below zero: with FloorAtZero an overdraw clamps the
// balance at zero, otherwise the transaction fails with a points error.
func (r *UserRepository) AdjustLoyaltyPoints(ctx context.Context, adjustment repositories.LoyaltyPointsAdjustment) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("user repository not initialised")
	}
	userID := strings.TrimSpace(adjustment.UserID)
	if userID == "" {
		return 0, errors.New("user repository: user id is required")
	}

	var balance int64
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, userID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc userDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore users decode %s: %w", userID, err)
		}

		newBalance := doc.LoyaltyPoints + adjustment.Delta
		if newBalance < 0 {
			if !adjustment.FloorAtZero {
				return repositories.NewStockError(repositories.StockErrorInsufficientPoints,
					fmt.Sprintf("user %s has %d points, need %d", userID, doc.LoyaltyPoints, -adjustment.Delta), nil)
			}
			newBalance = 0
		}

		balance = newBalance
		return tx.Update(ref, []firestore.Update{
			{Path: "loyaltyPoints", Value: newBalance},
			{Path: "updatedAt", Value: time.Now().UTC()},
		})
	})
	if err != nil {
		var pointsErr *repositories.StockError
		if errors.As(err, &pointsErr) {
			return 0, pointsErr
		}
		return 0, pfirestore.WrapError("users.adjust_points", err)
	}
	return balance, nil
}

func decodeUserDocument(id string, doc userDocument, createdAt, updatedAt time.Time) domain.User {
	return domain.User{
		ID:            strings.TrimSpace(id),
		Email:         strings.TrimSpace(doc.Email),
		DisplayName:   strings.TrimSpace(doc.DisplayName),
		LoyaltyPoints: doc.LoyaltyPoints,
		CreatedAt:     chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:     chooseTime(doc.UpdatedAt, updatedAt),
	}
}

var _ repositories.UserRepository = (*UserRepository)(nil)
