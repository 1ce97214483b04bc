package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/loyalcart/api/internal/domain"
	pfirestore "github.com/loyalcart/api/internal/platform/firestore"
	"github.com/loyalcart/api/internal/repositories"
)

const cartsCollection = "carts"

type cartItemDocument struct {
	ProductID      string `firestore:"productId"`
	Name           string `firestore:"name"`
	Quantity       int64  `firestore:"quantity"`
	UnitPriceCents int64  `firestore:"unitPriceCents"`
	LoyaltyType    string `firestore:"loyaltyType"`
}

type cartDocument struct {
	UserID     string             `firestore:"userId"`
	Items      []cartItemDocument `firestore:"items"`
	TotalCents int64              `firestore:"totalCents"`
	CreatedAt  time.Time          `firestore:"createdAt"`
	UpdatedAt  time.Time          `firestore:"updatedAt"`
}

// CartRepository persists the per-user cart document. The document ID is the
// user ID, so a user always has at most one cart.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartsCollection, nil, nil)
	return &CartRepository{base: base}, nil
}

// GetCart loads the cart for the given user.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}
	return decodeCartDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// SaveCart replaces the full cart state.
func (r *CartRepository) SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(cart.UserID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	now := time.Now().UTC()
	updatedAt := cart.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = now
	}
	createdAt := cart.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = updatedAt
	}

	doc := cartDocument{
		UserID:     uid,
		Items:      encodeCartItems(cart.Items),
		TotalCents: cart.TotalCents,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}
	if _, err := r.base.Set(ctx, uid, doc); err != nil {
		return domain.Cart{}, err
	}
	return decodeCartDocument(uid, doc, createdAt, updatedAt), nil
}

// ClearCart removes the cart document entirely.
func (r *CartRepository) ClearCart(ctx context.Context, userID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}

	ref, err := r.base.DocumentRef(ctx, uid)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("carts.clear", err)
	}
	return nil
}

func encodeCartItems(items []domain.CartItem) []cartItemDocument {
	out := make([]cartItemDocument, 0, len(items))
	for _, item := range items {
		out = append(out, cartItemDocument{
			ProductID:      strings.TrimSpace(item.ProductID),
			Name:           strings.TrimSpace(item.Name),
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LoyaltyType:    string(item.LoyaltyType),
		})
	}
	return out
}

func decodeCartDocument(id string, doc cartDocument, createdAt, updatedAt time.Time) domain.Cart {
	items := make([]domain.CartItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.CartItem{
			ProductID:      strings.TrimSpace(item.ProductID),
			Name:           strings.TrimSpace(item.Name),
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LoyaltyType:    domain.LoyaltyType(strings.TrimSpace(item.LoyaltyType)),
		})
	}
	userID := strings.TrimSpace(doc.UserID)
	if userID == "" {
		userID = strings.TrimSpace(id)
	}
	return domain.Cart{
		ID:         strings.TrimSpace(id),
		UserID:     userID,
		Items:      items,
		TotalCents: doc.TotalCents,
		CreatedAt:  chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:  chooseTime(doc.UpdatedAt, updatedAt),
	}
}

var _ repositories.CartRepository = (*CartRepository)(nil)
