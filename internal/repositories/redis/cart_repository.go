package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/loyalcart/api/internal/domain"
	"github.com/loyalcart/api/internal/repositories"
)

const defaultCartTTL = 30 * 24 * time.Hour

type cartItemRecord struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	LoyaltyType    string `json:"loyaltyType"`
}

type cartRecord struct {
	UserID     string           `json:"userId"`
	Items      []cartItemRecord `json:"items"`
	TotalCents int64            `json:"totalCents"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// CartRepository stores carts as JSON blobs keyed by user. Entries expire
// after the TTL so abandoned carts clean themselves up.
type CartRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// CartRepositoryOption customises the repository.
type CartRepositoryOption func(*CartRepository)

// WithCartTTL overrides the cart expiry.
func WithCartTTL(ttl time.Duration) CartRepositoryOption {
	return func(r *CartRepository) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// NewCartRepository constructs a Redis-backed cart repository.
func NewCartRepository(client *redis.Client, opts ...CartRepositoryOption) (*CartRepository, error) {
	if client == nil {
		return nil, errors.New("cart repository requires redis client")
	}
	repo := &CartRepository{client: client, ttl: defaultCartTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// GetCart loads the user's cart. A missing key reports not found.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.client == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	data, err := r.client.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Cart{}, newCartError("carts.get", fmt.Errorf("cart for user %s not found", userID), true, false)
	}
	if err != nil {
		return domain.Cart{}, newCartError("carts.get", err, false, true)
	}

	var record cartRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return domain.Cart{}, fmt.Errorf("carts.get: decode cart for user %s: %w", userID, err)
	}
	return decodeCartRecord(userID, record), nil
}

// SaveCart upserts the user's cart and refreshes the expiry.
func (r *CartRepository) SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.client == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	userID := strings.TrimSpace(cart.UserID)
	if userID == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	record := encodeCartRecord(userID, cart)
	data, err := json.Marshal(record)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("carts.save: encode cart for user %s: %w", userID, err)
	}
	if err := r.client.Set(ctx, cartKey(userID), data, r.ttl).Err(); err != nil {
		return domain.Cart{}, newCartError("carts.save", err, false, true)
	}
	return decodeCartRecord(userID, record), nil
}

// ClearCart deletes the user's cart. Deleting an absent cart is not an error.
func (r *CartRepository) ClearCart(ctx context.Context, userID string) error {
	if r == nil || r.client == nil {
		return errors.New("cart repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("cart repository: user id is required")
	}

	if err := r.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return newCartError("carts.clear", err, false, true)
	}
	return nil
}

func cartKey(userID string) string {
	return "cart:" + userID
}

func encodeCartRecord(userID string, cart domain.Cart) cartRecord {
	items := make([]cartItemRecord, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemRecord{
			ProductID:      strings.TrimSpace(item.ProductID),
			Name:           strings.TrimSpace(item.Name),
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LoyaltyType:    string(item.LoyaltyType),
		})
	}

	createdAt := cart.CreatedAt.UTC()
	updatedAt := cart.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	if createdAt.IsZero() {
		createdAt = updatedAt
	}
	return cartRecord{
		UserID:     userID,
		Items:      items,
		TotalCents: cart.TotalCents,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}
}

func decodeCartRecord(userID string, record cartRecord) domain.Cart {
	items := make([]domain.CartItem, 0, len(record.Items))
	for _, item := range record.Items {
		items = append(items, domain.CartItem{
			ProductID:      item.ProductID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LoyaltyType:    domain.LoyaltyType(item.LoyaltyType),
		})
	}
	return domain.Cart{
		ID:         userID,
		UserID:     userID,
		Items:      items,
		TotalCents: record.TotalCents,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
}

type cartError struct {
	op          string
	err         error
	notFound    bool
	unavailable bool
}

func (e *cartError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *cartError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

func (e *cartError) IsNotFound() bool    { return e != nil && e.notFound }
func (e *cartError) IsConflict() bool    { return false }
func (e *cartError) IsUnavailable() bool { return e != nil && e.unavailable }

func newCartError(op string, err error, notFound, unavailable bool) error {
	return &cartError{op: op, err: err, notFound: notFound, unavailable: unavailable}
}

var _ repositories.CartRepository = (*CartRepository)(nil)
var _ repositories.RepositoryError = (*cartError)(nil)
