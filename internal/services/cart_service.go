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
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartCatalogRequired    = errors.New("cart service: catalog is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

const maxCartLineQuantity = 99

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to missing dependencies or backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartNotFound indicates the requested cart or cart item does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartProductNotFound indicates the referenced product does not exist or is inactive.
var ErrCartProductNotFound = errors.New("cart service: product not found")

// ErrCartInsufficientStock indicates the requested quantity exceeds available stock.
var ErrCartInsufficientStock = errors.New("cart service: insufficient stock")

// CartServiceDeps wires the repository and catalog dependencies for cart operations.
type CartServiceDeps struct {
	Repository repositories.CartRepository
	Catalog    repositories.CatalogRepository
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

type cartService struct {
	repo    repositories.CartRepository
	catalog repositories.CatalogRepository
	now     func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Catalog == nil {
		return nil, errCartCatalogRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		repo:    deps.Repository,
		catalog: deps.Catalog,
		now:     func() time.Time { return deps.Clock().UTC() },
		logger:  logger,
	}, nil
}

// GetOrCreateCart loads the active cart for the user, creating an empty cart when absent.
func (s *cartService) GetOrCreateCart(ctx context.Context, userID string) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return s.newCart(uid), nil
		}
		return Cart{}, s.translateRepoError(err)
	}
	return s.normaliseCart(cart, uid), nil
}

// AddItem appends a product to the cart, merging quantities when the product
// is already present. The unit price is captured from the catalog at add time
// and never re-read afterwards.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	if s == nil || s.repo == nil || s.catalog == nil {
		return Cart{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Cart{}, ErrCartInvalidInput
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product_id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return Cart{}, fmt.Errorf("%w: quantity must be greater than zero", ErrCartInvalidInput)
	}
	if cmd.Quantity > maxCartLineQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be %d or fewer", ErrCartInvalidInput, maxCartLineQuantity)
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, ErrCartProductNotFound
		}
		return Cart{}, s.translateRepoError(err)
	}
	if !product.Active {
		return Cart{}, ErrCartProductNotFound
	}

	cart, err := s.loadOrNewCart(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	items := cloneCartItems(cart.Items)
	idx := indexOfCartItem(items, productID)

	requested := cmd.Quantity
	if idx >= 0 {
		requested += items[idx].Quantity
	}
	// Soft availability check only; the authoritative decrement happens at
	// payment confirmation.
	if product.Stock < requested {
		return Cart{}, ErrCartInsufficientStock
	}

	if idx >= 0 {
		items[idx].Quantity = requested
	} else {
		items = append(items, domain.CartItem{
			ProductID:      product.ID,
			Name:           product.Name,
			Quantity:       cmd.Quantity,
			UnitPriceCents: product.EffectivePriceCents(),
			LoyaltyType:    product.LoyaltyType,
		})
	}

	return s.save(ctx, cart, items)
}

// UpdateItemQuantity sets the quantity for an existing line. A quantity of
// zero or less removes the line.
func (s *cartService) UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Cart{}, ErrCartInvalidInput
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product_id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity > maxCartLineQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be %d or fewer", ErrCartInvalidInput, maxCartLineQuantity)
	}

	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, ErrCartNotFound
		}
		return Cart{}, s.translateRepoError(err)
	}
	cart = s.normaliseCart(cart, uid)

	items := cloneCartItems(cart.Items)
	idx := indexOfCartItem(items, productID)
	if idx < 0 {
		return Cart{}, ErrCartNotFound
	}

	if cmd.Quantity <= 0 {
		items = append(items[:idx], items[idx+1:]...)
		return s.save(ctx, cart, items)
	}

	if s.catalog != nil {
		product, err := s.catalog.GetProduct(ctx, productID)
		if err == nil && product.Stock < cmd.Quantity {
			return Cart{}, ErrCartInsufficientStock
		}
	}

	items[idx].Quantity = cmd.Quantity
	return s.save(ctx, cart, items)
}

// RemoveItem deletes a line from the cart.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Cart{}, ErrCartInvalidInput
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, ErrCartNotFound
		}
		return Cart{}, s.translateRepoError(err)
	}
	cart = s.normaliseCart(cart, uid)

	items := cloneCartItems(cart.Items)
	idx := indexOfCartItem(items, productID)
	if idx < 0 {
		return Cart{}, ErrCartNotFound
	}
	items = append(items[:idx], items[idx+1:]...)

	return s.save(ctx, cart, items)
}

// ClearCart drops the user's cart entirely.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	if s == nil || s.repo == nil {
		return ErrCartUnavailable
	}

	uid := strings.TrimSpace(userID)
	if uid == "" {
		return ErrCartInvalidInput
	}

	if err := s.repo.ClearCart(ctx, uid); err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return s.translateRepoError(err)
	}
	return nil
}

func (s *cartService) loadOrNewCart(ctx context.Context, userID string) (domain.Cart, error) {
	cart, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return s.newCart(userID), nil
		}
		return domain.Cart{}, s.translateRepoError(err)
	}
	return s.normaliseCart(cart, userID), nil
}

func (s *cartService) save(ctx context.Context, cart domain.Cart, items []domain.CartItem) (domain.Cart, error) {
	cart.Items = items
	cart.TotalCents = cartTotalCents(items)
	cart.UpdatedAt = s.now()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = cart.UpdatedAt
	}

	saved, err := s.repo.SaveCart(ctx, cart)
	if err != nil {
		return domain.Cart{}, s.translateRepoError(err)
	}
	return s.normaliseCart(saved, cart.UserID), nil
}

func (s *cartService) newCart(userID string) domain.Cart {
	now := s.now()
	return domain.Cart{
		ID:        userID,
		UserID:    userID,
		Items:     []domain.CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *cartService) normaliseCart(cart domain.Cart, userID string) domain.Cart {
	if cart.ID = strings.TrimSpace(cart.ID); cart.ID == "" {
		cart.ID = userID
	}
	cart.UserID = strings.TrimSpace(firstNonEmpty(cart.UserID, userID))
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	cart.TotalCents = cartTotalCents(cart.Items)
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = s.now()
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = s.now()
	}
	return cart
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartNotFound
		case repoErr.IsConflict():
			return ErrCartUnavailable
		case repoErr.IsUnavailable():
			return ErrCartUnavailable
		}
		return ErrCartUnavailable
	}
	return ErrCartUnavailable
}

func cartTotalCents(items []domain.CartItem) int64 {
	var total int64
	for _, item := range items {
		if item.Quantity <= 0 || item.UnitPriceCents <= 0 {
			continue
		}
		total += item.LineTotalCents()
	}
	return total
}

func cloneCartItems(items []domain.CartItem) []domain.CartItem {
	if len(items) == 0 {
		return []domain.CartItem{}
	}
	dup := make([]domain.CartItem, len(items))
	copy(dup, items)
	return dup
}

func indexOfCartItem(items []domain.CartItem, productID string) int {
	target := strings.TrimSpace(productID)
	if target == "" {
		return -1
	}
	for i, item := range items {
		if strings.EqualFold(strings.TrimSpace(item.ProductID), target) {
			return i
		}
	}
	return -1
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
