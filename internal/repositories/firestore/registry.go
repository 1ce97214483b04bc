package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/loyalcart/api/internal/platform/firestore"
	"github.com/loyalcart/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider *pfirestore.Provider

	catalog       *CatalogRepository
	carts         repositories.CartRepository
	orders        *OrderRepository
	payments      *PaymentRepository
	users         *UserRepository
	settings      *LoyaltySettingsRepository
	notifications *NotificationRepository
	counters      *CounterRepository
	health        repositories.HealthRepository
}

// RegistryOption customises registry construction.
type RegistryOption func(*Registry)

// WithCartRepository swaps the cart store, e.g. for a Redis-backed cart
// while the rest of the data stays in Firestore.
func WithCartRepository(carts repositories.CartRepository) RegistryOption {
	return func(r *Registry) {
		if carts != nil {
			r.carts = carts
		}
	}
}

// NewRegistry wires every repository against the shared provider.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	catalog, err := NewCatalogRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: catalog: %w", err)
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: carts: %w", err)
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: orders: %w", err)
	}
	payments, err := NewPaymentRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: payments: %w", err)
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: users: %w", err)
	}
	settings, err := NewLoyaltySettingsRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: loyalty settings: %w", err)
	}
	notifications, err := NewNotificationRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: notifications: %w", err)
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: counters: %w", err)
	}

	registry := &Registry{
		provider:      provider,
		catalog:       catalog,
		carts:         carts,
		orders:        orders,
		payments:      payments,
		users:         users,
		settings:      settings,
		notifications: notifications,
		counters:      counters,
	}

	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				_, err := provider.Client(ctx)
				return err
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("registry: health: %w", err)
	}
	registry.health = health

	for _, opt := range opts {
		if opt != nil {
			opt(registry)
		}
	}
	return registry, nil
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Catalog() repositories.CatalogRepository   { return r.catalog }
func (r *Registry) Carts() repositories.CartRepository        { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository      { return r.orders }
func (r *Registry) Payments() repositories.PaymentRepository  { return r.payments }
func (r *Registry) Users() repositories.UserRepository        { return r.users }
func (r *Registry) Counters() repositories.CounterRepository  { return r.counters }
func (r *Registry) Health() repositories.HealthRepository     { return r.health }

func (r *Registry) LoyaltySettings() repositories.LoyaltySettingsRepository {
	return r.settings
}

func (r *Registry) Notifications() repositories.NotificationRepository {
	return r.notifications
}

// RunInTx groups repository calls in one Firestore transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}

var _ repositories.Registry = (*Registry)(nil)
