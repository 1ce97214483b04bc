package repositories

import (
	"context"

	domain "github.com/loyalcart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Catalog() CatalogRepository
	Carts() CartRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Users() UserRepository
	LoyaltySettings() LoyaltySettingsRepository
	Notifications() NotificationRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductListFilter narrows catalog listings.
type ProductListFilter struct {
	Pagination  domain.Pagination
	LoyaltyType *domain.LoyaltyType
	ActiveOnly  bool
}

// CatalogRepository reads products and owns the transactional stock counters.
// Decrement and Restore are relative adjustments applied inside a storage
// transaction; stock never goes below zero.
type CatalogRepository interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	DecrementStock(ctx context.Context, productID string, quantity int64) (remaining int64, err error)
	RestoreStock(ctx context.Context, productID string, quantity int64) (remaining int64, err error)
}

// CartRepository owns the per-user cart document.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	Pagination domain.Pagination
	Status     *domain.OrderStatus
}

// OrderStatusUpdate carries the mutable fields of a status transition.
type OrderStatusUpdate struct {
	Status         domain.OrderStatus
	PaymentState   *domain.PaymentState
	TrackingNumber *string
	CancelReason   *string
	PointsCredited *bool
	ExpectedStatus *domain.OrderStatus
}

// OrderRepository persists settlement aggregates.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) (domain.Order, error)
	Update(ctx context.Context, order domain.Order) (domain.Order, error)
	UpdateStatus(ctx context.Context, orderID string, update OrderStatusUpdate) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindBySessionID(ctx context.Context, sessionID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	Stats(ctx context.Context) (domain.OrderStats, error)
}

// PaymentRepository persists payment records keyed by order and gateway ids.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) (domain.Payment, error)
	Update(ctx context.Context, payment domain.Payment) (domain.Payment, error)
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	FindByOrderID(ctx context.Context, orderID string) (domain.Payment, error)
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (domain.Payment, error)
}

// LoyaltyPointsAdjustment is a relative change to a user's point balance.
// With FloorAtZero the balance clamps at zero instead of failing when the
// deduction exceeds the balance.
type LoyaltyPointsAdjustment struct {
	UserID      string
	Delta       int64
	FloorAtZero bool
}

// UserRepository reads account documents and owns the atomic point ledger.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.User, error)
	AdjustLoyaltyPoints(ctx context.Context, adjustment LoyaltyPointsAdjustment) (balance int64, err error)
}

// LoyaltySettingsRepository stores the singleton program configuration.
type LoyaltySettingsRepository interface {
	Get(ctx context.Context) (domain.LoyaltySettings, error)
	Save(ctx context.Context, settings domain.LoyaltySettings) (domain.LoyaltySettings, error)
}

// NotificationRepository persists user notifications.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) (domain.Notification, error)
	ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Notification], error)
	MarkRead(ctx context.Context, userID string, notificationID string) (domain.Notification, error)
}

// CounterRepository yields monotonically increasing sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, name string) (int64, error)
}

// HealthRepository verifies connectivity to the backing store.
type HealthRepository interface {
	Ping(ctx context.Context) error
}
