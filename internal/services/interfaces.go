package services

import (
	"context"
	"time"

	domain "github.com/loyalcart/api/internal/domain"
	"github.com/loyalcart/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination           = domain.Pagination
	Product              = domain.Product
	LoyaltyType          = domain.LoyaltyType
	Cart                 = domain.Cart
	CartItem             = domain.CartItem
	LoyaltySettings      = domain.LoyaltySettings
	Order                = domain.Order
	OrderItem            = domain.OrderItem
	OrderStatus          = domain.OrderStatus
	PaymentState         = domain.PaymentState
	Payment              = domain.Payment
	PaymentStatus        = domain.PaymentStatus
	Address              = domain.Address
	Notification         = domain.Notification
	NotificationCategory = domain.NotificationCategory
	User                 = domain.User
	OrderStats           = domain.OrderStats
)

// LoyaltyService owns the point ledger rules: conversion arithmetic, balance
// validation, and the singleton program settings.
type LoyaltyService interface {
	Settings(ctx context.Context) (LoyaltySettings, error)
	UpdateSettings(ctx context.Context, cmd UpdateLoyaltySettingsCommand) (LoyaltySettings, error)
	ConversionRates(ctx context.Context) (ConversionRates, error)
	ValidateRedemption(ctx context.Context, userID string, pointsToUse int64) error
	AwardPoints(ctx context.Context, cmd PointsAdjustmentCommand) (int64, error)
	DeductPoints(ctx context.Context, cmd PointsAdjustmentCommand) (int64, error)
}

// CartService manages mutable cart state with price capture at add time.
type CartService interface {
	GetOrCreateCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// CatalogService exposes product reads for the storefront surfaces.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
}

// CheckoutService runs the hybrid-currency settlement flow from cart to
// either an instantly settled order or a pending gateway session.
type CheckoutService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
}

// OrderService encapsulates order read flows, fulfilment transitions, and cancellation.
type OrderService interface {
	GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error)
	ListOrders(ctx context.Context, cmd ListOrdersCommand) (domain.CursorPage[Order], error)
	UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	Stats(ctx context.Context) (OrderStats, error)
}

// PaymentService handles gateway webhook ingestion, idempotent order
// confirmation, session verification, and refunds.
type PaymentService interface {
	HandleWebhook(ctx context.Context, cmd WebhookCommand) error
	ConfirmOrder(ctx context.Context, cmd ConfirmOrderCommand) (Order, error)
	VerifySession(ctx context.Context, cmd VerifySessionCommand) (SessionVerification, error)
	Refund(ctx context.Context, cmd RefundCommand) (Order, error)
}

// NotificationService persists notifications and fans them out to subscribers.
type NotificationService interface {
	Notify(ctx context.Context, cmd NotifyCommand) (Notification, error)
	ListNotifications(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Notification], error)
	MarkRead(ctx context.Context, userID string, notificationID string) (Notification, error)
}

// NotificationPublisher fans persisted notifications out to the message bus.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, message NotificationMessage) (string, error)
}

// OrderEventPublisher emits order lifecycle events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}

// Command and DTO definitions ------------------------------------------------

type UpdateLoyaltySettingsCommand struct {
	PointsPerDollar int64
	RedeemRateCents int64
	Active          bool
	ActorID         string
}

// ConversionRates is the public view of the effective loyalty arithmetic.
type ConversionRates struct {
	PointsPerDollar      int64
	RedeemRateCents      int64
	RedemptionBlock      int64
	RedemptionBlockCents int64
	Active               bool
}

type PointsAdjustmentCommand struct {
	UserID  string
	Points  int64
	OrderID string
	Reason  string
	// FloorAtZero clamps deductions at a zero balance instead of failing.
	FloorAtZero bool
}

type AddCartItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int64
}

type UpdateCartItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int64
}

type RemoveCartItemCommand struct {
	UserID    string
	ProductID string
}

type ProductListFilter = repositories.ProductListFilter

type CheckoutCommand struct {
	UserID          string
	PointsToUse     int64
	ShippingAddress Address
}

// CheckoutResult reports the settlement outcome. Settled is true for
// points-only orders that confirmed without a gateway round-trip; otherwise
// SessionID and CheckoutURL point the client at the gateway.
type CheckoutResult struct {
	Order       Order
	Settled     bool
	SessionID   string
	CheckoutURL string
}

type GetOrderCommand struct {
	OrderID     string
	RequestedBy string
	Admin       bool
}

type ListOrdersCommand struct {
	UserID     string
	Status     *OrderStatus
	Pagination Pagination
}

type OrderStatusCommand struct {
	OrderID        string
	TargetStatus   OrderStatus
	TrackingNumber *string
	ActorID        string
}

type CancelOrderCommand struct {
	OrderID     string
	RequestedBy string
	Admin       bool
	Reason      string
}

type WebhookCommand struct {
	Payload   []byte
	Signature string
}

type ConfirmOrderCommand struct {
	OrderID         string
	SessionID       string
	PaymentIntentID string
}

type VerifySessionCommand struct {
	SessionID   string
	RequestedBy string
}

// SessionVerification reports gateway and local settlement state for a session.
type SessionVerification struct {
	Order        Order
	GatewayPaid  bool
	PaymentState PaymentState
}

type RefundCommand struct {
	OrderID     string
	RequestedBy string
	Reason      string
}

type NotifyCommand struct {
	UserID   string
	Category NotificationCategory
	Title    string
	Body     string
	Order    *domain.OrderNotification
	Loyalty  *domain.LoyaltyNotification
}

// NotificationMessage is the wire payload published to the notifications topic.
type NotificationMessage struct {
	NotificationID string    `json:"notificationId"`
	UserID         string    `json:"userId"`
	Category       string    `json:"category"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"createdAt"`
}

// OrderEventMessage is the wire payload published to the order events topic.
type OrderEventMessage struct {
	Event      string    `json:"event"`
	OrderID    string    `json:"orderId"`
	UserID     string    `json:"userId"`
	OccurredAt time.Time `json:"occurredAt"`
}
