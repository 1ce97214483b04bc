package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// LoyaltyType describes which settlement currencies a product accepts.
type LoyaltyType string

const (
	// LoyaltyTypeMoney marks products payable with money only.
	LoyaltyTypeMoney LoyaltyType = "MONEY"
	// LoyaltyTypePoints marks products payable with loyalty points only.
	LoyaltyTypePoints LoyaltyType = "POINTS"
	// LoyaltyTypeHybrid marks products payable with any mix of money and points.
	LoyaltyTypeHybrid LoyaltyType = "HYBRID"
)

// Product is the catalog entry referenced by carts and order snapshots.
type Product struct {
	ID             string
	Name           string
	Description    string
	PriceCents     int64
	SalePriceCents *int64
	Stock          int64
	LoyaltyType    LoyaltyType
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EffectivePriceCents returns the sale price when one is set below the list
// price, otherwise the list price.
func (p Product) EffectivePriceCents() int64 {
	if p.SalePriceCents != nil && *p.SalePriceCents < p.PriceCents {
		return *p.SalePriceCents
	}
	return p.PriceCents
}

// Cart aggregates the mutable shopping cart state for a user.
type Cart struct {
	ID         string
	UserID     string
	Items      []CartItem
	TotalCents int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CartItem stores a single product entry within a cart. UnitPriceCents is
// captured when the item is added and is never re-read from the catalog.
type CartItem struct {
	ProductID      string
	Name           string
	Quantity       int64
	UnitPriceCents int64
	LoyaltyType    LoyaltyType
}

// LineTotalCents returns the extended price for the line.
func (i CartItem) LineTotalCents() int64 {
	return i.UnitPriceCents * i.Quantity
}

// LoyaltySettings holds the tenant-wide loyalty program configuration.
type LoyaltySettings struct {
	PointsPerDollar int64
	RedeemRateCents int64
	Active          bool
	UpdatedAt       time.Time
}

// OrderStatus enumerates the order fulfilment lifecycle.
type OrderStatus string

const (
	// OrderStatusPending means the order awaits payment confirmation.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusConfirmed means payment settled and stock was committed.
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	// OrderStatusProcessing means fulfilment has started.
	OrderStatusProcessing OrderStatus = "PROCESSING"
	// OrderStatusShipped means the parcel left the warehouse.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusDelivered is a terminal success state.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCancelled is a terminal failure state.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped},
	OrderStatusShipped:    {OrderStatusDelivered},
}

// CanTransitionTo reports whether the fulfilment lifecycle allows moving
// from s to next. Terminal states allow nothing.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderStatusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return len(orderStatusTransitions[s]) == 0
}

// PaymentState enumerates the payment side of an order, tracked separately
// from the fulfilment status.
type PaymentState string

const (
	// PaymentStatePending means no settlement has been recorded yet.
	PaymentStatePending PaymentState = "pending"
	// PaymentStatePaid means funds (or points) settled in full.
	PaymentStatePaid PaymentState = "paid"
	// PaymentStateFailed means the gateway rejected the payment.
	PaymentStateFailed PaymentState = "failed"
	// PaymentStateRefunded means a settled payment was returned.
	PaymentStateRefunded PaymentState = "refunded"
)

// OrderItem snapshots a cart line at checkout time.
type OrderItem struct {
	ProductID      string
	Name           string
	Quantity       int64
	UnitPriceCents int64
}

// LineTotalCents returns the extended price for the line.
func (i OrderItem) LineTotalCents() int64 {
	return i.UnitPriceCents * i.Quantity
}

// Order is the settlement aggregate. Monetary fields are minor units; the
// points fields record the hybrid-currency legs of the settlement.
type Order struct {
	ID              string
	Number          string
	UserID          string
	Items           []OrderItem
	SubtotalCents   int64
	RedeemedCents   int64
	TotalCents      int64
	PointsUsed      int64
	PointsEarned    int64
	PointsCredited  bool
	Status          OrderStatus
	PaymentState    PaymentState
	SessionID       string
	PaymentIntentID string
	TrackingNumber  string
	ShippingAddress Address
	CancelReason    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ConfirmedAt     *time.Time
	CancelledAt     *time.Time
}

// Address is the postal destination snapshot stored on orders.
type Address struct {
	Name       string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

// PaymentStatus enumerates the lifecycle of a payment record.
type PaymentStatus string

const (
	// PaymentStatusPending indicates a gateway session awaiting completion.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusSucceeded indicates the charge settled.
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	// PaymentStatusFailed indicates the gateway reported a failure.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded indicates the charge was returned.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Payment records one settlement attempt against an order, whether through
// the gateway or the loyalty ledger.
type Payment struct {
	ID              string
	OrderID         string
	UserID          string
	Provider        string
	SessionID       string
	PaymentIntentID string
	AmountCents     int64
	PointsUsed      int64
	Status          PaymentStatus
	RefundID        string
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProcessedAt     *time.Time
}

// NotificationCategory tags a notification with its domain of origin.
type NotificationCategory string

const (
	// NotificationCategoryOrder covers order lifecycle events.
	NotificationCategoryOrder NotificationCategory = "ORDER"
	// NotificationCategoryLoyalty covers point accrual and deduction events.
	NotificationCategoryLoyalty NotificationCategory = "LOYALTY"
	// NotificationCategoryGeneral covers announcements without a payload.
	NotificationCategoryGeneral NotificationCategory = "GENERAL"
	// NotificationCategorySale covers promotional campaigns.
	NotificationCategorySale NotificationCategory = "SALE"
)

// OrderNotification is the payload carried by ORDER notifications.
type OrderNotification struct {
	OrderID     string
	OrderNumber string
	Status      OrderStatus
}

// LoyaltyNotification is the payload carried by LOYALTY notifications.
// Delta is positive for accruals and negative for deductions.
type LoyaltyNotification struct {
	OrderID string
	Delta   int64
	Balance int64
}

// Notification is a user-facing message. Exactly the pointer field matching
// Category is populated; the others stay nil.
type Notification struct {
	ID        string
	UserID    string
	Category  NotificationCategory
	Title     string
	Body      string
	Order     *OrderNotification
	Loyalty   *LoyaltyNotification
	Read      bool
	CreatedAt time.Time
}

// User is the account shape this service reads; identity issuance and
// profile management live elsewhere.
type User struct {
	ID            string
	Email         string
	DisplayName   string
	LoyaltyPoints int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderStats aggregates admin-facing revenue figures over paid orders.
type OrderStats struct {
	OrderCount   int64
	RevenueCents int64
}
