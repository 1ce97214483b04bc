package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/loyalcart/api/internal/domain"
	"github.com/loyalcart/api/internal/payments"
	"github.com/loyalcart/api/internal/repositories"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutCartEmpty indicates the cart has no purchasable lines.
	ErrCheckoutCartEmpty = errors.New("checkout: cart is empty")
	// ErrCheckoutInsufficientStock indicates stock ran out while settling the order.
	ErrCheckoutInsufficientStock = errors.New("checkout: insufficient stock")
	// ErrCheckoutInsufficientPoints indicates the redemption exceeds the user's balance.
	ErrCheckoutInsufficientPoints = errors.New("checkout: insufficient points")
	// ErrCheckoutLoyaltyInactive indicates point redemption was requested while the program is disabled.
	ErrCheckoutLoyaltyInactive = errors.New("checkout: loyalty program inactive")
	// ErrCheckoutPaymentMethod indicates the settlement mix is not admissible for a cart line.
	ErrCheckoutPaymentMethod = errors.New("checkout: payment method not accepted")
	// ErrCheckoutPaymentFailed indicates the gateway session could not be created.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
)

// checkoutSessionManager abstracts payments.Manager for easier testing.
type checkoutSessionManager interface {
	CreateCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
}

// orderConfirmer runs the shared settlement sequence. Points-only orders use
// it directly at checkout; gateway orders reach it through the webhook.
type orderConfirmer interface {
	ConfirmOrder(ctx context.Context, cmd ConfirmOrderCommand) (Order, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts        repositories.CartRepository
	Orders       repositories.OrderRepository
	Payments     repositories.PaymentRepository
	Catalog      repositories.CatalogRepository
	Loyalty      LoyaltyService
	OrderNumbers OrderNumberGenerator
	Gateway      checkoutSessionManager
	Confirmer    orderConfirmer
	Currency     string
	SuccessURL   string
	CancelURL    string
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts        repositories.CartRepository
	orders       repositories.OrderRepository
	payments     repositories.PaymentRepository
	catalog      repositories.CatalogRepository
	loyalty      LoyaltyService
	orderNumbers OrderNumberGenerator
	gateway      checkoutSessionManager
	confirmer    orderConfirmer
	currency     string
	successURL   string
	cancelURL    string
	now          func() time.Time
	newID        func() string
	logger       func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("checkout service: catalog repository is required")
	}
	if deps.Loyalty == nil {
		return nil, errors.New("checkout service: loyalty service is required")
	}
	if deps.OrderNumbers == nil {
		return nil, errors.New("checkout service: order number generator is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("checkout service: payment gateway is required")
	}
	if deps.Confirmer == nil {
		return nil, errors.New("checkout service: order confirmer is required")
	}

	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "usd"
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return "ord_" + ulid.Make().String() }
	}

	return &checkoutService{
		carts:        deps.Carts,
		orders:       deps.Orders,
		payments:     deps.Payments,
		catalog:      deps.Catalog,
		loyalty:      deps.Loyalty,
		orderNumbers: deps.OrderNumbers,
		gateway:      deps.Gateway,
		confirmer:    deps.Confirmer,
		currency:     currency,
		successURL:   strings.TrimSpace(deps.SuccessURL),
		cancelURL:    strings.TrimSpace(deps.CancelURL),
		now:          func() time.Time { return clock().UTC() },
		newID:        idGen,
		logger:       logger,
	}, nil
}

// Checkout snapshots the cart into an order and settles it. Points-only
// orders confirm immediately; anything with a money leg goes through a
// gateway session, and stock and cart stay untouched until the gateway
// confirms payment.
func (s *checkoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	if s == nil || s.carts == nil || s.orders == nil {
		return CheckoutResult{}, ErrCheckoutUnavailable
	}

	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CheckoutResult{}, ErrCheckoutInvalidInput
	}
	if cmd.PointsToUse < 0 {
		return CheckoutResult{}, fmt.Errorf("%w: points_to_use must be non-negative", ErrCheckoutInvalidInput)
	}
	if err := validateShippingAddress(cmd.ShippingAddress); err != nil {
		return CheckoutResult{}, err
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return CheckoutResult{}, ErrCheckoutCartEmpty
		}
		return CheckoutResult{}, ErrCheckoutUnavailable
	}
	if len(cart.Items) == 0 {
		return CheckoutResult{}, ErrCheckoutCartEmpty
	}

	// Cart quantities were checked at add time; stock may have moved since.
	// Every line is re-validated here so nothing is persisted for an
	// unfulfillable order.
	if err := s.validateStock(ctx, cart.Items); err != nil {
		return CheckoutResult{}, err
	}

	settings, err := s.loyalty.Settings(ctx)
	if err != nil {
		return CheckoutResult{}, ErrCheckoutUnavailable
	}

	if cmd.PointsToUse > 0 {
		if !settings.Active {
			return CheckoutResult{}, ErrCheckoutLoyaltyInactive
		}
		if cmd.PointsToUse < domain.RedemptionBlockPoints {
			return CheckoutResult{}, fmt.Errorf("%w: points redeem in blocks of %d", ErrCheckoutInvalidInput, domain.RedemptionBlockPoints)
		}
		if err := s.loyalty.ValidateRedemption(ctx, userID, cmd.PointsToUse); err != nil {
			if errors.Is(err, ErrLoyaltyInsufficientPoints) {
				return CheckoutResult{}, ErrCheckoutInsufficientPoints
			}
			return CheckoutResult{}, ErrCheckoutUnavailable
		}
	}

	subtotal := cartTotalCents(cart.Items)
	redemption := domain.RedemptionValueCents(cmd.PointsToUse)
	if redemption > subtotal {
		redemption = subtotal
	}
	final := domain.SettleCheckout(subtotal, cmd.PointsToUse)

	if err := validateSettlementMix(cart.Items, cmd.PointsToUse, final); err != nil {
		return CheckoutResult{}, err
	}

	pointsEarned := settings.CheckoutPointsEarned(final)

	number, err := s.orderNumbers.NextOrderNumber(ctx)
	if err != nil {
		return CheckoutResult{}, ErrCheckoutUnavailable
	}

	now := s.now()
	order := domain.Order{
		ID:              s.newID(),
		Number:          number,
		UserID:          userID,
		Items:           orderItemsFromCart(cart.Items),
		SubtotalCents:   subtotal,
		RedeemedCents:   redemption,
		TotalCents:      final,
		PointsUsed:      cmd.PointsToUse,
		PointsEarned:    pointsEarned,
		Status:          domain.OrderStatusPending,
		PaymentState:    domain.PaymentStatePending,
		ShippingAddress: cmd.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	order, err = s.orders.Insert(ctx, order)
	if err != nil {
		return CheckoutResult{}, ErrCheckoutUnavailable
	}

	// Points are committed up front for both settlement paths. Failures
	// after this point repay them.
	if cmd.PointsToUse > 0 {
		if _, err := s.loyalty.DeductPoints(ctx, PointsAdjustmentCommand{
			UserID:  userID,
			Points:  cmd.PointsToUse,
			OrderID: order.ID,
			Reason:  "checkout redemption",
		}); err != nil {
			s.cancelOrder(ctx, order.ID, "point deduction failed")
			if errors.Is(err, ErrLoyaltyInsufficientPoints) {
				return CheckoutResult{}, ErrCheckoutInsufficientPoints
			}
			return CheckoutResult{}, ErrCheckoutUnavailable
		}
	}

	if final == 0 {
		return s.settleWithPoints(ctx, order)
	}
	return s.settleWithGateway(ctx, order)
}

func (s *checkoutService) settleWithPoints(ctx context.Context, order domain.Order) (CheckoutResult, error) {
	now := s.now()
	if _, err := s.payments.Insert(ctx, domain.Payment{
		ID:          "pay_" + ulid.Make().String(),
		OrderID:     order.ID,
		UserID:      order.UserID,
		Provider:    "loyalty",
		AmountCents: 0,
		PointsUsed:  order.PointsUsed,
		Status:      domain.PaymentStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		s.unwindPoints(ctx, order, "payment record failed")
		return CheckoutResult{}, ErrCheckoutUnavailable
	}

	confirmed, err := s.confirmer.ConfirmOrder(ctx, ConfirmOrderCommand{OrderID: order.ID})
	if err != nil {
		s.unwindPoints(ctx, order, "instant settlement failed")
		if errors.Is(err, ErrPaymentInsufficientStock) {
			return CheckoutResult{}, ErrCheckoutInsufficientStock
		}
		return CheckoutResult{}, ErrCheckoutUnavailable
	}

	s.logger(ctx, "checkout.settled_with_points", map[string]any{
		"orderID":    confirmed.ID,
		"userID":     confirmed.UserID,
		"pointsUsed": confirmed.PointsUsed,
	})
	return CheckoutResult{Order: confirmed, Settled: true}, nil
}

func (s *checkoutService) settleWithGateway(ctx context.Context, order domain.Order) (CheckoutResult, error) {
	req := payments.CheckoutSessionRequest{
		Amount:         order.TotalCents,
		Currency:       s.currency,
		SuccessURL:     s.successURL,
		CancelURL:      s.cancelURL,
		IdempotencyKey: order.ID,
		Metadata: map[string]string{
			"orderID":    order.ID,
			"userID":     order.UserID,
			"pointsUsed": strconv.FormatInt(order.PointsUsed, 10),
		},
		Items: gatewayLineItems(order, s.currency),
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, payments.PaymentContext{}, req)
	if err != nil {
		s.logger(ctx, "checkout.gateway_failed", map[string]any{
			"orderID": order.ID,
			"error":   err.Error(),
		})
		s.unwindPoints(ctx, order, "gateway session failed")
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}

	order.SessionID = session.ID
	order.PaymentIntentID = session.IntentID
	order.UpdatedAt = s.now()
	if order, err = s.orders.Update(ctx, order); err != nil {
		s.unwindPoints(ctx, order, "order update failed")
		return CheckoutResult{}, ErrCheckoutUnavailable
	}

	now := s.now()
	if _, err := s.payments.Insert(ctx, domain.Payment{
		ID:              "pay_" + ulid.Make().String(),
		OrderID:         order.ID,
		UserID:          order.UserID,
		Provider:        session.Provider,
		SessionID:       session.ID,
		PaymentIntentID: session.IntentID,
		AmountCents:     order.TotalCents,
		PointsUsed:      order.PointsUsed,
		Status:          domain.PaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}); err != nil {
		s.unwindPoints(ctx, order, "payment record failed")
		return CheckoutResult{}, ErrCheckoutUnavailable
	}

	s.logger(ctx, "checkout.session_created", map[string]any{
		"orderID":   order.ID,
		"sessionID": session.ID,
		"amount":    order.TotalCents,
	})
	return CheckoutResult{
		Order:       order,
		Settled:     false,
		SessionID:   session.ID,
		CheckoutURL: session.RedirectURL,
	}, nil
}

// validateStock checks every cart line against current catalog state and
// names the offending product on failure.
func (s *checkoutService) validateStock(ctx context.Context, items []domain.CartItem) error {
	for _, item := range items {
		product, err := s.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			if isRepoNotFound(err) {
				return fmt.Errorf("%w: product %s is no longer available", ErrCheckoutInvalidInput, item.ProductID)
			}
			return ErrCheckoutUnavailable
		}
		if !product.Active {
			return fmt.Errorf("%w: product %s is no longer available", ErrCheckoutInvalidInput, item.ProductID)
		}
		if product.Stock < item.Quantity {
			return fmt.Errorf("%w: product %s has %d left", ErrCheckoutInsufficientStock, item.ProductID, product.Stock)
		}
	}
	return nil
}

// unwindPoints repays a committed redemption and cancels the order after a
// settlement failure.
func (s *checkoutService) unwindPoints(ctx context.Context, order domain.Order, reason string) {
	if order.PointsUsed > 0 {
		if _, err := s.loyalty.AwardPoints(ctx, PointsAdjustmentCommand{
			UserID:  order.UserID,
			Points:  order.PointsUsed,
			OrderID: order.ID,
			Reason:  "checkout unwind",
		}); err != nil {
			s.logger(ctx, "checkout.point_repay_failed", map[string]any{
				"orderID": order.ID,
				"userID":  order.UserID,
				"points":  order.PointsUsed,
				"error":   err.Error(),
			})
		}
	}
	s.cancelOrder(ctx, order.ID, reason)
}

func (s *checkoutService) cancelOrder(ctx context.Context, orderID, reason string) {
	failed := domain.PaymentStateFailed
	if _, err := s.orders.UpdateStatus(ctx, orderID, repositories.OrderStatusUpdate{
		Status:       domain.OrderStatusCancelled,
		PaymentState: &failed,
		CancelReason: &reason,
	}); err != nil {
		s.logger(ctx, "checkout.cancel_failed", map[string]any{
			"orderID": orderID,
			"error":   err.Error(),
		})
	}
}

func validateShippingAddress(addr Address) error {
	if strings.TrimSpace(addr.Name) == "" {
		return fmt.Errorf("%w: shipping name is required", ErrCheckoutInvalidInput)
	}
	if strings.TrimSpace(addr.Line1) == "" {
		return fmt.Errorf("%w: shipping address line is required", ErrCheckoutInvalidInput)
	}
	if strings.TrimSpace(addr.City) == "" || strings.TrimSpace(addr.Country) == "" {
		return fmt.Errorf("%w: shipping city and country are required", ErrCheckoutInvalidInput)
	}
	return nil
}

// validateSettlementMix enforces per-product payment admissibility: money
// cannot buy points-only products, and points cannot pay for money-only
// products.
func validateSettlementMix(items []domain.CartItem, pointsToUse, finalCents int64) error {
	for _, item := range items {
		switch item.LoyaltyType {
		case domain.LoyaltyTypePoints:
			if finalCents > 0 {
				return fmt.Errorf("%w: %s accepts points only", ErrCheckoutPaymentMethod, item.ProductID)
			}
		case domain.LoyaltyTypeMoney:
			if pointsToUse > 0 {
				return fmt.Errorf("%w: %s accepts money only", ErrCheckoutPaymentMethod, item.ProductID)
			}
		}
	}
	return nil
}

func orderItemsFromCart(items []domain.CartItem) []domain.OrderItem {
	out := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, domain.OrderItem{
			ProductID:      item.ProductID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	return out
}

// gatewayLineItems maps the order snapshot to gateway lines. When points
// were redeemed the gateway charges a single order line at the final amount;
// spreading the discount across lines would not round exactly.
func gatewayLineItems(order domain.Order, currency string) []payments.CheckoutLineItem {
	if order.RedeemedCents > 0 {
		return []payments.CheckoutLineItem{{
			Name:     fmt.Sprintf("Order %s", order.Number),
			Quantity: 1,
			Amount:   order.TotalCents,
			Currency: currency,
		}}
	}
	lines := make([]payments.CheckoutLineItem, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, payments.CheckoutLineItem{
			Name:     item.Name,
			SKU:      item.ProductID,
			Quantity: item.Quantity,
			Amount:   item.UnitPriceCents,
			Currency: currency,
		})
	}
	return lines
}
