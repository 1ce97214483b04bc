package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/loyalcart/api/internal/domain"
	"github.com/loyalcart/api/internal/payments"
	"github.com/loyalcart/api/internal/repositories"
)

var (
	// ErrPaymentInvalidInput indicates the caller supplied invalid input.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentUnavailable indicates a payment dependency cannot be reached.
	ErrPaymentUnavailable = errors.New("payment: unavailable")
	// ErrPaymentOrderNotFound indicates the referenced order does not exist.
	ErrPaymentOrderNotFound = errors.New("payment: order not found")
	// ErrPaymentConflict indicates the order is in a state that forbids the operation.
	ErrPaymentConflict = errors.New("payment: conflict")
	// ErrPaymentInsufficientStock indicates stock ran out during confirmation.
	ErrPaymentInsufficientStock = errors.New("payment: insufficient stock")
	// ErrPaymentNotPaid indicates a refund was requested for an unpaid order.
	ErrPaymentNotPaid = errors.New("payment: order not paid")
	// ErrPaymentAlreadyRefunded indicates the order was refunded before.
	ErrPaymentAlreadyRefunded = errors.New("payment: already refunded")
	// ErrPaymentWebhookSignature indicates the webhook payload failed verification.
	ErrPaymentWebhookSignature = errors.New("payment: invalid webhook signature")
	// ErrPaymentForbidden indicates the requester does not own the resource.
	ErrPaymentForbidden = errors.New("payment: forbidden")
	// ErrPaymentGatewayFailed indicates the gateway rejected the operation.
	ErrPaymentGatewayFailed = errors.New("payment: gateway failure")
)

// refundGateway abstracts the payments.Manager surface used after checkout.
type refundGateway interface {
	Refund(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.RefundDetails, error)
	LookupSession(ctx context.Context, paymentCtx payments.PaymentContext, sessionID string) (payments.SessionDetails, error)
}

// PaymentServiceDeps wires the dependencies for webhook-driven settlement.
type PaymentServiceDeps struct {
	Orders        repositories.OrderRepository
	Payments      repositories.PaymentRepository
	Catalog       repositories.CatalogRepository
	Carts         repositories.CartRepository
	Loyalty       LoyaltyService
	Notifications NotificationService
	Gateway       refundGateway
	Webhooks      payments.WebhookParser
	Events        OrderEventPublisher
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders        repositories.OrderRepository
	payments      repositories.PaymentRepository
	catalog       repositories.CatalogRepository
	carts         repositories.CartRepository
	loyalty       LoyaltyService
	notifications NotificationService
	gateway       refundGateway
	webhooks      payments.WebhookParser
	events        OrderEventPublisher
	now           func() time.Time
	logger        func(ctx context.Context, event string, fields map[string]any)
}

// NewPaymentService constructs a PaymentService validating required dependencies.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("payment service: catalog repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("payment service: cart repository is required")
	}
	if deps.Loyalty == nil {
		return nil, errors.New("payment service: loyalty service is required")
	}
	if deps.Notifications == nil {
		return nil, errors.New("payment service: notification service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		orders:        deps.Orders,
		payments:      deps.Payments,
		catalog:       deps.Catalog,
		carts:         deps.Carts,
		loyalty:       deps.Loyalty,
		notifications: deps.Notifications,
		gateway:       deps.Gateway,
		webhooks:      deps.Webhooks,
		events:        deps.Events,
		now:           func() time.Time { return clock().UTC() },
		logger:        logger,
	}, nil
}

// HandleWebhook verifies and routes a gateway event. Unknown event types are
// acknowledged so the gateway stops retrying them.
func (s *paymentService) HandleWebhook(ctx context.Context, cmd WebhookCommand) error {
	if s == nil || s.webhooks == nil {
		return ErrPaymentUnavailable
	}

	event, err := s.webhooks.Parse(cmd.Payload, cmd.Signature)
	if err != nil {
		if errors.Is(err, payments.ErrWebhookSignature) {
			return fmt.Errorf("%w: %v", ErrPaymentWebhookSignature, err)
		}
		return fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
	}

	switch event.Type {
	case payments.WebhookEventCheckoutCompleted:
		_, err := s.ConfirmOrder(ctx, ConfirmOrderCommand{
			OrderID:         event.OrderID,
			SessionID:       event.SessionID,
			PaymentIntentID: event.IntentID,
		})
		return err
	case payments.WebhookEventIntentSucceeded:
		_, err := s.ConfirmOrder(ctx, ConfirmOrderCommand{
			OrderID:         event.OrderID,
			PaymentIntentID: event.IntentID,
		})
		if errors.Is(err, ErrPaymentOrderNotFound) {
			// The session-completed event usually lands first; an intent we
			// cannot map is acknowledged rather than retried forever.
			s.logger(ctx, "payment.webhook_unmatched_intent", map[string]any{
				"paymentIntent": event.IntentID,
			})
			return nil
		}
		return err
	case payments.WebhookEventIntentFailed:
		return s.failPayment(ctx, event)
	default:
		s.logger(ctx, "payment.webhook_ignored", map[string]any{
			"type": event.Type,
		})
		return nil
	}
}

// ConfirmOrder runs the settlement sequence for a paid order. It is
// idempotent: an order that is already confirmed and paid is returned
// unchanged, so duplicate webhook deliveries are safe.
func (s *paymentService) ConfirmOrder(ctx context.Context, cmd ConfirmOrderCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrPaymentUnavailable
	}

	order, err := s.resolveOrder(ctx, cmd)
	if err != nil {
		return Order{}, err
	}

	if order.Status == domain.OrderStatusConfirmed && order.PaymentState == domain.PaymentStatePaid {
		return order, nil
	}
	if order.Status != domain.OrderStatusPending {
		return Order{}, fmt.Errorf("%w: order %s is %s", ErrPaymentConflict, order.ID, order.Status)
	}

	if err := s.commitStock(ctx, order); err != nil {
		return Order{}, err
	}

	if err := s.carts.ClearCart(ctx, order.UserID); err != nil && !isRepoNotFound(err) {
		s.logger(ctx, "payment.cart_clear_failed", map[string]any{
			"orderID": order.ID,
			"userID":  order.UserID,
			"error":   err.Error(),
		})
	}

	if strings.TrimSpace(cmd.SessionID) != "" {
		order.SessionID = cmd.SessionID
	}
	if strings.TrimSpace(cmd.PaymentIntentID) != "" {
		order.PaymentIntentID = cmd.PaymentIntentID
	}

	now := s.now()
	order.Status = domain.OrderStatusConfirmed
	order.PaymentState = domain.PaymentStatePaid
	order.ConfirmedAt = &now
	order.UpdatedAt = now

	order, err = s.orders.Update(ctx, order)
	if err != nil {
		return Order{}, ErrPaymentUnavailable
	}

	s.markPaymentSucceeded(ctx, order, cmd)

	var balance int64
	awarded := false
	if order.PointsEarned > 0 {
		balance, err = s.loyalty.AwardPoints(ctx, PointsAdjustmentCommand{
			UserID:  order.UserID,
			Points:  order.PointsEarned,
			OrderID: order.ID,
			Reason:  "order confirmed",
		})
		if err != nil {
			// The flag stays clear so the delivery-time award path can
			// still credit these points.
			s.logger(ctx, "payment.point_award_failed", map[string]any{
				"orderID": order.ID,
				"userID":  order.UserID,
				"points":  order.PointsEarned,
				"error":   err.Error(),
			})
		} else {
			awarded = true
			order.PointsCredited = true
			order.UpdatedAt = s.now()
			if updated, updateErr := s.orders.Update(ctx, order); updateErr != nil {
				s.logger(ctx, "payment.point_flag_update_failed", map[string]any{
					"orderID": order.ID,
					"error":   updateErr.Error(),
				})
			} else {
				order = updated
			}
		}
	}

	s.notifyOrder(ctx, order, "Order confirmed",
		fmt.Sprintf("Your order %s has been confirmed.", order.Number))
	if awarded {
		s.notifyLoyalty(ctx, order, order.PointsEarned, balance,
			fmt.Sprintf("You earned %d points on order %s.", order.PointsEarned, order.Number))
	}
	s.publishEvent(ctx, "order.confirmed", order)

	return order, nil
}

// VerifySession reconciles an order against the gateway's view of its
// checkout session, confirming the order when a webhook was lost or raced.
func (s *paymentService) VerifySession(ctx context.Context, cmd VerifySessionCommand) (SessionVerification, error) {
	if s == nil || s.orders == nil || s.gateway == nil {
		return SessionVerification{}, ErrPaymentUnavailable
	}

	sessionID := strings.TrimSpace(cmd.SessionID)
	if sessionID == "" {
		return SessionVerification{}, ErrPaymentInvalidInput
	}

	order, err := s.orders.FindBySessionID(ctx, sessionID)
	if err != nil {
		if isRepoNotFound(err) {
			return SessionVerification{}, ErrPaymentOrderNotFound
		}
		return SessionVerification{}, ErrPaymentUnavailable
	}

	if requester := strings.TrimSpace(cmd.RequestedBy); requester != "" && requester != order.UserID {
		return SessionVerification{}, ErrPaymentForbidden
	}

	details, err := s.gateway.LookupSession(ctx, payments.PaymentContext{}, sessionID)
	if err != nil {
		return SessionVerification{}, fmt.Errorf("%w: %v", ErrPaymentGatewayFailed, err)
	}

	if details.Paid && order.Status == domain.OrderStatusPending {
		order, err = s.ConfirmOrder(ctx, ConfirmOrderCommand{
			OrderID:         order.ID,
			SessionID:       sessionID,
			PaymentIntentID: details.IntentID,
		})
		if err != nil {
			return SessionVerification{}, err
		}
	}

	return SessionVerification{
		Order:        order,
		GatewayPaid:  details.Paid,
		PaymentState: order.PaymentState,
	}, nil
}

// Refund reverses a paid order: gateway refund first, then the local
// settlement is unwound and earned points are clawed back without driving
// the balance negative.
func (s *paymentService) Refund(ctx context.Context, cmd RefundCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrPaymentUnavailable
	}

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrPaymentInvalidInput
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, ErrPaymentOrderNotFound
		}
		return Order{}, ErrPaymentUnavailable
	}

	if order.PaymentState == domain.PaymentStateRefunded {
		return Order{}, ErrPaymentAlreadyRefunded
	}
	if order.PaymentState != domain.PaymentStatePaid {
		return Order{}, ErrPaymentNotPaid
	}

	payment, err := s.payments.FindByOrderID(ctx, order.ID)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, ErrPaymentOrderNotFound
		}
		return Order{}, ErrPaymentUnavailable
	}

	refundID := ""
	if payment.Provider != "loyalty" && order.TotalCents > 0 {
		if s.gateway == nil {
			return Order{}, ErrPaymentUnavailable
		}
		details, err := s.gateway.Refund(ctx, payments.PaymentContext{PreferredProvider: payment.Provider}, payments.RefundRequest{
			IntentID:       payment.PaymentIntentID,
			Reason:         "requested_by_customer",
			IdempotencyKey: "refund_" + order.ID,
			Metadata: map[string]string{
				"orderID": order.ID,
			},
		})
		if err != nil {
			return Order{}, fmt.Errorf("%w: %v", ErrPaymentGatewayFailed, err)
		}
		refundID = details.RefundID
	}

	now := s.now()
	payment.Status = domain.PaymentStatusRefunded
	payment.RefundID = refundID
	payment.UpdatedAt = now
	if _, err := s.payments.Update(ctx, payment); err != nil {
		s.logger(ctx, "payment.refund_record_failed", map[string]any{
			"orderID":   order.ID,
			"paymentID": payment.ID,
			"error":     err.Error(),
		})
	}

	refunded := domain.PaymentStateRefunded
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = "refunded"
	}
	order, err = s.orders.UpdateStatus(ctx, order.ID, repositories.OrderStatusUpdate{
		Status:       domain.OrderStatusCancelled,
		PaymentState: &refunded,
		CancelReason: &reason,
	})
	if err != nil {
		return Order{}, ErrPaymentUnavailable
	}

	s.restoreStock(ctx, order)

	var balance int64
	if order.PointsUsed > 0 {
		balance, err = s.loyalty.AwardPoints(ctx, PointsAdjustmentCommand{
			UserID:  order.UserID,
			Points:  order.PointsUsed,
			OrderID: order.ID,
			Reason:  "refund repayment",
		})
		if err != nil {
			s.logger(ctx, "payment.point_repay_failed", map[string]any{
				"orderID": order.ID,
				"points":  order.PointsUsed,
				"error":   err.Error(),
			})
		}
	}
	if order.PointsCredited && order.PointsEarned > 0 {
		balance, err = s.loyalty.DeductPoints(ctx, PointsAdjustmentCommand{
			UserID:      order.UserID,
			Points:      order.PointsEarned,
			OrderID:     order.ID,
			Reason:      "refund clawback",
			FloorAtZero: true,
		})
		if err != nil {
			s.logger(ctx, "payment.point_clawback_failed", map[string]any{
				"orderID": order.ID,
				"points":  order.PointsEarned,
				"error":   err.Error(),
			})
		}
	}

	s.notifyOrder(ctx, order, "Order refunded",
		fmt.Sprintf("Your order %s has been refunded.", order.Number))
	if order.PointsUsed > 0 || (order.PointsCredited && order.PointsEarned > 0) {
		delta := order.PointsUsed - order.PointsEarned
		s.notifyLoyalty(ctx, order, delta, balance,
			fmt.Sprintf("Your points were adjusted for refunded order %s.", order.Number))
	}
	s.publishEvent(ctx, "order.refunded", order)

	return order, nil
}

// failPayment marks a gateway failure: the order is cancelled, any committed
// redemption is repaid, and the user is told. Stock was never decremented
// for a pending order, so there is nothing to restore.
func (s *paymentService) failPayment(ctx context.Context, event payments.WebhookEvent) error {
	payment, err := s.payments.FindByPaymentIntentID(ctx, event.IntentID)
	if err != nil {
		if isRepoNotFound(err) {
			s.logger(ctx, "payment.webhook_unmatched_intent", map[string]any{
				"paymentIntent": event.IntentID,
			})
			return nil
		}
		return ErrPaymentUnavailable
	}

	order, err := s.orders.FindByID(ctx, payment.OrderID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return ErrPaymentUnavailable
	}
	if order.Status != domain.OrderStatusPending {
		// Already settled or cancelled; a late failure event changes nothing.
		return nil
	}

	now := s.now()
	payment.Status = domain.PaymentStatusFailed
	payment.FailureReason = strings.TrimSpace(event.FailureReason)
	payment.UpdatedAt = now
	if _, err := s.payments.Update(ctx, payment); err != nil {
		s.logger(ctx, "payment.failure_record_failed", map[string]any{
			"paymentID": payment.ID,
			"error":     err.Error(),
		})
	}

	failed := domain.PaymentStateFailed
	reason := "payment failed"
	order, err = s.orders.UpdateStatus(ctx, order.ID, repositories.OrderStatusUpdate{
		Status:       domain.OrderStatusCancelled,
		PaymentState: &failed,
		CancelReason: &reason,
	})
	if err != nil {
		return ErrPaymentUnavailable
	}

	var balance int64
	if order.PointsUsed > 0 {
		balance, err = s.loyalty.AwardPoints(ctx, PointsAdjustmentCommand{
			UserID:  order.UserID,
			Points:  order.PointsUsed,
			OrderID: order.ID,
			Reason:  "payment failure repayment",
		})
		if err != nil {
			s.logger(ctx, "payment.point_repay_failed", map[string]any{
				"orderID": order.ID,
				"points":  order.PointsUsed,
				"error":   err.Error(),
			})
		}
	}

	s.notifyOrder(ctx, order, "Payment failed",
		fmt.Sprintf("Payment for order %s failed and the order was cancelled.", order.Number))
	if order.PointsUsed > 0 {
		s.notifyLoyalty(ctx, order, order.PointsUsed, balance,
			fmt.Sprintf("%d points were returned for order %s.", order.PointsUsed, order.Number))
	}
	s.publishEvent(ctx, "order.payment_failed", order)

	return nil
}

func (s *paymentService) resolveOrder(ctx context.Context, cmd ConfirmOrderCommand) (domain.Order, error) {
	if orderID := strings.TrimSpace(cmd.OrderID); orderID != "" {
		order, err := s.orders.FindByID(ctx, orderID)
		if err == nil {
			return order, nil
		}
		if !isRepoNotFound(err) {
			return domain.Order{}, ErrPaymentUnavailable
		}
	}
	if sessionID := strings.TrimSpace(cmd.SessionID); sessionID != "" {
		order, err := s.orders.FindBySessionID(ctx, sessionID)
		if err == nil {
			return order, nil
		}
		if !isRepoNotFound(err) {
			return domain.Order{}, ErrPaymentUnavailable
		}
	}
	if intentID := strings.TrimSpace(cmd.PaymentIntentID); intentID != "" {
		payment, err := s.payments.FindByPaymentIntentID(ctx, intentID)
		if err == nil {
			order, err := s.orders.FindByID(ctx, payment.OrderID)
			if err == nil {
				return order, nil
			}
			if !isRepoNotFound(err) {
				return domain.Order{}, ErrPaymentUnavailable
			}
		} else if !isRepoNotFound(err) {
			return domain.Order{}, ErrPaymentUnavailable
		}
	}
	return domain.Order{}, ErrPaymentOrderNotFound
}

// commitStock decrements stock for every line, rolling back already
// committed lines when one runs out.
func (s *paymentService) commitStock(ctx context.Context, order domain.Order) error {
	committed := make([]domain.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		if _, err := s.catalog.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			for _, done := range committed {
				if _, restoreErr := s.catalog.RestoreStock(ctx, done.ProductID, done.Quantity); restoreErr != nil {
					s.logger(ctx, "payment.stock_rollback_failed", map[string]any{
						"orderID":   order.ID,
						"productID": done.ProductID,
						"error":     restoreErr.Error(),
					})
				}
			}
			var stockErr *repositories.StockError
			if errors.As(err, &stockErr) && stockErr.Code == repositories.StockErrorInsufficient {
				return fmt.Errorf("%w: %s", ErrPaymentInsufficientStock, item.ProductID)
			}
			if isRepoNotFound(err) {
				return fmt.Errorf("%w: %s", ErrPaymentInsufficientStock, item.ProductID)
			}
			return ErrPaymentUnavailable
		}
		committed = append(committed, item)
	}
	return nil
}

func (s *paymentService) restoreStock(ctx context.Context, order domain.Order) {
	for _, item := range order.Items {
		if _, err := s.catalog.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger(ctx, "payment.stock_restore_failed", map[string]any{
				"orderID":   order.ID,
				"productID": item.ProductID,
				"error":     err.Error(),
			})
		}
	}
}

func (s *paymentService) markPaymentSucceeded(ctx context.Context, order domain.Order, cmd ConfirmOrderCommand) {
	payment, err := s.payments.FindByOrderID(ctx, order.ID)
	if err != nil {
		s.logger(ctx, "payment.record_lookup_failed", map[string]any{
			"orderID": order.ID,
			"error":   err.Error(),
		})
		return
	}

	now := s.now()
	payment.Status = domain.PaymentStatusSucceeded
	payment.ProcessedAt = &now
	payment.UpdatedAt = now
	if strings.TrimSpace(cmd.SessionID) != "" {
		payment.SessionID = cmd.SessionID
	}
	if strings.TrimSpace(cmd.PaymentIntentID) != "" {
		payment.PaymentIntentID = cmd.PaymentIntentID
	}
	if _, err := s.payments.Update(ctx, payment); err != nil {
		s.logger(ctx, "payment.record_update_failed", map[string]any{
			"orderID":   order.ID,
			"paymentID": payment.ID,
			"error":     err.Error(),
		})
	}
}

func (s *paymentService) notifyOrder(ctx context.Context, order domain.Order, title, body string) {
	if _, err := s.notifications.Notify(ctx, NotifyCommand{
		UserID:   order.UserID,
		Category: domain.NotificationCategoryOrder,
		Title:    title,
		Body:     body,
		Order: &domain.OrderNotification{
			OrderID:     order.ID,
			OrderNumber: order.Number,
			Status:      order.Status,
		},
	}); err != nil {
		s.logger(ctx, "payment.notify_failed", map[string]any{
			"orderID": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *paymentService) notifyLoyalty(ctx context.Context, order domain.Order, delta, balance int64, body string) {
	if _, err := s.notifications.Notify(ctx, NotifyCommand{
		UserID:   order.UserID,
		Category: domain.NotificationCategoryLoyalty,
		Title:    "Loyalty points update",
		Body:     body,
		Loyalty: &domain.LoyaltyNotification{
			OrderID: order.ID,
			Delta:   delta,
			Balance: balance,
		},
	}); err != nil {
		s.logger(ctx, "payment.notify_failed", map[string]any{
			"orderID": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *paymentService) publishEvent(ctx context.Context, event string, order domain.Order) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, OrderEventMessage{
		Event:      event,
		OrderID:    order.ID,
		UserID:     order.UserID,
		OccurredAt: s.now(),
	}); err != nil {
		s.logger(ctx, "payment.event_publish_failed", map[string]any{
			"orderID": order.ID,
			"event":   event,
			"error":   err.Error(),
		})
	}
}
