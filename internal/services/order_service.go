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

const maxOrderPageSize = 100

var (
	// ErrOrderInvalidInput indicates the caller supplied invalid input.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderUnavailable indicates the order store cannot be reached.
	ErrOrderUnavailable = errors.New("order: unavailable")
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the requester does not own the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInvalidTransition indicates the lifecycle forbids the move.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderNotCancellable indicates the order is past the point of cancellation.
	ErrOrderNotCancellable = errors.New("order: not cancellable")
)

// orderRefunder reverses a paid order. Cancellation of a paid order is a
// refund with a different entry point, so both share one implementation.
type orderRefunder interface {
	Refund(ctx context.Context, cmd RefundCommand) (Order, error)
}

// OrderServiceDeps wires the dependencies for order reads and fulfilment.
type OrderServiceDeps struct {
	Repository    repositories.OrderRepository
	Catalog       repositories.CatalogRepository
	Loyalty       LoyaltyService
	Notifications NotificationService
	Refunder      orderRefunder
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	repo          repositories.OrderRepository
	catalog       repositories.CatalogRepository
	loyalty       LoyaltyService
	notifications NotificationService
	refunder      orderRefunder
	now           func() time.Time
	logger        func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderService constructs an OrderService validating required dependencies.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Repository == nil {
		return nil, errors.New("order service: repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order service: catalog repository is required")
	}
	if deps.Loyalty == nil {
		return nil, errors.New("order service: loyalty service is required")
	}
	if deps.Notifications == nil {
		return nil, errors.New("order service: notification service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		repo:          deps.Repository,
		catalog:       deps.Catalog,
		loyalty:       deps.Loyalty,
		notifications: deps.Notifications,
		refunder:      deps.Refunder,
		now:           func() time.Time { return clock().UTC() },
		logger:        logger,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error) {
	if s == nil || s.repo == nil {
		return Order{}, ErrOrderUnavailable
	}

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if !cmd.Admin && order.UserID != strings.TrimSpace(cmd.RequestedBy) {
		return Order{}, ErrOrderForbidden
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, cmd ListOrdersCommand) (domain.CursorPage[Order], error) {
	if s == nil || s.repo == nil {
		return domain.CursorPage[Order]{}, ErrOrderUnavailable
	}

	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return domain.CursorPage[Order]{}, ErrOrderInvalidInput
	}

	pager := cmd.Pagination
	if pager.PageSize <= 0 {
		pager.PageSize = 20
	}
	if pager.PageSize > maxOrderPageSize {
		pager.PageSize = maxOrderPageSize
	}
	pager.PageToken = strings.TrimSpace(pager.PageToken)

	page, err := s.repo.ListByUser(ctx, userID, repositories.OrderListFilter{
		Pagination: pager,
		Status:     cmd.Status,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.translateRepoError(err)
	}
	if page.Items == nil {
		page.Items = []Order{}
	}
	return page, nil
}

// UpdateStatus applies a fulfilment transition. Cancellation is not a
// fulfilment transition and must go through Cancel.
func (s *orderService) UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error) {
	if s == nil || s.repo == nil {
		return Order{}, ErrOrderUnavailable
	}

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}
	if cmd.TargetStatus == domain.OrderStatusCancelled {
		return Order{}, fmt.Errorf("%w: use cancellation for %s", ErrOrderInvalidTransition, cmd.TargetStatus)
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if !order.Status.CanTransitionTo(cmd.TargetStatus) {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidTransition, order.Status, cmd.TargetStatus)
	}

	update := repositories.OrderStatusUpdate{
		Status:         cmd.TargetStatus,
		ExpectedStatus: &order.Status,
	}
	if cmd.TargetStatus == domain.OrderStatusShipped {
		tracking := ""
		if cmd.TrackingNumber != nil {
			tracking = strings.TrimSpace(*cmd.TrackingNumber)
		}
		if tracking == "" {
			return Order{}, fmt.Errorf("%w: tracking number is required to ship", ErrOrderInvalidInput)
		}
		update.TrackingNumber = &tracking
	}

	creditOnDelivery := cmd.TargetStatus == domain.OrderStatusDelivered &&
		!order.PointsCredited && order.PointsEarned > 0
	if creditOnDelivery {
		credited := true
		update.PointsCredited = &credited
	}

	order, err = s.repo.UpdateStatus(ctx, orderID, update)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.logger(ctx, "order.status_updated", map[string]any{
		"orderID": order.ID,
		"status":  string(order.Status),
		"actorID": cmd.ActorID,
	})

	if creditOnDelivery {
		balance, err := s.loyalty.AwardPoints(ctx, PointsAdjustmentCommand{
			UserID:  order.UserID,
			Points:  order.PointsEarned,
			OrderID: order.ID,
			Reason:  "order delivered",
		})
		if err != nil {
			s.logger(ctx, "order.point_award_failed", map[string]any{
				"orderID": order.ID,
				"points":  order.PointsEarned,
				"error":   err.Error(),
			})
			// Undo the credited flag so the points are not recorded as
			// granted when the award never landed.
			uncredited := false
			if cleared, clearErr := s.repo.UpdateStatus(ctx, orderID, repositories.OrderStatusUpdate{
				Status:         order.Status,
				PointsCredited: &uncredited,
			}); clearErr != nil {
				s.logger(ctx, "order.point_flag_clear_failed", map[string]any{
					"orderID": order.ID,
					"error":   clearErr.Error(),
				})
			} else {
				order = cleared
			}
		} else {
			s.notifyLoyalty(ctx, order, order.PointsEarned, balance,
				fmt.Sprintf("You earned %d points on order %s.", order.PointsEarned, order.Number))
		}
	}

	s.notifyOrder(ctx, order, statusNotificationTitle(order.Status),
		statusNotificationBody(order))

	return order, nil
}

// Cancel cancels a PENDING or CONFIRMED order. A paid order is cancelled
// through the refund path so money, stock, and points unwind together.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	if s == nil || s.repo == nil {
		return Order{}, ErrOrderUnavailable
	}

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if !cmd.Admin && order.UserID != strings.TrimSpace(cmd.RequestedBy) {
		return Order{}, ErrOrderForbidden
	}
	if order.Status != domain.OrderStatusPending && order.Status != domain.OrderStatusConfirmed {
		return Order{}, fmt.Errorf("%w: order is %s", ErrOrderNotCancellable, order.Status)
	}

	if order.PaymentState == domain.PaymentStatePaid {
		if s.refunder == nil {
			return Order{}, ErrOrderUnavailable
		}
		return s.refunder.Refund(ctx, RefundCommand{
			OrderID:     order.ID,
			RequestedBy: cmd.RequestedBy,
			Reason:      firstNonEmpty(strings.TrimSpace(cmd.Reason), "cancelled"),
		})
	}

	reason := firstNonEmpty(strings.TrimSpace(cmd.Reason), "cancelled by user")
	failed := domain.PaymentStateFailed
	order, err = s.repo.UpdateStatus(ctx, orderID, repositories.OrderStatusUpdate{
		Status:       domain.OrderStatusCancelled,
		PaymentState: &failed,
		CancelReason: &reason,
	})
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	if order.PointsUsed > 0 {
		balance, err := s.loyalty.AwardPoints(ctx, PointsAdjustmentCommand{
			UserID:  order.UserID,
			Points:  order.PointsUsed,
			OrderID: order.ID,
			Reason:  "cancellation repayment",
		})
		if err != nil {
			s.logger(ctx, "order.point_repay_failed", map[string]any{
				"orderID": order.ID,
				"points":  order.PointsUsed,
				"error":   err.Error(),
			})
		} else {
			s.notifyLoyalty(ctx, order, order.PointsUsed, balance,
				fmt.Sprintf("%d points were returned for cancelled order %s.", order.PointsUsed, order.Number))
		}
	}

	s.notifyOrder(ctx, order, "Order cancelled",
		fmt.Sprintf("Your order %s has been cancelled.", order.Number))

	s.logger(ctx, "order.cancelled", map[string]any{
		"orderID": order.ID,
		"reason":  reason,
	})

	return order, nil
}

func (s *orderService) Stats(ctx context.Context) (OrderStats, error) {
	if s == nil || s.repo == nil {
		return OrderStats{}, ErrOrderUnavailable
	}
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return OrderStats{}, s.translateRepoError(err)
	}
	return stats, nil
}

func (s *orderService) notifyOrder(ctx context.Context, order domain.Order, title, body string) {
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
		s.logger(ctx, "order.notify_failed", map[string]any{
			"orderID": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) notifyLoyalty(ctx context.Context, order domain.Order, delta, balance int64, body string) {
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
		s.logger(ctx, "order.notify_failed", map[string]any{
			"orderID": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) translateRepoError(err error) error {
	if isRepoNotFound(err) {
		return ErrOrderNotFound
	}
	if isRepoConflict(err) {
		return fmt.Errorf("%w: concurrent update", ErrOrderInvalidTransition)
	}
	return ErrOrderUnavailable
}

func statusNotificationTitle(status domain.OrderStatus) string {
	switch status {
	case domain.OrderStatusProcessing:
		return "Order processing"
	case domain.OrderStatusShipped:
		return "Order shipped"
	case domain.OrderStatusDelivered:
		return "Order delivered"
	default:
		return "Order updated"
	}
}

func statusNotificationBody(order domain.Order) string {
	switch order.Status {
	case domain.OrderStatusShipped:
		if order.TrackingNumber != "" {
			return fmt.Sprintf("Order %s shipped with tracking number %s.", order.Number, order.TrackingNumber)
		}
		return fmt.Sprintf("Order %s has shipped.", order.Number)
	case domain.OrderStatusDelivered:
		return fmt.Sprintf("Order %s has been delivered.", order.Number)
	default:
		return fmt.Sprintf("Order %s is now %s.", order.Number, strings.ToLower(string(order.Status)))
	}
}
