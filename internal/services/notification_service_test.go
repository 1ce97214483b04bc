package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/loyalcart/api/internal/domain"
)

type stubNotificationRepository struct {
	mu       sync.Mutex
	insertFn func(context.Context, domain.Notification) (domain.Notification, error)
	listFn   func(context.Context, string, domain.Pagination) (domain.CursorPage[domain.Notification], error)
	markFn   func(context.Context, string, string) (domain.Notification, error)
	inserted []domain.Notification
}

func (s *stubNotificationRepository) Insert(ctx context.Context, notification domain.Notification) (domain.Notification, error) {
	s.mu.Lock()
	s.inserted = append(s.inserted, notification)
	s.mu.Unlock()
	if s.insertFn != nil {
		return s.insertFn(ctx, notification)
	}
	return notification, nil
}

func (s *stubNotificationRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Notification], error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID, pager)
	}
	return domain.CursorPage[domain.Notification]{}, nil
}

func (s *stubNotificationRepository) MarkRead(ctx context.Context, userID string, notificationID string) (domain.Notification, error) {
	if s.markFn != nil {
		return s.markFn(ctx, userID, notificationID)
	}
	return domain.Notification{}, &repositoryErrorStub{notFound: true}
}

type stubNotificationPublisher struct {
	mu        sync.Mutex
	publishFn func(context.Context, NotificationMessage) (string, error)
	published []NotificationMessage
}

func (s *stubNotificationPublisher) PublishNotification(ctx context.Context, message NotificationMessage) (string, error) {
	s.mu.Lock()
	s.published = append(s.published, message)
	s.mu.Unlock()
	if s.publishFn != nil {
		return s.publishFn(ctx, message)
	}
	return "msg-1", nil
}

func newNotificationServiceForTest(t *testing.T, repo *stubNotificationRepository, publisher NotificationPublisher) NotificationService {
	t.Helper()
	counter := 0
	svc, err := NewNotificationService(NotificationServiceDeps{
		Repository: repo,
		Publisher:  publisher,
		Clock: func() time.Time {
			return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		},
		IDGenerator: func() string {
			counter++
			return "ntf_test"
		},
	})
	if err != nil {
		t.Fatalf("new notification service: %v", err)
	}
	return svc
}

func TestNotificationServiceNotifyPersistsAndPublishes(t *testing.T) {
	repo := &stubNotificationRepository{}
	publisher := &stubNotificationPublisher{}
	svc := newNotificationServiceForTest(t, repo, publisher)

	notification, err := svc.Notify(context.Background(), NotifyCommand{
		UserID:   "user-1",
		Category: domain.NotificationCategoryOrder,
		Title:    "Order confirmed",
		Body:     "Your order ORD-000001 is confirmed.",
		Order:    &domain.OrderNotification{OrderID: "ord_1", OrderNumber: "ORD-000001", Status: domain.OrderStatusConfirmed},
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if notification.ID != "ntf_test" {
		t.Fatalf("expected generated id, got %s", notification.ID)
	}
	if notification.Order == nil || notification.Order.OrderID != "ord_1" {
		t.Fatalf("expected order payload, got %+v", notification)
	}
	if notification.Loyalty != nil {
		t.Fatalf("expected loyalty payload omitted for ORDER category")
	}

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if len(publisher.published) != 1 {
		t.Fatalf("expected one publish, got %d", len(publisher.published))
	}
	if publisher.published[0].Category != "ORDER" {
		t.Fatalf("unexpected published category %s", publisher.published[0].Category)
	}
}

func TestNotificationServiceNotifySurvivesPublishFailure(t *testing.T) {
	repo := &stubNotificationRepository{}
	publisher := &stubNotificationPublisher{
		publishFn: func(context.Context, NotificationMessage) (string, error) {
			return "", errors.New("bus down")
		},
	}
	svc := newNotificationServiceForTest(t, repo, publisher)

	_, err := svc.Notify(context.Background(), NotifyCommand{
		UserID:   "user-1",
		Category: domain.NotificationCategoryLoyalty,
		Title:    "Points earned",
		Loyalty:  &domain.LoyaltyNotification{OrderID: "ord_1", Delta: 25, Balance: 125},
	})
	if err != nil {
		t.Fatalf("expected notify to succeed despite publish failure, got %v", err)
	}
}

func TestNotificationServiceNotifyRejectsUnknownCategory(t *testing.T) {
	svc := newNotificationServiceForTest(t, &stubNotificationRepository{}, nil)

	_, err := svc.Notify(context.Background(), NotifyCommand{
		UserID:   "user-1",
		Category: domain.NotificationCategory("SPAM"),
		Title:    "Nope",
	})
	if !errors.Is(err, ErrNotificationInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestNotificationServiceMarkReadNotFound(t *testing.T) {
	svc := newNotificationServiceForTest(t, &stubNotificationRepository{}, nil)

	_, err := svc.MarkRead(context.Background(), "user-1", "ntf_missing")
	if !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
