package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/loyalcart/api/internal/domain"
	"github.com/loyalcart/api/internal/repositories"
)

const maxNotificationPageSize = 100

var (
	errNotificationRepositoryRequired = errors.New("notification service: repository is required")
	errNotificationClockRequired      = errors.New("notification service: clock is required")
)

// ErrNotificationInvalidInput indicates the caller supplied invalid input.
var ErrNotificationInvalidInput = errors.New("notification service: invalid input")

// ErrNotificationUnavailable indicates the notification backend cannot be reached.
var ErrNotificationUnavailable = errors.New("notification service: unavailable")

// ErrNotificationNotFound indicates the requested notification does not exist for the user.
var ErrNotificationNotFound = errors.New("notification service: not found")

// NotificationServiceDeps wires persistence and fan-out dependencies.
type NotificationServiceDeps struct {
	Repository  repositories.NotificationRepository
	Publisher   NotificationPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type notificationService struct {
	repo      repositories.NotificationRepository
	publisher NotificationPublisher
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewNotificationService constructs a NotificationService enforcing dependency validation.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Repository == nil {
		return nil, errNotificationRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errNotificationClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return "ntf_" + ulid.Make().String() }
	}

	return &notificationService{
		repo:      deps.Repository,
		publisher: deps.Publisher,
		now:       func() time.Time { return deps.Clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

// Notify persists the notification and fans it out to the message bus.
// Publish failures are logged and never fail the calling flow.
func (s *notificationService) Notify(ctx context.Context, cmd NotifyCommand) (Notification, error) {
	if s == nil || s.repo == nil {
		return Notification{}, ErrNotificationUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Notification{}, ErrNotificationInvalidInput
	}
	title := strings.TrimSpace(cmd.Title)
	if title == "" {
		return Notification{}, fmt.Errorf("%w: title is required", ErrNotificationInvalidInput)
	}

	category := cmd.Category
	if category == "" {
		category = domain.NotificationCategoryGeneral
	}
	switch category {
	case domain.NotificationCategoryOrder, domain.NotificationCategoryLoyalty,
		domain.NotificationCategoryGeneral, domain.NotificationCategorySale:
	default:
		return Notification{}, fmt.Errorf("%w: unknown category %q", ErrNotificationInvalidInput, category)
	}

	notification := domain.Notification{
		ID:        s.newID(),
		UserID:    uid,
		Category:  category,
		Title:     title,
		Body:      strings.TrimSpace(cmd.Body),
		CreatedAt: s.now(),
	}
	// Only the payload matching the category is carried.
	switch category {
	case domain.NotificationCategoryOrder:
		notification.Order = cmd.Order
	case domain.NotificationCategoryLoyalty:
		notification.Loyalty = cmd.Loyalty
	}

	saved, err := s.repo.Insert(ctx, notification)
	if err != nil {
		return Notification{}, s.translateRepoError(err)
	}

	if s.publisher != nil {
		message := NotificationMessage{
			NotificationID: saved.ID,
			UserID:         saved.UserID,
			Category:       string(saved.Category),
			Title:          saved.Title,
			Body:           saved.Body,
			CreatedAt:      saved.CreatedAt,
		}
		if _, err := s.publisher.PublishNotification(ctx, message); err != nil {
			s.logger(ctx, "notification.publish_failed", map[string]any{
				"notificationID": saved.ID,
				"userID":         saved.UserID,
				"error":          err.Error(),
			})
		}
	}

	return saved, nil
}

func (s *notificationService) ListNotifications(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Notification], error) {
	if s == nil || s.repo == nil {
		return domain.CursorPage[Notification]{}, ErrNotificationUnavailable
	}

	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.CursorPage[Notification]{}, ErrNotificationInvalidInput
	}

	if pager.PageSize <= 0 {
		pager.PageSize = 20
	}
	if pager.PageSize > maxNotificationPageSize {
		pager.PageSize = maxNotificationPageSize
	}
	pager.PageToken = strings.TrimSpace(pager.PageToken)

	page, err := s.repo.ListByUser(ctx, uid, pager)
	if err != nil {
		return domain.CursorPage[Notification]{}, s.translateRepoError(err)
	}
	if page.Items == nil {
		page.Items = []Notification{}
	}
	return page, nil
}

func (s *notificationService) MarkRead(ctx context.Context, userID string, notificationID string) (Notification, error) {
	if s == nil || s.repo == nil {
		return Notification{}, ErrNotificationUnavailable
	}

	uid := strings.TrimSpace(userID)
	id := strings.TrimSpace(notificationID)
	if uid == "" || id == "" {
		return Notification{}, ErrNotificationInvalidInput
	}

	notification, err := s.repo.MarkRead(ctx, uid, id)
	if err != nil {
		return Notification{}, s.translateRepoError(err)
	}
	return notification, nil
}

func (s *notificationService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrNotificationNotFound
		case repoErr.IsUnavailable():
			return ErrNotificationUnavailable
		}
		return ErrNotificationUnavailable
	}
	return ErrNotificationUnavailable
}
