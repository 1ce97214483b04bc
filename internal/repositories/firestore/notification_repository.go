package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/loyalcart/api/internal/domain"
	pfirestore "github.com/loyalcart/api/internal/platform/firestore"
	"github.com/loyalcart/api/internal/repositories"
)

const notificationsCollection = "notifications"

type orderNotificationDocument struct {
	OrderID     string `firestore:"orderId"`
	OrderNumber string `firestore:"orderNumber"`
	Status      string `firestore:"status"`
}

type loyaltyNotificationDocument struct {
	OrderID string `firestore:"orderId,omitempty"`
	Delta   int64  `firestore:"delta"`
	Balance int64  `firestore:"balance"`
}

type notificationDocument struct {
	UserID    string                       `firestore:"userId"`
	Category  string                       `firestore:"category"`
	Title     string                       `firestore:"title"`
	Body      string                       `firestore:"body"`
	Order     *orderNotificationDocument   `firestore:"order,omitempty"`
	Loyalty   *loyaltyNotificationDocument `firestore:"loyalty,omitempty"`
	Read      bool                         `firestore:"read"`
	CreatedAt time.Time                    `firestore:"createdAt"`
}

// NotificationRepository persists user notifications.
type NotificationRepository struct {
	base *pfirestore.BaseRepository[notificationDocument]
}

// NewNotificationRepository constructs a Firestore-backed notification repository.
func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[notificationDocument](provider, notificationsCollection, nil, nil)
	return &NotificationRepository{base: base}, nil
}

// Insert creates a notification document.
func (r *NotificationRepository) Insert(ctx context.Context, notification domain.Notification) (domain.Notification, error) {
	if r == nil || r.base == nil {
		return domain.Notification{}, errors.New("notification repository not initialised")
	}
	notificationID := strings.TrimSpace(notification.ID)
	if notificationID == "" {
		return domain.Notification{}, errors.New("notification repository: notification id is required")
	}

	ref, err := r.base.DocumentRef(ctx, notificationID)
	if err != nil {
		return domain.Notification{}, err
	}
	doc := encodeNotificationDocument(notification)
	if _, err := ref.Create(ctx, doc); err != nil {
		return domain.Notification{}, pfirestore.WrapError("notifications.insert", err)
	}
	return decodeNotificationDocument(notificationID, doc, doc.CreatedAt), nil
}

// ListByUser returns the user's notifications newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Notification], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Notification]{}, errors.New("notification repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[domain.Notification]{}, errors.New("notification repository: user id is required")
	}

	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		tokenTime, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Notification]{}, fmt.Errorf("notification repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", userID).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Notification]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeListToken(chooseTime(last.Data.CreatedAt, last.CreateTime), last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Notification, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeNotificationDocument(doc.ID, doc.Data, doc.CreateTime))
	}
	return domain.CursorPage[domain.Notification]{Items: items, NextPageToken: nextToken}, nil
}

// MarkRead flags a notification as read. A notification belonging to another
// user is reported as not found rather than forbidden so ids cannot be probed.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID string, notificationID string) (domain.Notification, error) {
	if r == nil || r.base == nil {
		return domain.Notification{}, errors.New("notification repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	notificationID = strings.TrimSpace(notificationID)
	if userID == "" || notificationID == "" {
		return domain.Notification{}, errors.New("notification repository: user id and notification id are required")
	}

	doc, err := r.base.Get(ctx, notificationID)
	if err != nil {
		return domain.Notification{}, err
	}
	if doc.Data.UserID != userID {
		return domain.Notification{}, pfirestore.WrapError("notifications.mark_read",
			status.Errorf(codes.NotFound, "notification %s not found for user", notificationID))
	}

	if !doc.Data.Read {
		if _, err := r.base.Update(ctx, notificationID, []firestore.Update{
			{Path: "read", Value: true},
		}); err != nil {
			return domain.Notification{}, err
		}
	}
	updated := doc.Data
	updated.Read = true
	return decodeNotificationDocument(notificationID, updated, doc.CreateTime), nil
}

func encodeNotificationDocument(notification domain.Notification) notificationDocument {
	createdAt := notification.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	doc := notificationDocument{
		UserID:    strings.TrimSpace(notification.UserID),
		Category:  string(notification.Category),
		Title:     strings.TrimSpace(notification.Title),
		Body:      strings.TrimSpace(notification.Body),
		Read:      notification.Read,
		CreatedAt: createdAt,
	}
	if notification.Order != nil {
		doc.Order = &orderNotificationDocument{
			OrderID:     strings.TrimSpace(notification.Order.OrderID),
			OrderNumber: strings.TrimSpace(notification.Order.OrderNumber),
			Status:      string(notification.Order.Status),
		}
	}
	if notification.Loyalty != nil {
		doc.Loyalty = &loyaltyNotificationDocument{
			OrderID: strings.TrimSpace(notification.Loyalty.OrderID),
			Delta:   notification.Loyalty.Delta,
			Balance: notification.Loyalty.Balance,
		}
	}
	return doc
}

func decodeNotificationDocument(id string, doc notificationDocument, createdAt time.Time) domain.Notification {
	notification := domain.Notification{
		ID:        strings.TrimSpace(id),
		UserID:    strings.TrimSpace(doc.UserID),
		Category:  domain.NotificationCategory(strings.TrimSpace(doc.Category)),
		Title:     doc.Title,
		Body:      doc.Body,
		Read:      doc.Read,
		CreatedAt: chooseTime(doc.CreatedAt, createdAt),
	}
	if doc.Order != nil {
		notification.Order = &domain.OrderNotification{
			OrderID:     strings.TrimSpace(doc.Order.OrderID),
			OrderNumber: strings.TrimSpace(doc.Order.OrderNumber),
			Status:      domain.OrderStatus(strings.TrimSpace(doc.Order.Status)),
		}
	}
	if doc.Loyalty != nil {
		notification.Loyalty = &domain.LoyaltyNotification{
			OrderID: strings.TrimSpace(doc.Loyalty.OrderID),
			Delta:   doc.Loyalty.Delta,
			Balance: doc.Loyalty.Balance,
		}
	}
	return notification
}

var _ repositories.NotificationRepository = (*NotificationRepository)(nil)
