package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/loyalcart/api/internal/platform/auth"
	"github.com/loyalcart/api/internal/platform/httpx"
	"github.com/loyalcart/api/internal/services"
)

const (
	defaultNotificationPageSize = 20
	maxNotificationPageSize     = 100
)

// NotificationHandlers exposes the authenticated notification inbox.
type NotificationHandlers struct {
	authn         *auth.Authenticator
	notifications services.NotificationService
}

// NewNotificationHandlers constructs a new NotificationHandlers instance.
func NewNotificationHandlers(authn *auth.Authenticator, notifications services.NotificationService) *NotificationHandlers {
	return &NotificationHandlers{
		authn:         authn,
		notifications: notifications,
	}
}

// Routes registers the /notifications endpoints.
func (h *NotificationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listNotifications)
	r.Post("/{notificationID}/read", h.markRead)
}

func (h *NotificationHandlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifications == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notification_service_unavailable", "notification service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	pager, err := parsePagination(r, defaultNotificationPageSize, maxNotificationPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.notifications.ListNotifications(ctx, identity.UID, pager)
	if err != nil {
		writeNotificationError(ctx, w, err)
		return
	}

	items := make([]notificationPayload, 0, len(page.Items))
	for _, notification := range page.Items {
		items = append(items, buildNotificationPayload(notification))
	}
	writeJSONResponse(w, http.StatusOK, notificationListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *NotificationHandlers) markRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifications == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notification_service_unavailable", "notification service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	notificationID := strings.TrimSpace(chi.URLParam(r, "notificationID"))
	if notificationID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "notification id is required", http.StatusBadRequest))
		return
	}

	notification, err := h.notifications.MarkRead(ctx, identity.UID, notificationID)
	if err != nil {
		writeNotificationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, notificationResponse{Notification: buildNotificationPayload(notification)})
}

func writeNotificationError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotificationInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrNotificationNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("notification_not_found", "notification not found", http.StatusNotFound))
	case errors.Is(err, services.ErrNotificationUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("notification_service_unavailable", "notification service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("notification_error", "notification operation failed", http.StatusInternalServerError))
	}
}

type notificationListResponse struct {
	Items         []notificationPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type notificationResponse struct {
	Notification notificationPayload `json:"notification"`
}

type notificationPayload struct {
	ID        string                      `json:"id"`
	Category  string                      `json:"category"`
	Title     string                      `json:"title"`
	Body      string                      `json:"body"`
	Order     *orderNotificationPayload   `json:"order,omitempty"`
	Loyalty   *loyaltyNotificationPayload `json:"loyalty,omitempty"`
	Read      bool                        `json:"read"`
	CreatedAt string                      `json:"created_at,omitempty"`
}

type orderNotificationPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
}

type loyaltyNotificationPayload struct {
	OrderID string `json:"order_id,omitempty"`
	Delta   int64  `json:"delta"`
	Balance int64  `json:"balance"`
}

func buildNotificationPayload(notification services.Notification) notificationPayload {
	payload := notificationPayload{
		ID:        strings.TrimSpace(notification.ID),
		Category:  string(notification.Category),
		Title:     notification.Title,
		Body:      notification.Body,
		Read:      notification.Read,
		CreatedAt: formatTime(notification.CreatedAt),
	}
	if notification.Order != nil {
		payload.Order = &orderNotificationPayload{
			OrderID:     notification.Order.OrderID,
			OrderNumber: notification.Order.OrderNumber,
			Status:      string(notification.Order.Status),
		}
	}
	if notification.Loyalty != nil {
		payload.Loyalty = &loyaltyNotificationPayload{
			OrderID: notification.Loyalty.OrderID,
			Delta:   notification.Loyalty.Delta,
			Balance: notification.Loyalty.Balance,
		}
	}
	return payload
}
