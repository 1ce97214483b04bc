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

const ordersCollection = "orders"

type orderItemDocument struct {
	ProductID      string `firestore:"productId"`
	Name           string `firestore:"name"`
	Quantity       int64  `firestore:"quantity"`
	UnitPriceCents int64  `firestore:"unitPriceCents"`
}

type addressDocument struct {
	Name       string `firestore:"name"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state,omitempty"`
	PostalCode string `firestore:"postalCode,omitempty"`
	Country    string `firestore:"country"`
	Phone      string `firestore:"phone,omitempty"`
}

type orderDocument struct {
	Number          string              `firestore:"number"`
	UserID          string              `firestore:"userId"`
	Items           []orderItemDocument `firestore:"items"`
	SubtotalCents   int64               `firestore:"subtotalCents"`
	RedeemedCents   int64               `firestore:"redeemedCents"`
	TotalCents      int64               `firestore:"totalCents"`
	PointsUsed      int64               `firestore:"pointsUsed"`
	PointsEarned    int64               `firestore:"pointsEarned"`
	PointsCredited  bool                `firestore:"pointsCredited"`
	Status          string              `firestore:"status"`
	PaymentState    string              `firestore:"paymentState"`
	SessionID       string              `firestore:"sessionId,omitempty"`
	PaymentIntentID string              `firestore:"paymentIntentId,omitempty"`
	TrackingNumber  string              `firestore:"trackingNumber,omitempty"`
	ShippingAddress addressDocument     `firestore:"shippingAddress"`
	CancelReason    string              `firestore:"cancelReason,omitempty"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
	ConfirmedAt     *time.Time          `firestore:"confirmedAt,omitempty"`
	CancelledAt     *time.Time          `firestore:"cancelledAt,omitempty"`
}

// OrderRepository persists settlement aggregates.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert creates a new order document. The ID must be unique.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	doc := encodeOrderDocument(order)
	if _, err := ref.Create(ctx, doc); err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.insert", err)
	}
	return decodeOrderDocument(orderID, doc, doc.CreatedAt, doc.UpdatedAt), nil
}

// Update replaces the persisted order state with the provided snapshot.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc := encodeOrderDocument(order)
	result, err := r.base.Set(ctx, orderID, doc)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(orderID, doc, doc.CreatedAt, result.UpdateTime), nil
}

// UpdateStatus applies a status transition in a transaction. When
// ExpectedStatus is set and the stored status differs, the write fails with a
// conflict so concurrent transitions cannot race each other.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", orderID, err)
		}

		if update.ExpectedStatus != nil && doc.Status != string(*update.ExpectedStatus) {
			return status.Errorf(codes.FailedPrecondition,
				"order %s is %s, expected %s", orderID, doc.Status, *update.ExpectedStatus)
		}

		now := time.Now().UTC()
		doc.Status = string(update.Status)
		doc.UpdatedAt = now
		if update.PaymentState != nil {
			doc.PaymentState = string(*update.PaymentState)
		}
		if update.TrackingNumber != nil {
			doc.TrackingNumber = strings.TrimSpace(*update.TrackingNumber)
		}
		if update.CancelReason != nil {
			doc.CancelReason = strings.TrimSpace(*update.CancelReason)
		}
		if update.PointsCredited != nil {
			doc.PointsCredited = *update.PointsCredited
		}
		if update.Status == domain.OrderStatusCancelled && doc.CancelledAt == nil {
			doc.CancelledAt = &now
		}

		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = decodeOrderDocument(orderID, doc, doc.CreatedAt, now)
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.update_status", err)
	}
	return updated, nil
}

// FindByID fetches a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// FindBySessionID resolves an order through its gateway checkout session.
func (r *OrderRepository) FindBySessionID(ctx context.Context, sessionID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Order{}, errors.New("order repository: session id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("sessionId", "==", sessionID).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.find_by_session",
			status.Errorf(codes.NotFound, "no order for session %s", sessionID))
	}
	doc := docs[0]
	return decodeOrderDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// ListByUser returns the user's orders newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository: user id is required")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", userID)
		if filter.Status != nil {
			q = q.Where("status", "==", string(*filter.Status))
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeListToken(chooseTime(last.Data.CreatedAt, last.CreateTime), last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeOrderDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}
	return domain.CursorPage[domain.Order]{Items: items, NextPageToken: nextToken}, nil
}

// Stats sums revenue over paid orders.
func (r *OrderRepository) Stats(ctx context.Context) (domain.OrderStats, error) {
	if r == nil || r.base == nil {
		return domain.OrderStats{}, errors.New("order repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("paymentState", "==", string(domain.PaymentStatePaid))
	})
	if err != nil {
		return domain.OrderStats{}, err
	}

	stats := domain.OrderStats{}
	for _, doc := range docs {
		stats.OrderCount++
		stats.RevenueCents += doc.Data.TotalCents
	}
	return stats, nil
}

func encodeOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID:      strings.TrimSpace(item.ProductID),
			Name:           strings.TrimSpace(item.Name),
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}

	createdAt := order.CreatedAt.UTC()
	updatedAt := order.UpdatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	return orderDocument{
		Number:          strings.TrimSpace(order.Number),
		UserID:          strings.TrimSpace(order.UserID),
		Items:           items,
		SubtotalCents:   order.SubtotalCents,
		RedeemedCents:   order.RedeemedCents,
		TotalCents:      order.TotalCents,
		PointsUsed:      order.PointsUsed,
		PointsEarned:    order.PointsEarned,
		PointsCredited:  order.PointsCredited,
		Status:          string(order.Status),
		PaymentState:    string(order.PaymentState),
		SessionID:       strings.TrimSpace(order.SessionID),
		PaymentIntentID: strings.TrimSpace(order.PaymentIntentID),
		TrackingNumber:  strings.TrimSpace(order.TrackingNumber),
		ShippingAddress: encodeAddress(order.ShippingAddress),
		CancelReason:    strings.TrimSpace(order.CancelReason),
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
		ConfirmedAt:     normalizeTimePointer(order.ConfirmedAt),
		CancelledAt:     normalizeTimePointer(order.CancelledAt),
	}
}

func decodeOrderDocument(id string, doc orderDocument, createdAt, updatedAt time.Time) domain.Order {
	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderItem{
			ProductID:      strings.TrimSpace(item.ProductID),
			Name:           strings.TrimSpace(item.Name),
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	return domain.Order{
		ID:              strings.TrimSpace(id),
		Number:          strings.TrimSpace(doc.Number),
		UserID:          strings.TrimSpace(doc.UserID),
		Items:           items,
		SubtotalCents:   doc.SubtotalCents,
		RedeemedCents:   doc.RedeemedCents,
		TotalCents:      doc.TotalCents,
		PointsUsed:      doc.PointsUsed,
		PointsEarned:    doc.PointsEarned,
		PointsCredited:  doc.PointsCredited,
		Status:          domain.OrderStatus(strings.TrimSpace(doc.Status)),
		PaymentState:    domain.PaymentState(strings.TrimSpace(doc.PaymentState)),
		SessionID:       strings.TrimSpace(doc.SessionID),
		PaymentIntentID: strings.TrimSpace(doc.PaymentIntentID),
		TrackingNumber:  strings.TrimSpace(doc.TrackingNumber),
		ShippingAddress: decodeAddress(doc.ShippingAddress),
		CancelReason:    strings.TrimSpace(doc.CancelReason),
		CreatedAt:       chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:       chooseTime(doc.UpdatedAt, updatedAt),
		ConfirmedAt:     normalizeTimePointer(doc.ConfirmedAt),
		CancelledAt:     normalizeTimePointer(doc.CancelledAt),
	}
}

func encodeAddress(addr domain.Address) addressDocument {
	return addressDocument{
		Name:       strings.TrimSpace(addr.Name),
		Line1:      strings.TrimSpace(addr.Line1),
		Line2:      strings.TrimSpace(addr.Line2),
		City:       strings.TrimSpace(addr.City),
		State:      strings.TrimSpace(addr.State),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    strings.TrimSpace(addr.Country),
		Phone:      strings.TrimSpace(addr.Phone),
	}
}

func decodeAddress(doc addressDocument) domain.Address {
	return domain.Address{
		Name:       doc.Name,
		Line1:      doc.Line1,
		Line2:      doc.Line2,
		City:       doc.City,
		State:      doc.State,
		PostalCode: doc.PostalCode,
		Country:    doc.Country,
		Phone:      doc.Phone,
	}
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
