package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/loyalcart/api/internal/domain"
	pfirestore "github.com/loyalcart/api/internal/platform/firestore"
	"github.com/loyalcart/api/internal/repositories"
)

const paymentsCollection = "payments"

type paymentDocument struct {
	OrderID         string     `firestore:"orderId"`
	UserID          string     `firestore:"userId"`
	Provider        string     `firestore:"provider"`
	SessionID       string     `firestore:"sessionId,omitempty"`
	PaymentIntentID string     `firestore:"paymentIntentId,omitempty"`
	AmountCents     int64      `firestore:"amountCents"`
	PointsUsed      int64      `firestore:"pointsUsed"`
	Status          string     `firestore:"status"`
	RefundID        string     `firestore:"refundId,omitempty"`
	FailureReason   string     `firestore:"failureReason,omitempty"`
	CreatedAt       time.Time  `firestore:"createdAt"`
	UpdatedAt       time.Time  `firestore:"updatedAt"`
	ProcessedAt     *time.Time `firestore:"processedAt,omitempty"`
}

// PaymentRepository persists gateway payment records.
type PaymentRepository struct {
	base *pfirestore.BaseRepository[paymentDocument]
}

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[paymentDocument](provider, paymentsCollection, nil, nil)
	return &PaymentRepository{base: base}, nil
}

// Insert creates a new payment record.
func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) (domain.Payment, error) {
	if r == nil || r.base == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	paymentID := strings.TrimSpace(payment.ID)
	if paymentID == "" {
		return domain.Payment{}, errors.New("payment repository: payment id is required")
	}

	ref, err := r.base.DocumentRef(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	doc := encodePaymentDocument(payment)
	if _, err := ref.Create(ctx, doc); err != nil {
		return domain.Payment{}, pfirestore.WrapError("payments.insert", err)
	}
	return decodePaymentDocument(paymentID, doc, doc.CreatedAt, doc.UpdatedAt), nil
}

// Update replaces the persisted payment state with the provided snapshot.
func (r *PaymentRepository) Update(ctx context.Context, payment domain.Payment) (domain.Payment, error) {
	if r == nil || r.base == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	paymentID := strings.TrimSpace(payment.ID)
	if paymentID == "" {
		return domain.Payment{}, errors.New("payment repository: payment id is required")
	}

	doc := encodePaymentDocument(payment)
	result, err := r.base.Set(ctx, paymentID, doc)
	if err != nil {
		return domain.Payment{}, err
	}
	return decodePaymentDocument(paymentID, doc, doc.CreatedAt, result.UpdateTime), nil
}

// FindByID fetches a single payment record.
func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if r == nil || r.base == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return domain.Payment{}, errors.New("payment repository: payment id is required")
	}
	doc, err := r.base.Get(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	return decodePaymentDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// FindByOrderID resolves the payment record backing an order.
func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (domain.Payment, error) {
	return r.findOne(ctx, "payments.find_by_order", "orderId", strings.TrimSpace(orderID))
}

// FindByPaymentIntentID resolves a payment by its gateway payment intent.
func (r *PaymentRepository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (domain.Payment, error) {
	return r.findOne(ctx, "payments.find_by_intent", "paymentIntentId", strings.TrimSpace(paymentIntentID))
}

func (r *PaymentRepository) findOne(ctx context.Context, op, field, value string) (domain.Payment, error) {
	if r == nil || r.base == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	if value == "" {
		return domain.Payment{}, errors.New("payment repository: lookup value is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", value).Limit(1)
	})
	if err != nil {
		return domain.Payment{}, err
	}
	if len(docs) == 0 {
		return domain.Payment{}, pfirestore.WrapError(op,
			status.Errorf(codes.NotFound, "no payment where %s=%s", field, value))
	}
	doc := docs[0]
	return decodePaymentDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

func encodePaymentDocument(payment domain.Payment) paymentDocument {
	createdAt := payment.CreatedAt.UTC()
	updatedAt := payment.UpdatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	return paymentDocument{
		OrderID:         strings.TrimSpace(payment.OrderID),
		UserID:          strings.TrimSpace(payment.UserID),
		Provider:        strings.TrimSpace(payment.Provider),
		SessionID:       strings.TrimSpace(payment.SessionID),
		PaymentIntentID: strings.TrimSpace(payment.PaymentIntentID),
		AmountCents:     payment.AmountCents,
		PointsUsed:      payment.PointsUsed,
		Status:          string(payment.Status),
		RefundID:        strings.TrimSpace(payment.RefundID),
		FailureReason:   strings.TrimSpace(payment.FailureReason),
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
		ProcessedAt:     normalizeTimePointer(payment.ProcessedAt),
	}
}

func decodePaymentDocument(id string, doc paymentDocument, createdAt, updatedAt time.Time) domain.Payment {
	return domain.Payment{
		ID:              strings.TrimSpace(id),
		OrderID:         strings.TrimSpace(doc.OrderID),
		UserID:          strings.TrimSpace(doc.UserID),
		Provider:        strings.TrimSpace(doc.Provider),
		SessionID:       strings.TrimSpace(doc.SessionID),
		PaymentIntentID: strings.TrimSpace(doc.PaymentIntentID),
		AmountCents:     doc.AmountCents,
		PointsUsed:      doc.PointsUsed,
		Status:          domain.PaymentStatus(strings.TrimSpace(doc.Status)),
		RefundID:        strings.TrimSpace(doc.RefundID),
		FailureReason:   strings.TrimSpace(doc.FailureReason),
		CreatedAt:       chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:       chooseTime(doc.UpdatedAt, updatedAt),
		ProcessedAt:     normalizeTimePointer(doc.ProcessedAt),
	}
}

var _ repositories.PaymentRepository = (*PaymentRepository)(nil)
