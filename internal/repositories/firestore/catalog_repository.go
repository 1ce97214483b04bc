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

const productsCollection = "products"

type productDocument struct {
	Name           string    `firestore:"name"`
	Description    string    `firestore:"description,omitempty"`
	PriceCents     int64     `firestore:"priceCents"`
	SalePriceCents *int64    `firestore:"salePriceCents,omitempty"`
	Stock          int64     `firestore:"stock"`
	LoyaltyType    string    `firestore:"loyaltyType"`
	Active         bool      `firestore:"active"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

// CatalogRepository reads products and applies transactional stock movements.
type CatalogRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &CatalogRepository{base: base, provider: provider}, nil
}

// GetProduct fetches a single product by document ID.
func (r *CatalogRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("catalog repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("catalog repository: product id is required")
	}
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProductDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// ListProducts returns catalog entries newest first.
func (r *CatalogRepository) ListProducts(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("catalog repository not initialised")
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
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("catalog repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		if filter.LoyaltyType != nil {
			q = q.Where("loyaltyType", "==", string(*filter.LoyaltyType))
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
		return domain.CursorPage[domain.Product]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeListToken(chooseTime(last.Data.CreatedAt, last.CreateTime), last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeProductDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}
	return domain.CursorPage[domain.Product]{Items: items, NextPageToken: nextToken}, nil
}

// DecrementStock atomically removes quantity units of stock. It fails with a
// typed stock error when the product is missing or the remaining stock would
// go negative.
func (r *CatalogRepository) DecrementStock(ctx context.Context, productID string, quantity int64) (int64, error) {
	return r.adjustStock(ctx, productID, -quantity)
}

// RestoreStock atomically returns quantity units of stock.
func (r *CatalogRepository) RestoreStock(ctx context.Context, productID string, quantity int64) (int64, error) {
	return r.adjustStock(ctx, productID, quantity)
}

func (r *CatalogRepository) adjustStock(ctx context.Context, productID string, delta int64) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("catalog repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return 0, repositories.NewStockError(repositories.StockErrorUnknown, "product id is required", nil)
	}

	var remaining int64
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}

		snapshot, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return repositories.NewStockError(repositories.StockErrorProductNotFound, fmt.Sprintf("product %s not found", productID), err)
		}
		if err != nil {
			return err
		}

		var doc productDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore products decode %s: %w", productID, err)
		}

		newStock := doc.Stock + delta
		if newStock < 0 {
			return repositories.NewStockError(repositories.StockErrorInsufficient,
				fmt.Sprintf("product %s has %d units, requested %d", productID, doc.Stock, -delta), nil)
		}

		if err := tx.Update(ref, []firestore.Update{
			{Path: "stock", Value: newStock},
			{Path: "updatedAt", Value: time.Now().UTC()},
		}); err != nil {
			return err
		}
		remaining = newStock
		return nil
	})
	if err != nil {
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) {
			return 0, stockErr
		}
		return 0, pfirestore.WrapError("products.adjust_stock", err)
	}
	return remaining, nil
}

func decodeProductDocument(id string, doc productDocument, createdAt, updatedAt time.Time) domain.Product {
	return domain.Product{
		ID:             strings.TrimSpace(id),
		Name:           strings.TrimSpace(doc.Name),
		Description:    strings.TrimSpace(doc.Description),
		PriceCents:     doc.PriceCents,
		SalePriceCents: doc.SalePriceCents,
		Stock:          doc.Stock,
		LoyaltyType:    domain.LoyaltyType(strings.TrimSpace(doc.LoyaltyType)),
		Active:         doc.Active,
		CreatedAt:      chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:      chooseTime(doc.UpdatedAt, updatedAt),
	}
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)
