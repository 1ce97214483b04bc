package services

import (
	"context"
	"errors"
	"strings"

	domain "github.com/loyalcart/api/internal/domain"
	"github.com/loyalcart/api/internal/repositories"
)

const maxProductPageSize = 100

// ErrCatalogInvalidInput indicates the caller supplied invalid input.
var ErrCatalogInvalidInput = errors.New("catalog service: invalid input")

// ErrCatalogUnavailable indicates the catalog backend cannot be reached.
var ErrCatalogUnavailable = errors.New("catalog service: unavailable")

// ErrCatalogProductNotFound indicates the requested product does not exist.
var ErrCatalogProductNotFound = errors.New("catalog service: product not found")

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Repository repositories.CatalogRepository
}

type catalogService struct {
	repo repositories.CatalogRepository
}

// NewCatalogService constructs the catalog read service.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Repository == nil {
		return nil, errors.New("catalog service: repository is required")
	}
	return &catalogService{repo: deps.Repository}, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	if s == nil || s.repo == nil {
		return Product{}, ErrCatalogUnavailable
	}

	id := strings.TrimSpace(productID)
	if id == "" {
		return Product{}, ErrCatalogInvalidInput
	}

	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		if isRepoNotFound(err) {
			return Product{}, ErrCatalogProductNotFound
		}
		return Product{}, ErrCatalogUnavailable
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	if s == nil || s.repo == nil {
		return domain.CursorPage[Product]{}, ErrCatalogUnavailable
	}

	if filter.Pagination.PageSize <= 0 {
		filter.Pagination.PageSize = 20
	}
	if filter.Pagination.PageSize > maxProductPageSize {
		filter.Pagination.PageSize = maxProductPageSize
	}
	filter.Pagination.PageToken = strings.TrimSpace(filter.Pagination.PageToken)

	page, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.CursorPage[Product]{}, ErrCatalogProductNotFound
		}
		return domain.CursorPage[Product]{}, ErrCatalogUnavailable
	}
	if page.Items == nil {
		page.Items = []Product{}
	}
	return page, nil
}
