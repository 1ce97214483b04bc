package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/loyalcart/api/internal/domain"
	"github.com/loyalcart/api/internal/repositories"
)

func TestCatalogServiceGetProduct(t *testing.T) {
	catalog := &stubCatalogRepository{
		getFn: func(_ context.Context, productID string) (domain.Product, error) {
			return testProduct(productID, 1500, 4), nil
		},
	}
	svc, err := NewCatalogService(CatalogServiceDeps{Repository: catalog})
	if err != nil {
		t.Fatalf("new catalog service: %v", err)
	}

	product, err := svc.GetProduct(context.Background(), "prod-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.ID != "prod-1" || product.PriceCents != 1500 {
		t.Fatalf("unexpected product: %+v", product)
	}

	if _, err := svc.GetProduct(context.Background(), "  "); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCatalogServiceGetProductNotFound(t *testing.T) {
	svc, err := NewCatalogService(CatalogServiceDeps{Repository: &stubCatalogRepository{}})
	if err != nil {
		t.Fatalf("new catalog service: %v", err)
	}

	_, err = svc.GetProduct(context.Background(), "missing")
	if !errors.Is(err, ErrCatalogProductNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCatalogServiceListProductsClampsPageSize(t *testing.T) {
	var seen repositories.ProductListFilter
	catalog := &stubCatalogRepository{
		listFn: func(_ context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
			seen = filter
			return domain.CursorPage[domain.Product]{Items: []domain.Product{testProduct("prod-1", 1000, 2)}}, nil
		},
	}
	svc, err := NewCatalogService(CatalogServiceDeps{Repository: catalog})
	if err != nil {
		t.Fatalf("new catalog service: %v", err)
	}

	page, err := svc.ListProducts(context.Background(), ProductListFilter{
		Pagination: domain.Pagination{PageSize: 500, PageToken: " token "},
	})
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected one product, got %d", len(page.Items))
	}
	if seen.Pagination.PageSize != maxProductPageSize {
		t.Fatalf("expected clamped page size, got %d", seen.Pagination.PageSize)
	}
	if seen.Pagination.PageToken != "token" {
		t.Fatalf("expected trimmed token, got %q", seen.Pagination.PageToken)
	}
}
