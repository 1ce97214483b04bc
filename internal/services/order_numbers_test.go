package services

import (
	"context"
	"errors"
	"testing"

	"github.com/loyalcart/api/internal/repositories"
)

type stubCounterRepository struct {
	nextFn func(context.Context, string) (int64, error)
	names  []string
}

func (s *stubCounterRepository) Next(ctx context.Context, name string) (int64, error) {
	s.names = append(s.names, name)
	if s.nextFn != nil {
		return s.nextFn(ctx, name)
	}
	return 0, nil
}

func TestOrderNumberGeneratorFormats(t *testing.T) {
	repo := &stubCounterRepository{
		nextFn: func(context.Context, string) (int64, error) { return 42, nil },
	}
	gen, err := NewOrderNumberGenerator(repo)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}

	number, err := gen.NextOrderNumber(context.Background())
	if err != nil {
		t.Fatalf("next order number: %v", err)
	}
	if number != "ORD-000042" {
		t.Fatalf("expected ORD-000042, got %s", number)
	}
	if len(repo.names) != 1 || repo.names[0] != "orders" {
		t.Fatalf("expected counter name orders, got %v", repo.names)
	}
}

func TestOrderNumberGeneratorMapsCounterErrors(t *testing.T) {
	repo := &stubCounterRepository{
		nextFn: func(context.Context, string) (int64, error) {
			return 0, repositories.NewCounterError(repositories.CounterErrorExhausted, "limit", nil)
		},
	}
	gen, err := NewOrderNumberGenerator(repo)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}

	_, err = gen.NextOrderNumber(context.Background())
	if !errors.Is(err, ErrOrderNumberExhausted) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
}
