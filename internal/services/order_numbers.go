package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/loyalcart/api/internal/repositories"
)

const orderNumberCounter = "orders"

var (
	// ErrOrderNumberInvalidInput indicates the counter rejected the request.
	ErrOrderNumberInvalidInput = errors.New("order numbers: invalid input")
	// ErrOrderNumberExhausted indicates the sequence cannot increment further.
	ErrOrderNumberExhausted = errors.New("order numbers: exhausted")
)

// OrderNumberGenerator yields human-readable order numbers backed by a
// transactional counter.
type OrderNumberGenerator interface {
	NextOrderNumber(ctx context.Context) (string, error)
}

type orderNumberGenerator struct {
	repo repositories.CounterRepository
}

// NewOrderNumberGenerator constructs an OrderNumberGenerator over the counter repository.
func NewOrderNumberGenerator(repo repositories.CounterRepository) (OrderNumberGenerator, error) {
	if repo == nil {
		return nil, errors.New("order numbers: counter repository is required")
	}
	return &orderNumberGenerator{repo: repo}, nil
}

func (g *orderNumberGenerator) NextOrderNumber(ctx context.Context) (string, error) {
	seq, err := g.repo.Next(ctx, orderNumberCounter)
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			switch counterErr.Code {
			case repositories.CounterErrorInvalidInput:
				return "", fmt.Errorf("%w: %s", ErrOrderNumberInvalidInput, counterErr.Message)
			case repositories.CounterErrorExhausted:
				return "", fmt.Errorf("%w: %s", ErrOrderNumberExhausted, counterErr.Message)
			}
		}
		return "", err
	}
	return fmt.Sprintf("ORD-%06d", seq), nil
}
