package repositories

import "fmt"

// StockErrorCode enumerates repository error causes for stock adjustments.
type StockErrorCode string

const (
	// StockErrorUnknown represents an unspecified failure.
	StockErrorUnknown StockErrorCode = "stock_unknown"
	// StockErrorInsufficient indicates the requested quantity exceeds availability.
	StockErrorInsufficient StockErrorCode = "stock_insufficient"
	// StockErrorProductNotFound indicates the product document is missing.
	StockErrorProductNotFound StockErrorCode = "stock_product_not_found"
	// StockErrorInsufficientPoints indicates a point deduction exceeds the balance.
	StockErrorInsufficientPoints StockErrorCode = "points_insufficient"
)

// StockError wraps stock and ledger-specific failures with machine readable codes.
type StockError struct {
	Op      string
	Code    StockErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsConflict marks insufficiency as a conflict so the generic repository
// error mapping surfaces it without a type assertion.
func (e *StockError) IsConflict() bool {
	return e != nil && (e.Code == StockErrorInsufficient || e.Code == StockErrorInsufficientPoints)
}

// IsNotFound reports whether the product document was missing.
func (e *StockError) IsNotFound() bool {
	return e != nil && e.Code == StockErrorProductNotFound
}

// IsUnavailable always reports false; transport failures are wrapped elsewhere.
func (e *StockError) IsUnavailable() bool { return false }

// NewStockError constructs a typed stock error.
func NewStockError(code StockErrorCode, message string, err error) *StockError {
	if message == "" {
		message = string(code)
	}
	return &StockError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
