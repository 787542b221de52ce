package repositories

import "fmt"

// StockErrorCode enumerates why a stock mutation was rejected.
type StockErrorCode string

const (
	StockErrorCodeInsufficient       StockErrorCode = "insufficient_stock"
	StockErrorCodeProductMissing     StockErrorCode = "product_missing"
	StockErrorCodeProductUnavailable StockErrorCode = "product_unavailable"
)

// StockError is returned when a conditional stock decrement cannot be
// honoured. It names the offending product so handlers can surface a
// useful conflict payload.
type StockError struct {
	Code      StockErrorCode
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *StockError) Error() string {
	switch e.Code {
	case StockErrorCodeProductMissing:
		return fmt.Sprintf("repositories: product %s no longer exists", e.ProductID)
	case StockErrorCodeProductUnavailable:
		return fmt.Sprintf("repositories: product %s is not available for purchase", e.ProductID)
	default:
		return fmt.Sprintf("repositories: insufficient stock for product %s (available %d, requested %d)", e.ProductID, e.Available, e.Requested)
	}
}

// IsNotFound reports the missing-product variant.
func (e *StockError) IsNotFound() bool { return e.Code == StockErrorCodeProductMissing }

// IsConflict reports the variants rejected against current catalog state.
func (e *StockError) IsConflict() bool {
	return e.Code == StockErrorCodeInsufficient || e.Code == StockErrorCodeProductUnavailable
}

// IsUnavailable always reports false; stock rejections are deterministic.
func (e *StockError) IsUnavailable() bool { return false }
