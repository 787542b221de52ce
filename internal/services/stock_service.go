package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dentastore/api/internal/repositories"
)

var (
	// ErrStockInvalidInput indicates the caller supplied invalid stock lines.
	ErrStockInvalidInput = errors.New("stock: invalid input")
	// ErrStockInsufficient indicates a reservation would oversell a product.
	ErrStockInsufficient = errors.New("stock: insufficient stock")
	// ErrStockProductMissing indicates a reserved product no longer exists.
	ErrStockProductMissing = errors.New("stock: product not found")
	// ErrStockProductUnavailable indicates the product is pulled from sale
	// regardless of its remaining stock count.
	ErrStockProductUnavailable = errors.New("stock: product not available")
	// ErrStockUnavailable indicates the catalog store is unreachable.
	ErrStockUnavailable = errors.New("stock: unavailable")
)

// StockFault carries the product detail behind a rejected stock mutation so
// callers can build a useful conflict response.
type StockFault struct {
	Sentinel  error
	ProductID string
	Name      string
	Available int
	Requested int
}

func (f *StockFault) Error() string {
	return fmt.Sprintf("%v: product %s (available %d, requested %d)", f.Sentinel, f.ProductID, f.Available, f.Requested)
}

// Unwrap exposes the sentinel for errors.Is.
func (f *StockFault) Unwrap() error { return f.Sentinel }

// StockServiceDeps wires the dependencies required by the stock service.
type StockServiceDeps struct {
	Products repositories.ProductRepository
	Clock    func() time.Time
	Logger   Logger
}

type stockService struct {
	products repositories.ProductRepository
	now      func() time.Time
	logger   Logger
}

// NewStockService constructs a StockService validating required dependencies.
func NewStockService(deps StockServiceDeps) (StockService, error) {
	if deps.Products == nil {
		return nil, errors.New("stock service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &stockService{
		products: deps.Products,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *stockService) Reserve(ctx context.Context, lines []StockLine) error {
	if s == nil || s.products == nil {
		return ErrStockUnavailable
	}
	adjustments, err := stockAdjustments(lines)
	if err != nil {
		return err
	}

	_, err = s.products.AdjustStock(ctx, repositories.StockAdjustmentRequest{
		Adjustments:       adjustments,
		Direction:         -1,
		RequireSufficient: true,
		Now:               s.now(),
	})
	if err != nil {
		return s.translateStockError(err)
	}

	s.logger(ctx, "stock.reserved", map[string]any{"lines": len(lines)})
	return nil
}

func (s *stockService) Restore(ctx context.Context, lines []StockLine) ([]string, error) {
	if s == nil || s.products == nil {
		return nil, ErrStockUnavailable
	}
	adjustments, err := stockAdjustments(lines)
	if err != nil {
		return nil, err
	}

	result, err := s.products.AdjustStock(ctx, repositories.StockAdjustmentRequest{
		Adjustments: adjustments,
		Direction:   1,
		SkipMissing: true,
		Now:         s.now(),
	})
	if err != nil {
		return nil, s.translateStockError(err)
	}

	if len(result.Skipped) > 0 {
		// The order snapshot stays authoritative even when the catalog
		// dropped the product; there is just nothing left to restore.
		s.logger(ctx, "stock.restore.skipped_missing_products", map[string]any{
			"productIds": result.Skipped,
		})
	}
	s.logger(ctx, "stock.restored", map[string]any{"lines": len(lines), "skipped": len(result.Skipped)})
	return result.Skipped, nil
}

func stockAdjustments(lines []StockLine) ([]repositories.StockAdjustment, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", ErrStockInvalidInput)
	}
	adjustments := make([]repositories.StockAdjustment, 0, len(lines))
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be > 0", ErrStockInvalidInput, productID)
		}
		adjustments = append(adjustments, repositories.StockAdjustment{
			ProductID: productID,
			Name:      strings.TrimSpace(line.Name),
			Quantity:  line.Quantity,
		})
	}
	return adjustments, nil
}

func (s *stockService) translateStockError(err error) error {
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		sentinel := ErrStockInsufficient
		switch stockErr.Code {
		case repositories.StockErrorCodeProductMissing:
			sentinel = ErrStockProductMissing
		case repositories.StockErrorCodeProductUnavailable:
			sentinel = ErrStockProductUnavailable
		}
		return &StockFault{
			Sentinel:  sentinel,
			ProductID: stockErr.ProductID,
			Name:      stockErr.Name,
			Available: stockErr.Available,
			Requested: stockErr.Requested,
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("%w: %v", ErrStockUnavailable, err)
	}
	return err
}
