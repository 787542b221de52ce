package repositories

import (
	"context"
	"time"

	domain "github.com/dentastore/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CreateOrderRequest carries a fully built order into the idempotent create.
type CreateOrderRequest struct {
	Order domain.Order
	Now   time.Time
}

// CreateOrderResult reports whether the order was inserted or found via its
// idempotency key.
type CreateOrderResult struct {
	Order   domain.Order
	Created bool
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	Status *domain.OrderStatus
	UserID string
	Search string
	Page   int
	Limit  int
}

// UpdateStatusRequest mutates the fulfillment status of an order.
type UpdateStatusRequest struct {
	OrderID        string
	Status         domain.OrderStatus
	TrackingNumber *string
	Now            time.Time
}

// UpdatePaymentRequest applies a payment transition decided by the service layer.
type UpdatePaymentRequest struct {
	OrderID         string
	PaymentStatus   domain.PaymentStatus
	OrderStatus     domain.OrderStatus
	PaymentIntentID string
	Now             time.Time
}

// UpdatePaymentResult reports whether the transition was applied or skipped
// because the order already carried the target payment status.
type UpdatePaymentResult struct {
	Order   domain.Order
	Applied bool
}

// SessionRef records the provider session minted for an order.
type SessionRef struct {
	OrderID   string
	SessionID string
	Now       time.Time
}

// OrderRepository persists order aggregates with idempotency and payment
// transition guarantees enforced at the storage layer.
type OrderRepository interface {
	// CreateIdempotent claims the order's idempotency key and inserts the
	// order inside one transaction. When the key is already claimed the
	// existing order is returned untouched with Created=false.
	CreateIdempotent(ctx context.Context, req CreateOrderRequest) (CreateOrderResult, error)
	// FindByIdempotencyKey resolves the order that already claimed the key,
	// or a not-found RepositoryError when the key is unclaimed.
	FindByIdempotencyKey(ctx context.Context, idempotencyKey string) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
	UpdateStatus(ctx context.Context, req UpdateStatusRequest) (domain.Order, error)
	// UpdatePayment applies the payment transition atomically. It no-ops
	// when the order already carries the target payment status, which makes
	// webhook redelivery safe.
	UpdatePayment(ctx context.Context, req UpdatePaymentRequest) (UpdatePaymentResult, error)
	RecordSession(ctx context.Context, ref SessionRef) error
}

// StockAdjustment names one product quantity change.
type StockAdjustment struct {
	ProductID string
	Name      string
	Quantity  int
}

// StockAdjustmentRequest batches conditional stock mutations.
type StockAdjustmentRequest struct {
	Adjustments []StockAdjustment
	// Delta direction: -1 decrements (reserve), +1 increments (restore).
	Direction int
	// RequireSufficient makes decrements conditional on stock >= quantity.
	RequireSufficient bool
	// SkipMissing tolerates products deleted from the catalog since the
	// order snapshot was taken.
	SkipMissing bool
	Now         time.Time
}

// StockAdjustmentResult reports the post-mutation product state.
type StockAdjustmentResult struct {
	Products map[string]domain.Product
	Skipped  []string
}

// ProductRepository exposes the narrow catalog contract the order core consumes.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	AdjustStock(ctx context.Context, req StockAdjustmentRequest) (StockAdjustmentResult, error)
}

// CartRepository sources checkout line items and clears carts post-order.
type CartRepository interface {
	// GetForCheckout resolves the user's cart against the live catalog.
	// It fails with a not-found RepositoryError when the cart is empty.
	GetForCheckout(ctx context.Context, userID string) ([]domain.CartItem, error)
	Clear(ctx context.Context, userID string) error
}

// AddressRepository validates address ownership.
type AddressRepository interface {
	FindOwned(ctx context.Context, userID, addressID string) (domain.Address, error)
}
