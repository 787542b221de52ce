package services

import (
	"context"

	domain "github.com/dentastore/api/internal/domain"
)

// Logger defines the logging contract used across services.
type Logger func(ctx context.Context, event string, fields map[string]any)

// NotificationRoleAdmin broadcasts to every operator instead of one user.
const NotificationRoleAdmin = "admin"

// Notification is a message for one user or for a whole role.
type Notification struct {
	Title    string
	Body     string
	UserID   string
	Role     string
	Metadata map[string]string
}

// Notifier delivers notifications. Delivery is best-effort from the caller's
// point of view; failures must never fail the triggering operation.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// StockLine names one product quantity for reservation or restoration.
type StockLine struct {
	ProductID string
	Name      string
	Quantity  int
}

// StockService is the reservation engine guarding catalog stock.
type StockService interface {
	// Reserve conditionally decrements stock for every line; either all
	// lines are reserved or none are.
	Reserve(ctx context.Context, lines []StockLine) error
	// Restore returns previously reserved quantities to the catalog. Lines
	// whose product no longer exists are skipped and reported.
	Restore(ctx context.Context, lines []StockLine) ([]string, error)
}

// CreateOrderCommand captures a checkout submission.
type CreateOrderCommand struct {
	UserID         string
	AddressID      string
	PaymentMethod  domain.PaymentMethod
	IdempotencyKey string
}

// CreateOrderResult reports the order plus whether this call created it.
type CreateOrderResult struct {
	Order   domain.Order
	Created bool
}

// GetOrderQuery fetches one order. A non-empty UserID restricts the lookup
// to that user's orders.
type GetOrderQuery struct {
	OrderID string
	UserID  string
}

// ListOrdersQuery filters and paginates order listings.
type ListOrdersQuery struct {
	Status *domain.OrderStatus
	UserID string
	Search string
	Page   int
	Limit  int
}

// UpdateOrderStatusCommand moves an order along the fulfillment lifecycle.
type UpdateOrderStatusCommand struct {
	OrderID        string
	Status         domain.OrderStatus
	TrackingNumber *string
}

// UpdatePaymentStatusCommand applies a provider-driven payment transition.
type UpdatePaymentStatusCommand struct {
	OrderID         string
	Target          domain.PaymentStatus
	PaymentIntentID string
}

// OrderDetails pairs an order with the tagged projection of its line items.
type OrderDetails struct {
	Order domain.Order
	Items []domain.LineItemView
}

// OrderService is the order ledger plus its payment state machine.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (CreateOrderResult, error)
	Get(ctx context.Context, query GetOrderQuery) (OrderDetails, error)
	List(ctx context.Context, query ListOrdersQuery) (domain.Page[OrderDetails], error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (domain.Order, error)
	UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (domain.Order, error)
}

// CreateSessionCommand mints a hosted checkout session for an order.
type CreateSessionCommand struct {
	Order domain.Order
}

// RetrySessionCommand mints a fresh session for an existing unpaid order.
type RetrySessionCommand struct {
	OrderID string
	UserID  string
}

// LandingQuery resolves a checkout success or cancel landing for its owner.
type LandingQuery struct {
	OrderID string
	UserID  string
}

// CheckoutSessionResult is the session handed back to the storefront.
type CheckoutSessionResult struct {
	OrderID     string
	SessionID   string
	RedirectURL string
}

// CheckoutService brokers hosted checkout sessions for orders.
type CheckoutService interface {
	CreateSession(ctx context.Context, cmd CreateSessionCommand) (CheckoutSessionResult, error)
	RetrySession(ctx context.Context, cmd RetrySessionCommand) (CheckoutSessionResult, error)
	ConfirmLanding(ctx context.Context, query LandingQuery) (domain.Order, error)
}

// WebhookService reconciles provider webhook events into order payment state.
type WebhookService interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) error
}
