package domain

import "time"

// PaymentStatus tracks the provider-driven payment lifecycle of an order.
type PaymentStatus string

const (
	PaymentStatusPending        PaymentStatus = "pending"
	PaymentStatusSucceeded      PaymentStatus = "succeeded"
	PaymentStatusFailed         PaymentStatus = "failed"
	PaymentStatusRequiresAction PaymentStatus = "requires_action"
)

// Terminal reports whether no further payment transition may leave this status.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusFailed
}

// OrderStatus tracks the fulfillment lifecycle of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// FulfillmentStatuses enumerates the statuses an operator may set directly.
// Cancellation is reserved for the payment-failure transition.
var FulfillmentStatuses = map[OrderStatus]struct{}{
	OrderStatusPending:    {},
	OrderStatusConfirmed:  {},
	OrderStatusProcessing: {},
	OrderStatusShipped:    {},
	OrderStatusDelivered:  {},
}

// ValidOrderStatuses enumerates every status accepted by list filters.
var ValidOrderStatuses = map[OrderStatus]struct{}{
	OrderStatusPending:    {},
	OrderStatusConfirmed:  {},
	OrderStatusProcessing: {},
	OrderStatusShipped:    {},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

// PaymentMethod identifies the payment provider backing an order.
type PaymentMethod string

// PaymentMethodStripe is the only supported payment method.
const PaymentMethodStripe PaymentMethod = "stripe"

// ProductAvailability mirrors the catalog's coarse availability flag.
type ProductAvailability string

const (
	AvailabilityInStock    ProductAvailability = "in_stock"
	AvailabilityOutOfStock ProductAvailability = "out_of_stock"
)

// Product is the catalog view consumed by the order core. Price is in minor
// currency units.
type Product struct {
	ID           string
	Name         string
	Price        int64
	Stock        int
	Availability ProductAvailability
	Images       []string
}

// Available reports whether the product can currently be ordered.
func (p Product) Available() bool {
	return p.Availability == AvailabilityInStock
}

// OrderLineItem is an immutable point-in-time snapshot of one purchased
// product. It is never re-read from the catalog after order creation; the
// order is a financial record independent of later catalog drift.
type OrderLineItem struct {
	ProductID string
	Name      string
	UnitPrice int64
	Quantity  int
	ImageURL  string
}

// Total returns the line's price contribution in minor units.
func (l OrderLineItem) Total() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// Order is the aggregate root of the order/payment core.
type Order struct {
	ID                    string
	UserID                string
	Items                 []OrderLineItem
	AddressID             string
	PaymentMethod         PaymentMethod
	PaymentStatus         PaymentStatus
	Status                OrderStatus
	Subtotal              int64
	Total                 int64
	Currency              string
	StripeSessionID       string
	StripePaymentIntentID string
	IdempotencyKey        string
	TrackingNumber        string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	PaidAt                *time.Time
	CanceledAt            *time.Time
}

// CartItem pairs a requested quantity with the live catalog product it
// resolved to at checkout time.
type CartItem struct {
	Product  Product
	Quantity int
}

// Address is the narrow address-book view the order core consumes: enough to
// prove ownership, nothing more.
type Address struct {
	ID     string
	UserID string
}

// LineItemView is the tagged projection of an order line item returned by
// read endpoints. Snapshot is always present; Product carries live catalog
// details only when the product still exists, and is nil otherwise. The
// decision is made once at the data-access boundary.
type LineItemView struct {
	Snapshot OrderLineItem
	Product  *Product
}

// Page is an offset-paginated result set.
type Page[T any] struct {
	Items      []T
	Total      int64
	PageNumber int
	PageSize   int
}

// TotalPages derives the page count from the total and page size.
func (p Page[T]) TotalPages() int64 {
	if p.PageSize <= 0 {
		return 0
	}
	pages := p.Total / int64(p.PageSize)
	if p.Total%int64(p.PageSize) != 0 {
		pages++
	}
	return pages
}
