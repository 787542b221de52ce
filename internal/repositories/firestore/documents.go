package firestore

import (
	"strings"
	"time"

	domain "github.com/dentastore/api/internal/domain"
)

const (
	// orderIDSearchPrefix routes list search terms to an id lookup; every
	// order id carries it.
	orderIDSearchPrefix = "ord_"

	ordersCollection      = "orders"
	idempotencyCollection = "orderIdempotency"
	productsCollection    = "products"
	cartsCollection       = "carts"
	addressesCollection   = "addresses"
)

type orderDocument struct {
	UserID                string              `firestore:"userId"`
	Items                 []orderItemDocument `firestore:"items"`
	AddressID             string              `firestore:"addressId"`
	PaymentMethod         string              `firestore:"paymentMethod"`
	PaymentStatus         string              `firestore:"paymentStatus"`
	Status                string              `firestore:"status"`
	Subtotal              int64               `firestore:"subtotal"`
	Total                 int64               `firestore:"total"`
	Currency              string              `firestore:"currency"`
	StripeSessionID       string              `firestore:"stripeSessionId,omitempty"`
	StripePaymentIntentID string              `firestore:"stripePaymentIntentId,omitempty"`
	IdempotencyKey        string              `firestore:"idempotencyKey"`
	TrackingNumber        string              `firestore:"trackingNumber,omitempty"`
	// ProductNames denormalises lowercased line item names so order search
	// can match on product name without a join.
	ProductNames []string `firestore:"productNames"`
	CreatedAt             time.Time           `firestore:"createdAt"`
	UpdatedAt             time.Time           `firestore:"updatedAt"`
	PaidAt                *time.Time          `firestore:"paidAt,omitempty"`
	CanceledAt            *time.Time          `firestore:"canceledAt,omitempty"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int    `firestore:"qty"`
	ImageURL  string `firestore:"imageUrl,omitempty"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	names := make([]string, 0, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemDocument{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			ImageURL:  strings.TrimSpace(item.ImageURL),
		}
		if name := strings.ToLower(items[i].Name); name != "" {
			names = append(names, name)
		}
	}
	return orderDocument{
		UserID:                strings.TrimSpace(order.UserID),
		Items:                 items,
		AddressID:             strings.TrimSpace(order.AddressID),
		PaymentMethod:         string(order.PaymentMethod),
		PaymentStatus:         string(order.PaymentStatus),
		Status:                string(order.Status),
		Subtotal:              order.Subtotal,
		Total:                 order.Total,
		Currency:              strings.TrimSpace(order.Currency),
		StripeSessionID:       strings.TrimSpace(order.StripeSessionID),
		StripePaymentIntentID: strings.TrimSpace(order.StripePaymentIntentID),
		IdempotencyKey:        strings.TrimSpace(order.IdempotencyKey),
		TrackingNumber:        strings.TrimSpace(order.TrackingNumber),
		ProductNames:          names,
		CreatedAt:             order.CreatedAt.UTC(),
		UpdatedAt:             order.UpdatedAt.UTC(),
		PaidAt:                order.PaidAt,
		CanceledAt:            order.CanceledAt,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderLineItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderLineItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
		}
	}
	return domain.Order{
		ID:                    id,
		UserID:                d.UserID,
		Items:                 items,
		AddressID:             d.AddressID,
		PaymentMethod:         domain.PaymentMethod(d.PaymentMethod),
		PaymentStatus:         domain.PaymentStatus(d.PaymentStatus),
		Status:                domain.OrderStatus(d.Status),
		Subtotal:              d.Subtotal,
		Total:                 d.Total,
		Currency:              d.Currency,
		StripeSessionID:       d.StripeSessionID,
		StripePaymentIntentID: d.StripePaymentIntentID,
		IdempotencyKey:        d.IdempotencyKey,
		TrackingNumber:        d.TrackingNumber,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
		PaidAt:                d.PaidAt,
		CanceledAt:            d.CanceledAt,
	}
}

// idempotencyDocument claims an idempotency key for exactly one order.
type idempotencyDocument struct {
	OrderID   string    `firestore:"orderId"`
	UserID    string    `firestore:"userId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type productDocument struct {
	Name         string    `firestore:"name"`
	Price        int64     `firestore:"price"`
	Stock        int       `firestore:"stock"`
	Availability string    `firestore:"availability"`
	Images       []string  `firestore:"images,omitempty"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// recalculate keeps the coarse availability flag in lockstep with stock.
func (p *productDocument) recalculate() {
	if p.Stock > 0 {
		p.Availability = string(domain.AvailabilityInStock)
	} else {
		p.Availability = string(domain.AvailabilityOutOfStock)
	}
}

func (p productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:           id,
		Name:         p.Name,
		Price:        p.Price,
		Stock:        p.Stock,
		Availability: domain.ProductAvailability(p.Availability),
		Images:       p.Images,
	}
}

// cartDocument is keyed by user id; one cart per user.
type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID string `firestore:"productId"`
	Quantity  int    `firestore:"qty"`
}

type addressDocument struct {
	UserID string `firestore:"userId"`
}
