package payments

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("payments: invalid webhook signature")

// Logger defines the logging contract for payment provider operations.
type Logger func(ctx context.Context, event string, fields map[string]any)

// CheckoutItem describes one hosted-checkout line.
type CheckoutItem struct {
	ProductID string
	Name      string
	// Amount is the unit price in minor currency units.
	Amount   int64
	Quantity int64
	ImageURL string
}

// CheckoutSessionRequest carries everything needed to mint a hosted checkout
// session for an order.
type CheckoutSessionRequest struct {
	OrderID        string
	UserID         string
	Currency       string
	Items          []CheckoutItem
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// CheckoutSession is the provider-neutral view of a hosted checkout session.
type CheckoutSession struct {
	ID        string
	URL       string
	IntentID  string
	ExpiresAt time.Time
}

// EventKind classifies provider webhook events into the transitions the
// order core understands.
type EventKind string

const (
	EventKindCheckoutCompleted EventKind = "checkout_completed"
	EventKindCheckoutExpired   EventKind = "checkout_expired"
	EventKindPaymentSucceeded  EventKind = "payment_succeeded"
	EventKindPaymentFailed     EventKind = "payment_failed"
	EventKindUnhandled         EventKind = "unhandled"
)

// WebhookEvent is a verified, normalised provider event. OrderID may be empty
// when the provider payload carried no order reference.
type WebhookEvent struct {
	ID        string
	Kind      EventKind
	Type      string
	OrderID   string
	SessionID string
	IntentID  string
	// Paid reports whether a completed checkout session actually collected
	// payment; asynchronous methods complete the session before settling.
	Paid bool
}

// Provider is the payment gateway contract consumed by the order core.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	// ParseWebhook verifies the payload signature and normalises the event.
	// Verification failures are reported as ErrInvalidSignature.
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}
