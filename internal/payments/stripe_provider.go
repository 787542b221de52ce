package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

const metadataOrderIDKey = "orderId"

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey        string
	WebhookSecret string
	Backends      *stripe.Backends
	Logger        Logger
	Clock         func() time.Time
	// Sessions overrides the live Stripe client, for tests.
	Sessions stripeSessionAPI
	// Verify overrides signature verification, for tests.
	Verify func(payload []byte, header, secret string) (stripe.Event, error)
}

// StripeProvider implements Provider on Stripe hosted checkout plus signed
// webhooks.
type StripeProvider struct {
	sessions      stripeSessionAPI
	webhookSecret string
	verify        func(payload []byte, header, secret string) (stripe.Event, error)
	clock         func() time.Time
	logger        Logger
}

// NewStripeProvider constructs a Stripe-backed Provider.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Sessions == nil {
		return nil, errors.New("stripe: api key is required")
	}
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, errors.New("stripe: webhook secret is required")
	}

	sessions := cfg.Sessions
	if sessions == nil {
		sc := client.New(apiKey, cfg.Backends)
		sessions = sc.CheckoutSessions
	}

	verify := cfg.Verify
	if verify == nil {
		verify = webhook.ConstructEvent
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		sessions:      sessions,
		webhookSecret: secret,
		verify:        verify,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateCheckoutSession creates a Stripe hosted checkout session. The order
// id travels as client_reference_id and as metadata on both the session and
// the payment intent so every webhook shape can be traced back to the order.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errors.New("stripe: provider is nil")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return CheckoutSession{}, errors.New("stripe: order id is required")
	}
	if len(req.Items) == 0 {
		return CheckoutSession{}, errors.New("stripe: at least one line item is required")
	}

	metadata := map[string]string{metadataOrderIDKey: orderID}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(orderID),
		Metadata:          metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		quantity := item.Quantity
		if quantity < 1 {
			quantity = 1
		}
		productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(item.Name),
		}
		if image := strings.TrimSpace(item.ImageURL); image != "" {
			productData.Images = []*string{stripe.String(image)}
		}
		if item.ProductID != "" {
			productData.Metadata = map[string]string{"productId": item.ProductID}
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(currency),
				UnitAmount:  stripe.Int64(item.Amount),
				ProductData: productData,
			},
		})
	}
	params.LineItems = lineItems

	session, err := p.sessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	intentID := ""
	if session.PaymentIntent != nil {
		intentID = session.PaymentIntent.ID
	}

	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"orderId":       orderID,
		"sessionId":     session.ID,
		"paymentIntent": intentID,
	})

	expiresAt := p.clock().Add(30 * time.Minute)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}

	return CheckoutSession{
		ID:        session.ID,
		URL:       session.URL,
		IntentID:  intentID,
		ExpiresAt: expiresAt,
	}, nil
}

// ParseWebhook verifies the Stripe signature header and normalises the event.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (WebhookEvent, error) {
	if p == nil {
		return WebhookEvent{}, errors.New("stripe: provider is nil")
	}

	event, err := p.verify(payload, signature, p.webhookSecret)
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	normalized := WebhookEvent{
		ID:   event.ID,
		Kind: EventKindUnhandled,
		Type: string(event.Type),
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionExpired:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return WebhookEvent{}, fmt.Errorf("stripe: decode checkout session event: %w", err)
		}
		normalized.SessionID = session.ID
		normalized.OrderID = strings.TrimSpace(session.ClientReferenceID)
		if normalized.OrderID == "" {
			normalized.OrderID = strings.TrimSpace(session.Metadata[metadataOrderIDKey])
		}
		if session.PaymentIntent != nil {
			normalized.IntentID = session.PaymentIntent.ID
		}
		if event.Type == stripe.EventTypeCheckoutSessionCompleted {
			normalized.Kind = EventKindCheckoutCompleted
			normalized.Paid = session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid
		} else {
			normalized.Kind = EventKindCheckoutExpired
		}

	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return WebhookEvent{}, fmt.Errorf("stripe: decode payment intent event: %w", err)
		}
		normalized.IntentID = intent.ID
		normalized.OrderID = strings.TrimSpace(intent.Metadata[metadataOrderIDKey])
		if event.Type == stripe.EventTypePaymentIntentSucceeded {
			normalized.Kind = EventKindPaymentSucceeded
			normalized.Paid = true
		} else {
			normalized.Kind = EventKindPaymentFailed
		}
	}

	return normalized, nil
}
