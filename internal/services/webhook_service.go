package services

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/dentastore/api/internal/domain"
	"github.com/dentastore/api/internal/payments"
)

// ErrWebhookInvalidSignature indicates the webhook payload failed verification.
var ErrWebhookInvalidSignature = errors.New("webhook: invalid signature")

// WebhookServiceDeps wires the dependencies required by the webhook service.
type WebhookServiceDeps struct {
	Provider payments.Provider
	Orders   OrderService
	Logger   Logger
}

type webhookService struct {
	provider payments.Provider
	orders   OrderService
	logger   Logger
}

// NewWebhookService constructs a WebhookService validating required dependencies.
func NewWebhookService(deps WebhookServiceDeps) (WebhookService, error) {
	if deps.Provider == nil {
		return nil, errors.New("webhook service: payment provider is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("webhook service: order service is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &webhookService{
		provider: deps.Provider,
		orders:   deps.Orders,
		logger:   logger,
	}, nil
}

// HandleEvent verifies the payload and reconciles the event into order
// payment state. Events that carry no actionable transition are acknowledged
// and dropped; redeliveries hit the transition no-op guard downstream.
func (s *webhookService) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	if s == nil || s.provider == nil {
		return errors.New("webhook service not initialised")
	}

	event, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			return fmt.Errorf("%w: %v", ErrWebhookInvalidSignature, err)
		}
		return err
	}

	var target domain.PaymentStatus
	switch event.Kind {
	case payments.EventKindCheckoutCompleted:
		if !event.Paid {
			// Asynchronous payment methods complete the session before the
			// money settles; wait for the payment intent outcome instead.
			s.logger(ctx, "webhook.checkout_completed_unpaid", map[string]any{
				"eventId": event.ID,
				"orderId": event.OrderID,
			})
			return nil
		}
		target = domain.PaymentStatusSucceeded
	case payments.EventKindPaymentSucceeded:
		target = domain.PaymentStatusSucceeded
	case payments.EventKindCheckoutExpired, payments.EventKindPaymentFailed:
		target = domain.PaymentStatusFailed
	default:
		s.logger(ctx, "webhook.event_ignored", map[string]any{
			"eventId": event.ID,
			"type":    event.Type,
		})
		return nil
	}

	if event.OrderID == "" {
		s.logger(ctx, "webhook.missing_order_reference", map[string]any{
			"eventId": event.ID,
			"type":    event.Type,
		})
		return nil
	}

	order, err := s.orders.UpdatePaymentStatus(ctx, UpdatePaymentStatusCommand{
		OrderID:         event.OrderID,
		Target:          target,
		PaymentIntentID: event.IntentID,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound):
			// The referenced order is unknown; retrying will not help.
			s.logger(ctx, "webhook.unknown_order", map[string]any{
				"eventId": event.ID,
				"orderId": event.OrderID,
			})
			return nil
		case errors.Is(err, ErrOrderPaymentConflict):
			// A later event already settled the payment; for example an
			// expiry arriving after the successful completion.
			s.logger(ctx, "webhook.conflicting_transition_dropped", map[string]any{
				"eventId": event.ID,
				"orderId": event.OrderID,
				"target":  target,
			})
			return nil
		default:
			return err
		}
	}

	s.logger(ctx, "webhook.reconciled", map[string]any{
		"eventId":       event.ID,
		"orderId":       order.ID,
		"paymentStatus": order.PaymentStatus,
	})
	return nil
}
