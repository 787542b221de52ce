package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dentastore/api/internal/domain"
	"github.com/dentastore/api/internal/payments"
)

func newTestWebhookService(t *testing.T, provider payments.Provider, orders OrderService) WebhookService {
	t.Helper()
	svc, err := NewWebhookService(WebhookServiceDeps{Provider: provider, Orders: orders})
	if err != nil {
		t.Fatalf("NewWebhookService returned error: %v", err)
	}
	return svc
}

func staticEvent(event payments.WebhookEvent) *stubPaymentProvider {
	return &stubPaymentProvider{parseFn: func(_ []byte, _ string) (payments.WebhookEvent, error) {
		return event, nil
	}}
}

func TestWebhookServiceInvalidSignature(t *testing.T) {
	provider := &stubPaymentProvider{parseFn: func(_ []byte, _ string) (payments.WebhookEvent, error) {
		return payments.WebhookEvent{}, fmt.Errorf("%w: bad mac", payments.ErrInvalidSignature)
	}}
	orders := &stubOrderService{}

	svc := newTestWebhookService(t, provider, orders)
	err := svc.HandleEvent(context.Background(), []byte(`{}`), "t=1,v1=bad")
	if !errors.Is(err, ErrWebhookInvalidSignature) {
		t.Fatalf("expected ErrWebhookInvalidSignature, got %v", err)
	}
	if len(orders.commands) != 0 {
		t.Fatalf("unverified payloads must not reach the ledger")
	}
}

func TestWebhookServiceCheckoutCompletedPaid(t *testing.T) {
	orders := &stubOrderService{}
	svc := newTestWebhookService(t, staticEvent(payments.WebhookEvent{
		ID:       "evt_1",
		Kind:     payments.EventKindCheckoutCompleted,
		OrderID:  "ord_1",
		IntentID: "pi_1",
		Paid:     true,
	}), orders)

	if err := svc.HandleEvent(context.Background(), []byte(`{}`), "sig"); err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if len(orders.commands) != 1 {
		t.Fatalf("expected one transition, got %d", len(orders.commands))
	}
	cmd := orders.commands[0]
	if cmd.OrderID != "ord_1" || cmd.Target != domain.PaymentStatusSucceeded || cmd.PaymentIntentID != "pi_1" {
		t.Fatalf("unexpected command %+v", cmd)
	}
}

func TestWebhookServiceCheckoutCompletedUnpaidWaits(t *testing.T) {
	orders := &stubOrderService{}
	svc := newTestWebhookService(t, staticEvent(payments.WebhookEvent{
		ID:      "evt_1",
		Kind:    payments.EventKindCheckoutCompleted,
		OrderID: "ord_1",
		Paid:    false,
	}), orders)

	if err := svc.HandleEvent(context.Background(), []byte(`{}`), "sig"); err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if len(orders.commands) != 0 {
		t.Fatalf("unpaid completion must wait for the payment intent outcome")
	}
}

func TestWebhookServiceCheckoutExpiredFails(t *testing.T) {
	orders := &stubOrderService{}
	svc := newTestWebhookService(t, staticEvent(payments.WebhookEvent{
		ID:      "evt_1",
		Kind:    payments.EventKindCheckoutExpired,
		OrderID: "ord_1",
	}), orders)

	if err := svc.HandleEvent(context.Background(), []byte(`{}`), "sig"); err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if len(orders.commands) != 1 || orders.commands[0].Target != domain.PaymentStatusFailed {
		t.Fatalf("expected failed transition, got %+v", orders.commands)
	}
}

func TestWebhookServicePaymentIntentEvents(t *testing.T) {
	cases := []struct {
		kind payments.EventKind
		want domain.PaymentStatus
	}{
		{payments.EventKindPaymentSucceeded, domain.PaymentStatusSucceeded},
		{payments.EventKindPaymentFailed, domain.PaymentStatusFailed},
	}
	for _, tc := range cases {
		orders := &stubOrderService{}
		svc := newTestWebhookService(t, staticEvent(payments.WebhookEvent{
			ID:      "evt_1",
			Kind:    tc.kind,
			OrderID: "ord_1",
		}), orders)

		if err := svc.HandleEvent(context.Background(), []byte(`{}`), "sig"); err != nil {
			t.Fatalf("HandleEvent(%s) returned error: %v", tc.kind, err)
		}
		if len(orders.commands) != 1 || orders.commands[0].Target != tc.want {
			t.Fatalf("HandleEvent(%s): expected target %q, got %+v", tc.kind, tc.want, orders.commands)
		}
	}
}

func TestWebhookServiceIgnoresUnhandledEvents(t *testing.T) {
	orders := &stubOrderService{}
	svc := newTestWebhookService(t, staticEvent(payments.WebhookEvent{
		ID:   "evt_1",
		Kind: payments.EventKindUnhandled,
		Type: "customer.created",
	}), orders)

	if err := svc.HandleEvent(context.Background(), []byte(`{}`), "sig"); err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if len(orders.commands) != 0 {
		t.Fatalf("unhandled events must not touch the ledger")
	}
}

func TestWebhookServiceMissingOrderReference(t *testing.T) {
	orders := &stubOrderService{}
	svc := newTestWebhookService(t, staticEvent(payments.WebhookEvent{
		ID:   "evt_1",
		Kind: payments.EventKindPaymentSucceeded,
	}), orders)

	if err := svc.HandleEvent(context.Background(), []byte(`{}`), "sig"); err != nil {
		t.Fatalf("event without an order reference must be acknowledged: %v", err)
	}
	if len(orders.commands) != 0 {
		t.Fatalf("no transition expected without an order id")
	}
}

func TestWebhookServiceUnknownOrderAcknowledged(t *testing.T) {
	orders := &stubOrderService{updatePaymentFn: func(_ context.Context, _ UpdatePaymentStatusCommand) (domain.Order, error) {
		return domain.Order{}, ErrOrderNotFound
	}}
	svc := newTestWebhookService(t, staticEvent(payments.WebhookEvent{
		ID:      "evt_1",
		Kind:    payments.EventKindPaymentSucceeded,
		OrderID: "ord_unknown",
	}), orders)

	if err := svc.HandleEvent(context.Background(), []byte(`{}`), "sig"); err != nil {
		t.Fatalf("unknown order must be acknowledged, got %v", err)
	}
}

func TestWebhookServiceConflictingTransitionDropped(t *testing.T) {
	orders := &stubOrderService{updatePaymentFn: func(_ context.Context, _ UpdatePaymentStatusCommand) (domain.Order, error) {
		return domain.Order{}, fmt.Errorf("%w: already succeeded", ErrOrderPaymentConflict)
	}}
	svc := newTestWebhookService(t, staticEvent(payments.WebhookEvent{
		ID:      "evt_1",
		Kind:    payments.EventKindCheckoutExpired,
		OrderID: "ord_1",
	}), orders)

	if err := svc.HandleEvent(context.Background(), []byte(`{}`), "sig"); err != nil {
		t.Fatalf("conflicting transition must be acknowledged, got %v", err)
	}
}

func TestWebhookServiceTransientErrorPropagates(t *testing.T) {
	orders := &stubOrderService{updatePaymentFn: func(_ context.Context, _ UpdatePaymentStatusCommand) (domain.Order, error) {
		return domain.Order{}, ErrOrderUnavailable
	}}
	svc := newTestWebhookService(t, staticEvent(payments.WebhookEvent{
		ID:      "evt_1",
		Kind:    payments.EventKindPaymentFailed,
		OrderID: "ord_1",
	}), orders)

	if err := svc.HandleEvent(context.Background(), []byte(`{}`), "sig"); !errors.Is(err, ErrOrderUnavailable) {
		t.Fatalf("transient errors must propagate for redelivery, got %v", err)
	}
}
