package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dentastore/api/internal/domain"
	"github.com/dentastore/api/internal/payments"
	"github.com/dentastore/api/internal/repositories"
)

func testCheckoutOrder() domain.Order {
	return domain.Order{
		ID:       "ord_1",
		UserID:   "user-1",
		Currency: "usd",
		Items: []domain.OrderLineItem{
			{ProductID: "prod-1", Name: "Nitrile Gloves", UnitPrice: 1299, Quantity: 3, ImageURL: "https://cdn.example/gloves.png"},
		},
	}
}

func newTestCheckoutService(t *testing.T, orders repositories.OrderRepository, provider payments.Provider) CheckoutService {
	t.Helper()
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Orders:   orders,
		Provider: provider,
		URLs: CheckoutURLs{
			Success: func(orderID string) string { return "https://shop.example/checkout/success?orderId=" + orderID },
			Cancel:  func(orderID string) string { return "https://shop.example/checkout/cancel?orderId=" + orderID },
		},
		Clock: func() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewCheckoutService returned error: %v", err)
	}
	return svc
}

func TestCheckoutServiceCreateSession(t *testing.T) {
	var captured payments.CheckoutSessionRequest
	var recorded repositories.SessionRef
	provider := &stubPaymentProvider{createFn: func(_ context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
		captured = req
		return payments.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.example/cs_1"}, nil
	}}
	orders := &stubOrderRepo{recordSessionFn: func(_ context.Context, ref repositories.SessionRef) error {
		recorded = ref
		return nil
	}}

	svc := newTestCheckoutService(t, orders, provider)
	result, err := svc.CreateSession(context.Background(), CreateSessionCommand{Order: testCheckoutOrder()})
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	if captured.OrderID != "ord_1" || captured.UserID != "user-1" || captured.Currency != "usd" {
		t.Fatalf("unexpected session request %+v", captured)
	}
	if captured.SuccessURL != "https://shop.example/checkout/success?orderId=ord_1" {
		t.Fatalf("unexpected success url %q", captured.SuccessURL)
	}
	if len(captured.Items) != 1 {
		t.Fatalf("expected one checkout item, got %d", len(captured.Items))
	}
	item := captured.Items[0]
	if item.Amount != 1299 || item.Quantity != 3 || item.ImageURL == "" {
		t.Fatalf("unexpected checkout item %+v", item)
	}
	if recorded.OrderID != "ord_1" || recorded.SessionID != "cs_1" {
		t.Fatalf("session reference not recorded, got %+v", recorded)
	}
	if result.RedirectURL != "https://checkout.stripe.example/cs_1" || result.SessionID != "cs_1" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCheckoutServiceCreateSessionProviderFailure(t *testing.T) {
	recordCalls := 0
	provider := &stubPaymentProvider{createFn: func(_ context.Context, _ payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
		return payments.CheckoutSession{}, errors.New("stripe: rate limited")
	}}
	orders := &stubOrderRepo{recordSessionFn: func(_ context.Context, _ repositories.SessionRef) error {
		recordCalls++
		return nil
	}}

	svc := newTestCheckoutService(t, orders, provider)
	_, err := svc.CreateSession(context.Background(), CreateSessionCommand{Order: testCheckoutOrder()})
	if !errors.Is(err, ErrCheckoutSessionFailed) {
		t.Fatalf("expected ErrCheckoutSessionFailed, got %v", err)
	}
	if recordCalls != 0 {
		t.Fatalf("failed session must not be recorded")
	}
}

func TestCheckoutServiceCreateSessionSurvivesRecordFailure(t *testing.T) {
	orders := &stubOrderRepo{recordSessionFn: func(_ context.Context, _ repositories.SessionRef) error {
		return &fakeRepoError{msg: "store down", unavailable: true}
	}}

	svc := newTestCheckoutService(t, orders, &stubPaymentProvider{})
	result, err := svc.CreateSession(context.Background(), CreateSessionCommand{Order: testCheckoutOrder()})
	if err != nil {
		t.Fatalf("advisory record failure must not fail the session: %v", err)
	}
	if result.SessionID == "" {
		t.Fatalf("expected session result despite record failure")
	}
}

func TestCheckoutServiceCreateSessionRejectsEmptyOrder(t *testing.T) {
	svc := newTestCheckoutService(t, &stubOrderRepo{}, &stubPaymentProvider{})

	if _, err := svc.CreateSession(context.Background(), CreateSessionCommand{}); !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected ErrCheckoutInvalidInput for missing order, got %v", err)
	}
	order := testCheckoutOrder()
	order.Items = nil
	if _, err := svc.CreateSession(context.Background(), CreateSessionCommand{Order: order}); !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected ErrCheckoutInvalidInput for empty items, got %v", err)
	}
}

func TestCheckoutServiceRetrySession(t *testing.T) {
	order := testCheckoutOrder()
	order.PaymentStatus = domain.PaymentStatusFailed
	orders := &stubOrderRepo{findFn: func(_ context.Context, _ string) (domain.Order, error) { return order, nil }}

	svc := newTestCheckoutService(t, orders, &stubPaymentProvider{})
	result, err := svc.RetrySession(context.Background(), RetrySessionCommand{OrderID: "ord_1", UserID: "user-1"})
	if err != nil {
		t.Fatalf("RetrySession returned error: %v", err)
	}
	if result.OrderID != "ord_1" || result.RedirectURL == "" {
		t.Fatalf("unexpected retry result %+v", result)
	}
}

func TestCheckoutServiceRetrySessionAlreadyPaid(t *testing.T) {
	order := testCheckoutOrder()
	order.PaymentStatus = domain.PaymentStatusSucceeded
	orders := &stubOrderRepo{findFn: func(_ context.Context, _ string) (domain.Order, error) { return order, nil }}

	svc := newTestCheckoutService(t, orders, &stubPaymentProvider{})
	_, err := svc.RetrySession(context.Background(), RetrySessionCommand{OrderID: "ord_1", UserID: "user-1"})
	if !errors.Is(err, ErrCheckoutAlreadyPaid) {
		t.Fatalf("expected ErrCheckoutAlreadyPaid, got %v", err)
	}
}

func TestCheckoutServiceRetrySessionHidesForeignOrders(t *testing.T) {
	orders := &stubOrderRepo{findFn: func(_ context.Context, _ string) (domain.Order, error) {
		return domain.Order{ID: "ord_1", UserID: "someone-else"}, nil
	}}

	svc := newTestCheckoutService(t, orders, &stubPaymentProvider{})
	_, err := svc.RetrySession(context.Background(), RetrySessionCommand{OrderID: "ord_1", UserID: "user-1"})
	if !errors.Is(err, ErrCheckoutOrderNotFound) {
		t.Fatalf("expected ErrCheckoutOrderNotFound, got %v", err)
	}
}

func TestCheckoutServiceConfirmLanding(t *testing.T) {
	order := testCheckoutOrder()
	order.PaymentStatus = domain.PaymentStatusSucceeded
	orders := &stubOrderRepo{findFn: func(_ context.Context, orderID string) (domain.Order, error) {
		if orderID != "ord_1" {
			return domain.Order{}, &fakeRepoError{msg: "not found", notFound: true}
		}
		return order, nil
	}}

	svc := newTestCheckoutService(t, orders, &stubPaymentProvider{})
	got, err := svc.ConfirmLanding(context.Background(), LandingQuery{OrderID: "ord_1", UserID: "user-1"})
	if err != nil {
		t.Fatalf("ConfirmLanding returned error: %v", err)
	}
	if got.PaymentStatus != domain.PaymentStatusSucceeded {
		t.Fatalf("unexpected payment status %q", got.PaymentStatus)
	}

	if _, err := svc.ConfirmLanding(context.Background(), LandingQuery{OrderID: "ord_other", UserID: "user-1"}); !errors.Is(err, ErrCheckoutOrderNotFound) {
		t.Fatalf("expected ErrCheckoutOrderNotFound for unknown order, got %v", err)
	}
}
