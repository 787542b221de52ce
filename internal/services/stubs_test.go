package services

import (
	"context"

	"github.com/dentastore/api/internal/domain"
	"github.com/dentastore/api/internal/payments"
	"github.com/dentastore/api/internal/repositories"
)

type fakeRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *fakeRepoError) Error() string       { return e.msg }
func (e *fakeRepoError) IsNotFound() bool    { return e.notFound }
func (e *fakeRepoError) IsConflict() bool    { return e.conflict }
func (e *fakeRepoError) IsUnavailable() bool { return e.unavailable }

type stubOrderRepo struct {
	createFn        func(ctx context.Context, req repositories.CreateOrderRequest) (repositories.CreateOrderResult, error)
	findByKeyFn     func(ctx context.Context, idempotencyKey string) (domain.Order, error)
	findFn          func(ctx context.Context, orderID string) (domain.Order, error)
	listFn          func(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error)
	updateStatusFn  func(ctx context.Context, req repositories.UpdateStatusRequest) (domain.Order, error)
	updatePaymentFn func(ctx context.Context, req repositories.UpdatePaymentRequest) (repositories.UpdatePaymentResult, error)
	recordSessionFn func(ctx context.Context, ref repositories.SessionRef) error
}

func (s *stubOrderRepo) CreateIdempotent(ctx context.Context, req repositories.CreateOrderRequest) (repositories.CreateOrderResult, error) {
	if s.createFn != nil {
		return s.createFn(ctx, req)
	}
	return repositories.CreateOrderResult{Order: req.Order, Created: true}, nil
}

func (s *stubOrderRepo) FindByIdempotencyKey(ctx context.Context, idempotencyKey string) (domain.Order, error) {
	if s.findByKeyFn != nil {
		return s.findByKeyFn(ctx, idempotencyKey)
	}
	return domain.Order{}, &fakeRepoError{msg: "key unclaimed", notFound: true}
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, &fakeRepoError{msg: "not found", notFound: true}
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.Page[domain.Order]{}, nil
}

func (s *stubOrderRepo) UpdateStatus(ctx context.Context, req repositories.UpdateStatusRequest) (domain.Order, error) {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, req)
	}
	return domain.Order{}, &fakeRepoError{msg: "not found", notFound: true}
}

func (s *stubOrderRepo) UpdatePayment(ctx context.Context, req repositories.UpdatePaymentRequest) (repositories.UpdatePaymentResult, error) {
	if s.updatePaymentFn != nil {
		return s.updatePaymentFn(ctx, req)
	}
	return repositories.UpdatePaymentResult{}, &fakeRepoError{msg: "not found", notFound: true}
}

func (s *stubOrderRepo) RecordSession(ctx context.Context, ref repositories.SessionRef) error {
	if s.recordSessionFn != nil {
		return s.recordSessionFn(ctx, ref)
	}
	return nil
}

type stubProductRepo struct {
	findFn    func(ctx context.Context, productID string) (domain.Product, error)
	findAllFn func(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	adjustFn  func(ctx context.Context, req repositories.StockAdjustmentRequest) (repositories.StockAdjustmentResult, error)
}

func (s *stubProductRepo) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findFn != nil {
		return s.findFn(ctx, productID)
	}
	return domain.Product{}, &fakeRepoError{msg: "not found", notFound: true}
}

func (s *stubProductRepo) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if s.findAllFn != nil {
		return s.findAllFn(ctx, productIDs)
	}
	return map[string]domain.Product{}, nil
}

func (s *stubProductRepo) AdjustStock(ctx context.Context, req repositories.StockAdjustmentRequest) (repositories.StockAdjustmentResult, error) {
	if s.adjustFn != nil {
		return s.adjustFn(ctx, req)
	}
	return repositories.StockAdjustmentResult{}, nil
}

type stubCartRepo struct {
	getFn   func(ctx context.Context, userID string) ([]domain.CartItem, error)
	clearFn func(ctx context.Context, userID string) error
}

func (s *stubCartRepo) GetForCheckout(ctx context.Context, userID string) ([]domain.CartItem, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return nil, &fakeRepoError{msg: "cart empty", notFound: true}
}

func (s *stubCartRepo) Clear(ctx context.Context, userID string) error {
	if s.clearFn != nil {
		return s.clearFn(ctx, userID)
	}
	return nil
}

type stubAddressRepo struct {
	findOwnedFn func(ctx context.Context, userID, addressID string) (domain.Address, error)
}

func (s *stubAddressRepo) FindOwned(ctx context.Context, userID, addressID string) (domain.Address, error) {
	if s.findOwnedFn != nil {
		return s.findOwnedFn(ctx, userID, addressID)
	}
	return domain.Address{ID: addressID, UserID: userID}, nil
}

type stubStock struct {
	reserveFn func(ctx context.Context, lines []StockLine) error
	restoreFn func(ctx context.Context, lines []StockLine) ([]string, error)

	reserved [][]StockLine
	restored [][]StockLine
}

func (s *stubStock) Reserve(ctx context.Context, lines []StockLine) error {
	s.reserved = append(s.reserved, lines)
	if s.reserveFn != nil {
		return s.reserveFn(ctx, lines)
	}
	return nil
}

func (s *stubStock) Restore(ctx context.Context, lines []StockLine) ([]string, error) {
	s.restored = append(s.restored, lines)
	if s.restoreFn != nil {
		return s.restoreFn(ctx, lines)
	}
	return nil, nil
}

type captureNotifier struct {
	notifications []Notification
	err           error
}

func (c *captureNotifier) Notify(_ context.Context, notification Notification) error {
	c.notifications = append(c.notifications, notification)
	return c.err
}

type stubPaymentProvider struct {
	createFn func(ctx context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	parseFn  func(payload []byte, signature string) (payments.WebhookEvent, error)
}

func (s *stubPaymentProvider) CreateCheckoutSession(ctx context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	if s.createFn != nil {
		return s.createFn(ctx, req)
	}
	return payments.CheckoutSession{ID: "cs_test", URL: "https://checkout.example/cs_test"}, nil
}

func (s *stubPaymentProvider) ParseWebhook(payload []byte, signature string) (payments.WebhookEvent, error) {
	if s.parseFn != nil {
		return s.parseFn(payload, signature)
	}
	return payments.WebhookEvent{Kind: payments.EventKindUnhandled}, nil
}

type stubOrderService struct {
	updatePaymentFn func(ctx context.Context, cmd UpdatePaymentStatusCommand) (domain.Order, error)

	commands []UpdatePaymentStatusCommand
}

func (s *stubOrderService) Create(context.Context, CreateOrderCommand) (CreateOrderResult, error) {
	return CreateOrderResult{}, nil
}

func (s *stubOrderService) Get(context.Context, GetOrderQuery) (OrderDetails, error) {
	return OrderDetails{}, ErrOrderNotFound
}

func (s *stubOrderService) List(context.Context, ListOrdersQuery) (domain.Page[OrderDetails], error) {
	return domain.Page[OrderDetails]{}, nil
}

func (s *stubOrderService) UpdateStatus(context.Context, UpdateOrderStatusCommand) (domain.Order, error) {
	return domain.Order{}, ErrOrderNotFound
}

func (s *stubOrderService) UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (domain.Order, error) {
	s.commands = append(s.commands, cmd)
	if s.updatePaymentFn != nil {
		return s.updatePaymentFn(ctx, cmd)
	}
	return domain.Order{ID: cmd.OrderID, PaymentStatus: cmd.Target}, nil
}
