package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/dentastore/api/internal/domain"
	"github.com/dentastore/api/internal/repositories"
)

const orderIDPrefix = "ord_"

var (
	// ErrOrderInvalidInput indicates the caller supplied invalid parameters.
	ErrOrderInvalidInput = errors.New("orders: invalid input")
	// ErrOrderInvalidAddress indicates the delivery address does not exist or
	// is not owned by the buyer.
	ErrOrderInvalidAddress = errors.New("orders: invalid delivery address")
	// ErrOrderCartEmpty indicates there is nothing to check out.
	ErrOrderCartEmpty = errors.New("orders: cart is empty")
	// ErrOrderNotFound indicates the order does not exist for the caller.
	ErrOrderNotFound = errors.New("orders: order not found")
	// ErrOrderInvalidStatus indicates an unknown or non-settable status.
	ErrOrderInvalidStatus = errors.New("orders: invalid status")
	// ErrOrderPaymentConflict indicates a payment transition contradicts the
	// already settled payment state.
	ErrOrderPaymentConflict = errors.New("orders: conflicting payment transition")
	// ErrOrderUnavailable indicates the ledger store is unreachable.
	ErrOrderUnavailable = errors.New("orders: unavailable")
)

// paymentTransition describes the order-side consequences of a payment event.
type paymentTransition struct {
	orderStatus  domain.OrderStatus
	restoreStock bool
}

// paymentTransitions is the whole payment state machine. A target status
// missing from this table is not a legal webhook-driven transition.
var paymentTransitions = map[domain.PaymentStatus]paymentTransition{
	domain.PaymentStatusSucceeded: {orderStatus: domain.OrderStatusPending},
	domain.PaymentStatusFailed:    {orderStatus: domain.OrderStatusCancelled, restoreStock: true},
}

// OrderServiceDeps wires the dependencies required by the order service.
type OrderServiceDeps struct {
	Orders    repositories.OrderRepository
	Products  repositories.ProductRepository
	Carts     repositories.CartRepository
	Addresses repositories.AddressRepository
	Stock     StockService
	Notifier  Notifier
	Currency  string
	Clock     func() time.Time
	Logger    Logger
	// IDGenerator overrides order id minting, for tests.
	IDGenerator func() string
}

type orderService struct {
	orders    repositories.OrderRepository
	products  repositories.ProductRepository
	carts     repositories.CartRepository
	addresses repositories.AddressRepository
	stock     StockService
	notifier  Notifier
	currency  string
	now       func() time.Time
	logger    Logger
	newID     func() string
}

// NewOrderService constructs an OrderService validating required dependencies.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("order service: address repository is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("order service: stock service is required")
	}

	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "usd"
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string {
			return orderIDPrefix + ulid.Make().String()
		}
	}

	return &orderService{
		orders:    deps.Orders,
		products:  deps.Products,
		carts:     deps.Carts,
		addresses: deps.Addresses,
		stock:     deps.Stock,
		notifier:  deps.Notifier,
		currency:  currency,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
		newID:  newID,
	}, nil
}

// Create places an order from the buyer's cart. A replayed idempotency key
// short-circuits to the original order before any validation or reservation,
// so retries succeed even after the cart was cleared or stock moved on. For
// fresh keys stock is reserved before the idempotent insert, and the
// reservation is compensated when the insert does not land.
func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (CreateOrderResult, error) {
	if s == nil || s.orders == nil {
		return CreateOrderResult{}, ErrOrderUnavailable
	}

	userID := strings.TrimSpace(cmd.UserID)
	addressID := strings.TrimSpace(cmd.AddressID)
	idempotencyKey := strings.TrimSpace(cmd.IdempotencyKey)
	if userID == "" || addressID == "" || idempotencyKey == "" {
		return CreateOrderResult{}, ErrOrderInvalidInput
	}
	method := cmd.PaymentMethod
	if method == "" {
		method = domain.PaymentMethodStripe
	}
	if method != domain.PaymentMethodStripe {
		return CreateOrderResult{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, method)
	}

	existing, err := s.orders.FindByIdempotencyKey(ctx, idempotencyKey)
	if err == nil {
		s.logger(ctx, "orders.create.idempotent_replay", map[string]any{
			"orderId":        existing.ID,
			"idempotencyKey": idempotencyKey,
		})
		return CreateOrderResult{Order: existing, Created: false}, nil
	}
	if !isNotFound(err) {
		return CreateOrderResult{}, s.translateRepoError(err)
	}

	if _, err := s.addresses.FindOwned(ctx, userID, addressID); err != nil {
		if isNotFound(err) {
			return CreateOrderResult{}, ErrOrderInvalidAddress
		}
		return CreateOrderResult{}, s.translateRepoError(err)
	}

	cartItems, err := s.carts.GetForCheckout(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return CreateOrderResult{}, ErrOrderCartEmpty
		}
		return CreateOrderResult{}, s.translateRepoError(err)
	}

	items := make([]domain.OrderLineItem, 0, len(cartItems))
	lines := make([]StockLine, 0, len(cartItems))
	var subtotal int64
	for _, cartItem := range cartItems {
		product := cartItem.Product
		// An admin can pull a product from sale while it still has stock;
		// the availability flag is authoritative, not the count.
		if !product.Available() {
			return CreateOrderResult{}, &StockFault{
				Sentinel:  ErrStockProductUnavailable,
				ProductID: product.ID,
				Name:      product.Name,
				Available: product.Stock,
				Requested: cartItem.Quantity,
			}
		}
		item := domain.OrderLineItem{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  cartItem.Quantity,
		}
		if len(product.Images) > 0 {
			item.ImageURL = product.Images[0]
		}
		items = append(items, item)
		lines = append(lines, StockLine{ProductID: product.ID, Name: product.Name, Quantity: cartItem.Quantity})
		subtotal += item.Total()
	}

	now := s.now()
	order := domain.Order{
		ID:             s.newID(),
		UserID:         userID,
		Items:          items,
		AddressID:      addressID,
		PaymentMethod:  method,
		PaymentStatus:  domain.PaymentStatusPending,
		Status:         domain.OrderStatusPending,
		Subtotal:       subtotal,
		Total:          subtotal,
		Currency:       s.currency,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.stock.Reserve(ctx, lines); err != nil {
		return CreateOrderResult{}, err
	}

	result, err := s.orders.CreateIdempotent(ctx, repositories.CreateOrderRequest{Order: order, Now: now})
	if err != nil {
		s.compensateReservation(ctx, order.ID, lines)
		return CreateOrderResult{}, s.translateRepoError(err)
	}
	if !result.Created {
		// A concurrent submission claimed the key between the lookup and
		// the insert; the winner's order already holds its reservation.
		s.compensateReservation(ctx, result.Order.ID, lines)
		s.logger(ctx, "orders.create.idempotent_replay", map[string]any{
			"orderId":        result.Order.ID,
			"idempotencyKey": idempotencyKey,
		})
		return CreateOrderResult{Order: result.Order, Created: false}, nil
	}

	s.logger(ctx, "orders.created", map[string]any{
		"orderId": order.ID,
		"userId":  userID,
		"total":   order.Total,
		"items":   len(order.Items),
	})

	s.runBestEffort(ctx, order.ID,
		sideEffect{name: "cart.clear", run: func(ctx context.Context) error {
			return s.carts.Clear(ctx, userID)
		}},
		sideEffect{name: "notify.user", run: func(ctx context.Context) error {
			return s.notify(ctx, Notification{
				Title:    "Order placed",
				Body:     fmt.Sprintf("Your order %s has been placed.", order.ID),
				UserID:   userID,
				Metadata: map[string]string{"orderId": order.ID},
			})
		}},
		sideEffect{name: "notify.admins", run: func(ctx context.Context) error {
			return s.notify(ctx, Notification{
				Title:    "New order",
				Body:     fmt.Sprintf("Order %s is awaiting payment.", order.ID),
				Role:     NotificationRoleAdmin,
				Metadata: map[string]string{"orderId": order.ID},
			})
		}},
	)

	return CreateOrderResult{Order: order, Created: true}, nil
}

func (s *orderService) Get(ctx context.Context, query GetOrderQuery) (OrderDetails, error) {
	if s == nil || s.orders == nil {
		return OrderDetails{}, ErrOrderUnavailable
	}
	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return OrderDetails{}, ErrOrderInvalidInput
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isNotFound(err) {
			return OrderDetails{}, ErrOrderNotFound
		}
		return OrderDetails{}, s.translateRepoError(err)
	}
	if userID := strings.TrimSpace(query.UserID); userID != "" && order.UserID != userID {
		// Existence of other users' orders is not leaked.
		return OrderDetails{}, ErrOrderNotFound
	}

	views, err := s.projectLineItems(ctx, []domain.Order{order})
	if err != nil {
		return OrderDetails{}, err
	}
	return OrderDetails{Order: order, Items: views[order.ID]}, nil
}

func (s *orderService) List(ctx context.Context, query ListOrdersQuery) (domain.Page[OrderDetails], error) {
	if s == nil || s.orders == nil {
		return domain.Page[OrderDetails]{}, ErrOrderUnavailable
	}
	if query.Status != nil {
		if _, ok := domain.ValidOrderStatuses[*query.Status]; !ok {
			return domain.Page[OrderDetails]{}, fmt.Errorf("%w: %q", ErrOrderInvalidStatus, *query.Status)
		}
	}

	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		Status: query.Status,
		UserID: strings.TrimSpace(query.UserID),
		Search: strings.TrimSpace(query.Search),
		Page:   query.Page,
		Limit:  query.Limit,
	})
	if err != nil {
		return domain.Page[OrderDetails]{}, s.translateRepoError(err)
	}

	views, err := s.projectLineItems(ctx, page.Items)
	if err != nil {
		return domain.Page[OrderDetails]{}, err
	}

	details := make([]OrderDetails, len(page.Items))
	for i, order := range page.Items {
		details[i] = OrderDetails{Order: order, Items: views[order.ID]}
	}
	return domain.Page[OrderDetails]{
		Items:      details,
		Total:      page.Total,
		PageNumber: page.PageNumber,
		PageSize:   page.PageSize,
	}, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (domain.Order, error) {
	if s == nil || s.orders == nil {
		return domain.Order{}, ErrOrderUnavailable
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, ErrOrderInvalidInput
	}
	if _, ok := domain.FulfillmentStatuses[cmd.Status]; !ok {
		return domain.Order{}, fmt.Errorf("%w: %q", ErrOrderInvalidStatus, cmd.Status)
	}

	order, err := s.orders.UpdateStatus(ctx, repositories.UpdateStatusRequest{
		OrderID:        orderID,
		Status:         cmd.Status,
		TrackingNumber: cmd.TrackingNumber,
		Now:            s.now(),
	})
	if err != nil {
		if isNotFound(err) {
			return domain.Order{}, ErrOrderNotFound
		}
		return domain.Order{}, s.translateRepoError(err)
	}

	s.logger(ctx, "orders.status_updated", map[string]any{
		"orderId": order.ID,
		"status":  order.Status,
	})
	s.runBestEffort(ctx, order.ID,
		sideEffect{name: "notify.user", run: func(ctx context.Context) error {
			return s.notify(ctx, Notification{
				Title:    "Order update",
				Body:     fmt.Sprintf("Your order %s is now %s.", order.ID, order.Status),
				UserID:   order.UserID,
				Metadata: map[string]string{"orderId": order.ID, "status": string(order.Status)},
			})
		}},
	)
	return order, nil
}

// UpdatePaymentStatus consults the transition table and applies the payment
// outcome. A redelivered event finds the order already in the target status
// and is acknowledged without side effects.
func (s *orderService) UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (domain.Order, error) {
	if s == nil || s.orders == nil {
		return domain.Order{}, ErrOrderUnavailable
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, ErrOrderInvalidInput
	}
	transition, ok := paymentTransitions[cmd.Target]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: no transition to %q", ErrOrderInvalidInput, cmd.Target)
	}

	result, err := s.orders.UpdatePayment(ctx, repositories.UpdatePaymentRequest{
		OrderID:         orderID,
		PaymentStatus:   cmd.Target,
		OrderStatus:     transition.orderStatus,
		PaymentIntentID: strings.TrimSpace(cmd.PaymentIntentID),
		Now:             s.now(),
	})
	if err != nil {
		if isNotFound(err) {
			return domain.Order{}, ErrOrderNotFound
		}
		if isConflict(err) {
			return domain.Order{}, fmt.Errorf("%w: %v", ErrOrderPaymentConflict, err)
		}
		return domain.Order{}, s.translateRepoError(err)
	}
	order := result.Order
	if !result.Applied {
		s.logger(ctx, "orders.payment_event_redelivered", map[string]any{
			"orderId":       order.ID,
			"paymentStatus": order.PaymentStatus,
		})
		return order, nil
	}

	s.logger(ctx, "orders.payment_updated", map[string]any{
		"orderId":       order.ID,
		"paymentStatus": order.PaymentStatus,
		"status":        order.Status,
	})

	effects := make([]sideEffect, 0, 2)
	if transition.restoreStock {
		effects = append(effects, sideEffect{name: "stock.restore", run: func(ctx context.Context) error {
			_, err := s.stock.Restore(ctx, orderStockLines(order))
			return err
		}})
	}
	effects = append(effects, sideEffect{name: "notify.user", run: func(ctx context.Context) error {
		return s.notify(ctx, paymentNotification(order))
	}})
	s.runBestEffort(ctx, order.ID, effects...)

	return order, nil
}

// projectLineItems resolves every referenced product once and tags each line
// with live details only when the catalog still has the product.
func (s *orderService) projectLineItems(ctx context.Context, orders []domain.Order) (map[string][]domain.LineItemView, error) {
	productIDs := make([]string, 0, len(orders)*2)
	for _, order := range orders {
		for _, item := range order.Items {
			productIDs = append(productIDs, item.ProductID)
		}
	}

	products, err := s.products.FindByIDs(ctx, productIDs)
	if err != nil {
		return nil, s.translateRepoError(err)
	}

	views := make(map[string][]domain.LineItemView, len(orders))
	for _, order := range orders {
		items := make([]domain.LineItemView, len(order.Items))
		for i, item := range order.Items {
			view := domain.LineItemView{Snapshot: item}
			if product, ok := products[item.ProductID]; ok {
				p := product
				view.Product = &p
			}
			items[i] = view
		}
		views[order.ID] = items
	}
	return views, nil
}

type sideEffect struct {
	name string
	run  func(ctx context.Context) error
}

// runBestEffort executes post-commit side effects; failures are logged and
// never surfaced to the caller.
func (s *orderService) runBestEffort(ctx context.Context, orderID string, effects ...sideEffect) {
	for _, effect := range effects {
		if err := effect.run(ctx); err != nil {
			s.logger(ctx, "orders.side_effect_failed", map[string]any{
				"orderId": orderID,
				"effect":  effect.name,
				"error":   err.Error(),
			})
		}
	}
}

// compensateReservation undoes a reservation whose order insert did not land.
func (s *orderService) compensateReservation(ctx context.Context, orderID string, lines []StockLine) {
	if _, err := s.stock.Restore(ctx, lines); err != nil {
		s.logger(ctx, "orders.reservation_compensation_failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) notify(ctx context.Context, notification Notification) error {
	if s.notifier == nil {
		return nil
	}
	return s.notifier.Notify(ctx, notification)
}

func orderStockLines(order domain.Order) []StockLine {
	lines := make([]StockLine, len(order.Items))
	for i, item := range order.Items {
		lines[i] = StockLine{ProductID: item.ProductID, Name: item.Name, Quantity: item.Quantity}
	}
	return lines
}

func paymentNotification(order domain.Order) Notification {
	metadata := map[string]string{"orderId": order.ID, "paymentStatus": string(order.PaymentStatus)}
	if order.PaymentStatus == domain.PaymentStatusSucceeded {
		return Notification{
			Title:    "Payment received",
			Body:     fmt.Sprintf("Payment for order %s was received. We are preparing your items.", order.ID),
			UserID:   order.UserID,
			Metadata: metadata,
		}
	}
	return Notification{
		Title:    "Payment failed",
		Body:     fmt.Sprintf("Payment for order %s failed and the order was cancelled.", order.ID),
		UserID:   order.UserID,
		Metadata: metadata,
	}
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func (s *orderService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}
	return err
}
