package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/dentastore/api/internal/domain"
	"github.com/dentastore/api/internal/payments"
	"github.com/dentastore/api/internal/repositories"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutOrderNotFound indicates the order does not exist for the caller.
	ErrCheckoutOrderNotFound = errors.New("checkout: order not found")
	// ErrCheckoutAlreadyPaid indicates the order has already been paid for.
	ErrCheckoutAlreadyPaid = errors.New("checkout: order already paid")
	// ErrCheckoutSessionFailed indicates the payment provider rejected the session.
	ErrCheckoutSessionFailed = errors.New("checkout: session creation failed")
	// ErrCheckoutUnavailable indicates checkout dependencies are unreachable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
)

// CheckoutURLs builds the storefront landing URLs embedded in a session.
type CheckoutURLs struct {
	Success func(orderID string) string
	Cancel  func(orderID string) string
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Orders   repositories.OrderRepository
	Provider payments.Provider
	URLs     CheckoutURLs
	Clock    func() time.Time
	Logger   Logger
}

type checkoutService struct {
	orders   repositories.OrderRepository
	provider payments.Provider
	urls     CheckoutURLs
	now      func() time.Time
	logger   Logger
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("checkout service: payment provider is required")
	}
	if deps.URLs.Success == nil || deps.URLs.Cancel == nil {
		return nil, errors.New("checkout service: landing urls are required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		orders:   deps.Orders,
		provider: deps.Provider,
		urls:     deps.URLs,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateSession mints a hosted checkout session for the order snapshot. A
// provider failure leaves the order pending so payment can be retried.
func (s *checkoutService) CreateSession(ctx context.Context, cmd CreateSessionCommand) (CheckoutSessionResult, error) {
	if s == nil || s.provider == nil {
		return CheckoutSessionResult{}, ErrCheckoutUnavailable
	}
	order := cmd.Order
	if strings.TrimSpace(order.ID) == "" || len(order.Items) == 0 {
		return CheckoutSessionResult{}, ErrCheckoutInvalidInput
	}
	return s.mintSession(ctx, order)
}

// RetrySession mints a fresh session for an existing unpaid order.
func (s *checkoutService) RetrySession(ctx context.Context, cmd RetrySessionCommand) (CheckoutSessionResult, error) {
	if s == nil || s.orders == nil {
		return CheckoutSessionResult{}, ErrCheckoutUnavailable
	}
	order, err := s.ownedOrder(ctx, cmd.OrderID, cmd.UserID)
	if err != nil {
		return CheckoutSessionResult{}, err
	}
	if order.PaymentStatus == domain.PaymentStatusSucceeded {
		return CheckoutSessionResult{}, ErrCheckoutAlreadyPaid
	}
	return s.mintSession(ctx, order)
}

// ConfirmLanding resolves a success or cancel landing to the owner's order.
func (s *checkoutService) ConfirmLanding(ctx context.Context, query LandingQuery) (domain.Order, error) {
	if s == nil || s.orders == nil {
		return domain.Order{}, ErrCheckoutUnavailable
	}
	return s.ownedOrder(ctx, query.OrderID, query.UserID)
}

func (s *checkoutService) mintSession(ctx context.Context, order domain.Order) (CheckoutSessionResult, error) {
	items := make([]payments.CheckoutItem, len(order.Items))
	for i, item := range order.Items {
		items[i] = payments.CheckoutItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Amount:    item.UnitPrice,
			Quantity:  int64(item.Quantity),
			ImageURL:  item.ImageURL,
		}
	}

	session, err := s.provider.CreateCheckoutSession(ctx, payments.CheckoutSessionRequest{
		OrderID:    order.ID,
		UserID:     order.UserID,
		Currency:   order.Currency,
		Items:      items,
		SuccessURL: s.urls.Success(order.ID),
		CancelURL:  s.urls.Cancel(order.ID),
	})
	if err != nil {
		s.logger(ctx, "checkout.session.failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return CheckoutSessionResult{}, fmt.Errorf("%w: %v", ErrCheckoutSessionFailed, err)
	}

	// Recording the session reference is advisory; the webhook correlates
	// through the order id carried in the session metadata.
	if err := s.orders.RecordSession(ctx, repositories.SessionRef{
		OrderID:   order.ID,
		SessionID: session.ID,
		Now:       s.now(),
	}); err != nil {
		s.logger(ctx, "checkout.session.record_failed", map[string]any{
			"orderId":   order.ID,
			"sessionId": session.ID,
			"error":     err.Error(),
		})
	}

	s.logger(ctx, "checkout.session.created", map[string]any{
		"orderId":   order.ID,
		"sessionId": session.ID,
	})
	return CheckoutSessionResult{
		OrderID:     order.ID,
		SessionID:   session.ID,
		RedirectURL: session.URL,
	}, nil
}

func (s *checkoutService) ownedOrder(ctx context.Context, orderID, userID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	userID = strings.TrimSpace(userID)
	if orderID == "" || userID == "" {
		return domain.Order{}, ErrCheckoutInvalidInput
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isNotFound(err) {
			return domain.Order{}, ErrCheckoutOrderNotFound
		}
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			return domain.Order{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
		return domain.Order{}, err
	}
	if order.UserID != userID {
		// Not found, never forbidden; order existence is not leaked.
		return domain.Order{}, ErrCheckoutOrderNotFound
	}
	return order, nil
}
