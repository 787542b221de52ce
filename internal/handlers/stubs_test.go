package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/dentastore/api/internal/domain"
	"github.com/dentastore/api/internal/platform/auth"
	"github.com/dentastore/api/internal/services"
)

const (
	testJWTSecret = "test-signing-secret"
	testJWTIssuer = "dentastore-test"
)

func testAuthenticator(t *testing.T) *auth.Authenticator {
	t.Helper()
	authn, err := auth.NewAuthenticator(testJWTSecret, testJWTIssuer)
	if err != nil {
		t.Fatalf("NewAuthenticator returned error: %v", err)
	}
	return authn
}

func mintToken(t *testing.T, uid string, roles ...string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   uid,
		"iss":   testJWTIssuer,
		"email": uid + "@clinic.example",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	if len(roles) > 0 {
		claims["roles"] = roles
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func authedRequest(t *testing.T, method, target, body, token string) *http.Request {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

type stubOrderService struct {
	createFn       func(ctx context.Context, cmd services.CreateOrderCommand) (services.CreateOrderResult, error)
	getFn          func(ctx context.Context, query services.GetOrderQuery) (services.OrderDetails, error)
	listFn         func(ctx context.Context, query services.ListOrdersQuery) (domain.Page[services.OrderDetails], error)
	updateStatusFn func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (domain.Order, error)
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (services.CreateOrderResult, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.CreateOrderResult{}, services.ErrOrderInvalidInput
}

func (s *stubOrderService) Get(ctx context.Context, query services.GetOrderQuery) (services.OrderDetails, error) {
	if s.getFn != nil {
		return s.getFn(ctx, query)
	}
	return services.OrderDetails{}, services.ErrOrderNotFound
}

func (s *stubOrderService) List(ctx context.Context, query services.ListOrdersQuery) (domain.Page[services.OrderDetails], error) {
	if s.listFn != nil {
		return s.listFn(ctx, query)
	}
	return domain.Page[services.OrderDetails]{}, nil
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (domain.Order, error) {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, cmd)
	}
	return domain.Order{}, services.ErrOrderNotFound
}

func (s *stubOrderService) UpdatePaymentStatus(context.Context, services.UpdatePaymentStatusCommand) (domain.Order, error) {
	return domain.Order{}, services.ErrOrderNotFound
}

type stubCheckoutService struct {
	createSessionFn  func(ctx context.Context, cmd services.CreateSessionCommand) (services.CheckoutSessionResult, error)
	retrySessionFn   func(ctx context.Context, cmd services.RetrySessionCommand) (services.CheckoutSessionResult, error)
	confirmLandingFn func(ctx context.Context, query services.LandingQuery) (domain.Order, error)
}

func (s *stubCheckoutService) CreateSession(ctx context.Context, cmd services.CreateSessionCommand) (services.CheckoutSessionResult, error) {
	if s.createSessionFn != nil {
		return s.createSessionFn(ctx, cmd)
	}
	return services.CheckoutSessionResult{
		OrderID:     cmd.Order.ID,
		SessionID:   "cs_test",
		RedirectURL: "https://checkout.stripe.example/cs_test",
	}, nil
}

func (s *stubCheckoutService) RetrySession(ctx context.Context, cmd services.RetrySessionCommand) (services.CheckoutSessionResult, error) {
	if s.retrySessionFn != nil {
		return s.retrySessionFn(ctx, cmd)
	}
	return services.CheckoutSessionResult{}, services.ErrCheckoutOrderNotFound
}

func (s *stubCheckoutService) ConfirmLanding(ctx context.Context, query services.LandingQuery) (domain.Order, error) {
	if s.confirmLandingFn != nil {
		return s.confirmLandingFn(ctx, query)
	}
	return domain.Order{}, services.ErrCheckoutOrderNotFound
}

type stubWebhookService struct {
	handleFn func(ctx context.Context, payload []byte, signature string) error
}

func (s *stubWebhookService) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	if s.handleFn != nil {
		return s.handleFn(ctx, payload, signature)
	}
	return nil
}

func mountOrderRoutes(h *OrderHandlers) http.Handler {
	r := chi.NewRouter()
	r.Route("/orders", h.Routes)
	return r
}

func mountCheckoutRoutes(h *CheckoutHandlers) http.Handler {
	r := chi.NewRouter()
	r.Route("/checkout", h.Routes)
	return r
}

func mountWebhookRoutes(h *WebhookHandlers) http.Handler {
	r := chi.NewRouter()
	r.Route("/webhook", h.Routes)
	return r
}
