package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	domain "github.com/dentastore/api/internal/domain"
	"github.com/dentastore/api/internal/platform/auth"
	"github.com/dentastore/api/internal/platform/httpx"
	"github.com/dentastore/api/internal/platform/pagination"
	"github.com/dentastore/api/internal/services"
)

const (
	maxOrderBodySize = 16 * 1024
	// idempotencyKeyHeader wins over the body field; absent both, the
	// server mints a key so a lone submission is still uniquely claimed.
	idempotencyKeyHeader = "Idempotency-Key"
)

type createOrderRequest struct {
	AddressID      string `json:"addressId"`
	PaymentMethod  string `json:"paymentMethod"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type updateOrderStatusRequest struct {
	Status         string  `json:"status"`
	TrackingNumber *string `json:"trackingNumber"`
}

type checkoutSessionResponse struct {
	SessionID   string `json:"sessionId"`
	RedirectURL string `json:"redirectUrl"`
}

type createOrderResponse struct {
	Order    orderResponse            `json:"order"`
	Checkout *checkoutSessionResponse `json:"checkout,omitempty"`
}

// OrderHandlers exposes the order ledger endpoints.
type OrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	checkout services.CheckoutService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, checkout services.CheckoutService) *OrderHandlers {
	return &OrderHandlers{
		authn:    authn,
		orders:   orders,
		checkout: checkout,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/", h.createOrder)
	r.With(auth.RequireRole(auth.RoleAdmin)).Get("/", h.listOrders)
	r.Get("/my-orders", h.listMyOrders)
	r.Get("/{orderID}", h.getOrder)
	r.With(auth.RequireRole(auth.RoleAdmin)).Patch("/{orderID}/status", h.updateStatus)
	r.Post("/{orderID}/retry-payment", h.retryPayment)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return
	}
	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if idempotencyKey == "" {
		idempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	}
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	result, err := h.orders.Create(ctx, services.CreateOrderCommand{
		UserID:         identity.UID,
		AddressID:      req.AddressID,
		PaymentMethod:  domain.PaymentMethod(strings.TrimSpace(req.PaymentMethod)),
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	if !result.Created {
		writeJSONResponse(w, http.StatusOK, createOrderResponse{
			Order: newOrderResponse(result.Order, nil),
		})
		return
	}

	session, err := h.checkout.CreateSession(ctx, services.CreateSessionCommand{Order: result.Order})
	if err != nil {
		// The order stands; payment can be retried once the provider
		// recovers.
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, createOrderResponse{
		Order: newOrderResponse(result.Order, nil),
		Checkout: &checkoutSessionResponse{
			SessionID:   session.SessionID,
			RedirectURL: session.RedirectURL,
		},
	})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "")
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	h.list(w, r, identity.UID)
}

func (h *OrderHandlers) list(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()
	query := r.URL.Query()

	params, err := pagination.Parse(query)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	listQuery := services.ListOrdersQuery{
		UserID: userID,
		Search: strings.TrimSpace(query.Get("search")),
		Page:   params.Page,
		Limit:  params.Limit,
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status := domain.OrderStatus(raw)
		listQuery.Status = &status
	}

	page, err := h.orders.List(ctx, listQuery)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newOrderPageResponse(page))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	query := services.GetOrderQuery{OrderID: chi.URLParam(r, "orderID")}
	if !identity.IsAdmin() {
		query.UserID = identity.UID
	}

	details, err := h.orders.Get(ctx, query)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newOrderResponse(details.Order, details.Items))
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return
	}
	var req updateOrderStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID:        chi.URLParam(r, "orderID"),
		Status:         domain.OrderStatus(strings.TrimSpace(req.Status)),
		TrackingNumber: req.TrackingNumber,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newOrderResponse(order, nil))
}

func (h *OrderHandlers) retryPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	session, err := h.checkout.RetrySession(ctx, services.RetrySessionCommand{
		OrderID: chi.URLParam(r, "orderID"),
		UserID:  identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, checkoutSessionResponse{
		SessionID:   session.SessionID,
		RedirectURL: session.RedirectURL,
	})
}
