package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dentastore/api/internal/platform/auth"
	"github.com/dentastore/api/internal/platform/httpx"
	"github.com/dentastore/api/internal/services"
)

type landingResponse struct {
	Outcome       string `json:"outcome"`
	OrderID       string `json:"orderId"`
	PaymentStatus string `json:"paymentStatus"`
	Status        string `json:"status"`
}

// CheckoutHandlers exposes the storefront landing endpoints Stripe redirects
// back to. Payment state is never mutated here; the webhook is the only
// writer.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs a new CheckoutHandlers instance.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes registers the /checkout endpoints.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/success", h.success)
	r.Get("/cancel", h.cancel)
}

func (h *CheckoutHandlers) success(w http.ResponseWriter, r *http.Request) {
	h.landing(w, r, "success")
}

func (h *CheckoutHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	h.landing(w, r, "cancelled")
}

func (h *CheckoutHandlers) landing(w http.ResponseWriter, r *http.Request, outcome string) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(r.URL.Query().Get("orderId"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "orderId query parameter is required", http.StatusBadRequest))
		return
	}

	order, err := h.checkout.ConfirmLanding(ctx, services.LandingQuery{
		OrderID: orderID,
		UserID:  identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, landingResponse{
		Outcome:       outcome,
		OrderID:       order.ID,
		PaymentStatus: string(order.PaymentStatus),
		Status:        string(order.Status),
	})
}
