package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dentastore/api/internal/services"
)

// maxWebhookBodySize bounds provider payloads; Stripe events stay well below
// this even with expanded objects.
const maxWebhookBodySize = 1 << 20

const stripeSignatureHeader = "Stripe-Signature"

type webhookResponse struct {
	Received bool `json:"received"`
}

// WebhookHandlers receives payment provider callbacks. The endpoint always
// answers 200 so the provider does not retry events we have classified;
// `received` reports whether reconciliation actually happened.
type WebhookHandlers struct {
	webhooks services.WebhookService
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(webhooks services.WebhookService, logger func(ctx context.Context, event string, fields map[string]any)) *WebhookHandlers {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &WebhookHandlers{
		webhooks: webhooks,
		logger:   logger,
	}
}

// Routes registers the /webhook endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.stripe)
}

func (h *WebhookHandlers) stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		h.logger(ctx, "webhook.body_rejected", map[string]any{"error": err.Error()})
		writeJSONResponse(w, http.StatusOK, webhookResponse{Received: false})
		return
	}

	if err := h.webhooks.HandleEvent(ctx, payload, r.Header.Get(stripeSignatureHeader)); err != nil {
		h.logger(ctx, "webhook.processing_failed", map[string]any{"error": err.Error()})
		writeJSONResponse(w, http.StatusOK, webhookResponse{Received: false})
		return
	}

	writeJSONResponse(w, http.StatusOK, webhookResponse{Received: true})
}
