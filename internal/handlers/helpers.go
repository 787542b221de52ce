package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	domain "github.com/dentastore/api/internal/domain"
	"github.com/dentastore/api/internal/platform/httpx"
	"github.com/dentastore/api/internal/services"
)

var (
	errBodyTooLarge = errors.New("request body exceeds limit")
	errEmptyBody    = errors.New("request body is empty")
)

// readLimitedBody reads the request body up to limit bytes, rejecting larger
// payloads instead of truncating them.
func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	if len(data) == 0 {
		return nil, errEmptyBody
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := formatTime(*t)
	return &formatted
}

// minorToDecimal converts minor currency units to the decimal amount the
// storefront renders.
func minorToDecimal(v int64) float64 {
	return float64(v) / 100
}

// writeServiceError maps service sentinels onto the error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var fault *services.StockFault
	if errors.As(err, &fault) {
		code := "insufficient_stock"
		message := "insufficient stock for " + fault.Name
		if errors.Is(err, services.ErrStockProductMissing) || errors.Is(err, services.ErrStockProductUnavailable) {
			code = "product_unavailable"
			message = "product is no longer available"
		}
		httpx.WriteError(ctx, w, httpx.NewError(code, message, http.StatusConflict).WithDetails(map[string]any{
			"productId": fault.ProductID,
			"name":      fault.Name,
			"available": fault.Available,
			"requested": fault.Requested,
		}))
		return
	}

	switch {
	case errors.Is(err, services.ErrOrderInvalidAddress):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_address", "delivery address not found", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderCartEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart is empty", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidStatus):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status", "unknown order status", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrStockInvalidInput),
		errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid request", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrCheckoutOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutAlreadyPaid):
		httpx.WriteError(ctx, w, httpx.NewError("order_already_paid", "order has already been paid", http.StatusConflict))
	case errors.Is(err, services.ErrOrderPaymentConflict):
		httpx.WriteError(ctx, w, httpx.NewError("payment_conflict", "payment state conflict", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutSessionFailed):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_failed", "payment provider rejected the checkout session", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal error", http.StatusInternalServerError))
	}
}

type lineItemResponse struct {
	ProductID string               `json:"productId"`
	Name      string               `json:"name"`
	UnitPrice float64              `json:"unitPrice"`
	Quantity  int                  `json:"qty"`
	ImageURL  string               `json:"imageUrl,omitempty"`
	Total     float64              `json:"total"`
	Product   *productItemResponse `json:"product,omitempty"`
}

type productItemResponse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Price        float64  `json:"price"`
	Stock        int      `json:"stock"`
	Availability string   `json:"availability"`
	Images       []string `json:"images,omitempty"`
}

type orderResponse struct {
	ID             string             `json:"id"`
	UserID         string             `json:"userId"`
	Items          []lineItemResponse `json:"items"`
	AddressID      string             `json:"addressId"`
	PaymentMethod  string             `json:"paymentMethod"`
	PaymentStatus  string             `json:"paymentStatus"`
	Status         string             `json:"status"`
	Subtotal       float64            `json:"subtotal"`
	Total          float64            `json:"total"`
	Currency       string             `json:"currency"`
	TrackingNumber string             `json:"trackingNumber,omitempty"`
	CreatedAt      string             `json:"createdAt"`
	UpdatedAt      string             `json:"updatedAt"`
	PaidAt         *string            `json:"paidAt,omitempty"`
	CanceledAt     *string            `json:"canceledAt,omitempty"`
}

func newOrderResponse(order domain.Order, views []domain.LineItemView) orderResponse {
	items := make([]lineItemResponse, len(order.Items))
	for i, item := range order.Items {
		line := lineItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: minorToDecimal(item.UnitPrice),
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
			Total:     minorToDecimal(item.Total()),
		}
		if i < len(views) && views[i].Product != nil {
			product := views[i].Product
			line.Product = &productItemResponse{
				ID:           product.ID,
				Name:         product.Name,
				Price:        minorToDecimal(product.Price),
				Stock:        product.Stock,
				Availability: string(product.Availability),
				Images:       product.Images,
			}
		}
		items[i] = line
	}
	return orderResponse{
		ID:             order.ID,
		UserID:         order.UserID,
		Items:          items,
		AddressID:      order.AddressID,
		PaymentMethod:  string(order.PaymentMethod),
		PaymentStatus:  string(order.PaymentStatus),
		Status:         string(order.Status),
		Subtotal:       minorToDecimal(order.Subtotal),
		Total:          minorToDecimal(order.Total),
		Currency:       order.Currency,
		TrackingNumber: order.TrackingNumber,
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
		PaidAt:         formatTimePtr(order.PaidAt),
		CanceledAt:     formatTimePtr(order.CanceledAt),
	}
}

type pageMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

type orderPageResponse struct {
	Items []orderResponse `json:"items"`
	Meta  pageMeta        `json:"meta"`
}

func newOrderPageResponse(page domain.Page[services.OrderDetails]) orderPageResponse {
	items := make([]orderResponse, len(page.Items))
	for i, details := range page.Items {
		items[i] = newOrderResponse(details.Order, details.Items)
	}
	return orderPageResponse{
		Items: items,
		Meta: pageMeta{
			Page:       page.PageNumber,
			Limit:      page.PageSize,
			Total:      page.Total,
			TotalPages: page.TotalPages(),
		},
	}
}
