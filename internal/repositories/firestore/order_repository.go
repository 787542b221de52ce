package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/dentastore/api/internal/domain"
	pfirestore "github.com/dentastore/api/internal/platform/firestore"
	"github.com/dentastore/api/internal/repositories"
)

// OrderRepository persists orders in Firestore. It owns the orders,
// orderIdempotency, and products collections jointly inside its
// transactions so idempotency and stock conservation hold even under
// concurrent submissions.
type OrderRepository struct {
	provider *pfirestore.Provider
}

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{provider: provider}, nil
}

func (r *OrderRepository) CreateIdempotent(ctx context.Context, req repositories.CreateOrderRequest) (repositories.CreateOrderResult, error) {
	if r == nil || r.provider == nil {
		return repositories.CreateOrderResult{}, errors.New("order repository not initialised")
	}
	order := req.Order
	if strings.TrimSpace(order.ID) == "" {
		return repositories.CreateOrderResult{}, errors.New("order create: order id is required")
	}
	if strings.TrimSpace(order.IdempotencyKey) == "" {
		return repositories.CreateOrderResult{}, errors.New("order create: idempotency key is required")
	}
	if len(order.Items) == 0 {
		return repositories.CreateOrderResult{}, errors.New("order create: at least one item is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.CreateOrderResult{}, wrapOrderError("orders.create", err)
	}

	now := req.Now.UTC()
	var result repositories.CreateOrderResult
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		idemRef := client.Collection(idempotencyCollection).Doc(order.IdempotencyKey)

		// All reads happen before any write inside the transaction.
		idemSnap, err := tx.Get(idemRef)
		if err == nil {
			var claim idempotencyDocument
			if err := idemSnap.DataTo(&claim); err != nil {
				return fmt.Errorf("decode idempotency claim %s: %w", order.IdempotencyKey, err)
			}
			existingSnap, err := tx.Get(client.Collection(ordersCollection).Doc(claim.OrderID))
			if err != nil {
				return fmt.Errorf("load order %s for claimed key: %w", claim.OrderID, err)
			}
			var existing orderDocument
			if err := existingSnap.DataTo(&existing); err != nil {
				return fmt.Errorf("decode order %s: %w", claim.OrderID, err)
			}
			result = repositories.CreateOrderResult{Order: existing.toDomain(claim.OrderID), Created: false}
			return nil
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		orderRef := client.Collection(ordersCollection).Doc(order.ID)
		if err := tx.Create(orderRef, newOrderDocument(order)); err != nil {
			return err
		}
		if err := tx.Create(idemRef, idempotencyDocument{
			OrderID:   order.ID,
			UserID:    order.UserID,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		result = repositories.CreateOrderResult{Order: order, Created: true}
		return nil
	})
	if err != nil {
		return repositories.CreateOrderResult{}, wrapOrderError("orders.create", err)
	}
	return result, nil
}

// FindByIdempotencyKey resolves a previously claimed key to its order with
// two plain reads. Callers treat not-found as "the key is free"; the claim
// itself stays transactional inside CreateIdempotent.
func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, idempotencyKey string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return domain.Order{}, errors.New("order find by key: idempotency key is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.findByKey", err)
	}
	snap, err := client.Collection(idempotencyCollection).Doc(idempotencyKey).Get(ctx)
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.findByKey", err)
	}
	var claim idempotencyDocument
	if err := snap.DataTo(&claim); err != nil {
		return domain.Order{}, fmt.Errorf("decode idempotency claim %s: %w", idempotencyKey, err)
	}
	return r.FindByID(ctx, claim.OrderID)
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order find: id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.find", err)
	}
	snap, err := client.Collection(ordersCollection).Doc(orderID).Get(ctx)
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.find", err)
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	return doc.toDomain(orderID), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.Page[domain.Order]{}, errors.New("order repository not initialised")
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Page[domain.Order]{}, wrapOrderError("orders.list", err)
	}

	query := client.Collection(ordersCollection).Query
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		query = query.Where("userId", "==", userID)
	}
	if filter.Status != nil {
		query = query.Where("status", "==", string(*filter.Status))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		if strings.HasPrefix(search, orderIDSearchPrefix) {
			// Prefix match on the order id; Firestore has no substring search.
			query = query.OrderBy(firestore.DocumentID, firestore.Asc).
				StartAt(search).
				EndAt(search + "\uf8ff")
		} else {
			// Exact match against the denormalised line item names.
			query = query.Where("productNames", "array-contains", strings.ToLower(search)).
				OrderBy("createdAt", firestore.Desc)
		}
	} else {
		query = query.OrderBy("createdAt", firestore.Desc)
	}

	aggregation, err := query.NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return domain.Page[domain.Order]{}, wrapOrderError("orders.list", err)
	}
	var total int64
	if value, ok := aggregation["total"].(*firestorepb.Value); ok {
		total = value.GetIntegerValue()
	}

	iter := query.Offset((page - 1) * limit).Limit(limit).Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.Page[domain.Order]{}, wrapOrderError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Page[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	return domain.Page[domain.Order]{
		Items:      orders,
		Total:      total,
		PageNumber: page,
		PageSize:   limit,
	}, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, req repositories.UpdateStatusRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order update status: id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.updateStatus", err)
	}

	now := req.Now.UTC()
	var updated domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef := client.Collection(ordersCollection).Doc(orderID)
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		doc.Status = string(req.Status)
		if req.TrackingNumber != nil {
			doc.TrackingNumber = strings.TrimSpace(*req.TrackingNumber)
		}
		doc.UpdatedAt = now
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		updated = doc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.updateStatus", err)
	}
	return updated, nil
}

func (r *OrderRepository) UpdatePayment(ctx context.Context, req repositories.UpdatePaymentRequest) (repositories.UpdatePaymentResult, error) {
	if r == nil || r.provider == nil {
		return repositories.UpdatePaymentResult{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return repositories.UpdatePaymentResult{}, errors.New("order update payment: id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.UpdatePaymentResult{}, wrapOrderError("orders.updatePayment", err)
	}

	now := req.Now.UTC()
	var result repositories.UpdatePaymentResult
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef := client.Collection(ordersCollection).Doc(orderID)
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		current := domain.PaymentStatus(doc.PaymentStatus)
		if current == req.PaymentStatus {
			// Redelivered event; the transition already happened.
			result = repositories.UpdatePaymentResult{Order: doc.toDomain(orderID), Applied: false}
			return nil
		}
		if current.Terminal() {
			return pfirestore.NewConflict("orders.updatePayment",
				fmt.Errorf("order %s payment already settled as %s", orderID, current))
		}

		doc.PaymentStatus = string(req.PaymentStatus)
		doc.Status = string(req.OrderStatus)
		if intent := strings.TrimSpace(req.PaymentIntentID); intent != "" {
			doc.StripePaymentIntentID = intent
		}
		doc.UpdatedAt = now
		switch req.PaymentStatus {
		case domain.PaymentStatusSucceeded:
			doc.PaidAt = &now
		case domain.PaymentStatusFailed:
			doc.CanceledAt = &now
		}
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}

		result = repositories.UpdatePaymentResult{Order: doc.toDomain(orderID), Applied: true}
		return nil
	})
	if err != nil {
		return repositories.UpdatePaymentResult{}, wrapOrderError("orders.updatePayment", err)
	}
	return result, nil
}

func (r *OrderRepository) RecordSession(ctx context.Context, ref repositories.SessionRef) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(ref.OrderID)
	if orderID == "" {
		return errors.New("order record session: id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return wrapOrderError("orders.recordSession", err)
	}
	_, err = client.Collection(ordersCollection).Doc(orderID).Update(ctx, []firestore.Update{
		{Path: "stripeSessionId", Value: strings.TrimSpace(ref.SessionID)},
		{Path: "updatedAt", Value: ref.Now.UTC()},
	})
	return wrapOrderError("orders.recordSession", err)
}

func wrapOrderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}
