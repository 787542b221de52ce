package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/dentastore/api/internal/domain"
	pfirestore "github.com/dentastore/api/internal/platform/firestore"
)

// CartRepository reads and clears per-user carts. Carts are keyed by user id.
type CartRepository struct {
	provider *pfirestore.Provider
	products *ProductRepository
	clock    func() time.Time
}

func NewCartRepository(provider *pfirestore.Provider, products *ProductRepository) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	if products == nil {
		return nil, errors.New("cart repository requires product repository")
	}
	return &CartRepository{provider: provider, products: products, clock: time.Now}, nil
}

// GetForCheckout loads the user's cart and resolves each line against the
// live catalog. Lines whose product vanished are dropped; an empty result is
// reported as not found so checkout can reject it.
func (r *CartRepository) GetForCheckout(ctx context.Context, userID string) ([]domain.CartItem, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("cart repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("cart get: user id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("carts.get", err)
	}
	snap, err := client.Collection(cartsCollection).Doc(userID).Get(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("carts.get", err)
	}
	var doc cartDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode cart %s: %w", userID, err)
	}
	if len(doc.Items) == 0 {
		return nil, pfirestore.NewNotFound("carts.get", fmt.Errorf("cart for user %s is empty", userID))
	}

	productIDs := make([]string, 0, len(doc.Items))
	for _, item := range doc.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := r.products.FindByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	items := make([]domain.CartItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		product, ok := products[strings.TrimSpace(item.ProductID)]
		if !ok {
			continue
		}
		if item.Quantity <= 0 {
			continue
		}
		items = append(items, domain.CartItem{Product: product, Quantity: item.Quantity})
	}
	if len(items) == 0 {
		return nil, pfirestore.NewNotFound("carts.get", fmt.Errorf("cart for user %s has no purchasable items", userID))
	}
	return items, nil
}

func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if r == nil || r.provider == nil {
		return errors.New("cart repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("cart clear: user id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("carts.clear", err)
	}
	_, err = client.Collection(cartsCollection).Doc(userID).Set(ctx, cartDocument{
		Items:     []cartItemDocument{},
		UpdatedAt: r.clock().UTC(),
	})
	return pfirestore.WrapError("carts.clear", err)
}
