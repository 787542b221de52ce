package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/dentastore/api/internal/domain"
	pfirestore "github.com/dentastore/api/internal/platform/firestore"
	"github.com/dentastore/api/internal/repositories"
)

// ProductRepository reads catalog products and applies batched stock
// adjustments transactionally.
type ProductRepository struct {
	provider *pfirestore.Provider
}

func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{provider: provider}, nil
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("product find: id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.find", err)
	}
	snap, err := client.Collection(productsCollection).Doc(productID).Get(ctx)
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.find", err)
	}
	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Product{}, fmt.Errorf("decode product %s: %w", productID, err)
	}
	return doc.toDomain(productID), nil
}

// FindByIDs resolves products in bulk. Missing ids are silently absent from
// the result so callers can project line items against a drifting catalog.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}
	products := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return products, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("products.findAll", err)
	}

	seen := make(map[string]struct{}, len(productIDs))
	refs := make([]*firestore.DocumentRef, 0, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		refs = append(refs, client.Collection(productsCollection).Doc(id))
	}

	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("products.findAll", err)
	}
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		products[snap.Ref.ID] = doc.toDomain(snap.Ref.ID)
	}
	return products, nil
}

func (r *ProductRepository) AdjustStock(ctx context.Context, req repositories.StockAdjustmentRequest) (repositories.StockAdjustmentResult, error) {
	if r == nil || r.provider == nil {
		return repositories.StockAdjustmentResult{}, errors.New("product repository not initialised")
	}
	if len(req.Adjustments) == 0 {
		return repositories.StockAdjustmentResult{}, errors.New("stock adjust: at least one adjustment is required")
	}
	if req.Direction != 1 && req.Direction != -1 {
		return repositories.StockAdjustmentResult{}, errors.New("stock adjust: direction must be +1 or -1")
	}
	for _, adj := range req.Adjustments {
		if strings.TrimSpace(adj.ProductID) == "" {
			return repositories.StockAdjustmentResult{}, errors.New("stock adjust: product id is required")
		}
		if adj.Quantity <= 0 {
			return repositories.StockAdjustmentResult{}, fmt.Errorf("stock adjust: quantity for %s must be > 0", adj.ProductID)
		}
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.StockAdjustmentResult{}, wrapOrderError("products.adjustStock", err)
	}

	now := req.Now.UTC()
	var result repositories.StockAdjustmentResult
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		type mutation struct {
			ref *firestore.DocumentRef
			doc productDocument
		}
		mutations := make([]mutation, 0, len(req.Adjustments))
		products := make(map[string]domain.Product, len(req.Adjustments))
		var skipped []string

		for _, adj := range req.Adjustments {
			productRef := client.Collection(productsCollection).Doc(adj.ProductID)
			snap, err := tx.Get(productRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					if req.SkipMissing {
						skipped = append(skipped, adj.ProductID)
						continue
					}
					return &repositories.StockError{
						Code:      repositories.StockErrorCodeProductMissing,
						ProductID: adj.ProductID,
						Name:      adj.Name,
						Requested: adj.Quantity,
					}
				}
				return err
			}
			var doc productDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode product %s: %w", adj.ProductID, err)
			}

			if req.Direction < 0 && req.RequireSufficient {
				// Availability is checked independently of stock; a product
				// pulled from sale keeps its count but cannot be reserved.
				if doc.Availability != string(domain.AvailabilityInStock) {
					return &repositories.StockError{
						Code:      repositories.StockErrorCodeProductUnavailable,
						ProductID: adj.ProductID,
						Name:      doc.Name,
						Available: doc.Stock,
						Requested: adj.Quantity,
					}
				}
				if doc.Stock < adj.Quantity {
					return &repositories.StockError{
						Code:      repositories.StockErrorCodeInsufficient,
						ProductID: adj.ProductID,
						Name:      doc.Name,
						Available: doc.Stock,
						Requested: adj.Quantity,
					}
				}
			}
			doc.Stock += req.Direction * adj.Quantity
			if doc.Stock < 0 {
				doc.Stock = 0
			}
			doc.UpdatedAt = now
			doc.recalculate()
			mutations = append(mutations, mutation{ref: productRef, doc: doc})
			products[adj.ProductID] = doc.toDomain(adj.ProductID)
		}

		for _, m := range mutations {
			if err := tx.Set(m.ref, m.doc); err != nil {
				return err
			}
		}

		result = repositories.StockAdjustmentResult{Products: products, Skipped: skipped}
		return nil
	})
	if err != nil {
		return repositories.StockAdjustmentResult{}, wrapOrderError("products.adjustStock", err)
	}
	return result, nil
}
