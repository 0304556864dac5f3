package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-cart/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository serves a catalog held in memory.
type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]product.Product
}

// NewProductRepository returns a repository holding products.
func NewProductRepository(products []product.Product) *ProductRepository {
	r := &ProductRepository{products: make(map[string]product.Product, len(products))}
	_ = r.Upsert(context.Background(), products)
	return r
}

// List returns all products ordered by category, name and ID.
func (r *ProductRepository) List(_ context.Context) ([]product.Product, error) {
	r.mu.RLock()
	out := make([]product.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b product.Product) int {
		return cmp.Or(
			cmp.Compare(a.Category, b.Category),
			cmp.Compare(a.Name, b.Name),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return out, nil
}

// GetByID returns the product with id or product.ErrNotFound.
func (r *ProductRepository) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, errors.Wrapf(product.ErrNotFound, "product %s", id)
	}
	return &p, nil
}

// GetByIDs returns the known products among ids, skipping unknown ones.
func (r *ProductRepository) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Upsert inserts or replaces products by ID.
func (r *ProductRepository) Upsert(_ context.Context, products []product.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range products {
		r.products[p.ID] = p
	}
	return nil
}
