package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-cart/internal/domain/cart"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrUnavailable is returned when a product exists but is not on sale.
	ErrUnavailable = errors.New("product unavailable")
)

// Product represents a dish in the storefront catalog.
type Product struct {
	ID          string
	Name        string
	Price       decimal.Decimal
	Category    string
	Description string
	ImageURL    string
	Available   bool
}

// CartProduct converts p into the descriptor accepted by the cart store.
func (p Product) CartProduct() (cart.Product, error) {
	if !p.Available {
		return cart.Product{}, errors.Wrapf(ErrUnavailable, "product %s", p.ID)
	}
	cp := cart.Product{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		ImageRef: p.ImageURL,
	}
	if err := cp.Validate(); err != nil {
		return cart.Product{}, err
	}
	return cp, nil
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
