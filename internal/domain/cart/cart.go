package cart

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DefaultMaxQuantity caps a single line when Config.MaxQuantity is unset.
const DefaultMaxQuantity = 99

var (
	// ErrInvalidQuantity is returned for non-positive quantities and for
	// quantities that would push a line past the configured maximum.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrItemNotFound signals that an adjusted product is not in the cart.
	// The cart is left unchanged.
	ErrItemNotFound = errors.New("item not in cart")
	// ErrClientRequired is returned when a store is requested without a client ID.
	ErrClientRequired = errors.New("client id required")
)

// InvalidProductError indicates a product descriptor that cannot enter the cart.
type InvalidProductError struct {
	ProductID string
	Reason    string
}

func (e *InvalidProductError) Error() string {
	if e.ProductID == "" {
		return fmt.Sprintf("invalid product: %s", e.Reason)
	}
	return fmt.Sprintf("invalid product %s: %s", e.ProductID, e.Reason)
}

// Product is the descriptor accepted by Store.Add. Display fields are copied
// into the line item and are not refreshed afterwards.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	ImageRef string
}

// Validate reports whether the descriptor carries the fields a line item needs.
func (p Product) Validate() error {
	switch {
	case p.ID == "":
		return &InvalidProductError{Reason: "missing id"}
	case p.Name == "":
		return &InvalidProductError{ProductID: p.ID, Reason: "missing name"}
	case p.Price.IsNegative():
		return &InvalidProductError{ProductID: p.ID, Reason: "negative price"}
	}
	return nil
}

// LineItem is a product and its quantity within a cart.
type LineItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	ImageRef  string          `json:"imageRef,omitempty"`
	Quantity  int             `json:"quantity"`
}

// Snapshot is a read-only copy of a cart's lines in insertion order.
type Snapshot struct {
	Items []LineItem
}

// Len returns the number of distinct lines.
func (s Snapshot) Len() int { return len(s.Items) }

// Quantity returns the sum of quantities across all lines.
func (s Snapshot) Quantity() int {
	total := 0
	for _, item := range s.Items {
		total += item.Quantity
	}
	return total
}

// Find returns the line for productID, if present.
func (s Snapshot) Find(productID string) (LineItem, bool) {
	for _, item := range s.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return LineItem{}, false
}

// Listener receives the cart snapshot after every successful mutation.
type Listener func(Snapshot)

// Storage persists carts per client. Load returns an empty slice for an
// unknown client; Save with no items removes the persisted cart.
type Storage interface {
	Load(ctx context.Context, clientID string) ([]LineItem, error)
	Save(ctx context.Context, clientID string, items []LineItem) error
}

// sanitize drops lines that violate the cart invariants and merges lines that
// share a product ID. Persisted data passes through it on load.
func sanitize(items []LineItem, maxQty int) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" || item.Quantity < 1 || item.UnitPrice.IsNegative() {
			continue
		}
		if i := indexOf(out, item.ProductID); i >= 0 {
			out[i].Quantity += item.Quantity
			if maxQty > 0 && out[i].Quantity > maxQty {
				out[i].Quantity = maxQty
			}
			continue
		}
		if maxQty > 0 && item.Quantity > maxQty {
			item.Quantity = maxQty
		}
		out = append(out, item)
	}
	return out
}

func indexOf(items []LineItem, productID string) int {
	for i := range items {
		if items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func cloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}
