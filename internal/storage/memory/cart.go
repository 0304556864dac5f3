// Package memory provides process-local storage backends, used when no
// database is configured and in tests.
package memory

import (
	"context"
	"sync"

	"github.com/xenking/storefront-cart/internal/domain/cart"
)

var _ cart.Storage = (*CartStorage)(nil)

// CartStorage keeps carts in a map keyed by client ID.
type CartStorage struct {
	mu    sync.RWMutex
	carts map[string][]cart.LineItem
}

// NewCartStorage returns an empty CartStorage.
func NewCartStorage() *CartStorage {
	return &CartStorage{carts: make(map[string][]cart.LineItem)}
}

// Load returns a copy of the stored lines for clientID.
func (s *CartStorage) Load(_ context.Context, clientID string) ([]cart.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.carts[clientID]
	out := make([]cart.LineItem, len(items))
	copy(out, items)
	return out, nil
}

// Save replaces the stored lines for clientID. An empty slice deletes the cart.
func (s *CartStorage) Save(_ context.Context, clientID string, items []cart.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(items) == 0 {
		delete(s.carts, clientID)
		return nil
	}
	stored := make([]cart.LineItem, len(items))
	copy(stored, items)
	s.carts[clientID] = stored
	return nil
}

// Len returns the number of persisted carts.
func (s *CartStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.carts)
}
