package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-cart/internal/domain/cart"
)

const (
	loadCartSQL = `SELECT items FROM carts WHERE client_id = $1`

	saveCartSQL = `INSERT INTO carts (client_id, items, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (client_id) DO UPDATE SET items = EXCLUDED.items, updated_at = now()`

	deleteCartSQL = `DELETE FROM carts WHERE client_id = $1`
)

var _ cart.Storage = (*CartStorage)(nil)

// CartStorage persists carts as JSONB documents keyed by client ID.
type CartStorage struct {
	pool *pgxpool.Pool
}

// NewCartStorage returns a CartStorage that uses the given pool.
func NewCartStorage(pool *pgxpool.Pool) *CartStorage {
	return &CartStorage{pool: pool}
}

// Load returns the stored lines for clientID, or none if it has no cart.
func (s *CartStorage) Load(ctx context.Context, clientID string) ([]cart.LineItem, error) {
	var raw []byte
	if err := s.pool.QueryRow(ctx, loadCartSQL, clientID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "load cart %q", clientID)
	}

	var items []cart.LineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.Wrapf(err, "decode cart %q", clientID)
	}
	return items, nil
}

// Save replaces the stored lines for clientID. An empty slice deletes the row.
func (s *CartStorage) Save(ctx context.Context, clientID string, items []cart.LineItem) error {
	if len(items) == 0 {
		if _, err := s.pool.Exec(ctx, deleteCartSQL, clientID); err != nil {
			return errors.Wrapf(err, "delete cart %q", clientID)
		}
		return nil
	}

	raw, err := json.Marshal(items)
	if err != nil {
		return errors.Wrapf(err, "encode cart %q", clientID)
	}
	if _, err := s.pool.Exec(ctx, saveCartSQL, clientID, raw); err != nil {
		return errors.Wrapf(err, "save cart %q", clientID)
	}
	return nil
}
