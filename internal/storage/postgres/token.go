package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-cart/internal/domain/auth"
)

const (
	findTokenByHashSQL = `SELECT id, token_hash, name, role FROM api_tokens
		WHERE token_hash = $1 AND active`

	upsertTokenSQL = `INSERT INTO api_tokens (id, token_hash, name, role) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET token_hash = EXCLUDED.token_hash, name = EXCLUDED.name,
			role = EXCLUDED.role, active = TRUE`
)

var _ auth.Repository = (*TokenRepository)(nil)

// TokenRepository provides bearer token lookups backed by PostgreSQL.
type TokenRepository struct {
	pool *pgxpool.Pool
}

// NewTokenRepository returns a TokenRepository that uses the given pool.
func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// FindByHash looks up an active token by its HMAC-SHA256 hash.
// Returns auth.ErrTokenNotFound when no matching token exists.
func (r *TokenRepository) FindByHash(ctx context.Context, hash string) (*auth.TokenInfo, error) {
	rows, err := r.pool.Query(ctx, findTokenByHashSQL, hash)
	if err != nil {
		return nil, errors.Wrap(err, "find token by hash")
	}
	info, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[auth.TokenInfo])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrTokenNotFound
		}
		return nil, errors.Wrap(err, "find token by hash")
	}
	return &info, nil
}

// Upsert stores info, reactivating the token if it was revoked.
func (r *TokenRepository) Upsert(ctx context.Context, info auth.TokenInfo) error {
	if _, err := r.pool.Exec(ctx, upsertTokenSQL, info.ID, info.TokenHash, info.Name, info.Role); err != nil {
		return errors.Wrapf(err, "upsert token %q", info.ID)
	}
	return nil
}
