package memory

import (
	"context"
	"sync"

	"github.com/xenking/storefront-cart/internal/domain/auth"
)

var _ auth.Repository = (*TokenRepository)(nil)

// TokenRepository keeps bearer tokens by hash.
type TokenRepository struct {
	mu     sync.RWMutex
	tokens map[string]auth.TokenInfo
}

// NewTokenRepository returns an empty TokenRepository.
func NewTokenRepository() *TokenRepository {
	return &TokenRepository{tokens: make(map[string]auth.TokenInfo)}
}

// FindByHash returns the token stored under hash or auth.ErrTokenNotFound.
func (r *TokenRepository) FindByHash(_ context.Context, hash string) (*auth.TokenInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.tokens[hash]
	if !ok {
		return nil, auth.ErrTokenNotFound
	}
	return &info, nil
}

// Upsert stores info under its TokenHash.
func (r *TokenRepository) Upsert(_ context.Context, info auth.TokenInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokens[info.TokenHash] = info
	return nil
}
