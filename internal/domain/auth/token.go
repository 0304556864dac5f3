package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/go-faster/errors"
)

// ErrTokenNotFound is returned by a Repository when no active token matches.
var ErrTokenNotFound = errors.New("token not found")

// TokenInfo holds the identity behind a validated bearer token.
type TokenInfo struct {
	ID        string
	TokenHash string
	Name      string
	Role      string
}

// Repository provides lookup of bearer tokens by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*TokenInfo, error)
}

// HashToken returns the hex HMAC-SHA256 of raw keyed with pepper. This is the
// form tokens are stored and looked up in.
func HashToken(pepper []byte, raw string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

type principalKey struct{}

// Principal is an authenticated caller. Token is the raw bearer token, which
// is forwarded to the order API on the caller's behalf.
type Principal struct {
	Info  TokenInfo
	Token string
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller stored in ctx, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
