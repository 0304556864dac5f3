package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-cart/internal/domain/auth"
	"github.com/xenking/storefront-cart/internal/domain/order"
)

// SecurityHandler authenticates shoppers by bearer token. Tokens are looked
// up by their HMAC-SHA256 hash so raw tokens are never stored.
type SecurityHandler struct {
	tokens auth.Repository
	pepper []byte
}

// NewSecurityHandler creates a SecurityHandler with the given token
// repository and HMAC pepper.
func NewSecurityHandler(tokens auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		tokens: tokens,
		pepper: pepper,
	}
}

// Require rejects requests without a valid bearer token and stores the
// caller in the request context otherwise.
func (s *SecurityHandler) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := s.authenticate(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

func (s *SecurityHandler) authenticate(r *http.Request) (auth.Principal, error) {
	raw, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return auth.Principal{}, order.ErrUnauthorized
	}

	hash := auth.HashToken(s.pepper, raw)
	info, err := s.tokens.FindByHash(r.Context(), hash)
	if err != nil {
		if errors.Is(err, auth.ErrTokenNotFound) {
			return auth.Principal{}, order.ErrUnauthorized
		}
		return auth.Principal{}, errors.Wrap(err, "find token")
	}

	want, err := hex.DecodeString(info.TokenHash)
	if err != nil {
		return auth.Principal{}, order.ErrUnauthorized
	}
	got, _ := hex.DecodeString(hash)
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return auth.Principal{}, order.ErrUnauthorized
	}
	return auth.Principal{Info: *info, Token: raw}, nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
