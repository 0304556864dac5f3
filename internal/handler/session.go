package handler

import (
	"net/http"

	"github.com/google/uuid"
)

const (
	// CartCookie holds the anonymous cart identity.
	CartCookie = "cart_id"
	// CartHeader overrides the cookie for clients that do not keep cookies.
	CartHeader = "X-Cart-ID"
)

// clientID resolves the cart identity of a request, issuing a new one in a
// cookie when the request carries none. Only UUIDs are accepted so that
// clients cannot pick each other's identities by guessing short values.
func (h *Handler) clientID(w http.ResponseWriter, r *http.Request) string {
	if id, ok := parseClientID(r.Header.Get(CartHeader)); ok {
		w.Header().Set(CartHeader, id)
		return id
	}
	if c, err := r.Cookie(CartCookie); err == nil {
		if id, ok := parseClientID(c.Value); ok {
			w.Header().Set(CartHeader, id)
			return id
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     CartCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(h.cookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(CartHeader, id)
	return id
}

func parseClientID(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}
	return id.String(), true
}
