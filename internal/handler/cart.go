package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-cart/internal/domain/cart"
)

// openCart resolves the caller's cart store.
func (h *Handler) openCart(w http.ResponseWriter, r *http.Request) (*cart.Store, error) {
	store, err := h.carts.Open(r.Context(), h.clientID(w, r))
	if err != nil {
		return nil, errors.Wrap(err, "open cart")
	}
	return store, nil
}

func (h *Handler) writeCart(w http.ResponseWriter, code int, clientID string, snap cart.Snapshot) {
	writeJSON(w, code, func(e *jx.Encoder) { h.encodeCart(e, clientID, snap) })
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) error {
	store, err := h.openCart(w, r)
	if err != nil {
		return err
	}
	h.writeCart(w, http.StatusOK, store.ClientID(), store.Snapshot())
	return nil
}

// addItem puts a catalog product into the cart. Name, price and image are
// taken from the catalog, never from the request.
func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	req, err := decodeAddItem(body)
	if err != nil {
		return err
	}

	p, err := h.products.GetByID(r.Context(), req.ProductID)
	if err != nil {
		return errors.Wrap(err, "get product")
	}
	cp, err := p.CartProduct()
	if err != nil {
		return err
	}

	store, err := h.openCart(w, r)
	if err != nil {
		return err
	}
	snap, err := store.Add(r.Context(), cp, req.Quantity)
	h.countMutation(r.Context(), "add", err)
	if err != nil {
		return err
	}
	h.writeCart(w, http.StatusOK, store.ClientID(), snap)
	return nil
}

func (h *Handler) increaseItem(w http.ResponseWriter, r *http.Request) error {
	return h.mutateItem(w, r, "increase", (*cart.Store).Increase)
}

func (h *Handler) decreaseItem(w http.ResponseWriter, r *http.Request) error {
	return h.mutateItem(w, r, "decrease", (*cart.Store).Decrease)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) error {
	return h.mutateItem(w, r, "remove", (*cart.Store).Remove)
}

func (h *Handler) mutateItem(
	w http.ResponseWriter,
	r *http.Request,
	name string,
	op func(*cart.Store, context.Context, string) (cart.Snapshot, error),
) error {
	store, err := h.openCart(w, r)
	if err != nil {
		return err
	}
	snap, err := op(store, r.Context(), r.PathValue("id"))
	h.countMutation(r.Context(), name, err)
	if err != nil {
		return err
	}
	h.writeCart(w, http.StatusOK, store.ClientID(), snap)
	return nil
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) error {
	store, err := h.openCart(w, r)
	if err != nil {
		return err
	}
	snap, err := store.Clear(r.Context())
	h.countMutation(r.Context(), "clear", err)
	if err != nil {
		return err
	}
	h.writeCart(w, http.StatusOK, store.ClientID(), snap)
	return nil
}
