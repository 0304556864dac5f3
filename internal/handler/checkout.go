package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-cart/internal/domain/auth"
	"github.com/xenking/storefront-cart/internal/domain/order"
)

func principal(r *http.Request) (auth.Principal, error) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		return auth.Principal{}, order.ErrUnauthorized
	}
	return p, nil
}

// checkout places an order for the caller's cart and takes the ordered lines
// out of it.
func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) error {
	p, err := principal(r)
	if err != nil {
		return err
	}
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	req, err := decodeCheckout(body)
	if err != nil {
		return err
	}

	res, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		ClientID:      h.clientID(w, r),
		Token:         p.Token,
		Shipping:      req.Shipping,
		PaymentMethod: req.PaymentMethod,
	})
	var submitErr *order.SubmitError
	switch {
	case errors.As(err, &submitErr):
		return upstream(err)
	case err != nil:
		return err
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("order", func(e *jx.Encoder) { encodeOrder(e, *res.Order) })
			e.Field("summary", func(e *jx.Encoder) { encodeSummary(e, res.Summary) })
		})
	})
	return nil
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) error {
	p, err := principal(r)
	if err != nil {
		return err
	}
	orders, err := h.orders.ListMine(r.Context(), p.Token)
	if err != nil {
		return upstream(errors.Wrap(err, "list orders"))
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, o := range orders {
				encodeOrder(e, o)
			}
		})
	})
	return nil
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) error {
	p, err := principal(r)
	if err != nil {
		return err
	}
	o, err := h.orders.Get(r.Context(), p.Token, r.PathValue("id"))
	if err != nil {
		return upstream(err)
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, *o) })
	return nil
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) error {
	p, err := principal(r)
	if err != nil {
		return err
	}
	o, err := h.orders.Cancel(r.Context(), p.Token, r.PathValue("id"))
	if err != nil {
		return upstream(err)
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, *o) })
	return nil
}
