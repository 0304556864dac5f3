package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// listProducts returns the catalog, optionally narrowed to one category.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) error {
	products, err := h.products.List(r.Context())
	if err != nil {
		return errors.Wrap(err, "list products")
	}

	category := strings.TrimSpace(r.URL.Query().Get("category"))
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, p := range products {
				if category != "" && !strings.EqualFold(p.Category, category) {
					continue
				}
				h.encodeProduct(e, p)
			}
		})
	})
	return nil
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) error {
	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		return errors.Wrap(err, "get product")
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, *p) })
	return nil
}
