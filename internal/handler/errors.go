package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-cart/internal/domain/cart"
	"github.com/xenking/storefront-cart/internal/domain/order"
	"github.com/xenking/storefront-cart/internal/domain/product"
)

// Error is an error with a fixed HTTP status, returned by handlers for
// failures that do not come from a domain package.
type Error struct {
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func badRequest(msg string, err error) error {
	return &Error{Code: http.StatusBadRequest, Message: msg, Err: err}
}

// upstream reports errors with no domain mapping as a failure of the order
// API rather than of this service.
func upstream(err error) error {
	if code, _, _ := classify(err); code != http.StatusInternalServerError {
		return err
	}
	return &Error{Code: http.StatusBadGateway, Message: "order service unavailable", Err: err}
}

// classify maps err to a status code, a client-facing message and optional
// per-field messages.
func classify(err error) (code int, message string, fields map[string]string) {
	var (
		httpErr     *Error
		invalidProd *cart.InvalidProductError
		missing     *order.MissingFieldsError
		rejected    *order.RejectedError
	)
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code, httpErr.Message, nil
	case errors.As(err, &invalidProd):
		return http.StatusBadRequest, invalidProd.Error(), nil
	case errors.As(err, &missing):
		fields = make(map[string]string, len(missing.Fields))
		for _, f := range missing.Fields {
			fields[f] = "required"
		}
		return http.StatusBadRequest, missing.Error(), fields
	case errors.As(err, &rejected):
		return http.StatusUnprocessableEntity, rejected.Error(), rejected.Fields
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrClientRequired),
		errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrUnsupportedPayment),
		errors.Is(err, order.ErrInvalidAddressType):
		return http.StatusBadRequest, err.Error(), nil
	case errors.Is(err, order.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", nil
	case errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound, err.Error(), nil
	case errors.Is(err, product.ErrUnavailable),
		errors.Is(err, order.ErrSubmissionInProgress),
		errors.Is(err, order.ErrNotCancellable):
		return http.StatusConflict, err.Error(), nil
	}
	return http.StatusInternalServerError, "internal server error", nil
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, message, fields := classify(err)
	lg := zctx.From(r.Context())
	if code >= http.StatusInternalServerError {
		lg.Error("Request failed", zap.Int("status", code), zap.Error(err))
	} else {
		lg.Debug("Request rejected", zap.Int("status", code), zap.Error(err))
	}
	if code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="storefront"`)
	}

	writeJSON(w, code, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(code) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
			if len(fields) > 0 {
				e.Field("fields", func(e *jx.Encoder) { encodeStringMap(e, fields) })
			}
		})
	})
}
