// Package handler exposes the storefront cart, catalog and checkout over
// HTTP.
package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/storefront-cart/internal/domain/order"
	"github.com/xenking/storefront-cart/internal/domain/product"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths. When empty, paths
	// are returned as stored.
	ImageBaseURL string
	// SecureCookie marks the cart cookie Secure.
	SecureCookie bool
	// CookieMaxAge is the lifetime of the cart cookie.
	CookieMaxAge time.Duration
	// KeepAlive is the interval between comments on idle event streams.
	KeepAlive time.Duration
}

// Handler serves the storefront API.
type Handler struct {
	products product.Repository
	carts    order.CartOpener
	orders   *order.Service

	imageBaseURL string
	secureCookie bool
	cookieMaxAge time.Duration
	keepAlive    time.Duration

	mutations metric.Int64Counter

	closing   chan struct{}
	closeOnce sync.Once
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	products product.Repository,
	carts order.CartOpener,
	orders *order.Service,
	mp metric.MeterProvider,
) (*Handler, error) {
	mutations, err := mp.Meter("storefront/cart").Int64Counter("storefront.cart.mutations",
		metric.WithDescription("Cart mutations by operation and outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "cart mutations counter")
	}
	h := &Handler{
		products:     products,
		carts:        carts,
		orders:       orders,
		imageBaseURL: strings.TrimRight(cfg.ImageBaseURL, "/"),
		secureCookie: cfg.SecureCookie,
		cookieMaxAge: cfg.CookieMaxAge,
		keepAlive:    cfg.KeepAlive,
		mutations:    mutations,
		closing:      make(chan struct{}),
	}
	if h.cookieMaxAge <= 0 {
		h.cookieMaxAge = 30 * 24 * time.Hour
	}
	if h.keepAlive <= 0 {
		h.keepAlive = 25 * time.Second
	}
	return h, nil
}

// CloseStreams ends all open cart event streams. Meant to be registered
// with http.Server.RegisterOnShutdown.
func (h *Handler) CloseStreams() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// EventsPath is the route of the cart event stream.
const EventsPath = "/api/cart/events"

// Register mounts the API routes on mux. Order routes require a bearer
// token checked by sec.
func (h *Handler) Register(mux *http.ServeMux, sec *SecurityHandler) {
	mux.Handle("GET /api/products", h.handle(h.listProducts))
	mux.Handle("GET /api/products/{id}", h.handle(h.getProduct))

	mux.Handle("GET /api/cart", h.handle(h.getCart))
	mux.Handle("DELETE /api/cart", h.handle(h.clearCart))
	mux.Handle("POST /api/cart/items", h.handle(h.addItem))
	mux.Handle("POST /api/cart/items/{id}/increase", h.handle(h.increaseItem))
	mux.Handle("POST /api/cart/items/{id}/decrease", h.handle(h.decreaseItem))
	mux.Handle("DELETE /api/cart/items/{id}", h.handle(h.removeItem))
	mux.Handle("GET "+EventsPath, h.handle(h.cartEvents))

	mux.Handle("POST /api/checkout", sec.Require(h.handle(h.checkout)))
	mux.Handle("GET /api/orders/my-orders", sec.Require(h.handle(h.listOrders)))
	mux.Handle("GET /api/orders/{id}", sec.Require(h.handle(h.getOrder)))
	mux.Handle("PUT /api/orders/{id}/cancel", sec.Require(h.handle(h.cancelOrder)))
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle adapts a handlerFunc, writing any returned error as JSON.
func (h *Handler) handle(fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			writeError(w, r, err)
		}
	})
}

func (h *Handler) countMutation(ctx context.Context, op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	h.mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}
