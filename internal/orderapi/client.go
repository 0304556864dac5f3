// Package orderapi is a client for the external order API that accepts and
// tracks storefront orders.
package orderapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/storefront-cart/internal/domain/order"
)

// maxBodySize bounds how much of a response is read.
const maxBodySize = 4 << 20

var _ order.Submitter = (*Client)(nil)

// StatusError is returned for responses the client has no mapping for.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("order api: status %d", e.Code)
	}
	return fmt.Sprintf("order api: status %d: %s", e.Code, e.Body)
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client calls the order API on behalf of authenticated shoppers.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a Client. Outgoing requests are traced and measured with the
// given providers.
func New(cfg Config, tp trace.TracerProvider, mp metric.MeterProvider) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("order api base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse order api base url")
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.Errorf("order api base url: unsupported scheme %q", base.Scheme)
	}
	return &Client{
		base: base,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithTracerProvider(tp),
				otelhttp.WithMeterProvider(mp),
			),
		},
	}, nil
}

// Submit posts a new order. Each call carries a fresh Idempotency-Key so the
// order API can discard duplicate deliveries of the same request.
func (c *Client) Submit(ctx context.Context, token string, p order.Payload) (*order.Order, error) {
	body, err := c.do(ctx, http.MethodPost, "/orders", token, encodePayload(p), http.Header{
		"Idempotency-Key": []string{uuid.NewString()},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return decodeOrder(body)
}

// Get returns one order of the caller.
func (c *Client) Get(ctx context.Context, token, id string) (*order.Order, error) {
	body, err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), token, nil, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	return decodeOrder(body)
}

// ListMine returns the caller's orders.
func (c *Client) ListMine(ctx context.Context, token string) ([]order.Order, error) {
	body, err := c.do(ctx, http.MethodGet, "/orders/my-orders", token, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return decodeOrders(body)
}

// Cancel asks the order API to cancel an order.
func (c *Client) Cancel(ctx context.Context, token, id string) (*order.Order, error) {
	body, err := c.do(ctx, http.MethodPut, "/orders/"+url.PathEscape(id)+"/cancel", token, nil, nil)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusConflict {
			return nil, errors.Wrapf(order.ErrNotCancellable, "order %s", id)
		}
		return nil, errors.Wrapf(err, "cancel order %s", id)
	}
	return decodeOrder(body)
}

// Ping checks that the order API is reachable. Any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.base.String(), http.NoBody)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "ping order api")
	}
	_ = resp.Body.Close()
	return nil
}

func (c *Client) do(ctx context.Context, method, path, token string, payload []byte, header http.Header) ([]byte, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return data, nil
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return nil, order.ErrUnauthorized
	case code == http.StatusNotFound:
		return nil, order.ErrOrderNotFound
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		return nil, decodeRejection(data)
	default:
		return nil, &StatusError{Code: code, Body: truncate(strings.TrimSpace(string(data)), 256)}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
