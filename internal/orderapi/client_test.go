package orderapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/storefront-cart/internal/domain/order"
)

type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, func() []recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recordedRequest{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: body})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/", Timeout: 5 * time.Second},
		tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	require.NoError(t, err)
	return c, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), reqs...)
	}
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func testPayload() order.Payload {
	return order.Payload{
		Items: []order.PayloadItem{
			{ProductID: "1", Quantity: 2, UnitPrice: decimal.NewFromInt(100000)},
		},
		TotalPrice:    decimal.NewFromInt(215000),
		PaymentMethod: order.PaymentCOD,
		Shipping: order.Shipping{
			Name: "Lan", Phone: "0901", City: "Hà Nội", District: "Ba Đình",
			Ward: "Kim Mã", Address: "1 Kim Mã", AddressType: order.AddressOffice, Note: "gọi trước",
		},
	}
}

const orderJSON = `{
	"id": "ord-42",
	"status": "pending",
	"total_price": 215000,
	"payment_method": "COD",
	"created_at": "2024-05-01T10:00:00Z",
	"items": [{"product_id": 1, "name": "Phở", "quantity": 2, "price": "100000"}],
	"customer": {"name": "Lan", "phone": "0901", "type": "Văn Phòng", "extra": true}
}`

func TestSubmit(t *testing.T) {
	c, reqs := newTestClient(t, respond(http.StatusCreated, `{"data": `+orderJSON+`}`))

	o, err := c.Submit(context.Background(), "tok-1", testPayload())
	require.NoError(t, err)

	assert.Equal(t, "ord-42", o.ID)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.True(t, decimal.NewFromInt(215000).Equal(o.TotalPrice))
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), o.CreatedAt.UTC())
	require.Len(t, o.Items, 1)
	assert.Equal(t, "1", o.Items[0].ProductID)
	assert.True(t, decimal.NewFromInt(100000).Equal(o.Items[0].UnitPrice))
	assert.Equal(t, order.AddressOffice, o.Shipping.AddressType)

	require.Len(t, reqs(), 1)
	req := reqs()[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/orders", req.Path)
	assert.Equal(t, "Bearer tok-1", req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	_, err = uuid.Parse(req.Header.Get("Idempotency-Key"))
	require.NoError(t, err)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &sent))
	assert.Equal(t, "COD", sent["payment_method"])
	assert.EqualValues(t, 215000, sent["total_price"])
	items := sent["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, map[string]any{"product_id": "1", "quantity": float64(2), "price": float64(100000)}, items[0])
	customer := sent["customer"].(map[string]any)
	assert.Equal(t, "Văn Phòng", customer["type"])
	assert.Equal(t, "gọi trước", customer["note"])
}

func TestSubmit_FreshIdempotencyKeyPerCall(t *testing.T) {
	c, reqs := newTestClient(t, respond(http.StatusCreated, orderJSON))
	ctx := context.Background()

	_, err := c.Submit(ctx, "tok", testPayload())
	require.NoError(t, err)
	_, err = c.Submit(ctx, "tok", testPayload())
	require.NoError(t, err)

	require.Len(t, reqs(), 2)
	assert.NotEqual(t, reqs()[0].Header.Get("Idempotency-Key"), reqs()[1].Header.Get("Idempotency-Key"))
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		check   func(t *testing.T, err error)
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{}`, wantErr: order.ErrUnauthorized},
		{name: "forbidden", status: http.StatusForbidden, body: ``, wantErr: order.ErrUnauthorized},
		{name: "not found", status: http.StatusNotFound, body: `{"message":"no"}`, wantErr: order.ErrOrderNotFound},
		{
			name:   "rejected",
			status: http.StatusUnprocessableEntity,
			body:   `{"message":"invalid order","errors":{"customer.phone":["phone is invalid"],"items":"empty"}}`,
			check: func(t *testing.T, err error) {
				var rej *order.RejectedError
				require.ErrorAs(t, err, &rej)
				assert.Equal(t, "invalid order", rej.Message)
				assert.Equal(t, map[string]string{"customer.phone": "phone is invalid", "items": "empty"}, rej.Fields)
			},
		},
		{
			name:   "bad request without body",
			status: http.StatusBadRequest,
			body:   `oops`,
			check: func(t *testing.T, err error) {
				var rej *order.RejectedError
				require.ErrorAs(t, err, &rej)
				assert.Empty(t, rej.Message)
			},
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			body:   `upstream down`,
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, http.StatusBadGateway, se.Code)
				assert.Equal(t, "upstream down", se.Body)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, respond(tt.status, tt.body))

			_, err := c.Submit(context.Background(), "tok", testPayload())
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestGetAndList(t *testing.T) {
	c, reqs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders/my-orders":
			respond(http.StatusOK, `[`+orderJSON+`,{"_id":"ord-43","status":"delivered","total_price":"50000"}]`)(w, r)
		default:
			respond(http.StatusOK, orderJSON)(w, r)
		}
	})
	ctx := context.Background()

	o, err := c.Get(ctx, "tok", "ord-42")
	require.NoError(t, err)
	assert.Equal(t, "ord-42", o.ID)

	list, err := c.ListMine(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ord-43", list[1].ID)
	assert.Equal(t, order.StatusDelivered, list[1].Status)
	assert.True(t, decimal.NewFromInt(50000).Equal(list[1].TotalPrice))

	assert.Equal(t, "/orders/ord-42", reqs()[0].Path)
	assert.Equal(t, http.MethodGet, reqs()[1].Method)
}

func TestListMine_Enveloped(t *testing.T) {
	c, _ := newTestClient(t, respond(http.StatusOK, `{"data":[`+orderJSON+`],"total":1}`))

	list, err := c.ListMine(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ord-42", list[0].ID)
}

func TestCancel(t *testing.T) {
	c, reqs := newTestClient(t, respond(http.StatusOK, `{"id":"ord-42","status":"cancelled"}`))

	o, err := c.Cancel(context.Background(), "tok", "ord-42")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, o.Status)
	assert.Equal(t, http.MethodPut, reqs()[0].Method)
	assert.Equal(t, "/orders/ord-42/cancel", reqs()[0].Path)
}

func TestCancel_Conflict(t *testing.T) {
	c, _ := newTestClient(t, respond(http.StatusConflict, `{"message":"already confirmed"}`))

	_, err := c.Cancel(context.Background(), "tok", "ord-42")
	require.ErrorIs(t, err, order.ErrNotCancellable)
}

func TestNew_Validation(t *testing.T) {
	tp, mp := tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider()

	_, err := New(Config{}, tp, mp)
	require.Error(t, err)
	_, err = New(Config{BaseURL: "ftp://orders"}, tp, mp)
	require.Error(t, err)
}
