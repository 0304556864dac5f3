package order

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/storefront-cart/internal/domain/cart"
	"github.com/xenking/storefront-cart/internal/domain/pricing"
	"github.com/xenking/storefront-cart/internal/domain/product"
	"github.com/xenking/storefront-cart/internal/storage/memory"
)

// --- Mock implementations ---

type mockSubmitter struct {
	mu        sync.Mutex
	submitted []Payload
	tokens    []string
	orders    map[string]*Order
	submitErr error
	cancelled []string

	// block, when set, holds Submit until closed.
	block   chan struct{}
	entered chan struct{}
}

func newMockSubmitter() *mockSubmitter {
	return &mockSubmitter{orders: make(map[string]*Order)}
}

func (m *mockSubmitter) Submit(_ context.Context, token string, p Payload) (*Order, error) {
	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	m.submitted = append(m.submitted, p)
	m.tokens = append(m.tokens, token)
	o := &Order{ID: "ord-1", Status: StatusPending, TotalPrice: p.TotalPrice, PaymentMethod: p.PaymentMethod}
	m.orders[o.ID] = o
	return o, nil
}

func (m *mockSubmitter) Get(_ context.Context, _, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (m *mockSubmitter) ListMine(_ context.Context, _ string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockSubmitter) Cancel(_ context.Context, _, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	m.cancelled = append(m.cancelled, id)
	o.Status = StatusCancelled
	return o, nil
}

// --- Helpers ---

func validShipping() Shipping {
	return Shipping{
		Name:     "Nguyễn Văn A",
		Phone:    "0901234567",
		City:     "Hồ Chí Minh",
		District: "Quận 1",
		Ward:     "Bến Nghé",
		Address:  "12 Lê Lợi",
	}
}

func dish(id string, price int64) cart.Product {
	return cart.Product{ID: id, Name: "Dish " + id, Price: decimal.NewFromInt(price)}
}

func testCatalog() *memory.ProductRepository {
	products := make([]product.Product, 0, 3)
	for _, id := range []string{"p1", "p2", "p3"} {
		products = append(products, product.Product{
			ID:        id,
			Name:      "Dish " + id,
			Price:     decimal.NewFromInt(100000),
			Available: true,
		})
	}
	return memory.NewProductRepository(products)
}

func newTestService(t *testing.T, sub Submitter) (*Service, *cart.Registry) {
	t.Helper()
	return newServiceWithCatalog(t, sub, testCatalog())
}

func newServiceWithCatalog(t *testing.T, sub Submitter, catalog Catalog) (*Service, *cart.Registry) {
	t.Helper()
	reg := cart.NewRegistry(memory.NewCartStorage(), cart.RegistryConfig{})
	svc, err := NewService(reg, catalog, sub, pricing.DefaultFeePolicy(),
		tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	require.NoError(t, err)
	return svc, reg
}

func fillCart(t *testing.T, reg *cart.Registry, clientID string, items map[string]int) *cart.Store {
	t.Helper()
	store, err := reg.Open(context.Background(), clientID)
	require.NoError(t, err)
	for _, id := range []string{"p1", "p2", "p3"} {
		qty, ok := items[id]
		if !ok {
			continue
		}
		_, err := store.Add(context.Background(), dish(id, 100000), qty)
		require.NoError(t, err)
	}
	return store
}

// --- Tests ---

func TestQuote(t *testing.T) {
	svc, reg := newTestService(t, newMockSubmitter())
	fillCart(t, reg, "c1", map[string]int{"p1": 2})

	q, err := svc.Quote(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, q.Cart.Len())
	assert.True(t, decimal.NewFromInt(215000).Equal(q.Summary.Total))
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	sub := newMockSubmitter()
	svc, _ := newTestService(t, sub)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{ClientID: "c1", Shipping: validShipping()})
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Empty(t, sub.submitted)
}

func TestPlaceOrder_Success(t *testing.T) {
	sub := newMockSubmitter()
	svc, reg := newTestService(t, sub)
	store := fillCart(t, reg, "c1", map[string]int{"p1": 2, "p2": 1})

	res, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		ClientID: "c1",
		Token:    "tok",
		Shipping: validShipping(),
	})
	require.NoError(t, err)

	assert.Equal(t, "ord-1", res.Order.ID)
	// 300000 + 15000 - 20000
	assert.True(t, decimal.NewFromInt(295000).Equal(res.Summary.Total))

	require.Len(t, sub.submitted, 1)
	p := sub.submitted[0]
	assert.Equal(t, []string{"tok"}, sub.tokens)
	assert.Equal(t, PaymentCOD, p.PaymentMethod)
	assert.Equal(t, AddressHome, p.Shipping.AddressType)
	assert.True(t, res.Summary.Total.Equal(p.TotalPrice))
	require.Len(t, p.Items, 2)
	assert.Equal(t, PayloadItem{ProductID: "p1", Quantity: 2, UnitPrice: decimal.NewFromInt(100000)}, p.Items[0])

	assert.Zero(t, store.Snapshot().Len(), "cart is cleared after a successful order")
}

func TestPlaceOrder_KeepsLinesAddedDuringSubmit(t *testing.T) {
	sub := newMockSubmitter()
	sub.block = make(chan struct{})
	sub.entered = make(chan struct{}, 1)
	svc, reg := newTestService(t, sub)
	store := fillCart(t, reg, "c1", map[string]int{"p1": 2})

	done := make(chan error, 1)
	go func() {
		_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{ClientID: "c1", Shipping: validShipping()})
		done <- err
	}()
	<-sub.entered

	ctx := context.Background()
	_, err := store.Add(ctx, dish("p2", 100000), 1)
	require.NoError(t, err)
	_, err = store.Add(ctx, dish("p1", 100000), 1)
	require.NoError(t, err)

	close(sub.block)
	require.NoError(t, <-done)

	require.Len(t, sub.submitted, 1)
	assert.Equal(t, []PayloadItem{
		{ProductID: "p1", Quantity: 2, UnitPrice: decimal.NewFromInt(100000)},
	}, sub.submitted[0].Items)

	left := store.Snapshot()
	require.Equal(t, 2, left.Len())
	p1, ok := left.Find("p1")
	require.True(t, ok)
	assert.Equal(t, 1, p1.Quantity)
	p2, ok := left.Find("p2")
	require.True(t, ok)
	assert.Equal(t, 1, p2.Quantity)
}

func TestPlaceOrder_ChecksCatalog(t *testing.T) {
	tests := []struct {
		name    string
		catalog []product.Product
		wantErr error
	}{
		{
			name:    "product withdrawn",
			catalog: []product.Product{{ID: "p1", Name: "Dish p1", Price: decimal.NewFromInt(100000), Available: false}},
			wantErr: product.ErrUnavailable,
		},
		{
			name:    "product deleted",
			wantErr: product.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := newMockSubmitter()
			svc, reg := newServiceWithCatalog(t, sub, memory.NewProductRepository(tt.catalog))
			store := fillCart(t, reg, "c1", map[string]int{"p1": 1})

			_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{ClientID: "c1", Shipping: validShipping()})
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, sub.submitted)
			assert.Equal(t, 1, store.Snapshot().Len())
		})
	}
}

func TestPlaceOrder_MarksSubmitFailures(t *testing.T) {
	sub := newMockSubmitter()
	sub.submitErr = errors.New("connection refused")
	svc, reg := newTestService(t, sub)
	fillCart(t, reg, "c1", map[string]int{"p1": 1})

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{ClientID: "c1", Shipping: validShipping()})
	var submitErr *SubmitError
	require.ErrorAs(t, err, &submitErr)

	_, err = svc.PlaceOrder(context.Background(), PlaceOrderRequest{ClientID: "empty", Shipping: validShipping()})
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.False(t, errors.As(err, &submitErr), "local failures are not submit failures")
}

func TestPlaceOrder_SubmitFailureKeepsCart(t *testing.T) {
	sub := newMockSubmitter()
	sub.submitErr = &RejectedError{Message: "out of stock"}
	svc, reg := newTestService(t, sub)
	store := fillCart(t, reg, "c1", map[string]int{"p1": 1})

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{ClientID: "c1", Shipping: validShipping()})
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "out of stock", rejected.Message)
	assert.Equal(t, 1, store.Snapshot().Len())
}

func TestPlaceOrder_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PlaceOrderRequest)
		wantErr error
		fields  []string
	}{
		{
			name:   "missing fields",
			mutate: func(r *PlaceOrderRequest) { r.Shipping.Phone = ""; r.Shipping.Ward = "  " },
			fields: []string{"phone", "ward"},
		},
		{
			name:    "bad address type",
			mutate:  func(r *PlaceOrderRequest) { r.Shipping.AddressType = "Khách sạn" },
			wantErr: ErrInvalidAddressType,
		},
		{
			name:    "unsupported payment",
			mutate:  func(r *PlaceOrderRequest) { r.PaymentMethod = "card" },
			wantErr: ErrUnsupportedPayment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := newMockSubmitter()
			svc, reg := newTestService(t, sub)
			fillCart(t, reg, "c1", map[string]int{"p1": 1})

			req := PlaceOrderRequest{ClientID: "c1", Shipping: validShipping()}
			tt.mutate(&req)

			_, err := svc.PlaceOrder(context.Background(), req)
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
			if tt.fields != nil {
				var mfErr *MissingFieldsError
				require.ErrorAs(t, err, &mfErr)
				assert.Equal(t, tt.fields, mfErr.Fields)
			}
			assert.Empty(t, sub.submitted)
		})
	}
}

func TestPlaceOrder_AtMostOnceInFlight(t *testing.T) {
	sub := newMockSubmitter()
	sub.block = make(chan struct{})
	sub.entered = make(chan struct{}, 1)
	svc, reg := newTestService(t, sub)
	fillCart(t, reg, "c1", map[string]int{"p1": 1})
	fillCart(t, reg, "c2", map[string]int{"p1": 1})

	req := PlaceOrderRequest{ClientID: "c1", Shipping: validShipping()}
	done := make(chan error, 1)
	go func() {
		_, err := svc.PlaceOrder(context.Background(), req)
		done <- err
	}()
	<-sub.entered

	_, err := svc.PlaceOrder(context.Background(), req)
	require.ErrorIs(t, err, ErrSubmissionInProgress)

	close(sub.block)
	require.NoError(t, <-done)

	// Once the first submission finishes the cart is empty.
	sub.entered = nil
	_, err = svc.PlaceOrder(context.Background(), req)
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Len(t, sub.submitted, 1)
}

func TestCancel(t *testing.T) {
	sub := newMockSubmitter()
	sub.orders["pending"] = &Order{ID: "pending", Status: StatusPending}
	sub.orders["confirmed"] = &Order{ID: "confirmed", Status: StatusConfirmed}
	sub.orders["shipped"] = &Order{ID: "shipped", Status: StatusDelivered}
	sub.orders["gone"] = &Order{ID: "gone", Status: StatusCancelled}
	svc, _ := newTestService(t, sub)
	ctx := context.Background()

	for _, id := range []string{"pending", "confirmed"} {
		o, err := svc.Cancel(ctx, "tok", id)
		require.NoError(t, err, id)
		assert.Equal(t, StatusCancelled, o.Status)
	}

	for _, id := range []string{"shipped", "gone"} {
		_, err := svc.Cancel(ctx, "tok", id)
		require.ErrorIs(t, err, ErrNotCancellable, id)
	}

	_, err := svc.Cancel(ctx, "tok", "missing")
	require.ErrorIs(t, err, ErrOrderNotFound)

	assert.Equal(t, []string{"pending", "confirmed"}, sub.cancelled)
}

func TestNewService_RejectsInvalidPolicy(t *testing.T) {
	policy := pricing.DefaultFeePolicy()
	policy.DeliveryFee = decimal.NewFromInt(-1)

	_, err := NewService(nil, nil, nil, policy, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	require.Error(t, err)
}

func TestParsePaymentMethod(t *testing.T) {
	for _, raw := range []string{"", "COD", "cod", " COD "} {
		m, err := ParsePaymentMethod(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, PaymentCOD, m)
	}
	_, err := ParsePaymentMethod("momo")
	require.True(t, errors.Is(err, ErrUnsupportedPayment))
}
