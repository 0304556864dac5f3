package order

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront-cart/internal/domain/cart"
	"github.com/xenking/storefront-cart/internal/domain/pricing"
	"github.com/xenking/storefront-cart/internal/domain/product"
)

// CartOpener resolves the cart store of a client.
type CartOpener interface {
	Open(ctx context.Context, clientID string) (*cart.Store, error)
}

// Catalog resolves the current catalog records of the products in a cart.
// Unknown IDs are skipped rather than reported.
type Catalog interface {
	GetByIDs(ctx context.Context, ids []string) ([]product.Product, error)
}

// Quote is a cart together with its checkout breakdown.
type Quote struct {
	Cart    cart.Snapshot
	Summary pricing.Summary
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	ClientID      string
	Token         string
	Shipping      Shipping
	PaymentMethod string
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order   *Order
	Summary pricing.Summary
}

// Service encapsulates checkout and order tracking.
type Service struct {
	carts   CartOpener
	catalog Catalog
	orders  Submitter
	policy  pricing.FeePolicy

	mu       sync.Mutex
	inflight map[string]struct{}

	tracer trace.Tracer
	placed metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	carts CartOpener,
	catalog Catalog,
	orders Submitter,
	policy pricing.FeePolicy,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (*Service, error) {
	if err := policy.Validate(); err != nil {
		return nil, errors.Wrap(err, "fee policy")
	}
	placed, err := mp.Meter("storefront/order").Int64Counter("storefront.orders",
		metric.WithDescription("Order submissions by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders counter")
	}
	return &Service{
		carts:    carts,
		catalog:  catalog,
		orders:   orders,
		policy:   policy,
		inflight: make(map[string]struct{}),
		tracer:   tp.Tracer("storefront/order"),
		placed:   placed,
	}, nil
}

// Policy returns the fee policy used for quotes and orders.
func (s *Service) Policy() pricing.FeePolicy { return s.policy }

// Quote returns the client's cart and its totals.
func (s *Service) Quote(ctx context.Context, clientID string) (*Quote, error) {
	store, err := s.carts.Open(ctx, clientID)
	if err != nil {
		return nil, errors.Wrap(err, "open cart")
	}
	snap := store.Snapshot()
	return &Quote{Cart: snap, Summary: pricing.Compute(snap.Items, s.policy)}, nil
}

// PlaceOrder submits the client's cart as an order and takes the ordered lines
// out of the cart once the order API accepts it. Lines added while the
// submission is in flight stay in the cart. At most one submission per client
// runs at a time. If submission fails the cart is left as it was.
//
// Every line must still be in the catalog and on sale; this is checked before
// anything is sent to the order API.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *PlaceOrderResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(attribute.String("cart.client_id", req.ClientID)),
	)
	defer func() {
		outcome := "placed"
		if rerr != nil {
			outcome = "failed"
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		s.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		span.End()
	}()

	if !s.begin(req.ClientID) {
		return nil, ErrSubmissionInProgress
	}
	defer s.end(req.ClientID)

	store, err := s.carts.Open(ctx, req.ClientID)
	if err != nil {
		return nil, errors.Wrap(err, "open cart")
	}
	snap := store.Snapshot()
	if snap.Len() == 0 {
		return nil, ErrEmptyCart
	}
	if err := req.Shipping.Validate(); err != nil {
		return nil, err
	}
	method, err := ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if err := s.checkCatalog(ctx, snap); err != nil {
		return nil, err
	}

	summary := pricing.Compute(snap.Items, s.policy)
	payload := Payload{
		Items:         make([]PayloadItem, 0, snap.Len()),
		TotalPrice:    summary.Total,
		PaymentMethod: method,
		Shipping:      req.Shipping.normalize(),
	}
	for _, item := range snap.Items {
		payload.Items = append(payload.Items, PayloadItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	span.SetAttributes(
		attribute.Int("order.items", len(payload.Items)),
		attribute.String("order.total", summary.Total.String()),
	)

	created, err := s.orders.Submit(ctx, req.Token, payload)
	if err != nil {
		return nil, &SubmitError{Err: err}
	}
	span.SetAttributes(attribute.String("order.id", created.ID))

	if _, err := store.Subtract(ctx, snap.Items); err != nil {
		zctx.From(ctx).Warn("Remove ordered lines from cart",
			zap.String("order_id", created.ID),
			zap.Error(err),
		)
	}
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", created.ID),
		zap.Int("items", len(payload.Items)),
		zap.Stringer("total", summary.Total),
	)

	return &PlaceOrderResult{Order: created, Summary: summary}, nil
}

// Get returns one of the caller's orders.
func (s *Service) Get(ctx context.Context, token, id string) (*Order, error) {
	return s.orders.Get(ctx, token, id)
}

// ListMine returns the caller's orders.
func (s *Service) ListMine(ctx context.Context, token string) ([]Order, error) {
	return s.orders.ListMine(ctx, token)
}

// Cancel cancels a pending or confirmed order. Delivered and cancelled orders
// yield ErrNotCancellable.
func (s *Service) Cancel(ctx context.Context, token, id string) (*Order, error) {
	current, err := s.orders.Get(ctx, token, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.Cancellable() {
		return nil, errors.Wrapf(ErrNotCancellable, "order %s is %s", id, current.Status)
	}
	return s.orders.Cancel(ctx, token, id)
}

func (s *Service) checkCatalog(ctx context.Context, snap cart.Snapshot) error {
	ids := make([]string, 0, snap.Len())
	for _, item := range snap.Items {
		ids = append(ids, item.ProductID)
	}
	found, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "load cart products")
	}
	byID := make(map[string]product.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	for _, id := range ids {
		p, ok := byID[id]
		switch {
		case !ok:
			return errors.Wrapf(product.ErrNotFound, "cart product %s", id)
		case !p.Available:
			return errors.Wrapf(product.ErrUnavailable, "cart product %s", id)
		}
	}
	return nil
}

func (s *Service) begin(clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[clientID]; busy {
		return false
	}
	s.inflight[clientID] = struct{}{}
	return true
}

func (s *Service) end(clientID string) {
	s.mu.Lock()
	delete(s.inflight, clientID)
	s.mu.Unlock()
}
