package cart

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
)

// Config controls cart invariants shared by every store.
type Config struct {
	// MaxQuantity caps a single line. Zero means DefaultMaxQuantity; a
	// negative value disables the cap.
	MaxQuantity int
}

func (c Config) maxQuantity() int {
	switch {
	case c.MaxQuantity == 0:
		return DefaultMaxQuantity
	case c.MaxQuantity < 0:
		return 0
	default:
		return c.MaxQuantity
	}
}

// Store holds the cart of a single client. Mutations are applied atomically
// with respect to Snapshot and persisted before they become visible.
//
// Listeners run synchronously after the mutation that triggered them and in
// mutation order. A listener may call Snapshot but must not mutate the store.
type Store struct {
	clientID string
	storage  Storage
	maxQty   int

	mu    sync.Mutex
	items []LineItem

	// notifyMu is taken before mu is released so that listeners observe
	// snapshots in the order mutations were applied.
	notifyMu  sync.Mutex
	listeners map[uint64]Listener
	nextID    uint64

	lastUsed atomic.Int64
}

// Open loads the persisted cart for clientID and returns a store bound to it.
func Open(ctx context.Context, clientID string, storage Storage, cfg Config) (*Store, error) {
	if clientID == "" {
		return nil, ErrClientRequired
	}

	items, err := storage.Load(ctx, clientID)
	if err != nil {
		return nil, errors.Wrapf(err, "load cart %s", clientID)
	}

	s := &Store{
		clientID:  clientID,
		storage:   storage,
		maxQty:    cfg.maxQuantity(),
		items:     sanitize(items, cfg.maxQuantity()),
		listeners: make(map[uint64]Listener),
	}
	s.touch()
	return s, nil
}

// ClientID returns the client the store is bound to.
func (s *Store) ClientID() string { return s.clientID }

// Snapshot returns a copy of the current lines.
func (s *Store) Snapshot() Snapshot {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Items: cloneItems(s.items)}
}

// Add puts qty units of p into the cart. An existing line for the same product
// has its quantity incremented; its display fields are kept as first added.
func (s *Store) Add(ctx context.Context, p Product, qty int) (Snapshot, error) {
	if err := p.Validate(); err != nil {
		return Snapshot{}, err
	}
	if qty <= 0 {
		return Snapshot{}, errors.Wrapf(ErrInvalidQuantity, "add %d of %s", qty, p.ID)
	}

	return s.mutate(ctx, func(items []LineItem) ([]LineItem, bool, error) {
		if i := indexOf(items, p.ID); i >= 0 {
			next := items[i].Quantity + qty
			if err := s.checkLimit(p.ID, next); err != nil {
				return nil, false, err
			}
			items[i].Quantity = next
			return items, true, nil
		}

		if err := s.checkLimit(p.ID, qty); err != nil {
			return nil, false, err
		}
		return append(items, LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			ImageRef:  p.ImageRef,
			Quantity:  qty,
		}), true, nil
	})
}

// AddOne is Add with a quantity of one.
func (s *Store) AddOne(ctx context.Context, p Product) (Snapshot, error) {
	return s.Add(ctx, p, 1)
}

// Increase bumps the quantity of productID by one.
func (s *Store) Increase(ctx context.Context, productID string) (Snapshot, error) {
	return s.mutate(ctx, func(items []LineItem) ([]LineItem, bool, error) {
		i := indexOf(items, productID)
		if i < 0 {
			return nil, false, errors.Wrapf(ErrItemNotFound, "increase %s", productID)
		}
		if err := s.checkLimit(productID, items[i].Quantity+1); err != nil {
			return nil, false, err
		}
		items[i].Quantity++
		return items, true, nil
	})
}

// Decrease lowers the quantity of productID by one. A line at quantity one is
// removed instead of being kept at zero.
func (s *Store) Decrease(ctx context.Context, productID string) (Snapshot, error) {
	return s.mutate(ctx, func(items []LineItem) ([]LineItem, bool, error) {
		i := indexOf(items, productID)
		if i < 0 {
			return nil, false, errors.Wrapf(ErrItemNotFound, "decrease %s", productID)
		}
		if items[i].Quantity <= 1 {
			return append(items[:i], items[i+1:]...), true, nil
		}
		items[i].Quantity--
		return items, true, nil
	})
}

// Remove deletes the line for productID. Removing an absent product is a no-op.
func (s *Store) Remove(ctx context.Context, productID string) (Snapshot, error) {
	return s.mutate(ctx, func(items []LineItem) ([]LineItem, bool, error) {
		i := indexOf(items, productID)
		if i < 0 {
			return items, false, nil
		}
		return append(items[:i], items[i+1:]...), true, nil
	})
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) (Snapshot, error) {
	return s.mutate(ctx, func(items []LineItem) ([]LineItem, bool, error) {
		return []LineItem{}, len(items) > 0, nil
	})
}

// Subtract takes the quantities in ordered out of the cart. A line whose
// remaining quantity drops to zero is removed; lines not present in ordered,
// and units added after ordered was taken, stay in the cart.
func (s *Store) Subtract(ctx context.Context, ordered []LineItem) (Snapshot, error) {
	return s.mutate(ctx, func(items []LineItem) ([]LineItem, bool, error) {
		changed := false
		for _, o := range ordered {
			i := indexOf(items, o.ProductID)
			if i < 0 || o.Quantity <= 0 {
				continue
			}
			changed = true
			if items[i].Quantity <= o.Quantity {
				items = append(items[:i], items[i+1:]...)
				continue
			}
			items[i].Quantity -= o.Quantity
		}
		return items, changed, nil
	})
}

// Subscribe registers l for snapshots produced by later mutations. The
// returned function removes the listener and may be called more than once.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.notifyMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.notifyMu.Lock()
			delete(s.listeners, id)
			s.notifyMu.Unlock()
		})
	}
}

// Subscribers returns the number of registered listeners.
func (s *Store) Subscribers() int {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	return len(s.listeners)
}

// mutate applies fn to a copy of the current lines. The copy replaces the
// current state only after it has been saved; on any error the store is left
// exactly as it was and no listener runs.
func (s *Store) mutate(ctx context.Context, fn func([]LineItem) ([]LineItem, bool, error)) (Snapshot, error) {
	s.touch()
	s.mu.Lock()

	next, changed, err := fn(cloneItems(s.items))
	if err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	if !changed {
		snap := Snapshot{Items: cloneItems(s.items)}
		s.mu.Unlock()
		return snap, nil
	}

	if err := s.storage.Save(ctx, s.clientID, next); err != nil {
		s.mu.Unlock()
		return Snapshot{}, errors.Wrapf(err, "save cart %s", s.clientID)
	}
	s.items = next
	snap := Snapshot{Items: cloneItems(next)}

	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, l := range s.listeners {
		l(Snapshot{Items: cloneItems(snap.Items)})
	}
	return snap, nil
}

func (s *Store) checkLimit(productID string, qty int) error {
	if s.maxQty > 0 && qty > s.maxQty {
		return errors.Wrapf(ErrInvalidQuantity, "%s quantity %d exceeds %d", productID, qty, s.maxQty)
	}
	return nil
}

func (s *Store) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

func (s *Store) idleSince() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}
