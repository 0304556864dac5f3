package cart

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// RegistryConfig controls store lifetime inside a Registry.
type RegistryConfig struct {
	Cart Config
	// IdleTTL evicts stores that have not been used for this long and have
	// no subscribers. Zero disables eviction.
	IdleTTL time.Duration
}

// Registry owns the open store of every active client. Stores are loaded from
// storage on first use and shared by all callers for the same client, so
// mutations for one client are serialized in-process.
type Registry struct {
	storage Storage
	cfg     RegistryConfig

	loads singleflight.Group

	mu     sync.Mutex
	stores map[string]*Store
}

// NewRegistry creates a Registry backed by storage.
func NewRegistry(storage Storage, cfg RegistryConfig) *Registry {
	return &Registry{
		storage: storage,
		cfg:     cfg,
		stores:  make(map[string]*Store),
	}
}

// Open returns the store for clientID, loading it from storage if needed.
func (r *Registry) Open(ctx context.Context, clientID string) (*Store, error) {
	if clientID == "" {
		return nil, ErrClientRequired
	}

	r.mu.Lock()
	s, ok := r.stores[clientID]
	r.mu.Unlock()
	if ok {
		s.touch()
		return s, nil
	}

	v, err, _ := r.loads.Do(clientID, func() (any, error) {
		r.mu.Lock()
		if s, ok := r.stores[clientID]; ok {
			r.mu.Unlock()
			return s, nil
		}
		r.mu.Unlock()

		s, err := Open(ctx, clientID, r.storage, r.cfg.Cart)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if existing, ok := r.stores[clientID]; ok {
			return existing, nil
		}
		r.stores[clientID] = s
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}

// Len returns the number of stores currently held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// cleanup evicts idle stores without subscribers. Evicted carts stay in
// storage and are reloaded by the next Open.
func (r *Registry) cleanup(now time.Time) int {
	if r.cfg.IdleTTL <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, s := range r.stores {
		if now.Sub(s.idleSince()) < r.cfg.IdleTTL || s.Subscribers() > 0 {
			continue
		}
		delete(r.stores, id)
		evicted++
	}
	return evicted
}

// StartCleanup launches a goroutine that evicts idle stores every IdleTTL.
// It stops when ctx is cancelled.
func (r *Registry) StartCleanup(ctx context.Context) {
	if r.cfg.IdleTTL <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(r.cfg.IdleTTL)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				r.cleanup(now)
			}
		}
	}()
}
