package cart

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/kvstore"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

// Registry hands out one live Store per customer, restoring it from the
// key-value store on first use.
type Registry struct {
	kv      kvstore.Store
	keyFn   func(customerID string) string
	logg    *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Store
}

// NewRegistry builds a registry. keyFn maps a customer onto its persistence key;
// nil uses SnapshotKey.
func NewRegistry(kv kvstore.Store, keyFn func(string) string, logg *logger.Logger, m *metrics.Metrics) (*Registry, error) {
	if kv == nil {
		return nil, fmt.Errorf("kv store required")
	}
	if keyFn == nil {
		keyFn = SnapshotKey
	}
	return &Registry{
		kv:       kv,
		keyFn:    keyFn,
		logg:     logg,
		metrics:  m,
		now:      time.Now,
		sessions: map[string]*Store{},
	}, nil
}

// Session returns the customer's cart, restored from persistence, and marks it
// as in use.
func (r *Registry) Session(ctx context.Context, customerID string) (*Store, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fmt.Errorf("customer id required")
	}

	for {
		store, err := r.lookup(customerID)
		if err != nil {
			return nil, err
		}
		if store.open(ctx) {
			return store, nil
		}
	}
}

func (r *Registry) lookup(customerID string) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if store, ok := r.sessions[customerID]; ok {
		return store, nil
	}
	store, err := NewStore(customerID, r.keyFn(customerID), r.kv, r.logg, r.metrics)
	if err != nil {
		return nil, err
	}
	store.now = r.now
	store.registry = r
	r.sessions[customerID] = store
	return store, nil
}

// adopt resolves an evicted store: the customer's live session when there is
// one, otherwise stale itself, registered again and due for a reload.
func (r *Registry) adopt(stale *Store) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	if live, ok := r.sessions[stale.customerID]; ok {
		return live
	}
	stale.mu.Lock()
	stale.evicted = false
	stale.restored = false
	stale.lastUsed = r.now()
	stale.mu.Unlock()
	r.sessions[stale.customerID] = stale
	return stale
}

// Evict drops sessions idle for longer than idle. Their state stays persisted and
// is restored on the next access. A caller still holding an evicted store keeps
// working on the customer's live cart. Returns how many were dropped.
func (r *Registry) Evict(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, store := range r.sessions {
		if store.evictIfIdle(cutoff) {
			delete(r.sessions, id)
			evicted++
		}
	}
	return evicted
}

// Flush writes every live session through to the key-value store. Returns how
// many carts were written.
func (r *Registry) Flush(ctx context.Context) int {
	r.mu.Lock()
	live := make([]*Store, 0, len(r.sessions))
	for _, store := range r.sessions {
		live = append(live, store)
	}
	r.mu.Unlock()

	for _, store := range live {
		store.Persist(ctx)
	}
	return len(live)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// RunEviction evicts idle sessions every interval until ctx is done.
func (r *Registry) RunEviction(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 || idle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Evict(idle); n > 0 && r.logg != nil {
				r.logg.Debug(r.logg.WithField(ctx, "evicted", n), "cart.sessions_evicted")
			}
		}
	}
}
