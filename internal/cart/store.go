package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/catalogue"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/kvstore"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	opIncrease = "increase"
	opDecrease = "decrease"
	opSet      = "set_quantity"
	opCommit   = "commit_quantity"
	opRemove   = "remove"
	opClear    = "clear"
	opRestore  = "restore"
)

// SnapshotKey is the default persistence key of a customer's cart.
func SnapshotKey(customerID string) string {
	return "cart:" + customerID
}

// Store is one customer's cart. Every mutation is written through to the
// key-value store before it returns; write failures are logged and counted but
// never surface to the caller and never roll back the in-memory state.
type Store struct {
	customerID string
	key        string
	kv         kvstore.Store
	logg       *logger.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	// registry is set for sessions handed out by a Registry; an evicted session
	// forwards to the customer's live one.
	registry *Registry

	mu       sync.Mutex
	entries  map[int64]*Entry
	restored bool
	evicted  bool
	lastUsed time.Time
}

// NewStore builds an empty, not yet restored cart for customerID persisted under key.
func NewStore(customerID, key string, kv kvstore.Store, logg *logger.Logger, m *metrics.Metrics) (*Store, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, fmt.Errorf("customer id required")
	}
	if kv == nil {
		return nil, fmt.Errorf("kv store required")
	}
	if key == "" {
		key = SnapshotKey(customerID)
	}
	return &Store{
		customerID: customerID,
		key:        key,
		kv:         kv,
		logg:       logg,
		metrics:    m,
		now:        time.Now,
		entries:    map[int64]*Entry{},
	}, nil
}

// CustomerID returns the owner of the cart.
func (s *Store) CustomerID() string {
	return s.customerID
}

// Restore replaces the in-memory cart with the persisted snapshot. An absent or
// unreadable snapshot yields an empty cart.
func (s *Store) Restore(ctx context.Context) {
	s = s.acquire(ctx)
	defer s.mu.Unlock()
	s.restoreLocked(ctx)
}

// acquire locks the live session for this cart. A session dropped by Evict
// hands over to the registry's current one, or is re-registered and reloaded
// when none exists. The returned store is locked.
func (s *Store) acquire(ctx context.Context) *Store {
	for {
		s.mu.Lock()
		if !s.evicted {
			if !s.restored && s.registry != nil {
				s.restoreLocked(ctx)
			}
			return s
		}
		s.mu.Unlock()
		s = s.registry.adopt(s)
	}
}

// open is called by Registry.Session: it restores the cart on first use and
// marks it as in use. Reports false when the session was evicted meanwhile.
func (s *Store) open(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.evicted {
		return false
	}
	if !s.restored {
		s.restoreLocked(ctx)
	}
	s.touchLocked()
	return true
}

// evictIfIdle marks the store evicted when it was last used before cutoff. A
// store locked by a running operation is in use and kept.
func (s *Store) evictIfIdle(cutoff time.Time) bool {
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()
	if !s.lastUsed.Before(cutoff) {
		return false
	}
	s.evicted = true
	return true
}

func (s *Store) restoreLocked(ctx context.Context) {
	s.restored = true
	s.touchLocked()
	s.entries = map[int64]*Entry{}

	raw, err := s.kv.Load(ctx, s.key)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return
		}
		s.metrics.IncPersistFailure(opRestore)
		s.logError(ctx, "cart.restore_failed", err)
		return
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logWarn(ctx, "cart.snapshot_malformed", err)
		return
	}
	s.entries = doc.normalize()
}

// Persist writes the current cart to the key-value store.
func (s *Store) Persist(ctx context.Context) {
	s = s.acquire(ctx)
	defer s.mu.Unlock()
	s.persistLocked(ctx, "persist")
}

func (s *Store) persistLocked(ctx context.Context, op string) {
	doc := document{
		Version:   documentVersion,
		Entries:   make(map[int64]Entry, len(s.entries)),
		UpdatedAt: s.now().UTC(),
	}
	for id, entry := range s.entries {
		doc.Entries[id] = *entry
	}
	raw, err := json.Marshal(doc)
	if err == nil {
		err = s.kv.Save(ctx, s.key, raw)
	}
	if err != nil {
		s.metrics.IncPersistFailure(op)
		s.logError(ctx, "cart.persist_failed", err)
	}
}

func (s *Store) mutated(ctx context.Context, op string) {
	s.touchLocked()
	s.metrics.IncCartMutation(op)
	s.persistLocked(ctx, op)
}

// Increase adds one unit of productID. ref, when known, tags a new entry with the
// product as currently listed. Returns the new quantity.
func (s *Store) Increase(ctx context.Context, productID int64, ref *catalogue.Product) int {
	s = s.acquire(ctx)
	defer s.mu.Unlock()

	entry := s.entryLocked(productID)
	entry.tag(ref)
	if entry.Quantity < 0 {
		entry.Quantity = 0
	}
	entry.Quantity++
	entry.Committed = entry.Quantity
	s.mutated(ctx, opIncrease)
	return entry.Quantity
}

// Decrease removes one unit of productID. At quantity 1 the policy decides
// between deleting the entry and keeping it at 1. An absent entry is left alone.
// Returns the resulting quantity, 0 when the entry is gone.
func (s *Store) Decrease(ctx context.Context, productID int64, policy enums.DecreasePolicy) int {
	s = s.acquire(ctx)
	defer s.mu.Unlock()

	entry, ok := s.entries[productID]
	if !ok {
		return 0
	}
	next := entry.Quantity - 1
	if next < 1 {
		if policy == enums.DecreasePolicyClampAtOne {
			next = 1
		} else {
			delete(s.entries, productID)
			s.mutated(ctx, opDecrease)
			return 0
		}
	}
	entry.Quantity = next
	entry.Committed = next
	s.mutated(ctx, opDecrease)
	return next
}

// SetQuantity applies an interactive edit. Blank input sets the quantity to 0,
// which hides the entry until it is committed. Input without a leading integer is
// ignored. Any parsed integer is stored as-is. Reports whether the cart changed.
func (s *Store) SetQuantity(ctx context.Context, productID int64, raw string) bool {
	s = s.acquire(ctx)
	defer s.mu.Unlock()

	var value int
	if strings.TrimSpace(raw) != "" {
		parsed, ok := parseQuantity(raw)
		if !ok {
			return false
		}
		value = parsed
	}
	entry := s.entryLocked(productID)
	entry.Quantity = value
	s.mutated(ctx, opSet)
	return true
}

// CommitQuantity finalises an edit. A parsed value >= 1 becomes the quantity;
// anything else reverts to the last committed quantity, or 1 when there is none.
// Returns the committed quantity.
func (s *Store) CommitQuantity(ctx context.Context, productID int64, raw string) int {
	s = s.acquire(ctx)
	defer s.mu.Unlock()

	entry := s.entryLocked(productID)
	if value, ok := parseQuantity(raw); ok && value >= 1 {
		entry.Quantity = value
	} else if entry.Committed >= 1 {
		entry.Quantity = entry.Committed
	} else {
		entry.Quantity = 1
	}
	entry.Committed = entry.Quantity
	s.mutated(ctx, opCommit)
	return entry.Quantity
}

// Remove deletes productID regardless of its quantity. Reports whether it existed.
func (s *Store) Remove(ctx context.Context, productID int64) bool {
	s = s.acquire(ctx)
	defer s.mu.Unlock()

	if _, ok := s.entries[productID]; !ok {
		return false
	}
	delete(s.entries, productID)
	s.mutated(ctx, opRemove)
	return true
}

// Clear empties the cart and deletes its persisted snapshot; a later Restore
// yields the same empty mapping.
func (s *Store) Clear(ctx context.Context) {
	s = s.acquire(ctx)
	defer s.mu.Unlock()

	s.entries = map[int64]*Entry{}
	s.touchLocked()
	s.metrics.IncCartMutation(opClear)
	if err := s.kv.Delete(ctx, s.key); err != nil {
		s.metrics.IncPersistFailure(opClear)
		s.logError(ctx, "cart.persist_failed", err)
	}
}

// Lines returns the visible entries ordered by product id.
func (s *Store) Lines() []Entry {
	s = s.acquire(context.Background())
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		if entry.Visible() {
			out = append(out, *entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// Quantities returns productId -> quantity for the visible entries.
func (s *Store) Quantities() map[int64]int {
	s = s.acquire(context.Background())
	defer s.mu.Unlock()

	out := make(map[int64]int, len(s.entries))
	for id, entry := range s.entries {
		if entry.Visible() {
			out[id] = entry.Quantity
		}
	}
	return out
}

// Quantity returns the visible quantity of productID, 0 when hidden or absent.
func (s *Store) Quantity(productID int64) int {
	s = s.acquire(context.Background())
	defer s.mu.Unlock()

	if entry, ok := s.entries[productID]; ok && entry.Visible() {
		return entry.Quantity
	}
	return 0
}

// ItemCount is the number of visible lines.
func (s *Store) ItemCount() int {
	s = s.acquire(context.Background())
	defer s.mu.Unlock()

	count := 0
	for _, entry := range s.entries {
		if entry.Visible() {
			count++
		}
	}
	return count
}

// UnitCount is the sum of the visible quantities.
func (s *Store) UnitCount() int {
	s = s.acquire(context.Background())
	defer s.mu.Unlock()

	total := 0
	for _, entry := range s.entries {
		if entry.Visible() {
			total += entry.Quantity
		}
	}
	return total
}

func (s *Store) entryLocked(productID int64) *Entry {
	entry, ok := s.entries[productID]
	if !ok {
		entry = &Entry{ProductID: productID, AddedAt: s.now().UTC()}
		s.entries[productID] = entry
	}
	return entry
}

func (s *Store) touchLocked() {
	s.lastUsed = s.now()
}

func (s *Store) logError(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(s.logg.WithCustomerID(ctx, s.customerID), msg, err)
}

func (s *Store) logWarn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithCustomerID(ctx, s.customerID)
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
}
