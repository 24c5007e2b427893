package cart

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/catalogue"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/kvstore"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

func newTestStore(t *testing.T, kv kvstore.Store) *Store {
	t.Helper()
	store, err := NewStore("cust-1", "", kv, nil, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	store.Restore(context.Background())
	return store
}

func TestIncreaseStartsFromZero(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, kvstore.NewMemoryStore())
	ctx := context.Background()

	if got := store.Increase(ctx, 7, nil); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := store.Increase(ctx, 7, nil); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if store.ItemCount() != 1 || store.UnitCount() != 2 {
		t.Fatalf("unexpected counts: items=%d units=%d", store.ItemCount(), store.UnitCount())
	}
}

func TestIncreaseTagsProductOnce(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, kvstore.NewMemoryStore())
	ctx := context.Background()

	first := &catalogue.Product{ID: 3, Name: "Tea", Price: decimal.NewFromInt(120)}
	second := &catalogue.Product{ID: 3, Name: "Tea 2", Price: decimal.NewFromInt(150)}
	store.Increase(ctx, 3, first)
	store.Increase(ctx, 3, second)

	lines := store.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d", len(lines))
	}
	added, ok := lines[0].AddedProduct()
	if !ok || added.Name != "Tea" || !added.Price.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("expected add-time snapshot to be kept, got %+v", added)
	}
}

func TestDecreasePolicies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newTestStore(t, kvstore.NewMemoryStore())
	store.Increase(ctx, 1, nil)
	store.Increase(ctx, 1, nil)
	if got := store.Decrease(ctx, 1, enums.DecreasePolicyDeleteOnZero); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := store.Decrease(ctx, 1, enums.DecreasePolicyDeleteOnZero); got != 0 {
		t.Fatalf("expected removal, got %d", got)
	}
	if _, ok := store.Quantities()[1]; ok {
		t.Fatal("expected entry to be deleted")
	}

	store.Increase(ctx, 2, nil)
	if got := store.Decrease(ctx, 2, enums.DecreasePolicyClampAtOne); got != 1 {
		t.Fatalf("expected clamp at 1, got %d", got)
	}
	if store.Quantity(2) != 1 {
		t.Fatalf("expected quantity 1, got %d", store.Quantity(2))
	}

	if got := store.Decrease(ctx, 99, enums.DecreasePolicyDeleteOnZero); got != 0 {
		t.Fatalf("expected absent decrease to be a no-op, got %d", got)
	}
	if store.ItemCount() != 1 {
		t.Fatalf("expected absent decrease to leave cart alone, got %d items", store.ItemCount())
	}
}

func TestSetQuantityEditingState(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, kvstore.NewMemoryStore())
	ctx := context.Background()

	store.Increase(ctx, 4, nil)
	store.Increase(ctx, 4, nil)

	if !store.SetQuantity(ctx, 4, "") {
		t.Fatal("expected blank input to apply")
	}
	if store.Quantity(4) != 0 || store.ItemCount() != 0 {
		t.Fatal("expected entry to be hidden while editing")
	}

	if store.SetQuantity(ctx, 4, "abc") {
		t.Fatal("expected unparsable input to be ignored")
	}

	if !store.SetQuantity(ctx, 4, "-3") {
		t.Fatal("expected negative input to be stored")
	}
	if _, ok := store.Quantities()[4]; ok {
		t.Fatal("expected negative quantity to stay hidden")
	}

	if !store.SetQuantity(ctx, 4, "12 boxes") {
		t.Fatal("expected leading integer to parse")
	}
	if store.Quantity(4) != 12 {
		t.Fatalf("expected 12, got %d", store.Quantity(4))
	}
}

func TestCommitQuantity(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, kvstore.NewMemoryStore())
	ctx := context.Background()

	store.Increase(ctx, 5, nil)
	store.Increase(ctx, 5, nil)
	store.Increase(ctx, 5, nil)

	store.SetQuantity(ctx, 5, "")
	if got := store.CommitQuantity(ctx, 5, ""); got != 3 {
		t.Fatalf("expected revert to committed 3, got %d", got)
	}

	store.SetQuantity(ctx, 5, "0")
	if got := store.CommitQuantity(ctx, 5, "0"); got != 3 {
		t.Fatalf("expected revert to committed 3, got %d", got)
	}

	if got := store.CommitQuantity(ctx, 5, "8"); got != 8 {
		t.Fatalf("expected 8, got %d", got)
	}

	if got := store.CommitQuantity(ctx, 6, "x"); got != 1 {
		t.Fatalf("expected uncommitted entry to fall back to 1, got %d", got)
	}
}

func TestRemoveAndClear(t *testing.T) {
	t.Parallel()
	kv := kvstore.NewMemoryStore()
	store := newTestStore(t, kv)
	ctx := context.Background()

	store.Increase(ctx, 1, nil)
	store.Increase(ctx, 2, nil)

	if !store.Remove(ctx, 1) {
		t.Fatal("expected remove to report existing entry")
	}
	if store.Remove(ctx, 1) {
		t.Fatal("expected second remove to report absent entry")
	}
	store.Clear(ctx)
	if store.ItemCount() != 0 {
		t.Fatalf("expected empty cart, got %d", store.ItemCount())
	}
	if _, err := kv.Load(ctx, SnapshotKey("cust-1")); !errors.Is(err, kvstore.ErrNotFound) {
		t.Fatalf("expected snapshot deleted, got %v", err)
	}
	store.Restore(ctx)
	if store.ItemCount() != 0 {
		t.Fatal("expected restore after clear to yield an empty cart")
	}
}

// Any sequence of increase/decrease/commit leaves every visible quantity >= 1.
func TestQuantitiesNeverBelowOne(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, kvstore.NewMemoryStore())
	ctx := context.Background()

	steps := []func(){
		func() { store.Increase(ctx, 1, nil) },
		func() { store.Decrease(ctx, 1, enums.DecreasePolicyDeleteOnZero) },
		func() { store.Decrease(ctx, 1, enums.DecreasePolicyDeleteOnZero) },
		func() { store.Increase(ctx, 2, nil) },
		func() { store.SetQuantity(ctx, 2, "-5") },
		func() { store.CommitQuantity(ctx, 2, "-5") },
		func() { store.Decrease(ctx, 2, enums.DecreasePolicyClampAtOne) },
		func() { store.SetQuantity(ctx, 3, "") },
		func() { store.CommitQuantity(ctx, 3, "") },
		func() { store.Decrease(ctx, 3, enums.DecreasePolicyDeleteOnZero) },
		func() { store.Increase(ctx, 3, nil) },
	}
	for i, step := range steps {
		step()
		store.mu.Lock()
		for id, entry := range store.entries {
			if entry.Committed != 0 && entry.Committed < 1 {
				t.Fatalf("step %d: committed quantity %d for %d", i, entry.Committed, id)
			}
		}
		store.mu.Unlock()
		for id, qty := range store.Quantities() {
			if qty < 1 {
				t.Fatalf("step %d: visible quantity %d for %d", i, qty, id)
			}
		}
	}
	if store.Quantity(2) != 1 || store.Quantity(3) != 1 {
		t.Fatalf("unexpected final quantities %v", store.Quantities())
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	t.Parallel()
	kv := kvstore.NewMemoryStore()
	ctx := context.Background()

	store := newTestStore(t, kv)
	store.Increase(ctx, 10, &catalogue.Product{ID: 10, Name: "Rice", Price: decimal.NewFromInt(50)})
	store.Increase(ctx, 10, nil)
	store.Increase(ctx, 11, nil)
	store.CommitQuantity(ctx, 11, "4")

	want := store.Quantities()

	restored := newTestStore(t, kv)
	got := restored.Quantities()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for id, qty := range want {
		if got[id] != qty {
			t.Fatalf("product %d: expected %d, got %d", id, qty, got[id])
		}
	}
	lines := restored.Lines()
	if lines[0].Name != "Rice" {
		t.Fatalf("expected product snapshot to survive restore, got %+v", lines[0])
	}
}

func TestRestoreRepairsEditingEntries(t *testing.T) {
	t.Parallel()
	kv := kvstore.NewMemoryStore()
	ctx := context.Background()

	store := newTestStore(t, kv)
	store.Increase(ctx, 1, nil)
	store.Increase(ctx, 1, nil)
	store.SetQuantity(ctx, 1, "")
	store.SetQuantity(ctx, 2, "")

	restored := newTestStore(t, kv)
	if restored.Quantity(1) != 2 {
		t.Fatalf("expected editing entry to revert to committed 2, got %d", restored.Quantity(1))
	}
	restored.mu.Lock()
	_, kept := restored.entries[2]
	restored.mu.Unlock()
	if kept {
		t.Fatal("expected never committed entry to be dropped")
	}
}

func TestRestoreAbsentOrMalformed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	empty := newTestStore(t, kvstore.NewMemoryStore())
	if empty.ItemCount() != 0 {
		t.Fatal("expected empty cart when nothing persisted")
	}

	kv := kvstore.NewMemoryStore()
	if err := kv.Save(ctx, SnapshotKey("cust-1"), []byte("{not json")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	broken := newTestStore(t, kv)
	if broken.ItemCount() != 0 {
		t.Fatal("expected empty cart for malformed snapshot")
	}
}

func TestPersistFailureKeepsMemoryState(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	kv := &failingStore{err: errors.New("disk full")}

	store, err := NewStore("cust-1", "", kv, nil, m)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	store.Restore(ctx)

	if got := store.Increase(ctx, 1, nil); got != 1 {
		t.Fatalf("expected mutation to apply despite write failure, got %d", got)
	}
	if store.Quantity(1) != 1 {
		t.Fatal("expected in-memory state to be kept")
	}
	if kv.saves != 1 {
		t.Fatalf("expected one write attempt, got %d", kv.saves)
	}
	count, err := testutil.GatherAndCount(reg, "cart_persist_failures_total")
	if err != nil || count != 1 {
		t.Fatalf("expected persist failure to be counted, got %d series (%v)", count, err)
	}
}

func TestPersistedDocumentShape(t *testing.T) {
	t.Parallel()
	kv := kvstore.NewMemoryStore()
	ctx := context.Background()

	store := newTestStore(t, kv)
	store.Increase(ctx, 42, nil)

	raw, err := kv.Load(ctx, SnapshotKey("cust-1"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Version != documentVersion || doc.Entries[42].Quantity != 1 {
		t.Fatalf("unexpected document %+v", doc)
	}
}

func TestParseQuantity(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw  string
		want int
		ok   bool
	}{
		{raw: "3", want: 3, ok: true},
		{raw: " 7 ", want: 7, ok: true},
		{raw: "-2", want: -2, ok: true},
		{raw: "+4", want: 4, ok: true},
		{raw: "5.9", want: 5, ok: true},
		{raw: "12abc", want: 12, ok: true},
		{raw: "abc", ok: false},
		{raw: "-", ok: false},
		{raw: "", ok: false},
		{raw: "99999999999999999999999", ok: false},
	}
	for _, tc := range cases {
		got, ok := parseQuantity(tc.raw)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("parseQuantity(%q) = %d, %v; want %d, %v", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRegistrySessions(t *testing.T) {
	t.Parallel()
	kv := kvstore.NewMemoryStore()
	reg, err := NewRegistry(kv, nil, nil, nil)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }
	ctx := context.Background()

	a, err := reg.Session(ctx, "cust-a")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	a.Increase(ctx, 1, nil)

	again, _ := reg.Session(ctx, "cust-a")
	if again != a {
		t.Fatal("expected the same live session")
	}

	now = now.Add(time.Hour)
	if n := reg.Evict(30 * time.Minute); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	if reg.Len() != 0 {
		t.Fatalf("expected no live sessions, got %d", reg.Len())
	}

	restored, _ := reg.Session(ctx, "cust-a")
	if restored == a || restored.Quantity(1) != 1 {
		t.Fatal("expected a fresh session restored from persistence")
	}

	if _, err := reg.Session(ctx, " "); err == nil {
		t.Fatal("expected blank customer to fail")
	}
}

type failingStore struct {
	err   error
	saves int
}

func (f *failingStore) Load(context.Context, string) ([]byte, error) {
	return nil, kvstore.ErrNotFound
}

func (f *failingStore) Save(context.Context, string, []byte) error {
	f.saves++
	return f.err
}

func (f *failingStore) Delete(context.Context, string) error {
	return f.err
}
