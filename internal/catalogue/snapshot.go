package catalogue

import (
	"sort"
	"strings"
	"time"
)

// Snapshot is the full product list returned by one fetch.
type Snapshot struct {
	Products  []Product
	FetchedAt time.Time
	// Stale marks a snapshot served from cache because the latest fetch failed.
	Stale bool

	byID map[int64]int
}

// NewSnapshot indexes products by id; the first record wins on duplicate ids.
func NewSnapshot(products []Product, fetchedAt time.Time) *Snapshot {
	s := &Snapshot{
		Products:  products,
		FetchedAt: fetchedAt,
		byID:      make(map[int64]int, len(products)),
	}
	for i, p := range products {
		if _, exists := s.byID[p.ID]; exists {
			continue
		}
		s.byID[p.ID] = i
	}
	return s
}

// Lookup returns the product with the given id.
func (s *Snapshot) Lookup(id int64) (Product, bool) {
	if s == nil {
		return Product{}, false
	}
	idx, ok := s.byID[id]
	if !ok {
		return Product{}, false
	}
	return s.Products[idx], true
}

// Len returns the number of products held.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Products)
}

func (s *Snapshot) markStale() *Snapshot {
	cp := *s
	cp.Stale = true
	return &cp
}

// Filter narrows a listing. Empty fields match everything; matching is case-insensitive.
type Filter struct {
	Category string
	Brand    string
	Query    string
}

func (f Filter) matches(p Product) bool {
	if c := strings.TrimSpace(f.Category); c != "" && !strings.EqualFold(strings.TrimSpace(p.Category), c) {
		return false
	}
	if b := strings.TrimSpace(f.Brand); b != "" && !strings.EqualFold(strings.TrimSpace(p.Brand), b) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" && !strings.Contains(strings.ToLower(p.Name), q) {
		return false
	}
	return true
}

// Filter returns the products matching f in listing order.
func (s *Snapshot) Filter(f Filter) []Product {
	if s == nil {
		return nil
	}
	out := make([]Product, 0, len(s.Products))
	for _, p := range s.Products {
		if f.matches(p) {
			out = append(out, p)
		}
	}
	return out
}

// Categories returns the distinct non-empty categories, sorted.
func (s *Snapshot) Categories() []string {
	return s.distinct(func(p Product) string { return p.Category })
}

// Brands returns the distinct non-empty brands, sorted.
func (s *Snapshot) Brands() []string {
	return s.distinct(func(p Product) string { return p.Brand })
}

func (s *Snapshot) distinct(field func(Product) string) []string {
	if s == nil {
		return nil
	}
	seen := map[string]struct{}{}
	out := []string{}
	for _, p := range s.Products {
		v := strings.TrimSpace(field(p))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
