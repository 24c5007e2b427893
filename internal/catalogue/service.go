package catalogue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Fetcher loads the full product listing from the store API.
type Fetcher interface {
	ListProducts(ctx context.Context, creds auth.Credentials) ([]Product, error)
}

// Service returns catalogue snapshots, keeping the last good one per customer.
type Service interface {
	// Snapshot fetches a fresh listing. When the fetch fails and a previous snapshot
	// exists, that snapshot is returned marked Stale and the error is swallowed.
	// Rejected credentials are never served from the cache and drop it.
	Snapshot(ctx context.Context, creds auth.Credentials) (*Snapshot, error)
	// Cached returns the last good snapshot without a network call.
	Cached(customerID string) (*Snapshot, bool)
}

type service struct {
	fetcher Fetcher
	logg    *logger.Logger
	now     func() time.Time

	mu    sync.RWMutex
	cache map[string]*Snapshot
}

// NewService builds a catalogue service backed by the provided fetcher.
func NewService(fetcher Fetcher, logg *logger.Logger) (Service, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("catalogue fetcher required")
	}
	return &service{
		fetcher: fetcher,
		logg:    logg,
		now:     time.Now,
		cache:   map[string]*Snapshot{},
	}, nil
}

func (s *service) Snapshot(ctx context.Context, creds auth.Credentials) (*Snapshot, error) {
	if !creds.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "login required")
	}

	products, err := s.fetcher.ListProducts(ctx, creds)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
			s.mu.Lock()
			delete(s.cache, creds.CustomerID)
			s.mu.Unlock()
			return nil, err
		}
		if cached, ok := s.Cached(creds.CustomerID); ok {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "catalogue.fetch_failed_serving_cached")
			}
			return cached.markStale(), nil
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch products")
	}

	snap := NewSnapshot(products, s.now())
	s.mu.Lock()
	s.cache[creds.CustomerID] = snap
	s.mu.Unlock()
	return snap, nil
}

func (s *service) Cached(customerID string) (*Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.cache[customerID]
	return snap, ok
}
