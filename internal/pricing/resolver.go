package pricing

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// ModeFetcher reads the raw price-mode string configured for a customer.
type ModeFetcher interface {
	FetchPriceMode(ctx context.Context, creds auth.Credentials) (string, error)
}

// Resolver maps a customer onto a PriceMode. It never fails: anything it cannot
// resolve becomes PriceModeAuto.
type Resolver interface {
	Resolve(ctx context.Context, creds auth.Credentials) enums.PriceMode
}

type resolver struct {
	fetcher ModeFetcher
	logg    *logger.Logger
}

// NewResolver builds a Resolver backed by the store API.
func NewResolver(fetcher ModeFetcher, logg *logger.Logger) (Resolver, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("price mode fetcher required")
	}
	return &resolver{fetcher: fetcher, logg: logg}, nil
}

func (r *resolver) Resolve(ctx context.Context, creds auth.Credentials) enums.PriceMode {
	if !creds.Valid() {
		return enums.PriceModeAuto
	}
	raw, err := r.fetcher.FetchPriceMode(ctx, creds)
	if err != nil {
		if r.logg != nil {
			r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "pricing.mode_fetch_failed")
		}
		return enums.PriceModeAuto
	}
	return enums.ParsePriceMode(raw)
}
