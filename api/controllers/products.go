package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/catalogue"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type productResponse struct {
	ID       int64                `json:"id"`
	Name     string               `json:"name"`
	Category string               `json:"category,omitempty"`
	Brand    string               `json:"brand,omitempty"`
	Image    string               `json:"image,omitempty"`
	Size     string               `json:"size,omitempty"`
	Price    pricing.DisplayPrice `json:"price"`
	InCart   int                  `json:"in_cart"`
}

type catalogueMeta struct {
	Count      int       `json:"count"`
	Total      int       `json:"total"`
	Categories []string  `json:"categories"`
	Brands     []string  `json:"brands"`
	PriceMode  string    `json:"price_mode"`
	FetchedAt  time.Time `json:"fetched_at"`
	Stale      bool      `json:"stale"`
}

// ProductList returns the filtered catalogue with display prices for the caller's
// price mode and the quantity of each product already in the cart.
func ProductList(cat catalogue.Service, modes pricing.Resolver, carts CartSessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cat == nil || modes == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalogue service unavailable"))
			return
		}

		creds := middleware.CredentialsFromContext(r.Context())
		snap, err := cat.Snapshot(r.Context(), creds)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		mode := modes.Resolve(r.Context(), creds)

		var quantities map[int64]int
		if carts != nil {
			if store, sessErr := carts.Session(r.Context(), creds.CustomerID); sessErr == nil {
				quantities = store.Quantities()
			}
		}

		products := snap.Filter(validators.ParseCatalogueFilter(r))
		out := make([]productResponse, 0, len(products))
		for _, p := range products {
			out = append(out, productResponse{
				ID:       p.ID,
				Name:     p.Name,
				Category: p.Category,
				Brand:    p.Brand,
				Image:    p.Image,
				Size:     p.Size,
				Price:    pricing.DefaultPolicy.Display(p, mode),
				InCart:   quantities[p.ID],
			})
		}

		responses.WriteSuccessMeta(w, out, catalogueMeta{
			Count:      len(out),
			Total:      snap.Len(),
			Categories: snap.Categories(),
			Brands:     snap.Brands(),
			PriceMode:  mode.String(),
			FetchedAt:  snap.FetchedAt,
			Stale:      snap.Stale,
		})
	}
}

// PricingMode returns the caller's resolved price display mode.
func PricingMode(modes pricing.Resolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if modes == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pricing service unavailable"))
			return
		}
		mode := modes.Resolve(r.Context(), middleware.CredentialsFromContext(r.Context()))
		responses.WriteSuccess(w, map[string]enums.PriceMode{"mode": mode})
	}
}
