package cartview

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalogue"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type sessionProvider interface {
	Session(ctx context.Context, customerID string) (*cart.Store, error)
}

// Line is one visible cart entry priced for display.
type Line struct {
	ProductID int64                `json:"product_id"`
	Name      string               `json:"name"`
	Image     string               `json:"image,omitempty"`
	Size      string               `json:"size,omitempty"`
	Quantity  int                  `json:"quantity"`
	Price     pricing.DisplayPrice `json:"price"`
	LineTotal decimal.Decimal      `json:"line_total"`
	GST       decimal.Decimal      `json:"gst_component"`
	Available bool                 `json:"available"`
}

// View is the priced cart a client renders. Total matches what checkout would submit.
type View struct {
	Lines     []Line           `json:"lines"`
	ItemCount int              `json:"item_count"`
	UnitCount int              `json:"unit_count"`
	Total     decimal.Decimal  `json:"total"`
	GSTTotal  decimal.Decimal  `json:"gst_total"`
	PriceMode enums.PriceMode  `json:"price_mode"`
	Warnings  []orders.Warning `json:"warnings"`
	Stale     bool             `json:"stale_catalogue"`
}

// Builder assembles cart views from the session, catalogue and price mode.
type Builder struct {
	carts     sessionProvider
	catalogue catalogue.Service
	modes     pricing.Resolver
	policy    pricing.Policy
	location  *time.Location
	now       func() time.Time
}

func NewBuilder(carts sessionProvider, cat catalogue.Service, modes pricing.Resolver, loc *time.Location) (*Builder, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart sessions required")
	}
	if cat == nil {
		return nil, fmt.Errorf("catalogue service required")
	}
	if modes == nil {
		return nil, fmt.Errorf("price mode resolver required")
	}
	if loc == nil {
		loc = time.Local
	}
	return &Builder{
		carts:     carts,
		catalogue: cat,
		modes:     modes,
		policy:    pricing.DefaultPolicy,
		location:  loc,
		now:       time.Now,
	}, nil
}

// Build prices the caller's cart. The catalogue and the price mode are fetched concurrently.
func (b *Builder) Build(ctx context.Context, creds auth.Credentials) (*View, error) {
	if !creds.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "login required")
	}

	store, err := b.carts.Session(ctx, creds.CustomerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	entries := store.Lines()

	var (
		snap *catalogue.Snapshot
		mode = enums.PriceModeAuto
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var snapErr error
		snap, snapErr = b.catalogue.Snapshot(gctx, creds)
		return snapErr
	})
	g.Go(func() error {
		mode = b.modes.Resolve(gctx, creds)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return b.assemble(entries, snap, mode, b.now().In(b.location)), nil
}

func (b *Builder) assemble(entries []cart.Entry, snap *catalogue.Snapshot, mode enums.PriceMode, now time.Time) *View {
	composed := orders.Compose(entries, snap, b.policy, now)

	byID := make(map[int64]cart.Entry, len(entries))
	for _, entry := range entries {
		byID[entry.ProductID] = entry
	}

	view := &View{
		Lines:     make([]Line, 0, len(composed.Lines)),
		Total:     composed.Total,
		GSTTotal:  decimal.Zero,
		PriceMode: mode,
		Warnings:  composed.Warnings,
		Stale:     snap != nil && snap.Stale,
	}

	for _, priced := range composed.Lines {
		entry := byID[priced.ProductID]
		line := Line{
			ProductID: priced.ProductID,
			Name:      priced.Name,
			Image:     entry.Image,
			Quantity:  priced.Quantity,
			LineTotal: priced.LineTotal,
			GST:       decimal.Zero,
			Available: priced.Found,
			Price:     pricing.DisplayPrice{Mode: mode, Charged: priced.UnitPrice},
		}
		if product, ok := snap.Lookup(priced.ProductID); ok {
			line.Price = b.policy.Display(product, mode)
			line.GST = pricing.GSTComponent(priced.LineTotal, product.GSTRate)
			line.Size = product.Size
			if product.Image != "" {
				line.Image = product.Image
			}
		}
		view.GSTTotal = view.GSTTotal.Add(line.GST)
		view.UnitCount += line.Quantity
		view.Lines = append(view.Lines, line)
	}
	view.ItemCount = len(view.Lines)
	return view
}
