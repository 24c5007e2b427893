package cartview

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalogue"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/kvstore"
)

var creds = auth.Credentials{Token: "tok", CustomerID: "cust-1"}

type stubFetcher struct {
	products []catalogue.Product
	err      error
}

func (s *stubFetcher) ListProducts(context.Context, auth.Credentials) ([]catalogue.Product, error) {
	return s.products, s.err
}

type stubResolver struct {
	mode enums.PriceMode
}

func (s stubResolver) Resolve(context.Context, auth.Credentials) enums.PriceMode {
	return s.mode
}

func newBuilder(t *testing.T, fetcher *stubFetcher, mode enums.PriceMode) (*Builder, *cart.Registry) {
	t.Helper()
	registry, err := cart.NewRegistry(kvstore.NewMemoryStore(), nil, nil, nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	cat, err := catalogue.NewService(fetcher, nil)
	if err != nil {
		t.Fatalf("catalogue: %v", err)
	}
	b, err := NewBuilder(registry, cat, stubResolver{mode: mode}, time.UTC)
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	b.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return b, registry
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestBuildPricesLines(t *testing.T) {
	fetcher := &stubFetcher{products: []catalogue.Product{
		{ID: 1, Name: "Rice", Price: dec("120"), DiscountPrice: decimal.NewNullDecimal(dec("100")), GSTRate: decimal.NewNullDecimal(dec("5")), Size: "5kg"},
		{ID: 2, Name: "Soap", Price: dec("59"), GSTRate: decimal.NewNullDecimal(dec("18"))},
	}}
	b, registry := newBuilder(t, fetcher, enums.PriceModeMRP)

	ctx := context.Background()
	store, _ := registry.Session(ctx, creds.CustomerID)
	store.Increase(ctx, 1, nil)
	store.Increase(ctx, 1, nil)
	store.Increase(ctx, 2, nil)

	view, err := b.Build(ctx, creds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.ItemCount != 2 || view.UnitCount != 3 {
		t.Fatalf("unexpected counts items=%d units=%d", view.ItemCount, view.UnitCount)
	}
	if !view.Total.Equal(dec("259")) {
		t.Fatalf("expected total 259, got %s", view.Total)
	}
	if view.PriceMode != enums.PriceModeMRP {
		t.Fatalf("unexpected mode %s", view.PriceMode)
	}

	rice := view.Lines[0]
	if rice.ProductID != 1 || rice.Size != "5kg" || !rice.Available {
		t.Fatalf("unexpected first line %+v", rice)
	}
	if rice.Price.MRP == nil || !rice.Price.MRP.Equal(dec("120")) {
		t.Fatalf("expected mrp shown, got %+v", rice.Price)
	}
	if rice.Price.SellingPrice == nil || !rice.Price.Charged.Equal(dec("100")) {
		t.Fatalf("charged price must stay visible, got %+v", rice.Price)
	}
	if !rice.GST.Equal(dec("9.52")) {
		t.Fatalf("expected gst 9.52 on 200 at 5%%, got %s", rice.GST)
	}
	if !view.GSTTotal.Equal(dec("18.52")) {
		t.Fatalf("expected gst total 18.52, got %s", view.GSTTotal)
	}
}

func TestBuildMissingProductKeepsLine(t *testing.T) {
	b, registry := newBuilder(t, &stubFetcher{products: []catalogue.Product{}}, enums.PriceModeAuto)

	ctx := context.Background()
	store, _ := registry.Session(ctx, creds.CustomerID)
	store.Increase(ctx, 9, &catalogue.Product{ID: 9, Name: "Tea", Image: "tea.png", Price: dec("40")})

	view, err := b.Build(ctx, creds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(view.Lines) != 1 {
		t.Fatalf("expected one line, got %d", len(view.Lines))
	}
	line := view.Lines[0]
	if line.Available || !line.Price.Charged.IsZero() || line.Image != "tea.png" || line.Name != "Tea" {
		t.Fatalf("unexpected missing line %+v", line)
	}
	if len(view.Warnings) != 1 || view.Warnings[0].Type != enums.CartWarningTypeProductMissing {
		t.Fatalf("expected product_missing warning, got %+v", view.Warnings)
	}
}

func TestBuildEmptyCart(t *testing.T) {
	b, _ := newBuilder(t, &stubFetcher{}, enums.PriceModeAuto)

	view, err := b.Build(context.Background(), creds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(view.Lines) != 0 || !view.Total.IsZero() || view.ItemCount != 0 {
		t.Fatalf("expected empty view, got %+v", view)
	}
}

func TestBuildRequiresCredentials(t *testing.T) {
	b, _ := newBuilder(t, &stubFetcher{}, enums.PriceModeAuto)

	_, err := b.Build(context.Background(), auth.Credentials{})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestBuildCatalogueFailure(t *testing.T) {
	b, _ := newBuilder(t, &stubFetcher{err: errors.New("boom")}, enums.PriceModeAuto)

	_, err := b.Build(context.Background(), creds)
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestNewBuilderValidation(t *testing.T) {
	if _, err := NewBuilder(nil, nil, nil, nil); err == nil {
		t.Fatal("expected error without collaborators")
	}
}
