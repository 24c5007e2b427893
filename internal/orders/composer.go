package orders

import (
	"fmt"
	"sort"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalogue"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// Compose joins the visible cart lines against snap and prices them with policy.
// A product missing from the snapshot keeps its line at price 0 and raises a
// product_missing warning. Compose never fails; an empty input yields an empty
// payload with a zero total. Lines are ordered by product id.
func Compose(lines []cart.Entry, snap *catalogue.Snapshot, policy pricing.Policy, now time.Time) Composition {
	visible := make([]cart.Entry, 0, len(lines))
	for _, line := range lines {
		if line.Visible() {
			visible = append(visible, line)
		}
	}
	sort.Slice(visible, func(i, j int) bool { return visible[i].ProductID < visible[j].ProductID })

	out := Composition{
		Payload: Payload{
			Products:  make([]Line, 0, len(visible)),
			OrderType: enums.OrderTypeAt(now),
			OrderDate: now.Format(OrderDateLayout),
		},
		Lines:    make([]PricedLine, 0, len(visible)),
		Warnings: []Warning{},
	}

	total := decimal.Zero
	for _, line := range visible {
		priced := PricedLine{
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: decimal.Zero,
		}

		product, found := snap.Lookup(line.ProductID)
		if found {
			priced.Found = true
			priced.Name = product.Name
			priced.UnitPrice = policy.UnitPrice(product)
			out.Warnings = append(out.Warnings, driftWarnings(line, product, priced.UnitPrice, policy)...)
		} else {
			out.Warnings = append(out.Warnings, Warning{
				Type:      enums.CartWarningTypeProductMissing,
				ProductID: line.ProductID,
				Message:   fmt.Sprintf("product %d is no longer listed and was priced at 0", line.ProductID),
			})
		}

		priced.LineTotal = priced.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		total = total.Add(priced.LineTotal)

		out.Lines = append(out.Lines, priced)
		out.Payload.Products = append(out.Payload.Products, Line{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     number(priced.UnitPrice),
		})
	}

	out.Total = total
	out.Payload.TotalAmount = number(total)
	return out
}

func driftWarnings(line cart.Entry, product catalogue.Product, current decimal.Decimal, policy pricing.Policy) []Warning {
	var warnings []Warning
	if current.IsZero() {
		warnings = append(warnings, Warning{
			Type:      enums.CartWarningTypeZeroPrice,
			ProductID: line.ProductID,
			Message:   fmt.Sprintf("product %d has no price", line.ProductID),
		})
	}
	added, ok := line.AddedProduct()
	if !ok {
		return warnings
	}
	previous := policy.UnitPrice(added)
	if !previous.Equal(current) {
		prev, cur := previous, current
		warnings = append(warnings, Warning{
			Type:      enums.CartWarningTypePriceChanged,
			ProductID: line.ProductID,
			Message:   fmt.Sprintf("price of %s changed from %s to %s", displayName(product, line), previous.StringFixed(2), current.StringFixed(2)),
			Previous:  &prev,
			Current:   &cur,
		})
	}
	return warnings
}

func displayName(product catalogue.Product, line cart.Entry) string {
	if product.Name != "" {
		return product.Name
	}
	if line.Name != "" {
		return line.Name
	}
	return fmt.Sprintf("product %d", line.ProductID)
}
