package pricing

import (
	"github.com/angelmondragon/storefront-backend/internal/catalogue"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// Policy decides which price a customer is charged. The display path and the
// order composer share one Policy so the shown price is the charged price.
type Policy struct{}

// DefaultPolicy charges the discounted price when one is set.
var DefaultPolicy = Policy{}

// UnitPrice returns discountPrice when present and positive, else price, else zero.
func (Policy) UnitPrice(p catalogue.Product) decimal.Decimal {
	if p.HasDiscount() {
		return p.DiscountPrice.Decimal
	}
	if p.Price.IsPositive() {
		return p.Price
	}
	return decimal.Zero
}

// DisplayPrice is the set of price fields a client should render for a product.
type DisplayPrice struct {
	Mode         enums.PriceMode  `json:"mode"`
	MRP          *decimal.Decimal `json:"mrp,omitempty"`
	SellingPrice *decimal.Decimal `json:"selling_price,omitempty"`
	Charged      decimal.Decimal  `json:"charged"`
}

// Display resolves the price fields for mode. The charged price is always one of
// the fields shown; a mode that would hide it falls back to showing both. A
// listed price is shown even when it is zero.
func (pol Policy) Display(p catalogue.Product, mode enums.PriceMode) DisplayPrice {
	charged := pol.UnitPrice(p)
	out := DisplayPrice{Mode: mode, Charged: charged}

	var mrp, selling *decimal.Decimal
	if p.HasPrice() && !p.Price.IsNegative() {
		v := p.Price
		mrp = &v
	}
	if p.HasDiscount() {
		v := p.DiscountPrice.Decimal
		selling = &v
	}

	switch mode {
	case enums.PriceModeMRP:
		out.MRP = mrp
		if mrp == nil || !mrp.Equal(charged) {
			out.SellingPrice = selling
		}
	case enums.PriceModeSellingPrice:
		out.SellingPrice = selling
		if selling == nil {
			out.MRP = mrp
		}
	default:
		out.MRP = mrp
		out.SellingPrice = selling
	}
	return out
}

// GSTComponent returns the tax already included in a GST-inclusive amount at
// ratePercent, rounded to two places.
func GSTComponent(inclusive decimal.Decimal, ratePercent decimal.NullDecimal) decimal.Decimal {
	if !ratePercent.Valid || !ratePercent.Decimal.IsPositive() || !inclusive.IsPositive() {
		return decimal.Zero
	}
	rate := ratePercent.Decimal
	return inclusive.Mul(rate).Div(rate.Add(decimal.NewFromInt(100))).Round(2)
}
