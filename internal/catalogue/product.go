package catalogue

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Product is one record of the store API product listing. Snapshots are read-only.
type Product struct {
	ID            int64               `json:"id"`
	Name          string              `json:"name"`
	Price         decimal.Decimal     `json:"price"`
	DiscountPrice decimal.NullDecimal `json:"discountPrice"`
	Category      string              `json:"category"`
	Brand         string              `json:"brand"`
	GSTRate       decimal.NullDecimal `json:"gst_rate"`
	Image         string              `json:"image,omitempty"`
	Size          string              `json:"size,omitempty"`
	Offers        json.RawMessage     `json:"offers,omitempty"`

	// priced records an explicit "price" in the decoded listing, zero included.
	priced bool
}

// UnmarshalJSON decodes a listing record and remembers whether it carried a price.
func (p *Product) UnmarshalJSON(data []byte) error {
	type plain Product
	aux := struct {
		*plain
		Price *decimal.Decimal `json:"price"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.Price = decimal.Zero
	p.priced = aux.Price != nil
	if aux.Price != nil {
		p.Price = *aux.Price
	}
	return nil
}

// HasPrice reports whether the product lists a price. A decoded "price": 0
// counts as present.
func (p Product) HasPrice() bool {
	return p.priced || !p.Price.IsZero()
}

// HasDiscount reports whether a positive discounted price is present.
func (p Product) HasDiscount() bool {
	return p.DiscountPrice.Valid && p.DiscountPrice.Decimal.IsPositive()
}
