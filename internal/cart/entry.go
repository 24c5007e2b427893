package cart

import (
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/catalogue"
	"github.com/shopspring/decimal"
)

const documentVersion = 1

// Entry is one product line of a cart. Quantity is the live value and may sit
// below 1 while a client is editing it; Committed is the last value that passed
// a commit and is always 0 (never committed) or >= 1.
type Entry struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	Committed int   `json:"committed"`

	// Product fields as known when the entry was created.
	Tagged        bool                `json:"tagged"`
	Name          string              `json:"name,omitempty"`
	Image         string              `json:"image,omitempty"`
	Price         decimal.Decimal     `json:"price"`
	DiscountPrice decimal.NullDecimal `json:"discount_price"`

	AddedAt time.Time `json:"added_at"`
}

// Visible reports whether readers may expose the entry.
func (e Entry) Visible() bool {
	return e.Quantity > 0
}

// AddedProduct rebuilds the product as it was known when the entry was added.
func (e Entry) AddedProduct() (catalogue.Product, bool) {
	if !e.Tagged {
		return catalogue.Product{}, false
	}
	return catalogue.Product{
		ID:            e.ProductID,
		Name:          e.Name,
		Image:         e.Image,
		Price:         e.Price,
		DiscountPrice: e.DiscountPrice,
	}, true
}

func (e *Entry) tag(p *catalogue.Product) {
	if p == nil || e.Tagged {
		return
	}
	e.Tagged = true
	e.Name = p.Name
	e.Image = p.Image
	e.Price = p.Price
	e.DiscountPrice = p.DiscountPrice
}

// document is the single persisted structure holding a whole cart.
type document struct {
	Version   int             `json:"version"`
	Entries   map[int64]Entry `json:"entries"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// normalize drops or repairs entries left mid-edit when the snapshot was written.
func (d *document) normalize() map[int64]*Entry {
	out := make(map[int64]*Entry, len(d.Entries))
	for id, entry := range d.Entries {
		if id <= 0 {
			continue
		}
		e := entry
		e.ProductID = id
		if e.Committed < 1 && e.Quantity >= 1 {
			e.Committed = e.Quantity
		}
		if e.Quantity < 1 {
			if e.Committed < 1 {
				continue
			}
			e.Quantity = e.Committed
		}
		out[id] = &e
	}
	return out
}

// parseQuantity reads the leading integer of raw the way a lenient numeric input
// does: optional sign, then digits, trailing garbage ignored.
func parseQuantity(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
