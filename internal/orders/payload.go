package orders

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// OrderDateLayout is the wire format of Payload.OrderDate.
const OrderDateLayout = time.RFC3339

// Line is one product of an order payload. Price is the unit price charged.
type Line struct {
	ProductID int64       `json:"product_id"`
	Quantity  int         `json:"quantity"`
	Price     json.Number `json:"price"`
}

// Payload is the body sent to the store API to place an order.
type Payload struct {
	Products    []Line          `json:"products"`
	OrderType   enums.OrderType `json:"orderType"`
	OrderDate   string          `json:"orderDate"`
	TotalAmount json.Number     `json:"total_amount"`
}

// Warning flags a line the customer should review before or after checkout.
// Warnings never change amounts.
type Warning struct {
	Type      enums.CartWarningType `json:"type"`
	ProductID int64                 `json:"product_id"`
	Message   string                `json:"message"`
	Previous  *decimal.Decimal      `json:"previous_price,omitempty"`
	Current   *decimal.Decimal      `json:"current_price,omitempty"`
}

// PricedLine is a composed line with decimal amounts kept for display.
type PricedLine struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
	Found     bool            `json:"found"`
}

// Composition is the result of joining a cart against a catalogue snapshot.
type Composition struct {
	Payload  Payload         `json:"payload"`
	Lines    []PricedLine    `json:"lines"`
	Total    decimal.Decimal `json:"total"`
	Warnings []Warning       `json:"warnings"`
}

// LogFields returns a summary suitable for structured logs.
func (c Composition) LogFields() map[string]any {
	return map[string]any{
		"lines":      len(c.Lines),
		"total":      c.Total.String(),
		"order_type": c.Payload.OrderType.String(),
		"warnings":   len(c.Warnings),
	}
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
