package enums

// CartWarningType enumerates reconciliation warnings raised while composing an order.
type CartWarningType string

const (
	CartWarningTypeProductMissing CartWarningType = "product_missing"
	CartWarningTypePriceChanged   CartWarningType = "price_changed"
	CartWarningTypeZeroPrice      CartWarningType = "zero_price"
)

// String implements fmt.Stringer.
func (c CartWarningType) String() string {
	return string(c)
}
