package enums

import "strings"

// PriceMode is the per-customer preference for which price fields are displayed.
type PriceMode string

const (
	// PriceModeAuto shows both prices when both exist, otherwise whichever exists.
	PriceModeAuto         PriceMode = "auto"
	PriceModeMRP          PriceMode = "mrp"
	PriceModeSellingPrice PriceMode = "selling_price"
	PriceModeBoth         PriceMode = "both"
)

// priceModeAliases maps normalized upstream strings onto a PriceMode.
var priceModeAliases = map[string]PriceMode{
	"mrp":                 PriceModeMRP,
	"sellingprice":        PriceModeSellingPrice,
	"discountprice":       PriceModeSellingPrice,
	"both":                PriceModeBoth,
	"mrpandsellingprice":  PriceModeBoth,
	"mrpanddiscountprice": PriceModeBoth,
}

// String implements fmt.Stringer.
func (p PriceMode) String() string {
	return string(p)
}

// ParsePriceMode lower-cases the value, strips whitespace, underscores and hyphens,
// and matches it against the known aliases. Unknown or empty input yields PriceModeAuto.
func ParsePriceMode(value string) PriceMode {
	normalized := NormalizePriceMode(value)
	if mode, ok := priceModeAliases[normalized]; ok {
		return mode
	}
	return PriceModeAuto
}

// NormalizePriceMode returns the comparison key for a raw mode string.
func NormalizePriceMode(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(value) {
		switch r {
		case ' ', '\t', '\n', '\r', '_', '-':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
