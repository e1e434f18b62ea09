// Package domain holds the shared vocabulary of the simulator: instrument kinds and currencies.
package domain

import "strings"

// Currency is an ISO-style currency code
type Currency string

const (
	CurrencyTRY     Currency = "TRY"
	CurrencyUSD     Currency = "USD"
	CurrencyUnknown Currency = ""
)

// InstrumentKind is the closed set of instrument classes the market feed publishes
type InstrumentKind string

const (
	KindStock         InstrumentKind = "STOCK"          // Exchange-listed equity, whole units
	KindMetalGram     InstrumentKind = "METAL_GRAM"     // Precious metal per gram, quoted in TRY
	KindCurrency      InstrumentKind = "CURRENCY"       // Foreign currency quoted in TRY
	KindMetalOunce    InstrumentKind = "METAL_OUNCE"    // Precious metal per ounce, quoted in USD
	KindCrossCurrency InstrumentKind = "CROSS_CURRENCY" // Currency pair not involving TRY
	KindIndex         InstrumentKind = "INDEX"          // Market index, informational only
	KindUnknown       InstrumentKind = "UNKNOWN"
)

// AllKinds lists every known kind except KindUnknown
var AllKinds = []InstrumentKind{
	KindStock, KindMetalGram, KindCurrency, KindMetalOunce, KindCrossCurrency, KindIndex,
}

// ParseInstrumentKind maps feed type labels (Turkish or English) to a kind
func ParseInstrumentKind(s string) InstrumentKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hisse", "stock", "equity":
		return KindStock
	case "maden_gram", "metal", "metal_gram":
		return KindMetalGram
	case "doviz", "currency", "fx":
		return KindCurrency
	case "maden_ons", "metal_ounce":
		return KindMetalOunce
	case "doviz_capraz", "cross", "cross_currency":
		return KindCrossCurrency
	case "endeks", "index":
		return KindIndex
	}
	upper := InstrumentKind(strings.ToUpper(strings.TrimSpace(s)))
	for _, k := range AllKinds {
		if k == upper {
			return k
		}
	}
	return KindUnknown
}

// QuoteCurrency is the currency the kind's prices are denominated in
func (k InstrumentKind) QuoteCurrency() Currency {
	switch k {
	case KindStock, KindMetalGram, KindCurrency, KindIndex:
		return CurrencyTRY
	case KindMetalOunce:
		return CurrencyUSD
	default:
		// Cross pairs are a ratio between two foreign currencies
		return CurrencyUnknown
	}
}

// AllowsFractional reports whether orders may use fractional quantities
func (k InstrumentKind) AllowsFractional() bool {
	return k == KindMetalGram || k == KindCurrency
}

// Tradable reports whether instruments of this kind can be bought or sold
// in an account settled in base.
func (k InstrumentKind) Tradable(base Currency) bool {
	if k == KindIndex || k == KindUnknown {
		return false
	}
	return k.QuoteCurrency() == base
}

// Label is a short human readable name for the kind
func (k InstrumentKind) Label() string {
	switch k {
	case KindStock:
		return "Stocks"
	case KindMetalGram:
		return "Precious metals (gram)"
	case KindCurrency:
		return "Currencies"
	case KindMetalOunce:
		return "Precious metals (ounce)"
	case KindCrossCurrency:
		return "Cross rates"
	case KindIndex:
		return "Indices"
	default:
		return "Other"
	}
}

// NormalizeSymbol canonicalises a ticker for lookups and storage
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
