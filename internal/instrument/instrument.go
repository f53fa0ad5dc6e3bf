// Package instrument describes the price/quantity granularity of the single
// tradable instrument the engine is configured for. It is consumed by the
// sizer to snap prices and quantities; the engine never owns or mutates it.
package instrument

import "github.com/shopspring/decimal"

// Metadata describes the tick/lot granularity of one tradable instrument.
type Metadata struct {
	Symbol          string
	PipSize         decimal.Decimal
	TickSize        decimal.Decimal
	ContractSize    decimal.Decimal
	PricePrecision  int32
	QtyPrecision    int32
	MinQuantity     decimal.Decimal
}

// Known default metadata for a handful of common instruments, mirroring the
// teacher's per-symbol lot-size table (see exec.lotSize) but carried at the
// precision decimal.Decimal requires instead of a bare float constant.
var defaults = map[string]Metadata{
	"EURUSD": {
		Symbol:         "EURUSD",
		PipSize:        decimal.New(1, -4),
		TickSize:       decimal.New(1, -5),
		ContractSize:   decimal.New(1, 0),
		PricePrecision: 5,
		QtyPrecision:   2,
		MinQuantity:    decimal.New(1, -2),
	},
	"BTCUSDT": {
		Symbol:         "BTCUSDT",
		PipSize:        decimal.New(1, 0),
		TickSize:       decimal.New(1, -1),
		ContractSize:   decimal.New(1, 0),
		PricePrecision: 1,
		QtyPrecision:   3,
		MinQuantity:    decimal.New(1, -3),
	},
}

// Lookup returns the known metadata for symbol, or a generic fallback with
// conservative precision if the symbol is not in the built-in table.
func Lookup(symbol string) Metadata {
	if m, ok := defaults[symbol]; ok {
		return m
	}
	return Metadata{
		Symbol:         symbol,
		PipSize:        decimal.New(1, -4),
		TickSize:       decimal.New(1, -5),
		ContractSize:   decimal.New(1, 0),
		PricePrecision: 5,
		QtyPrecision:   2,
		MinQuantity:    decimal.New(1, -2),
	}
}

// SnapPriceAway rounds price to the instrument's tick size, up when widenUp
// is true and down otherwise, so that a caller snapping a protective price
// away from its entry never accidentally tightens it.
func (m Metadata) SnapPriceAway(price decimal.Decimal, widenUp bool) decimal.Decimal {
	if m.TickSize.IsZero() {
		return price
	}
	ticks := price.Div(m.TickSize)
	if widenUp {
		ticks = ticks.Ceil()
	} else {
		ticks = ticks.Floor()
	}
	return ticks.Mul(m.TickSize)
}

// SnapQuantityDown rounds qty down to the instrument's quantity precision.
func (m Metadata) SnapQuantityDown(qty decimal.Decimal) decimal.Decimal {
	factor := decimal.New(1, m.QtyPrecision)
	return qty.Mul(factor).Floor().Div(factor)
}
