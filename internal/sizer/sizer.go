// Package sizer converts ladder state, a current market price, and
// instrument metadata into an exact order quantity, stop price, and
// take-profit price. It performs no I/O and holds no state of its own.
package sizer

import (
	"errors"

	"github.com/shopspring/decimal"

	"stepback/internal/instrument"
)

// ErrBelowMinimum is returned when the quantity computed to hit the ladder's
// step-back loss amount rounds down below the instrument's minimum
// tradable quantity. The caller must refuse the trade without touching the
// ladder.
var ErrBelowMinimum = errors.New("sizer: computed quantity is below instrument minimum")

// Side is the direction of the position being sized.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Input bundles everything the sizer needs to compute a result. GrowthMinusOne
// is (G-1), the fractional profit target; LossFraction is the ladder's
// derived LossPercentageForStepBack(); both are supplied by the caller so the
// sizer stays ignorant of the ladder type.
type Input struct {
	Instrument      instrument.Metadata
	Side            Side
	EntryPrice      decimal.Decimal
	GrowthMinusOne  decimal.Decimal
	LossFraction    decimal.Decimal
	LossAmount      decimal.Decimal
	FixedPipMode    bool
	FixedPipDistance decimal.Decimal
}

// Result is the sizer's output, ready to hand to the order gateway.
type Result struct {
	Quantity        decimal.Decimal
	StopLossPrice   decimal.Decimal
	TakeProfitPrice decimal.Decimal
	// EffectiveLoss is the cash loss actually realized by Quantity at
	// StopLossPrice once quantity has been snapped down to the instrument's
	// quantity precision; it may differ slightly from the requested
	// LossAmount, and callers should journal the difference rather than
	// silently discard it.
	EffectiveLoss decimal.Decimal
}

// Size computes a Result for in. It never mutates the ladder; callers apply
// the result to the ladder only after a fill is confirmed.
func Size(in Input) (Result, error) {
	takeProfit := priceAt(in.Instrument, in.EntryPrice, in.GrowthMinusOne, in.Side == Long)
	var stopDistanceFraction decimal.Decimal
	if in.FixedPipMode {
		stopDistanceFraction = in.FixedPipDistance.Mul(in.Instrument.PipSize).Div(in.EntryPrice)
	} else {
		stopDistanceFraction = in.LossFraction
	}
	stopLoss := priceAt(in.Instrument, in.EntryPrice, stopDistanceFraction, in.Side == Short)

	stopDistance := in.EntryPrice.Sub(stopLoss).Abs()
	if stopDistance.IsZero() {
		return Result{}, ErrBelowMinimum
	}

	rawQty := in.LossAmount.Div(stopDistance).Div(in.Instrument.ContractSize)
	qty := in.Instrument.SnapQuantityDown(rawQty)
	if qty.LessThan(in.Instrument.MinQuantity) {
		return Result{}, ErrBelowMinimum
	}

	effectiveLoss := qty.Mul(in.Instrument.ContractSize).Mul(stopDistance)

	return Result{
		Quantity:        qty,
		StopLossPrice:   stopLoss,
		TakeProfitPrice: takeProfit,
		EffectiveLoss:   effectiveLoss,
	}, nil
}

// priceAt computes entry*(1+fraction) or entry*(1-fraction) depending on
// widenUp, then snaps the result away from entry at the instrument's tick
// size so a protective price is never tightened by rounding.
func priceAt(inst instrument.Metadata, entry, fraction decimal.Decimal, widenUp bool) decimal.Decimal {
	var raw decimal.Decimal
	if widenUp {
		raw = entry.Mul(decimal.NewFromInt(1).Add(fraction))
	} else {
		raw = entry.Mul(decimal.NewFromInt(1).Sub(fraction))
	}
	return inst.SnapPriceAway(raw, widenUp)
}
