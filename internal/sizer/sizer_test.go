package sizer

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepback/internal/instrument"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestSize_LongHitsExactLossAtStop(t *testing.T) {
	inst := instrument.Lookup("BTCUSDT")
	in := Input{
		Instrument:     inst,
		Side:           Long,
		EntryPrice:     d("50000"),
		GrowthMinusOne: d("0.30"),
		LossFraction:   d("0.30").Div(d("1.30")),
		LossAmount:     d("30"),
	}
	res, err := Size(in)
	require.NoError(t, err)
	assert.True(t, res.StopLossPrice.LessThan(in.EntryPrice))
	assert.True(t, res.TakeProfitPrice.GreaterThan(in.EntryPrice))
	// effective loss should be close to the requested loss amount, modulo
	// quantity-precision rounding: snapping quantity down can give up at
	// most one quantity step's worth of loss at the stop distance.
	qtyStepLoss := decimal.New(1, -inst.QtyPrecision).Mul(inst.ContractSize).Mul(in.EntryPrice.Sub(res.StopLossPrice))
	diff := res.EffectiveLoss.Sub(in.LossAmount).Abs()
	assert.True(t, res.EffectiveLoss.LessThanOrEqual(in.LossAmount), "effective loss %s exceeds requested %s", res.EffectiveLoss, in.LossAmount)
	assert.True(t, diff.LessThan(qtyStepLoss), "effective loss %s too far from requested %s", res.EffectiveLoss, in.LossAmount)
}

func TestSize_ShortInvertsPriceDirections(t *testing.T) {
	inst := instrument.Lookup("EURUSD")
	in := Input{
		Instrument:     inst,
		Side:           Short,
		EntryPrice:     d("1.1000"),
		GrowthMinusOne: d("0.30"),
		LossFraction:   d("0.30").Div(d("1.30")),
		LossAmount:     d("30"),
	}
	res, err := Size(in)
	require.NoError(t, err)
	assert.True(t, res.StopLossPrice.GreaterThan(in.EntryPrice))
	assert.True(t, res.TakeProfitPrice.LessThan(in.EntryPrice))
}

func TestSize_BelowMinimumQuantityRefuses(t *testing.T) {
	inst := instrument.Lookup("BTCUSDT")
	in := Input{
		Instrument:     inst,
		Side:           Long,
		EntryPrice:     d("50000"),
		GrowthMinusOne: d("0.30"),
		LossFraction:   d("0.30").Div(d("1.30")),
		LossAmount:     d("0.0001"),
	}
	_, err := Size(in)
	assert.ErrorIs(t, err, ErrBelowMinimum)
}

func TestSize_FixedPipModeUsesConstantDistance(t *testing.T) {
	inst := instrument.Lookup("EURUSD")
	in := Input{
		Instrument:       inst,
		Side:             Long,
		EntryPrice:       d("1.1000"),
		GrowthMinusOne:   d("0.30"),
		LossFraction:     d("0.30").Div(d("1.30")),
		LossAmount:       d("30"),
		FixedPipMode:     true,
		FixedPipDistance: d("20"),
	}
	res, err := Size(in)
	require.NoError(t, err)
	wantStop := inst.SnapPriceAway(in.EntryPrice.Sub(d("20").Mul(inst.PipSize)), false)
	assert.True(t, res.StopLossPrice.Equal(wantStop), "expected %s got %s", wantStop, res.StopLossPrice)
}
