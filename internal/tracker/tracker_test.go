package tracker

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func samplePosition() Position {
	return Position{
		ClientID:        "c1",
		Side:            Long,
		Stake:           d("100"),
		EntryPrice:      d("1.1000"),
		StopLossPrice:   d("1.0900"),
		TakeProfitPrice: d("1.1130"),
		Quantity:        d("1"),
	}
}

func TestBegin_StartsPendingEntry(t *testing.T) {
	tr := New()
	tr.Begin(samplePosition())
	assert.Equal(t, PendingEntry, tr.Current().State)
}

func TestBegin_PanicsOnDoubleOpen(t *testing.T) {
	tr := New()
	tr.Begin(samplePosition())
	require.NoError(t, tr.ConfirmEntry("s1", "t1", d("1.1000"), time.Unix(0, 0)))
	assert.Panics(t, func() { tr.Begin(samplePosition()) })
}

func TestConfirmEntry_MovesToOpen(t *testing.T) {
	tr := New()
	tr.Begin(samplePosition())
	err := tr.ConfirmEntry("stopID", "tpID", d("1.1001"), time.Unix(1, 0))
	require.NoError(t, err)
	assert.Equal(t, Open, tr.Current().State)
	assert.Equal(t, "stopID", tr.Current().StopClientID)
}

func TestConfirmEntry_WrongStateErrors(t *testing.T) {
	tr := New()
	err := tr.ConfirmEntry("s", "t", d("1"), time.Unix(0, 0))
	assert.ErrorIs(t, err, ErrWrongState)
}

func TestRejectEntry_DiscardsWithoutLadgerEffect(t *testing.T) {
	tr := New()
	tr.Begin(samplePosition())
	require.NoError(t, tr.RejectEntry())
	assert.False(t, tr.HasOpenPosition())
	assert.Nil(t, tr.Current())
}

func TestProtectiveFill_TakeProfitLegReturnsStopAsSibling(t *testing.T) {
	tr := New()
	tr.Begin(samplePosition())
	require.NoError(t, tr.ConfirmEntry("stopID", "tpID", d("1.1000"), time.Unix(0, 0)))
	sibling, err := tr.ProtectiveFill(d("1.1130"))
	require.NoError(t, err)
	assert.Equal(t, "stopID", sibling)
	assert.Equal(t, PendingExit, tr.Current().State)
}

func TestClose_ClassifiesWinAtTakeProfit(t *testing.T) {
	tr := New()
	tr.Begin(samplePosition())
	require.NoError(t, tr.ConfirmEntry("stopID", "tpID", d("1.1000"), time.Unix(0, 0)))
	_, err := tr.ProtectiveFill(d("1.1130"))
	require.NoError(t, err)
	p, err := tr.Close(d("0.0001"), time.Unix(2, 0))
	require.NoError(t, err)
	assert.Equal(t, Win, p.Outcome)
	assert.Equal(t, Closed, p.State)
	assert.False(t, tr.HasOpenPosition())
}

func TestClose_ClassifiesLossAtStop(t *testing.T) {
	tr := New()
	tr.Begin(samplePosition())
	require.NoError(t, tr.ConfirmEntry("stopID", "tpID", d("1.1000"), time.Unix(0, 0)))
	_, err := tr.ProtectiveFill(d("1.0900"))
	require.NoError(t, err)
	p, err := tr.Close(d("0.0001"), time.Unix(2, 0))
	require.NoError(t, err)
	assert.Equal(t, Loss, p.Outcome)
}

func TestClose_AmbiguousSlippageFallsBackToSignedPnL(t *testing.T) {
	tr := New()
	tr.Begin(samplePosition())
	require.NoError(t, tr.ConfirmEntry("stopID", "tpID", d("1.1000"), time.Unix(0, 0)))
	// neither exact TP nor SL price: simulate slippage past the stop.
	_, err := tr.ProtectiveFill(d("1.0895"))
	require.NoError(t, err)
	p, err := tr.Close(d("0.0001"), time.Unix(2, 0))
	require.NoError(t, err)
	assert.Equal(t, Loss, p.Outcome)
}

func TestAbandon_ReportsNeutralCloseWithoutLadderEffect(t *testing.T) {
	tr := New()
	tr.Begin(samplePosition())
	require.NoError(t, tr.ConfirmEntry("stopID", "tpID", d("1.1000"), time.Unix(0, 0)))
	p := tr.Abandon(time.Unix(5, 0))
	require.NotNil(t, p)
	assert.Equal(t, NeutralClose, p.Outcome)
	assert.False(t, tr.HasOpenPosition())
}
