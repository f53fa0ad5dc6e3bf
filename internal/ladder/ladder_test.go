package ladder

import (
	"testing"

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

func newTestLadder() *Ladder {
	return New(d("100"), d("1.30"), 2)
}

func TestNew_SingleRungAtBase(t *testing.T) {
	l := newTestLadder()
	assert.Equal(t, 0, l.StepIndex())
	assert.True(t, l.CurrentBalance().Equal(d("100")))
}

func TestProfitTarget_BaseRung(t *testing.T) {
	l := newTestLadder()
	assert.True(t, l.ProfitTarget().Equal(d("30")), "expected 30, got %s", l.ProfitTarget())
}

func TestLossForStepBack_BaseRungIsCapped(t *testing.T) {
	l := newTestLadder()
	// At step_index 0 there is no previous rung; base-loss policy pins the
	// loss amount to the profit target.
	assert.True(t, l.LossForStepBack().Equal(l.ProfitTarget()))
}

func TestLossPercentageForStepBack_DerivedNotHardcoded(t *testing.T) {
	l := newTestLadder()
	l.RecordProfit() // balance: 130
	// step back from 130 to 100 requires a loss of 30 on a balance of 130.
	require.True(t, l.LossForStepBack().Equal(d("30")))
	pct := l.LossPercentageForStepBack()
	expected := d("30").Div(d("130"))
	assert.True(t, pct.Equal(expected), "expected %s got %s", expected, pct)
}

func TestRecordProfit_AdvancesOneRung(t *testing.T) {
	l := newTestLadder()
	l.RecordProfit()
	assert.Equal(t, 1, l.StepIndex())
	assert.True(t, l.CurrentBalance().Equal(d("130")))
	assert.Equal(t, 0, l.ConsecutiveLosses())
}

func TestRecordLoss_StepsBackOneRung(t *testing.T) {
	l := newTestLadder()
	l.RecordProfit() // 130
	l.RecordProfit() // 169
	l.RecordLoss()
	assert.Equal(t, 1, l.StepIndex())
	assert.True(t, l.CurrentBalance().Equal(d("130")))
	assert.Equal(t, 1, l.ConsecutiveLosses())
}

func TestRecordLoss_AtBaseRungStaysPinned(t *testing.T) {
	l := newTestLadder()
	l.RecordLoss()
	assert.Equal(t, 0, l.StepIndex())
	assert.True(t, l.CurrentBalance().Equal(d("100")))
	assert.Equal(t, 1, l.ConsecutiveLosses())
}

func TestConsecutiveLosses_ResetsOnProfit(t *testing.T) {
	l := newTestLadder()
	l.RecordLoss()
	l.RecordLoss()
	require.Equal(t, 2, l.ConsecutiveLosses())
	l.RecordProfit()
	assert.Equal(t, 0, l.ConsecutiveLosses())
}

// TestWorkedScenario walks the six-step sequence from the specification's
// worked example (B=100, G=1.30): win, win, loss, win, loss, loss.
func TestWorkedScenario_SixSteps(t *testing.T) {
	l := newTestLadder()

	type step struct {
		profit          bool
		wantBalance     string
		wantStepIndex   int
	}
	steps := []step{
		{true, "130", 1},
		{true, "169", 2},
		{false, "130", 1},
		{true, "169", 2},
		{false, "130", 1},
		{false, "100", 0},
	}

	for i, s := range steps {
		if s.profit {
			l.RecordProfit()
		} else {
			l.RecordLoss()
		}
		assert.Truef(t, l.CurrentBalance().Equal(d(s.wantBalance)),
			"step %d: expected balance %s, got %s", i, s.wantBalance, l.CurrentBalance())
		assert.Equalf(t, s.wantStepIndex, l.StepIndex(), "step %d: step index", i)
	}
}

func TestHistory_ReturnsCopyNotAlias(t *testing.T) {
	l := newTestLadder()
	l.RecordProfit()
	h := l.History()
	h[0] = d("999")
	assert.True(t, l.History()[0].Equal(d("100")), "mutating the returned slice must not affect the ladder")
}

func TestRound_AppliesConfiguredPrecision(t *testing.T) {
	l := New(d("100"), d("1.333"), 2)
	// profit target = 100 * 0.333 = 33.3 -> rounds to 33.30 at scale 2, value 33.3
	assert.True(t, l.ProfitTarget().Equal(d("33.3")))
}
