package entry

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestAlwaysLong_AlwaysEntersLong(t *testing.T) {
	got := AlwaysLong.Decide(Quote{Bid: d("1.1"), Ask: d("1.1001")}, RuntimeState{})
	assert.Equal(t, EnterLong, got)
}

func TestCompose_FirstNonSkipWins(t *testing.T) {
	skip := PredicateFunc(func(Quote, RuntimeState) Decision { return Skip })
	p := Compose(skip, AlwaysShort, AlwaysLong)
	got := p.Decide(Quote{}, RuntimeState{})
	assert.Equal(t, EnterShort, got)
}

func TestCompose_EmptyChainSkips(t *testing.T) {
	p := Compose()
	assert.Equal(t, Skip, p.Decide(Quote{}, RuntimeState{}))
}

func TestConsecutiveDirection_RequiresStreak(t *testing.T) {
	c := NewConsecutiveDirection(3)
	rs := RuntimeState{}
	assert.Equal(t, Skip, c.Decide(Quote{Bid: d("1.000")}, rs)) // seeds lastBid
	assert.Equal(t, Skip, c.Decide(Quote{Bid: d("1.001")}, rs)) // streak 1
	assert.Equal(t, Skip, c.Decide(Quote{Bid: d("1.002")}, rs)) // streak 2
	assert.Equal(t, EnterLong, c.Decide(Quote{Bid: d("1.003")}, rs)) // streak 3
}

func TestConsecutiveDirection_DirectionChangeResetsStreak(t *testing.T) {
	c := NewConsecutiveDirection(2)
	rs := RuntimeState{}
	c.Decide(Quote{Bid: d("1.000")}, rs)
	c.Decide(Quote{Bid: d("1.001")}, rs) // up, streak 1
	assert.Equal(t, Skip, c.Decide(Quote{Bid: d("0.999")}, rs)) // down, resets to streak 1
}
