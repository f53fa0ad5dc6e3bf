// Package entry defines the entry predicate boundary: the single point
// where the orchestrator decides whether, and in which direction, to open a
// position. Implementations are pure and side-effect free; richer signal
// generation (statistical models, ML predictions) is explicitly out of
// scope here and lives outside this module.
package entry

import (
	"github.com/shopspring/decimal"
)

// Decision is the outcome of an entry predicate evaluation.
type Decision int

const (
	Skip Decision = iota
	EnterLong
	EnterShort
)

// Quote is the minimal market observation a predicate is given.
type Quote struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

// RuntimeState is the minimal engine state a predicate may read; it must
// not be mutated.
type RuntimeState struct {
	ConsecutiveLosses int
	Paused            bool
}

// Predicate decides what to do with a quote. It must be pure: same inputs,
// same output, no I/O, no internal mutable state that outlives one call
// unless explicitly documented (see ConsecutiveDirection for the one
// exception).
type Predicate interface {
	Decide(q Quote, rs RuntimeState) Decision
}

// PredicateFunc adapts a plain function to Predicate.
type PredicateFunc func(q Quote, rs RuntimeState) Decision

func (f PredicateFunc) Decide(q Quote, rs RuntimeState) Decision {
	return f(q, rs)
}

// AlwaysLong is the trivial default predicate: it always signals EnterLong,
// leaving every entry decision to the orchestrator's gates (single-position,
// pause, delay).
var AlwaysLong Predicate = PredicateFunc(func(Quote, RuntimeState) Decision {
	return EnterLong
})

// AlwaysShort is the mirror trivial predicate, useful for demos and tests
// that exercise the short-side sizing and tracking path.
var AlwaysShort Predicate = PredicateFunc(func(Quote, RuntimeState) Decision {
	return EnterShort
})

// Compose chains predicates left to right: the first predicate to return a
// non-Skip decision wins. An empty chain always yields Skip.
func Compose(predicates ...Predicate) Predicate {
	return PredicateFunc(func(q Quote, rs RuntimeState) Decision {
		for _, p := range predicates {
			if d := p.Decide(q, rs); d != Skip {
				return d
			}
		}
		return Skip
	})
}

// ConsecutiveDirection is a small demo predicate: it requires n consecutive
// quotes with the same bid-vs-previous-bid direction before signalling an
// entry in that direction. It retains internal state across calls by
// design, the one documented exception to predicate purity, since it must
// remember the recent quote history to detect a streak.
type ConsecutiveDirection struct {
	n         int
	lastBid   decimal.Decimal
	haveLast  bool
	streak    int
	streakDir Decision
}

// NewConsecutiveDirection returns a predicate requiring n consecutive
// same-direction quotes before entering.
func NewConsecutiveDirection(n int) *ConsecutiveDirection {
	return &ConsecutiveDirection{n: n}
}

func (c *ConsecutiveDirection) Decide(q Quote, rs RuntimeState) Decision {
	if !c.haveLast {
		c.lastBid = q.Bid
		c.haveLast = true
		return Skip
	}

	var dir Decision
	switch {
	case q.Bid.GreaterThan(c.lastBid):
		dir = EnterLong
	case q.Bid.LessThan(c.lastBid):
		dir = EnterShort
	default:
		c.lastBid = q.Bid
		return Skip
	}

	if dir == c.streakDir {
		c.streak++
	} else {
		c.streakDir = dir
		c.streak = 1
	}
	c.lastBid = q.Bid

	if c.streak >= c.n {
		return dir
	}
	return Skip
}
