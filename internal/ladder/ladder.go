// Package ladder implements the Balance Ladder: a deterministic state
// machine over the discrete sequence of account balance rungs that the
// step-back engine trades against. It is pure and holds no I/O; a contract
// violation (popping below the base rung) is a programming error and
// panics rather than returning an error, since any caller path that can
// trigger it indicates the orchestrator's own invariants have already
// broken.
package ladder

import "github.com/shopspring/decimal"

// BaseLossMode selects how a loss at the base rung (step_index == 0) is
// handled. "capped" (the default) keeps the ladder pinned to the base rung
// and treats the loss magnitude as the fixed profit-target amount, per the
// distilled spec's worked example. It is exposed as an explicit policy
// rather than an implicit side effect of popping an empty history.
type BaseLossMode string

const (
	BaseLossCapped BaseLossMode = "capped"
)

// Ladder is the balance ladder state machine. It is not safe for concurrent
// use; the orchestrator is its sole owner (§5 of the specification).
type Ladder struct {
	history      []decimal.Decimal
	growth       decimal.Decimal
	rounding     int32
	baseLossMode BaseLossMode

	consecutiveLosses int
}

// New creates a ladder with a single rung at initial. growth must be a
// decimal strictly greater than one; initial must be strictly positive.
// Both are configuration errors, not ladder errors, and are validated by
// the caller (internal/cfg) before construction.
func New(initial, growth decimal.Decimal, rounding int32) *Ladder {
	return &Ladder{
		history:      []decimal.Decimal{initial},
		growth:       growth,
		rounding:     rounding,
		baseLossMode: BaseLossCapped,
	}
}

// Resume creates a ladder whose rung history is already known, recovered
// from a prior run's journal via journal.Reconstruct, instead of starting
// fresh from a single base rung. history must be non-empty and ordered
// oldest first.
func Resume(history []decimal.Decimal, growth decimal.Decimal, rounding int32) *Ladder {
	h := make([]decimal.Decimal, len(history))
	copy(h, history)
	return &Ladder{
		history:      h,
		growth:       growth,
		rounding:     rounding,
		baseLossMode: BaseLossCapped,
	}
}

// History returns a copy of the ordered rung sequence, oldest first.
func (l *Ladder) History() []decimal.Decimal {
	out := make([]decimal.Decimal, len(l.history))
	copy(out, l.history)
	return out
}

// StepIndex is the one-based count of wins beyond the base rung.
func (l *Ladder) StepIndex() int {
	return len(l.history) - 1
}

// ConsecutiveLosses reports losses since the last win; reset by RecordProfit.
func (l *Ladder) ConsecutiveLosses() int {
	return l.consecutiveLosses
}

// CurrentBalance is the last (rightmost) rung in the ladder.
func (l *Ladder) CurrentBalance() decimal.Decimal {
	return l.history[len(l.history)-1]
}

// CurrentStake is the notional to use for the next trade; equal to the
// current balance.
func (l *Ladder) CurrentStake() decimal.Decimal {
	return l.round(l.CurrentBalance())
}

// ProfitTarget is the absolute currency amount a win must realize:
// current_balance * (growth_factor - 1).
func (l *Ladder) ProfitTarget() decimal.Decimal {
	return l.round(l.CurrentBalance().Mul(l.growth.Sub(decimal.NewFromInt(1))))
}

// LossForStepBack is the absolute currency amount that, realized as a loss,
// returns the ladder to the previous rung exactly. At the base rung there is
// no previous rung to step back to, so the loss is pinned to the same
// magnitude as the profit target (the base-loss policy).
func (l *Ladder) LossForStepBack() decimal.Decimal {
	if l.StepIndex() >= 1 {
		previous := l.history[len(l.history)-2]
		return l.round(l.CurrentBalance().Sub(previous))
	}
	return l.ProfitTarget()
}

// LossPercentageForStepBack is the dynamic loss fraction that, applied to
// the current balance, realizes exactly LossForStepBack. It is always
// derived from the two absolute amounts above, never hard-coded to the
// algebraic identity (growth-1)/growth that the geometric ladder implies.
func (l *Ladder) LossPercentageForStepBack() decimal.Decimal {
	balance := l.CurrentBalance()
	if balance.IsZero() {
		panic("ladder: current balance is zero, cannot derive loss percentage")
	}
	return l.LossForStepBack().Div(balance)
}

// RecordProfit advances the ladder one rung: current_balance * growth_factor
// is appended to the history, and the consecutive-loss counter resets.
func (l *Ladder) RecordProfit() {
	next := l.CurrentBalance().Mul(l.growth)
	l.history = append(l.history, next)
	l.consecutiveLosses = 0
}

// RecordLoss steps the ladder back one rung, or leaves it pinned to the base
// rung if there is no previous rung. The consecutive-loss counter always
// increments.
func (l *Ladder) RecordLoss() {
	if l.StepIndex() >= 1 {
		l.history = l.history[:len(l.history)-1]
	}
	l.consecutiveLosses++
	if len(l.history) == 0 {
		// A programming error: the base rung must never be popped.
		panic("ladder: balance history is empty after RecordLoss; base rung invariant violated")
	}
}

// round applies the ladder's monetary rounding policy (half-up, to the
// configured number of decimal places) only at the boundary where a value
// is exposed to downstream sizing; internal arithmetic stays at full
// decimal precision so rounding error never accumulates across rungs.
func (l *Ladder) round(v decimal.Decimal) decimal.Decimal {
	return v.RoundHalfUp(l.rounding)
}
