// Package tracker implements the Order Lifecycle Tracker: a small state
// machine that follows the single open position from entry submission
// through protective-order resolution to close. It is owned exclusively by
// the orchestrator goroutine (internal/core) and is not safe for concurrent
// use, mirroring the teacher's OrderTracker shape but keyed to one position
// at a time rather than an open-ended order book.
package tracker

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// State is a lifecycle state of the tracked position.
type State int

const (
	PendingEntry State = iota
	Open
	PendingExit
	Closed
)

func (s State) String() string {
	switch s {
	case PendingEntry:
		return "pending_entry"
	case Open:
		return "open"
	case PendingExit:
		return "pending_exit"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Side is the direction of the tracked position.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Outcome classifies how a closed position resolved.
type Outcome string

const (
	Win          Outcome = "win"
	Loss         Outcome = "loss"
	NeutralClose Outcome = "neutral_close"
)

// ErrNoOpenPosition is returned by operations that require an active
// position when none is being tracked.
var ErrNoOpenPosition = errors.New("tracker: no position is currently tracked")

// ErrWrongState is returned when a transition is attempted from a state
// that does not permit it.
var ErrWrongState = errors.New("tracker: transition not valid from current state")

// Position is the single tracked position's mutable record.
type Position struct {
	ClientID        string
	Side            Side
	Stake           decimal.Decimal
	EntryPrice      decimal.Decimal
	StopLossPrice   decimal.Decimal
	TakeProfitPrice decimal.Decimal
	Quantity        decimal.Decimal
	LossPercentage  decimal.Decimal

	State State

	StopClientID string
	TPClientID   string

	ExitPrice decimal.Decimal
	Outcome   Outcome

	OpenedAt time.Time
	ClosedAt time.Time
}

// Tracker holds at most one Position at a time.
type Tracker struct {
	current *Position
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{}
}

// HasOpenPosition reports whether a position is currently being tracked in
// any non-terminal state.
func (t *Tracker) HasOpenPosition() bool {
	return t.current != nil && t.current.State != Closed
}

// Current returns the tracked position, or nil if none is active.
func (t *Tracker) Current() *Position {
	return t.current
}

// Begin starts tracking a new position in PendingEntry. It is an invariant
// violation to call Begin while another position is already open.
func (t *Tracker) Begin(p Position) {
	if t.HasOpenPosition() {
		panic("tracker: Begin called while a position is already open")
	}
	p.State = PendingEntry
	t.current = &p
}

// ConfirmEntry transitions PendingEntry -> Open on the entry fill. Protective
// orders are expected to be submitted by the caller immediately after.
func (t *Tracker) ConfirmEntry(stopClientID, tpClientID string, entryPrice decimal.Decimal, openedAt time.Time) error {
	if t.current == nil || t.current.State != PendingEntry {
		return ErrWrongState
	}
	t.current.StopClientID = stopClientID
	t.current.TPClientID = tpClientID
	t.current.EntryPrice = entryPrice
	t.current.OpenedAt = openedAt
	t.current.State = Open
	return nil
}

// RejectEntry discards a position that never reached Open. The caller must
// not apply any outcome to the ladder.
func (t *Tracker) RejectEntry() error {
	if t.current == nil || t.current.State != PendingEntry {
		return ErrWrongState
	}
	t.current = nil
	return nil
}

// ProtectiveFill transitions Open -> PendingExit when one of the two
// protective orders (stop or take-profit) fills; it records which leg
// filled via exitPrice and which client ID is now the sibling awaiting
// cancellation.
func (t *Tracker) ProtectiveFill(exitPrice decimal.Decimal) (siblingClientID string, err error) {
	if t.current == nil || t.current.State != Open {
		return "", ErrWrongState
	}
	t.current.ExitPrice = exitPrice
	t.current.State = PendingExit

	switch {
	case exitPrice.Equal(t.current.TakeProfitPrice):
		return t.current.StopClientID, nil
	case exitPrice.Equal(t.current.StopLossPrice):
		return t.current.TPClientID, nil
	default:
		// Ambiguous slippage: fall back to sign of P&L to decide which leg
		// filled; a profitable exit leaves the stop as the sibling, any
		// other exit leaves the take-profit.
		pnl := exitPrice.Sub(t.current.EntryPrice)
		if t.current.Side == Short {
			pnl = pnl.Neg()
		}
		if pnl.IsPositive() {
			return t.current.StopClientID, nil
		}
		return t.current.TPClientID, nil
	}
}

// Close transitions PendingExit -> Closed, classifying the outcome by
// comparing exit price against the recorded protective prices with an
// epsilon tolerance, falling back to signed P&L on ambiguity.
func (t *Tracker) Close(epsilon decimal.Decimal, closedAt time.Time) (*Position, error) {
	if t.current == nil || t.current.State != PendingExit {
		return nil, ErrWrongState
	}
	p := t.current
	p.ClosedAt = closedAt
	p.Outcome = classify(p, epsilon)
	p.State = Closed
	t.current = nil
	return p, nil
}

// Abandon forcibly closes the tracked position as neutral, used for
// shutdown cancellation: no outcome is applied to the ladder.
func (t *Tracker) Abandon(closedAt time.Time) *Position {
	if t.current == nil {
		return nil
	}
	p := t.current
	p.ClosedAt = closedAt
	p.Outcome = NeutralClose
	p.State = Closed
	t.current = nil
	return p
}

func classify(p *Position, epsilon decimal.Decimal) Outcome {
	if p.ExitPrice.Sub(p.TakeProfitPrice).Abs().LessThanOrEqual(epsilon) {
		if p.Side == Long {
			return Win
		}
		return Win
	}
	if p.ExitPrice.Sub(p.StopLossPrice).Abs().LessThanOrEqual(epsilon) {
		return Loss
	}
	pnl := p.ExitPrice.Sub(p.EntryPrice)
	if p.Side == Short {
		pnl = pnl.Neg()
	}
	if pnl.IsPositive() {
		return Win
	}
	if pnl.IsNegative() {
		return Loss
	}
	return NeutralClose
}
