// Package gateway is the Order Gateway boundary: submitting market, stop,
// and limit orders, cancelling them, and querying their status, plus an
// asynchronous stream of fills and rejects. The production implementation
// is a resty-based REST client grounded on the teacher's bitunix.Client;
// tests and demos use the in-memory Simulated implementation in this
// package instead of a mock in a _test.go file, since it is itself a small
// useful reference gateway.
package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Kind distinguishes the three order types the orchestrator issues.
type Kind string

const (
	Market Kind = "MARKET"
	Stop   Kind = "STOP"
	Limit  Kind = "LIMIT"
)

// Request describes one order submission.
type Request struct {
	ClientID string
	Symbol   string
	Side     Side
	Kind     Kind
	Quantity decimal.Decimal
	// Price is the limit price for Kind == Limit and the expected fill price
	// for Kind == Market (the fill price the Simulated and REST gateways
	// report for a market order); ignored for Kind == Stop.
	Price decimal.Decimal
	// StopPrice is the trigger price for Kind == Stop; ignored otherwise.
	StopPrice decimal.Decimal
}

// Acknowledgement is the gateway's synchronous response to a submission,
// cancellation, or query.
type Acknowledgement struct {
	ClientID        string
	ExchangeOrderID string
	Status          string
}

// Fill is an asynchronous notification that an order (fully or partially)
// executed.
type Fill struct {
	ClientID string
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Ts       time.Time
}

// Reject is an asynchronous notification that an order was permanently
// rejected by the exchange (insufficient margin, invalid price, unknown
// symbol — never retried).
type Reject struct {
	ClientID string
	Reason   string
}

// QuoteChecker is implemented by gateways that need market quotes pushed to
// them to resolve resting stop/limit orders, since they have no independent
// market to cross against. Simulated implements it; callers driving a
// quote.Source type-assert for it and call CheckQuote on every tick.
type QuoteChecker interface {
	CheckQuote(bid, ask decimal.Decimal)
}

// Gateway is the order-submission boundary the orchestrator depends on.
type Gateway interface {
	SubmitMarket(ctx context.Context, req Request) (Acknowledgement, error)
	SubmitStop(ctx context.Context, req Request) (Acknowledgement, error)
	SubmitLimit(ctx context.Context, req Request) (Acknowledgement, error)
	Cancel(ctx context.Context, clientID string) (Acknowledgement, error)
	Query(ctx context.Context, clientID string) (Acknowledgement, error)

	// Fills and Rejects stream asynchronous order outcomes. They are closed
	// when Close is called.
	Fills() <-chan Fill
	Rejects() <-chan Reject

	Close() error
}
