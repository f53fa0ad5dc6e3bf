package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// restingOrder is a stop or limit order the simulated gateway has accepted
// but not yet filled, waiting for CheckQuote to observe a crossing price.
type restingOrder struct {
	clientID string
	side     Side
	kind     Kind
	trigger  decimal.Decimal
	qty      decimal.Decimal
}

// Simulated is an in-memory Gateway for demo mode, backtests, and tests:
// every market order is accepted and immediately filled at its requested
// price; stop and limit orders are accepted and rest until CheckQuote sees
// the market price cross their trigger, since the simulated gateway has no
// real market to cross against on its own. It performs no network I/O and
// is not a substitute for exercising the REST gateway's error paths.
type Simulated struct {
	fills   chan Fill
	rejects chan Reject

	mu      sync.Mutex
	resting map[string]restingOrder
}

// NewSimulated returns a ready-to-use in-memory gateway.
func NewSimulated() *Simulated {
	return &Simulated{
		fills:   make(chan Fill, 64),
		rejects: make(chan Reject, 64),
		resting: make(map[string]restingOrder),
	}
}

func (s *Simulated) Fills() <-chan Fill     { return s.fills }
func (s *Simulated) Rejects() <-chan Reject { return s.rejects }

func (s *Simulated) Close() error {
	close(s.fills)
	close(s.rejects)
	return nil
}

func (s *Simulated) SubmitMarket(ctx context.Context, req Request) (Acknowledgement, error) {
	return s.acceptAndFill(req)
}

func (s *Simulated) SubmitStop(ctx context.Context, req Request) (Acknowledgement, error) {
	return s.acceptResting(req)
}

func (s *Simulated) SubmitLimit(ctx context.Context, req Request) (Acknowledgement, error) {
	return s.acceptResting(req)
}

func (s *Simulated) Cancel(ctx context.Context, clientID string) (Acknowledgement, error) {
	s.mu.Lock()
	delete(s.resting, clientID)
	s.mu.Unlock()
	return Acknowledgement{ClientID: clientID, Status: "cancelled"}, nil
}

func (s *Simulated) Query(ctx context.Context, clientID string) (Acknowledgement, error) {
	return Acknowledgement{ClientID: clientID, Status: "accepted"}, nil
}

func (s *Simulated) acceptAndFill(req Request) (Acknowledgement, error) {
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}
	s.fills <- Fill{ClientID: req.ClientID, Price: req.Price, Quantity: req.Quantity, Ts: time.Now()}
	return Acknowledgement{ClientID: req.ClientID, Status: "accepted"}, nil
}

// acceptResting accepts a stop/limit order without immediately filling it;
// CheckQuote fills it once an incoming quote crosses the order's trigger
// price, or a test driver can force it early with TriggerFill.
func (s *Simulated) acceptResting(req Request) (Acknowledgement, error) {
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}
	trigger := req.StopPrice
	if req.Kind == Limit {
		trigger = req.Price
	}
	s.mu.Lock()
	s.resting[req.ClientID] = restingOrder{clientID: req.ClientID, side: req.Side, kind: req.Kind, trigger: trigger, qty: req.Quantity}
	s.mu.Unlock()
	return Acknowledgement{ClientID: req.ClientID, Status: "accepted"}, nil
}

// TriggerFill lets a test driver force a resting order to fill at price,
// bypassing CheckQuote.
func (s *Simulated) TriggerFill(clientID string, price, qty decimal.Decimal) {
	s.mu.Lock()
	delete(s.resting, clientID)
	s.mu.Unlock()
	s.fills <- Fill{ClientID: clientID, Price: price, Quantity: qty, Ts: time.Now()}
}

// CheckQuote evaluates every resting stop/limit order against a fresh
// bid/ask quote and fills whichever orders the price has crossed: a sell
// order (closing a long) fills against the bid, a buy order (closing a
// short) against the ask, mirroring how a real exchange matches resting
// orders to the touch rather than the mid. A stop fills once price reaches
// or passes its trigger moving against the position; a limit (the take-
// profit leg) fills once price reaches or passes its trigger moving in the
// position's favor.
func (s *Simulated) CheckQuote(bid, ask decimal.Decimal) {
	s.mu.Lock()
	var triggered []restingOrder
	for id, o := range s.resting {
		price := bid
		if o.side == Buy {
			price = ask
		}
		if o.crossed(price) {
			triggered = append(triggered, o)
			delete(s.resting, id)
		}
	}
	s.mu.Unlock()

	for _, o := range triggered {
		s.fills <- Fill{ClientID: o.clientID, Price: o.trigger, Quantity: o.qty, Ts: time.Now()}
	}
}

func (o restingOrder) crossed(price decimal.Decimal) bool {
	switch o.kind {
	case Stop:
		if o.side == Sell {
			return price.LessThanOrEqual(o.trigger)
		}
		return price.GreaterThanOrEqual(o.trigger)
	case Limit:
		if o.side == Sell {
			return price.GreaterThanOrEqual(o.trigger)
		}
		return price.LessThanOrEqual(o.trigger)
	default:
		return false
	}
}
