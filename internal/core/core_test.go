package core

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepback/internal/entry"
	"stepback/internal/gateway"
	"stepback/internal/instrument"
	"stepback/internal/journal"
	"stepback/internal/ladder"
	"stepback/internal/metrics"
	"stepback/internal/tracker"
)

// testMetrics returns a *metrics.Metrics registered against a scratch
// registry, since promauto registration against the default registry would
// panic the second time a test in this package constructs one.
func testMetrics(t *testing.T) *metrics.Metrics {
	t.Helper()
	return metrics.NewWithRegistry(prometheus.NewRegistry())
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testEngine(t *testing.T) (*Engine, *gateway.Simulated, *journal.Journal) {
	t.Helper()
	l := ladder.New(d("100"), d("1.30"), 2)
	gw := gateway.NewSimulated()
	j, err := journal.Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	e := New(l, gw, j, entry.AlwaysLong, instrument.Lookup("EURUSD"), Settings{
		TradeDelay:         0,
		MaxConsecLosses:    10,
		Rounding:           2,
		ExitEpsilon:        d("0.00001"),
		GatewayCallTimeout: time.Second,
	}, zerolog.Nop(), testMetrics(t))

	return e, gw, j
}

// forwardFills forwards gateway fills onto the orchestrator's event
// channel, translating gateway.Fill into core.FillEvent, mirroring how
// cmd/stepback wires the real gateway's Fills() channel.
func forwardFills(ctx context.Context, gw *gateway.Simulated, events chan<- Event) {
	go func() {
		for f := range gw.Fills() {
			select {
			case events <- FillEvent{ClientID: f.ClientID, Price: f.Price, Qty: f.Quantity, Ts: f.Ts}:
			case <-ctx.Done():
				return
			}
		}
	}()
}

func TestEngine_EntryFlow_SubmitsMarketThenProtectiveOrders(t *testing.T) {
	e, gw, _ := testEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 16)
	forwardFills(ctx, gw, events)
	go e.Run(ctx, events)

	events <- QuoteEvent{Bid: d("1.0999"), Ask: d("1.1000"), Ts: time.Unix(100, 0)}

	require.Eventually(t, func() bool {
		p := e.tracker.Current()
		return p != nil && p.State == tracker.Open && p.StopClientID != "" && p.TPClientID != ""
	}, time.Second, time.Millisecond, "expected a position to open after the entry fill, with stop and take-profit submitted")
}

func TestEngine_SinglePositionGate_IgnoresQuoteWhileOpen(t *testing.T) {
	e, gw, _ := testEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 16)
	forwardFills(ctx, gw, events)
	go e.Run(ctx, events)

	events <- QuoteEvent{Bid: d("1.0999"), Ask: d("1.1000"), Ts: time.Unix(100, 0)}
	require.Eventually(t, func() bool { return e.tracker.HasOpenPosition() }, time.Second, time.Millisecond)

	before := e.ladder.StepIndex()
	firstClientID := e.tracker.Current().ClientID
	events <- QuoteEvent{Bid: d("1.2"), Ask: d("1.2001"), Ts: time.Unix(101, 0)}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, e.ladder.StepIndex(), "no second entry should occur while a position is open")
	assert.Equal(t, firstClientID, e.tracker.Current().ClientID, "no second entry should occur while a position is open")
}

func TestEngine_DelayGate_BlocksEntryWithinTradeDelay(t *testing.T) {
	l := ladder.New(d("100"), d("1.30"), 2)
	gw := gateway.NewSimulated()
	j, err := journal.Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	defer j.Close()

	e := New(l, gw, j, entry.AlwaysLong, instrument.Lookup("EURUSD"), Settings{
		TradeDelay:         time.Hour,
		MaxConsecLosses:    10,
		ExitEpsilon:        d("0.00001"),
		GatewayCallTimeout: time.Second,
	}, zerolog.Nop(), testMetrics(t))

	// lastExitTime starts at time.Unix(0,0); a quote far enough in the
	// future still must be blocked if its own Ts is close to lastExitTime
	// relative to the configured delay... here we simulate a recent close.
	e.lastExitTime = time.Unix(1000, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan Event, 4)
	go e.Run(ctx, events)

	events <- QuoteEvent{Bid: d("1.0999"), Ask: d("1.1000"), Ts: time.Unix(1001, 0)}
	time.Sleep(50 * time.Millisecond)
	assert.False(t, e.tracker.HasOpenPosition(), "entry must be blocked within trade_delay of last exit")
}

func TestEngine_ManualClose_ClosesPositionAndCancelsBothProtectiveOrders(t *testing.T) {
	e, gw, _ := testEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 16)
	forwardFills(ctx, gw, events)
	go e.Run(ctx, events)

	events <- QuoteEvent{Bid: d("1.0999"), Ask: d("1.1000"), Ts: time.Unix(100, 0)}
	require.Eventually(t, func() bool {
		return e.tracker.HasOpenPosition() && e.tracker.Current().State == tracker.Open
	}, time.Second, time.Millisecond, "expected the position to reach Open after protective orders are submitted")

	entryClientID := e.tracker.Current().ClientID

	// The market position itself fills closed (a manual close), rather than
	// either protective order.
	events <- FillEvent{ClientID: entryClientID, Price: d("1.1050"), Qty: d("1"), Ts: time.Unix(101, 0)}

	require.Eventually(t, func() bool {
		return !e.tracker.HasOpenPosition()
	}, time.Second, time.Millisecond, "a manual close must close the tracked position instead of being dropped")

	// The position being closed must not permanently block new entries.
	events <- QuoteEvent{Bid: d("1.2000"), Ask: d("1.2001"), Ts: time.Unix(200, 0)}
	require.Eventually(t, func() bool {
		return e.tracker.HasOpenPosition()
	}, time.Second, time.Millisecond, "a second entry must be possible after a manual close")
}

func TestEngine_DuplicateFill_Ignored(t *testing.T) {
	e, _, _ := testEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 16)
	go e.Run(ctx, events)

	// A fill with no tracked position must be a no-op, not a panic.
	events <- FillEvent{ClientID: "nonexistent", Price: d("1.1"), Qty: d("1"), Ts: time.Unix(5, 0)}
	time.Sleep(50 * time.Millisecond)
	assert.False(t, e.tracker.HasOpenPosition())
}
