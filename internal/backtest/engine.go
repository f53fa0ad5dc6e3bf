package backtest

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stepback/internal/core"
	"stepback/internal/gateway"
	"stepback/internal/journal"
	"stepback/internal/quote"
)

// Results summarizes a completed backtest run, sourced from the
// orchestrator's final stats and a max-drawdown scan over the journaled
// stats_snapshot records.
type Results struct {
	TotalTrades      int
	WinningTrades    int
	WinRate          decimal.Decimal
	MaxStepReached   int
	CumulativeReturn decimal.Decimal
	MaxDrawdown      decimal.Decimal
	StartTime        time.Time
	EndTime          time.Time
}

// Engine drives a core.Engine against a deterministic quote.Replay source,
// forwarding the simulated gateway's fills/rejects back onto the same
// event channel the orchestrator consumes in production, mirroring the
// teacher's chronological tick-by-tick backtest loop.
type Engine struct {
	core    *core.Engine
	gw      gateway.Gateway
	source  *quote.Replay
	journal *journal.Journal
	symbol  string
	logger  zerolog.Logger

	// settleDelay gives the orchestrator's goroutine time to react to a
	// quote (submit an order, receive a simulated fill) before the next
	// quote is published. A real deployment has no such delay; it exists
	// only so this deterministic replay behaves predictably.
	settleDelay time.Duration
}

// NewEngine builds a backtest runner. gw must be the same gateway instance
// passed to core.New when eng was built, so its Fills()/Rejects() channels can be
// forwarded into the orchestrator's event loop.
func NewEngine(eng *core.Engine, gw gateway.Gateway, source *quote.Replay, j *journal.Journal, symbol string, logger zerolog.Logger) *Engine {
	return &Engine{
		core:        eng,
		gw:          gw,
		source:      source,
		journal:     j,
		symbol:      symbol,
		logger:      logger,
		settleDelay: time.Millisecond,
	}
}

// Run replays every quote through the orchestrator to completion and
// returns the resulting performance summary.
func (e *Engine) Run(ctx context.Context) (*Results, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan core.Event, 256)
	go e.forwardGatewayEvents(runCtx, events)

	done := make(chan struct{})
	go func() {
		e.core.Run(runCtx, events)
		close(done)
	}()

	quotes, errs := e.source.Stream(runCtx, e.symbol)

	var start, end time.Time
loop:
	for {
		select {
		case q, ok := <-quotes:
			if !ok {
				break loop
			}
			if start.IsZero() {
				start = q.Ts
			}
			end = q.Ts
			if checker, ok := e.gw.(gateway.QuoteChecker); ok {
				checker.CheckQuote(q.Bid, q.Ask)
			}
			select {
			case events <- core.QuoteEvent{Bid: q.Bid, Ask: q.Ask, Ts: q.Ts}:
			case <-runCtx.Done():
				break loop
			}
			time.Sleep(e.settleDelay)
		case err, ok := <-errs:
			if ok && err != nil {
				e.logger.Warn().Err(err).Msg("backtest quote error")
			}
		case <-runCtx.Done():
			break loop
		}
	}

	// Give the final quote's fill (if any) time to settle before tearing
	// the orchestrator down.
	time.Sleep(e.settleDelay * 5)
	cancel()
	<-done

	return e.buildResults(start, end)
}

func (e *Engine) forwardGatewayEvents(ctx context.Context, events chan<- core.Event) {
	fills := e.gw.Fills()
	rejects := e.gw.Rejects()
	for {
		select {
		case f, ok := <-fills:
			if !ok {
				return
			}
			select {
			case events <- core.FillEvent{ClientID: f.ClientID, Price: f.Price, Qty: f.Quantity, Ts: f.Ts}:
			case <-ctx.Done():
				return
			}
		case r, ok := <-rejects:
			if !ok {
				return
			}
			select {
			case events <- core.RejectEvent{ClientID: r.ClientID, Reason: r.Reason, Ts: time.Now()}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) buildResults(start, end time.Time) (*Results, error) {
	stats := e.core.Stats()
	maxDD, err := e.maxDrawdown()
	if err != nil {
		return nil, err
	}
	return &Results{
		TotalTrades:      stats.TotalTrades,
		WinningTrades:    stats.WinningTrades,
		WinRate:          stats.WinRate,
		MaxStepReached:   stats.MaxStepReached,
		CumulativeReturn: stats.CumulativeReturn,
		MaxDrawdown:      maxDD,
		StartTime:        start,
		EndTime:          end,
	}, nil
}

// maxDrawdown replays the journaled stats_snapshot records and returns the
// largest peak-to-trough drop in cumulative return observed.
func (e *Engine) maxDrawdown() (decimal.Decimal, error) {
	records, err := e.journal.All()
	if err != nil {
		return decimal.Zero, err
	}

	peak := decimal.Zero
	maxDD := decimal.Zero
	for _, r := range records {
		if r.Kind != journal.KindStatsSnapshot || r.Stats == nil {
			continue
		}
		cur := r.Stats.CumulativeReturn
		if cur.GreaterThan(peak) {
			peak = cur
		}
		if dd := peak.Sub(cur); dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}
	return maxDD, nil
}
