// Package core is the Trading Core / Orchestrator: a single-threaded
// cooperative event loop that consumes quotes and fill events, gates
// entries through the pause/delay/single-position guards and the entry
// predicate, issues orders through the gateway, and applies outcomes back
// to the ladder. It owns the ladder, the lifecycle tracker, and the
// journal exclusively; nothing else mutates them, so no locking is needed
// on trading state, mirroring the teacher's single-consumer channel
// pattern in cmd/bitrader/main.go.
package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stepback/internal/entry"
	"stepback/internal/gateway"
	"stepback/internal/instrument"
	"stepback/internal/journal"
	"stepback/internal/ladder"
	"stepback/internal/metrics"
	"stepback/internal/sizer"
	"stepback/internal/tracker"
)

// Settings bundles the runtime knobs the orchestrator needs that are not
// owned by any one collaborator package.
type Settings struct {
	TradeDelay         time.Duration
	MaxConsecLosses    int
	Rounding           int32
	FixedPipMode       bool
	FixedPipDistance   decimal.Decimal
	ExitEpsilon        decimal.Decimal
	GatewayCallTimeout time.Duration
}

// Engine is the orchestrator. It is not safe for concurrent use outside of
// its own Run loop; all mutation happens on the goroutine that calls Run.
type Engine struct {
	ladder     *ladder.Ladder
	tracker    *tracker.Tracker
	journal    *journal.Journal
	gw         gateway.Gateway
	predicate  entry.Predicate
	inst       instrument.Metadata
	settings   Settings
	logger     zerolog.Logger
	metrics    *metrics.Metrics

	lastExitTime   time.Time
	paused         bool
	refuseEntry    bool // set when an entry submission fails; never cleared, so entries stay refused for the rest of the run
	initialBalance decimal.Decimal

	stats stats
}

type stats struct {
	totalTrades   int
	winningTrades int
	maxStep       int
	cumReturn     decimal.Decimal
}

// New constructs an Engine. lastExitTime starts far enough in the past
// that the delay gate never blocks the first entry. m must be non-nil;
// callers that don't need to observe metrics still register a real
// *metrics.Metrics (against a scratch registry in tests) rather than pass
// nil, since every mutation path below updates it unconditionally.
func New(l *ladder.Ladder, gw gateway.Gateway, j *journal.Journal, predicate entry.Predicate, inst instrument.Metadata, settings Settings, logger zerolog.Logger, m *metrics.Metrics) *Engine {
	e := &Engine{
		ladder:         l,
		tracker:        tracker.New(),
		journal:        j,
		gw:             gw,
		predicate:      predicate,
		inst:           inst,
		settings:       settings,
		logger:         logger,
		metrics:        m,
		lastExitTime:   time.Unix(0, 0),
		initialBalance: l.CurrentBalance(),
		stats:          stats{cumReturn: decimal.Zero},
	}
	m.LadderStepIndex.Set(float64(l.StepIndex()))
	m.LadderBalance.Set(l.CurrentBalance().InexactFloat64())
	m.LadderConsecutiveLoss.Set(float64(l.ConsecutiveLosses()))
	return e
}

// Stats returns a snapshot of the engine's cumulative statistics.
func (e *Engine) Stats() journal.Stats {
	winRate := decimal.Zero
	if e.stats.totalTrades > 0 {
		winRate = decimal.NewFromInt(int64(e.stats.winningTrades)).Div(decimal.NewFromInt(int64(e.stats.totalTrades)))
	}
	cumReturn := decimal.Zero
	if !e.initialBalance.IsZero() {
		cumReturn = e.ladder.CurrentBalance().Sub(e.initialBalance).Div(e.initialBalance)
	}
	return journal.Stats{
		TotalTrades:      e.stats.totalTrades,
		WinningTrades:    e.stats.winningTrades,
		WinRate:          winRate,
		MaxStepReached:   e.stats.maxStep,
		CumulativeReturn: cumReturn,
	}
}

// LadderSnapshot returns the current ladder state, for the HTTP status
// surface and other external observers. The returned snapshot is not a
// transition record; WasTransition and WasProfit are always false.
func (e *Engine) LadderSnapshot() *journal.LadderSnapshot {
	return e.ladderSnapshot(false, false)
}

// HasOpenPosition reports whether a trade is currently pending or open.
func (e *Engine) HasOpenPosition() bool {
	return e.tracker.HasOpenPosition()
}

// Event is the sum type the orchestrator's single channel carries.
type Event interface{ isEvent() }

type QuoteEvent struct {
	Bid, Ask decimal.Decimal
	Ts       time.Time
}

type FillEvent struct {
	ClientID string
	Price    decimal.Decimal
	Qty      decimal.Decimal
	Ts       time.Time
}

type RejectEvent struct {
	ClientID string
	Reason   string
	Ts       time.Time
}

func (QuoteEvent) isEvent()  {}
func (FillEvent) isEvent()   {}
func (RejectEvent) isEvent() {}

// Run consumes events in arrival order until ctx is cancelled or events is
// closed. It is the orchestrator's only entry point after construction.
func (e *Engine) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			e.shutdown(ctx)
			return
		case ev, ok := <-events:
			if !ok {
				e.shutdown(ctx)
				return
			}
			e.handle(ctx, ev)
		}
	}
}

func (e *Engine) handle(ctx context.Context, ev Event) {
	switch v := ev.(type) {
	case QuoteEvent:
		e.onQuote(ctx, v)
	case FillEvent:
		e.onFill(ctx, v)
	case RejectEvent:
		e.onReject(v)
	}
}

func (e *Engine) onQuote(ctx context.Context, q QuoteEvent) {
	if e.tracker.HasOpenPosition() {
		return
	}
	if e.paused || e.refuseEntry {
		return
	}
	if q.Ts.Sub(e.lastExitTime) < e.settings.TradeDelay {
		return
	}

	decision := e.predicate.Decide(
		entry.Quote{Bid: q.Bid, Ask: q.Ask},
		entry.RuntimeState{ConsecutiveLosses: e.ladder.ConsecutiveLosses(), Paused: e.paused},
	)
	if decision == entry.Skip {
		return
	}

	side := tracker.Long
	sizerSide := sizer.Long
	entryPrice := q.Ask
	if decision == entry.EnterShort {
		side = tracker.Short
		sizerSide = sizer.Short
		entryPrice = q.Bid
	}

	result, err := sizer.Size(sizer.Input{
		Instrument:       e.inst,
		Side:             sizerSide,
		EntryPrice:       entryPrice,
		GrowthMinusOne:   e.growthMinusOne(),
		LossFraction:     e.ladder.LossPercentageForStepBack(),
		LossAmount:       e.ladder.LossForStepBack(),
		FixedPipMode:     e.settings.FixedPipMode,
		FixedPipDistance: e.settings.FixedPipDistance,
	})
	if err != nil {
		e.metrics.ErrorsTotal.Inc()
		e.journalRefusal(q.Ts, err.Error())
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, e.settings.GatewayCallTimeout)
	defer cancel()

	submitStart := time.Now()
	ack, err := e.gw.SubmitMarket(callCtx, gateway.Request{
		Symbol:   e.inst.Symbol,
		Side:     gatewaySide(side),
		Kind:     gateway.Market,
		Quantity: result.Quantity,
		Price:    entryPrice,
	})
	e.metrics.OrderExecutionSeconds.Observe(time.Since(submitStart).Seconds())
	if err != nil {
		e.metrics.ErrorsTotal.Inc()
		e.logger.Warn().Err(err).Msg("core: entry submission ambiguous, refusing new entries until resolved")
		e.refuseEntry = true
		return
	}
	e.metrics.OrdersSubmittedTotal.Inc()

	e.tracker.Begin(tracker.Position{
		ClientID:        ack.ClientID,
		Side:            side,
		Stake:           e.ladder.CurrentStake(),
		EntryPrice:      entryPrice,
		StopLossPrice:   result.StopLossPrice,
		TakeProfitPrice: result.TakeProfitPrice,
		Quantity:        result.Quantity,
		LossPercentage:  e.ladder.LossPercentageForStepBack(),
	})

	e.logger.Info().
		Str("side", string(side)).
		Str("entry_price", entryPrice.String()).
		Str("quantity", result.Quantity.String()).
		Str("stop_loss", result.StopLossPrice.String()).
		Str("take_profit", result.TakeProfitPrice.String()).
		Str("effective_loss", result.EffectiveLoss.String()).
		Str("loss_residual", e.ladder.LossForStepBack().Sub(result.EffectiveLoss).String()).
		Msg("core: entry submitted")
}

func (e *Engine) onFill(ctx context.Context, f FillEvent) {
	pos := e.tracker.Current()
	if pos == nil {
		// Duplicate or stale fill for an already-closed trade: ignored with
		// a warning per the ordering guarantee in the specification.
		e.logger.Warn().Str("client_id", f.ClientID).Msg("core: fill for no tracked position, ignored")
		return
	}

	switch pos.State {
	case tracker.PendingEntry:
		if f.ClientID != pos.ClientID {
			return
		}
		if err := e.tracker.ConfirmEntry("", "", f.Price, f.Ts); err != nil {
			e.logger.Warn().Err(err).Msg("core: confirm entry failed")
			return
		}
		e.submitProtectiveOrders(ctx)

	case tracker.Open:
		switch f.ClientID {
		case pos.StopClientID, pos.TPClientID:
			sibling, err := e.tracker.ProtectiveFill(f.Price)
			if err != nil {
				e.logger.Warn().Err(err).Msg("core: protective fill transition failed")
				return
			}
			e.cancelBestEffort(ctx, sibling)
		case pos.ClientID:
			// The underlying market position closed directly (a manual
			// close) rather than through either protective order: both
			// stop and take-profit are still resting on the gateway, so
			// cancel both instead of relying on ProtectiveFill's
			// single-sibling result.
			if _, err := e.tracker.ProtectiveFill(f.Price); err != nil {
				e.logger.Warn().Err(err).Msg("core: manual close transition failed")
				return
			}
			e.cancelBestEffort(ctx, pos.StopClientID)
			e.cancelBestEffort(ctx, pos.TPClientID)
		default:
			e.logger.Warn().Str("client_id", f.ClientID).Msg("core: fill for untracked client id while position open, ignored")
			return
		}
		closed, err := e.tracker.Close(e.settings.ExitEpsilon, f.Ts)
		if err != nil {
			e.logger.Warn().Err(err).Msg("core: close failed")
			return
		}
		e.applyOutcome(closed)

	default:
		e.logger.Warn().Str("client_id", f.ClientID).Msg("core: fill for position in terminal or unexpected state, ignored")
	}
}

func (e *Engine) onReject(r RejectEvent) {
	pos := e.tracker.Current()
	if pos == nil || pos.State != tracker.PendingEntry || r.ClientID != pos.ClientID {
		return
	}
	if err := e.tracker.RejectEntry(); err != nil {
		e.logger.Warn().Err(err).Msg("core: reject entry transition failed")
		return
	}
	e.metrics.OrdersRejectedTotal.Inc()
	e.journalRefusal(r.Ts, r.Reason)
}

func (e *Engine) submitProtectiveOrders(ctx context.Context) {
	pos := e.tracker.Current()
	if pos == nil {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, e.settings.GatewayCallTimeout)
	defer cancel()

	stopSide := gatewaySide(oppositeSide(pos.Side))
	stopAck, err := e.gw.SubmitStop(callCtx, gateway.Request{
		Symbol: e.inst.Symbol, Side: stopSide, Kind: gateway.Stop,
		Quantity: pos.Quantity, StopPrice: pos.StopLossPrice,
	})
	if err != nil {
		e.metrics.ErrorsTotal.Inc()
		e.logger.Error().Err(err).Msg("core: stop submission failed after entry confirmed")
		return
	}
	e.metrics.OrdersSubmittedTotal.Inc()
	tpAck, err := e.gw.SubmitLimit(callCtx, gateway.Request{
		Symbol: e.inst.Symbol, Side: stopSide, Kind: gateway.Limit,
		Quantity: pos.Quantity, Price: pos.TakeProfitPrice,
	})
	if err != nil {
		e.metrics.ErrorsTotal.Inc()
		e.logger.Error().Err(err).Msg("core: take-profit submission failed after entry confirmed")
		return
	}
	e.metrics.OrdersSubmittedTotal.Inc()

	pos.StopClientID = stopAck.ClientID
	pos.TPClientID = tpAck.ClientID
}

func (e *Engine) cancelBestEffort(ctx context.Context, clientID string) {
	if clientID == "" {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, e.settings.GatewayCallTimeout)
	defer cancel()
	if _, err := e.gw.Cancel(callCtx, clientID); err != nil {
		e.logger.Warn().Err(err).Str("client_id", clientID).Msg("core: best-effort sibling cancel failed")
	}
}

// applyOutcome moves the ladder per the closed trade's outcome, updates
// runtime state, and journals the result.
func (e *Engine) applyOutcome(p *tracker.Position) {
	switch p.Outcome {
	case tracker.Win:
		e.ladder.RecordProfit()
		e.stats.winningTrades++
		e.metrics.TradesWinTotal.Inc()
		e.metrics.LadderTransitionsTotal.Inc()
	case tracker.Loss:
		e.ladder.RecordLoss()
		e.metrics.TradesLossTotal.Inc()
		e.metrics.LadderTransitionsTotal.Inc()
	case tracker.NeutralClose:
		// no ladder movement
	}

	e.lastExitTime = p.ClosedAt
	e.stats.totalTrades++
	e.metrics.TradesTotal.Inc()
	if e.ladder.StepIndex() > e.stats.maxStep {
		e.stats.maxStep = e.ladder.StepIndex()
	}

	wasPaused := e.paused
	if e.ladder.ConsecutiveLosses() >= e.settings.MaxConsecLosses {
		e.paused = true
	} else {
		e.paused = false
	}
	if e.paused && !wasPaused {
		e.metrics.LadderPausedTotal.Inc()
	}

	e.metrics.LadderStepIndex.Set(float64(e.ladder.StepIndex()))
	e.metrics.LadderBalance.Set(e.ladder.CurrentBalance().InexactFloat64())
	e.metrics.LadderConsecutiveLoss.Set(float64(e.ladder.ConsecutiveLosses()))

	e.journalTradeClosed(p)
	if p.Outcome != tracker.NeutralClose {
		e.journalLadderTransition(p.ClosedAt, p.Outcome == tracker.Win)
	}

	stats := e.Stats()
	e.metrics.CumulativeReturn.Set(stats.CumulativeReturn.InexactFloat64())
	if err := e.journal.Append(journal.Record{
		Kind:  journal.KindStatsSnapshot,
		Ts:    p.ClosedAt,
		Stats: &stats,
	}); err != nil {
		e.logger.Error().Err(err).Msg("core: stats snapshot journal append failed")
	}
}

func (e *Engine) shutdown(ctx context.Context) {
	pos := e.tracker.Current()
	if pos == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(context.Background(), e.settings.GatewayCallTimeout)
	defer cancel()

	if pos.StopClientID != "" {
		e.cancelBestEffort(callCtx, pos.StopClientID)
	}
	if pos.TPClientID != "" {
		e.cancelBestEffort(callCtx, pos.TPClientID)
	}
	abandoned := e.tracker.Abandon(time.Now())
	if abandoned != nil {
		e.journalTradeClosed(abandoned)
	}
}

func (e *Engine) growthMinusOne() decimal.Decimal {
	return e.ladder.ProfitTarget().Div(e.ladder.CurrentStake())
}

func (e *Engine) journalRefusal(ts time.Time, reason string) {
	if ts.IsZero() {
		ts = time.Now()
	}
	if err := e.journal.Append(journal.Record{
		Kind:   journal.KindOrderSubmit,
		Ts:     ts,
		Reason: reason,
		Ladder: e.ladderSnapshot(false, false),
	}); err != nil {
		e.logger.Error().Err(err).Msg("core: journal append failed")
	}
}

// journalLadderTransition records the ladder's new rung after a win or loss
// moves it, independently of the trade-closed record, so the balance
// history can be recovered by replaying only KindLadderTransition records
// (journal.Reconstruct) without needing to re-derive it from trade outcomes.
func (e *Engine) journalLadderTransition(ts time.Time, profit bool) {
	if err := e.journal.Append(journal.Record{
		Kind:   journal.KindLadderTransition,
		Ts:     ts,
		Ladder: e.ladderSnapshot(true, profit),
	}); err != nil {
		e.logger.Error().Err(err).Msg("core: ladder transition journal append failed")
	}
}

func (e *Engine) journalTradeClosed(p *tracker.Position) {
	snap := e.ladderSnapshot(p.Outcome != tracker.NeutralClose, p.Outcome == tracker.Win)
	if err := e.journal.Append(journal.Record{
		Kind:   journal.KindTradeClosed,
		Ts:     p.ClosedAt,
		Ladder: snap,
	}); err != nil {
		e.logger.Error().Err(err).Msg("core: journal append failed")
	}
}

func (e *Engine) ladderSnapshot(transitioned, profit bool) *journal.LadderSnapshot {
	return &journal.LadderSnapshot{
		History:       e.ladder.History(),
		StepIndex:     e.ladder.StepIndex(),
		Balance:       e.ladder.CurrentBalance(),
		WasTransition: transitioned,
		WasProfit:     profit,
	}
}

func oppositeSide(s tracker.Side) tracker.Side {
	if s == tracker.Long {
		return tracker.Short
	}
	return tracker.Long
}

func gatewaySide(s tracker.Side) gateway.Side {
	if s == tracker.Long {
		return gateway.Buy
	}
	return gateway.Sell
}
