package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"stepback/internal/backtest"
	"stepback/internal/cfg"
	"stepback/internal/core"
	"stepback/internal/entry"
	"stepback/internal/gateway"
	"stepback/internal/instrument"
	"stepback/internal/journal"
	"stepback/internal/ladder"
	"stepback/internal/metrics"
	"stepback/internal/quote"
	"stepback/internal/status"
)

func main() {
	mode := flag.String("mode", "demo", "run mode: demo, backtest, live")
	initialBalance := flag.String("initial-balance", "", "override the configured initial balance")
	growthFactor := flag.String("growth-factor", "", "override the configured growth factor")
	dataPath := flag.String("data", "data/quotes.csv", "backtest mode: path to a CSV file of bid/ask quotes")
	outputPath := flag.String("output", "backtest-results", "backtest mode: output directory for reports and the journal")
	startDate := flag.String("start-date", "", "backtest mode: ignore quotes before this RFC3339 timestamp")
	endDate := flag.String("end-date", "", "backtest mode: ignore quotes after this RFC3339 timestamp")
	flag.Parse()

	settings, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	if *initialBalance != "" {
		if v, err := decimal.NewFromString(*initialBalance); err == nil {
			settings.InitialBalance = v
		}
	}
	if *growthFactor != "" {
		if v, err := decimal.NewFromString(*growthFactor); err == nil {
			settings.GrowthFactor = v
		}
	}

	logger := newLogger(settings, *mode)

	var runErr error
	switch *mode {
	case "backtest":
		runErr = runBacktest(settings, logger, backtestFlags{
			dataPath:   *dataPath,
			outputPath: *outputPath,
			startDate:  *startDate,
			endDate:    *endDate,
		})
	default:
		runErr = run(*mode, settings, logger)
	}
	if runErr != nil {
		logger.Fatal().Err(runErr).Msg("engine run failed")
	}
}

func newLogger(settings cfg.Settings, mode string) zerolog.Logger {
	level, err := zerolog.ParseLevel(settings.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if mode == "demo" || mode == "backtest" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return logger.Level(level)
}

// run drives the live and demo modes: a real-time quote stream feeds the
// orchestrator, with a live REST gateway in "live" mode when DryRun is off,
// and an in-memory simulated gateway otherwise (demo mode, or live mode with
// DryRun on), so those runs use real market data without an order ever
// reaching a real venue.
func run(mode string, settings cfg.Settings, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inst := instrument.Lookup(settings.Instrument)
	m := metrics.New()

	// Resume before opening the journal for writing: bbolt holds an
	// exclusive file lock on an open database, so a read-only Open from
	// the same process after journal.Open would only time out.
	l := resumeLadder(settings, logger)

	j, err := journal.Open(settings.DataPath, logger)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	var gw gateway.Gateway
	switch {
	case mode == "live" && !settings.DryRun:
		gw = gateway.NewREST(gateway.RESTConfig{
			Key:                settings.GatewayKey,
			Secret:             settings.GatewaySecret,
			BaseURL:            settings.BaseURL,
			Timeout:            settings.RESTTimeout,
			MaxRetries:         settings.MaxOrderRetries,
			RetryWait:          time.Second,
			RetryMaxWait:       5 * time.Second,
			StatusPollInterval: settings.OrderStatusCheckInterval,
		}, logger)
	default:
		gw = gateway.NewSimulated()
	}
	defer gw.Close()
	source := quote.NewWS(settings.WsURL, settings.PingInterval, logger)

	eng := core.New(l, gw, j, entry.AlwaysLong, inst, core.Settings{
		TradeDelay:         settings.TradeDelay,
		MaxConsecLosses:    settings.MaxConsecLosses,
		Rounding:           settings.Rounding,
		FixedPipMode:       settings.FixedPipMode,
		FixedPipDistance:   settings.FixedPipDistance,
		ExitEpsilon:        inst.TickSize,
		GatewayCallTimeout: settings.OrderExecutionTimeout,
	}, logger, m)

	startMetricsServer(ctx, settings.MetricsPort, logger)

	statusSrv := status.New(eng, settings.StatusPort, logger)
	statusSrv.Start()
	defer statusSrv.Stop(context.Background())

	quotes, quoteErrs := source.Stream(ctx, settings.Instrument)
	events := make(chan core.Event, 256)

	go forwardQuotes(ctx, quotes, quoteErrs, events, gw, m, logger)
	go forwardGateway(ctx, gw, events)

	done := make(chan struct{})
	go func() {
		eng.Run(ctx, events)
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutdown signal received")
	case <-done:
		logger.Warn().Msg("engine loop exited unexpectedly")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn().Msg("shutdown timeout, forcing exit")
	}

	return nil
}

type backtestFlags struct {
	dataPath   string
	outputPath string
	startDate  string
	endDate    string
}

// runBacktest replays a CSV quote file through the same orchestrator
// construction run uses, against a simulated gateway and a deterministic
// quote.Replay source, then writes the summary/JSON reports.
func runBacktest(settings cfg.Settings, logger zerolog.Logger, flags backtestFlags) error {
	loader := backtest.NewDataLoader()
	if err := loader.LoadFromCSV(flags.dataPath); err != nil {
		return fmt.Errorf("load quote data: %w", err)
	}
	if flags.startDate != "" || flags.endDate != "" {
		if err := loader.Clip(flags.startDate, flags.endDate); err != nil {
			return fmt.Errorf("clip quote data: %w", err)
		}
	}

	inst := instrument.Lookup(settings.Instrument)
	gw := gateway.NewSimulated()
	defer gw.Close()

	// Resume before opening the journal for writing: bbolt holds an
	// exclusive file lock on an open database, so a read-only Open from
	// the same process after journal.Open would only time out.
	settings.DataPath = flags.outputPath
	l := resumeLadder(settings, logger)

	j, err := journal.Open(flags.outputPath, logger)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	m := metrics.New()
	eng := core.New(l, gw, j, entry.AlwaysLong, inst, core.Settings{
		TradeDelay:         settings.TradeDelay,
		MaxConsecLosses:    settings.MaxConsecLosses,
		Rounding:           settings.Rounding,
		FixedPipMode:       settings.FixedPipMode,
		FixedPipDistance:   settings.FixedPipDistance,
		ExitEpsilon:        inst.TickSize,
		GatewayCallTimeout: settings.OrderExecutionTimeout,
	}, logger, m)

	source := loader.NewSource(logger)
	runner := backtest.NewEngine(eng, gw, source, j, settings.Instrument, logger)

	logger.Info().Int("quotes", loader.Count()).Msg("starting backtest")
	results, err := runner.Run(context.Background())
	if err != nil {
		return fmt.Errorf("run backtest: %w", err)
	}

	reporter := backtest.NewReporter(results, flags.outputPath, logger)
	if err := reporter.GenerateReport(); err != nil {
		logger.Error().Err(err).Msg("failed to generate reports")
	}
	reporter.PrintSummary()

	logger.Info().Str("output", flags.outputPath).Msg("backtest completed successfully")
	return nil
}

// resumeLadder rebuilds the ladder from a prior run's journaled balance
// history at settings.DataPath, if one exists, instead of starting fresh
// at settings.InitialBalance; this is the resume path journal.Reconstruct
// exists to serve.
func resumeLadder(settings cfg.Settings, logger zerolog.Logger) *ladder.Ladder {
	balances, err := backtest.LoadFromJournal(settings.DataPath)
	if err != nil || len(balances) == 0 {
		return ladder.New(settings.InitialBalance, settings.GrowthFactor, settings.Rounding)
	}
	// Each journaled transition carries the balance the ladder moved to:
	// a higher balance is a win (push a rung), anything else is a loss
	// (pop a rung, or stay on the base rung).
	history := []decimal.Decimal{settings.InitialBalance}
	for _, b := range balances {
		if b.GreaterThan(history[len(history)-1]) {
			history = append(history, b)
		} else if len(history) > 1 {
			history = history[:len(history)-1]
		}
	}
	logger.Info().Int("steps", len(history)-1).Str("balance", history[len(history)-1].String()).Msg("resumed ladder from journal")
	return ladder.Resume(history, settings.GrowthFactor, settings.Rounding)
}

func forwardQuotes(ctx context.Context, quotes <-chan quote.Quote, errs <-chan error, events chan<- core.Event, gw gateway.Gateway, m *metrics.Metrics, logger zerolog.Logger) {
	checker, _ := gw.(gateway.QuoteChecker)
	for {
		select {
		case q, ok := <-quotes:
			if !ok {
				return
			}
			m.QuotesReceivedTotal.Inc()
			if checker != nil {
				checker.CheckQuote(q.Bid, q.Ask)
			}
			select {
			case events <- core.QuoteEvent{Bid: q.Bid, Ask: q.Ask, Ts: q.Ts}:
			case <-ctx.Done():
				return
			}
		case err, ok := <-errs:
			if !ok {
				continue
			}
			if err != nil {
				m.QuoteReconnectsTotal.Inc()
				logger.Warn().Err(err).Msg("quote stream error")
			}
		case <-ctx.Done():
			return
		}
	}
}

func forwardGateway(ctx context.Context, gw gateway.Gateway, events chan<- core.Event) {
	fills := gw.Fills()
	rejects := gw.Rejects()
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

func startMetricsServer(ctx context.Context, port int, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("metrics server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
}
