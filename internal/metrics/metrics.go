// Package metrics provides Prometheus metrics collection for the step-back
// balance trading engine. It defines and manages the counters, gauges, and
// histograms exposed via the Prometheus metrics endpoint for monitoring the
// ladder, order lifecycle, and gateway/quote connectivity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric the engine exposes.
type Metrics struct {
	// Ladder state
	LadderStepIndex        prometheus.Gauge   // Current rung index in the balance ladder
	LadderBalance          prometheus.Gauge   // Current ladder balance
	LadderConsecutiveLoss  prometheus.Gauge   // Current consecutive-loss streak
	LadderTransitionsTotal prometheus.Counter // Total ladder rung transitions (profit or step-back)
	LadderPausedTotal      prometheus.Counter // Total times trading paused on max consecutive losses

	// Trades
	TradesTotal      prometheus.Counter // Total trades closed
	TradesWinTotal   prometheus.Counter // Total trades closed at take-profit
	TradesLossTotal  prometheus.Counter // Total trades closed at stop-loss
	CumulativeReturn prometheus.Gauge   // Cumulative return relative to the starting balance

	// Order execution
	OrdersSubmittedTotal  prometheus.Counter   // Total orders submitted to the gateway
	OrdersRejectedTotal   prometheus.Counter   // Total order rejections reported by the gateway
	OrderExecutionSeconds prometheus.Histogram // Time from submit to acknowledgement/fill

	// Quote connectivity
	QuoteReconnectsTotal prometheus.Counter // Total quote stream reconnections
	QuotesReceivedTotal  prometheus.Counter // Total quote ticks received

	// System
	ErrorsTotal prometheus.Counter // Total errors encountered across the engine
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics registered against a custom registerer,
// used by tests to avoid colliding with the global registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		LadderStepIndex: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ladder_step_index",
			Help: "Current rung index in the balance ladder (0 is the base rung)",
		}),
		LadderBalance: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ladder_balance",
			Help: "Current ladder balance",
		}),
		LadderConsecutiveLoss: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ladder_consecutive_losses",
			Help: "Current consecutive-loss streak since the last profitable trade",
		}),
		LadderTransitionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ladder_transitions_total",
			Help: "Total ladder rung transitions, profit or step-back",
		}),
		LadderPausedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ladder_paused_total",
			Help: "Total times trading paused after reaching the configured consecutive-loss limit",
		}),
		TradesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "trades_total",
			Help: "Total trades closed",
		}),
		TradesWinTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "trades_win_total",
			Help: "Total trades closed at take-profit",
		}),
		TradesLossTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "trades_loss_total",
			Help: "Total trades closed at stop-loss",
		}),
		CumulativeReturn: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cumulative_return",
			Help: "Cumulative return relative to the starting balance",
		}),
		OrdersSubmittedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_submitted_total",
			Help: "Total orders submitted to the gateway",
		}),
		OrdersRejectedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_rejected_total",
			Help: "Total order rejections reported by the gateway",
		}),
		OrderExecutionSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "order_execution_duration_seconds",
			Help:    "Duration from order submission to acknowledgement or fill, in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		QuoteReconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quote_reconnects_total",
			Help: "Total quote stream reconnections",
		}),
		QuotesReceivedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quotes_received_total",
			Help: "Total quote ticks received",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total errors encountered across the engine",
		}),
	}
}
