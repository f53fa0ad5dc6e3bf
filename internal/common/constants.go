// Package common holds environment variable names, defaults, and error
// strings shared across the engine's configuration and gateway layers.
package common

// Environment variable keys
const (
	EnvGatewayKey       = "GATEWAY_API_KEY"
	EnvGatewaySecret    = "GATEWAY_API_SECRET"
	EnvForceLiveTrading = "FORCE_LIVE_TRADING"
	EnvInstrument       = "INSTRUMENT"
	EnvBaseURL          = "BASE_URL"
	EnvWsURL            = "WS_URL"
	EnvDataPath         = "DATA_PATH"
	EnvInitialBalance   = "INITIAL_BALANCE"
	EnvGrowthFactor     = "GROWTH_FACTOR"
	EnvTradeDelay       = "TRADE_DELAY"
	EnvMaxConsecLosses  = "MAX_CONSECUTIVE_LOSSES"
	EnvLogLevel         = "LOG_LEVEL"
	EnvRounding         = "ROUNDING"
	EnvMetricsPort      = "METRICS_PORT"
	EnvStatusPort       = "STATUS_PORT"
	EnvRESTTimeout      = "REST_TIMEOUT"
	EnvPingInterval     = "PING_INTERVAL"
	EnvDryRun           = "DRY_RUN"
	EnvFixedPipMode     = "FIXED_PIP_MODE"
	EnvBaseLossMode     = "BASE_LOSS_MODE"

	EnvOrderExecutionTimeout    = "ORDER_EXECUTION_TIMEOUT"
	EnvOrderStatusCheckInterval = "ORDER_STATUS_CHECK_INTERVAL"
	EnvMaxOrderRetries          = "MAX_ORDER_RETRIES"
)

// Configuration defaults
const (
	DefaultBaseURL         = "https://api.example-exchange.com"
	DefaultWsURL           = "wss://stream.example-exchange.com/public"
	DefaultInstrument      = "EURUSD"
	DefaultInitialBalance  = "100"
	DefaultGrowthFactor    = "1.30"
	DefaultTradeDelay      = "5s"
	DefaultMaxConsecLosses = 10
	DefaultRounding        = 2
	DefaultMetricsPort     = 9090
	DefaultStatusPort      = 8090
	DefaultRESTTimeout     = "5s"
	DefaultPingInterval    = "15s"

	DefaultOrderExecutionTimeout    = "30s"
	DefaultOrderStatusCheckInterval = "5s"
	DefaultMaxOrderRetries          = 3

	DefaultBaseLossMode = "capped"
)

// Common error messages
const (
	ErrMsgCredentialsRequired      = "gateway API key and secret are required for live mode"
	ErrMsgBaseURLRequired          = "baseURL is required"
	ErrMsgWsURLRequired            = "wsURL is required"
	ErrMsgInstrumentRequired       = "instrument is required"
	ErrMsgForceLiveTradingRequired = "live trading requires FORCE_LIVE_TRADING=true environment variable"
)

// Validation bounds
const (
	MinMetricsPort = 1024
	MaxMetricsPort = 65535
)
