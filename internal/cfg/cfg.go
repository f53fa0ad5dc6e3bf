// Package cfg provides configuration management for the step-back balance
// trading engine. It supports loading configuration from either a YAML
// file or environment variables, environment variables taking precedence,
// following the same layered load/validate shape as the teacher's cfg.Load.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"stepback/internal/common"
)

// Settings contains every configuration parameter the engine needs.
type Settings struct {
	GatewayKey    string
	GatewaySecret string
	BaseURL       string
	WsURL         string

	Instrument       string
	InitialBalance   decimal.Decimal
	GrowthFactor     decimal.Decimal
	TradeDelay       time.Duration
	MaxConsecLosses  int
	Rounding         int32
	BaseLossMode     string
	FixedPipMode     bool
	FixedPipDistance decimal.Decimal
	DryRun           bool

	LogLevel     string
	MetricsPort  int
	StatusPort   int
	RESTTimeout  time.Duration
	PingInterval time.Duration
	DataPath     string

	OrderExecutionTimeout    time.Duration
	OrderStatusCheckInterval time.Duration
	MaxOrderRetries          int
}

// ConfigFile is the YAML schema accepted via CONFIG_FILE, mirroring the
// teacher's hierarchical ConfigFile layout.
type ConfigFile struct {
	Gateway struct {
		Key     string `yaml:"key"`
		Secret  string `yaml:"secret"`
		BaseURL string `yaml:"baseURL"`
		WsURL   string `yaml:"wsURL"`
	} `yaml:"gateway"`

	Trading struct {
		Instrument       string `yaml:"instrument"`
		InitialBalance   string `yaml:"initialBalance"`
		GrowthFactor     string `yaml:"growthFactor"`
		TradeDelay       string `yaml:"tradeDelay"`
		MaxConsecLosses  int    `yaml:"maxConsecutiveLosses"`
		Rounding         int32  `yaml:"rounding"`
		BaseLossMode     string `yaml:"baseLossMode"`
		FixedPipMode     bool   `yaml:"fixedPipMode"`
		FixedPipDistance string `yaml:"fixedPipDistance"`
		DryRun           bool   `yaml:"dryRun"`
	} `yaml:"trading"`

	System struct {
		LogLevel     string `yaml:"logLevel"`
		MetricsPort  int    `yaml:"metricsPort"`
		StatusPort   int    `yaml:"statusPort"`
		RESTTimeout  string `yaml:"restTimeout"`
		PingInterval string `yaml:"pingInterval"`
		DataPath     string `yaml:"dataPath"`

		OrderExecutionTimeout    string `yaml:"orderExecutionTimeout"`
		OrderStatusCheckInterval string `yaml:"orderStatusCheckInterval"`
		MaxOrderRetries          int    `yaml:"maxOrderRetries"`
	} `yaml:"system"`
}

// envFixedPipDistance is not in common because it is a suffixed variant of
// EnvFixedPipMode, not an independent ambient setting.
const envFixedPipDistance = common.EnvFixedPipMode + "_DISTANCE"
const defaultFixedPipDistance = "20"

// Load loads configuration from either a YAML file (CONFIG_FILE) or
// environment variables, validating the result either way.
func Load() (Settings, error) {
	_ = godotenv.Load()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return loadFromYAML(path)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("parse config file: %w", err)
	}

	settings := Settings{
		GatewayKey:    getEnvOrDefault(common.EnvGatewayKey, config.Gateway.Key),
		GatewaySecret: getEnvOrDefault(common.EnvGatewaySecret, config.Gateway.Secret),
		BaseURL:       getEnvOrDefault(common.EnvBaseURL, orDefault(config.Gateway.BaseURL, common.DefaultBaseURL)),
		WsURL:         getEnvOrDefault(common.EnvWsURL, orDefault(config.Gateway.WsURL, common.DefaultWsURL)),

		Instrument:       getEnvOrDefault(common.EnvInstrument, orDefault(config.Trading.Instrument, common.DefaultInstrument)),
		InitialBalance:   getDecimalFromEnvOrConfig(common.EnvInitialBalance, config.Trading.InitialBalance, common.DefaultInitialBalance),
		GrowthFactor:     getDecimalFromEnvOrConfig(common.EnvGrowthFactor, config.Trading.GrowthFactor, common.DefaultGrowthFactor),
		TradeDelay:       getDurationFromEnvOrConfig(common.EnvTradeDelay, config.Trading.TradeDelay, common.DefaultTradeDelay),
		MaxConsecLosses:  getIntFromEnvOrConfig(common.EnvMaxConsecLosses, config.Trading.MaxConsecLosses, common.DefaultMaxConsecLosses),
		Rounding:         int32(getIntFromEnvOrConfig(common.EnvRounding, int(config.Trading.Rounding), common.DefaultRounding)),
		BaseLossMode:     getEnvOrDefault(common.EnvBaseLossMode, orDefault(config.Trading.BaseLossMode, common.DefaultBaseLossMode)),
		FixedPipMode:     getBoolFromEnvOrConfig(common.EnvFixedPipMode, config.Trading.FixedPipMode),
		FixedPipDistance: getDecimalFromEnvOrConfig(envFixedPipDistance, config.Trading.FixedPipDistance, defaultFixedPipDistance),
		DryRun:           getBoolFromEnvOrConfig(common.EnvDryRun, config.Trading.DryRun),

		LogLevel:     getEnvOrDefault(common.EnvLogLevel, orDefault(config.System.LogLevel, "info")),
		MetricsPort:  getIntFromEnvOrConfig(common.EnvMetricsPort, config.System.MetricsPort, common.DefaultMetricsPort),
		StatusPort:   getIntFromEnvOrConfig(common.EnvStatusPort, config.System.StatusPort, common.DefaultStatusPort),
		RESTTimeout:  getDurationFromEnvOrConfig(common.EnvRESTTimeout, config.System.RESTTimeout, common.DefaultRESTTimeout),
		PingInterval: getDurationFromEnvOrConfig(common.EnvPingInterval, config.System.PingInterval, common.DefaultPingInterval),
		DataPath:     getEnvOrDefault(common.EnvDataPath, orDefault(config.System.DataPath, "./data")),

		OrderExecutionTimeout:    getDurationFromEnvOrConfig(common.EnvOrderExecutionTimeout, config.System.OrderExecutionTimeout, common.DefaultOrderExecutionTimeout),
		OrderStatusCheckInterval: getDurationFromEnvOrConfig(common.EnvOrderStatusCheckInterval, config.System.OrderStatusCheckInterval, common.DefaultOrderStatusCheckInterval),
		MaxOrderRetries:          getIntFromEnvOrConfig(common.EnvMaxOrderRetries, config.System.MaxOrderRetries, common.DefaultMaxOrderRetries),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		GatewayKey:    os.Getenv(common.EnvGatewayKey),
		GatewaySecret: os.Getenv(common.EnvGatewaySecret),
		BaseURL:       getEnvOrDefault(common.EnvBaseURL, common.DefaultBaseURL),
		WsURL:         getEnvOrDefault(common.EnvWsURL, common.DefaultWsURL),

		Instrument:       getEnvOrDefault(common.EnvInstrument, common.DefaultInstrument),
		InitialBalance:   getDecimalOrDefault(common.EnvInitialBalance, common.DefaultInitialBalance),
		GrowthFactor:     getDecimalOrDefault(common.EnvGrowthFactor, common.DefaultGrowthFactor),
		TradeDelay:       getDurationOrDefault(common.EnvTradeDelay, common.DefaultTradeDelay),
		MaxConsecLosses:  getIntOrDefault(common.EnvMaxConsecLosses, common.DefaultMaxConsecLosses),
		Rounding:         int32(getIntOrDefault(common.EnvRounding, common.DefaultRounding)),
		BaseLossMode:     getEnvOrDefault(common.EnvBaseLossMode, common.DefaultBaseLossMode),
		FixedPipMode:     getBoolOrDefault(common.EnvFixedPipMode, false),
		FixedPipDistance: getDecimalOrDefault(envFixedPipDistance, defaultFixedPipDistance),
		DryRun:           getBoolOrDefault(common.EnvDryRun, true),

		LogLevel:     getEnvOrDefault(common.EnvLogLevel, "info"),
		MetricsPort:  getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		StatusPort:   getIntOrDefault(common.EnvStatusPort, common.DefaultStatusPort),
		RESTTimeout:  getDurationOrDefault(common.EnvRESTTimeout, common.DefaultRESTTimeout),
		PingInterval: getDurationOrDefault(common.EnvPingInterval, common.DefaultPingInterval),
		DataPath:     getEnvOrDefault(common.EnvDataPath, "./data"),

		OrderExecutionTimeout:    getDurationOrDefault(common.EnvOrderExecutionTimeout, common.DefaultOrderExecutionTimeout),
		OrderStatusCheckInterval: getDurationOrDefault(common.EnvOrderStatusCheckInterval, common.DefaultOrderStatusCheckInterval),
		MaxOrderRetries:          getIntOrDefault(common.EnvMaxOrderRetries, common.DefaultMaxOrderRetries),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue string) time.Duration {
	raw := getEnvOrDefault(key, defaultValue)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fallback, _ := time.ParseDuration(defaultValue)
		return fallback
	}
	return d
}

func getDurationFromEnvOrConfig(key, configValue, defaultValue string) time.Duration {
	if env := os.Getenv(key); env != "" {
		if d, err := time.ParseDuration(env); err == nil {
			return d
		}
	}
	raw := orDefault(configValue, defaultValue)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fallback, _ := time.ParseDuration(defaultValue)
		return fallback
	}
	return d
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if v, err := strconv.Atoi(env); err == nil {
			return v
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if v, err := strconv.ParseBool(env); err == nil {
			return v
		}
	}
	return configValue
}

func getDecimalOrDefault(key, defaultValue string) decimal.Decimal {
	raw := getEnvOrDefault(key, defaultValue)
	v, err := decimal.NewFromString(raw)
	if err != nil {
		fallback, _ := decimal.NewFromString(defaultValue)
		return fallback
	}
	return v
}

func getDecimalFromEnvOrConfig(key, configValue, defaultValue string) decimal.Decimal {
	if env := os.Getenv(key); env != "" {
		if v, err := decimal.NewFromString(env); err == nil {
			return v
		}
	}
	raw := orDefault(configValue, defaultValue)
	v, err := decimal.NewFromString(raw)
	if err != nil {
		fallback, _ := decimal.NewFromString(defaultValue)
		return fallback
	}
	return v
}

// validateSettings composes every validation function, mirroring the
// teacher's validateSettings pipeline.
func validateSettings(s *Settings) error {
	if err := validateCredentials(s); err != nil {
		return err
	}
	if err := validateURLs(s); err != nil {
		return err
	}
	if err := validateTradingParameters(s); err != nil {
		return err
	}
	if err := validateLiveTradingRestrictions(s); err != nil {
		return err
	}
	if err := validateSystemParameters(s); err != nil {
		return err
	}
	if err := validateOrderExecutionSettings(s); err != nil {
		return err
	}
	return nil
}

func validateCredentials(s *Settings) error {
	if s.DryRun {
		return nil
	}
	if s.GatewayKey == "" || s.GatewaySecret == "" {
		return fmt.Errorf(common.ErrMsgCredentialsRequired)
	}
	return nil
}

func validateURLs(s *Settings) error {
	if s.BaseURL == "" {
		return fmt.Errorf(common.ErrMsgBaseURLRequired)
	}
	if s.WsURL == "" {
		return fmt.Errorf(common.ErrMsgWsURLRequired)
	}
	return nil
}

func validateTradingParameters(s *Settings) error {
	if s.Instrument == "" {
		return fmt.Errorf(common.ErrMsgInstrumentRequired)
	}
	if !s.InitialBalance.IsPositive() {
		return fmt.Errorf("initialBalance must be positive")
	}
	if s.GrowthFactor.LessThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("growthFactor must be strictly greater than 1")
	}
	if s.MaxConsecLosses < 1 {
		return fmt.Errorf("maxConsecutiveLosses must be at least 1")
	}
	if s.Rounding < 0 || s.Rounding > 8 {
		return fmt.Errorf("rounding must be between 0 and 8 decimal places")
	}
	if s.BaseLossMode != common.DefaultBaseLossMode {
		return fmt.Errorf("baseLossMode %q is not a recognized policy", s.BaseLossMode)
	}
	if s.FixedPipMode && !s.FixedPipDistance.IsPositive() {
		return fmt.Errorf("fixedPipDistance must be positive when fixedPipMode is enabled")
	}
	return nil
}

func validateLiveTradingRestrictions(s *Settings) error {
	if s.DryRun {
		return nil
	}
	if os.Getenv(common.EnvForceLiveTrading) != "true" {
		return fmt.Errorf(common.ErrMsgForceLiveTradingRequired)
	}
	return nil
}

func validateSystemParameters(s *Settings) error {
	if s.PingInterval < time.Second || s.PingInterval > 5*time.Minute {
		return fmt.Errorf("pingInterval must be between 1s and 5m")
	}
	if s.RESTTimeout < time.Second || s.RESTTimeout > time.Minute {
		return fmt.Errorf("restTimeout must be between 1s and 1m")
	}
	if s.MetricsPort < common.MinMetricsPort || s.MetricsPort > common.MaxMetricsPort {
		return fmt.Errorf("metricsPort must be between %d and %d", common.MinMetricsPort, common.MaxMetricsPort)
	}
	if s.StatusPort < common.MinMetricsPort || s.StatusPort > common.MaxMetricsPort {
		return fmt.Errorf("statusPort must be between %d and %d", common.MinMetricsPort, common.MaxMetricsPort)
	}
	return nil
}

func validateOrderExecutionSettings(s *Settings) error {
	if s.OrderExecutionTimeout < 10*time.Second || s.OrderExecutionTimeout > 5*time.Minute {
		return fmt.Errorf("orderExecutionTimeout must be between 10s and 5m")
	}
	if s.OrderStatusCheckInterval < time.Second || s.OrderStatusCheckInterval > 30*time.Second {
		return fmt.Errorf("orderStatusCheckInterval must be between 1s and 30s")
	}
	if s.MaxOrderRetries < 1 || s.MaxOrderRetries > 10 {
		return fmt.Errorf("maxOrderRetries must be between 1 and 10")
	}
	return nil
}
