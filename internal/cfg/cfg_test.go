package cfg

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"GATEWAY_API_KEY", "GATEWAY_API_SECRET", "FORCE_LIVE_TRADING",
		"INSTRUMENT", "BASE_URL", "WS_URL", "DATA_PATH", "INITIAL_BALANCE",
		"GROWTH_FACTOR", "TRADE_DELAY", "MAX_CONSECUTIVE_LOSSES", "LOG_LEVEL",
		"ROUNDING", "METRICS_PORT", "STATUS_PORT", "REST_TIMEOUT",
		"PING_INTERVAL", "DRY_RUN", "FIXED_PIP_MODE", "FIXED_PIP_MODE_DISTANCE",
		"BASE_LOSS_MODE", "ORDER_EXECUTION_TIMEOUT", "ORDER_STATUS_CHECK_INTERVAL",
		"MAX_ORDER_RETRIES", "CONFIG_FILE",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestLoadFromEnv_DefaultsApplyInDryRun(t *testing.T) {
	clearEnv(t)
	os.Setenv("DRY_RUN", "true")
	t.Cleanup(func() { clearEnv(t) })

	settings, err := loadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "EURUSD", settings.Instrument)
	assert.True(t, settings.InitialBalance.Equal(mustDecimal("100")))
	assert.True(t, settings.GrowthFactor.Equal(mustDecimal("1.30")))
	assert.Equal(t, 5*time.Second, settings.TradeDelay)
	assert.Equal(t, 10, settings.MaxConsecLosses)
	assert.Equal(t, int32(2), settings.Rounding)
	assert.Equal(t, "capped", settings.BaseLossMode)
}

func TestLoadFromEnv_MissingCredentialsFailsOutsideDryRun(t *testing.T) {
	clearEnv(t)
	os.Setenv("DRY_RUN", "false")
	os.Setenv("FORCE_LIVE_TRADING", "true")
	t.Cleanup(func() { clearEnv(t) })

	_, err := loadFromEnv()
	assert.Error(t, err)
}

func TestLoadFromEnv_LiveModeRequiresForceFlag(t *testing.T) {
	clearEnv(t)
	os.Setenv("DRY_RUN", "false")
	os.Setenv("GATEWAY_API_KEY", "k")
	os.Setenv("GATEWAY_API_SECRET", "s")
	t.Cleanup(func() { clearEnv(t) })

	_, err := loadFromEnv()
	assert.ErrorContains(t, err, "FORCE_LIVE_TRADING")
}

func TestLoadFromEnv_CustomGrowthAndInstrument(t *testing.T) {
	clearEnv(t)
	os.Setenv("DRY_RUN", "true")
	os.Setenv("INSTRUMENT", "BTCUSDT")
	os.Setenv("GROWTH_FACTOR", "1.5")
	os.Setenv("MAX_CONSECUTIVE_LOSSES", "6")
	t.Cleanup(func() { clearEnv(t) })

	settings, err := loadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", settings.Instrument)
	assert.True(t, settings.GrowthFactor.Equal(mustDecimal("1.5")))
	assert.Equal(t, 6, settings.MaxConsecLosses)
}

func TestLoadFromEnv_RejectsGrowthFactorAtOrBelowOne(t *testing.T) {
	clearEnv(t)
	os.Setenv("DRY_RUN", "true")
	os.Setenv("GROWTH_FACTOR", "1.0")
	t.Cleanup(func() { clearEnv(t) })

	_, err := loadFromEnv()
	assert.ErrorContains(t, err, "growthFactor")
}

func TestLoadFromEnv_RejectsUnrecognizedBaseLossMode(t *testing.T) {
	clearEnv(t)
	os.Setenv("DRY_RUN", "true")
	os.Setenv("BASE_LOSS_MODE", "refunded")
	t.Cleanup(func() { clearEnv(t) })

	_, err := loadFromEnv()
	assert.ErrorContains(t, err, "baseLossMode")
}

func TestLoadFromYAML_OverriddenByEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte(`
trading:
  instrument: BTCUSDT
  initialBalance: "200"
  growthFactor: "1.25"
  dryRun: true
system:
  logLevel: debug
`), 0o600))

	os.Setenv("INSTRUMENT", "EURUSD")
	t.Cleanup(func() { clearEnv(t) })

	settings, err := loadFromYAML(path)
	require.NoError(t, err)

	assert.Equal(t, "EURUSD", settings.Instrument, "env var must win over YAML")
	assert.True(t, settings.InitialBalance.Equal(mustDecimal("200")))
	assert.Equal(t, "debug", settings.LogLevel)
}

func mustDecimal(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}
