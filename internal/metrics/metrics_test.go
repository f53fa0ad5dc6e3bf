package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNewWithRegistry_RegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.LadderStepIndex.Set(3)
	m.TradesTotal.Inc()
	m.OrdersSubmittedTotal.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]*dto.MetricFamily{}
	for _, f := range families {
		byName[f.GetName()] = f
	}

	require.Contains(t, byName, "ladder_step_index")
	require.Contains(t, byName, "trades_total")
	require.Contains(t, byName, "orders_submitted_total")

	require.Equal(t, float64(3), byName["ladder_step_index"].Metric[0].GetGauge().GetValue())
	require.Equal(t, float64(1), byName["trades_total"].Metric[0].GetCounter().GetValue())
}
