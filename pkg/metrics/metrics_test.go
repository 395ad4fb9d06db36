package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMustRegister_registersEveryCollectorOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { MustRegister(reg) })

	// Vector collectors only emit a MetricFamily once a label
	// combination has been touched, so exercise one of each before
	// gathering rather than asserting on a freshly registered vector.
	CycleDuration.WithLabelValues("bot-x", "ok").Observe(0.1)
	CyclesTotal.WithLabelValues("bot-x", "ok").Inc()
	OracleCost.WithLabelValues("bot-x", "openai").Add(0)
	OracleLatency.WithLabelValues("bot-x", "openai", "false").Observe(0.1)
	RiskRejections.WithLabelValues("bot-x", "max_exposure").Inc()
	OpenPositions.WithLabelValues("bot-x").Set(0)
	Capital.WithLabelValues("bot-x").Set(0)
	ClosedPositionsToday.WithLabelValues("bot-x").Set(0)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 8)
}

func TestCollectors_incrementByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)

	CyclesTotal.WithLabelValues("bot-1", "ok").Inc()
	CyclesTotal.WithLabelValues("bot-1", "ok").Inc()
	CyclesTotal.WithLabelValues("bot-1", "hold").Inc()

	require.Equal(t, float64(2), testutil.ToFloat64(CyclesTotal.WithLabelValues("bot-1", "ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(CyclesTotal.WithLabelValues("bot-1", "hold")))

	Capital.WithLabelValues("bot-1").Set(10234.5)
	require.Equal(t, 10234.5, testutil.ToFloat64(Capital.WithLabelValues("bot-1")))
}
