// Package metrics exposes the Prometheus gauges/counters/histograms an
// external HTTP admin surface scrapes (§6's admin surface is out of
// scope; the metrics it would serve are not). Cycle duration, LLM
// cost/latency, and risk-gate rejections are the three numbers an
// operator watching a fleet of bots actually needs at a glance.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradecore_cycle_duration_seconds",
			Help:    "Duration of one engine cycle",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"bot_id", "outcome"},
	)

	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_cycles_total",
			Help: "Completed engine cycles",
		},
		[]string{"bot_id", "outcome"},
	)

	OracleCost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_oracle_cost_total",
			Help: "Cumulative LLM oracle spend",
		},
		[]string{"bot_id", "provider"},
	)

	OracleLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradecore_oracle_latency_seconds",
			Help:    "LLM oracle call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"bot_id", "provider", "cache_hit"},
	)

	RiskRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_risk_rejections_total",
			Help: "RiskGate rejections by reason",
		},
		[]string{"bot_id", "reason"},
	)

	OpenPositions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradecore_open_positions",
			Help: "Currently open positions per bot",
		},
		[]string{"bot_id"},
	)

	Capital = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradecore_bot_capital",
			Help: "Current cash balance per bot",
		},
		[]string{"bot_id"},
	)

	ClosedPositionsToday = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradecore_closed_positions_today",
			Help: "Positions closed since UTC midnight per bot",
		},
		[]string{"bot_id"},
	)
)

// MustRegister registers every collector above against reg. Called
// once at process bootstrap (cmd/tradecore); a second call against the
// same registry would panic on duplicate registration, matching
// prometheus/client_golang's own contract.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(CycleDuration, CyclesTotal, OracleCost, OracleLatency, RiskRejections, OpenPositions, Capital, ClosedPositionsToday)
}
