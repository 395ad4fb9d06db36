package prompt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/pkg/money"
)

func TestRenderIsDeterministic(t *testing.T) {
	symbols := []SymbolView{
		{Symbol: "BTCUSDT", LastPrice: money.Must("100000"), FundingRate: money.Must("0.0001"), OpenInterest: money.Must("500"),
			IndicatorsShort: map[string][]float64{"rsi14": {math.NaN(), 55.1, 60.2}}},
	}
	portfolio := PortfolioView{Cash: money.Must("9000"), Invested: money.Must("1000"), Equity: money.Must("10000"), ReturnPct: money.Must("0")}
	risk := RiskPolicyView{MaxPositionPct: 0.1, MaxExposurePct: 0.5, MaxDrawdownPct: 0.2, MaxTradesPerDay: 10, StopLossPct: 0.02, TakeProfitPct: 0.04, MinRRRatio: 1.5}

	a := Render("2026-01-01T00:00:00Z", symbols, portfolio, risk)
	b := Render("2026-01-01T00:00:00Z", symbols, portfolio, risk)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "N/A")
	assert.Contains(t, a, "BTCUSDT")
}

func TestParseValidJSON(t *testing.T) {
	reply := `{"BTCUSDT": {"signal":"entry","side":"long","confidence":1.5,"size_pct":0.05,"entry_price":100000,"stop_loss":98000,"profit_target":104000,"invalidation_condition":"x","justification":"y"}}`
	decisions, err := Parse(reply, map[string]money.Decimal{"BTCUSDT": money.Must("100000")}, Defaults{StopLossPct: money.Must("0.02"), TakeProfitPct: money.Must("0.04")})
	require.NoError(t, err)
	d := decisions["BTCUSDT"]
	assert.Equal(t, "entry", d.Signal)
	assert.Equal(t, "long", d.Side)
	assert.True(t, d.Confidence.Equal(money.Must("1"))) // clamped
}

func TestParseDerivesMissingStopLoss(t *testing.T) {
	reply := `{"ETHUSDT": {"signal":"entry","side":"long","confidence":0.6,"size_pct":0.1,"entry_price":2000}}`
	decisions, err := Parse(reply, map[string]money.Decimal{"ETHUSDT": money.Must("2000")}, Defaults{StopLossPct: money.Must("0.02"), TakeProfitPct: money.Must("0.04")})
	require.NoError(t, err)
	d := decisions["ETHUSDT"]
	assert.True(t, d.StopLoss.Equal(money.Must("1960")))
	assert.True(t, d.ProfitTarget.Equal(money.Must("2080")))
}

func TestParseFallsBackOnMalformedJSON(t *testing.T) {
	reply := "I think BTCUSDT is an entry here, go long, looks bullish."
	decisions, err := Parse(reply, map[string]money.Decimal{"BTCUSDT": money.Must("100000")}, Defaults{})
	require.NoError(t, err)
	d := decisions["BTCUSDT"]
	assert.True(t, d.TextFallback)
	assert.Equal(t, "entry", d.Signal)
	assert.Equal(t, "long", d.Side)
}
