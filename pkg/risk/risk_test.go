package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/pkg/money"
)

func basePolicy() BotPolicy {
	return BotPolicy{
		MaxPositionPct:  money.Must("0.10"),
		MaxExposurePct:  money.Must("0.50"),
		MaxDrawdownPct:  money.Must("0.20"),
		MaxTradesPerDay: 3,
		MinRRRatio:      money.Must("1.5"),
	}
}

func basePortfolio() Portfolio {
	return Portfolio{
		Capital:          money.Must("10000"),
		InitialCapital:   money.Must("10000"),
		InvestedNotional: money.Zero,
		Equity:           money.Must("10000"),
		TradesToday:      0,
	}
}

func validLongProposal() Proposal {
	return Proposal{
		Side:         "long",
		SizePct:      money.Must("0.05"),
		EntryPrice:   money.Must("100000"),
		StopLoss:     money.Must("98000"),
		ProfitTarget: money.Must("104000"),
	}
}

func TestValidateAccepts(t *testing.T) {
	v := Validate(basePolicy(), basePortfolio(), validLongProposal())
	assert.True(t, v.Ok)
}

func TestValidateRejectsSizeOutOfBand(t *testing.T) {
	p := validLongProposal()
	p.SizePct = money.Must("0.11")
	v := Validate(basePolicy(), basePortfolio(), p)
	assert.False(t, v.Ok)
	assert.Equal(t, "size_out_of_band", v.Reason)
}

func TestValidateAcceptsSizeAtExactBoundary(t *testing.T) {
	// B1: size_pct == max_position_pct is accepted.
	p := validLongProposal()
	p.SizePct = money.Must("0.10")
	v := Validate(basePolicy(), basePortfolio(), p)
	assert.True(t, v.Ok)
}

func TestValidateRejectsRRBelowFloor(t *testing.T) {
	p := validLongProposal()
	p.ProfitTarget = money.Must("101000") // rr = 1000/2000 = 0.5 < 1.5
	v := Validate(basePolicy(), basePortfolio(), p)
	assert.False(t, v.Ok)
	assert.Equal(t, "rr_below_floor", v.Reason)
}

func TestValidateRejectsSLEqualsEntry(t *testing.T) {
	// B2: SL equal to entry is rejected.
	p := validLongProposal()
	p.StopLoss = p.EntryPrice
	v := Validate(basePolicy(), basePortfolio(), p)
	assert.False(t, v.Ok)
}

func TestValidateRejectsFrequency(t *testing.T) {
	// B4: trades today == max is rejected.
	portfolio := basePortfolio()
	portfolio.TradesToday = 3
	v := Validate(basePolicy(), portfolio, validLongProposal())
	assert.False(t, v.Ok)
	assert.Equal(t, "frequency", v.Reason)
}

func TestValidateRejectsDrawdown(t *testing.T) {
	// B5: equity drawdown equal to -max_drawdown_pct is rejected.
	portfolio := basePortfolio()
	portfolio.Equity = money.Must("8000") // (8000-10000)/10000 = -0.20
	v := Validate(basePolicy(), portfolio, validLongProposal())
	assert.False(t, v.Ok)
	assert.Equal(t, "drawdown_exceeded", v.Reason)
}

func TestValidateRejectsExposure(t *testing.T) {
	portfolio := basePortfolio()
	portfolio.InvestedNotional = money.Must("4900") // plus 5% of 10000=500 -> 5400 > 5000 max
	v := Validate(basePolicy(), portfolio, validLongProposal())
	assert.False(t, v.Ok)
	assert.Equal(t, "exposure_exceeded", v.Reason)
}

func TestSizeForClampsKicker(t *testing.T) {
	qty, err := SizeFor(money.Must("10000"), money.Must("0.05"), money.Must("0.8"), money.Must("100000"))
	require.NoError(t, err)
	// notional = 10000*0.05*clamp(0.5+0.56,0.5,1.2) = 500*1.06 = 530; qty = 530/100000 = 0.0053
	assert.True(t, qty.Equal(money.Must("0.0053")))
}

func TestSizeForRejectsZeroEntryPrice(t *testing.T) {
	_, err := SizeFor(money.Must("10000"), money.Must("0.05"), money.Must("0.8"), money.Zero)
	assert.Error(t, err)
}
