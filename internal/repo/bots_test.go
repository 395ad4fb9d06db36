package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/model"
	"tradecore/pkg/money"
)

func sampleBotRecord() *model.BotRecord {
	return &model.BotRecord{
		ID:                       "bot-1",
		Active:                   true,
		Symbols:                  []string{"BTC", "ETH"},
		TimeframeShort:           "15m",
		TimeframeLong:            "4h",
		CandleLookback:           100,
		CyclePeriodSeconds:       300,
		EntryConfidenceThreshold: 0.7,
		Model:                    "gpt-4",
		MaxTokens:                1024,
		Temperature:              0.2,
		StopLossPct:              0.02,
		TakeProfitPct:            0.05,
		InitialCapital:           10000,
		Capital:                  9800.5,
		PaperTrading:             true,
		FeeRate:                  0.001,
		MaxPositionPct:           0.1,
		MaxExposurePct:           0.5,
		MaxDrawdownPct:           0.2,
		MaxTradesPerDay:          5,
		MinRRRatio:               1.5,
	}
}

func TestBotSource_Load_mapsRecordToView(t *testing.T) {
	fake := newFakeBotsModel(sampleBotRecord())
	src := NewBotSource(Dependencies{BotsModel: fake})

	view, err := src.Load(context.Background(), "bot-1")
	require.NoError(t, err)

	assert.Equal(t, "bot-1", view.ID)
	assert.True(t, view.Active)
	assert.Equal(t, []string{"BTC", "ETH"}, view.Symbols)
	assert.True(t, view.Policy.MaxPositionPct.Equal(money.FromFloat(0.1)))
	assert.Equal(t, 5, view.Policy.MaxTradesPerDay)
	assert.True(t, view.Policy.MinRRRatio.Equal(money.FromFloat(1.5)))
	assert.Equal(t, 300, int(view.CyclePeriod.Seconds()))
	assert.True(t, view.InitialCapital.Equal(money.FromFloat(10000)))
}

func TestBotSource_Load_unknownBotIsPermanent(t *testing.T) {
	fake := newFakeBotsModel()
	src := NewBotSource(Dependencies{BotsModel: fake})

	_, err := src.Load(context.Background(), "missing")
	require.Error(t, err)
}

func TestCapitalPersister_PersistCapital_roundsToFloat(t *testing.T) {
	fake := newFakeBotsModel(sampleBotRecord())
	p := NewCapitalPersister(Dependencies{BotsModel: fake})

	err := p.PersistCapital(context.Background(), "bot-1", money.FromFloat(9123.45))
	require.NoError(t, err)
	assert.Equal(t, "bot-1", fake.lastCapitalID)
	assert.InDelta(t, 9123.45, fake.lastCapital, 0.0001)
}

func TestLoadAccount_readsCapitalAndFeeRate(t *testing.T) {
	fake := newFakeBotsModel(sampleBotRecord())
	capital, feeRate, paperTrading, err := LoadAccount(context.Background(), Dependencies{BotsModel: fake}, "bot-1")
	require.NoError(t, err)
	assert.True(t, capital.Equal(money.FromFloat(9800.5)))
	assert.True(t, feeRate.Equal(money.FromFloat(0.001)))
	assert.True(t, paperTrading)
}
