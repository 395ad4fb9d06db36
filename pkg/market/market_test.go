package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/pkg/errs"
	"tradecore/pkg/exchange"
	"tradecore/pkg/exchange/sim"
	"tradecore/pkg/money"
)

func TestSnapshotMultiTimeframe(t *testing.T) {
	provider := sim.New(sim.DefaultConfig())
	provider.SetPrice("BTC/USDT", money.Must("100000"))
	provider.SeedCandles("BTC/USDT", "1h", []exchange.Candle{
		{Ts: 1, Open: money.Must("99000"), High: money.Must("99500"), Low: money.Must("98900"), Close: money.Must("99400"), Volume: money.Must("10")},
		{Ts: 2, Open: money.Must("99400"), High: money.Must("100100"), Low: money.Must("99300"), Close: money.Must("100000"), Volume: money.Must("12")},
	})
	provider.SeedCandles("BTC/USDT", "15m", []exchange.Candle{
		{Ts: 1, Open: money.Must("99900"), High: money.Must("100050"), Low: money.Must("99850"), Close: money.Must("100000"), Volume: money.Must("3")},
	})

	feed := NewFeed(provider)
	snap, err := feed.SnapshotMultiTimeframe(context.Background(), "btc-usdt", "15m", "1h", 100)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.True(t, snap.Last.Equal(money.Must("100000")))
	assert.Len(t, snap.LongCandles, 2)
	assert.Len(t, snap.ShortCandles, 1)
}

func TestFetchCandlesClassifiesMissingAsTransient(t *testing.T) {
	provider := sim.New(sim.DefaultConfig())
	feed := NewFeed(provider)
	_, err := feed.FetchCandles(context.Background(), "ETH/USDT", "1h", 10)
	require.Error(t, err)
	assert.Equal(t, errs.KindTransient, errs.KindOf(err))
}
