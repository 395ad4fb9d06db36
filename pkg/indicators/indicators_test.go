package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMAWarmup(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	out := SMA(values, 3)
	require.Len(t, out, 5)
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 2.0, out[2], 1e-9)
	assert.InDelta(t, 3.0, out[3], 1e-9)
	assert.InDelta(t, 4.0, out[4], 1e-9)
}

func TestEMASeedsFromSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7}
	out := EMA(values, 3)
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.False(t, math.IsNaN(out[2]))
}

func TestRSIFlatSeriesIsNeutral(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 100
	}
	out := RSI(values, 14)
	v, ok := LatestValid(out)
	require.True(t, ok)
	assert.InDelta(t, 50.0, v, 1e-9)
}

func TestLatestValidAllNaN(t *testing.T) {
	out := SMA([]float64{1, 2}, 5)
	_, ok := LatestValid(out)
	assert.False(t, ok)
}

func TestMACDHistogramConsistency(t *testing.T) {
	values := make([]float64, 50)
	for i := range values {
		values[i] = float64(i) + 100
	}
	res := MACD(values, 12, 26, 9)
	last := len(values) - 1
	require.False(t, math.IsNaN(res.MACD[last]))
	require.False(t, math.IsNaN(res.Signal[last]))
	assert.InDelta(t, res.MACD[last]-res.Signal[last], res.Histogram[last], 1e-9)
}

func TestATRNonNegative(t *testing.T) {
	klines := []Kline{
		{High: 10, Low: 8, Close: 9},
		{High: 11, Low: 9, Close: 10},
		{High: 12, Low: 10, Close: 11},
		{High: 13, Low: 11, Close: 12},
	}
	out := ATR(klines, 3)
	v, ok := LatestValid(out)
	require.True(t, ok)
	assert.GreaterOrEqual(t, v, 0.0)
}

func TestOBVFirstIsNaN(t *testing.T) {
	klines := []Kline{
		{Close: 10, Volume: 5},
		{Close: 11, Volume: 3},
		{Close: 9, Volume: 2},
	}
	out := OBV(klines)
	assert.True(t, math.IsNaN(out[0]))
	assert.InDelta(t, 3.0, out[1], 1e-9)
	assert.InDelta(t, 1.0, out[2], 1e-9)
}

func TestBollingerOrdering(t *testing.T) {
	values := []float64{10, 11, 9, 12, 8, 13, 7, 14, 6, 15}
	res := Bollinger(values, 5, 2.0)
	v, ok := LatestValid(res.Upper)
	require.True(t, ok)
	mid, ok := LatestValid(res.Middle)
	require.True(t, ok)
	low, ok := LatestValid(res.Lower)
	require.True(t, ok)
	assert.Greater(t, v, mid)
	assert.Less(t, low, mid)
}
