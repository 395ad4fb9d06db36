// Package indicators computes technical indicators over candle series.
// Every function is a pure, deterministic transform: identical input
// always produces an identical output series. Series are the same
// length as their input and carry leading math.NaN values during
// warmup. Callers must never substitute a default numeric value for a
// NaN — the historical "RSI=50 when undefined" bug this package exists
// to prevent is the reason LatestValid returns (0, false) rather than
// a synthetic number when nothing has warmed up yet.
package indicators

import "math"

// Kline is the OHLCV input shared by range-based indicators.
type Kline struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// LatestValid walks a series backward and returns the last non-NaN
// value. It returns (0, false) only when the entire series is NaN or
// empty — callers must branch on the bool, never assume a zero value
// means "no signal".
func LatestValid(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i], true
		}
	}
	return 0, false
}

// SMA computes the simple moving average over period.
func SMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) == 0 {
		return []float64{}
	}
	out := nanSeries(len(values))
	if len(values) < period {
		return out
	}
	sum := 0.0
	valid := 0
	for i := 0; i < len(values); i++ {
		if math.IsNaN(values[i]) {
			// A NaN input anywhere in the trailing window poisons the
			// window; restart accumulation so warmup NaNs never leak a
			// partial average downstream.
			sum = 0
			valid = 0
			continue
		}
		sum += values[i]
		valid++
		if valid > period {
			sum -= values[i-period]
		}
		if valid >= period {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes the exponential moving average over period, seeding from
// the first fully valid SMA window and carrying the last valid value
// forward across any isolated NaN gaps in the input.
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) == 0 {
		return []float64{}
	}
	out := nanSeries(len(values))
	if len(values) < period {
		return out
	}
	multiplier := 2.0 / float64(period+1)

	start := -1
	var seed float64
	for i := period - 1; i < len(values); i++ {
		windowValid := true
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			if math.IsNaN(values[j]) {
				windowValid = false
				break
			}
			sum += values[j]
		}
		if windowValid {
			start = i
			seed = sum / float64(period)
			break
		}
	}
	if start == -1 {
		return out
	}
	out[start] = seed
	prev := seed
	for i := start + 1; i < len(values); i++ {
		if math.IsNaN(values[i]) {
			out[i] = prev
			continue
		}
		prev = (values[i]-prev)*multiplier + prev
		out[i] = prev
	}
	return out
}

// RSI computes the Relative Strength Index using Wilder smoothing.
func RSI(values []float64, period int) []float64 {
	if period <= 0 || len(values) == 0 {
		return []float64{}
	}
	out := nanSeries(len(values))
	if len(values) <= period {
		return out
	}
	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gainSum += change
		} else {
			lossSum -= change
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	out[period] = rsiFromAverages(avgGain, avgLoss)

	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gain := math.Max(change, 0)
		loss := math.Max(-change, 0)
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}
	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	switch {
	case avgGain == 0 && avgLoss == 0:
		return 50.0 // flat price series: genuinely neutral, not a missing-data placeholder.
	case avgLoss == 0:
		return 100.0
	case avgGain == 0:
		return 0.0
	default:
		rs := avgGain / avgLoss
		return 100.0 - (100.0 / (1.0 + rs))
	}
}

// MACDResult bundles the three MACD series.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes MACD(fast, slow, signalPeriod) over values.
func MACD(values []float64, fast, slow, signalPeriod int) MACDResult {
	if len(values) == 0 {
		return MACDResult{MACD: []float64{}, Signal: []float64{}, Histogram: []float64{}}
	}
	emaFast := EMA(values, fast)
	emaSlow := EMA(values, slow)
	macd := nanSeries(len(values))
	for i := range values {
		if math.IsNaN(emaFast[i]) || math.IsNaN(emaSlow[i]) {
			continue
		}
		macd[i] = emaFast[i] - emaSlow[i]
	}
	signal := EMA(macd, signalPeriod)
	hist := nanSeries(len(values))
	for i := range values {
		if math.IsNaN(macd[i]) || math.IsNaN(signal[i]) {
			continue
		}
		hist[i] = macd[i] - signal[i]
	}
	return MACDResult{MACD: macd, Signal: signal, Histogram: hist}
}

// ATR computes the Average True Range over period using Wilder/EMA
// smoothing of the true range series.
func ATR(klines []Kline, period int) []float64 {
	if period <= 0 || len(klines) == 0 {
		return []float64{}
	}
	tr := make([]float64, len(klines))
	for i := range klines {
		if i == 0 {
			tr[i] = klines[i].High - klines[i].Low
			continue
		}
		highLow := klines[i].High - klines[i].Low
		highClose := math.Abs(klines[i].High - klines[i-1].Close)
		lowClose := math.Abs(klines[i].Low - klines[i-1].Close)
		tr[i] = math.Max(highLow, math.Max(highClose, lowClose))
	}
	return EMA(tr, period)
}

// BollingerResult bundles the three Bollinger Band series.
type BollingerResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger computes Bollinger Bands at `period` with `numStdDev`
// standard deviations.
func Bollinger(values []float64, period int, numStdDev float64) BollingerResult {
	if period <= 0 || len(values) == 0 {
		return BollingerResult{Upper: []float64{}, Middle: []float64{}, Lower: []float64{}}
	}
	mid := SMA(values, period)
	upper := nanSeries(len(values))
	lower := nanSeries(len(values))
	for i := range values {
		if i+1 < period || math.IsNaN(mid[i]) {
			continue
		}
		window := values[i-period+1 : i+1]
		sd := stdDev(window, mid[i])
		if math.IsNaN(sd) {
			continue
		}
		upper[i] = mid[i] + numStdDev*sd
		lower[i] = mid[i] - numStdDev*sd
	}
	return BollingerResult{Upper: upper, Middle: mid, Lower: lower}
}

func stdDev(window []float64, mean float64) float64 {
	sum := 0.0
	for _, v := range window {
		if math.IsNaN(v) {
			return math.NaN()
		}
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(window)))
}

// StochasticResult bundles %K and %D.
type StochasticResult struct {
	K []float64
	D []float64
}

// Stochastic computes the stochastic oscillator with lookback kPeriod
// and a dPeriod-length SMA smoothing of %K.
func Stochastic(klines []Kline, kPeriod, dPeriod int) StochasticResult {
	if kPeriod <= 0 || len(klines) == 0 {
		return StochasticResult{K: []float64{}, D: []float64{}}
	}
	k := nanSeries(len(klines))
	for i := range klines {
		if i+1 < kPeriod {
			continue
		}
		window := klines[i-kPeriod+1 : i+1]
		hi, lo := window[0].High, window[0].Low
		for _, kl := range window {
			if kl.High > hi {
				hi = kl.High
			}
			if kl.Low < lo {
				lo = kl.Low
			}
		}
		if hi == lo {
			k[i] = 50.0
			continue
		}
		k[i] = 100.0 * (klines[i].Close - lo) / (hi - lo)
	}
	d := SMA(k, dPeriod)
	return StochasticResult{K: k, D: d}
}

// OBV computes On-Balance Volume, a running total gated on close-price
// direction. The series only warms up once a prior close exists, so
// index 0 is always NaN.
func OBV(klines []Kline) []float64 {
	if len(klines) == 0 {
		return []float64{}
	}
	out := nanSeries(len(klines))
	running := 0.0
	out[0] = math.NaN()
	for i := 1; i < len(klines); i++ {
		switch {
		case klines[i].Close > klines[i-1].Close:
			running += klines[i].Volume
		case klines[i].Close < klines[i-1].Close:
			running -= klines[i].Volume
		}
		out[i] = running
	}
	return out
}

// VWAP computes the session volume-weighted average price, resetting
// its cumulative sums at the start of the slice (one "session" per
// call — callers pass the candles for the session they mean).
func VWAP(klines []Kline) []float64 {
	if len(klines) == 0 {
		return []float64{}
	}
	out := nanSeries(len(klines))
	var cumPV, cumV float64
	for i, kl := range klines {
		typical := (kl.High + kl.Low + kl.Close) / 3.0
		cumPV += typical * kl.Volume
		cumV += kl.Volume
		if cumV <= 0 {
			continue
		}
		out[i] = cumPV / cumV
	}
	return out
}

// ADX computes the Average Directional Index over period.
func ADX(klines []Kline, period int) []float64 {
	if period <= 0 || len(klines) < 2 {
		return nanSeries(len(klines))
	}
	n := len(klines)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		upMove := klines[i].High - klines[i-1].High
		downMove := klines[i-1].Low - klines[i].Low
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
		highLow := klines[i].High - klines[i].Low
		highClose := math.Abs(klines[i].High - klines[i-1].Close)
		lowClose := math.Abs(klines[i].Low - klines[i-1].Close)
		tr[i] = math.Max(highLow, math.Max(highClose, lowClose))
	}
	smoothedTR := wilderSmooth(tr, period)
	smoothedPlusDM := wilderSmooth(plusDM, period)
	smoothedMinusDM := wilderSmooth(minusDM, period)

	dx := nanSeries(n)
	for i := range klines {
		if math.IsNaN(smoothedTR[i]) || smoothedTR[i] == 0 {
			continue
		}
		plusDI := 100.0 * smoothedPlusDM[i] / smoothedTR[i]
		minusDI := 100.0 * smoothedMinusDM[i] / smoothedTR[i]
		denom := plusDI + minusDI
		if denom == 0 {
			dx[i] = 0
			continue
		}
		dx[i] = 100.0 * math.Abs(plusDI-minusDI) / denom
	}
	return EMA(dx, period)
}

// wilderSmooth applies Wilder's running-sum smoothing, the classic
// recurrence used for +DM/-DM/TR ahead of ADX.
func wilderSmooth(values []float64, period int) []float64 {
	n := len(values)
	out := nanSeries(n)
	if n <= period {
		return out
	}
	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += values[i]
	}
	out[period] = sum
	for i := period + 1; i < n; i++ {
		sum = sum - (sum / float64(period)) + values[i]
		out[i] = sum
	}
	return out
}
