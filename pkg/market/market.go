// Package market implements C1: fetching and normalizing market data
// from an exchange.Provider. It never retries — per spec §4.1, retry
// policy belongs to the engine that calls it. Numeric fields are plain
// decimals with no absent state: whatever a provider returns is passed
// through, and the shipped providers return zero for a funding rate or
// open interest the venue did not report.
package market

import (
	"context"
	"errors"
	"fmt"

	"tradecore/pkg/errs"
	"tradecore/pkg/exchange"
	"tradecore/pkg/money"
)

// Feed fetches market data for one venue Provider.
type Feed struct {
	provider exchange.Provider
}

// NewFeed wraps an exchange.Provider.
func NewFeed(provider exchange.Provider) *Feed {
	return &Feed{provider: provider}
}

// FetchCandles fetches the last n candles for symbol/timeframe,
// classifying provider failures per §4.1.
func (f *Feed) FetchCandles(ctx context.Context, symbol, timeframe string, n int) ([]exchange.Candle, error) {
	sym := exchange.NormalizeSymbol(symbol)
	candles, err := f.provider.FetchOHLCV(ctx, sym, timeframe, n)
	if err != nil {
		return nil, classify(err, "market.FetchCandles", sym)
	}
	return candles, nil
}

// Ticker fetches the latest ticker for symbol.
func (f *Feed) FetchTicker(ctx context.Context, symbol string) (*exchange.Ticker, error) {
	sym := exchange.NormalizeSymbol(symbol)
	t, err := f.provider.FetchTicker(ctx, sym)
	if err != nil {
		return nil, classify(err, "market.FetchTicker", sym)
	}
	return t, nil
}

// FetchFunding fetches the current funding rate for symbol.
func (f *Feed) FetchFunding(ctx context.Context, symbol string) (money.Decimal, error) {
	sym := exchange.NormalizeSymbol(symbol)
	rate, err := f.provider.FetchFundingRate(ctx, sym)
	if err != nil {
		return money.Zero, classify(err, "market.FetchFunding", sym)
	}
	return rate, nil
}

// FetchOpenInterest fetches current open interest for symbol.
func (f *Feed) FetchOpenInterest(ctx context.Context, symbol string) (money.Decimal, error) {
	sym := exchange.NormalizeSymbol(symbol)
	oi, err := f.provider.FetchOpenInterest(ctx, sym)
	if err != nil {
		return money.Zero, classify(err, "market.FetchOpenInterest", sym)
	}
	return oi, nil
}

// Snapshot is the per-symbol market state handed to the indicator
// layer and then to the prompt builder.
type Snapshot struct {
	Symbol         string
	Last           money.Decimal
	ShortCandles   []exchange.Candle
	LongCandles    []exchange.Candle
	FundingRate    money.Decimal
	OpenInterest   money.Decimal
}

// SnapshotMultiTimeframe builds a Snapshot for symbol covering both
// configured timeframes in one call, per §4.1's
// snapshot_multi_timeframe operation.
func (f *Feed) SnapshotMultiTimeframe(ctx context.Context, symbol, tfShort, tfLong string, n int) (*Snapshot, error) {
	sym := exchange.NormalizeSymbol(symbol)

	ticker, err := f.FetchTicker(ctx, sym)
	if err != nil {
		return nil, err
	}
	shortCandles, err := f.FetchCandles(ctx, sym, tfShort, n)
	if err != nil {
		return nil, err
	}
	longCandles, err := f.FetchCandles(ctx, sym, tfLong, n)
	if err != nil {
		return nil, err
	}
	funding, err := f.FetchFunding(ctx, sym)
	if err != nil {
		return nil, err
	}
	oi, err := f.FetchOpenInterest(ctx, sym)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Symbol:       sym,
		Last:         ticker.Last,
		ShortCandles: shortCandles,
		LongCandles:  longCandles,
		FundingRate:  funding,
		OpenInterest: oi,
	}, nil
}

// classify preserves an already-classified error's Kind (the provider
// may know a symbol is Permanent, not Transient) and otherwise wraps
// the raw error as Transient, since an unclassified provider failure
// is assumed retryable per §4.1's default.
func classify(err error, op, symbol string) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return e
	}
	return errs.Wrap(errs.KindTransient, op, fmt.Sprintf("symbol=%s", symbol), err)
}
