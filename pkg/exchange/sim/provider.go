// Package sim is a paper-trading Provider: it never talks to a real
// venue. Fills are synthesized from the last price set on it (plus
// optional deterministic slippage), so tests and paper bots get fully
// reproducible runs. It implements the exact same exchange.Provider
// contract as a live venue so the engine never special-cases paper
// mode.
package sim

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tradecore/pkg/exchange"
	"tradecore/pkg/money"
)

// Config tunes the simulator per spec §6's PAPER_SLIPPAGE_BPS knob.
// PAPER_FEE_RATE is not configured here: pkg/trade computes fees
// uniformly from the bot's Account.FeeRate per §4.7, so a second,
// provider-local fee rate would only duplicate that computation
// against the same config value.
type Config struct {
	SlippageBps int64 // default 0; applied against mid price, buy up / sell down
}

// DefaultConfig mirrors the documented environment defaults.
func DefaultConfig() Config {
	return Config{SlippageBps: 0}
}

// Provider is the in-memory paper venue.
type Provider struct {
	mu sync.Mutex

	cfg Config

	prices      map[string]money.Decimal
	candles     map[string]map[string][]exchange.Candle // symbol -> timeframe -> candles
	fundingRate map[string]money.Decimal
	openInterest map[string]money.Decimal
}

// New constructs a simulator with the given config.
func New(cfg Config) *Provider {
	return &Provider{
		cfg:          cfg,
		prices:       make(map[string]money.Decimal),
		candles:      make(map[string]map[string][]exchange.Candle),
		fundingRate:  make(map[string]money.Decimal),
		openInterest: make(map[string]money.Decimal),
	}
}

func init() {
	exchange.RegisterProvider("sim", func(name string, cfg map[string]any) (exchange.Provider, error) {
		return New(DefaultConfig()), nil
	})
}

// SetPrice sets the reference price used for tickers and fills. Tests
// and the paper-mode data feeder call this once per cycle tick.
func (p *Provider) SetPrice(symbol string, price money.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[exchange.NormalizeSymbol(symbol)] = price
}

// SeedCandles installs a deterministic OHLCV history for symbol/timeframe,
// replacing whatever was there before.
func (p *Provider) SeedCandles(symbol, timeframe string, candles []exchange.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sym := exchange.NormalizeSymbol(symbol)
	if p.candles[sym] == nil {
		p.candles[sym] = make(map[string][]exchange.Candle)
	}
	cp := make([]exchange.Candle, len(candles))
	copy(cp, candles)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Ts < cp[j].Ts })
	p.candles[sym][timeframe] = cp
}

// SetFundingRate and SetOpenInterest let tests drive non-price signals.
func (p *Provider) SetFundingRate(symbol string, rate money.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fundingRate[exchange.NormalizeSymbol(symbol)] = rate
}

func (p *Provider) SetOpenInterest(symbol string, oi money.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openInterest[exchange.NormalizeSymbol(symbol)] = oi
}

func (p *Provider) FetchTicker(ctx context.Context, symbol string) (*exchange.Ticker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sym := exchange.NormalizeSymbol(symbol)
	price, ok := p.prices[sym]
	if !ok {
		return nil, fmt.Errorf("sim: no price set for %s", sym)
	}
	return &exchange.Ticker{
		Symbol: sym,
		Last:   price,
		Bid:    price,
		Ask:    price,
		Volume: money.Zero,
	}, nil
}

func (p *Provider) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]exchange.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sym := exchange.NormalizeSymbol(symbol)
	series := p.candles[sym][timeframe]
	if len(series) == 0 {
		return nil, fmt.Errorf("sim: no candles seeded for %s/%s", sym, timeframe)
	}
	if limit > 0 && limit < len(series) {
		series = series[len(series)-limit:]
	}
	out := make([]exchange.Candle, len(series))
	copy(out, series)
	return out, nil
}

func (p *Provider) FetchFundingRate(ctx context.Context, symbol string) (money.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sym := exchange.NormalizeSymbol(symbol)
	if rate, ok := p.fundingRate[sym]; ok {
		return rate, nil
	}
	return money.Zero, nil
}

func (p *Provider) FetchOpenInterest(ctx context.Context, symbol string) (money.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sym := exchange.NormalizeSymbol(symbol)
	if oi, ok := p.openInterest[sym]; ok {
		return oi, nil
	}
	return money.Zero, nil
}

func (p *Provider) CreateOrder(ctx context.Context, symbol string, side exchange.OrderSide, orderType exchange.OrderType, qty money.Decimal) (*exchange.Fill, error) {
	return p.fill(symbol, side, qty)
}

func (p *Provider) ClosePosition(ctx context.Context, symbol string, side exchange.OrderSide, qty money.Decimal) (*exchange.Fill, error) {
	return p.fill(symbol, side, qty)
}

func (p *Provider) fill(symbol string, side exchange.OrderSide, qty money.Decimal) (*exchange.Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sym := exchange.NormalizeSymbol(symbol)
	mark, ok := p.prices[sym]
	if !ok {
		return nil, fmt.Errorf("sim: no price set for %s", sym)
	}
	if qty.Sign() <= 0 {
		return nil, fmt.Errorf("sim: qty must be positive, got %s", qty.String())
	}
	price := applySlippage(mark, side, p.cfg.SlippageBps)
	// Fees is left zero: the paper venue has no real fee to report,
	// and pkg/trade is the authoritative fee computer (see exchange.Fill).
	return &exchange.Fill{AvgPrice: price, FilledQty: qty, Fees: money.Zero}, nil
}

// applySlippage nudges price against the trader: buys fill higher,
// sells fill lower, scaled in basis points of the mark price. Zero
// bps (the documented default) makes fills exactly equal to mark,
// keeping paper-mode tests deterministic.
func applySlippage(mark money.Decimal, side exchange.OrderSide, bps int64) money.Decimal {
	if bps == 0 {
		return mark
	}
	factor := money.Must("1").Add(money.New(bps, -4))
	if side == exchange.OrderSideSell {
		factor = money.Must("1").Sub(money.New(bps, -4))
	}
	return mark.Mul(factor)
}
