// Package exchange defines the minimal adapter contract the trading
// core depends on, exchange-agnostic by design. Concrete venues (a
// paper simulator, Hyperliquid) live in subpackages and are selected
// at wiring time through Config, never hard-coded into the engine.
package exchange

import (
	"context"
	"fmt"
	"sync"

	"tradecore/pkg/money"
)

// Ticker is the last-quote snapshot for a symbol.
type Ticker struct {
	Symbol string
	Last   money.Decimal
	Bid    money.Decimal
	Ask    money.Decimal
	Volume money.Decimal
	Ts     int64 // unix millis
}

// Candle is one OHLCV bar. Candles returned by a Provider are ordered
// oldest to newest; the last candle in a series may be partial.
type Candle struct {
	Ts     int64 // unix millis, bar open time
	Open   money.Decimal
	High   money.Decimal
	Low    money.Decimal
	Close  money.Decimal
	Volume money.Decimal
}

// OrderSide mirrors the account view used by the ledger: buy opens or
// adds to a long / reduces a short; sell is the mirror.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is always a market order in this contract; limit/trigger
// order types are a venue-internal concern, not part of the core's
// surface.
type OrderType string

const OrderTypeMarket OrderType = "market"

// Fill is the normalized result of an order or a position close, per
// §6's `{avg_price, filled_qty, fees}` contract. Fees here is the
// venue's own reported fee, kept for interface completeness; neither
// shipped Provider populates it with a trustworthy value (paper has
// no real venue fee to report, and Hyperliquid's order-ack response
// doesn't carry one), so it is advisory only. pkg/trade is always the
// authoritative fee computer, via fill_price × quantity × fee_rate
// per §4.7 — callers must not derive cash math from this field.
type Fill struct {
	AvgPrice  money.Decimal
	FilledQty money.Decimal
	Fees      money.Decimal
}

// Provider is the contract every venue adapter implements. Methods
// that place or close orders are unavailable in paper mode callers'
// sense only by convention — the sim provider implements them too, so
// the engine never branches on paper vs. live; it only selects which
// Provider instance to hold.
type Provider interface {
	FetchTicker(ctx context.Context, symbol string) (*Ticker, error)
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
	FetchFundingRate(ctx context.Context, symbol string) (money.Decimal, error)
	FetchOpenInterest(ctx context.Context, symbol string) (money.Decimal, error)
	CreateOrder(ctx context.Context, symbol string, side OrderSide, orderType OrderType, qty money.Decimal) (*Fill, error)
	ClosePosition(ctx context.Context, symbol string, side OrderSide, qty money.Decimal) (*Fill, error)
}

// NormalizeSymbol canonicalizes a user-facing pair name ("BTC/USDT",
// "btc-usdt", "BTCUSDT") to the internal alias the core uses
// everywhere else (prompt rendering, position keys, risk checks).
// Venue-specific perp naming is translated at the Provider boundary,
// not here.
func NormalizeSymbol(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '/' || c == '-' || c == '_' || c == ' ':
			continue
		case c >= 'a' && c <= 'z':
			out = append(out, c-('a'-'A'))
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// ProviderFactory constructs a Provider from a named, already-parsed
// config blob. Concrete packages register themselves via
// RegisterProvider so wiring code never imports venue packages by
// name — it looks them up by the configured string.
type ProviderFactory func(name string, cfg map[string]any) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]ProviderFactory{}
)

// RegisterProvider registers a venue factory under name. Called from
// each concrete provider package's init().
func RegisterProvider(name string, factory ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New constructs a Provider by name using whatever factory registered
// itself for it.
func New(name string, cfg map[string]any) (Provider, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("exchange: no provider registered for %q", name)
	}
	return factory(name, cfg)
}
