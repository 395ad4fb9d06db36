package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"

	"tradecore/pkg/errs"
	"tradecore/pkg/exchange"
	"tradecore/pkg/money"
)

// Provider adapts Client to exchange.Provider.
type Provider struct {
	client *Client
}

// Config is the process-level configuration for a live Hyperliquid
// provider, loaded from environment per spec §6 (`EXCHANGE_*_KEYS`).
type Config struct {
	PrivateKeyHex string
	Testnet       bool
}

// NewProvider constructs a live Hyperliquid exchange.Provider.
func NewProvider(cfg Config) (*Provider, error) {
	var signer *Signer
	if cfg.PrivateKeyHex != "" {
		s, err := NewSigner(cfg.PrivateKeyHex)
		if err != nil {
			return nil, fmt.Errorf("hyperliquid: %w", err)
		}
		signer = s
	}
	return &Provider{client: NewClient(signer, cfg.Testnet, nil)}, nil
}

func init() {
	exchange.RegisterProvider("hyperliquid", func(name string, cfg map[string]any) (exchange.Provider, error) {
		key, _ := cfg["private_key"].(string)
		testnet, _ := cfg["testnet"].(bool)
		return NewProvider(Config{PrivateKeyHex: key, Testnet: testnet})
	})
}

type allMidsResponse map[string]string

func (p *Provider) FetchTicker(ctx context.Context, symbol string) (*exchange.Ticker, error) {
	coin := exchange.NormalizeSymbol(symbol)
	var mids allMidsResponse
	if err := p.client.postInfo(ctx, infoRequest{Type: "allMids"}, &mids); err != nil {
		return nil, err
	}
	raw, ok := mids[coin]
	if !ok {
		return nil, errs.New(errs.KindPermanent, "hyperliquid.FetchTicker", fmt.Sprintf("unknown symbol %s", coin))
	}
	last := decimalFromWire(raw)
	return &exchange.Ticker{Symbol: coin, Last: last, Bid: last, Ask: last}, nil
}

type candleWire struct {
	T int64  `json:"t"`
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
	V string `json:"v"`
}

type candleSnapshotRequest struct {
	Type string `json:"type"`
	Req  struct {
		Coin      string `json:"coin"`
		Interval  string `json:"interval"`
	} `json:"req"`
}

func (p *Provider) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]exchange.Candle, error) {
	coin := exchange.NormalizeSymbol(symbol)
	req := candleSnapshotRequest{Type: "candleSnapshot"}
	req.Req.Coin = coin
	req.Req.Interval = timeframe

	var wire []candleWire
	if err := p.client.postInfo(ctx, req, &wire); err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(wire) {
		wire = wire[len(wire)-limit:]
	}
	out := make([]exchange.Candle, len(wire))
	for i, c := range wire {
		out[i] = exchange.Candle{
			Ts:     c.T,
			Open:   decimalFromWire(c.O),
			High:   decimalFromWire(c.H),
			Low:    decimalFromWire(c.L),
			Close:  decimalFromWire(c.C),
			Volume: decimalFromWire(c.V),
		}
	}
	return out, nil
}

type fundingWire struct {
	FundingRate string `json:"fundingRate"`
}

func (p *Provider) FetchFundingRate(ctx context.Context, symbol string) (money.Decimal, error) {
	coin := exchange.NormalizeSymbol(symbol)
	var wire []fundingWire
	if err := p.client.postInfo(ctx, infoRequest{Type: "fundingHistory", Coin: coin}, &wire); err != nil {
		return money.Zero, err
	}
	if len(wire) == 0 {
		return money.Zero, nil
	}
	return decimalFromWire(wire[len(wire)-1].FundingRate), nil
}

type assetCtxWire struct {
	OpenInterest string `json:"openInterest"`
}

func (p *Provider) FetchOpenInterest(ctx context.Context, symbol string) (money.Decimal, error) {
	coin := exchange.NormalizeSymbol(symbol)
	var wire []assetCtxWire
	if err := p.client.postInfo(ctx, infoRequest{Type: "metaAndAssetCtxs", Coin: coin}, &wire); err != nil {
		return money.Zero, err
	}
	if len(wire) == 0 {
		return money.Zero, nil
	}
	return decimalFromWire(wire[0].OpenInterest), nil
}

// Hyperliquid has no native market-order type; a market order is
// emulated as an IOC limit order priced far enough through the book
// that it always crosses and fills immediately, then cancels whatever
// it couldn't fill.
const (
	aggressiveBuyLimitPx  = "999999999"
	aggressiveSellLimitPx = "0.00000001"
)

func aggressiveLimitPrice(side exchange.OrderSide) string {
	if side == exchange.OrderSideBuy {
		return aggressiveBuyLimitPx
	}
	return aggressiveSellLimitPx
}

type orderResponseWire struct {
	Status   string `json:"status"`
	Response struct {
		Data struct {
			Statuses []struct {
				Filled *struct {
					TotalSz string `json:"totalSz"`
					AvgPx   string `json:"avgPx"`
				} `json:"filled"`
				Error string `json:"error"`
			} `json:"statuses"`
		} `json:"data"`
	} `json:"response"`
}

func (p *Provider) CreateOrder(ctx context.Context, symbol string, side exchange.OrderSide, orderType exchange.OrderType, qty money.Decimal) (*exchange.Fill, error) {
	return p.placeOrder(ctx, symbol, side, qty, false)
}

func (p *Provider) ClosePosition(ctx context.Context, symbol string, side exchange.OrderSide, qty money.Decimal) (*exchange.Fill, error) {
	return p.placeOrder(ctx, symbol, side, qty, true)
}

// placeOrder builds a signed IOC order emulating orderType.Market (the
// only OrderType the core ever issues, per exchange.OrderType), signs
// it per Hyperliquid's EIP-712/msgpack action-hashing scheme, and POSTs
// it to /exchange.
func (p *Provider) placeOrder(ctx context.Context, symbol string, side exchange.OrderSide, qty money.Decimal, reduceOnly bool) (*exchange.Fill, error) {
	if p.client.signer == nil {
		return nil, errs.New(errs.KindPermanent, "hyperliquid.placeOrder", "provider has no signer configured (read-only)")
	}
	coin := exchange.NormalizeSymbol(symbol)
	assetIdx, err := p.client.assetIndexFor(ctx, coin)
	if err != nil {
		return nil, err
	}

	action := Action{
		Type:     "order",
		Grouping: "na",
		Orders: []orderPayload{{
			Asset:      assetIdx,
			IsBuy:      side == exchange.OrderSideBuy,
			LimitPx:    aggressiveLimitPrice(side),
			Sz:         qty.String(),
			ReduceOnly: reduceOnly,
			OrderType:  orderTypePayload{Limit: &limitOrderPayload{TIF: "Ioc"}},
		}},
	}

	nonce := p.client.nextNonce()
	req, err := signAction(action, p.client.signer, nonce, p.client.isMainnet)
	if err != nil {
		return nil, errs.Wrap(errs.KindPermanent, "hyperliquid.placeOrder", "sign action", err)
	}

	raw, err := p.client.postExchange(ctx, req)
	if err != nil {
		return nil, err
	}
	return parseOrderResponse(raw)
}

func parseOrderResponse(raw []byte) (*exchange.Fill, error) {
	var wire orderResponseWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, errs.Wrap(errs.KindPermanent, "hyperliquid.parseOrderResponse", "decode", err)
	}
	if wire.Status != "ok" || len(wire.Response.Data.Statuses) == 0 {
		return nil, errs.New(errs.KindTransient, "hyperliquid.parseOrderResponse", "order not accepted: "+string(raw))
	}
	status := wire.Response.Data.Statuses[0]
	if status.Error != "" {
		return nil, errs.New(errs.KindPermanent, "hyperliquid.parseOrderResponse", status.Error)
	}
	if status.Filled == nil {
		return nil, errs.New(errs.KindTransient, "hyperliquid.parseOrderResponse", "order resting, not filled (IOC expected)")
	}
	return &exchange.Fill{
		AvgPrice:  decimalFromWire(status.Filled.AvgPx),
		FilledQty: decimalFromWire(status.Filled.TotalSz),
		Fees:      money.Zero,
	}, nil
}
