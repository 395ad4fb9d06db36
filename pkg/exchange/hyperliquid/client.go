// Package hyperliquid is a live exchange.Provider backed by the
// Hyperliquid perpetuals REST API. Every call is wrapped in a
// gobreaker.CircuitBreaker so a run of venue failures (the historical
// "323/350 OKX ticker failures" incident) trips to fail-fast Transient
// errors instead of hammering a degraded endpoint.
package hyperliquid

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sony/gobreaker"

	"tradecore/pkg/errs"
	"tradecore/pkg/exchange"
	"tradecore/pkg/money"
)

const (
	mainnetInfoURL     = "https://api.hyperliquid.xyz/info"
	mainnetExchangeURL = "https://api.hyperliquid.xyz/exchange"
	testnetInfoURL     = "https://api.hyperliquid-testnet.xyz/info"
	testnetExchangeURL = "https://api.hyperliquid-testnet.xyz/exchange"

	defaultHTTPTimeout = 10 * time.Second
	breakerMaxFailures = 5
	breakerCooldown    = 30 * time.Second
)

// Signer authenticates outbound exchange (order) requests. The wallet
// address is derived once at construction via go-ethereum's secp256k1
// implementation, matching the signing identity Hyperliquid expects;
// the private key is retained so Sign (auth.go) can produce the
// EIP-712 signature every exchange POST requires.
type Signer struct {
	address    string
	privateKey *ecdsa.PrivateKey
}

// NewSigner derives a wallet Signer from a hex-encoded ECDSA private
// key (the format exported by every EVM wallet).
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if keyHex == "" {
		return nil, fmt.Errorf("hyperliquid: empty private key")
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: decode private key: %w", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	if !common.IsHexAddress(addr.Hex()) {
		return nil, fmt.Errorf("hyperliquid: derived address %q is not a valid hex address", addr.Hex())
	}
	return &Signer{address: strings.ToLower(addr.Hex()), privateKey: key}, nil
}

// Address returns the lowercase hex wallet address used for both info
// and exchange requests.
func (s *Signer) Address() string { return s.address }

// Client is the thin transport layer: JSON over HTTP, one circuit
// breaker per logical endpoint group (info vs. exchange), no retry —
// per spec §5, retry belongs to the Engine, not the adapter.
type Client struct {
	infoURL     string
	exchangeURL string
	httpClient  *http.Client
	signer      *Signer
	isMainnet   bool

	infoBreaker     *gobreaker.CircuitBreaker
	exchangeBreaker *gobreaker.CircuitBreaker

	// assetMu guards the coin->index directory populated from the
	// "meta" info endpoint: Hyperliquid orders address assets by their
	// position in the universe array, not by coin symbol, and that
	// array is shared across every bot goroutine using this Client.
	assetMu    sync.RWMutex
	assetIndex map[string]int

	// nonceMu serializes nonce generation so two concurrent orders from
	// the same wallet never reuse a millisecond timestamp, which
	// Hyperliquid rejects as a replayed nonce.
	nonceMu   sync.Mutex
	lastNonce int64
}

// NewClient constructs a Client. signer may be nil for a read-only
// client restricted to info endpoints (market data only, no orders).
func NewClient(signer *Signer, testnet bool, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	info, exchangeEndpoint := mainnetInfoURL, mainnetExchangeURL
	if testnet {
		info, exchangeEndpoint = testnetInfoURL, testnetExchangeURL
	}
	breakerSettings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    0,
			Timeout:     breakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerMaxFailures
			},
		}
	}
	return &Client{
		infoURL:         info,
		exchangeURL:     exchangeEndpoint,
		httpClient:      httpClient,
		signer:          signer,
		isMainnet:       !testnet,
		assetIndex:      make(map[string]int),
		infoBreaker:     gobreaker.NewCircuitBreaker(breakerSettings("hyperliquid-info")),
		exchangeBreaker: gobreaker.NewCircuitBreaker(breakerSettings("hyperliquid-exchange")),
	}
}

// nextNonce returns a strictly increasing millisecond nonce, bumping
// past the wall clock if a previous call already claimed it.
func (c *Client) nextNonce() int64 {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()
	n := time.Now().UnixMilli()
	if n <= c.lastNonce {
		n = c.lastNonce + 1
	}
	c.lastNonce = n
	return n
}

// assetIndexFor resolves coin to its exchange asset index, refreshing
// the cached universe directory from the "meta" info endpoint on a
// miss.
func (c *Client) assetIndexFor(ctx context.Context, coin string) (int, error) {
	if idx, ok := c.cachedAssetIndex(coin); ok {
		return idx, nil
	}
	if err := c.refreshAssetDirectory(ctx); err != nil {
		return 0, err
	}
	if idx, ok := c.cachedAssetIndex(coin); ok {
		return idx, nil
	}
	return 0, errs.New(errs.KindPermanent, "hyperliquid.assetIndexFor", fmt.Sprintf("asset %s not found in universe", coin))
}

func (c *Client) cachedAssetIndex(coin string) (int, bool) {
	c.assetMu.RLock()
	defer c.assetMu.RUnlock()
	idx, ok := c.assetIndex[coin]
	return idx, ok
}

type metaResponse struct {
	Universe []struct {
		Name string `json:"name"`
	} `json:"universe"`
}

func (c *Client) refreshAssetDirectory(ctx context.Context) error {
	var meta metaResponse
	if err := c.postInfo(ctx, infoRequest{Type: "meta"}, &meta); err != nil {
		return err
	}
	if len(meta.Universe) == 0 {
		return errs.New(errs.KindTransient, "hyperliquid.refreshAssetDirectory", "meta response contained no assets")
	}
	index := make(map[string]int, len(meta.Universe))
	for i, entry := range meta.Universe {
		index[exchange.NormalizeSymbol(entry.Name)] = i
	}
	c.assetMu.Lock()
	c.assetIndex = index
	c.assetMu.Unlock()
	return nil
}

type infoRequest struct {
	Type string `json:"type"`
	Coin string `json:"coin,omitempty"`
}

func (c *Client) postInfo(ctx context.Context, body any, out any) error {
	res, err := c.infoBreaker.Execute(func() (any, error) {
		return c.post(ctx, c.infoURL, body)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return errs.Wrap(errs.KindTransient, "hyperliquid.info", "circuit open", err)
		}
		return errs.Wrap(errs.KindTransient, "hyperliquid.info", "request failed", err)
	}
	raw := res.([]byte)
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errs.Wrap(errs.KindPermanent, "hyperliquid.info", "decode response", err)
	}
	return nil
}

func (c *Client) postExchange(ctx context.Context, body any) ([]byte, error) {
	res, err := c.exchangeBreaker.Execute(func() (any, error) {
		return c.post(ctx, c.exchangeURL, body)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, errs.Wrap(errs.KindTransient, "hyperliquid.exchange", "circuit open", err)
		}
		return nil, errs.Wrap(errs.KindTransient, "hyperliquid.exchange", "request failed", err)
	}
	return res.([]byte), nil
}

func (c *Client) post(ctx context.Context, url string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: do request: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: read response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("hyperliquid: server error %d: %s", resp.StatusCode, string(data))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("hyperliquid: client error %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}

func decimalFromWire(s string) money.Decimal {
	if s == "" {
		return money.Zero
	}
	d, err := money.FromString(s)
	if err != nil {
		return money.Zero
	}
	return d
}
