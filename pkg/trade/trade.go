// Package trade implements C7: atomic entry/exit execution against an
// exchange.Provider, the sole writer of a bot's cash balance. Every
// mutation here happens under Account's lock so a concurrent mark or
// read never observes a half-applied fill.
package trade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"tradecore/pkg/errs"
	"tradecore/pkg/exchange"
	"tradecore/pkg/money"
	"tradecore/pkg/position"
)

// Account is the mutable cash/fee-rate state of one bot. TradeExecutor
// is the only component permitted to mutate Capital; the engine only
// ever reads it.
type Account struct {
	mu      sync.Mutex
	BotID   string
	Capital money.Decimal
	FeeRate money.Decimal
}

// NewAccount constructs an Account.
func NewAccount(botID string, capital, feeRate money.Decimal) *Account {
	return &Account{BotID: botID, Capital: capital, FeeRate: feeRate}
}

// Snapshot returns the current capital without allowing concurrent
// mutation mid-read.
func (a *Account) Snapshot() money.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Capital
}

// Kind of ledger row, mirroring §3's Trade.kind.
type Kind string

const (
	KindEntry Kind = "entry"
	KindExit  Kind = "exit"
)

// Trade is the immutable ledger row for one fill.
type Trade struct {
	ID          string
	BotID       string
	PositionID  string
	Symbol      string
	Side        exchange.OrderSide
	Quantity    money.Decimal
	Price       money.Decimal
	Fees        money.Decimal
	Kind        Kind
	RealizedPnL *money.Decimal // set for exits only
	Timestamp   time.Time
}

// Ledger appends immutable Trade rows. The production implementation
// lives in internal/repo; tests use an in-memory fake.
type Ledger interface {
	Append(ctx context.Context, t *Trade) error
}

// InMemoryLedger is a Ledger backed by a plain slice.
type InMemoryLedger struct {
	mu     sync.Mutex
	Trades []*Trade
}

func NewInMemoryLedger() *InMemoryLedger { return &InMemoryLedger{} }

func (l *InMemoryLedger) Append(ctx context.Context, t *Trade) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Trades = append(l.Trades, t)
	return nil
}

// Executor places orders (live via Provider, or through a paper
// sim.Provider — the same interface either way) and atomically
// updates Account.Capital, the Position, and the Trade ledger.
type Executor struct {
	provider exchange.Provider
	store    position.Store
	ledger   Ledger
	idGen    func() string
	clock    func() time.Time
}

// NewExecutor constructs an Executor. idGen/clock default to
// uuid.NewString and time.Now respectively; tests may override both
// for determinism.
func NewExecutor(provider exchange.Provider, store position.Store, ledger Ledger) *Executor {
	return &Executor{
		provider: provider,
		store:    store,
		ledger:   ledger,
		idGen:    uuid.NewString,
		clock:    time.Now,
	}
}

// WithClock overrides the executor's clock (test hook).
func (e *Executor) WithClock(clock func() time.Time) *Executor {
	e.clock = clock
	return e
}

// WithIDGen overrides the executor's ID generator (test hook).
func (e *Executor) WithIDGen(idGen func() string) *Executor {
	e.idGen = idGen
	return e
}

// ExecuteEntry implements §4.7's entry algorithm atomically under
// account's lock: fill, fees, cost, capital check, position creation,
// ledger append.
func (e *Executor) ExecuteEntry(ctx context.Context, account *Account, symbol string, side position.Side, quantity, entryPrice, sl, tp money.Decimal, leverage int) (*position.Position, error) {
	orderSide := exchange.OrderSideBuy
	if side == position.SideShort {
		orderSide = exchange.OrderSideSell
	}
	fill, err := e.provider.CreateOrder(ctx, symbol, orderSide, exchange.OrderTypeMarket, quantity)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "trade.ExecuteEntry", "order placement failed", err)
	}

	account.mu.Lock()
	defer account.mu.Unlock()

	fees := fill.AvgPrice.Mul(fill.FilledQty).Mul(account.FeeRate)
	cost := fill.AvgPrice.Mul(fill.FilledQty).Add(fees)
	if account.Capital.Cmp(cost) < 0 {
		return nil, errs.New(errs.KindInsufficientCapital, "trade.ExecuteEntry",
			fmt.Sprintf("capital %s below required cost %s for %s", account.Capital.String(), cost.String(), symbol))
	}
	account.Capital = account.Capital.Sub(cost)

	now := e.clock()
	pos := position.New(e.idGen(), account.BotID, symbol, side, fill.FilledQty, fill.AvgPrice, sl, tp, leverage, now)
	if err := e.store.Open(ctx, pos); err != nil {
		// Roll back the capital debit: the order already filled on the
		// venue, but nothing was persisted, so the bot must not appear
		// to have spent cash it has no position to show for.
		account.Capital = account.Capital.Add(cost)
		return nil, errs.Wrap(errs.KindTransient, "trade.ExecuteEntry", "position store write failed", err)
	}

	t := &Trade{
		ID:         e.idGen(),
		BotID:      account.BotID,
		PositionID: pos.ID,
		Symbol:     symbol,
		Side:       orderSide,
		Quantity:   fill.FilledQty,
		Price:      fill.AvgPrice,
		Fees:       fees,
		Kind:       KindEntry,
		Timestamp:  now,
	}
	if err := e.ledger.Append(ctx, t); err != nil {
		logx.WithContext(ctx).Errorf("trade: ledger append failed bot=%s position=%s: %v", account.BotID, pos.ID, err)
	}

	logx.WithContext(ctx).Infof("trade: entry bot=%s symbol=%s side=%s qty=%s price=%s fees=%s",
		account.BotID, symbol, side, fill.FilledQty.String(), fill.AvgPrice.String(), fees.String())
	return pos, nil
}

// ExecuteExit implements §4.7's exit algorithm atomically: fill, fees,
// proceeds (sign-correct for both sides), capital credit, position
// close, ledger append.
func (e *Executor) ExecuteExit(ctx context.Context, account *Account, pos *position.Position, reason position.ExitReason) (money.Decimal, error) {
	closeSide := exchange.OrderSideSell
	if pos.Side == position.SideShort {
		closeSide = exchange.OrderSideBuy
	}
	fill, err := e.provider.ClosePosition(ctx, pos.Symbol, closeSide, pos.Quantity)
	if err != nil {
		return money.Zero, errs.Wrap(errs.KindTransient, "trade.ExecuteExit", "close order failed", err)
	}

	account.mu.Lock()
	defer account.mu.Unlock()

	fees := fill.AvgPrice.Mul(fill.FilledQty).Mul(account.FeeRate)
	grossPnL := fill.AvgPrice.Sub(pos.EntryPrice).Mul(pos.Quantity)
	if pos.Side == position.SideShort {
		grossPnL = grossPnL.Neg()
	}
	// proceeds returned to cash: the entry notional is always returned
	// (it was debited at entry), adjusted by the gross PnL, less exit
	// fees. RealizedPnL itself stays fee-free so the P1 invariant
	// (initial_capital + Σrealized_pnl − Σfees = capital + Σmark) holds
	// with fees counted exactly once, via Trade.Fees.
	entryNotional := pos.EntryPrice.Mul(pos.Quantity)
	proceeds := entryNotional.Add(grossPnL).Sub(fees)
	realizedPnL := grossPnL

	account.Capital = account.Capital.Add(proceeds)
	now := e.clock()
	if err := e.store.Close(ctx, pos, fill.AvgPrice, realizedPnL, reason, now); err != nil {
		account.Capital = account.Capital.Sub(proceeds)
		return money.Zero, errs.Wrap(errs.KindTransient, "trade.ExecuteExit", "position close write failed", err)
	}

	t := &Trade{
		ID:          e.idGen(),
		BotID:       account.BotID,
		PositionID:  pos.ID,
		Symbol:      pos.Symbol,
		Side:        closeSide,
		Quantity:    fill.FilledQty,
		Price:       fill.AvgPrice,
		Fees:        fees,
		Kind:        KindExit,
		RealizedPnL: &realizedPnL,
		Timestamp:   now,
	}
	if err := e.ledger.Append(ctx, t); err != nil {
		logx.WithContext(ctx).Errorf("trade: ledger append failed bot=%s position=%s: %v", account.BotID, pos.ID, err)
	}

	logx.WithContext(ctx).Infof("trade: exit bot=%s symbol=%s reason=%s price=%s realized_pnl=%s",
		account.BotID, pos.Symbol, reason, fill.AvgPrice.String(), realizedPnL.String())
	return realizedPnL, nil
}
