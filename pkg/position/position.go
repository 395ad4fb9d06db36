// Package position implements C6: the lifecycle of a single directional
// exposure, from open through mark-to-market to the deterministic
// exit-trigger check the engine runs every cycle before asking the
// oracle for anything.
package position

import (
	"time"

	"tradecore/pkg/money"
)

// Side of a position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Status of a position.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// ExitReason enumerates the deterministic triggers of §4.6, in the
// priority order they are evaluated.
type ExitReason string

const (
	ExitNone        ExitReason = "none"
	ExitStopLoss    ExitReason = "sl"
	ExitTakeProfit  ExitReason = "tp"
	ExitLargeLoss   ExitReason = "large_loss"
	ExitTimeout     ExitReason = "timeout"
	ExitStagnation  ExitReason = "stagnation"
	ExitOracle      ExitReason = "oracle"
)

// slippageBuffer is the 0.5% tolerance band around SL/TP that
// prevents chattering at the exact threshold (§4.6).
var slippageBuffer = money.Must("0.005")

var (
	largeLossThreshold   = money.Must("-0.025")
	timeoutLossThreshold = money.Must("-0.01")
	timeoutDuration      = 24 * time.Hour
	stagnationThreshold  = money.Must("0.005")
	stagnationDuration   = 12 * time.Hour
)

// Position is an open or closed directional exposure. CurrentPrice and
// the derived PnL fields are mutated only via Mark; ExitPrice/ExitTime
// are set exactly once, by Close.
type Position struct {
	ID           string
	BotID        string
	Symbol       string
	Side         Side
	Quantity     money.Decimal // positive magnitude
	EntryPrice   money.Decimal
	CurrentPrice money.Decimal
	StopLoss     money.Decimal
	TakeProfit   money.Decimal
	Leverage     int
	EntryTime    time.Time
	ExitTime     *time.Time
	ExitPrice    *money.Decimal
	Status       Status
	RealizedPnL  *money.Decimal
	ExitReason   *ExitReason
}

// New constructs an open position. Leverage defaults to 1 when zero or
// negative is supplied.
func New(id, botID, symbol string, side Side, qty, entry, sl, tp money.Decimal, leverage int, now time.Time) *Position {
	if leverage <= 0 {
		leverage = 1
	}
	return &Position{
		ID:           id,
		BotID:        botID,
		Symbol:       symbol,
		Side:         side,
		Quantity:     qty,
		EntryPrice:   entry,
		CurrentPrice: entry,
		StopLoss:     sl,
		TakeProfit:   tp,
		Leverage:     leverage,
		EntryTime:    now,
		Status:       StatusOpen,
	}
}

// Mark updates the current mark price used for unrealized PnL and
// exit-trigger evaluation. It is a no-op on a closed position.
func (p *Position) Mark(price money.Decimal) {
	if p.Status != StatusOpen {
		return
	}
	p.CurrentPrice = price
}

// UnrealizedPnL implements P3: for long, (p - entry) * qty; for short,
// (entry - p) * qty.
func (p *Position) UnrealizedPnL() money.Decimal {
	diff := p.CurrentPrice.Sub(p.EntryPrice)
	if p.Side == SideShort {
		diff = diff.Neg()
	}
	return diff.Mul(p.Quantity)
}

// PnLPct is unrealized PnL as a fraction of entry notional.
func (p *Position) PnLPct() money.Decimal {
	notional := p.EntryPrice.Mul(p.Quantity)
	if notional.Sign() == 0 {
		return money.Zero
	}
	return p.UnrealizedPnL().Div(notional)
}

// HoldDuration is the elapsed time since entry, as of now.
func (p *Position) HoldDuration(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

// CheckExitTriggers evaluates the five deterministic exit conditions
// of §4.6 in their documented priority order and returns the first
// one that fires, or ExitNone.
func CheckExitTriggers(p *Position, now time.Time) ExitReason {
	if p.Status != StatusOpen {
		return ExitNone
	}
	price := p.CurrentPrice
	pnlPct := p.PnLPct()
	hold := p.HoldDuration(now)

	slBuffered := p.StopLoss.Mul(money.Must("1").Add(slippageBuffer))
	slBufferedShort := p.StopLoss.Mul(money.Must("1").Sub(slippageBuffer))
	tpBufferedLong := p.TakeProfit.Mul(money.Must("1").Sub(slippageBuffer))
	tpBufferedShort := p.TakeProfit.Mul(money.Must("1").Add(slippageBuffer))

	switch {
	case p.Side == SideLong && price.Cmp(slBuffered) <= 0:
		return ExitStopLoss
	case p.Side == SideShort && price.Cmp(slBufferedShort) >= 0:
		return ExitStopLoss
	}
	switch {
	case p.Side == SideLong && price.Cmp(tpBufferedLong) >= 0:
		return ExitTakeProfit
	case p.Side == SideShort && price.Cmp(tpBufferedShort) <= 0:
		return ExitTakeProfit
	}
	if pnlPct.Cmp(largeLossThreshold) <= 0 {
		return ExitLargeLoss
	}
	if hold > timeoutDuration && pnlPct.Cmp(timeoutLossThreshold) < 0 {
		return ExitTimeout
	}
	if hold > stagnationDuration && pnlPct.Abs().Cmp(stagnationThreshold) < 0 {
		return ExitStagnation
	}
	return ExitNone
}

// Close transitions an open position to closed exactly once. It is
// the caller's (TradeExecutor's) responsibility to compute
// realizedPnL from the actual fill price, not from the last mark.
func (p *Position) Close(exitPrice, realizedPnL money.Decimal, reason ExitReason, now time.Time) {
	if p.Status != StatusOpen {
		return
	}
	p.Status = StatusClosed
	p.ExitPrice = &exitPrice
	p.ExitTime = &now
	p.RealizedPnL = &realizedPnL
	p.ExitReason = &reason
}
