// Package risk implements C5: a stateless gate between the oracle's
// proposed Decisions and the executor. Every check runs in the exact
// order documented in §4.5 so rejection reasons are reproducible.
package risk

import (
	"fmt"

	"tradecore/pkg/money"
)

// BotPolicy is the subset of a bot's risk_params the gate consults.
type BotPolicy struct {
	MaxPositionPct  money.Decimal
	MaxExposurePct  money.Decimal
	MaxDrawdownPct  money.Decimal
	MaxTradesPerDay int
	MinRRRatio      money.Decimal
}

// Portfolio is the subset of live account state the gate consults.
type Portfolio struct {
	Capital         money.Decimal // current cash
	InitialCapital  money.Decimal
	InvestedNotional money.Decimal // sum of open position notional
	Equity          money.Decimal // capital + unrealized pnl of open positions
	TradesToday     int
}

// Proposal is the decision being validated, already coerced to
// decimal by pkg/prompt.
type Proposal struct {
	Side         string // "long" | "short"
	SizePct      money.Decimal
	EntryPrice   money.Decimal
	StopLoss     money.Decimal
	ProfitTarget money.Decimal
}

// Verdict is the result of Validate: Ok or a stable, machine-checkable
// Reason code.
type Verdict struct {
	Ok     bool
	Reason string
}

func reject(reason string) Verdict { return Verdict{Ok: false, Reason: reason} }

var ok = Verdict{Ok: true}

// Validate runs the six ordered checks of §4.5 and returns the first
// rejection encountered, or Ok if the proposal clears all of them.
func Validate(policy BotPolicy, portfolio Portfolio, p Proposal) Verdict {
	// 1. size bound.
	if p.SizePct.Sign() <= 0 || p.SizePct.Cmp(policy.MaxPositionPct) > 0 {
		return reject("size_out_of_band")
	}

	// 2. exposure bound.
	notional := portfolio.Capital.Mul(p.SizePct)
	proposedExposure := portfolio.InvestedNotional.Add(notional)
	maxExposure := portfolio.Capital.Mul(policy.MaxExposurePct)
	if proposedExposure.Cmp(maxExposure) > 0 {
		return reject("exposure_exceeded")
	}

	// 3. reward/risk geometry, and coherence of stop/target placement.
	rrVerdict := validateRR(policy.MinRRRatio, p)
	if !rrVerdict.Ok {
		return rrVerdict
	}

	// 4. drawdown.
	if portfolio.InitialCapital.Sign() > 0 {
		drawdown := portfolio.Equity.Sub(portfolio.InitialCapital).Div(portfolio.InitialCapital)
		if drawdown.Cmp(policy.MaxDrawdownPct.Neg()) <= 0 {
			return reject("drawdown_exceeded")
		}
	}

	// 5. frequency.
	if portfolio.TradesToday >= policy.MaxTradesPerDay {
		return reject("frequency")
	}

	// 6. coherence with side.
	if p.Side != "long" && p.Side != "short" {
		return reject("invalid_side")
	}
	if p.StopLoss.Equal(p.EntryPrice) || p.ProfitTarget.Equal(p.EntryPrice) {
		return reject("price_bounds_degenerate")
	}

	return ok
}

func validateRR(minRR money.Decimal, p Proposal) Verdict {
	switch p.Side {
	case "long":
		if !(p.ProfitTarget.Cmp(p.EntryPrice) > 0 && p.EntryPrice.Cmp(p.StopLoss) > 0) {
			return reject("price_bounds_invalid")
		}
		risk := p.EntryPrice.Sub(p.StopLoss)
		reward := p.ProfitTarget.Sub(p.EntryPrice)
		rr := reward.Div(risk)
		if rr.Cmp(minRR) < 0 {
			return reject("rr_below_floor")
		}
	case "short":
		if !(p.StopLoss.Cmp(p.EntryPrice) > 0 && p.EntryPrice.Cmp(p.ProfitTarget) > 0) {
			return reject("price_bounds_invalid")
		}
		risk := p.StopLoss.Sub(p.EntryPrice)
		reward := p.EntryPrice.Sub(p.ProfitTarget)
		rr := reward.Div(risk)
		if rr.Cmp(minRR) < 0 {
			return reject("rr_below_floor")
		}
	default:
		return reject("invalid_side")
	}
	return ok
}

// kickerBase/kickerSlope and the kickerLow/kickerHigh clamp bounds for
// SizeFor's multiplier, per
// §4.5's "confidence kicker" formula.
var (
	kickerBase  = money.Must("0.5")
	kickerSlope = money.Must("0.7")
	kickerLow   = money.Must("0.5")
	kickerHigh  = money.Must("1.2")
)

// SizeFor computes the position quantity from capital, size_pct and
// oracle confidence: notional = capital * size_pct *
// clamp(0.5 + confidence*0.7, 0.5, 1.2); quantity = notional /
// entryPrice. Deterministic and bounded by construction.
func SizeFor(capital, sizePct, confidence, entryPrice money.Decimal) (money.Decimal, error) {
	if entryPrice.Sign() <= 0 {
		return money.Zero, fmt.Errorf("risk: entry price must be positive, got %s", entryPrice.String())
	}
	kicker := money.Clamp(kickerBase.Add(confidence.Mul(kickerSlope)), kickerLow, kickerHigh)
	notional := capital.Mul(sizePct).Mul(kicker)
	return notional.Div(entryPrice), nil
}
