// Package prompt implements C3: rendering a deterministic, hashable
// prompt from bot/portfolio/market state, and parsing the oracle's
// reply back into typed Decisions.
package prompt

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"tradecore/pkg/indicators"
	"tradecore/pkg/money"
)

// PositionView is the open-position summary shown for one symbol.
type PositionView struct {
	Side             string
	Quantity         money.Decimal
	EntryPrice       money.Decimal
	CurrentPrice     money.Decimal
	UnrealizedPnL    money.Decimal
	UnrealizedPnLPct money.Decimal
}

// SymbolView bundles the market/indicator state rendered for one
// tradable symbol. IndicatorsShort/Long hold full series (not just
// the latest value) so the template can print trailing history; NaN
// entries render as the literal "N/A" token, never a substitute
// number.
type SymbolView struct {
	Symbol         string
	LastPrice      money.Decimal
	FundingRate    money.Decimal
	OpenInterest   money.Decimal
	IndicatorsShort map[string][]float64
	IndicatorsLong  map[string][]float64
	OpenPosition    *PositionView
}

// PortfolioView is the account-level block appended after symbols.
type PortfolioView struct {
	Cash      money.Decimal
	Invested  money.Decimal
	Equity    money.Decimal
	ReturnPct money.Decimal
	Sharpe    *float64
}

// RiskPolicyView summarizes the bot's risk_params for the oracle.
type RiskPolicyView struct {
	MaxPositionPct float64
	MaxExposurePct float64
	MaxDrawdownPct float64
	MaxTradesPerDay int
	StopLossPct    float64
	TakeProfitPct  float64
	MinRRRatio     float64
}

// Render produces the full prompt text. It is a pure function of its
// arguments: given the same inputs (including currentTime, supplied
// by the caller rather than read from the clock) it always produces
// a byte-identical string, satisfying R1 and making the result usable
// as an oracle cache key.
func Render(currentTime string, symbols []SymbolView, portfolio PortfolioView, risk RiskPolicyView) string {
	views := make([]SymbolView, len(symbols))
	copy(views, symbols)
	sort.Slice(views, func(i, j int) bool { return views[i].Symbol < views[j].Symbol })

	var b strings.Builder
	fmt.Fprintf(&b, "time: %s\n\n", currentTime)
	b.WriteString("## Market\n\n")
	for _, v := range views {
		renderSymbol(&b, v)
	}
	b.WriteString("\n## Portfolio\n\n")
	renderPortfolio(&b, portfolio)
	b.WriteString("\n## Risk policy\n\n")
	renderRisk(&b, risk)
	b.WriteString("\n")
	b.WriteString(grammarBlock)
	return b.String()
}

func renderSymbol(b *strings.Builder, v SymbolView) {
	fmt.Fprintf(b, "### %s\n", v.Symbol)
	fmt.Fprintf(b, "price=%s funding=%s open_interest=%s\n", v.LastPrice.String(), v.FundingRate.String(), v.OpenInterest.String())
	renderIndicatorBlock(b, "short_tf", v.IndicatorsShort)
	renderIndicatorBlock(b, "long_tf", v.IndicatorsLong)
	if v.OpenPosition == nil {
		b.WriteString("position: none\n\n")
		return
	}
	p := v.OpenPosition
	fmt.Fprintf(b, "position: side=%s qty=%s entry=%s mark=%s unrealized_pnl=%s (%s%%)\n\n",
		p.Side, p.Quantity.String(), p.EntryPrice.String(), p.CurrentPrice.String(),
		p.UnrealizedPnL.String(), p.UnrealizedPnLPct.String())
}

func renderIndicatorBlock(b *strings.Builder, label string, series map[string][]float64) {
	if len(series) == 0 {
		fmt.Fprintf(b, "%s: (none)\n", label)
		return
	}
	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(b, "%s:\n", label)
	for _, name := range names {
		vals := series[name]
		trail := vals
		if len(trail) > 10 {
			trail = trail[len(trail)-10:]
		}
		latest, ok := indicators.LatestValid(vals)
		latestStr := "N/A"
		if ok {
			latestStr = fmt.Sprintf("%.6f", latest)
		}
		fmt.Fprintf(b, "  %s latest=%s trail=[%s]\n", name, latestStr, formatSeries(trail))
	}
}

func formatSeries(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		if v != v { // NaN
			parts[i] = "N/A"
			continue
		}
		parts[i] = fmt.Sprintf("%.6f", v)
	}
	return strings.Join(parts, ",")
}

func renderPortfolio(b *strings.Builder, p PortfolioView) {
	fmt.Fprintf(b, "cash=%s invested=%s equity=%s return_pct=%s", p.Cash.String(), p.Invested.String(), p.Equity.String(), p.ReturnPct.String())
	if p.Sharpe != nil {
		fmt.Fprintf(b, " sharpe=%.3f", *p.Sharpe)
	} else {
		b.WriteString(" sharpe=N/A")
	}
	b.WriteString("\n")
}

func renderRisk(b *strings.Builder, r RiskPolicyView) {
	fmt.Fprintf(b, "max_position_pct=%.4f max_exposure_pct=%.4f max_drawdown_pct=%.4f max_trades_per_day=%d stop_loss_pct=%.4f take_profit_pct=%.4f min_rr_ratio=%.2f\n",
		r.MaxPositionPct, r.MaxExposurePct, r.MaxDrawdownPct, r.MaxTradesPerDay, r.StopLossPct, r.TakeProfitPct, r.MinRRRatio)
}

const grammarBlock = `## Output format

Respond with a single JSON object mapping each symbol above to a decision object with exactly these fields:

  "signal": "entry" | "exit" | "hold"
  "side": "long" | "short"        (required when signal="entry")
  "confidence": number in [0,1]
  "size_pct": number in (0,1]     (required when signal="entry")
  "entry_price": number
  "stop_loss": number
  "profit_target": number
  "invalidation_condition": string
  "justification": string

Example: {"BTCUSDT": {"signal":"entry","side":"long","confidence":0.7,"size_pct":0.05,"entry_price":100000,"stop_loss":98000,"profit_target":104000,"invalidation_condition":"4h close below 97500","justification":"..."}}

Every symbol listed above must appear as a key, even if signal is "hold".`

// Hash returns the cache key for the oracle layer: a function of the
// full request shape, not just the prompt text, so two identical
// prompts issued with different model/params never collide.
func Hash(promptText, model string, maxTokens int, temperature float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%.4f", promptText, model, maxTokens, temperature)))
	return hex.EncodeToString(sum[:])
}
