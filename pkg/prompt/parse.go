package prompt

import (
	"encoding/json"
	"regexp"
	"strings"

	"tradecore/pkg/money"
)

// Decision is the typed, clamped result of parsing one symbol's
// portion of an oracle reply.
type Decision struct {
	Symbol                 string
	Signal                 string // "entry" | "exit" | "hold"
	Side                   string // "long" | "short" | ""
	Confidence             money.Decimal
	SizePct                money.Decimal
	EntryPrice             money.Decimal
	StopLoss               money.Decimal
	ProfitTarget           money.Decimal
	InvalidationCondition  string
	Justification          string
	// TextFallback is true when the JSON grammar could not be parsed
	// and the decision was recovered via keyword extraction at
	// reduced confidence.
	TextFallback bool
}

type rawDecision struct {
	Signal                string          `json:"signal"`
	Side                   string          `json:"side"`
	Confidence             json.Number     `json:"confidence"`
	SizePct                json.Number     `json:"size_pct"`
	EntryPrice             json.Number     `json:"entry_price"`
	StopLoss               json.Number     `json:"stop_loss"`
	ProfitTarget           json.Number     `json:"profit_target"`
	InvalidationCondition  string          `json:"invalidation_condition"`
	Justification          string          `json:"justification"`
}

// Defaults carries the bot-level SL/TP percentages used to derive
// missing stop_loss/profit_target values, per §4.3's documented
// default table.
type Defaults struct {
	StopLossPct   money.Decimal
	TakeProfitPct money.Decimal
}

// Parse coerces an oracle reply into a map of symbol -> Decision.
// currentPrices supplies the fallback entry_price and the basis for
// deriving missing stop_loss/profit_target. When the reply parses as
// JSON, symbols present in currentPrices but absent from the reply are
// not synthesized here — callers treat an absent symbol as an implicit
// "hold". The text fallback returns a decision for every symbol in
// currentPrices.
func Parse(reply string, currentPrices map[string]money.Decimal, defaults Defaults) (map[string]Decision, error) {
	var raw map[string]rawDecision
	if err := json.Unmarshal([]byte(extractJSONObject(reply)), &raw); err != nil {
		return parseTextFallback(reply, currentPrices), nil
	}

	out := make(map[string]Decision, len(raw))
	for symbol, rd := range raw {
		out[symbol] = coerce(symbol, rd, currentPrices[symbol], defaults)
	}
	return out, nil
}

// extractJSONObject trims leading/trailing prose around a JSON object,
// since oracle replies sometimes wrap the grammar in markdown fences
// or a sentence of preamble.
func extractJSONObject(reply string) string {
	start := strings.IndexByte(reply, '{')
	end := strings.LastIndexByte(reply, '}')
	if start == -1 || end == -1 || end < start {
		return reply
	}
	return reply[start : end+1]
}

func coerce(symbol string, rd rawDecision, currentPrice money.Decimal, defaults Defaults) Decision {
	signal := strings.ToLower(strings.TrimSpace(rd.Signal))
	if signal != "entry" && signal != "exit" && signal != "hold" {
		signal = "hold"
	}
	side := strings.ToLower(strings.TrimSpace(rd.Side))
	if side != "long" && side != "short" {
		side = ""
	}

	confidence := money.Clamp(numberToDecimal(rd.Confidence), money.Zero, money.Must("1"))
	sizePct := money.Clamp(numberToDecimal(rd.SizePct), money.Zero, money.Must("1"))

	entry := numberToDecimal(rd.EntryPrice)
	if entry.IsZero() {
		entry = currentPrice
	}
	sl := numberToDecimal(rd.StopLoss)
	tp := numberToDecimal(rd.ProfitTarget)
	if signal == "entry" {
		if sl.IsZero() {
			sl = deriveStopLoss(entry, side, defaults.StopLossPct)
		}
		if tp.IsZero() {
			tp = deriveTakeProfit(entry, side, defaults.TakeProfitPct)
		}
	}

	return Decision{
		Symbol:                symbol,
		Signal:                signal,
		Side:                  side,
		Confidence:            confidence,
		SizePct:               sizePct,
		EntryPrice:            entry,
		StopLoss:              sl,
		ProfitTarget:          tp,
		InvalidationCondition: rd.InvalidationCondition,
		Justification:         rd.Justification,
	}
}

func deriveStopLoss(entry money.Decimal, side string, pct money.Decimal) money.Decimal {
	if side == "short" {
		return entry.Mul(money.Must("1").Add(pct))
	}
	return entry.Mul(money.Must("1").Sub(pct))
}

func deriveTakeProfit(entry money.Decimal, side string, pct money.Decimal) money.Decimal {
	if side == "short" {
		return entry.Mul(money.Must("1").Sub(pct))
	}
	return entry.Mul(money.Must("1").Add(pct))
}

func numberToDecimal(n json.Number) money.Decimal {
	if n == "" {
		return money.Zero
	}
	d, err := money.FromString(n.String())
	if err != nil {
		return money.Zero
	}
	return d
}

var (
	entryRe = regexp.MustCompile(`(?i)\bentry\b`)
	exitRe  = regexp.MustCompile(`(?i)\bexit\b`)
	longRe  = regexp.MustCompile(`(?i)\blong\b`)
	shortRe = regexp.MustCompile(`(?i)\bshort\b`)
)

// parseTextFallback recovers a coarse decision per known symbol by
// keyword matching when the reply was not valid JSON. Confidence is
// fixed at a low constant since free text carries no reliable
// quantitative signal.
const textFallbackConfidence = "0.2"

func parseTextFallback(reply string, currentPrices map[string]money.Decimal) map[string]Decision {
	out := make(map[string]Decision, len(currentPrices))
	for symbol, price := range currentPrices {
		section := reply
		if idx := strings.Index(strings.ToUpper(reply), strings.ToUpper(symbol)); idx >= 0 {
			end := idx + 200
			if end > len(reply) {
				end = len(reply)
			}
			section = reply[idx:end]
		}
		signal := "hold"
		side := ""
		switch {
		case entryRe.MatchString(section) && longRe.MatchString(section):
			signal, side = "entry", "long"
		case entryRe.MatchString(section) && shortRe.MatchString(section):
			signal, side = "entry", "short"
		case exitRe.MatchString(section):
			signal = "exit"
		}
		out[symbol] = Decision{
			Symbol:       symbol,
			Signal:       signal,
			Side:         side,
			Confidence:   money.Must(textFallbackConfidence),
			EntryPrice:   price,
			TextFallback: true,
			Justification: "text-fallback extraction from non-JSON reply",
		}
	}
	return out
}
