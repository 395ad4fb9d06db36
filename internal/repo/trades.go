package repo

import (
	"context"
	"database/sql"
	"time"

	"tradecore/internal/model"
	"tradecore/pkg/engine"
	"tradecore/pkg/trade"
)

// TradeLedger implements trade.Ledger (C7's append-only fill ledger)
// over TradesModel. It also implements engine.TradeCounter via
// EntriesToday, so the same value backs both roles in internal/svc.
type TradeLedger struct {
	trades model.TradesModel
}

// NewTradeLedger constructs a TradeLedger.
func NewTradeLedger(deps Dependencies) *TradeLedger {
	return &TradeLedger{trades: deps.TradesModel}
}

var (
	_ trade.Ledger        = (*TradeLedger)(nil)
	_ engine.TradeCounter = (*TradeLedger)(nil)
)

func (l *TradeLedger) Append(ctx context.Context, t *trade.Trade) error {
	rec := &model.TradeRecord{
		ID:         t.ID,
		BotID:      t.BotID,
		PositionID: t.PositionID,
		Symbol:     t.Symbol,
		Side:       string(t.Side),
		Quantity:   t.Quantity.InexactFloat64(),
		Price:      t.Price.InexactFloat64(),
		Fees:       t.Fees.InexactFloat64(),
		Kind:       string(t.Kind),
		Timestamp:  t.Timestamp,
	}
	if t.RealizedPnL != nil {
		rec.RealizedPnL = sql.NullFloat64{Float64: t.RealizedPnL.InexactFloat64(), Valid: true}
	}
	return l.trades.Insert(ctx, rec)
}

// EntriesToday counts entry-kind trades since UTC midnight, backing
// RiskGate's §4.5 frequency check: `max_trades_per_day` counts entries
// actually executed today, not decisions merely proposed.
func (l *TradeLedger) EntriesToday(ctx context.Context, botID string, now time.Time) (int, error) {
	y, m, d := now.UTC().Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return l.trades.CountSince(ctx, botID, string(trade.KindEntry), dayStart)
}
