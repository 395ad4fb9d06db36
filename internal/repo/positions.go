package repo

import (
	"context"
	"time"

	"tradecore/internal/model"
	"tradecore/pkg/engine"
	"tradecore/pkg/money"
	"tradecore/pkg/position"
)

// PositionStore implements position.Store (C6) over PositionsModel. It
// also implements engine.ExitCounter via ClosedToday, so the same
// value can back both roles in internal/svc without a second adapter.
// It never caches the open set across calls — §4.6's invariant — each
// OpenFor re-queries storage.
type PositionStore struct {
	positions model.PositionsModel
}

// NewPositionStore constructs a PositionStore.
func NewPositionStore(deps Dependencies) *PositionStore {
	return &PositionStore{positions: deps.PositionsModel}
}

var (
	_ position.Store     = (*PositionStore)(nil)
	_ engine.ExitCounter = (*PositionStore)(nil)
)

func (s *PositionStore) OpenFor(ctx context.Context, botID string) ([]*position.Position, error) {
	rows, err := s.positions.OpenForBot(ctx, botID)
	if err != nil {
		return nil, err
	}
	out := make([]*position.Position, 0, len(rows))
	for i := range rows {
		out = append(out, recordToPosition(&rows[i]))
	}
	return out, nil
}

func (s *PositionStore) Open(ctx context.Context, p *position.Position) error {
	rec := &model.PositionRecord{
		ID:           p.ID,
		BotID:        p.BotID,
		Symbol:       p.Symbol,
		Side:         string(p.Side),
		Quantity:     p.Quantity.InexactFloat64(),
		EntryPrice:   p.EntryPrice.InexactFloat64(),
		CurrentPrice: p.CurrentPrice.InexactFloat64(),
		StopLoss:     p.StopLoss.InexactFloat64(),
		TakeProfit:   p.TakeProfit.InexactFloat64(),
		Leverage:     p.Leverage,
		EntryTime:    p.EntryTime,
		Status:       string(position.StatusOpen),
	}
	return s.positions.Insert(ctx, rec)
}

func (s *PositionStore) Mark(ctx context.Context, p *position.Position, price money.Decimal) error {
	p.Mark(price)
	return s.positions.UpdateMark(ctx, p.ID, price.InexactFloat64())
}

func (s *PositionStore) Close(ctx context.Context, p *position.Position, exitPrice, realizedPnL money.Decimal, reason position.ExitReason, now time.Time) error {
	if err := s.positions.Close(ctx, p.ID, exitPrice.InexactFloat64(), realizedPnL.InexactFloat64(), string(reason), now); err != nil {
		return err
	}
	p.Close(exitPrice, realizedPnL, reason, now)
	return nil
}

func (s *PositionStore) TotalExposure(ctx context.Context, botID string) (money.Decimal, error) {
	v, err := s.positions.TotalExposure(ctx, botID)
	if err != nil {
		return money.Zero, err
	}
	return money.FromFloat(v), nil
}

func (s *PositionStore) RealizedPnLToday(ctx context.Context, botID string, day time.Time) (money.Decimal, error) {
	y, m, d := day.UTC().Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	v, err := s.positions.RealizedPnLSince(ctx, botID, dayStart)
	if err != nil {
		return money.Zero, err
	}
	return money.FromFloat(v), nil
}

// ClosedToday counts positions closed since UTC midnight. The engine
// reports it as the ClosedPositionsToday gauge; RiskGate's frequency
// check counts entries only, via the trade ledger.
func (s *PositionStore) ClosedToday(ctx context.Context, botID string, day time.Time) (int, error) {
	y, m, d := day.UTC().Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return s.positions.CloseCount(ctx, botID, dayStart)
}

func recordToPosition(rec *model.PositionRecord) *position.Position {
	p := &position.Position{
		ID:           rec.ID,
		BotID:        rec.BotID,
		Symbol:       rec.Symbol,
		Side:         position.Side(rec.Side),
		Quantity:     money.FromFloat(rec.Quantity),
		EntryPrice:   money.FromFloat(rec.EntryPrice),
		CurrentPrice: money.FromFloat(rec.CurrentPrice),
		StopLoss:     money.FromFloat(rec.StopLoss),
		TakeProfit:   money.FromFloat(rec.TakeProfit),
		Leverage:     rec.Leverage,
		EntryTime:    rec.EntryTime,
		Status:       position.Status(rec.Status),
	}
	if rec.ExitTime.Valid {
		t := rec.ExitTime.Time
		p.ExitTime = &t
	}
	if rec.ExitPrice.Valid {
		v := money.FromFloat(rec.ExitPrice.Float64)
		p.ExitPrice = &v
	}
	if rec.RealizedPnL.Valid {
		v := money.FromFloat(rec.RealizedPnL.Float64)
		p.RealizedPnL = &v
	}
	if rec.ExitReason.Valid {
		r := position.ExitReason(rec.ExitReason.String)
		p.ExitReason = &r
	}
	return p
}
