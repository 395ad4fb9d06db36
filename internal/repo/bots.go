package repo

import (
	"context"
	"fmt"
	"time"

	"tradecore/internal/model"
	"tradecore/pkg/engine"
	"tradecore/pkg/errs"
	"tradecore/pkg/money"
	"tradecore/pkg/risk"
)

// BotSource loads the authoritative bots row fresh inside its own
// transaction every cycle (pkg/engine.BotSource), the direct fix for
// the source's "lazy-loaded entity re-used across awaits" failure
// mode: the engine never holds anything but a botID between cycles.
type BotSource struct {
	bots model.BotsModel
}

// NewBotSource constructs a BotSource over BotsModel.
func NewBotSource(deps Dependencies) *BotSource {
	return &BotSource{bots: deps.BotsModel}
}

// Load implements engine.BotSource.
func (s *BotSource) Load(ctx context.Context, botID string) (*engine.BotView, error) {
	rec, err := s.bots.FindOne(ctx, botID)
	if err != nil {
		if err == model.ErrNotFound {
			return nil, errs.Wrap(errs.KindPermanent, "repo.BotSource.Load", fmt.Sprintf("bot %s not found", botID), err)
		}
		return nil, errs.Wrap(errs.KindTransient, "repo.BotSource.Load", "query failed", err)
	}
	return recordToView(rec), nil
}

func recordToView(rec *model.BotRecord) *engine.BotView {
	return &engine.BotView{
		ID:       rec.ID,
		Active:   rec.Active,
		Symbols:  rec.Symbols,
		Policy: risk.BotPolicy{
			MaxPositionPct:  money.FromFloat(rec.MaxPositionPct),
			MaxExposurePct:  money.FromFloat(rec.MaxExposurePct),
			MaxDrawdownPct:  money.FromFloat(rec.MaxDrawdownPct),
			MaxTradesPerDay: rec.MaxTradesPerDay,
			MinRRRatio:      money.FromFloat(rec.MinRRRatio),
		},
		TimeframeShort:           rec.TimeframeShort,
		TimeframeLong:            rec.TimeframeLong,
		CandleLookback:           rec.CandleLookback,
		CyclePeriod:              time.Duration(rec.CyclePeriodSeconds) * time.Second,
		EntryConfidenceThreshold: money.FromFloat(rec.EntryConfidenceThreshold),
		ForceCloseOnStop:         rec.ForceCloseOnStop,
		Model:                    rec.Model,
		MaxTokens:                rec.MaxTokens,
		Temperature:              rec.Temperature,
		StopLossPct:              money.FromFloat(rec.StopLossPct),
		TakeProfitPct:            money.FromFloat(rec.TakeProfitPct),
		InitialCapital:           money.FromFloat(rec.InitialCapital),
	}
}

// CapitalPersister writes an Engine's live Account.Capital back to the
// bots row after each cycle via BotsModel.UpdateCapital, so a process
// restart reloads the true cash balance instead of the bot's
// `initial_capital`. It implements pkg/engine.CapitalPersister.
type CapitalPersister struct {
	bots model.BotsModel
}

// NewCapitalPersister constructs a CapitalPersister.
func NewCapitalPersister(deps Dependencies) *CapitalPersister {
	return &CapitalPersister{bots: deps.BotsModel}
}

// PersistCapital implements engine.CapitalPersister.
func (p *CapitalPersister) PersistCapital(ctx context.Context, botID string, capital money.Decimal) error {
	return p.bots.UpdateCapital(ctx, botID, capital.InexactFloat64())
}

// LoadAccount constructs a trade.Account seeded from the bot's
// persisted capital/fee_rate columns. Called once at Scheduler
// construction time (internal/svc), never mid-cycle: Account itself
// is the one long-lived mutable object in the system, and
// CapitalPersister is what keeps its value durable across restarts.
func LoadAccount(ctx context.Context, deps Dependencies, botID string) (capital, feeRate money.Decimal, paperTrading bool, err error) {
	rec, err := deps.BotsModel.FindOne(ctx, botID)
	if err != nil {
		return money.Zero, money.Zero, false, err
	}
	return money.FromFloat(rec.Capital), money.FromFloat(rec.FeeRate), rec.PaperTrading, nil
}
