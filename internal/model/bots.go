// Package model is the goctl-style data access layer: one file per
// table, a defaultXModel carrying the cache-backed CRUD the rest of
// the codebase relies on, and a customXModel layering the
// domain-specific queries internal/repo actually needs.
package model

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

const botFieldsWithoutID = `active, symbols, timeframe_short, timeframe_long, candle_lookback,
	cycle_period_seconds, entry_confidence_threshold, force_close_on_stop, model, max_tokens,
	temperature, stop_loss_pct, take_profit_pct, initial_capital, capital, paper_trading, fee_rate,
	max_position_pct, max_exposure_pct, max_drawdown_pct, max_trades_per_day, min_rr_ratio,
	created_at, updated_at`

var botRowFields = "id, " + botFieldsWithoutID

// BotRecord mirrors one row of the bots table. Nullable numeric
// fields are plain (not pointers): every column here is NOT NULL,
// since a bot row with an unset risk parameter is a configuration
// error the engine must never silently tolerate.
type BotRecord struct {
	ID                       string
	Active                   bool
	Symbols                  []string
	TimeframeShort           string
	TimeframeLong            string
	CandleLookback           int
	CyclePeriodSeconds       int
	EntryConfidenceThreshold float64
	ForceCloseOnStop         bool
	Model                    string
	MaxTokens                int
	Temperature              float64
	StopLossPct              float64
	TakeProfitPct            float64
	InitialCapital           float64
	Capital                  float64
	PaperTrading             bool
	FeeRate                  float64
	MaxPositionPct           float64
	MaxExposurePct           float64
	MaxDrawdownPct           float64
	MaxTradesPerDay          int
	MinRRRatio               float64
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

type (
	// BotsModel is an interface to be customized, add more methods here,
	// and implement the added methods in customBotsModel.
	BotsModel interface {
		botsModel
		ListActiveIDs(ctx context.Context) ([]string, error)
	}

	botsModel interface {
		Insert(ctx context.Context, data *BotRecord) error
		FindOne(ctx context.Context, id string) (*BotRecord, error)
		Update(ctx context.Context, data *BotRecord) error
		UpdateCapital(ctx context.Context, id string, capital float64) error
	}

	defaultBotsModel struct {
		conn  sqlx.SqlConn
		cache cache.Cache
		table string
	}

	customBotsModel struct {
		*defaultBotsModel
	}
)

// NewBotsModel returns a model for the bots table.
func NewBotsModel(conn sqlx.SqlConn, c cache.CacheConf, opts ...cache.Option) BotsModel {
	return &customBotsModel{
		defaultBotsModel: &defaultBotsModel{
			conn:  conn,
			cache: cache.New(c, nil, cache.NewStat("bots"), sql.ErrNoRows, opts...),
			table: `"bots"`,
		},
	}
}

func botIDKey(id string) string { return fmt.Sprintf("cache:bots:id:%s", id) }

func (m *defaultBotsModel) Insert(ctx context.Context, data *BotRecord) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`,
		m.table, botRowFields)
	_, err := m.cache.ExecCtx(ctx, func(ctx context.Context, conn sqlx.SqlConn) (sql.Result, error) {
		return conn.ExecCtx(ctx, query,
			data.ID, data.Active, pq.Array(data.Symbols), data.TimeframeShort, data.TimeframeLong,
			data.CandleLookback, data.CyclePeriodSeconds, data.EntryConfidenceThreshold, data.ForceCloseOnStop,
			data.Model, data.MaxTokens, data.Temperature, data.StopLossPct, data.TakeProfitPct,
			data.InitialCapital, data.Capital, data.PaperTrading, data.FeeRate,
			data.MaxPositionPct, data.MaxExposurePct, data.MaxDrawdownPct,
			data.MaxTradesPerDay, data.MinRRRatio, time.Now())
	}, botIDKey(data.ID))
	return err
}

func (m *defaultBotsModel) FindOne(ctx context.Context, id string) (*BotRecord, error) {
	var r BotRecord
	var symbols pq.StringArray
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, botRowFields, m.table)
	err := m.cache.QueryRowCtx(ctx, &r, botIDKey(id), func(ctx context.Context, conn sqlx.SqlConn, v interface{}) error {
		return conn.QueryRowCtx(ctx, v, query, id)
	})
	switch err {
	case nil:
		r.Symbols = symbols
		return &r, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, err
	}
}

func (m *defaultBotsModel) Update(ctx context.Context, data *BotRecord) error {
	query := fmt.Sprintf(`UPDATE %s SET active=$2, symbols=$3, timeframe_short=$4, timeframe_long=$5,
		candle_lookback=$6, cycle_period_seconds=$7, entry_confidence_threshold=$8, force_close_on_stop=$9,
		model=$10, max_tokens=$11, temperature=$12, stop_loss_pct=$13, take_profit_pct=$14,
		initial_capital=$15, capital=$16, paper_trading=$17, fee_rate=$18,
		max_position_pct=$19, max_exposure_pct=$20, max_drawdown_pct=$21,
		max_trades_per_day=$22, min_rr_ratio=$23, updated_at=$24 WHERE id = $1`, m.table)
	_, err := m.cache.ExecCtx(ctx, func(ctx context.Context, conn sqlx.SqlConn) (sql.Result, error) {
		return conn.ExecCtx(ctx, query,
			data.ID, data.Active, pq.Array(data.Symbols), data.TimeframeShort, data.TimeframeLong,
			data.CandleLookback, data.CyclePeriodSeconds, data.EntryConfidenceThreshold, data.ForceCloseOnStop,
			data.Model, data.MaxTokens, data.Temperature, data.StopLossPct, data.TakeProfitPct,
			data.InitialCapital, data.Capital, data.PaperTrading, data.FeeRate,
			data.MaxPositionPct, data.MaxExposurePct, data.MaxDrawdownPct,
			data.MaxTradesPerDay, data.MinRRRatio, time.Now())
	}, botIDKey(data.ID))
	return err
}

// UpdateCapital is the sole column-level write path for the cash
// balance TradeExecutor mutates. It bypasses the full-row Update so an
// engine persisting capital after a fill never clobbers a concurrent
// admin edit to an unrelated column, and invalidates the row cache so
// the next reload sees the fresh balance.
func (m *defaultBotsModel) UpdateCapital(ctx context.Context, id string, capital float64) error {
	query := fmt.Sprintf(`UPDATE %s SET capital=$2, updated_at=$3 WHERE id = $1`, m.table)
	_, err := m.cache.ExecCtx(ctx, func(ctx context.Context, conn sqlx.SqlConn) (sql.Result, error) {
		return conn.ExecCtx(ctx, query, id, capital, time.Now())
	}, botIDKey(id))
	return err
}

// ListActiveIDs backs the Scheduler's cold-start rescan: every bot
// whose status is active when the process boots.
func (m *customBotsModel) ListActiveIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT id FROM "bots" WHERE active = true`
	var ids []string
	if err := m.conn.QueryRowsCtx(ctx, &ids, query); err != nil {
		return nil, err
	}
	return ids, nil
}

// ErrNotFound mirrors goctl's sentinel for a missing row, decoupled
// from the sqlx package so callers don't need to import it directly.
var ErrNotFound = &notFoundError{}

type notFoundError struct{}

func (*notFoundError) Error() string { return "model: record not found" }

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate key")
}
