package model

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

const positionFieldsWithoutID = `bot_id, symbol, side, quantity, entry_price, current_price,
	stop_loss, take_profit, leverage, entry_time, exit_time, exit_price, status, realized_pnl,
	exit_reason, created_at, updated_at`

var positionRowFields = "id, " + positionFieldsWithoutID

// PositionRecord mirrors one row of the positions table (§3). Columns
// only meaningful once a position closes are nullable; every other
// column is set at open and never becomes nullable again.
type PositionRecord struct {
	ID           string
	BotID        string
	Symbol       string
	Side         string
	Quantity     float64
	EntryPrice   float64
	CurrentPrice float64
	StopLoss     float64
	TakeProfit   float64
	Leverage     int
	EntryTime    time.Time
	ExitTime     sql.NullTime
	ExitPrice    sql.NullFloat64
	Status       string
	RealizedPnL  sql.NullFloat64
	ExitReason   sql.NullString
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type (
	// PositionsModel is an interface to be customized, add more methods
	// here, and implement the added methods in customPositionsModel.
	PositionsModel interface {
		positionsModel
		OpenForBot(ctx context.Context, botID string) ([]PositionRecord, error)
		TotalExposure(ctx context.Context, botID string) (float64, error)
		RealizedPnLSince(ctx context.Context, botID string, since time.Time) (float64, error)
		CloseCount(ctx context.Context, botID string, since time.Time) (int, error)
	}

	positionsModel interface {
		Insert(ctx context.Context, data *PositionRecord) error
		FindOne(ctx context.Context, id string) (*PositionRecord, error)
		UpdateMark(ctx context.Context, id string, currentPrice float64) error
		Close(ctx context.Context, id string, exitPrice, realizedPnL float64, exitReason string, exitTime time.Time) error
	}

	defaultPositionsModel struct {
		conn  sqlx.SqlConn
		cache cache.Cache
		table string
	}

	customPositionsModel struct {
		*defaultPositionsModel
	}
)

// NewPositionsModel returns a model for the positions table.
func NewPositionsModel(conn sqlx.SqlConn, c cache.CacheConf, opts ...cache.Option) PositionsModel {
	return &customPositionsModel{
		defaultPositionsModel: &defaultPositionsModel{
			conn:  conn,
			cache: cache.New(c, nil, cache.NewStat("positions"), sql.ErrNoRows, opts...),
			table: `"positions"`,
		},
	}
}

func positionIDKey(id string) string { return fmt.Sprintf("cache:positions:id:%s", id) }

func (m *defaultPositionsModel) Insert(ctx context.Context, data *PositionRecord) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		m.table, positionRowFields)
	_, err := m.cache.ExecCtx(ctx, func(ctx context.Context, conn sqlx.SqlConn) (sql.Result, error) {
		now := time.Now()
		return conn.ExecCtx(ctx, query,
			data.ID, data.BotID, data.Symbol, data.Side, data.Quantity, data.EntryPrice, data.CurrentPrice,
			data.StopLoss, data.TakeProfit, data.Leverage, data.EntryTime, data.ExitTime, data.ExitPrice,
			data.Status, data.RealizedPnL, data.ExitReason, now)
	}, positionIDKey(data.ID))
	return err
}

func (m *defaultPositionsModel) FindOne(ctx context.Context, id string) (*PositionRecord, error) {
	var r PositionRecord
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, positionRowFields, m.table)
	err := m.cache.QueryRowCtx(ctx, &r, positionIDKey(id), func(ctx context.Context, conn sqlx.SqlConn, v interface{}) error {
		return conn.QueryRowCtx(ctx, v, query, id)
	})
	switch err {
	case nil:
		return &r, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, err
	}
}

// UpdateMark writes the latest mark-to-market price. It deliberately
// does not touch any other column: marking happens far more often
// than anything else mutates a position, and a full-row Update would
// invalidate the cache on every tick for no reason.
func (m *defaultPositionsModel) UpdateMark(ctx context.Context, id string, currentPrice float64) error {
	query := fmt.Sprintf(`UPDATE %s SET current_price = $2, updated_at = $3 WHERE id = $1 AND status = 'open'`, m.table)
	_, err := m.cache.ExecCtx(ctx, func(ctx context.Context, conn sqlx.SqlConn) (sql.Result, error) {
		return conn.ExecCtx(ctx, query, id, currentPrice, time.Now())
	}, positionIDKey(id))
	return err
}

// Close is the single, one-way open->closed transition of §3's
// invariant: exit_price, exit_time, realized_pnl and exit_reason are
// all written together, exactly once, and the WHERE clause refuses to
// touch a row that is already closed.
func (m *defaultPositionsModel) Close(ctx context.Context, id string, exitPrice, realizedPnL float64, exitReason string, exitTime time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET status = 'closed', exit_price = $2, exit_time = $3,
		realized_pnl = $4, exit_reason = $5, current_price = $2, updated_at = $6
		WHERE id = $1 AND status = 'open'`, m.table)
	res, err := m.cache.ExecCtx(ctx, func(ctx context.Context, conn sqlx.SqlConn) (sql.Result, error) {
		return conn.ExecCtx(ctx, query, id, exitPrice, exitTime, realizedPnL, exitReason, time.Now())
	}, positionIDKey(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("model: position %s is not open (close is one-way)", id)
	}
	return nil
}

// OpenForBot backs C6's open_for(bot): the open-set is always
// recomputed from storage, never cached across cycles.
func (m *customPositionsModel) OpenForBot(ctx context.Context, botID string) ([]PositionRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE bot_id = $1 AND status = 'open' ORDER BY entry_time ASC`,
		positionRowFields, m.table)
	var rows []PositionRecord
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, botID); err != nil {
		return nil, err
	}
	return rows, nil
}

// TotalExposure sums open-position notional (entry_price * quantity)
// for a bot.
func (m *customPositionsModel) TotalExposure(ctx context.Context, botID string) (float64, error) {
	const query = `SELECT COALESCE(SUM(entry_price * quantity), 0) FROM "positions" WHERE bot_id = $1 AND status = 'open'`
	var total float64
	if err := m.conn.QueryRowCtx(ctx, &total, query, botID); err != nil {
		return 0, err
	}
	return total, nil
}

// RealizedPnLSince sums realized PnL of positions closed at or after
// since, used for the drawdown check and daily PnL reporting.
func (m *customPositionsModel) RealizedPnLSince(ctx context.Context, botID string, since time.Time) (float64, error) {
	const query = `SELECT COALESCE(SUM(realized_pnl), 0) FROM "positions"
		WHERE bot_id = $1 AND status = 'closed' AND exit_time >= $2`
	var total float64
	if err := m.conn.QueryRowCtx(ctx, &total, query, botID, since); err != nil {
		return 0, err
	}
	return total, nil
}

// CloseCount counts positions closed at or after since. It backs the
// ClosedPositionsToday gauge; the frequency limit of §4.5 uses the
// trades' entry count alone.
func (m *customPositionsModel) CloseCount(ctx context.Context, botID string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM "positions" WHERE bot_id = $1 AND status = 'closed' AND exit_time >= $2`
	var n int
	if err := m.conn.QueryRowCtx(ctx, &n, query, botID, since); err != nil {
		return 0, err
	}
	return n, nil
}
