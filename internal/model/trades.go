package model

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

const tradeFieldsWithoutID = `bot_id, position_id, symbol, side, quantity, price, fees, kind,
	realized_pnl, timestamp`

var tradeRowFields = "id, " + tradeFieldsWithoutID

// TradeRecord mirrors one immutable ledger row of §3's Trade. There is
// no Update method: trades are append-only, matching the invariant
// that a position's trades reconstruct its realized PnL after close.
type TradeRecord struct {
	ID          string
	BotID       string
	PositionID  string
	Symbol      string
	Side        string
	Quantity    float64
	Price       float64
	Fees        float64
	Kind        string
	RealizedPnL sql.NullFloat64
	Timestamp   time.Time
}

type (
	// TradesModel is an interface to be customized, add more methods
	// here, and implement the added methods in customTradesModel.
	TradesModel interface {
		tradesModel
		CountSince(ctx context.Context, botID string, kind string, since time.Time) (int, error)
		ByPosition(ctx context.Context, positionID string) ([]TradeRecord, error)
	}

	tradesModel interface {
		Insert(ctx context.Context, data *TradeRecord) error
	}

	defaultTradesModel struct {
		conn  sqlx.SqlConn
		cache cache.Cache
		table string
	}

	customTradesModel struct {
		*defaultTradesModel
	}
)

// NewTradesModel returns a model for the trades table.
func NewTradesModel(conn sqlx.SqlConn, c cache.CacheConf, opts ...cache.Option) TradesModel {
	return &customTradesModel{
		defaultTradesModel: &defaultTradesModel{
			conn:  conn,
			cache: cache.New(c, nil, cache.NewStat("trades"), sql.ErrNoRows, opts...),
			table: `"trades"`,
		},
	}
}

func (m *defaultTradesModel) Insert(ctx context.Context, data *TradeRecord) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		m.table, tradeRowFields)
	_, err := m.cache.ExecCtx(ctx, func(ctx context.Context, conn sqlx.SqlConn) (sql.Result, error) {
		return conn.ExecCtx(ctx, query,
			data.ID, data.BotID, data.PositionID, data.Symbol, data.Side, data.Quantity,
			data.Price, data.Fees, data.Kind, data.RealizedPnL, data.Timestamp)
	}, fmt.Sprintf("cache:trades:bot:%s", data.BotID))
	return err
}

// CountSince backs RiskGate's frequency check (§4.5): entries executed
// for this bot since `since` (normally the start of the UTC day).
func (m *customTradesModel) CountSince(ctx context.Context, botID string, kind string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM "trades" WHERE bot_id = $1 AND kind = $2 AND timestamp >= $3`
	var n int
	if err := m.conn.QueryRowCtx(ctx, &n, query, botID, kind, since); err != nil {
		return 0, err
	}
	return n, nil
}

// ByPosition returns every fill for one position in fill order,
// letting a caller reconstruct realized PnL independently of the
// positions table as P2 requires.
func (m *customTradesModel) ByPosition(ctx context.Context, positionID string) ([]TradeRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM "trades" WHERE position_id = $1 ORDER BY "timestamp" ASC`, tradeRowFields)
	var rows []TradeRecord
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, positionID); err != nil {
		return nil, err
	}
	return rows, nil
}
