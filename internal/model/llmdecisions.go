package model

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

const llmDecisionFieldsWithoutID = `bot_id, "timestamp", prompt_hash, raw_response, parsed_decisions,
	gated, fallback_used, synthetic_hold, cache_hit, success, error_kind, error_message, duration_millis`

var llmDecisionRowFields = "id, " + llmDecisionFieldsWithoutID

// LLMDecisionRecord mirrors one audit row of §3's LLMDecision.
// ParsedDecisions and Gated are stored as JSON blobs: they are
// write-once audit payloads, never queried column-by-column, so a
// relational breakout would add schema churn for no read benefit.
type LLMDecisionRecord struct {
	ID              string
	BotID           string
	Timestamp       time.Time
	PromptHash      string
	RawResponse     string
	ParsedDecisions []byte // JSON
	Gated           []byte // JSON
	FallbackUsed    string
	SyntheticHold   bool
	CacheHit        bool
	Success         bool
	ErrorKind       string
	ErrorMessage    string
	DurationMillis  int64
}

type (
	// LLMDecisionsModel is an interface to be customized, add more
	// methods here, and implement the added methods in
	// customLLMDecisionsModel.
	LLMDecisionsModel interface {
		llmDecisionsModel
		Recent(ctx context.Context, botID string, limit int) ([]LLMDecisionRecord, error)
	}

	llmDecisionsModel interface {
		Insert(ctx context.Context, data *LLMDecisionRecord) error
	}

	defaultLLMDecisionsModel struct {
		conn  sqlx.SqlConn
		cache cache.Cache
		table string
	}

	customLLMDecisionsModel struct {
		*defaultLLMDecisionsModel
	}
)

// NewLLMDecisionsModel returns a model for the llm_decisions table.
func NewLLMDecisionsModel(conn sqlx.SqlConn, c cache.CacheConf, opts ...cache.Option) LLMDecisionsModel {
	return &customLLMDecisionsModel{
		defaultLLMDecisionsModel: &defaultLLMDecisionsModel{
			conn:  conn,
			cache: cache.New(c, nil, cache.NewStat("llm_decisions"), sql.ErrNoRows, opts...),
			table: `"llm_decisions"`,
		},
	}
}

func (m *defaultLLMDecisionsModel) Insert(ctx context.Context, data *LLMDecisionRecord) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		m.table, llmDecisionRowFields)
	_, err := m.cache.ExecCtx(ctx, func(ctx context.Context, conn sqlx.SqlConn) (sql.Result, error) {
		return conn.ExecCtx(ctx, query,
			data.ID, data.BotID, data.Timestamp, data.PromptHash, data.RawResponse, data.ParsedDecisions,
			data.Gated, data.FallbackUsed, data.SyntheticHold, data.CacheHit, data.Success,
			data.ErrorKind, data.ErrorMessage, data.DurationMillis)
	}, fmt.Sprintf("cache:llm_decisions:bot:%s", data.BotID))
	return err
}

// Recent backs the admin surface's "read recent decisions" call
// (§6) — the core exposes it as a plain function, wire framing is the
// host's concern.
func (m *customLLMDecisionsModel) Recent(ctx context.Context, botID string, limit int) ([]LLMDecisionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM "llm_decisions" WHERE bot_id = $1 ORDER BY "timestamp" DESC LIMIT $2`,
		llmDecisionRowFields)
	var rows []LLMDecisionRecord
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, botID, limit); err != nil {
		return nil, err
	}
	return rows, nil
}
