// Package repo is the persistence façade between the trading core's
// package-level collaborators (pkg/engine, pkg/position, pkg/trade)
// and internal/model's generated-looking data access layer. It is the
// only place outside pkg/money that converts between the DB's plain
// float64 columns and the core's money.Decimal, so the coercion point
// stays auditable.
package repo

import (
	"context"

	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"tradecore/internal/model"
)

// Dependencies bundles the models every repo constructor needs. A
// single struct (rather than one constructor per model) keeps
// internal/svc's wiring short and makes it obvious every repo shares
// one DB connection.
type Dependencies struct {
	DBConn            sqlx.SqlConn
	BotsModel         model.BotsModel
	PositionsModel    model.PositionsModel
	TradesModel       model.TradesModel
	LLMDecisionsModel model.LLMDecisionsModel
}

// BotLister adapts BotsModel.ListActiveIDs to pkg/scheduler's
// BotLister contract, so the scheduler never imports internal/model
// directly.
type BotLister struct {
	bots model.BotsModel
}

// NewBotLister constructs a BotLister.
func NewBotLister(deps Dependencies) *BotLister {
	return &BotLister{bots: deps.BotsModel}
}

func (l *BotLister) ListActiveBotIDs(ctx context.Context) ([]string, error) {
	return l.bots.ListActiveIDs(ctx)
}
