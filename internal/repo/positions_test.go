package repo

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/model"
	"tradecore/pkg/money"
	"tradecore/pkg/position"
)

func TestPositionStore_OpenFor_mapsOpenRows(t *testing.T) {
	fake := &fakePositionsModel{
		open: []model.PositionRecord{{
			ID:           "pos-1",
			BotID:        "bot-1",
			Symbol:       "BTC",
			Side:         "long",
			Quantity:     1.5,
			EntryPrice:   30000,
			CurrentPrice: 31000,
			StopLoss:     29000,
			TakeProfit:   33000,
			Leverage:     2,
			EntryTime:    time.Unix(0, 0),
			Status:       "open",
		}},
	}
	store := NewPositionStore(Dependencies{PositionsModel: fake})

	positions, err := store.OpenFor(context.Background(), "bot-1")
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	assert.Equal(t, "pos-1", p.ID)
	assert.Equal(t, position.SideLong, p.Side)
	assert.True(t, p.Quantity.Equal(money.FromFloat(1.5)))
	assert.True(t, p.EntryPrice.Equal(money.FromFloat(30000)))
	assert.Equal(t, position.StatusOpen, p.Status)
	assert.Nil(t, p.ExitPrice)
	assert.Nil(t, p.RealizedPnL)
}

func TestPositionStore_OpenFor_mapsClosedRowNullables(t *testing.T) {
	exitTime := time.Unix(1000, 0)
	fake := &fakePositionsModel{
		open: []model.PositionRecord{{
			ID:          "pos-2",
			BotID:       "bot-1",
			Symbol:      "ETH",
			Side:        "short",
			EntryTime:   time.Unix(0, 0),
			Status:      "closed",
			ExitTime:    sql.NullTime{Time: exitTime, Valid: true},
			ExitPrice:   sql.NullFloat64{Float64: 1900, Valid: true},
			RealizedPnL: sql.NullFloat64{Float64: -50, Valid: true},
			ExitReason:  sql.NullString{String: "sl", Valid: true},
		}},
	}
	store := NewPositionStore(Dependencies{PositionsModel: fake})

	positions, err := store.OpenFor(context.Background(), "bot-1")
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	require.NotNil(t, p.ExitTime)
	assert.True(t, p.ExitTime.Equal(exitTime))
	require.NotNil(t, p.ExitPrice)
	assert.True(t, p.ExitPrice.Equal(money.FromFloat(1900)))
	require.NotNil(t, p.RealizedPnL)
	assert.True(t, p.RealizedPnL.Equal(money.FromFloat(-50)))
	require.NotNil(t, p.ExitReason)
	assert.Equal(t, position.ExitReason("sl"), *p.ExitReason)
}

func TestPositionStore_TotalExposure_andRealizedPnL(t *testing.T) {
	fake := &fakePositionsModel{total: 12345.6, realized: -78.9}
	store := NewPositionStore(Dependencies{PositionsModel: fake})

	exposure, err := store.TotalExposure(context.Background(), "bot-1")
	require.NoError(t, err)
	assert.True(t, exposure.Equal(money.FromFloat(12345.6)))

	pnl, err := store.RealizedPnLToday(context.Background(), "bot-1", time.Now())
	require.NoError(t, err)
	assert.True(t, pnl.Equal(money.FromFloat(-78.9)))
}

func TestPositionStore_ClosedToday_delegatesToCloseCount(t *testing.T) {
	fake := &fakePositionsModel{closeCount: 3}
	store := NewPositionStore(Dependencies{PositionsModel: fake})

	n, err := store.ClosedToday(context.Background(), "bot-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
