package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tradecore/pkg/money"
)

func newLong(t *testing.T) *Position {
	t.Helper()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return New("p1", "bot1", "BTCUSDT", SideLong, money.Must("1"), money.Must("100000"), money.Must("98000"), money.Must("104000"), 1, now)
}

func TestUnrealizedPnLLong(t *testing.T) {
	p := newLong(t)
	p.Mark(money.Must("101000"))
	assert.True(t, p.UnrealizedPnL().Equal(money.Must("1000")))
}

func TestUnrealizedPnLShort(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := New("p1", "bot1", "BTCUSDT", SideShort, money.Must("1"), money.Must("100000"), money.Must("102000"), money.Must("96000"), 1, now)
	p.Mark(money.Must("99000"))
	assert.True(t, p.UnrealizedPnL().Equal(money.Must("1000")))
}

func TestExitTriggerStopLossAtBuffer(t *testing.T) {
	// B3: exactly at the buffered threshold fires.
	p := newLong(t)
	p.Mark(money.Must("98490")) // 98000*1.005 = 98490
	reason := CheckExitTriggers(p, p.EntryTime)
	assert.Equal(t, ExitStopLoss, reason)
}

func TestExitTriggerStopLossOneTickAboveBufferDoesNotFire(t *testing.T) {
	p := newLong(t)
	p.Mark(money.Must("98491"))
	reason := CheckExitTriggers(p, p.EntryTime)
	assert.Equal(t, ExitNone, reason)
}

func TestExitTriggerTakeProfit(t *testing.T) {
	p := newLong(t)
	p.Mark(money.Must("103480")) // 104000*0.995
	reason := CheckExitTriggers(p, p.EntryTime)
	assert.Equal(t, ExitTakeProfit, reason)
}

func TestExitTriggerStopLossPrecedesLargeLoss(t *testing.T) {
	p := newLong(t)
	p.Mark(money.Must("97400")) // pnl_pct = -2.6%, but also within SL buffer? 98000*1.005=98490 -> 97400 < that so SL also fires first.
	reason := CheckExitTriggers(p, p.EntryTime)
	assert.Equal(t, ExitStopLoss, reason) // SL precedes large_loss in priority order
}

func TestExitTriggerStagnation(t *testing.T) {
	p := newLong(t)
	p.Mark(money.Must("100050")) // pnl_pct ~ 0.05%
	later := p.EntryTime.Add(13 * time.Hour)
	reason := CheckExitTriggers(p, later)
	assert.Equal(t, ExitStagnation, reason)
}

func TestExitTriggerTimeout(t *testing.T) {
	p := newLong(t)
	p.Mark(money.Must("98600")) // just above SL buffer, pnl_pct = -1.4%
	later := p.EntryTime.Add(25 * time.Hour)
	reason := CheckExitTriggers(p, later)
	assert.Equal(t, ExitTimeout, reason)
}

func TestCloseIsIdempotent(t *testing.T) {
	p := newLong(t)
	now := p.EntryTime.Add(time.Hour)
	p.Close(money.Must("101000"), money.Must("1000"), ExitOracle, now)
	assert.Equal(t, StatusClosed, p.Status)
	firstPnL := *p.RealizedPnL
	p.Close(money.Must("999999"), money.Must("999999"), ExitStopLoss, now.Add(time.Hour))
	assert.True(t, p.RealizedPnL.Equal(firstPnL))
}
