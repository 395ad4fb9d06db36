package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/pkg/engine"
	"tradecore/pkg/exchange/sim"
	"tradecore/pkg/journal"
	"tradecore/pkg/market"
	"tradecore/pkg/money"
	"tradecore/pkg/oracle"
	"tradecore/pkg/position"
	"tradecore/pkg/risk"
	"tradecore/pkg/trade"
)

type fakeSource struct{ view *engine.BotView }

func (f *fakeSource) Load(ctx context.Context, botID string) (*engine.BotView, error) {
	v := *f.view
	return &v, nil
}

type fakeRecorder struct{}

func (fakeRecorder) RecordDecision(ctx context.Context, rec *engine.DecisionRecord) error { return nil }

type fakeLister struct{ ids []string }

func (f *fakeLister) ListActiveBotIDs(ctx context.Context) ([]string, error) { return f.ids, nil }

func newFakeEngine(t *testing.T, botID string) *engine.Engine {
	provider := sim.New(sim.Config{})
	provider.SetPrice("BTCUSDT", money.Must("100000"))
	store := position.NewInMemoryStore()
	ledger := trade.NewInMemoryLedger()
	executor := trade.NewExecutor(provider, store, ledger)
	account := trade.NewAccount(botID, money.Must("1000"), money.Zero)
	feed := market.NewFeed(provider)
	o := oracle.New(nil, nil, nil)
	writer := journal.NewWriter(t.TempDir())
	view := &engine.BotView{
		ID: botID, Active: true, Symbols: []string{"BTCUSDT"},
		TimeframeShort: "1h", TimeframeLong: "4h", CandleLookback: 10,
		CyclePeriod: 10 * time.Millisecond, EntryConfidenceThreshold: money.Must("0.55"),
		Policy: risk.BotPolicy{MaxPositionPct: money.Must("0.1"), MaxExposurePct: money.Must("1"), MaxDrawdownPct: money.Must("0.5"), MaxTradesPerDay: 10, MinRRRatio: money.Must("1")},
	}
	return engine.New(botID, engine.Deps{
		Source: &fakeSource{view: view}, Feed: feed, Store: store, Executor: executor,
		Account: account, Oracle: o, Recorder: fakeRecorder{}, Journal: writer,
	})
}

func TestStartBotRegistersAndRuns(t *testing.T) {
	s := New(func(botID string) (*engine.Engine, error) {
		return newFakeEngine(t, botID), nil
	}, nil)

	require.NoError(t, s.StartBot(context.Background(), "bot1"))
	assert.Eventually(t, func() bool {
		running := s.ListRunning()
		return len(running) == 1 && running[0].BotID == "bot1"
	}, time.Second, time.Millisecond)

	require.NoError(t, s.StopBot("bot1"))
}

func TestStopBotOnUnregisteredBotReturnsError(t *testing.T) {
	s := New(func(botID string) (*engine.Engine, error) { return newFakeEngine(t, botID), nil }, nil)
	err := s.StopBot("does-not-exist")
	assert.Error(t, err)
}

func TestColdStartRescanStartsEveryActiveBot(t *testing.T) {
	lister := &fakeLister{ids: []string{"bot1", "bot2"}}
	s := New(func(botID string) (*engine.Engine, error) { return newFakeEngine(t, botID), nil }, lister)

	require.NoError(t, s.ColdStartRescan(context.Background()))
	assert.Eventually(t, func() bool { return len(s.ListRunning()) == 2 }, time.Second, time.Millisecond)

	s.StopAll()
}

func TestPanicInEngineStartIsContainedToThatBot(t *testing.T) {
	panicking := func(botID string) (*engine.Engine, error) {
		if botID == "bad" {
			panic("synthetic failure")
		}
		return newFakeEngine(t, botID), nil
	}
	s := New(panicking, nil)

	err := s.StartBot(context.Background(), "bad")
	assert.Error(t, err, "a panicking factory must surface as an error, not crash the caller")

	require.NoError(t, s.StartBot(context.Background(), "good"))
	assert.Eventually(t, func() bool { return len(s.ListRunning()) == 1 }, time.Second, time.Millisecond)
	s.StopAll()
}
