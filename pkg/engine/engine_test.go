package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/pkg/errs"
	"tradecore/pkg/exchange"
	"tradecore/pkg/exchange/sim"
	"tradecore/pkg/journal"
	"tradecore/pkg/market"
	"tradecore/pkg/money"
	"tradecore/pkg/oracle"
	"tradecore/pkg/position"
	"tradecore/pkg/prompt"
	"tradecore/pkg/risk"
	"tradecore/pkg/trade"
)

type fakeBotSource struct {
	view *BotView
	err  error
}

func (f *fakeBotSource) Load(ctx context.Context, botID string) (*BotView, error) {
	if f.err != nil {
		return nil, f.err
	}
	v := *f.view
	return &v, nil
}

type fakeRecorder struct {
	records []*DecisionRecord
}

func (f *fakeRecorder) RecordDecision(ctx context.Context, rec *DecisionRecord) error {
	f.records = append(f.records, rec)
	return nil
}

type fakeOracleProvider struct {
	text string
}

func (p *fakeOracleProvider) Name() string { return "fake" }

func (p *fakeOracleProvider) Analyze(ctx context.Context, prompt string, maxTokens int, temperature float64, model string) (string, oracle.Meta, error) {
	return p.text, oracle.Meta{Provider: "fake"}, nil
}

func seedCandles(provider *sim.Provider, symbol, timeframe string, n int, price money.Decimal) {
	candles := make([]exchange.Candle, n)
	for i := 0; i < n; i++ {
		candles[i] = exchange.Candle{
			Ts: int64(i) * 60000, Open: price, High: price, Low: price, Close: price, Volume: money.Must("1"),
		}
	}
	provider.SeedCandles(symbol, timeframe, candles)
}

func newTestEngine(t *testing.T, botView *BotView, oracleText string, journalDir string) (*Engine, *sim.Provider, *position.InMemoryStore, *fakeRecorder) {
	provider := sim.New(sim.Config{SlippageBps: 0})
	provider.SetPrice("BTCUSDT", money.Must("100000"))
	seedCandles(provider, "BTCUSDT", "1h", 60, money.Must("100000"))
	seedCandles(provider, "BTCUSDT", "4h", 60, money.Must("100000"))

	store := position.NewInMemoryStore()
	ledger := trade.NewInMemoryLedger()
	executor := trade.NewExecutor(provider, store, ledger)
	account := trade.NewAccount("bot1", money.Must("10000"), money.Zero)
	feed := market.NewFeed(provider)

	primary := &fakeOracleProvider{text: oracleText}
	o := oracle.New([]oracle.Provider{primary}, nil, nil)

	recorder := &fakeRecorder{}
	writer := journal.NewWriter(journalDir)
	source := &fakeBotSource{view: botView}

	e := New("bot1", Deps{
		Source: source, Feed: feed, Store: store, Executor: executor,
		Account: account, Oracle: o, Recorder: recorder, Journal: writer,
	})
	e.WithClock(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) })
	return e, provider, store, recorder
}

func baseBotView() *BotView {
	return &BotView{
		ID:             "bot1",
		Active:         true,
		Symbols:        []string{"BTCUSDT"},
		TimeframeShort: "1h",
		TimeframeLong:  "4h",
		CandleLookback: 60,
		CyclePeriod:    time.Minute,
		Policy: risk.BotPolicy{
			MaxPositionPct:  money.Must("0.2"),
			MaxExposurePct:  money.Must("1"),
			MaxDrawdownPct:  money.Must("0.5"),
			MaxTradesPerDay: 100,
			MinRRRatio:      money.Must("1"),
		},
		EntryConfidenceThreshold: money.Must("0.55"),
		Model:                    "gpt-4o-mini",
		MaxTokens:                500,
		Temperature:              0.2,
		StopLossPct:              money.Must("0.02"),
		TakeProfitPct:            money.Must("0.04"),
	}
}

func TestRunCycleEntersOnHighConfidenceSignal(t *testing.T) {
	view := baseBotView()
	reply := `{"BTCUSDT": {"signal":"entry","side":"long","confidence":0.8,"size_pct":0.1,"entry_price":100000,"stop_loss":98000,"profit_target":104000,"justification":"test"}}`
	e, _, store, recorder := newTestEngine(t, view, reply, t.TempDir())

	err := e.runCycle(context.Background(), view)
	require.NoError(t, err)

	open, err := store.OpenFor(context.Background(), "bot1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "BTCUSDT", open[0].Symbol)
	assert.Equal(t, position.SideLong, open[0].Side)

	require.Len(t, recorder.records, 1)
	assert.True(t, recorder.records[0].Success)
	assert.Len(t, recorder.records[0].Actions, 1)
	assert.Equal(t, "entry", recorder.records[0].Actions[0].Kind)
}

func TestRunCycleSkipsEntryBelowConfidenceThreshold(t *testing.T) {
	view := baseBotView()
	reply := `{"BTCUSDT": {"signal":"entry","side":"long","confidence":0.3,"size_pct":0.1,"entry_price":100000,"stop_loss":98000,"profit_target":104000,"justification":"test"}}`
	e, _, store, recorder := newTestEngine(t, view, reply, t.TempDir())

	err := e.runCycle(context.Background(), view)
	require.NoError(t, err)

	open, err := store.OpenFor(context.Background(), "bot1")
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Empty(t, recorder.records[0].Actions)
}

func TestRunCycleRejectsOversizedProposalViaRiskGate(t *testing.T) {
	view := baseBotView()
	view.Policy.MaxPositionPct = money.Must("0.01") // smaller than the proposed size_pct below
	reply := `{"BTCUSDT": {"signal":"entry","side":"long","confidence":0.9,"size_pct":0.5,"entry_price":100000,"stop_loss":98000,"profit_target":104000,"justification":"test"}}`
	e, _, store, recorder := newTestEngine(t, view, reply, t.TempDir())

	err := e.runCycle(context.Background(), view)
	require.NoError(t, err)

	open, err := store.OpenFor(context.Background(), "bot1")
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Equal(t, "size_out_of_band", recorder.records[0].Gated["BTCUSDT"])
}

// TestRunCycleExitPrecedesEntrySameSymbol verifies §4.8's ordering
// guarantee: a symbol whose open position hits a deterministic exit
// trigger this cycle is never re-entered in the same cycle, even if
// the oracle's reply proposes an entry for it.
func TestRunCycleExitPrecedesEntrySameSymbol(t *testing.T) {
	view := baseBotView()
	e, provider, store, recorder := newTestEngine(t, view, "", t.TempDir())

	pos := position.New("pos1", "bot1", "BTCUSDT", position.SideLong, money.Must("0.01"),
		money.Must("100000"), money.Must("98000"), money.Must("104000"), 1, e.clock())
	require.NoError(t, store.Open(context.Background(), pos))

	// Price crashes through stop loss before this cycle runs.
	provider.SetPrice("BTCUSDT", money.Must("97000"))

	reply := `{"BTCUSDT": {"signal":"entry","side":"long","confidence":0.9,"size_pct":0.1,"entry_price":97000,"stop_loss":95000,"profit_target":101000,"justification":"test"}}`

	// Re-point the oracle to return the entry reply for this run.
	o := oracle.New([]oracle.Provider{&fakeOracleProvider{text: reply}}, nil, nil)
	e.oracle = o

	err := e.runCycle(context.Background(), view)
	require.NoError(t, err)

	open, err := store.OpenFor(context.Background(), "bot1")
	require.NoError(t, err)
	assert.Empty(t, open, "stop-loss exit must not be immediately followed by a same-cycle re-entry")

	require.Len(t, recorder.records, 1)
	var sawExit bool
	for _, a := range recorder.records[0].Actions {
		if a.Kind == "exit" {
			sawExit = true
		}
		assert.NotEqual(t, "entry", a.Kind, "no entry action should be recorded for BTCUSDT this cycle")
	}
	assert.True(t, sawExit)
}

func TestRunCycleSynthesizesHoldOnOracleFailure(t *testing.T) {
	view := baseBotView()
	failing := &fakeOracleProviderErr{err: errs.New(errs.KindAuthFailure, "x", "bad key")}
	store := position.NewInMemoryStore()
	provider := sim.New(sim.Config{})
	provider.SetPrice("BTCUSDT", money.Must("100000"))
	seedCandles(provider, "BTCUSDT", "1h", 60, money.Must("100000"))
	seedCandles(provider, "BTCUSDT", "4h", 60, money.Must("100000"))
	ledger := trade.NewInMemoryLedger()
	executor := trade.NewExecutor(provider, store, ledger)
	account := trade.NewAccount("bot1", money.Must("10000"), money.Zero)
	feed := market.NewFeed(provider)
	o := oracle.New([]oracle.Provider{failing}, nil, nil)
	recorder := &fakeRecorder{}
	writer := journal.NewWriter(t.TempDir())
	source := &fakeBotSource{view: view}

	e := New("bot1", Deps{Source: source, Feed: feed, Store: store, Executor: executor, Account: account, Oracle: o, Recorder: recorder, Journal: writer})
	e.WithClock(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) })

	err := e.runCycle(context.Background(), view)
	require.NoError(t, err)

	open, err := store.OpenFor(context.Background(), "bot1")
	require.NoError(t, err)
	assert.Empty(t, open)
	require.Len(t, recorder.records, 1)
	assert.True(t, recorder.records[0].SyntheticHold)
}

type fakeOracleProviderErr struct{ err error }

func (p *fakeOracleProviderErr) Name() string { return "failing" }

func (p *fakeOracleProviderErr) Analyze(ctx context.Context, promptText string, maxTokens int, temperature float64, model string) (string, oracle.Meta, error) {
	return "", oracle.Meta{}, p.err
}

func TestStartStopTransitionsThroughStates(t *testing.T) {
	view := baseBotView()
	view.CyclePeriod = 10 * time.Millisecond
	reply := `{"BTCUSDT": {"signal":"hold","confidence":0.1,"justification":"test"}}`
	e, _, _, _ := newTestEngine(t, view, reply, t.TempDir())

	require.NoError(t, e.Start(context.Background()))
	assert.Eventually(t, func() bool { return e.Status() == StatusRunning }, time.Second, time.Millisecond)

	e.Pause()
	assert.Equal(t, StatusPaused, e.Status())
	e.Resume()
	assert.Equal(t, StatusRunning, e.Status())

	e.Stop()
	assert.Equal(t, StatusStopped, e.Status())
}

func TestPromptDecisionZeroValueDefaultsToHold(t *testing.T) {
	var d prompt.Decision
	assert.Equal(t, "", d.Signal)
	assert.True(t, d.Confidence.IsZero())
}

type fakeTradeCounter struct {
	n   int
	err error
}

func (f *fakeTradeCounter) EntriesToday(ctx context.Context, botID string, now time.Time) (int, error) {
	return f.n, f.err
}

type fakeExitCounter struct {
	n      int
	err    error
	called bool
}

func (f *fakeExitCounter) ClosedToday(ctx context.Context, botID string, day time.Time) (int, error) {
	f.called = true
	return f.n, f.err
}

func TestRunCycleConsultsTradeAndExitCounters(t *testing.T) {
	view := baseBotView()
	view.Policy.MaxTradesPerDay = 1
	reply := `{"BTCUSDT": {"signal":"entry","side":"long","confidence":0.8,"size_pct":0.1,"entry_price":100000,"stop_loss":98000,"profit_target":104000,"justification":"test"}}`
	e, _, _, recorder := newTestEngine(t, view, reply, t.TempDir())

	trades := &fakeTradeCounter{n: 1}
	exits := &fakeExitCounter{n: 3}
	e.trades = trades
	e.exits = exits

	err := e.runCycle(context.Background(), view)
	require.NoError(t, err)
	assert.True(t, exits.called)
	require.Len(t, recorder.records, 1)
	assert.Equal(t, "frequency", recorder.records[0].Gated["BTCUSDT"])
}
