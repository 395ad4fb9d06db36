// Package engine implements C8: the per-bot cycle orchestrator. One
// Engine drives one bot through Stopped → Starting → Running →
// (Paused ↔ Running) → Stopping → Stopped, running the documented
// eight-step cycle — reload, exit checks, snapshot, prompt, oracle,
// parse, gate+execute, persist — on its own independent loop.
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"tradecore/pkg/errs"
	"tradecore/pkg/exchange"
	"tradecore/pkg/indicators"
	"tradecore/pkg/journal"
	"tradecore/pkg/market"
	"tradecore/pkg/metrics"
	"tradecore/pkg/money"
	"tradecore/pkg/oracle"
	"tradecore/pkg/position"
	"tradecore/pkg/prompt"
	"tradecore/pkg/risk"
	"tradecore/pkg/trade"
)

// Status is the engine's place in the state machine of §4.8.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
	StatusStopping Status = "stopping"
	StatusFailed   Status = "failed" // InvariantViolation or consecutive-failure quarantine
)

const defaultEntryConfidenceThreshold = "0.55"

// BotView is the authoritative, freshly-reloaded bot row the engine
// consults at the top of every cycle. Never cache this between
// cycles — that is exactly the bug §4.8 rules out.
type BotView struct {
	ID                       string
	Active                   bool
	Policy                   risk.BotPolicy
	Symbols                  []string
	TimeframeShort           string
	TimeframeLong            string
	CandleLookback           int
	CyclePeriod              time.Duration
	EntryConfidenceThreshold money.Decimal
	ForceCloseOnStop         bool
	Model                    string
	MaxTokens                int
	Temperature              float64
	StopLossPct              money.Decimal
	TakeProfitPct            money.Decimal
	InitialCapital           money.Decimal
}

// BotSource loads the authoritative bot row. The production
// implementation lives in internal/repo; tests inject a fake.
type BotSource interface {
	Load(ctx context.Context, botID string) (*BotView, error)
}

// DecisionRecorder persists the audit row of §3's LLMDecision after
// every cycle (including failed and fallback cycles).
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, rec *DecisionRecord) error
}

// CapitalPersister writes the Account's live cash balance back to
// durable storage after a cycle mutates it. Account.Capital is the one
// long-lived mutable value an Engine holds across cycles; this is how
// that value survives a process restart without the engine ever
// re-reading it mid-cycle (which would reintroduce the "lazy entity
// re-used across awaits" fault the redesign notes call out).
type CapitalPersister interface {
	PersistCapital(ctx context.Context, botID string, capital money.Decimal) error
}

// TradeCounter backs the RiskGate's max_trades_per_day check (§4.5)
// with the durable entry count for today, rather than the liveness
// probe pkg/engine's own tests use. Optional: nil falls back to that
// probe.
type TradeCounter interface {
	EntriesToday(ctx context.Context, botID string, now time.Time) (int, error)
}

// ExitCounter reports how many positions a bot has closed since UTC
// midnight, surfaced as the ClosedPositionsToday gauge rather than fed
// back into the RiskGate (§4.5 only bounds new entries). Optional: nil
// skips the gauge update.
type ExitCounter interface {
	ClosedToday(ctx context.Context, botID string, day time.Time) (int, error)
}

// DecisionRecord is one LLMDecision audit row.
type DecisionRecord struct {
	BotID          string
	Timestamp      time.Time
	PromptHash     string
	RawReply       string
	FallbackUsed   string
	SyntheticHold  bool
	CacheHit       bool
	Decisions      map[string]prompt.Decision
	Gated          map[string]string // symbol -> reject reason
	Actions        []journal.ActionRecord
	Success        bool
	ErrorKind      string
	ErrorMessage   string
	DurationMillis int64
}

// Engine runs one bot's cycle loop. It owns no shared mutable state
// except Account, which TradeExecutor mutates under its own lock.
type Engine struct {
	botID string

	source   BotSource
	feed     *market.Feed
	store    position.Store
	executor *trade.Executor
	account  *trade.Account
	oracle   *oracle.Oracle
	recorder DecisionRecorder
	capitals CapitalPersister
	trades   TradeCounter
	exits    ExitCounter
	writer   *journal.Writer

	maxConsecutiveFailures int

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	done   chan struct{}

	clock func() time.Time
}

// Deps bundles an Engine's collaborators so the Scheduler's
// construction call stays short.
type Deps struct {
	Source                 BotSource
	Feed                   *market.Feed
	Store                  position.Store
	Executor               *trade.Executor
	Account                *trade.Account
	Oracle                 *oracle.Oracle
	Recorder               DecisionRecorder
	CapitalPersister       CapitalPersister // optional; nil keeps capital in-memory only
	TradeCounter           TradeCounter     // optional; nil falls back to a liveness probe
	ExitCounter            ExitCounter      // optional; nil skips the ClosedPositionsToday gauge
	Journal                *journal.Writer
	MaxConsecutiveFailures int // default 5
}

// New constructs a stopped Engine for botID.
func New(botID string, deps Deps) *Engine {
	maxFailures := deps.MaxConsecutiveFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	return &Engine{
		botID:                  botID,
		source:                 deps.Source,
		feed:                   deps.Feed,
		store:                  deps.Store,
		executor:               deps.Executor,
		account:                deps.Account,
		oracle:                 deps.Oracle,
		recorder:               deps.Recorder,
		capitals:               deps.CapitalPersister,
		trades:                 deps.TradeCounter,
		exits:                  deps.ExitCounter,
		writer:                 deps.Journal,
		maxConsecutiveFailures: maxFailures,
		status:                 StatusStopped,
		clock:                  time.Now,
	}
}

// WithClock overrides the engine's clock for deterministic tests.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Status reports the engine's current state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Start transitions Stopped → Starting → Running and launches the
// cycle loop as an independent goroutine. It is a no-op if the engine
// is already running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.status == StatusRunning || e.status == StatusStarting {
		e.mu.Unlock()
		return nil
	}
	e.status = StatusStarting
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.mu.Unlock()

	go e.runLoop(runCtx)
	return nil
}

// Pause flips Running → Paused: the loop keeps waking once a second
// but runs no cycle at all (no exit checks, no oracle call, no
// entries) until Resume.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == StatusRunning {
		e.status = StatusPaused
	}
}

// Resume flips Paused → Running.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == StatusPaused {
		e.status = StatusRunning
	}
}

// Stop cancels the loop's context and blocks until the loop has
// exited. A cycle in progress sees the same cancellation: retry
// backoffs end early, and context-aware exchange and oracle calls may
// return before they complete.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.status == StatusStopped || e.cancel == nil {
		e.mu.Unlock()
		return
	}
	e.status = StatusStopping
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	cancel()
	<-done

	e.mu.Lock()
	e.status = StatusStopped
	e.mu.Unlock()
}

func (e *Engine) setStatus(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

// runLoop is the independent per-bot task of §4.9: it runs cycles
// until the bot is deactivated, Stop() is called, or consecutive
// failures trip the quarantine.
func (e *Engine) runLoop(ctx context.Context) {
	defer close(e.done)
	defer func() {
		if r := recover(); r != nil {
			logx.WithContext(ctx).Errorf("engine: bot %s cycle loop panicked, marking failed: %v", e.botID, r)
			e.setStatus(StatusFailed)
		}
	}()
	e.setStatus(StatusRunning)

	consecutiveFailures := 0
	cyclePeriod := 5 * time.Minute // fallback until the first successful reload

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if e.Status() == StatusPaused {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		view, err := e.reload(ctx)
		if err != nil {
			if errs.KindOf(err) == errs.KindPermanent {
				logx.WithContext(ctx).Errorf("engine: bot %s permanent reload failure, stopping: %v", e.botID, err)
				e.setStatus(StatusFailed)
				return
			}
			consecutiveFailures++
			logx.WithContext(ctx).Errorf("engine: bot %s reload failed (%d/%d): %v", e.botID, consecutiveFailures, e.maxConsecutiveFailures, err)
			if consecutiveFailures >= e.maxConsecutiveFailures {
				e.setStatus(StatusFailed)
				return
			}
			e.sleep(ctx, cyclePeriod)
			continue
		}
		if !view.Active {
			return
		}
		cyclePeriod = view.CyclePeriod
		if cyclePeriod <= 0 {
			cyclePeriod = 5 * time.Minute
		}
		if view.EntryConfidenceThreshold.IsZero() {
			view.EntryConfidenceThreshold = money.Must(defaultEntryConfidenceThreshold)
		}

		if err := e.runCycle(ctx, view); err != nil {
			if errs.KindOf(err) == errs.KindInvariantViolation {
				logx.WithContext(ctx).Errorf("engine: bot %s invariant violation, halting: %v", e.botID, err)
				e.setStatus(StatusFailed)
				return
			}
			consecutiveFailures++
			logx.WithContext(ctx).Errorf("engine: bot %s cycle failed (%d/%d): %v", e.botID, consecutiveFailures, e.maxConsecutiveFailures, err)
			if consecutiveFailures >= e.maxConsecutiveFailures {
				e.setStatus(StatusFailed)
				return
			}
		} else {
			consecutiveFailures = 0
		}

		e.sleep(ctx, cyclePeriod)
	}
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (e *Engine) reload(ctx context.Context) (*BotView, error) {
	var view *BotView
	err := withRetry(ctx, func() error {
		v, err := e.source.Load(ctx, e.botID)
		if err != nil {
			return err
		}
		view = v
		return nil
	})
	return view, err
}

// runCycle implements §4.8's eight numbered steps for one tick.
func (e *Engine) runCycle(ctx context.Context, view *BotView) error {
	start := e.clock()
	rec := &DecisionRecord{BotID: e.botID, Timestamp: start}
	var jActions []journal.ActionRecord
	gated := make(map[string]string)

	// Step 1/2 (reload, active check) already happened in runLoop.
	// Step 3: exit checks over existing open positions, strictly
	// before any new entry this cycle.
	open, err := e.store.OpenFor(ctx, e.botID)
	if err != nil {
		return e.finishCycle(ctx, rec, jActions, gated, start, errs.Wrap(errs.KindTransient, "engine.runCycle", "open_for failed", err))
	}
	openBySymbol := make(map[string]*position.Position, len(open))
	exitedThisCycle := make(map[string]bool)
	for _, p := range open {
		var last money.Decimal
		err := withRetry(ctx, func() error {
			t, ferr := e.feed.FetchTicker(ctx, p.Symbol)
			if ferr != nil {
				return ferr
			}
			last = t.Last
			return nil
		})
		if err != nil {
			logx.WithContext(ctx).Errorf("engine: bot %s symbol %s price fetch failed, skipping exit check: %v", e.botID, p.Symbol, err)
			openBySymbol[p.Symbol] = p
			continue
		}
		e.store.Mark(ctx, p, last)
		reason := position.CheckExitTriggers(p, e.clock())
		if reason == position.ExitNone {
			openBySymbol[p.Symbol] = p
			continue
		}
		realizedPnL, execErr := e.executor.ExecuteExit(ctx, e.account, p, reason)
		if execErr != nil {
			logx.WithContext(ctx).Errorf("engine: bot %s symbol %s exit execution failed: %v", e.botID, p.Symbol, execErr)
			openBySymbol[p.Symbol] = p
			continue
		}
		exitedThisCycle[p.Symbol] = true
		jActions = append(jActions, journal.ActionRecord{
			Kind: "exit", Symbol: p.Symbol, Side: string(p.Side),
			Price: p.CurrentPrice.String(), RealizedPnL: realizedPnL.String(), Reason: string(reason),
		})
	}

	// Step 4: multi-timeframe snapshot per configured symbol.
	symbolViews := make([]prompt.SymbolView, 0, len(view.Symbols))
	currentPrices := make(map[string]money.Decimal, len(view.Symbols))
	for _, symbol := range view.Symbols {
		var snap *market.Snapshot
		err := withRetry(ctx, func() error {
			s, serr := e.feed.SnapshotMultiTimeframe(ctx, symbol, view.TimeframeShort, view.TimeframeLong, view.CandleLookback)
			if serr != nil {
				return serr
			}
			snap = s
			return nil
		})
		if err != nil {
			logx.WithContext(ctx).Errorf("engine: bot %s symbol %s data unavailable, skipping this cycle: %v", e.botID, symbol, err)
			continue
		}
		currentPrices[symbol] = snap.Last

		sv := prompt.SymbolView{
			Symbol:          symbol,
			LastPrice:       snap.Last,
			FundingRate:     snap.FundingRate,
			OpenInterest:    snap.OpenInterest,
			IndicatorsShort: computeIndicatorSet(snap.ShortCandles),
			IndicatorsLong:  computeIndicatorSet(snap.LongCandles),
		}
		if p, ok := openBySymbol[symbol]; ok {
			sv.OpenPosition = &prompt.PositionView{
				Side: string(p.Side), Quantity: p.Quantity, EntryPrice: p.EntryPrice,
				CurrentPrice: p.CurrentPrice, UnrealizedPnL: p.UnrealizedPnL(), UnrealizedPnLPct: p.PnLPct(),
			}
		}
		symbolViews = append(symbolViews, sv)
	}

	// Step 5: one prompt for the whole symbol set.
	portfolioView := e.buildPortfolioView(openBySymbol)
	riskView := prompt.RiskPolicyView{
		MaxPositionPct:  view.Policy.MaxPositionPct.InexactFloat64(),
		MaxExposurePct:  view.Policy.MaxExposurePct.InexactFloat64(),
		MaxDrawdownPct:  view.Policy.MaxDrawdownPct.InexactFloat64(),
		MaxTradesPerDay: view.Policy.MaxTradesPerDay,
		StopLossPct:     view.StopLossPct.InexactFloat64(),
		TakeProfitPct:   view.TakeProfitPct.InexactFloat64(),
		MinRRRatio:      view.Policy.MinRRRatio.InexactFloat64(),
	}
	promptText := prompt.Render(start.UTC().Format(time.RFC3339), symbolViews, portfolioView, riskView)
	rec.PromptHash = prompt.Hash(promptText, view.Model, view.MaxTokens, view.Temperature)

	replyText, meta, err := e.oracle.Analyze(ctx, promptText, view.MaxTokens, view.Temperature, view.Model)
	if err != nil {
		return e.finishCycle(ctx, rec, jActions, gated, start, errs.Wrap(errs.KindTransient, "engine.runCycle", "oracle analyze failed", err))
	}
	rec.RawReply = replyText
	rec.FallbackUsed = meta.FallbackUsed
	rec.SyntheticHold = meta.SyntheticHold
	rec.CacheHit = meta.CacheHit

	cacheHitLabel := "false"
	if meta.CacheHit {
		cacheHitLabel = "true"
	}
	metrics.OracleCost.WithLabelValues(e.botID, meta.Provider).Add(meta.Cost)
	metrics.OracleLatency.WithLabelValues(e.botID, meta.Provider, cacheHitLabel).Observe(meta.Latency.Seconds())

	var decisions map[string]prompt.Decision
	if meta.SyntheticHold {
		decisions = holdAll(view.Symbols, currentPrices)
	} else {
		decisions, err = prompt.Parse(replyText, currentPrices, prompt.Defaults{StopLossPct: view.StopLossPct, TakeProfitPct: view.TakeProfitPct})
		if err != nil {
			return e.finishCycle(ctx, rec, jActions, gated, start, errs.Wrap(errs.KindTransient, "engine.runCycle", "parse failed", err))
		}
	}
	rec.Decisions = decisions

	// Step 6: gate and execute, in deterministic symbol order so the
	// exit-before-entry ordering guarantee never depends on map
	// iteration order.
	symbols := make([]string, 0, len(decisions))
	for s := range decisions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		d := decisions[symbol]
		if d.Signal == "hold" || d.Confidence.Cmp(view.EntryConfidenceThreshold) < 0 {
			continue
		}
		if exitedThisCycle[symbol] {
			// A symbol exited this cycle cannot also be re-entered —
			// the ordering guarantee of §4.8.
			continue
		}

		switch d.Signal {
		case "exit":
			p, isOpen := openBySymbol[symbol]
			if !isOpen {
				continue
			}
			realizedPnL, execErr := e.executor.ExecuteExit(ctx, e.account, p, position.ExitOracle)
			if execErr != nil {
				logx.WithContext(ctx).Errorf("engine: bot %s symbol %s oracle exit failed: %v", e.botID, symbol, execErr)
				continue
			}
			delete(openBySymbol, symbol)
			jActions = append(jActions, journal.ActionRecord{
				Kind: "exit", Symbol: symbol, Side: string(p.Side),
				Price: p.CurrentPrice.String(), RealizedPnL: realizedPnL.String(), Reason: "oracle",
			})

		case "entry":
			if _, isOpen := openBySymbol[symbol]; isOpen {
				continue // one position per symbol at a time
			}
			proposal := risk.Proposal{Side: d.Side, SizePct: d.SizePct, EntryPrice: d.EntryPrice, StopLoss: d.StopLoss, ProfitTarget: d.ProfitTarget}
			portfolio := e.buildRiskPortfolio(ctx, view, openBySymbol)
			verdict := risk.Validate(view.Policy, portfolio, proposal)
			if !verdict.Ok {
				gated[symbol] = verdict.Reason
				continue
			}
			qty, sizeErr := risk.SizeFor(e.account.Snapshot(), d.SizePct, d.Confidence, d.EntryPrice)
			if sizeErr != nil {
				gated[symbol] = "size_computation_failed"
				continue
			}
			side := position.SideLong
			if d.Side == "short" {
				side = position.SideShort
			}
			pos, execErr := e.executor.ExecuteEntry(ctx, e.account, symbol, side, qty, d.EntryPrice, d.StopLoss, d.ProfitTarget, 1)
			if execErr != nil {
				if errs.KindOf(execErr) == errs.KindInsufficientCapital {
					gated[symbol] = "insufficient_capital"
					continue
				}
				logx.WithContext(ctx).Errorf("engine: bot %s symbol %s entry execution failed: %v", e.botID, symbol, execErr)
				continue
			}
			openBySymbol[symbol] = pos
			jActions = append(jActions, journal.ActionRecord{
				Kind: "entry", Symbol: symbol, Side: string(side), Size: qty.String(), Price: pos.EntryPrice.String(),
			})
		}
	}

	metrics.OpenPositions.WithLabelValues(e.botID).Set(float64(len(openBySymbol)))
	if e.exits != nil {
		if n, err := e.exits.ClosedToday(ctx, e.botID, e.clock()); err == nil {
			metrics.ClosedPositionsToday.WithLabelValues(e.botID).Set(float64(n))
		} else {
			logx.WithContext(ctx).Errorf("engine: bot %s closed-today count failed: %v", e.botID, err)
		}
	}
	return e.finishCycle(ctx, rec, jActions, gated, start, nil)
}

func (e *Engine) finishCycle(ctx context.Context, rec *DecisionRecord, actions []journal.ActionRecord, gated map[string]string, start time.Time, cycleErr error) error {
	rec.Actions = actions
	rec.Gated = gated
	rec.DurationMillis = e.clock().Sub(start).Milliseconds()
	rec.Success = cycleErr == nil
	if cycleErr != nil {
		rec.ErrorKind = errs.KindOf(cycleErr).String()
		rec.ErrorMessage = cycleErr.Error()
	}

	if e.recorder != nil {
		if err := e.recorder.RecordDecision(ctx, rec); err != nil {
			logx.WithContext(ctx).Errorf("engine: bot %s decision record write failed: %v", e.botID, err)
		}
	}
	if e.capitals != nil {
		if err := e.capitals.PersistCapital(ctx, e.botID, e.account.Snapshot()); err != nil {
			logx.WithContext(ctx).Errorf("engine: bot %s capital persist failed: %v", e.botID, err)
		}
	}

	outcome := "success"
	if cycleErr != nil {
		outcome = "failure"
	}
	metrics.CyclesTotal.WithLabelValues(e.botID, outcome).Inc()
	metrics.CycleDuration.WithLabelValues(e.botID, outcome).Observe(float64(rec.DurationMillis) / 1000)
	metrics.Capital.WithLabelValues(e.botID).Set(e.account.Snapshot().InexactFloat64())
	for _, reason := range gated {
		metrics.RiskRejections.WithLabelValues(e.botID, reason).Inc()
	}
	if e.writer != nil {
		rejections := make([]journal.RejectionRecord, 0, len(gated))
		for symbol, reason := range gated {
			rejections = append(rejections, journal.RejectionRecord{Symbol: symbol, Check: "risk_gate", Reason: reason})
		}
		jrec := &journal.CycleRecord{
			BotID: e.botID, Timestamp: start, PromptDigest: rec.PromptHash, OracleText: rec.RawReply, OracleCacheHit: rec.CacheHit,
			Rejections: rejections, Actions: actions, Success: rec.Success, ErrorKind: rec.ErrorKind,
			ErrorMessage: rec.ErrorMessage, DurationMillis: rec.DurationMillis,
		}
		if _, err := e.writer.WriteCycle(jrec); err != nil {
			logx.WithContext(ctx).Errorf("engine: bot %s journal write failed: %v", e.botID, err)
		}
	}
	return cycleErr
}

func (e *Engine) buildPortfolioView(open map[string]*position.Position) prompt.PortfolioView {
	cash := e.account.Snapshot()
	invested := money.Zero
	unrealized := money.Zero
	for _, p := range open {
		invested = invested.Add(p.EntryPrice.Mul(p.Quantity))
		unrealized = unrealized.Add(p.UnrealizedPnL())
	}
	equity := cash.Add(invested).Add(unrealized)
	return prompt.PortfolioView{Cash: cash, Invested: invested, Equity: equity, ReturnPct: money.Zero}
}

func (e *Engine) buildRiskPortfolio(ctx context.Context, view *BotView, open map[string]*position.Position) risk.Portfolio {
	cash := e.account.Snapshot()
	invested := money.Zero
	unrealized := money.Zero
	for _, p := range open {
		invested = invested.Add(p.EntryPrice.Mul(p.Quantity))
		unrealized = unrealized.Add(p.UnrealizedPnL())
	}
	tradesToday := 0
	if e.trades != nil {
		if n, err := e.trades.EntriesToday(ctx, e.botID, e.clock()); err == nil {
			tradesToday = n
		} else {
			logx.WithContext(ctx).Errorf("engine: bot %s trade count failed, treating as 0: %v", e.botID, err)
		}
	} else {
		// Tests without a TradeCounter fake lean on RealizedPnLToday
		// purely as a liveness probe against the store fake.
		_, _ = e.store.RealizedPnLToday(ctx, e.botID, e.clock())
	}
	initialCapital := view.InitialCapital
	if initialCapital.IsZero() {
		initialCapital = cash.Add(invested).Add(unrealized)
	}
	return risk.Portfolio{
		Capital:          cash,
		InitialCapital:   initialCapital,
		InvestedNotional: invested,
		Equity:           cash.Add(invested).Add(unrealized),
		TradesToday:      tradesToday,
	}
}

// holdAll synthesizes a confidence-0 hold Decision for every
// configured symbol when the oracle returned a safe-hold.
func holdAll(symbols []string, currentPrices map[string]money.Decimal) map[string]prompt.Decision {
	out := make(map[string]prompt.Decision, len(symbols))
	for _, s := range symbols {
		out[s] = prompt.Decision{Symbol: s, Signal: "hold", Confidence: money.Zero, EntryPrice: currentPrices[s], Justification: "oracle unavailable"}
	}
	return out
}

// candleFloats converts a money.Decimal candle series into the plain
// float64 OHLCV the indicators package operates on. Indicators are
// display-only inputs to the prompt, never used in capital math, so
// this conversion never touches the P1 invariant.
func candleFloats(candles []exchange.Candle) []indicators.Kline {
	out := make([]indicators.Kline, len(candles))
	for i, c := range candles {
		out[i] = indicators.Kline{
			Open:   c.Open.InexactFloat64(),
			High:   c.High.InexactFloat64(),
			Low:    c.Low.InexactFloat64(),
			Close:  c.Close.InexactFloat64(),
			Volume: c.Volume.InexactFloat64(),
		}
	}
	return out
}

// computeIndicatorSet runs the full named indicator battery over one
// timeframe's candles, producing the series the prompt template
// renders. Every series is the same length as candles, NaN-padded
// during warmup per pkg/indicators' contract.
func computeIndicatorSet(candles []exchange.Candle) map[string][]float64 {
	klines := candleFloats(candles)
	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}

	macd := indicators.MACD(closes, 12, 26, 9)
	boll := indicators.Bollinger(closes, 20, 2.0)
	stoch := indicators.Stochastic(klines, 14, 3)

	return map[string][]float64{
		"sma_20":      indicators.SMA(closes, 20),
		"sma_50":      indicators.SMA(closes, 50),
		"ema_12":      indicators.EMA(closes, 12),
		"ema_26":      indicators.EMA(closes, 26),
		"rsi_14":      indicators.RSI(closes, 14),
		"macd":        macd.MACD,
		"macd_signal": macd.Signal,
		"macd_hist":   macd.Histogram,
		"atr_14":      indicators.ATR(klines, 14),
		"boll_upper":  boll.Upper,
		"boll_middle": boll.Middle,
		"boll_lower":  boll.Lower,
		"stoch_k":     stoch.K,
		"stoch_d":     stoch.D,
		"obv":         indicators.OBV(klines),
		"vwap":        indicators.VWAP(klines),
		"adx_14":      indicators.ADX(klines, 14),
	}
}
