// Package svc wires every collaborator C1-C9 need into one
// long-lived ServiceContext, the same shape the teacher's own
// internal/svc uses: config in, fully-constructed dependencies out,
// nothing else in the codebase reaches for a raw DSN or API key.
package svc

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver

	"tradecore/internal/config"
	"tradecore/internal/model"
	"tradecore/internal/repo"
	"tradecore/pkg/engine"
	"tradecore/pkg/exchange"
	_ "tradecore/pkg/exchange/hyperliquid"
	"tradecore/pkg/exchange/sim"
	"tradecore/pkg/journal"
	"tradecore/pkg/market"
	"tradecore/pkg/metrics"
	"tradecore/pkg/money"
	"tradecore/pkg/oracle"
	"tradecore/pkg/position"
	"tradecore/pkg/risk"
	"tradecore/pkg/scheduler"
	"tradecore/pkg/trade"
)

// ServiceContext bundles every wired collaborator the process needs:
// the DB connection, the model/repo layers over it, the per-provider
// exchange adapters, the oracle stack, and the scheduler that turns a
// bot row into a running Engine.
type ServiceContext struct {
	Config config.Config

	DBConn sqlx.SqlConn
	Repo   repo.Dependencies

	Oracle      *oracle.Oracle
	CostTracker *oracle.CostTracker
	Journal     *journal.Writer
	Scheduler   *scheduler.Scheduler

	// simProvider is kept so paper-mode callers (e.g. a data feeder
	// replaying historical prices) can push ticks into it; live bots
	// never touch it directly.
	simProvider *sim.Provider
}

// NewServiceContext wires c into a ServiceContext. DB-backed
// collaborators are only constructed when c.Postgres.DSN is set, so a
// dry paper-mode run (tests, local experimentation) never requires a
// live database.
func NewServiceContext(c *config.Config) *ServiceContext {
	svc := &ServiceContext{
		Config:      *c,
		simProvider: sim.New(sim.Config{SlippageBps: c.PaperSlippageBps}),
	}

	svc.Journal = journal.NewWriter("journal")
	svc.CostTracker = oracle.NewCostTracker(c.LLMDailyCostLimit)
	svc.Oracle = buildOracle(c, svc.CostTracker)

	if c.Postgres.DSN != "" {
		conn := sqlx.NewSqlConn("pgx", c.Postgres.DSN)
		svc.DBConn = conn

		cacheConf := buildCacheConf(c.Cache)
		svc.Repo = repo.Dependencies{
			DBConn:            conn,
			BotsModel:         model.NewBotsModel(conn, cacheConf),
			PositionsModel:    model.NewPositionsModel(conn, cacheConf),
			TradesModel:       model.NewTradesModel(conn, cacheConf),
			LLMDecisionsModel: model.NewLLMDecisionsModel(conn, cacheConf),
		}
	}

	var lister scheduler.BotLister
	if svc.Repo.BotsModel != nil {
		lister = repo.NewBotLister(svc.Repo)
	}
	svc.Scheduler = scheduler.New(svc.engineFactory, lister)
	return svc
}

// buildCacheConf mirrors go-zero's single-node CacheConf shape. An
// empty Host yields a zero-node CacheConf, which go-zero's cache.New
// treats as a pure passthrough (no row cache, every read hits
// Postgres) — acceptable for a dev/test process without Redis.
func buildCacheConf(c config.CacheConf) cache.CacheConf {
	if c.Host == "" {
		return cache.CacheConf{}
	}
	return cache.CacheConf{{
		RedisConf: redis.RedisConf{Host: c.Host, Type: "node", Pass: c.Pass},
		Weight:    100,
	}}
}

// buildOracle assembles the fallback provider chain plus its two-tier
// cache, per §4.4's contract. OpenAI is the documented default LLM
// backend; any further LLM_<NAME>_API_KEY entries register into the
// same fallback chain so a misconfigured primary degrades instead of
// halting every bot.
func buildOracle(c *config.Config, cost *oracle.CostTracker) *oracle.Oracle {
	var providers []oracle.Provider
	if key, ok := c.LLMAPIKeys["openai"]; ok && key != "" {
		providers = append(providers, oracle.NewOpenAIProvider("openai", key, "", 0.000002, nil))
	}
	for name, key := range c.LLMAPIKeys {
		if name == "openai" || key == "" {
			continue
		}
		providers = append(providers, oracle.NewOpenAIProvider(name, key, "", 0.000002, nil))
	}

	localTTL := time.Duration(c.LLMCacheTTLSeconds) * time.Second
	if localTTL <= 0 {
		localTTL = 30 * time.Second
	}
	var shared oracle.SharedStore
	if c.Cache.Host != "" {
		shared = oracle.NewRedisStore(redis.New(c.Cache.Host, redis.WithPass(c.Cache.Pass)))
	} else {
		shared = oracle.NewInMemorySharedStore()
	}
	oracleCache := oracle.NewCache(512, localTTL, shared, localTTL*10)
	return oracle.New(providers, oracleCache, cost)
}

// engineFactory builds a stopped Engine for botID, looking up its
// BotConfig for the collaborators a YAML-defined bot needs (exchange
// provider choice, initial capital) that don't live in the `bots`
// table itself. It is the scheduler.EngineFactory the Scheduler calls
// on every StartBot/ColdStartRescan.
func (s *ServiceContext) engineFactory(botID string) (*engine.Engine, error) {
	ctx := context.Background()
	botCfg := s.findBotConfig(botID)

	provider, err := s.buildProvider(botCfg)
	if err != nil {
		return nil, fmt.Errorf("svc: building exchange provider for bot %s: %w", botID, err)
	}

	var store position.Store
	var ledger trade.Ledger
	var source engine.BotSource
	var recorder engine.DecisionRecorder
	var capitalPersister engine.CapitalPersister
	var tradeCounter engine.TradeCounter
	var exitCounter engine.ExitCounter

	capital := money.FromFloat(botCfg.InitialCapital)
	feeRate := money.FromFloat(s.Config.PaperFeeRate)

	if s.Repo.BotsModel != nil {
		positionStore := repo.NewPositionStore(s.Repo)
		store = positionStore
		exitCounter = positionStore
		ledger = repo.NewTradeLedger(s.Repo)
		source = repo.NewBotSource(s.Repo)
		recorder = repo.NewDecisionRecorder(s.Repo)
		capitalPersister = repo.NewCapitalPersister(s.Repo)
		tradeCounter = repo.NewTradeLedger(s.Repo)

		if c, fr, _, err := repo.LoadAccount(ctx, s.Repo, botID); err == nil {
			capital, feeRate = c, fr
		} else {
			logx.Infof("svc: bot %s has no persisted capital yet, seeding from config: %v", botID, err)
		}
	} else {
		store = position.NewInMemoryStore()
		ledger = trade.NewInMemoryLedger()
		source = staticBotSource{cfg: botCfg}
	}

	account := trade.NewAccount(botID, capital, feeRate)
	executor := trade.NewExecutor(provider, store, ledger)

	e := engine.New(botID, engine.Deps{
		Source:           source,
		Feed:             market.NewFeed(provider),
		Store:            store,
		Executor:         executor,
		Account:          account,
		Oracle:           s.Oracle,
		Recorder:         recorder,
		CapitalPersister: capitalPersister,
		TradeCounter:     tradeCounter,
		ExitCounter:      exitCounter,
		Journal:          s.Journal,
	})
	return e, nil
}

// buildProvider selects sim vs. a live venue per BotConfig.ExchangeProvider,
// falling back to the shared paper simulator when a bot is configured
// for paper trading or names no provider at all.
func (s *ServiceContext) buildProvider(botCfg config.BotConfig) (exchange.Provider, error) {
	if botCfg.PaperTrading || botCfg.ExchangeProvider == "" || botCfg.ExchangeProvider == "sim" {
		return s.simProvider, nil
	}
	key := s.Config.ExchangeKeys[botCfg.ExchangeProvider]
	return exchange.New(botCfg.ExchangeProvider, map[string]any{
		"private_key": key,
		"testnet":     s.Config.IsTestEnv(),
	})
}

func (s *ServiceContext) findBotConfig(botID string) config.BotConfig {
	for _, b := range s.Config.Bots {
		if b.ID == botID {
			return b
		}
	}
	return config.BotConfig{ID: botID, PaperTrading: true}
}

// staticBotSource serves a BotView straight out of YAML, for
// processes running without Postgres (local paper-mode experiments).
// It never mutates capital across cycles; that fidelity only exists
// once internal/repo is wired in.
type staticBotSource struct {
	cfg config.BotConfig
}

func (b staticBotSource) Load(ctx context.Context, botID string) (*engine.BotView, error) {
	c := b.cfg
	return &engine.BotView{
		ID:      botID,
		Active:  true,
		Symbols: c.Symbols,
		Policy: risk.BotPolicy{
			MaxPositionPct:  money.FromFloat(c.MaxPositionPct),
			MaxExposurePct:  money.FromFloat(c.MaxExposurePct),
			MaxDrawdownPct:  money.FromFloat(c.MaxDrawdownPct),
			MaxTradesPerDay: c.MaxTradesPerDay,
			MinRRRatio:      money.FromFloat(c.MinRRRatio),
		},
		TimeframeShort:           c.TimeframeShort,
		TimeframeLong:            c.TimeframeLong,
		CandleLookback:           c.CandleLookback,
		CyclePeriod:              time.Duration(c.CyclePeriodSeconds) * time.Second,
		EntryConfidenceThreshold: money.FromFloat(c.EntryConfidenceThreshold),
		ForceCloseOnStop:         c.ForceCloseOnStop,
		Model:                    c.Model,
		MaxTokens:                c.MaxTokens,
		Temperature:              c.Temperature,
		StopLossPct:              money.FromFloat(c.StopLossPct),
		TakeProfitPct:            money.FromFloat(c.TakeProfitPct),
		InitialCapital:           money.FromFloat(c.InitialCapital),
	}, nil
}

// MustRegisterMetrics wires pkg/metrics' collectors into reg. Called
// once from cmd/tradecore, never from tests (a second call against
// the same registry panics on duplicate registration).
func (s *ServiceContext) MustRegisterMetrics(reg prometheus.Registerer) {
	metrics.MustRegister(reg)
}
