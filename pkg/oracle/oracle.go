// Package oracle implements C4: the LLM adapter the engine treats as
// an untrusted advisor. It owns the three-tier cache, the
// provider-fallback chain, and the daily cost budget; callers only
// ever see Analyze, never a raw provider error.
package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"tradecore/pkg/errs"
)

// Meta accompanies every Analyze call per §4.4's contract.
type Meta struct {
	TokensIn     int
	TokensOut    int
	Cost         float64
	Latency      time.Duration
	Provider     string
	CacheHit     bool
	FallbackUsed string // name of the provider actually used, or "" if primary
	SyntheticHold bool
}

// Provider is a single LLM backend. Implementations classify their own
// errors via pkg/errs: errs.KindAuthFailure and errs.KindTransient
// (rate limiting) trigger fallback to the next configured provider;
// errs.KindPermanent does not.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, prompt string, maxTokens int, temperature float64, model string) (string, Meta, error)
}

// CostTracker gates spend against a daily UTC budget. It is safe for
// concurrent use.
type CostTracker struct {
	mu         sync.Mutex
	limit      float64
	day        time.Time
	spentToday float64
	clock      func() time.Time
}

// NewCostTracker constructs a tracker with the given daily limit in
// the same currency unit Meta.Cost reports. A non-positive limit
// disables budget gating entirely.
func NewCostTracker(limit float64) *CostTracker {
	return &CostTracker{limit: limit, clock: time.Now}
}

// WithClock overrides the tracker's clock (test hook).
func (c *CostTracker) WithClock(clock func() time.Time) *CostTracker {
	c.clock = clock
	return c
}

func (c *CostTracker) resetIfNewDay() {
	now := c.clock().UTC()
	y, m, d := now.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if !dayStart.Equal(c.day) {
		c.day = dayStart
		c.spentToday = 0
	}
}

// Allow reports whether the budget has headroom for another call.
func (c *CostTracker) Allow() bool {
	if c.limit <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetIfNewDay()
	return c.spentToday < c.limit
}

// Record adds cost to today's running total.
func (c *CostTracker) Record(cost float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetIfNewDay()
	c.spentToday += cost
}

// Oracle wires the cache tiers, the provider fallback chain, and the
// cost tracker into the single call the engine makes each cycle.
type Oracle struct {
	providers []Provider
	cache     *Cache
	cost      *CostTracker
}

// New constructs an Oracle. providers are tried in order on
// AuthFailure/RateLimited(Transient); cache may be nil to disable
// caching; cost may be nil to disable budget gating.
func New(providers []Provider, cache *Cache, cost *CostTracker) *Oracle {
	return &Oracle{providers: providers, cache: cache, cost: cost}
}

// Analyze implements §4.4's contract end to end: cache lookup, cost
// gate, fallback chain, and — if every provider fails — a synthetic
// safe-hold so the engine never sees a raw provider exception.
func (o *Oracle) Analyze(ctx context.Context, prompt string, maxTokens int, temperature float64, model string) (string, Meta, error) {
	key := Key(model, prompt, maxTokens, temperature)

	if o.cache != nil {
		if text, ok := o.cache.Get(key); ok {
			return text, Meta{CacheHit: true}, nil
		}
	}

	if o.cost != nil && !o.cost.Allow() {
		logx.WithContext(ctx).Info("oracle: daily cost budget exceeded, synthesizing safe-hold")
		return safeHoldText(), Meta{SyntheticHold: true}, nil
	}

	var lastErr error
	for i, p := range o.providers {
		start := time.Now()
		text, meta, err := p.Analyze(ctx, prompt, maxTokens, temperature, model)
		if err == nil {
			meta.Latency = time.Since(start)
			meta.Provider = p.Name()
			if i > 0 {
				meta.FallbackUsed = p.Name()
			}
			if o.cache != nil {
				o.cache.Set(key, text)
			}
			if o.cost != nil {
				o.cost.Record(meta.Cost)
			}
			return text, meta, nil
		}
		lastErr = err
		kind := errs.KindOf(err)
		if kind != errs.KindAuthFailure && kind != errs.KindTransient {
			// Permanent provider failure: no point trying the rest of
			// the chain with the same bad request.
			break
		}
		logx.WithContext(ctx).Infof("oracle: provider %s failed (%s), trying next", p.Name(), kind)
	}

	logx.WithContext(ctx).Errorf("oracle: all providers exhausted, synthesizing safe-hold: %v", lastErr)
	return safeHoldText(), Meta{SyntheticHold: true}, nil
}

// safeHoldText is the synthetic reply the parser turns into a
// confidence-0, signal=hold decision for every symbol when no
// provider is reachable.
func safeHoldText() string {
	return `{"decisions": {}, "safe_hold": true, "reason": "oracle unavailable"}`
}
