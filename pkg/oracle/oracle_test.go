package oracle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/pkg/errs"
)

type fakeProvider struct {
	name  string
	text  string
	meta  Meta
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Analyze(ctx context.Context, prompt string, maxTokens int, temperature float64, model string) (string, Meta, error) {
	f.calls++
	if f.err != nil {
		return "", Meta{}, f.err
	}
	return f.text, f.meta, nil
}

func TestAnalyzeReturnsProviderReplyAndCachesIt(t *testing.T) {
	p := &fakeProvider{name: "primary", text: `{"ok":true}`, meta: Meta{Cost: 0.01}}
	cache := NewCache(10, 30*time.Second, nil, 0)
	o := New([]Provider{p}, cache, nil)

	text, meta, err := o.Analyze(context.Background(), "prompt", 100, 0.2, "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, text)
	assert.False(t, meta.CacheHit)
	assert.Equal(t, 1, p.calls)

	text2, meta2, err := o.Analyze(context.Background(), "prompt", 100, 0.2, "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, text, text2)
	assert.True(t, meta2.CacheHit)
	assert.Equal(t, 1, p.calls, "second call must be served from cache, not the provider")
}

func TestAnalyzeFallsBackOnAuthFailure(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errs.New(errs.KindAuthFailure, "x", "bad key")}
	fallback := &fakeProvider{name: "fallback", text: `{"ok":true}`}
	o := New([]Provider{primary, fallback}, nil, nil)

	text, meta, err := o.Analyze(context.Background(), "prompt", 100, 0.2, "model")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, text)
	assert.Equal(t, "fallback", meta.FallbackUsed)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestAnalyzeSynthesizesSafeHoldWhenAllProvidersFail(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errs.New(errs.KindAuthFailure, "x", "bad key")}
	fallback := &fakeProvider{name: "fallback", err: errs.New(errs.KindTransient, "y", "rate limited")}
	o := New([]Provider{primary, fallback}, nil, nil)

	_, meta, err := o.Analyze(context.Background(), "prompt", 100, 0.2, "model")
	require.NoError(t, err)
	assert.True(t, meta.SyntheticHold)
}

func TestAnalyzeDoesNotFallBackOnPermanentError(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errs.New(errs.KindPermanent, "x", "bad model")}
	fallback := &fakeProvider{name: "fallback", text: `{"ok":true}`}
	o := New([]Provider{primary, fallback}, nil, nil)

	_, meta, err := o.Analyze(context.Background(), "prompt", 100, 0.2, "model")
	require.NoError(t, err)
	assert.True(t, meta.SyntheticHold)
	assert.Equal(t, 0, fallback.calls, "permanent errors must not retry against the rest of the chain")
}

func TestCostTrackerGatesAfterDailyLimit(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewCostTracker(1.0).WithClock(func() time.Time { return now })

	assert.True(t, tracker.Allow())
	tracker.Record(0.6)
	assert.True(t, tracker.Allow())
	tracker.Record(0.6)
	assert.False(t, tracker.Allow())
}

func TestCostTrackerResetsOnNewUTCDay(t *testing.T) {
	day1 := time.Date(2026, 1, 1, 23, 59, 0, 0, time.UTC)
	cur := day1
	tracker := NewCostTracker(1.0).WithClock(func() time.Time { return cur })

	tracker.Record(1.0)
	assert.False(t, tracker.Allow())

	cur = day1.Add(2 * time.Minute) // crosses into 2026-01-02 UTC
	assert.True(t, tracker.Allow())
}

func TestAnalyzeSkipsProviderWhenBudgetExhausted(t *testing.T) {
	p := &fakeProvider{name: "primary", text: `{"ok":true}`}
	tracker := NewCostTracker(1.0)
	tracker.Record(10) // already over budget
	o := New([]Provider{p}, nil, tracker)

	_, meta, err := o.Analyze(context.Background(), "prompt", 100, 0.2, "model")
	require.NoError(t, err)
	assert.True(t, meta.SyntheticHold)
	assert.Equal(t, 0, p.calls)
}

func TestInMemorySharedStoreExpires(t *testing.T) {
	s := NewInMemorySharedStore()
	s.Set(context.Background(), "k", "v", -time.Second)
	_, ok := s.Get(context.Background(), "k")
	assert.False(t, ok)
}

// TestInMemorySharedStoreConcurrentAccess guards against the "fatal:
// concurrent map writes" crash a shared oracle cache would hit once
// more than one bot's engine goroutine calls Set/Get on the same
// instance, per §5's "thread-safe" requirement on the shared cache
// tier. Run with -race to exercise the guard.
func TestInMemorySharedStoreConcurrentAccess(t *testing.T) {
	s := NewInMemorySharedStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.Set(context.Background(), "k", "v", time.Minute)
		}(i)
		go func(i int) {
			defer wg.Done()
			s.Get(context.Background(), "k")
		}(i)
	}
	wg.Wait()
}
