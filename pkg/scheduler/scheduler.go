// Package scheduler implements C9: the process-wide registry of
// running bots. It owns no trading logic — pkg/engine does — it only
// starts, stops, and isolates one independent Engine per bot_id, and
// rescans for bots that were left active across a process restart.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/zeromicro/go-zero/core/logx"

	"tradecore/pkg/engine"
)

// BotLister supplies the cold-start rescan of §4.9: every bot row
// whose status is active when the process boots, so a crash doesn't
// silently strand a bot in "database says active, nothing is running
// it" limbo.
type BotLister interface {
	ListActiveBotIDs(ctx context.Context) ([]string, error)
}

// EngineFactory builds a stopped Engine for botID. The Scheduler never
// constructs an Engine's dependencies itself — internal/svc wires
// those — it only calls this factory and manages the resulting
// handle's lifecycle.
type EngineFactory func(botID string) (*engine.Engine, error)

// Scheduler is the bot_id -> Engine registry of §4.9.
type Scheduler struct {
	mu      sync.RWMutex
	engines map[string]*engine.Engine
	factory EngineFactory
	lister  BotLister
}

// New constructs an empty Scheduler.
func New(factory EngineFactory, lister BotLister) *Scheduler {
	return &Scheduler{
		engines: make(map[string]*engine.Engine),
		factory: factory,
		lister:  lister,
	}
}

// StartBot builds and starts an Engine for botID, or is a no-op if one
// is already registered and neither StatusFailed nor StatusStopped.
// Each call isolates the
// engine's goroutine with a recover() so one bot's panic never takes
// down the Scheduler or any other bot's loop.
func (s *Scheduler) StartBot(ctx context.Context, botID string) error {
	s.mu.Lock()
	if existing, ok := s.engines[botID]; ok && existing.Status() != engine.StatusFailed && existing.Status() != engine.StatusStopped {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	e, err := s.buildEngine(botID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.engines[botID] = e
	s.mu.Unlock()

	s.runIsolated(ctx, botID, e)
	return nil
}

// buildEngine calls the factory with its own recover, so a factory
// panic (a misconfigured bot row, a nil collaborator) surfaces as an
// error to this one StartBot call instead of propagating.
func (s *Scheduler) buildEngine(botID string) (e *engine.Engine, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: building engine for bot %s panicked: %v", botID, r)
		}
	}()
	e, err = s.factory(botID)
	if err != nil {
		return nil, fmt.Errorf("scheduler: building engine for bot %s: %w", botID, err)
	}
	return e, nil
}

// runIsolated launches Engine.Start behind its own recover boundary,
// so a panic raised while starting is contained to this one bot.
// Engine.Start only launches the cycle loop on a separate goroutine;
// that loop recovers its own panics (a bug in a collaborator, not a
// designed error path), logs them and marks the engine StatusFailed.
func (s *Scheduler) runIsolated(ctx context.Context, botID string, e *engine.Engine) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logx.WithContext(ctx).Errorf("scheduler: bot %s engine panicked, quarantining: %v", botID, r)
			}
		}()
		if err := e.Start(ctx); err != nil {
			logx.WithContext(ctx).Errorf("scheduler: bot %s failed to start: %v", botID, err)
		}
	}()
}

// StopBot stops botID's engine if running. It blocks until the
// engine's loop has actually exited (Engine.Stop is itself
// synchronous), so a caller that StopBot then immediately reads
// position state sees a quiesced bot.
func (s *Scheduler) StopBot(botID string) error {
	s.mu.RLock()
	e, ok := s.engines[botID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("scheduler: bot %s is not registered", botID)
	}
	e.Stop()
	return nil
}

// PauseBot/ResumeBot toggle an already-running engine without
// tearing down its registry entry.
func (s *Scheduler) PauseBot(botID string) error {
	e, err := s.get(botID)
	if err != nil {
		return err
	}
	e.Pause()
	return nil
}

func (s *Scheduler) ResumeBot(botID string) error {
	e, err := s.get(botID)
	if err != nil {
		return err
	}
	e.Resume()
	return nil
}

func (s *Scheduler) get(botID string) (*engine.Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.engines[botID]
	if !ok {
		return nil, fmt.Errorf("scheduler: bot %s is not registered", botID)
	}
	return e, nil
}

// RunningBot reports one registered bot's status for ListRunning.
type RunningBot struct {
	BotID  string
	Status engine.Status
}

// ListRunning reports every registered bot and its current status.
func (s *Scheduler) ListRunning() []RunningBot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RunningBot, 0, len(s.engines))
	for id, e := range s.engines {
		out = append(out, RunningBot{BotID: id, Status: e.Status()})
	}
	return out
}

// ColdStartRescan starts an Engine for every bot the BotLister reports
// as active, so a bot left running across a process restart resumes
// automatically rather than requiring a manual StartBot call. One
// bot's rescan failure is logged and skipped; it never aborts the
// rest of the rescan.
func (s *Scheduler) ColdStartRescan(ctx context.Context) error {
	if s.lister == nil {
		return nil
	}
	ids, err := s.lister.ListActiveBotIDs(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: cold start rescan: %w", err)
	}
	logx.WithContext(ctx).Infof("scheduler: cold start rescan found %d active bots", len(ids))
	for _, id := range ids {
		if err := s.StartBot(ctx, id); err != nil {
			logx.WithContext(ctx).Errorf("scheduler: cold start failed to start bot %s: %v", id, err)
		}
	}
	return nil
}

// StopAll stops every registered bot, used during process shutdown.
func (s *Scheduler) StopAll() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.engines))
	for id := range s.engines {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = s.StopBot(id)
		}(id)
	}
	wg.Wait()
}
