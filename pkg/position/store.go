package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradecore/pkg/money"
)

// Store is the persistence contract C6 exposes to the engine. The
// production implementation lives in internal/repo, backed by
// Postgres; InMemoryStore below is a deterministic fake used in tests
// and paper-mode dry runs.
type Store interface {
	OpenFor(ctx context.Context, botID string) ([]*Position, error)
	Open(ctx context.Context, p *Position) error
	Mark(ctx context.Context, p *Position, price money.Decimal) error
	Close(ctx context.Context, p *Position, exitPrice, realizedPnL money.Decimal, reason ExitReason, now time.Time) error
	TotalExposure(ctx context.Context, botID string) (money.Decimal, error)
	RealizedPnLToday(ctx context.Context, botID string, day time.Time) (money.Decimal, error)
}

// InMemoryStore is a Store backed by a plain map, guarded by a mutex
// so concurrent engines (one per bot, never touching each other's
// bot_id) never race on the shared map structure itself.
type InMemoryStore struct {
	mu        sync.Mutex
	positions map[string]*Position // by id
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{positions: make(map[string]*Position)}
}

func (s *InMemoryStore) OpenFor(ctx context.Context, botID string) ([]*Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Position
	for _, p := range s.positions {
		if p.BotID == botID && p.Status == StatusOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Open(ctx context.Context, p *Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		return fmt.Errorf("position: cannot open without id")
	}
	s.positions[p.ID] = p
	return nil
}

func (s *InMemoryStore) Mark(ctx context.Context, p *Position, price money.Decimal) error {
	p.Mark(price)
	return nil
}

func (s *InMemoryStore) Close(ctx context.Context, p *Position, exitPrice, realizedPnL money.Decimal, reason ExitReason, now time.Time) error {
	if p.Status != StatusOpen {
		return fmt.Errorf("position: %s is not open", p.ID)
	}
	p.Close(exitPrice, realizedPnL, reason, now)
	return nil
}

func (s *InMemoryStore) TotalExposure(ctx context.Context, botID string) (money.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := money.Zero
	for _, p := range s.positions {
		if p.BotID == botID && p.Status == StatusOpen {
			total = total.Add(p.EntryPrice.Mul(p.Quantity))
		}
	}
	return total, nil
}

func (s *InMemoryStore) RealizedPnLToday(ctx context.Context, botID string, day time.Time) (money.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := money.Zero
	y1, m1, d1 := day.UTC().Date()
	for _, p := range s.positions {
		if p.BotID != botID || p.Status != StatusClosed || p.ExitTime == nil || p.RealizedPnL == nil {
			continue
		}
		y2, m2, d2 := p.ExitTime.UTC().Date()
		if y1 == y2 && m1 == m2 && d1 == d2 {
			total = total.Add(*p.RealizedPnL)
		}
	}
	return total, nil
}
