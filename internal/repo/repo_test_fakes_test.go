package repo

import (
	"context"
	"time"

	"tradecore/internal/model"
)

// fakeBotsModel is a hand-built model.BotsModel fake: internal/repo's
// job is the float64<->money.Decimal mapping boundary, not SQL, so
// these tests exercise that boundary against an in-memory row instead
// of a real Postgres connection (the teacher itself never unit-tests
// its generated model layer directly).
type fakeBotsModel struct {
	rows          map[string]*model.BotRecord
	updateErr     error
	lastCapitalID string
	lastCapital   float64
}

var (
	_ model.BotsModel      = (*fakeBotsModel)(nil)
	_ model.PositionsModel = (*fakePositionsModel)(nil)
)

func newFakeBotsModel(recs ...*model.BotRecord) *fakeBotsModel {
	m := &fakeBotsModel{rows: map[string]*model.BotRecord{}}
	for _, r := range recs {
		m.rows[r.ID] = r
	}
	return m
}

func (f *fakeBotsModel) Insert(ctx context.Context, data *model.BotRecord) error {
	f.rows[data.ID] = data
	return nil
}

func (f *fakeBotsModel) FindOne(ctx context.Context, id string) (*model.BotRecord, error) {
	r, ok := f.rows[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return r, nil
}

func (f *fakeBotsModel) Update(ctx context.Context, data *model.BotRecord) error {
	f.rows[data.ID] = data
	return nil
}

func (f *fakeBotsModel) UpdateCapital(ctx context.Context, id string, capital float64) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.lastCapitalID = id
	f.lastCapital = capital
	if r, ok := f.rows[id]; ok {
		r.Capital = capital
	}
	return nil
}

func (f *fakeBotsModel) ListActiveIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for id, r := range f.rows {
		if r.Active {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// fakePositionsModel is the position-table analogue of fakeBotsModel.
type fakePositionsModel struct {
	open        []model.PositionRecord
	total       float64
	realized    float64
	closeCount  int
	insertedRec *model.PositionRecord
	closedID    string
}

func (f *fakePositionsModel) Insert(ctx context.Context, data *model.PositionRecord) error {
	f.insertedRec = data
	return nil
}

func (f *fakePositionsModel) FindOne(ctx context.Context, id string) (*model.PositionRecord, error) {
	return nil, model.ErrNotFound
}

func (f *fakePositionsModel) UpdateMark(ctx context.Context, id string, currentPrice float64) error {
	return nil
}

func (f *fakePositionsModel) Close(ctx context.Context, id string, exitPrice, realizedPnL float64, exitReason string, exitTime time.Time) error {
	f.closedID = id
	return nil
}

func (f *fakePositionsModel) OpenForBot(ctx context.Context, botID string) ([]model.PositionRecord, error) {
	return f.open, nil
}

func (f *fakePositionsModel) TotalExposure(ctx context.Context, botID string) (float64, error) {
	return f.total, nil
}

func (f *fakePositionsModel) RealizedPnLSince(ctx context.Context, botID string, since time.Time) (float64, error) {
	return f.realized, nil
}

func (f *fakePositionsModel) CloseCount(ctx context.Context, botID string, since time.Time) (int, error) {
	return f.closeCount, nil
}
