package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCycleCreatesPerBotFile(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	w.nowFn = func() time.Time { return time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC) }

	rec := &CycleRecord{
		BotID:      "bot-1",
		Success:    true,
		Actions:    []ActionRecord{{Kind: "entry", Symbol: "BTC/USDT", Side: "long"}},
		Rejections: []RejectionRecord{{Symbol: "ETH/USDT", Check: "risk_gate", Reason: "frequency"}},
	}

	path, err := w.WriteCycle(rec)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bot-1"), filepath.Dir(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got CycleRecord
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "bot-1", got.BotID)
	assert.Equal(t, 1, got.CycleNumber)
	assert.True(t, got.Success)
	assert.Equal(t, "frequency", got.Rejections[0].Reason)
}

func TestWriteCycleIncrementsSequencePerBot(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	tick := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	w.nowFn = func() time.Time {
		t := tick
		tick = tick.Add(time.Second)
		return t
	}

	_, err := w.WriteCycle(&CycleRecord{BotID: "bot-1"})
	require.NoError(t, err)
	_, err = w.WriteCycle(&CycleRecord{BotID: "bot-1"})
	require.NoError(t, err)
	_, err = w.WriteCycle(&CycleRecord{BotID: "bot-2"})
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "bot-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = os.ReadDir(filepath.Join(dir, "bot-2"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteCycleRejectsEmptyBotID(t *testing.T) {
	w := NewWriter(t.TempDir())
	_, err := w.WriteCycle(&CycleRecord{})
	assert.Error(t, err)
}

func TestWriteCycleRejectsNilRecord(t *testing.T) {
	w := NewWriter(t.TempDir())
	_, err := w.WriteCycle(nil)
	assert.Error(t, err)
}

func TestNewWriterDefaultsDir(t *testing.T) {
	w := NewWriter("")
	assert.Equal(t, "journal", w.dir)
}
