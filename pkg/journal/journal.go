// Package journal persists one audit record per trading cycle, giving
// every engine a file-backed trail of what it saw and did. It exists
// so a human can reconstruct "why did bot X open this position" after
// the fact without replaying LLM calls.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ActionRecord captures one executed trade action within a cycle.
type ActionRecord struct {
	Kind       string  `json:"kind"` // "entry" or "exit"
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side,omitempty"`
	Size       string  `json:"size,omitempty"`
	Price      string  `json:"price,omitempty"`
	RealizedPnL string `json:"realized_pnl,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// RejectionRecord captures a RiskGate or executor rejection.
type RejectionRecord struct {
	Symbol string `json:"symbol"`
	Check  string `json:"check"`
	Reason string `json:"reason"`
}

// CycleRecord captures one end-to-end engine cycle for audit and
// replay. It mirrors the eight steps of the engine's run loop.
type CycleRecord struct {
	Timestamp      time.Time         `json:"timestamp"`
	BotID          string            `json:"bot_id"`
	CycleNumber    int               `json:"cycle_number"`
	PromptDigest   string            `json:"prompt_digest,omitempty"`
	OracleText     string            `json:"oracle_text,omitempty"`
	OracleCacheHit bool              `json:"oracle_cache_hit"`
	AccountSnap    map[string]any    `json:"account_snapshot,omitempty"`
	Candidates     []string          `json:"candidates,omitempty"`
	Rejections     []RejectionRecord `json:"rejections,omitempty"`
	Actions        []ActionRecord    `json:"actions,omitempty"`
	Success        bool              `json:"success"`
	ErrorKind      string            `json:"error_kind,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	DurationMillis int64             `json:"duration_millis"`
}

// Writer persists cycle records as one indented JSON file per cycle
// under dir/<bot_id>/. Safe for concurrent use by multiple engines
// sharing one Writer, since the Scheduler holds a single instance.
type Writer struct {
	mu    sync.Mutex
	dir   string
	seq   map[string]int
	nowFn func() time.Time
}

// NewWriter constructs a journal writer rooted at dir. It does not
// create dir eagerly; per-bot subdirectories are created lazily on
// first write so an idle bot never litters the filesystem.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "journal"
	}
	return &Writer{dir: dir, seq: make(map[string]int), nowFn: time.Now}
}

// WriteCycle writes rec to a timestamped JSON file under dir/<bot_id>/
// and returns the path written.
func (w *Writer) WriteCycle(rec *CycleRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("journal: nil record")
	}
	if rec.BotID == "" {
		return "", fmt.Errorf("journal: empty bot_id")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = w.nowFn()
	}

	w.mu.Lock()
	w.seq[rec.BotID]++
	rec.CycleNumber = w.seq[rec.BotID]
	w.mu.Unlock()

	botDir := filepath.Join(w.dir, rec.BotID)
	if err := os.MkdirAll(botDir, 0o755); err != nil {
		return "", fmt.Errorf("journal: mkdir: %w", err)
	}
	name := fmt.Sprintf("cycle_%s_%06d.json", rec.Timestamp.UTC().Format("20060102_150405"), rec.CycleNumber)
	path := filepath.Join(botDir, name)

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("journal: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("journal: write: %w", err)
	}
	return path, nil
}
