package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"tradecore/internal/model"
	"tradecore/pkg/engine"
)

// DecisionRecorder implements engine.DecisionRecorder (the §3
// LLMDecision audit row) over LLMDecisionsModel. It persists every
// cycle's row, successful or not, so a human can reconstruct "why did
// bot X do Y" without replaying LLM calls.
type DecisionRecorder struct {
	decisions model.LLMDecisionsModel
}

// NewDecisionRecorder constructs a DecisionRecorder.
func NewDecisionRecorder(deps Dependencies) *DecisionRecorder {
	return &DecisionRecorder{decisions: deps.LLMDecisionsModel}
}

var _ engine.DecisionRecorder = (*DecisionRecorder)(nil)

func (r *DecisionRecorder) RecordDecision(ctx context.Context, rec *engine.DecisionRecord) error {
	parsed, err := json.Marshal(rec.Decisions)
	if err != nil {
		return fmt.Errorf("repo: marshal parsed decisions: %w", err)
	}
	gated, err := json.Marshal(rec.Gated)
	if err != nil {
		return fmt.Errorf("repo: marshal gated decisions: %w", err)
	}
	row := &model.LLMDecisionRecord{
		ID:              uuid.NewString(),
		BotID:           rec.BotID,
		Timestamp:       rec.Timestamp,
		PromptHash:      rec.PromptHash,
		RawResponse:     rec.RawReply,
		ParsedDecisions: parsed,
		Gated:           gated,
		FallbackUsed:    rec.FallbackUsed,
		SyntheticHold:   rec.SyntheticHold,
		CacheHit:        rec.CacheHit,
		Success:         rec.Success,
		ErrorKind:       rec.ErrorKind,
		ErrorMessage:    rec.ErrorMessage,
		DurationMillis:  rec.DurationMillis,
	}
	return r.decisions.Insert(ctx, row)
}
