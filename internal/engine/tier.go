package engine

import (
	"context"
	"fmt"

	"github.com/draft-protocol/draftd/internal/domain"
	"github.com/draft-protocol/draftd/internal/store"
)

// TierChange reports a manual escalation or de-escalation.
// At a boundary nothing changes and Note explains why.
type TierChange struct {
	Previous domain.Tier `json:"previous_tier,omitempty"`
	New      domain.Tier `json:"new_tier,omitempty"`
	Tier     domain.Tier `json:"tier,omitempty"`
	Reason   string      `json:"reason,omitempty"`
	Note     string      `json:"note,omitempty"`
	Changed  bool        `json:"changed"`
}

// Escalate moves the session one tier up.
func (e *Engine) Escalate(ctx context.Context, id, reason string) (*TierChange, error) {
	sess, err := e.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}

	next, ok := sess.Tier.Next()
	if !ok {
		return &TierChange{Tier: domain.TierConsequential, Note: "Already at maximum tier."}, nil
	}

	err = e.apply(ctx, id, store.SessionUpdate{Tier: &next}, store.AuditRecord{
		Tool:   "draft_escalate",
		Action: fmt.Sprintf("%s -> %s", sess.Tier, next),
		Detail: reason,
	})
	if err != nil {
		return nil, fmt.Errorf("save escalation: %w", err)
	}
	return &TierChange{Previous: sess.Tier, New: next, Reason: reason, Changed: true}, nil
}

// Deescalate moves the session one tier down as an authorized, audited override.
func (e *Engine) Deescalate(ctx context.Context, id, reason string) (*TierChange, error) {
	sess, err := e.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}

	prev, ok := sess.Tier.Prev()
	if !ok {
		return &TierChange{Tier: domain.TierCasual, Note: "Already at minimum tier."}, nil
	}

	err = e.apply(ctx, id, store.SessionUpdate{Tier: &prev}, store.AuditRecord{
		Tool:   "draft_deescalate",
		Action: fmt.Sprintf("%s -> %s", sess.Tier, prev),
		Detail: "AUTHORIZED: " + reason,
	})
	if err != nil {
		return nil, fmt.Errorf("save de-escalation: %w", err)
	}
	e.logger.Warn("Session tier lowered by override", "session_id", id, "from", sess.Tier, "to", prev)

	return &TierChange{
		Previous: sess.Tier,
		New:      prev,
		Reason:   reason,
		Note:     "De-escalation honored and logged. DRAFT mapping still occurs internally.",
		Changed:  true,
	}, nil
}
