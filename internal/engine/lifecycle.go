package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/draft-protocol/draftd/internal/domain"
	"github.com/draft-protocol/draftd/internal/store"
)

// Intake is the outcome of StartSession.
type Intake struct {
	SessionID      string
	Classification Classification
	// Superseded is the id of the previously active session closed by this intake, if any.
	Superseded string
}

// StartSession classifies message (or applies tierOverride) and opens a new
// session, closing the previously active one. A REJECTED classification
// creates nothing and returns ErrInvalidInput.
func (e *Engine) StartSession(ctx context.Context, message, tierOverride string) (*Intake, error) {
	var cls Classification
	if strings.TrimSpace(tierOverride) != "" {
		t, err := domain.ParseTier(tierOverride)
		if err != nil {
			return nil, invalid("%v", err)
		}
		if strings.TrimSpace(message) == "" {
			return nil, invalid("Cannot create session — message is empty or invalid.")
		}
		cls = Classification{Tier: t, Reasoning: fmt.Sprintf("Tier manually set to %s", t), Confidence: 1.0}
	} else {
		cls = e.ClassifyTier(ctx, message)
		if cls.Tier == domain.TierRejected {
			return nil, invalid("Cannot create session — message is empty or invalid. %s", cls.Reasoning)
		}
	}

	in := &Intake{Classification: cls}

	prev, err := e.repo.GetActiveSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	if prev != nil {
		if err := e.repo.CloseSession(ctx, prev.ID); err != nil {
			return nil, fmt.Errorf("close superseded session: %w", err)
		}
		e.audit(ctx, prev.ID, "draft_intake", "superseded", "Closed by new intake")
		in.Superseded = prev.ID
	}

	id, err := e.repo.CreateSession(ctx, cls.Tier, message)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	in.SessionID = id

	e.audit(ctx, id, "draft_intake", "session_created",
		fmt.Sprintf("Tier: %s (conf: %.2f). %s", cls.Tier, cls.Confidence, cls.Reasoning))
	e.logger.Info("Session created", "session_id", id, "tier", cls.Tier, "confidence", cls.Confidence)
	return in, nil
}

// CloseSession ends a session. Closing twice is ErrClosed.
func (e *Engine) CloseSession(ctx context.Context, id string) error {
	return e.closeSession(ctx, id, "draft_close", "")
}

// IdleSessions lists open sessions untouched for longer than ttl.
func (e *Engine) IdleSessions(ctx context.Context, ttl time.Duration) ([]*domain.Session, error) {
	sessions, err := e.repo.ListIdleSessions(ctx, ttl)
	if err != nil {
		return nil, fmt.Errorf("list idle sessions: %w", err)
	}
	return sessions, nil
}

// ExpireSession closes an idle session on behalf of the retention worker.
func (e *Engine) ExpireSession(ctx context.Context, id string, idle time.Duration) error {
	return e.closeSession(ctx, id, "retention", "Idle for "+idle.Round(time.Second).String())
}

func (e *Engine) closeSession(ctx context.Context, id, tool, detail string) error {
	if _, err := e.loadOpen(ctx, id); err != nil {
		return err
	}
	if err := e.repo.CloseSession(ctx, id); err != nil {
		if errors.Is(err, store.ErrSessionNotWritable) {
			return closed(id)
		}
		return fmt.Errorf("close session: %w", err)
	}
	e.audit(ctx, id, tool, "session_closed", detail)
	e.logger.Info("Session closed", "session_id", id, "by", tool)
	return nil
}

// Dimension summary values.
const (
	summaryScreened = "SCREENED (N/A)"
	summaryUnmapped = "UNMAPPED"
)

// Status is a read-only snapshot of a session.
type Status struct {
	SessionID        string         `json:"session_id"`
	Tier             domain.Tier    `json:"tier"`
	Intent           string         `json:"intent"`
	DimensionSummary map[string]any `json:"_dimension_summary"`
	Assumptions      int            `json:"assumptions"`
	Gate             string         `json:"gate"`
	GatePassed       bool           `json:"gate_passed"`
	GateOverridden   bool           `json:"gate_overridden"`
	ReviewDone       bool           `json:"review_done"`
	CreatedAt        time.Time      `json:"created_at"`
	ClosedAt         *time.Time     `json:"closed_at"`
}

// Status reports a session's state, including closed ones. The gate preview is not persisted.
func (e *Engine) Status(ctx context.Context, id string) (*Status, error) {
	sess, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}

	gate, _ := evaluateGate(sess)
	return &Status{
		SessionID:        sess.ID,
		Tier:             sess.Tier,
		Intent:           truncateRunes(sess.Intent, 200),
		DimensionSummary: DimensionSummary(sess.Dimensions),
		Assumptions:      len(sess.Assumptions),
		Gate:             gate.Summary,
		GatePassed:       sess.GatePassed,
		GateOverridden:   sess.GateOverridden,
		ReviewDone:       sess.ReviewDone,
		CreatedAt:        sess.CreatedAt,
		ClosedAt:         sess.ClosedAt,
	}, nil
}

// Session returns the full session record, including closed ones.
func (e *Engine) Session(ctx context.Context, id string) (*domain.Session, error) {
	return e.load(ctx, id)
}

// Audit returns a session's audit trail in write order.
func (e *Engine) Audit(ctx context.Context, id string) ([]domain.AuditEntry, error) {
	if _, err := e.load(ctx, id); err != nil {
		return nil, err
	}
	entries, err := e.repo.ListAudit(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return entries, nil
}

// DimensionSummary condenses a dimension map for display, keyed by "K (Name)":
// "SCREENED (N/A)", "UNMAPPED" or a count per field status.
func DimensionSummary(dims domain.DimensionMap) map[string]any {
	summary := make(map[string]any, len(domain.Dimensions))
	for _, key := range domain.Dimensions {
		spec, _ := domain.Spec(key)
		label := fmt.Sprintf("%s (%s)", key, spec.Name)
		st, ok := dims[key]
		switch {
		case !ok || st == nil || (!st.Screened && len(st.Fields) == 0):
			summary[label] = summaryUnmapped
		case st.Screened:
			summary[label] = summaryScreened
		default:
			counts := map[string]int{}
			for _, f := range st.Fields {
				counts[string(f.Status)]++
			}
			summary[label] = counts
		}
	}
	return summary
}
