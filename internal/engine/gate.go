package engine

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/draft-protocol/draftd/internal/domain"
	"github.com/draft-protocol/draftd/internal/store"
)

// GateResult is the confirmation gate verdict.
type GateResult struct {
	Passed    bool     `json:"passed"`
	Confirmed int      `json:"confirmed"`
	Total     int      `json:"total"`
	Blockers  []string `json:"blockers"`
	Summary   string   `json:"summary"`
}

// evaluateGate computes the verdict without side effects. hollow lists CONFIRMED
// fields whose content is too short to count.
func evaluateGate(sess *domain.Session) (res GateResult, hollow []string) {
	res.Blockers = []string{}

	if len(sess.Dimensions) == 0 {
		res.Blockers = append(res.Blockers, "No dimensions mapped — call draft_map before checking gate")
		res.Summary = "[BLOCKED]: 0/0"
		return res, nil
	}

	sess.Dimensions.EachActiveField(func(v domain.FieldVisit) {
		res.Total++
		switch v.State.Status {
		case domain.StatusConfirmed:
			if utf8.RuneCountInString(strings.TrimSpace(v.State.Extracted)) < domain.MinConfirmLength {
				res.Blockers = append(res.Blockers, v.Field.Key+": CONFIRMED but empty/insufficient content (possible bypass)")
				hollow = append(hollow, v.Field.Key)
				return
			}
			res.Confirmed++
		case domain.StatusMissing, domain.StatusAmbiguous:
			res.Blockers = append(res.Blockers, fmt.Sprintf("%s: %s", v.Field.Key, v.State.Status))
		}
	})

	unverified := 0
	for _, a := range sess.Assumptions {
		if a.Unverified() {
			unverified++
		}
	}
	if unverified > 0 {
		res.Blockers = append(res.Blockers, fmt.Sprintf("%d unverified assumption(s)", unverified))
	}

	res.Passed = len(res.Blockers) == 0
	label := "[BLOCKED]"
	if res.Passed {
		label = "[PASS]"
	}
	res.Summary = fmt.Sprintf("%s: %d/%d", label, res.Confirmed, res.Total)
	return res, hollow
}

// CheckGate evaluates the gate, persists gate_passed on a pass and always audits the verdict.
func (e *Engine) CheckGate(ctx context.Context, id string) (*GateResult, error) {
	sess, err := e.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.checkGate(ctx, sess)
}

func (e *Engine) checkGate(ctx context.Context, sess *domain.Session) (*GateResult, error) {
	res, hollow := evaluateGate(sess)

	for _, fk := range hollow {
		e.logger.Warn("Hollow confirmation detected", "session_id", sess.ID, "field", fk)
		e.audit(ctx, sess.ID, "draft_gate", "empty_confirm_detected", fk+" confirmed with empty/short content")
	}

	verdict := "FAIL"
	if res.Passed {
		verdict = "PASS"
	}
	rec := store.AuditRecord{Tool: "draft_gate", Action: "gate_check", Detail: fmt.Sprintf("%s: %d/%d", verdict, res.Confirmed, res.Total)}

	if res.Passed {
		if err := e.apply(ctx, sess.ID, store.SessionUpdate{GatePassed: ptr(true)}, rec); err != nil {
			return nil, fmt.Errorf("save gate pass: %w", err)
		}
	} else if err := e.repo.AppendAudit(ctx, sess.ID, rec); err != nil {
		return nil, fmt.Errorf("audit gate check: %w", err)
	}
	return &res, nil
}

// OverrideResult reports the outcome of OverrideGate.
type OverrideResult struct {
	Status   string      `json:"status,omitempty"`
	Reason   string      `json:"reason,omitempty"`
	Blockers []string    `json:"blockers,omitempty"`
	Note     string      `json:"note,omitempty"`
	Gate     *GateResult `json:"gate,omitempty"`
}

// StatusOverridden marks a forced pass.
const StatusOverridden = "OVERRIDDEN"

// OverrideGate forces a blocked gate open. The audit entry carries the reason
// and the blockers at the time, separating a forced pass from an earned one.
func (e *Engine) OverrideGate(ctx context.Context, id, reason string) (*OverrideResult, error) {
	sess, err := e.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("Reason mandatory.")
	}

	gate, err := e.checkGate(ctx, sess)
	if err != nil {
		return nil, err
	}
	if gate.Passed {
		return &OverrideResult{Note: "Already passed.", Gate: gate}, nil
	}

	upd := store.SessionUpdate{GatePassed: ptr(true), GateOverridden: ptr(true)}
	rec := store.AuditRecord{
		Tool:   "override_gate",
		Action: StatusOverridden,
		Detail: fmt.Sprintf("AUTHORIZED: %s. Blockers: [%s]", reason, strings.Join(gate.Blockers, "; ")),
	}
	if err := e.apply(ctx, id, upd, rec); err != nil {
		return nil, fmt.Errorf("save override: %w", err)
	}
	e.logger.Warn("Gate overridden", "session_id", id, "blockers", len(gate.Blockers))

	return &OverrideResult{Status: StatusOverridden, Reason: reason, Blockers: gate.Blockers}, nil
}
