package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/draft-protocol/draftd/internal/domain"
	"github.com/draft-protocol/draftd/internal/store"
)

// maxGeneratedAssumptions caps GenerateAssumptions output. Manual additions are unbounded.
const maxGeneratedAssumptions = 5

// GenerateAssumptions replaces the session's assumptions with claims derived
// from screening decisions and SATISFIED extractions, screening first.
func (e *Engine) GenerateAssumptions(ctx context.Context, id string) ([]domain.Assumption, error) {
	sess, err := e.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}

	assumptions := []domain.Assumption{}
	for _, key := range domain.Dimensions {
		st, ok := sess.Dimensions[key]
		if !ok || st == nil || !st.Screened {
			continue
		}
		spec, _ := domain.Spec(key)
		assumptions = append(assumptions, domain.Assumption{
			Claim:     fmt.Sprintf("Dimension %s (%s) is not applicable.", key, spec.Name),
			Source:    domain.SourceScreening,
			Falsifier: fmt.Sprintf("If this task involves %s, screening was wrong.", strings.ToLower(spec.Name)),
		})
	}
	sess.Dimensions.EachActiveField(func(v domain.FieldVisit) {
		if v.State.Status != domain.StatusSatisfied || v.State.Extracted == "" {
			return
		}
		assumptions = append(assumptions, domain.Assumption{
			Claim:      fmt.Sprintf("For %s: %s", v.Field.Key, v.State.Extracted),
			Source:     domain.SourceContextExtraction,
			Confidence: ptr(v.State.Confidence),
			Falsifier:  fmt.Sprintf("If wrong, re-elicit %s.", v.Field.Key),
		})
	})

	if len(assumptions) > maxGeneratedAssumptions {
		assumptions = assumptions[:maxGeneratedAssumptions]
	}

	err = e.apply(ctx, id, store.SessionUpdate{Assumptions: &assumptions}, store.AuditRecord{
		Tool:   "draft_assumptions",
		Action: "generated",
		Detail: fmt.Sprintf("%d assumptions", len(assumptions)),
	})
	if err != nil {
		return nil, fmt.Errorf("save assumptions: %w", err)
	}
	return assumptions, nil
}

// AddAssumption appends a manually authored claim and returns its index.
// An empty source means manual; an empty falsifier is derived from the claim.
func (e *Engine) AddAssumption(ctx context.Context, id, claim string, source domain.AssumptionSource, falsifier string) (int, *domain.Assumption, error) {
	sess, err := e.loadOpen(ctx, id)
	if err != nil {
		return 0, nil, err
	}

	claim = strings.TrimSpace(claim)
	if claim == "" {
		return 0, nil, invalid("Claim cannot be empty.")
	}
	if source == "" {
		source = domain.SourceManual
	}
	if !source.Valid() {
		return 0, nil, invalid("unknown assumption source %q", source)
	}
	falsifier = strings.TrimSpace(falsifier)
	if falsifier == "" {
		falsifier = fmt.Sprintf("If '%s' is wrong, re-elicit.", truncateRunes(claim, 80))
	}

	added := domain.Assumption{Claim: claim, Source: source, Falsifier: falsifier}
	assumptions := append(append([]domain.Assumption{}, sess.Assumptions...), added)
	idx := len(assumptions) - 1

	err = e.apply(ctx, id, store.SessionUpdate{Assumptions: &assumptions}, store.AuditRecord{
		Tool:   "add_assumption",
		Action: fmt.Sprintf("[%d] added", idx),
		Detail: truncateRunes(claim, auditDetailLimit),
	})
	if err != nil {
		return 0, nil, fmt.Errorf("save assumption: %w", err)
	}
	return idx, &added, nil
}

// VerifyResult reports the outcome of VerifyAssumption.
type VerifyResult struct {
	Result       string `json:"result"`
	ActionNeeded string `json:"action_needed,omitempty"`
}

// VerifyAssumption records a human verdict on the assumption at index.
// Indices are positional: regenerating assumptions invalidates earlier ones.
// A rejection only signals re-elicitation; field state is left alone.
func (e *Engine) VerifyAssumption(ctx context.Context, id string, index int, verified bool, note string) (*VerifyResult, error) {
	sess, err := e.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(sess.Assumptions) {
		return nil, notFound("Index %d out of range", index)
	}

	assumptions := append([]domain.Assumption{}, sess.Assumptions...)
	assumptions[index].Verified = ptr(verified)
	assumptions[index].Note = note

	action := "verified"
	if !verified {
		action = StatusRejected
	}

	err = e.apply(ctx, id, store.SessionUpdate{Assumptions: &assumptions}, store.AuditRecord{
		Tool:   "verify_assumption",
		Action: fmt.Sprintf("[%d] %s", index, action),
		Detail: note,
	})
	if err != nil {
		return nil, fmt.Errorf("save verification: %w", err)
	}

	if !verified {
		return &VerifyResult{Result: action, ActionNeeded: "Re-elicit affected fields."}, nil
	}
	return &VerifyResult{Result: action}, nil
}
