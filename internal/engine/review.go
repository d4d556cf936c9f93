package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/draft-protocol/draftd/internal/domain"
	"github.com/draft-protocol/draftd/internal/store"
)

// Review quality labels.
const (
	QualityHigh           = "HIGH"
	QualityNeedsAttention = "NEEDS_ATTENTION"
)

// lowConfidence flags confirmed fields assessed below this value.
const lowConfidence = 0.6

// ReviewResult is the elicitation quality review.
type ReviewResult struct {
	Quality  string   `json:"quality"`
	Findings []string `json:"findings"`
	Features []string `json:"features"`
}

// ElicitationReview inspects the intake for gaps and records that a review took place.
func (e *Engine) ElicitationReview(ctx context.Context, id string) (*ReviewResult, error) {
	sess, err := e.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}

	findings := []string{}
	for _, key := range domain.Dimensions {
		st, ok := sess.Dimensions[key]
		if !ok || st == nil || st.Screened {
			continue
		}
		gaps := 0
		for _, f := range st.Fields {
			if f.Status.NeedsElicitation() {
				gaps++
			}
		}
		if gaps > 2 {
			findings = append(findings, fmt.Sprintf("%s: %d gaps", key, gaps))
		}
	}

	var weak []string
	sess.Dimensions.EachActiveField(func(v domain.FieldVisit) {
		if v.State.Status == domain.StatusConfirmed && v.State.Confidence < lowConfidence {
			weak = append(weak, fmt.Sprintf("%s=%.2f", v.Field.Key, v.State.Confidence))
		}
	})
	if len(weak) > 0 {
		findings = append(findings, "Low-confidence: "+strings.Join(weak, ", "))
	}

	unverified := 0
	for _, a := range sess.Assumptions {
		if a.Unverified() {
			unverified++
		}
	}
	if unverified > 0 {
		findings = append(findings, fmt.Sprintf("%d unverified assumptions", unverified))
	}

	quality := QualityHigh
	notes := "Clean"
	if len(findings) > 0 {
		quality = QualityNeedsAttention
		notes = strings.Join(findings, "; ")
	}

	err = e.apply(ctx, id, store.SessionUpdate{ReviewDone: ptr(true), ReviewNotes: &notes}, store.AuditRecord{
		Tool:   "review",
		Action: "quality=" + quality,
		Detail: truncateRunes(notes, auditDetailLimit),
	})
	if err != nil {
		return nil, fmt.Errorf("save review: %w", err)
	}

	return &ReviewResult{Quality: quality, Findings: findings, Features: e.features()}, nil
}

func (e *Engine) features() []string {
	out := []string{"keyword_classification", "dimension_screening", "confidence_scoring"}
	if e.oracle.CanChat() {
		out = append(out, "llm_classification", "smart_suggestions")
	}
	if e.oracle.CanEmbed() {
		out = append(out, "embedding_assessment")
	}
	return out
}
