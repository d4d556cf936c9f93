package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/draft-protocol/draftd/internal/domain"
	"github.com/draft-protocol/draftd/internal/oracle"
	"github.com/draft-protocol/draftd/internal/store"
)

// Embedding similarity buckets.
const (
	satisfiedSimilarity = 0.55
	ambiguousSimilarity = 0.40
)

// MapResult is the outcome of MapDimensions.
type MapResult struct {
	SessionID  string              `json:"session_id"`
	Tier       domain.Tier         `json:"tier"`
	Dimensions domain.DimensionMap `json:"dimensions"`
	Mode       string              `json:"mode"`
	// Escalation is set when ambiguity lifted the tier.
	Escalation string `json:"escalation,omitempty"`
}

// MapDimensions screens and scores the five dimensions against context.
// Screening is decided once per dimension; CONFIRMED fields are never reassessed.
func (e *Engine) MapDimensions(ctx context.Context, id, taskContext string) (*MapResult, error) {
	sess, err := e.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(taskContext) == "" {
		e.audit(ctx, id, "draft_map", "REJECTED", "Empty or whitespace-only context")
		return nil, invalid("Cannot map dimensions with empty context. Provide task description.")
	}

	a := &assessor{e: e, ctx: ctx, text: taskContext, useLLM: e.oracle.CanChat()}

	dims := sess.Dimensions.Clone()
	if dims == nil {
		dims = domain.DimensionMap{}
	}

	for _, key := range domain.Dimensions {
		spec, _ := domain.Spec(key)
		st, decided := dims[key]

		if !spec.Mandatory && !decided {
			if !a.applicable(spec) {
				dims[key] = domain.ScreenedDimension(spec.Name + " not applicable")
				continue
			}
		}
		if st == nil {
			st = domain.ActiveDimension()
			dims[key] = st
		}
		if st.Screened {
			continue
		}
		if st.Fields == nil {
			st.Fields = make(map[string]domain.FieldState)
		}

		for _, f := range spec.Fields {
			if cur, ok := st.Fields[f.Key]; ok && cur.Status == domain.StatusConfirmed {
				continue
			}
			st.Fields[f.Key] = a.assess(f)
		}
	}

	mode := "heuristic"
	if a.useLLM {
		mode = "llm"
	}

	err = e.apply(ctx, id, store.SessionUpdate{Dimensions: dims}, store.AuditRecord{
		Tool:   "draft_map",
		Action: "dimensions_mapped",
		Detail: fmt.Sprintf("Mapped %d dims (%s)", len(domain.Dimensions), mode),
	})
	if err != nil {
		return nil, fmt.Errorf("save dimensions: %w", err)
	}

	result := &MapResult{SessionID: id, Tier: sess.Tier, Dimensions: dims, Mode: mode}

	if tier, reason, ok := ShouldEscalate(sess.Tier, dims); ok {
		err := e.apply(ctx, id, store.SessionUpdate{Tier: &tier}, store.AuditRecord{
			Tool: "draft_map", Action: "auto_escalation", Detail: reason,
		})
		if err != nil {
			return nil, fmt.Errorf("save escalation: %w", err)
		}
		e.logger.Info("Session auto-escalated", "session_id", id, "from", sess.Tier, "to", tier, "reason", reason)
		result.Tier = tier
		result.Escalation = reason
	}

	return result, nil
}

// assessor scores fields for one mapping call.
type assessor struct {
	e      *Engine
	ctx    context.Context
	text   string
	useLLM bool

	textVec  []float32
	textDone bool
}

// applicable decides whether a screenable dimension applies.
// The oracle's silence or failure counts as applicable.
func (a *assessor) applicable(spec domain.DimensionSpec) bool {
	if !a.useLLM {
		lower := strings.ToLower(a.text)
		for _, kw := range spec.ScreenKeywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
		return false
	}

	if spec.ScreenQuestion == "" {
		return true
	}
	prompt := fmt.Sprintf(`Given this task context, is the dimension "%s" applicable?
Screening question: %s

Context: %s`, spec.Name, spec.ScreenQuestion, truncateRunes(a.text, screenPromptLimit))

	result := a.e.oracle.Chat(a.ctx, prompt, oracle.ScreenSchema, screenTimeout)
	if result == nil {
		return true
	}
	applicable, ok := result["applicable"].(bool)
	if !ok {
		return true
	}
	return applicable
}

// assess degrades from oracle chat to embeddings to keywords.
func (a *assessor) assess(f domain.FieldSpec) domain.FieldState {
	if a.useLLM {
		if fs, ok := a.assessWithOracle(f); ok {
			return fs
		}
	}
	if a.e.oracle.CanEmbed() {
		if fs, ok := a.assessWithEmbedding(f); ok {
			return fs
		}
	}
	return assessWithKeywords(f, a.text)
}

func (a *assessor) assessWithOracle(f domain.FieldSpec) (domain.FieldState, bool) {
	prompt := fmt.Sprintf(`Assess whether this DRAFT field is addressed by the context.

Field %s: %s

Context: %s

Rules:
- SATISFIED: Context clearly addresses this field.
- AMBIGUOUS: Context partially or vaguely addresses it.
- MISSING: Context does not address this field.
- Extract relevant info if SATISFIED or AMBIGUOUS.
- Rate confidence 0.0 to 1.0.`, f.Key, f.Question, truncateRunes(a.text, fieldPromptLimit))

	result := a.e.oracle.Chat(a.ctx, prompt, oracle.FieldSchema, fieldTimeout)
	if result == nil {
		return domain.FieldState{}, false
	}
	status := domain.FieldStatus(stringField(result, "status"))
	switch status {
	case domain.StatusSatisfied, domain.StatusAmbiguous, domain.StatusMissing:
	default:
		return domain.FieldState{}, false
	}
	return domain.Assessed(f.Question, status, clamp01(number(result, "confidence", 0.5)), stringField(result, "extracted")), true
}

func (a *assessor) assessWithEmbedding(f domain.FieldSpec) (domain.FieldState, bool) {
	if !a.textDone {
		a.textVec = a.e.oracle.Embed(a.ctx, truncateRunes(a.text, contextEmbedLimit))
		a.textDone = true
	}
	if len(a.textVec) == 0 {
		return domain.FieldState{}, false
	}
	fieldVec := a.e.fieldEmbedding(a.ctx, f)
	if len(fieldVec) == 0 {
		return domain.FieldState{}, false
	}

	sim := oracle.CosineSimilarity(a.textVec, fieldVec)
	switch {
	case sim >= satisfiedSimilarity:
		return domain.Assessed(f.Question, domain.StatusSatisfied, round3(sim), fmt.Sprintf("Semantic match (%.3f)", sim)), true
	case sim >= ambiguousSimilarity:
		return domain.Assessed(f.Question, domain.StatusAmbiguous, round3(sim), fmt.Sprintf("Partial match (%.3f)", sim)), true
	default:
		return domain.Assessed(f.Question, domain.StatusMissing, round3(max(0.1, 1.0-sim)), ""), true
	}
}

// fieldEmbedding embeds question plus enrichment once per process.
// Concurrent first requests for the same field share one oracle call.
func (e *Engine) fieldEmbedding(ctx context.Context, f domain.FieldSpec) []float32 {
	e.embedMu.RLock()
	vec, ok := e.fieldEmbeddings[f.Key]
	e.embedMu.RUnlock()
	if ok {
		return vec
	}

	v, _, _ := e.embedGroup.Do(f.Key, func() (any, error) {
		vec := e.oracle.Embed(ctx, f.Question+" "+f.Enrichment)
		if len(vec) > 0 {
			e.embedMu.Lock()
			e.fieldEmbeddings[f.Key] = vec
			e.embedMu.Unlock()
		}
		return vec, nil
	})
	vec, _ = v.([]float32)
	return vec
}

func assessWithKeywords(f domain.FieldSpec, text string) domain.FieldState {
	lower := strings.ToLower(text)
	hits := 0
	for _, kw := range f.Keywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	switch {
	case hits >= 2:
		return domain.Assessed(f.Question, domain.StatusSatisfied, 0.6, fmt.Sprintf("Keyword match (%d hits)", hits))
	case hits == 1:
		return domain.Assessed(f.Question, domain.StatusAmbiguous, 0.4, "Partial keyword match")
	default:
		return domain.Assessed(f.Question, domain.StatusMissing, 0.3, "")
	}
}
