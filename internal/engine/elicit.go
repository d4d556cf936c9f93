package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/draft-protocol/draftd/internal/domain"
	"github.com/draft-protocol/draftd/internal/oracle"
)

// Question is one elicitation prompt for a MISSING or AMBIGUOUS field.
type Question struct {
	Dimension     string             `json:"dimension"`
	Field         string             `json:"field"`
	Question      string             `json:"question"`
	CurrentStatus domain.FieldStatus `json:"current_status"`
	Confidence    float64            `json:"confidence"`
	Suggestion    *string            `json:"suggestion"`
	Extracted     *string            `json:"extracted"`
}

// GenerateElicitation lists questions for every unresolved active field in
// declaration order. It only writes an audit entry.
func (e *Engine) GenerateElicitation(ctx context.Context, id string) ([]Question, error) {
	sess, err := e.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}

	questions := []Question{}
	sess.Dimensions.EachActiveField(func(v domain.FieldVisit) {
		if !v.State.Status.NeedsElicitation() {
			return
		}
		q := Question{
			Dimension:     fmt.Sprintf("%s — %s", v.Dimension.Key, v.Dimension.Name),
			Field:         v.Field.Key,
			Question:      v.Field.Question,
			CurrentStatus: v.State.Status,
			Confidence:    v.State.Confidence,
			Suggestion:    e.suggest(ctx, v.Field, sess.Intent),
		}
		if v.State.Extracted != "" {
			q.Extracted = ptr(v.State.Extracted)
		}
		questions = append(questions, q)
	})

	e.audit(ctx, id, "draft_elicit", "questions_generated", fmt.Sprintf("Generated %d questions", len(questions)))
	return questions, nil
}

// suggest asks the oracle for a contextual suggestion and falls back to the static scaffold.
func (e *Engine) suggest(ctx context.Context, f domain.FieldSpec, intent string) *string {
	if e.oracle.CanChat() && strings.TrimSpace(intent) != "" {
		prompt := fmt.Sprintf(`Generate a helpful suggestion for this DRAFT elicitation question.

Field: %s
Question: %s
Task intent: %s

Provide a concrete, actionable suggestion with an example if possible.`, f.Key, f.Question, truncateRunes(intent, suggestionPromptLimit))

		if result := e.oracle.Chat(ctx, prompt, oracle.SuggestionSchema, suggestionTimeout); result != nil {
			if s := stringField(result, "suggestion"); s != "" {
				if ex := stringField(result, "example"); ex != "" {
					s += "\nExample: " + ex
				}
				return &s
			}
		}
	}
	return scaffold(f, intent)
}

func scaffold(f domain.FieldSpec, intent string) *string {
	if f.Scaffold == "" {
		return nil
	}
	if strings.Contains(f.Scaffold, "%s") {
		return ptr(fmt.Sprintf(f.Scaffold, truncateRunes(intent, 80)))
	}
	return ptr(f.Scaffold)
}
