package engine

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/draft-protocol/draftd/internal/domain"
	"github.com/draft-protocol/draftd/internal/store"
)

// StatusRejected marks a refused confirmation in ConfirmResult.
const StatusRejected = "REJECTED"

// ConfirmResult reports the outcome of ConfirmField.
type ConfirmResult struct {
	Field  string `json:"field"`
	Status string `json:"status"`
	Value  string `json:"value,omitempty"`
}

// RejectedError is returned when a confirmation value is refused. It wraps
// ErrInvalidInput and names the field, so transports can echo a REJECTED result.
type RejectedError struct {
	Field string
	err   error
}

func (e *RejectedError) Error() string { return e.err.Error() }

func (e *RejectedError) Unwrap() error { return e.err }

// ConfirmField records a human answer. It is the only way a field becomes CONFIRMED.
// Empty and too-short values are refused with Status REJECTED and a *RejectedError.
func (e *Engine) ConfirmField(ctx context.Context, id, fieldKey, value string) (*ConfirmResult, error) {
	sess, err := e.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}

	fieldKey = strings.ToUpper(strings.TrimSpace(fieldKey))
	rejected := &ConfirmResult{Field: fieldKey, Status: StatusRejected}

	stripped := strings.TrimSpace(value)
	if stripped == "" {
		e.audit(ctx, id, "confirm_field", fieldKey+" REJECTED", "Empty or whitespace-only value")
		return rejected, &RejectedError{Field: fieldKey, err: invalid("Cannot confirm %s with empty value.", fieldKey)}
	}
	if n := utf8.RuneCountInString(stripped); n < domain.MinConfirmLength {
		e.audit(ctx, id, "confirm_field", fieldKey+" REJECTED", fmt.Sprintf("Value too short (%d chars): '%s'", n, stripped))
		return rejected, &RejectedError{Field: fieldKey, err: invalid("Cannot confirm %s with '%s'. Provide a substantive answer (3+ characters).", fieldKey, stripped)}
	}

	dimSpec, fieldSpec, ok := domain.FieldByKey(fieldKey)
	if !ok {
		return nil, invalid("unknown field %q", fieldKey)
	}
	st, mapped := sess.Dimensions[dimSpec.Key]
	if !mapped || st == nil {
		return nil, invalid("Dimension %s not mapped", dimSpec.Key)
	}
	if st.Screened {
		return nil, invalid("Dimension %s screened. Unscreen first.", dimSpec.Key)
	}

	dims := sess.Dimensions.Clone()
	if dims[dimSpec.Key].Fields == nil {
		dims[dimSpec.Key].Fields = make(map[string]domain.FieldState)
	}
	dims[dimSpec.Key].Fields[fieldKey] = domain.ConfirmedField(fieldSpec.Question, stripped)

	err = e.apply(ctx, id, store.SessionUpdate{Dimensions: dims}, store.AuditRecord{
		Tool:   "confirm_field",
		Action: fieldKey + " confirmed",
		Detail: truncateRunes(stripped, auditDetailLimit),
	})
	if err != nil {
		return nil, fmt.Errorf("save confirmation: %w", err)
	}

	return &ConfirmResult{Field: fieldKey, Status: string(domain.StatusConfirmed), Value: stripped}, nil
}

// UnscreenResult reports the outcome of UnscreenDimension.
type UnscreenResult struct {
	Unscreened  domain.DimensionKey `json:"unscreened"`
	FieldsAdded []string            `json:"fields_added"`
}

// UnscreenDimension reverses screening, giving the dimension a fresh all-MISSING field set.
func (e *Engine) UnscreenDimension(ctx context.Context, id, dimKey string) (*UnscreenResult, error) {
	sess, err := e.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}

	key, ok := domain.ParseDimensionKey(dimKey)
	if !ok {
		return nil, invalid("unknown dimension %q", dimKey)
	}
	spec, _ := domain.Spec(key)
	if spec.Mandatory {
		return nil, invalid("%s is mandatory.", key)
	}
	st, present := sess.Dimensions[key]
	if !present || st == nil {
		return nil, invalid("%s not in session.", key)
	}
	if !st.Screened {
		return nil, invalid("%s not screened.", key)
	}

	dims := sess.Dimensions.Clone()
	dims[key] = domain.FreshDimension(key)

	added := make([]string, 0, len(spec.Fields))
	for _, f := range spec.Fields {
		added = append(added, f.Key)
	}

	err = e.apply(ctx, id, store.SessionUpdate{Dimensions: dims}, store.AuditRecord{
		Tool:   "unscreen",
		Action: string(key) + " unscreened",
		Detail: fmt.Sprintf("%d fields MISSING", len(added)),
	})
	if err != nil {
		return nil, fmt.Errorf("save unscreen: %w", err)
	}

	return &UnscreenResult{Unscreened: key, FieldsAdded: added}, nil
}
