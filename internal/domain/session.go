package domain

import (
	"time"
)

// FieldStatus is the intake state of a single field.
type FieldStatus string

const (
	StatusMissing   FieldStatus = "MISSING"
	StatusAmbiguous FieldStatus = "AMBIGUOUS"
	StatusSatisfied FieldStatus = "SATISFIED"
	StatusConfirmed FieldStatus = "CONFIRMED"
)

// NeedsElicitation reports whether the field still requires a human answer.
func (s FieldStatus) NeedsElicitation() bool {
	return s == StatusMissing || s == StatusAmbiguous
}

// ConfirmedByHuman is the only actor recorded on confirmed fields.
const ConfirmedByHuman = "human"

// MinConfirmLength is the minimum trimmed length of a confirmation value.
const MinConfirmLength = 3

// FieldState is the assessed or confirmed state of one field.
type FieldState struct {
	Question    string      `json:"question"`
	Status      FieldStatus `json:"status"`
	Confidence  float64     `json:"confidence"`
	Extracted   string      `json:"extracted,omitempty"`
	ConfirmedBy string      `json:"confirmed_by,omitempty"`
}

// MissingField returns a fresh unanswered field.
func MissingField(question string) FieldState {
	return FieldState{Question: question, Status: StatusMissing}
}

// Assessed returns a machine-assessed field. It never yields CONFIRMED.
func Assessed(question string, status FieldStatus, confidence float64, extracted string) FieldState {
	if status == StatusConfirmed || status == "" {
		status = StatusMissing
	}
	return FieldState{Question: question, Status: status, Confidence: confidence, Extracted: extracted}
}

// ConfirmedField returns a human-confirmed field carrying value.
func ConfirmedField(question, value string) FieldState {
	return FieldState{
		Question:    question,
		Status:      StatusConfirmed,
		Confidence:  1.0,
		Extracted:   value,
		ConfirmedBy: ConfirmedByHuman,
	}
}

// DimensionState is either Screened (with a reason and no fields) or Active (with fields).
type DimensionState struct {
	Screened     bool                  `json:"screened,omitempty"`
	ScreenReason string                `json:"screen_reason,omitempty"`
	Fields       map[string]FieldState `json:"fields,omitempty"`
}

// ScreenedDimension returns the screened variant.
func ScreenedDimension(reason string) *DimensionState {
	return &DimensionState{Screened: true, ScreenReason: reason}
}

// ActiveDimension returns the active variant with no fields assessed yet.
func ActiveDimension() *DimensionState {
	return &DimensionState{Fields: make(map[string]FieldState)}
}

// FreshDimension returns an active dimension with every field MISSING.
func FreshDimension(key DimensionKey) *DimensionState {
	d := ActiveDimension()
	if spec, ok := Spec(key); ok {
		for _, f := range spec.Fields {
			d.Fields[f.Key] = MissingField(f.Question)
		}
	}
	return d
}

// DimensionMap holds the per-session state of each mapped dimension.
// Absent keys are unmapped.
type DimensionMap map[DimensionKey]*DimensionState

// Clone returns a deep copy.
func (m DimensionMap) Clone() DimensionMap {
	if m == nil {
		return nil
	}
	out := make(DimensionMap, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		c := &DimensionState{Screened: v.Screened, ScreenReason: v.ScreenReason}
		if v.Fields != nil {
			c.Fields = make(map[string]FieldState, len(v.Fields))
			for fk, fv := range v.Fields {
				c.Fields[fk] = fv
			}
		}
		out[k] = c
	}
	return out
}

// FieldVisit is one field yielded by EachActiveField.
type FieldVisit struct {
	Dimension DimensionSpec
	Field     FieldSpec
	State     FieldState
}

// EachActiveField calls fn for every assessed field of every non-screened dimension,
// in dimension then field declaration order.
func (m DimensionMap) EachActiveField(fn func(FieldVisit)) {
	for _, key := range Dimensions {
		st, ok := m[key]
		if !ok || st == nil || st.Screened {
			continue
		}
		spec, _ := Spec(key)
		for _, f := range spec.Fields {
			fs, ok := st.Fields[f.Key]
			if !ok {
				continue
			}
			fn(FieldVisit{Dimension: spec, Field: f, State: fs})
		}
	}
}

// AssumptionSource records where an assumption came from.
type AssumptionSource string

const (
	SourceScreening         AssumptionSource = "screening"
	SourceContextExtraction AssumptionSource = "context_extraction"
	SourceManual            AssumptionSource = "manual"
	SourceDevilsAdvocate    AssumptionSource = "devils_advocate"
)

// Valid reports whether s is a known source.
func (s AssumptionSource) Valid() bool {
	switch s {
	case SourceScreening, SourceContextExtraction, SourceManual, SourceDevilsAdvocate:
		return true
	}
	return false
}

// Assumption is a falsifiable claim surfaced for human verification.
// Verified stays nil until a human answers.
type Assumption struct {
	Claim      string           `json:"claim"`
	Source     AssumptionSource `json:"source"`
	Falsifier  string           `json:"falsifier"`
	Confidence *float64         `json:"confidence,omitempty"`
	Verified   *bool            `json:"verified"`
	Note       string           `json:"note,omitempty"`
}

// Unverified reports whether no human has answered the assumption yet.
func (a Assumption) Unverified() bool {
	return a.Verified == nil
}

// Session is the unit of governance.
type Session struct {
	ID             string       `json:"session_id"`
	Tier           Tier         `json:"tier"`
	Intent         string       `json:"intent"`
	Dimensions     DimensionMap `json:"dimensions"`
	Assumptions    []Assumption `json:"assumptions"`
	GatePassed     bool         `json:"gate_passed"`
	GateOverridden bool         `json:"gate_overridden"`
	ReviewDone     bool         `json:"review_done"`
	ReviewNotes    string       `json:"review_notes,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	ClosedAt       *time.Time   `json:"closed_at"`
}

// Closed reports whether the session is terminal.
func (s *Session) Closed() bool {
	return s.ClosedAt != nil
}

// AuditEntry is an immutable record in a session's audit trail.
type AuditEntry struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Tool      string    `json:"tool"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}
