package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Catalog errors.
var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Instructions is the usage guidance advertised to agents.
const Instructions = "DRAFT (Define, Rules, Artifacts, Flex, Test) ensures AI understands intent " +
	"before executing. Use draft_intake to start, draft_map to analyze, " +
	"draft_elicit for gaps, draft_confirm for answers, draft_gate to check readiness. " +
	"Never skip the gate — no execution on MISSING fields. " +
	"Use draft_unscreen to reverse incorrect dimension screening, " +
	"draft_add_assumption for manual assumptions, " +
	"draft_override for authorized gate bypass on known tool bugs (not governance bypass)."

// ParamType is the JSON type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
)

// Param describes one tool argument.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Enum        []string
}

// Hints are behavioural annotations for clients.
type Hints struct {
	ReadOnly    bool
	Destructive bool
	Idempotent  bool
}

var (
	hintsRead     = Hints{ReadOnly: true, Idempotent: true}
	hintsWrite    = Hints{Idempotent: true}
	hintsCreate   = Hints{}
	hintsDestruct = Hints{Destructive: true, Idempotent: true}
)

// Tool is a transport-neutral tool definition.
type Tool struct {
	Name        string
	Title       string
	Description string
	Hints       Hints
	Params      []Param
	call        func(ctx context.Context, s *Service, a Args) (any, error)
}

// Args are decoded tool arguments.
type Args map[string]any

// String returns a string argument or "".
func (a Args) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int returns an integer argument. JSON numbers arrive as float64.
func (a Args) Int(key string) (int, error) {
	switch v := a[key].(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidArguments, key)
		}
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidArguments, key)
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidArguments, key)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidArguments, key)
}

// Bool returns a boolean argument.
func (a Args) Bool(key string) (bool, error) {
	switch v := a[key].(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err == nil {
			return b, nil
		}
	}
	return false, fmt.Errorf("%w: %s must be a boolean", ErrInvalidArguments, key)
}

var sessionParam = Param{Name: "session_id", Type: TypeString, Description: "Session ID. Defaults to the active session."}

var catalog = []Tool{
	{
		Name:        "draft_intake",
		Title:       "Start DRAFT Session",
		Description: "Start a DRAFT elicitation session. Classifies the message into CASUAL / STANDARD / CONSEQUENTIAL and creates a tracked session, closing the previously active one. Use tier_override to force a tier.",
		Hints:       hintsCreate,
		Params: []Param{
			{Name: "message", Type: TypeString, Description: "The user's original request or intent description.", Required: true},
			{Name: "tier_override", Type: TypeString, Description: "Optional. Force a tier.", Enum: []string{"CASUAL", "STANDARD", "CONSEQUENTIAL"}},
		},
		call: func(ctx context.Context, s *Service, a Args) (any, error) {
			return s.Intake(ctx, a.String("message"), a.String("tier_override"))
		},
	},
	{
		Name:        "draft_map",
		Title:       "Map DRAFT Dimensions",
		Description: "Map all 5 DRAFT dimensions against the provided context. Screens non-mandatory dimensions (R, A, F) for applicability and labels each field SATISFIED / AMBIGUOUS / MISSING.",
		Hints:       hintsWrite,
		Params: []Param{
			sessionParam,
			{Name: "context", Type: TypeString, Description: "Combined user intent plus any clarifications so far.", Required: true},
		},
		call: func(ctx context.Context, s *Service, a Args) (any, error) {
			return s.Map(ctx, a.String("session_id"), a.String("context"))
		},
	},
	{
		Name:        "draft_elicit",
		Title:       "Generate Elicitation Questions",
		Description: "Generate targeted questions for MISSING and AMBIGUOUS fields, with suggested answer scaffolds. Present them to the human and record answers with draft_confirm.",
		Hints:       hintsRead,
		Params:      []Param{sessionParam},
		call: func(ctx context.Context, s *Service, a Args) (any, error) {
			return s.Elicit(ctx, a.String("session_id"))
		},
	},
	{
		Name:        "draft_confirm",
		Title:       "Confirm DRAFT Field",
		Description: "Confirm a DRAFT field with a human-provided answer of at least 3 characters.",
		Hints:       hintsWrite,
		Params: []Param{
			sessionParam,
			{Name: "field_key", Type: TypeString, Description: `Field to confirm (e.g. "D1", "R3", "T2").`, Required: true},
			{Name: "value", Type: TypeString, Description: "The human's answer for this field.", Required: true},
		},
		call: func(ctx context.Context, s *Service, a Args) (any, error) {
			return s.Confirm(ctx, a.String("session_id"), a.String("field_key"), a.String("value"))
		},
	},
	{
		Name:        "draft_assumptions",
		Title:       "Surface Assumptions",
		Description: `Surface up to 5 key assumptions as falsifiable claims. Present to the human as "I'm assuming X. Is that correct?" and record the response with draft_verify.`,
		Hints:       hintsWrite,
		Params:      []Param{sessionParam},
		call: func(ctx context.Context, s *Service, a Args) (any, error) {
			return s.Assumptions(ctx, a.String("session_id"))
		},
	},
	{
		Name:        "draft_verify",
		Title:       "Verify Assumption",
		Description: "Verify or reject an assumption. If rejected, affected fields need re-elicitation.",
		Hints:       hintsWrite,
		Params: []Param{
			sessionParam,
			{Name: "assumption_index", Type: TypeInteger, Description: "Index of the assumption (from draft_assumptions).", Required: true},
			{Name: "verified", Type: TypeBoolean, Description: "True if the human confirms, false if they reject.", Required: true},
			{Name: "note", Type: TypeString, Description: "Optional human note."},
		},
		call: func(ctx context.Context, s *Service, a Args) (any, error) {
			idx, err := a.Int("assumption_index")
			if err != nil {
				return nil, err
			}
			verified, err := a.Bool("verified")
			if err != nil {
				return nil, err
			}
			return s.Verify(ctx, a.String("session_id"), idx, verified, a.String("note"))
		},
	},
	{
		Name:        "draft_gate",
		Title:       "Check Confirmation Gate",
		Description: "Check the confirmation gate: are all applicable fields confirmed? No execution should proceed until the gate passes.",
		Hints:       hintsWrite,
		Params:      []Param{sessionParam},
		call: func(ctx context.Context, s *Service, a Args) (any, error) {
			return s.Gate(ctx, a.String("session_id"))
		},
	},
	{
		Name:        "draft_review",
		Title:       "Elicitation Quality Review",
		Description: "Elicitation quality self-assessment. Mandatory for CONSEQUENTIAL tier, recommended for STANDARD.",
		Hints:       hintsWrite,
		Params:      []Param{sessionParam},
		call: func(ctx context.Context, s *Service, a Args) (any, error) {
			return s.Review(ctx, a.String("session_id"))
		},
	},
	{
		Name:        "draft_status",
		Title:       "View Session State",
		Description: "View DRAFT session state: tier, dimension summary, assumptions and gate status. Defaults to the active session.",
		Hints:       hintsRead,
		Params:      []Param{sessionParam},
		call: func(ctx context.Context, s *Service, a Args) (any, error) {
			return s.Status(ctx, a.String("session_id"))
		},
	},
	{
		Name:        "draft_unscreen",
		Title:       "Unscreen Dimension",
		Description: "Reverse screening on a dimension incorrectly marked N/A. Only R, A and F can be unscreened; all their fields become MISSING.",
		Hints:       hintsWrite,
		Params: []Param{
			sessionParam,
			{Name: "dimension_key", Type: TypeString, Description: "The dimension to unscreen.", Required: true, Enum: []string{"R", "A", "F"}},
		},
		call: func(ctx context.Context, s *Service, a Args) (any, error) {
			return s.Unscreen(ctx, a.String("session_id"), a.String("dimension_key"))
		},
	},
	{
		Name:        "draft_add_assumption",
		Title:       "Add Manual Assumption",
		Description: "Add a manually authored assumption. Use source devils_advocate for the Devil's Advocate step. Added assumptions take part in draft_verify and draft_gate.",
		Hints:       hintsCreate,
		Params: []Param{
			sessionParam,
			{Name: "claim", Type: TypeString, Description: "The falsifiable claim.", Required: true},
			{Name: "source", Type: TypeString, Description: "Origin of the assumption (default manual).", Enum: []string{"manual", "devils_advocate", "screening", "context_extraction"}},
			{Name: "falsifier", Type: TypeString, Description: "What would prove this wrong. Derived from the claim if omitted."},
		},
		call: func(ctx context.Context, s *Service, a Args) (any, error) {
			return s.AddAssumption(ctx, a.String("session_id"), a.String("claim"), a.String("source"), a.String("falsifier"))
		},
	},
	{
		Name:        "draft_override",
		Title:       "Override Blocked Gate",
		Description: "Override a blocked gate with a logged reason. For tool limitations only, not a governance bypass. The override is audit-logged and distinguishable from a normal pass.",
		Hints:       hintsDestruct,
		Params: []Param{
			sessionParam,
			{Name: "reason", Type: TypeString, Description: "Why the override is justified.", Required: true},
		},
		call: func(ctx context.Context, s *Service, a Args) (any, error) {
			return s.Override(ctx, a.String("session_id"), a.String("reason"))
		},
	},
	{
		Name:        "draft_close",
		Title:       "Close Session",
		Description: "Close a DRAFT session. Closed sessions stay readable but reject every change.",
		Hints:       hintsDestruct,
		Params:      []Param{sessionParam},
		call: func(ctx context.Context, s *Service, a Args) (any, error) {
			return s.Close(ctx, a.String("session_id"))
		},
	},
	{
		Name:        "draft_escalate",
		Title:       "Escalate Tier",
		Description: "Manually escalate the session tier: CASUAL -> STANDARD -> CONSEQUENTIAL.",
		Hints:       hintsCreate,
		Params: []Param{
			sessionParam,
			{Name: "reason", Type: TypeString, Description: "Why escalation is needed.", Required: true},
		},
		call: func(ctx context.Context, s *Service, a Args) (any, error) {
			return s.Escalate(ctx, a.String("session_id"), a.String("reason"))
		},
	},
	{
		Name:        "draft_deescalate",
		Title:       "De-escalate Tier",
		Description: "Manually de-escalate the session tier (authorized override): CONSEQUENTIAL -> STANDARD -> CASUAL. Logged but honored.",
		Hints:       hintsCreate,
		Params: []Param{
			sessionParam,
			{Name: "reason", Type: TypeString, Description: "Reason for de-escalation.", Required: true},
		},
		call: func(ctx context.Context, s *Service, a Args) (any, error) {
			return s.Deescalate(ctx, a.String("session_id"), a.String("reason"))
		},
	},
}

// Catalog returns the tool definitions in registration order.
func Catalog() []Tool {
	out := make([]Tool, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a tool by name.
func Lookup(name string) (Tool, bool) {
	for _, t := range catalog {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// Call dispatches a tool by name after checking required arguments.
func (s *Service) Call(ctx context.Context, name string, args Args) (any, error) {
	t, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = Args{}
	}
	for _, p := range t.Params {
		if !p.Required {
			continue
		}
		if _, present := args[p.Name]; !present {
			return nil, fmt.Errorf("%w: %s requires %s", ErrInvalidArguments, name, p.Name)
		}
	}

	res, err := t.call(ctx, s, args)
	if err != nil {
		s.logger.Debug("Tool call failed", "tool", name, "error", err)
		return nil, err
	}
	return res, nil
}
