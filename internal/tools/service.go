// Package tools is the agent-facing governance tool surface. Every transport
// (MCP, REST, websocket, CLI) goes through Service so results and next-step
// hints stay identical across them.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/draft-protocol/draftd/internal/domain"
	"github.com/draft-protocol/draftd/internal/engine"
)

// ErrNoActiveSession is returned when a session id was omitted and none is open.
var ErrNoActiveSession = fmt.Errorf("%w: No active session. Use draft_intake to start one.", engine.ErrNotFound)

// Next-step hints.
const (
	nextCasual        = "Casual tier — respond naturally. Internal DRAFT mapping only."
	nextStandard      = "Call draft_map with the user's full context to map DRAFT dimensions."
	nextConsequential = "CONSEQUENTIAL: Call draft_map with full context. All 7 steps mandatory. Devil's Advocate in assumptions. Review required."
	nextMap           = "Call draft_elicit to get targeted questions for MISSING/AMBIGUOUS fields."
	nextConfirm       = "Confirm remaining fields, then call draft_gate."
	nextGatePassed    = "Gate passed. Execution may proceed."
	nextGateBlocked   = "Resolve blockers with draft_confirm and draft_verify, then call draft_gate again."

	instructionElicit      = "Present these to the human. Record answers with draft_confirm."
	instructionAssumptions = "Present each as a falsifiable claim. Use draft_verify to record human response."

	casualNote = "Casual tier: DRAFT mapping is internal only. Respond naturally."
)

// Service exposes the fifteen governance operations.
type Service struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// NewService creates a Service over eng.
func NewService(eng *engine.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{eng: eng, logger: logger}
}

// Engine returns the underlying engine.
func (s *Service) Engine() *engine.Engine {
	return s.eng
}

// resolve defaults an empty session id to the active session.
func (s *Service) resolve(ctx context.Context, id string) (string, error) {
	if id = strings.TrimSpace(id); id != "" {
		return id, nil
	}
	active, err := s.eng.ActiveSessionID(ctx)
	if err != nil {
		return "", err
	}
	if active == "" {
		return "", ErrNoActiveSession
	}
	return active, nil
}

// NextStepForTier returns the hint shown after intake.
func NextStepForTier(t domain.Tier) string {
	switch t {
	case domain.TierCasual:
		return nextCasual
	case domain.TierStandard:
		return nextStandard
	default:
		return nextConsequential
	}
}

// IntakeResult is returned by Intake.
type IntakeResult struct {
	SessionID  string      `json:"session_id"`
	Tier       domain.Tier `json:"tier"`
	Reasoning  string      `json:"classification_reasoning"`
	Confidence float64     `json:"classification_confidence"`
	NextStep   string      `json:"next_step"`
	Note       string      `json:"note,omitempty"`
	Superseded string      `json:"superseded_session,omitempty"`
}

// Intake starts a session, closing the previously active one.
func (s *Service) Intake(ctx context.Context, message, tierOverride string) (*IntakeResult, error) {
	in, err := s.eng.StartSession(ctx, message, tierOverride)
	if err != nil {
		return nil, err
	}
	res := &IntakeResult{
		SessionID:  in.SessionID,
		Tier:       in.Classification.Tier,
		Reasoning:  in.Classification.Reasoning,
		Confidence: in.Classification.Confidence,
		NextStep:   NextStepForTier(in.Classification.Tier),
		Superseded: in.Superseded,
	}
	if res.Tier == domain.TierCasual {
		res.Note = casualNote
	}
	return res, nil
}

// Classify runs the tier classifier without creating a session.
func (s *Service) Classify(ctx context.Context, message string) engine.Classification {
	return s.eng.ClassifyTier(ctx, message)
}

// MapResult is returned by Map.
type MapResult struct {
	*engine.MapResult
	Summary  map[string]any `json:"summary"`
	NextStep string         `json:"next_step"`
}

// Map maps the five dimensions against taskContext.
func (s *Service) Map(ctx context.Context, id, taskContext string) (*MapResult, error) {
	id, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := s.eng.MapDimensions(ctx, id, taskContext)
	if err != nil {
		return nil, err
	}
	return &MapResult{MapResult: res, Summary: engine.DimensionSummary(res.Dimensions), NextStep: nextMap}, nil
}

// ElicitResult is returned by Elicit.
type ElicitResult struct {
	SessionID     string            `json:"session_id"`
	QuestionCount int               `json:"question_count"`
	Questions     []engine.Question `json:"questions"`
	Instruction   string            `json:"instruction"`
}

// Elicit lists questions for unresolved fields.
func (s *Service) Elicit(ctx context.Context, id string) (*ElicitResult, error) {
	id, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	qs, err := s.eng.GenerateElicitation(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ElicitResult{SessionID: id, QuestionCount: len(qs), Questions: qs, Instruction: instructionElicit}, nil
}

// ConfirmResult is returned by Confirm.
type ConfirmResult struct {
	SessionID string `json:"session_id"`
	*engine.ConfirmResult
	NextStep string `json:"next_step,omitempty"`
}

// Confirm records a human answer for a field.
func (s *Service) Confirm(ctx context.Context, id, field, value string) (*ConfirmResult, error) {
	id, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := s.eng.ConfirmField(ctx, id, field, value)
	if err != nil {
		return nil, err
	}
	return &ConfirmResult{SessionID: id, ConfirmResult: res, NextStep: nextConfirm}, nil
}

// IndexedAssumption pairs an assumption with its positional index.
type IndexedAssumption struct {
	Index int `json:"index"`
	domain.Assumption
}

// AssumptionsResult is returned by Assumptions.
type AssumptionsResult struct {
	SessionID       string              `json:"session_id"`
	AssumptionCount int                 `json:"assumption_count"`
	Assumptions     []IndexedAssumption `json:"assumptions"`
	Instruction     string              `json:"instruction"`
}

// Assumptions regenerates the session's assumption list.
func (s *Service) Assumptions(ctx context.Context, id string) (*AssumptionsResult, error) {
	id, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	list, err := s.eng.GenerateAssumptions(ctx, id)
	if err != nil {
		return nil, err
	}
	indexed := make([]IndexedAssumption, len(list))
	for i, a := range list {
		indexed[i] = IndexedAssumption{Index: i, Assumption: a}
	}
	return &AssumptionsResult{SessionID: id, AssumptionCount: len(list), Assumptions: indexed, Instruction: instructionAssumptions}, nil
}

// Verify records a human verdict on an assumption.
func (s *Service) Verify(ctx context.Context, id string, index int, verified bool, note string) (*engine.VerifyResult, error) {
	id, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.eng.VerifyAssumption(ctx, id, index, verified, note)
}

// AddAssumptionResult is returned by AddAssumption.
type AddAssumptionResult struct {
	SessionID  string            `json:"session_id"`
	Added      IndexedAssumption `json:"added"`
	TotalCount int               `json:"total_assumptions"`
}

// AddAssumption appends a manual claim.
func (s *Service) AddAssumption(ctx context.Context, id, claim, source, falsifier string) (*AddAssumptionResult, error) {
	id, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	idx, a, err := s.eng.AddAssumption(ctx, id, claim, domain.AssumptionSource(strings.ToLower(strings.TrimSpace(source))), falsifier)
	if err != nil {
		return nil, err
	}
	return &AddAssumptionResult{SessionID: id, Added: IndexedAssumption{Index: idx, Assumption: *a}, TotalCount: idx + 1}, nil
}

// GateResult is returned by Gate.
type GateResult struct {
	SessionID string `json:"session_id"`
	*engine.GateResult
	NextStep string `json:"next_step"`
}

// Gate evaluates the confirmation gate.
func (s *Service) Gate(ctx context.Context, id string) (*GateResult, error) {
	id, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	g, err := s.eng.CheckGate(ctx, id)
	if err != nil {
		return nil, err
	}
	next := nextGateBlocked
	if g.Passed {
		next = nextGatePassed
	}
	return &GateResult{SessionID: id, GateResult: g, NextStep: next}, nil
}

// Override forces a blocked gate open with an audited reason.
func (s *Service) Override(ctx context.Context, id, reason string) (*engine.OverrideResult, error) {
	id, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.eng.OverrideGate(ctx, id, reason)
}

// Review runs the elicitation quality review.
func (s *Service) Review(ctx context.Context, id string) (*engine.ReviewResult, error) {
	id, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.eng.ElicitationReview(ctx, id)
}

// Status reports a session, defaulting to the active one.
func (s *Service) Status(ctx context.Context, id string) (*engine.Status, error) {
	id, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.eng.Status(ctx, id)
}

// Unscreen reverses screening on R, A or F.
func (s *Service) Unscreen(ctx context.Context, id, dim string) (*engine.UnscreenResult, error) {
	id, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.eng.UnscreenDimension(ctx, id, dim)
}

// CloseResult is returned by Close.
type CloseResult struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// Close ends a session.
func (s *Service) Close(ctx context.Context, id string) (*CloseResult, error) {
	id, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.eng.CloseSession(ctx, id); err != nil {
		return nil, err
	}
	return &CloseResult{SessionID: id, Status: "closed"}, nil
}

// Escalate raises the session tier by one step.
func (s *Service) Escalate(ctx context.Context, id, reason string) (*engine.TierChange, error) {
	id, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.eng.Escalate(ctx, id, reason)
}

// Deescalate lowers the session tier by one step.
func (s *Service) Deescalate(ctx context.Context, id, reason string) (*engine.TierChange, error) {
	id, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.eng.Deescalate(ctx, id, reason)
}

// Audit returns a session's audit trail.
func (s *Service) Audit(ctx context.Context, id string) ([]domain.AuditEntry, error) {
	id, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.eng.Audit(ctx, id)
}

// ErrorKind names the class of err for transports.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return "not_found"
	case errors.Is(err, engine.ErrClosed):
		return "closed"
	case errors.Is(err, engine.ErrInvalidInput), errors.Is(err, ErrInvalidArguments):
		return "invalid_input"
	case errors.Is(err, ErrUnknownTool):
		return "unknown_tool"
	default:
		return "internal"
	}
}

// ErrorPayload renders err as a structured tool error. A refused confirmation
// also carries the field and a REJECTED status.
func ErrorPayload(err error) map[string]any {
	p := map[string]any{"error": err.Error(), "kind": ErrorKind(err)}
	var rej *engine.RejectedError
	if errors.As(err, &rej) {
		p["field"] = rej.Field
		p["status"] = string(engine.StatusRejected)
	}
	return p
}
