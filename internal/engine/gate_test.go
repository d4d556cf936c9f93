package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/draft-protocol/draftd/internal/domain"
	"github.com/draft-protocol/draftd/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func confirmAll(t *testing.T, e *Engine, id string) {
	t.Helper()
	ctx := context.Background()
	sess, err := e.Session(ctx, id)
	require.NoError(t, err)

	var keys []string
	sess.Dimensions.EachActiveField(func(v domain.FieldVisit) {
		keys = append(keys, v.Field.Key)
	})
	for _, k := range keys {
		_, err := e.ConfirmField(ctx, id, k, "answer for "+k)
		require.NoError(t, err)
	}
}

func TestGatePassesWhenEverythingConfirmed(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	id := newSession(t, e, domain.TierStandard, "Build a tool")

	_, err := e.MapDimensions(ctx, id, "Build a tool for processing data")
	require.NoError(t, err)
	confirmAll(t, e, id)

	gate, err := e.CheckGate(ctx, id)
	require.NoError(t, err)
	assert.True(t, gate.Passed)
	assert.Equal(t, 15, gate.Confirmed)
	assert.Equal(t, 15, gate.Total)
	assert.Empty(t, gate.Blockers)
	assert.Equal(t, "[PASS]: 15/15", gate.Summary)

	sess, err := e.Session(ctx, id)
	require.NoError(t, err)
	assert.True(t, sess.GatePassed)
	assert.False(t, sess.GateOverridden)

	entries, err := e.Audit(ctx, id)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, "gate_check", last.Action)
	assert.Equal(t, "PASS: 15/15", last.Detail)
}

func TestGateBlockedBeforeMapping(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	id := newSession(t, e, domain.TierStandard, "Build a tool")

	gate, err := e.CheckGate(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, gate.Passed)
	assert.Equal(t, 0, gate.Total)
	require.Len(t, gate.Blockers, 1)
	assert.Contains(t, gate.Blockers[0], "No dimensions mapped")
	assert.Equal(t, "[BLOCKED]: 0/0", gate.Summary)
}

func TestGateUnmappedIgnoresAssumptions(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	id := newSession(t, e, domain.TierStandard, "Build a tool")

	_, _, err := e.AddAssumption(ctx, id, "Input is always UTF-8", domain.SourceManual, "")
	require.NoError(t, err)

	gate, err := e.CheckGate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"No dimensions mapped — call draft_map before checking gate"}, gate.Blockers)
}

func TestGateBlockersNameFields(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	id := newSession(t, e, domain.TierStandard, "Build a tool")

	_, err := e.MapDimensions(ctx, id, "Build a tool for processing data")
	require.NoError(t, err)

	gate, err := e.CheckGate(ctx, id)
	require.NoError(t, err)
	assert.False(t, gate.Passed)
	assert.Len(t, gate.Blockers, 15)
	assert.Equal(t, "D1: AMBIGUOUS", gate.Blockers[0])
	assert.Equal(t, "D2: MISSING", gate.Blockers[1])

	sess, err := e.Session(ctx, id)
	require.NoError(t, err)
	assert.False(t, sess.GatePassed)

	entries, err := e.Audit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "FAIL: 0/15", entries[len(entries)-1].Detail)
}

func TestGateDetectsHollowConfirmation(t *testing.T) {
	e, repo := newTestEngine(t, nil)
	ctx := context.Background()
	id := newSession(t, e, domain.TierStandard, "Build a tool")

	_, err := e.MapDimensions(ctx, id, "Build a tool for processing data")
	require.NoError(t, err)
	confirmAll(t, e, id)

	// Inject a short CONFIRMED value behind ConfirmField's back.
	sess, err := e.Session(ctx, id)
	require.NoError(t, err)
	dims := sess.Dimensions.Clone()
	dims[domain.DimDefine].Fields["D1"] = domain.FieldState{Status: domain.StatusConfirmed, Extracted: " ab ", ConfirmedBy: "human"}
	require.NoError(t, repo.UpdateSession(ctx, id, store.SessionUpdate{Dimensions: dims}))

	gate, err := e.CheckGate(ctx, id)
	require.NoError(t, err)
	assert.False(t, gate.Passed)
	assert.Equal(t, 14, gate.Confirmed)
	assert.Equal(t, 15, gate.Total)
	assert.Equal(t, []string{"D1: CONFIRMED but empty/insufficient content (possible bypass)"}, gate.Blockers)
	assert.Contains(t, auditActions(t, e, id), "draft_gate:empty_confirm_detected")
}

func TestGateUnverifiedAssumptions(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	id := newSession(t, e, domain.TierStandard, "Build a tool")

	_, err := e.MapDimensions(ctx, id, "Build a tool for processing data")
	require.NoError(t, err)
	confirmAll(t, e, id)

	_, _, err = e.AddAssumption(ctx, id, "Only CSV input", "", "")
	require.NoError(t, err)
	_, _, err = e.AddAssumption(ctx, id, "Runs locally", domain.SourceDevilsAdvocate, "If it must run in CI")
	require.NoError(t, err)

	gate, err := e.CheckGate(ctx, id)
	require.NoError(t, err)
	assert.False(t, gate.Passed)
	assert.Equal(t, []string{"2 unverified assumption(s)"}, gate.Blockers)

	_, err = e.VerifyAssumption(ctx, id, 0, true, "")
	require.NoError(t, err)
	res, err := e.VerifyAssumption(ctx, id, 1, false, "must run in CI")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Result)
	assert.Equal(t, "Re-elicit affected fields.", res.ActionNeeded)

	// A rejected assumption is answered, so it does not block.
	gate, err = e.CheckGate(ctx, id)
	require.NoError(t, err)
	assert.True(t, gate.Passed)
}

func TestOverrideGate(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	id := newSession(t, e, domain.TierStandard, "Build a tool")

	_, err := e.MapDimensions(ctx, id, "Build a tool for processing data")
	require.NoError(t, err)

	_, err = e.OverrideGate(ctx, id, "   ")
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "Reason mandatory.")

	res, err := e.OverrideGate(ctx, id, "test")
	require.NoError(t, err)
	assert.Equal(t, "OVERRIDDEN", res.Status)
	assert.Equal(t, "test", res.Reason)
	assert.Len(t, res.Blockers, 15)

	sess, err := e.Session(ctx, id)
	require.NoError(t, err)
	assert.True(t, sess.GatePassed)
	assert.True(t, sess.GateOverridden)

	entries, err := e.Audit(ctx, id)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, "override_gate", last.Tool)
	assert.Equal(t, "OVERRIDDEN", last.Action)
	assert.True(t, strings.HasPrefix(last.Detail, "AUTHORIZED: test. Blockers: [D1: AMBIGUOUS; "))

	st, err := e.Status(ctx, id)
	require.NoError(t, err)
	assert.True(t, st.GatePassed)
	assert.True(t, st.GateOverridden)
}

func TestOverrideGateAlreadyPassed(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	id := newSession(t, e, domain.TierStandard, "Build a tool")

	_, err := e.MapDimensions(ctx, id, "Build a tool for processing data")
	require.NoError(t, err)
	confirmAll(t, e, id)

	res, err := e.OverrideGate(ctx, id, "ship it")
	require.NoError(t, err)
	assert.Equal(t, "Already passed.", res.Note)
	assert.Empty(t, res.Status)
	require.NotNil(t, res.Gate)
	assert.True(t, res.Gate.Passed)

	sess, err := e.Session(ctx, id)
	require.NoError(t, err)
	assert.False(t, sess.GateOverridden)
}

func TestConfirmFieldLengthBoundary(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	id := newSession(t, e, domain.TierStandard, "Build a tool")
	_, err := e.MapDimensions(ctx, id, "Build a tool for processing data")
	require.NoError(t, err)

	res, err := e.ConfirmField(ctx, id, "D1", "")
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, StatusRejected, res.Status)

	res, err = e.ConfirmField(ctx, id, "D1", "  ab  ")
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Contains(t, err.Error(), "3+ characters")

	res, err = e.ConfirmField(ctx, id, "d1", "  abc ")
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", res.Status)
	assert.Equal(t, "D1", res.Field)
	assert.Equal(t, "abc", res.Value)

	sess, err := e.Session(ctx, id)
	require.NoError(t, err)
	d1 := sess.Dimensions[domain.DimDefine].Fields["D1"]
	assert.Equal(t, domain.StatusConfirmed, d1.Status)
	assert.Equal(t, 1.0, d1.Confidence)
	assert.Equal(t, "abc", d1.Extracted)
	assert.Equal(t, "human", d1.ConfirmedBy)

	actions := auditActions(t, e, id)
	assert.Contains(t, actions, "confirm_field:D1 REJECTED")
	assert.Contains(t, actions, "confirm_field:D1 confirmed")
}

func TestConfirmFieldRequiresMappedActiveDimension(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	id := newSession(t, e, domain.TierStandard, "Build a tool")

	_, err := e.ConfirmField(ctx, id, "D1", "a tool")
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "Dimension D not mapped")

	_, err = e.MapDimensions(ctx, id, "Build a tool")
	require.NoError(t, err)

	_, err = e.ConfirmField(ctx, id, "R1", "the founder")
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "Unscreen first")

	_, err = e.ConfirmField(ctx, id, "D9", "whatever")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestUnscreenDimension(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	id := newSession(t, e, domain.TierStandard, "Build a tool")
	_, err := e.MapDimensions(ctx, id, "Build a tool for processing data")
	require.NoError(t, err)

	for _, key := range []string{"D", "T", "d"} {
		_, err := e.UnscreenDimension(ctx, id, key)
		require.ErrorIs(t, err, ErrInvalidInput, key)
		assert.Contains(t, err.Error(), "mandatory")
	}

	_, err = e.UnscreenDimension(ctx, id, "A")
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "not screened")

	_, err = e.UnscreenDimension(ctx, id, "X")
	require.ErrorIs(t, err, ErrInvalidInput)

	res, err := e.UnscreenDimension(ctx, id, "r")
	require.NoError(t, err)
	assert.Equal(t, domain.DimRules, res.Unscreened)
	assert.Equal(t, []string{"R1", "R2", "R3", "R4", "R5"}, res.FieldsAdded)

	sess, err := e.Session(ctx, id)
	require.NoError(t, err)
	r := sess.Dimensions[domain.DimRules]
	assert.False(t, r.Screened)
	require.Len(t, r.Fields, 5)
	for k, f := range r.Fields {
		assert.Equal(t, domain.StatusMissing, f.Status, k)
		assert.Zero(t, f.Confidence, k)
		assert.Empty(t, f.Extracted, k)
	}

	// R is now decided applicable, so the gate counts its fields.
	gate, err := e.CheckGate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 20, gate.Total)
}

func TestGenerateAssumptions(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	id := newSession(t, e, domain.TierStandard, "Build a tool")
	_, err := e.MapDimensions(ctx, id, "Build a tool. Success means it works and every check passes")
	require.NoError(t, err)

	list, err := e.GenerateAssumptions(ctx, id)
	require.NoError(t, err)
	// R, A and F are screened out; only T1 is SATISFIED.
	require.Len(t, list, 4)

	assert.Equal(t, "Dimension R (Rules (Operation & Limits)) is not applicable.", list[0].Claim)
	assert.Equal(t, domain.SourceScreening, list[0].Source)
	assert.Equal(t, "If this task involves rules (operation & limits), screening was wrong.", list[0].Falsifier)
	assert.Nil(t, list[0].Verified)
	assert.Equal(t, domain.SourceScreening, list[2].Source)

	assert.Equal(t, "For T1: Keyword match (3 hits)", list[3].Claim)
	assert.Equal(t, domain.SourceContextExtraction, list[3].Source)
	assert.Equal(t, "If wrong, re-elicit T1.", list[3].Falsifier)
	require.NotNil(t, list[3].Confidence)
	assert.Equal(t, 0.6, *list[3].Confidence)

	// Regeneration replaces rather than appends.
	_, _, err = e.AddAssumption(ctx, id, "manual claim", "", "")
	require.NoError(t, err)
	list, err = e.GenerateAssumptions(ctx, id)
	require.NoError(t, err)
	assert.Len(t, list, 4)

	sess, err := e.Session(ctx, id)
	require.NoError(t, err)
	assert.Len(t, sess.Assumptions, 4)
}

func TestGenerateAssumptionsCapsAtFive(t *testing.T) {
	e, repo := newTestEngine(t, nil)
	ctx := context.Background()
	id := newSession(t, e, domain.TierStandard, "Build a tool")

	dims := domain.DimensionMap{
		domain.DimDefine:    domain.FreshDimension(domain.DimDefine),
		domain.DimRules:     domain.ScreenedDimension("n/a"),
		domain.DimArtifacts: domain.ScreenedDimension("n/a"),
		domain.DimTest:      domain.FreshDimension(domain.DimTest),
	}
	for _, k := range []string{"D1", "D2", "D3", "D4"} {
		dims[domain.DimDefine].Fields[k] = domain.Assessed("q", domain.StatusSatisfied, 0.9, "extracted "+k)
	}
	require.NoError(t, repo.UpdateSession(ctx, id, store.SessionUpdate{Dimensions: dims}))

	list, err := e.GenerateAssumptions(ctx, id)
	require.NoError(t, err)
	require.Len(t, list, 5)
	assert.Equal(t, domain.SourceScreening, list[0].Source)
	assert.Equal(t, domain.SourceScreening, list[1].Source)
	assert.Equal(t, "For D3: extracted D3", list[4].Claim)
}

func TestAddAssumption(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	id := newSession(t, e, domain.TierStandard, "Build a tool")

	_, _, err := e.AddAssumption(ctx, id, "  ", "", "")
	require.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = e.AddAssumption(ctx, id, "claim", "guesswork", "")
	require.ErrorIs(t, err, ErrInvalidInput)

	idx, a, err := e.AddAssumption(ctx, id, "Input is always UTF-8", "", "")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, domain.SourceManual, a.Source)
	assert.Equal(t, "If 'Input is always UTF-8' is wrong, re-elicit.", a.Falsifier)

	idx, _, err = e.AddAssumption(ctx, id, "Second", domain.SourceDevilsAdvocate, "custom")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Contains(t, auditActions(t, e, id), "add_assumption:[1] added")
}

func TestVerifyAssumptionOutOfRange(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	id := newSession(t, e, domain.TierStandard, "Build a tool")

	_, err := e.VerifyAssumption(ctx, id, 0, true, "")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "Index 0 out of range")

	_, _, err = e.AddAssumption(ctx, id, "claim", "", "")
	require.NoError(t, err)
	_, err = e.VerifyAssumption(ctx, id, -1, true, "")
	require.ErrorIs(t, err, ErrNotFound)

	res, err := e.VerifyAssumption(ctx, id, 0, true, "looks right")
	require.NoError(t, err)
	assert.Equal(t, "verified", res.Result)
	assert.Empty(t, res.ActionNeeded)

	sess, err := e.Session(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, sess.Assumptions[0].Verified)
	assert.True(t, *sess.Assumptions[0].Verified)
	assert.Equal(t, "looks right", sess.Assumptions[0].Note)
}

func TestElicitationReview(t *testing.T) {
	o := &fakeOracle{embed: func(string) []float32 { return nil }}
	e, _ := newTestEngine(t, o)
	ctx := context.Background()
	id := newSession(t, e, domain.TierStandard, "Build a tool")
	_, err := e.MapDimensions(ctx, id, "Build a tool for processing data")
	require.NoError(t, err)
	_, _, err = e.AddAssumption(ctx, id, "claim", "", "")
	require.NoError(t, err)

	res, err := e.ElicitationReview(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, QualityNeedsAttention, res.Quality)
	assert.Equal(t, []string{"D: 5 gaps", "A: 6 gaps", "T: 4 gaps", "1 unverified assumptions"}, res.Findings)
	assert.Equal(t, []string{"keyword_classification", "dimension_screening", "confidence_scoring", "embedding_assessment"}, res.Features)

	sess, err := e.Session(ctx, id)
	require.NoError(t, err)
	assert.True(t, sess.ReviewDone)
	assert.Equal(t, "D: 5 gaps; A: 6 gaps; T: 4 gaps; 1 unverified assumptions", sess.ReviewNotes)
	assert.Contains(t, auditActions(t, e, id), "review:quality=NEEDS_ATTENTION")
}

func TestElicitationReviewClean(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	id := newSession(t, e, domain.TierStandard, "Build a tool")
	_, err := e.MapDimensions(ctx, id, "Build a tool for processing data")
	require.NoError(t, err)
	confirmAll(t, e, id)

	res, err := e.ElicitationReview(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, QualityHigh, res.Quality)
	assert.Empty(t, res.Findings)

	sess, err := e.Session(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Clean", sess.ReviewNotes)
}
