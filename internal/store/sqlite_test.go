package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/draft-protocol/draftd/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "draft.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateSessionRejectsInvalidTier(t *testing.T) {
	s := newTestStore(t)

	for _, tier := range []domain.Tier{"", "REJECTED", "casual", "URGENT"} {
		_, err := s.CreateSession(context.Background(), tier, "intent")
		assert.ErrorIs(t, err, ErrInvalidTier, "tier %q", tier)
	}
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateSession(ctx, domain.TierStandard, "Build a tool")
	require.NoError(t, err)
	assert.Len(t, id, 12)

	sess, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, domain.TierStandard, sess.Tier)
	assert.Equal(t, "Build a tool", sess.Intent)
	assert.Empty(t, sess.Dimensions)
	assert.Empty(t, sess.Assumptions)
	assert.False(t, sess.GatePassed)
	assert.False(t, sess.Closed())
}

func TestGetSessionMissingReturnsNil(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.GetSession(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestNestedDataRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateSession(ctx, domain.TierConsequential, "governance change")
	require.NoError(t, err)

	conf := 0.8
	yes := true
	dims := domain.DimensionMap{
		domain.DimDefine: {Fields: map[string]domain.FieldState{
			"D1": domain.ConfirmedField("What exactly is being created?", "a gate"),
			"D2": domain.Assessed("What domain does it belong to?", domain.StatusAmbiguous, 0.4, "governance"),
		}},
		domain.DimRules: domain.ScreenedDimension("no delegated authority"),
	}
	assumptions := []domain.Assumption{
		{Claim: "R is not applicable", Source: domain.SourceScreening, Falsifier: "if not", Confidence: &conf},
		{Claim: "manual", Source: domain.SourceManual, Falsifier: "x", Verified: &yes, Note: "ok"},
	}

	err = s.UpdateSession(ctx, id, SessionUpdate{Dimensions: dims, Assumptions: &assumptions})
	require.NoError(t, err)

	got, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	if diff := cmp.Diff(dims, got.Dimensions); diff != "" {
		t.Errorf("dimensions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(assumptions, got.Assumptions); diff != "" {
		t.Errorf("assumptions mismatch (-want +got):\n%s", diff)
	}
}

func TestActiveSessionIsMostRecentOpen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateSession(ctx, domain.TierCasual, "first")
	require.NoError(t, err)
	second, err := s.CreateSession(ctx, domain.TierCasual, "second")
	require.NoError(t, err)

	active, err := s.GetActiveSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second, active.ID)

	require.NoError(t, s.CloseSession(ctx, second))
	active, err = s.GetActiveSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, first, active.ID)

	require.NoError(t, s.CloseSession(ctx, first))
	active, err = s.GetActiveSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestClosedSessionRejectsWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateSession(ctx, domain.TierStandard, "x")
	require.NoError(t, err)
	require.NoError(t, s.CloseSession(ctx, id))

	passed := true
	err = s.UpdateSession(ctx, id, SessionUpdate{GatePassed: &passed})
	assert.ErrorIs(t, err, ErrSessionNotWritable)
	assert.ErrorIs(t, s.CloseSession(ctx, id), ErrSessionNotWritable)

	sess, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	assert.True(t, sess.Closed())
	assert.False(t, sess.GatePassed)
}

func TestApplyWithAuditIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateSession(ctx, domain.TierStandard, "x")
	require.NoError(t, err)

	bad := domain.Tier("BOGUS")
	err = s.ApplyWithAudit(ctx, id, SessionUpdate{Tier: &bad}, AuditRecord{Tool: "draft_escalate", Action: "x"})
	require.ErrorIs(t, err, ErrInvalidTier)

	entries, err := s.ListAudit(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, entries)

	tier := domain.TierConsequential
	err = s.ApplyWithAudit(ctx, id, SessionUpdate{Tier: &tier},
		AuditRecord{Tool: "draft_escalate", Action: "STANDARD -> CONSEQUENTIAL", Detail: "risk"})
	require.NoError(t, err)

	entries, err = s.ListAudit(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "draft_escalate", entries[0].Tool)
	assert.Equal(t, "risk", entries[0].Detail)

	sess, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TierConsequential, sess.Tier)
}

func TestAuditTrailKeepsWriteOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateSession(ctx, domain.TierCasual, "x")
	require.NoError(t, err)

	for _, action := range []string{"one", "two", "three"} {
		require.NoError(t, s.AppendAudit(ctx, id, AuditRecord{Tool: "t", Action: action}))
	}

	entries, err := s.ListAudit(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "one", entries[0].Action)
	assert.Equal(t, "three", entries[2].Action)
}

func TestListIdleSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	s.now = func() time.Time { return base.Add(-2 * time.Hour) }
	stale, err := s.CreateSession(ctx, domain.TierCasual, "stale")
	require.NoError(t, err)

	s.now = func() time.Time { return base }
	_, err = s.CreateSession(ctx, domain.TierCasual, "fresh")
	require.NoError(t, err)

	idle, err := s.ListIdleSessions(ctx, time.Hour)
	require.NoError(t, err)
	require.Len(t, idle, 1)
	assert.Equal(t, stale, idle[0].ID)
}

func TestInMemoryDatabase(t *testing.T) {
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	defer s.Close()

	id, err := s.CreateSession(context.Background(), domain.TierCasual, "hello")
	require.NoError(t, err)

	sess, err := s.GetSession(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, sess)
}
