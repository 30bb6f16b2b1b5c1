package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchwork/internal/diag"
	"github.com/roach88/patchwork/internal/ir"
)

func TestSessionLifecycle(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.BeginSession(ctx, "s-1"))
	require.NoError(t, s.BeginSession(ctx, "s-1"), "re-open is a no-op")

	sess, err := s.ReadSession(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, sess.Ended)
	assert.Equal(t, ir.EngineVersion, sess.EngineVersion)
	assert.Equal(t, ir.IRVersion, sess.IRVersion)

	sum := ir.SessionSummary{ID: "s-1", Modules: 2, Patched: 1, Applied: 1}
	require.NoError(t, s.EndSession(ctx, sum))

	sess, err = s.ReadSession(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, sess.Ended)
	assert.Equal(t, sum, sess.Summary)
}

func TestSessionNotFound(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.ReadSession(ctx, "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = s.LatestSession(ctx)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	err = s.EndSession(ctx, ir.SessionSummary{ID: "nope"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListSessionsOrderedByID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"s-2", "s-1", "s-3"} {
		require.NoError(t, s.BeginSession(ctx, id))
	}

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "s-1", sessions[0].ID)
	assert.Equal(t, "s-3", sessions[2].ID)

	latest, err := s.LatestSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s-3", latest.ID)
}

func TestListSessionsEmpty(t *testing.T) {
	s := createTestStore(t)

	sessions, err := s.ListSessions(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, sessions)
	assert.Empty(t, sessions)
}

func TestModulesAndAttemptsReadInSeqOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.BeginSession(ctx, "s-1"))

	require.NoError(t, s.WriteModule(ctx, "s-1", ir.ModuleEvent{
		Seq: 3, ModuleID: "m", State: ir.ModuleInstantiated, RawDigest: "r", PatchedDigest: "p",
	}))
	require.NoError(t, s.WriteModule(ctx, "s-1", ir.ModuleEvent{
		Seq: 2, ModuleID: "m", State: ir.ModulePatched, RawDigest: "r", PatchedDigest: "p",
	}))
	require.NoError(t, s.WriteAttempt(ctx, "s-1", ir.Attempt{
		Seq: 1, Owner: "A", RuleSetID: "rs-1", ModuleID: "m", Outcome: ir.OutcomeApplied, RuleIndex: -1,
	}))

	modules, err := s.ReadModules(ctx, "s-1", Filter{})
	require.NoError(t, err)
	require.Len(t, modules, 2)
	assert.Equal(t, ir.ModulePatched, modules[0].State)
	assert.Equal(t, ir.ModuleInstantiated, modules[1].State)

	attempts, err := s.ReadAttempts(ctx, "s-1", Filter{})
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, ir.OutcomeApplied, attempts[0].Outcome)
	assert.Equal(t, -1, attempts[0].RuleIndex)
}

func TestWritesAreIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.BeginSession(ctx, "s-1"))

	a := ir.Attempt{Seq: 1, Owner: "A", RuleSetID: "rs", ModuleID: "m", Outcome: ir.OutcomeAborted, RuleIndex: 0}
	require.NoError(t, s.WriteAttempt(ctx, "s-1", a))
	require.NoError(t, s.WriteAttempt(ctx, "s-1", a))

	attempts, err := s.ReadAttempts(ctx, "s-1", Filter{})
	require.NoError(t, err)
	assert.Len(t, attempts, 1)
}

func TestWriteRequiresSession(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteAttempt(context.Background(), "missing", ir.Attempt{Seq: 1})
	assert.Error(t, err, "foreign key enforced")
}

func TestDiagnosticsRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.BeginSession(ctx, "s-1"))

	d := diag.Diagnostic{
		Code:      diag.CodeAtomicAborted,
		Severity:  diag.SeverityError,
		Message:   "atomic rule set aborted",
		Owner:     "A",
		ModuleID:  "m",
		Signature: "SIG",
		RuleSetID: "rs-1",
		RuleIndex: 1,
		Seq:       1,
		Details:   map[string]string{"reason": "pattern_not_found", "pattern": `"x"`},
		Err:       errors.New("boom"),
	}
	require.NoError(t, s.WriteDiagnostic(ctx, "s-1", d))
	require.NoError(t, s.WriteDiagnostic(ctx, "s-1", diag.Diagnostic{
		Code: diag.CodeSignatureNotFound, Severity: diag.SeverityWarn, Owner: "B", RuleIndex: diag.NoRule, Seq: 2,
	}))

	all, err := s.ReadDiagnostics(ctx, "s-1", Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	got := all[0]
	assert.Equal(t, d.Code, got.Code)
	assert.Equal(t, diag.SeverityError, got.Severity)
	assert.Equal(t, d.Details, got.Details)
	assert.Equal(t, ir.ModuleID("m"), got.ModuleID)
	require.Error(t, got.Err)
	assert.Equal(t, "boom", got.Err.Error())

	assert.Equal(t, diag.SeverityWarn, all[1].Severity)
	assert.Nil(t, all[1].Details)
	assert.NoError(t, all[1].Err)

	byB, err := s.ReadDiagnostics(ctx, "s-1", Filter{Owner: "B"})
	require.NoError(t, err)
	require.Len(t, byB, 1)
	assert.Equal(t, diag.CodeSignatureNotFound, byB[0].Code)
}

func TestDetailsAreCanonical(t *testing.T) {
	a, err := marshalDetails(map[string]string{"b": "2", "a": "1"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"1","b":"2"}`, a)

	empty, err := marshalDetails(nil)
	require.NoError(t, err)
	assert.Equal(t, `{}`, empty)
}

func TestFilterCompilesDeterministically(t *testing.T) {
	f := Filter{Code: diag.CodeAtomicAborted, Owner: "A", Module: "m"}

	where, args, err := f.where("diagnostics", "s-1")
	require.NoError(t, err)
	assert.Equal(t, " WHERE session_id = ? AND owner = ? AND module_id = ? AND code = ?", where)
	assert.Equal(t, []any{"s-1", "A", "m", string(diag.CodeAtomicAborted)}, args)

	where, args, err = Filter{}.where("modules", "s-1")
	require.NoError(t, err)
	assert.Equal(t, " WHERE session_id = ?", where)
	assert.Equal(t, []any{"s-1"}, args)
}

func TestFilterRejectsMissingColumns(t *testing.T) {
	_, _, err := Filter{Owner: "A"}.where("modules", "s-1")
	assert.ErrorContains(t, err, "modules cannot be filtered by owner")

	_, _, err = Filter{Code: diag.CodeAtomicAborted}.where("attempts", "s-1")
	assert.Error(t, err)

	_, _, err = Filter{}.where("sessions", "s-1")
	assert.ErrorContains(t, err, "unknown journal table")
}

func TestReadAttemptsByOutcome(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.BeginSession(ctx, "s-1"))
	require.NoError(t, s.WriteAttempt(ctx, "s-1", ir.Attempt{Seq: 1, Owner: "A", ModuleID: "m", Outcome: ir.OutcomeApplied, RuleIndex: -1}))
	require.NoError(t, s.WriteAttempt(ctx, "s-1", ir.Attempt{Seq: 2, Owner: "A", ModuleID: "n", Outcome: ir.OutcomeAborted, RuleIndex: 0}))

	aborted, err := s.ReadAttempts(ctx, "s-1", Filter{Outcome: ir.OutcomeAborted})
	require.NoError(t, err)
	require.Len(t, aborted, 1)
	assert.Equal(t, ir.ModuleID("n"), aborted[0].ModuleID)
}
