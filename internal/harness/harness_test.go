package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchwork/internal/diag"
	"github.com/roach88/patchwork/internal/host"
)

const tokenPack = `
package rules

plugin: NoTrack: {
	description: "replace the tracking call"
	patches: [{
		find: "FOO_TOKEN"
		replacement: {match: "x=1", replace: "x=2"}
	}]
}
`

func intPtr(n int) *int { return &n }

func TestRun_FooToken(t *testing.T) {
	s := &Scenario{
		Name:        "foo_token_inline",
		Description: "inline pack and bundle",
		Plugins:     tokenPack,
		Modules: []host.ModuleSpec{
			{ID: "1", Source: "let x=1; FOO_TOKEN"},
			{ID: "2", Source: "let x=1;"},
		},
		Assertions: []Assertion{
			{Type: AssertModuleText, Module: "1", Text: "let x=2; FOO_TOKEN"},
			{Type: AssertModuleText, Module: "2", Text: "let x=1;"},
			{Type: AssertModuleState, Module: "1", State: "instantiated"},
			{Type: AssertAttempt, Owner: "NoTrack", Module: "1", Outcome: "applied"},
			{Type: AssertNoDiagnostics},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	out, ok := result.Output("1")
	require.True(t, ok)
	assert.True(t, out.Patched)
	out, ok = result.Output("2")
	require.True(t, ok)
	assert.False(t, out.Patched)

	assert.Equal(t, "scenario-1", result.Trace.Summary.ID)
	assert.Equal(t, 2, result.Trace.Summary.Modules)
	assert.Equal(t, 1, result.Trace.Summary.Patched)
	require.Len(t, result.Trace.Attempts, 1)
	assert.Empty(t, result.Trace.Diagnostics)
}

func TestRun_AtomicAbortLeavesModuleUntouched(t *testing.T) {
	s := &Scenario{
		Name:        "atomic_abort",
		Description: "a grouped rule set rolls back on a missing pattern",
		Plugins: `
package rules

plugin: P: patches: [{
	find: "SIG"
	all: true
	group: true
	replacement: [
		{match: "v=1", replace: "v=2"},
		{match: "w=1", replace: "w=2"},
	]
}]
`,
		Modules: []host.ModuleSpec{
			{ID: "A", Source: "SIG v=1 w=1"},
			{ID: "B", Source: "SIG v=1 w=9"},
		},
		Assertions: []Assertion{
			{Type: AssertModuleText, Module: "A", Text: "SIG v=2 w=2"},
			{Type: AssertModuleText, Module: "B", Text: "SIG v=1 w=9"},
			{Type: AssertAttempt, Owner: "P", Module: "B", Outcome: "aborted"},
			{Type: AssertDiagnostic, Code: string(diag.CodeAtomicAborted), Module: "B", Count: intPtr(1)},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 1, result.Trace.Summary.Aborted)
}

func TestRun_LazyOutcomes(t *testing.T) {
	s := &Scenario{
		Name:        "lazy",
		Description: "one lazy request resolves and one never does",
		Plugins: `
package rules

plugin: Users: lazy: [
	{name: "store", find: "getUser", props: ["getUser"]},
	{find: "Settings", props: ["load"]},
]
`,
		Modules: []host.ModuleSpec{
			{ID: "5", Source: "e.getUser=function(){}", Exports: map[string]host.ExportSpec{
				"getUser": {Kind: host.KindFunction},
			}},
		},
		Assertions: []Assertion{
			{Type: AssertLazy, Lazy: "Users~store", State: "resolved", Module: "5"},
			{Type: AssertLazy, Lazy: "Users~1", State: "failed"},
			{Type: AssertDiagnostic, Code: string(diag.CodeNeverResolved), Owner: "Users", Count: intPtr(1)},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, LazyOutcome{State: "resolved", Module: "5"}, result.Lazy["Users~store"])
	assert.Equal(t, string(diag.CodeNeverResolved), result.Lazy["Users~1"].Code)
	assert.Equal(t, 1, result.Trace.Summary.Resolved)
	assert.Equal(t, 1, result.Trace.Summary.Unresolved)
}

func TestRun_FailedAssertionsAreReported(t *testing.T) {
	s := &Scenario{
		Name:        "failing",
		Description: "every assertion is wrong",
		Plugins:     tokenPack,
		Modules:     []host.ModuleSpec{{ID: "1", Source: "let x=1; FOO_TOKEN"}},
		Assertions: []Assertion{
			{Type: AssertModuleText, Module: "1", Text: "let x=1; FOO_TOKEN"},
			{Type: AssertModuleLacks, Module: "1", Text: "x=2"},
			{Type: AssertModuleContains, Module: "9", Text: "x"},
			{Type: AssertModuleState, Module: "1", State: "failed"},
			{Type: AssertAttempt, Owner: "NoTrack", Module: "1", Outcome: "aborted"},
			{Type: AssertDiagnostic, Code: string(diag.CodePatternNotFound)},
			{Type: AssertLazy, Lazy: "NoTrack~0", State: "resolved"},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 7)
	assert.Contains(t, result.Errors[0], "Assertion failed: module_text")
	assert.Contains(t, result.Errors[2], "module never reached the loader")
	assert.Contains(t, result.Errors[3], "Actual: instantiated")
	assert.Contains(t, result.Errors[4], "NoTrack on 1: applied")
	assert.Contains(t, result.Errors[6], "no such lazy request")
}

func TestRun_DiagnosticCountMismatch(t *testing.T) {
	s := &Scenario{
		Name:        "count",
		Description: "a missing pattern warns once",
		Plugins: `
package rules

plugin: X: patches: [{find: "SIG", replacement: {match: "not-there", replace: "boom"}}]
`,
		Modules: []host.ModuleSpec{{ID: "1", Source: "SIG a=1"}},
		Assertions: []Assertion{
			{Type: AssertDiagnostic, Code: string(diag.CodePatternNotFound), Owner: "X", Count: intPtr(2)},
			{Type: AssertDiagnostic, Code: string(diag.CodePatternNotFound), Owner: "X", Count: intPtr(1)},
			{Type: AssertDiagnostic, Code: string(diag.CodePatternNotFound), Owner: "Y", Count: intPtr(0)},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "exactly 2 PATTERN_NOT_FOUND for owner X")
	assert.Contains(t, result.Errors[0], "1 matching")
}

func TestRun_SignatureNeverSeen(t *testing.T) {
	s := &Scenario{
		Name:        "unseen",
		Description: "a rule set whose signature never appears",
		Plugins:     tokenPack,
		Modules:     []host.ModuleSpec{{ID: "1", Source: "nothing here"}},
		Assertions: []Assertion{
			{Type: AssertDiagnostic, Code: string(diag.CodeSignatureNotFound), Owner: "NoTrack", Count: intPtr(1)},
			{Type: AssertModuleState, Module: "1", State: "instantiated"},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Trace.Attempts)
}

func TestRun_InvalidRules(t *testing.T) {
	tests := []struct {
		name    string
		plugins string
		errMsg  string
	}{
		{
			name:    "syntax error",
			plugins: "package rules\nplugin: {",
			errMsg:  "failed to load rules",
		},
		{
			name: "invalid regex",
			plugins: `
package rules

plugin: Bad: patches: [{find: "SIG", replacement: {match: "(", replace: "x", literal: false}}]
`,
			errMsg: "invalid rules",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Scenario{
				Name:        "bad",
				Description: "bad rules",
				Plugins:     tt.plugins,
				Modules:     []host.ModuleSpec{{ID: "1", Source: "SIG"}},
				Assertions:  []Assertion{{Type: AssertNoDiagnostics}},
			}
			_, err := Run(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestRun_ScenarioFile(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "foo_token.yaml"))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestSnapshotIsDeterministic(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "foo_token.yaml"))
	require.NoError(t, err)

	r1, err := Run(s)
	require.NoError(t, err)
	r2, err := Run(s)
	require.NoError(t, err)

	a, err := Snapshot(s.Name, r1)
	require.NoError(t, err)
	b, err := Snapshot(s.Name, r2)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	assert.Contains(t, string(a), `"scenario_name":"foo_token"`)
	assert.Contains(t, string(a), `"text":"let x=2; FOO_TOKEN"`)
	assert.Contains(t, string(a), `"Users~store":{"module":"2","state":"resolved"}`)
	assert.NotContains(t, string(a), "rule_set_id")
}

func TestAssertGolden(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "foo_token.yaml"))
	require.NoError(t, err)
	result, err := Run(s)
	require.NoError(t, err)
	data, err := Snapshot(s.Name, result)
	require.NoError(t, err)

	t.Chdir(t.TempDir())
	require.NoError(t, os.MkdirAll(GoldenDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(GoldenDir, s.Name+".golden"), data, 0644))

	require.NoError(t, AssertGolden(t, s.Name, result))
}
