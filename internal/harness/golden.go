package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/patchwork/internal/ir"
)

// GoldenDir is where golden snapshots live, relative to the test package.
const GoldenDir = "testdata/golden"

// Snapshot renders a result as canonical JSON for golden comparison.
//
// Rule set ids and source digests are left out: they are content hashes
// and would churn every golden file when hashing changes, without saying
// anything about behavior.
func Snapshot(scenarioName string, r *Result) ([]byte, error) {
	outputs := make([]any, len(r.Outputs))
	for i, o := range r.Outputs {
		outputs[i] = map[string]any{"id": o.ID, "text": o.Text, "patched": o.Patched}
	}

	lazy := make(map[string]any, len(r.Lazy))
	for ref, out := range r.Lazy {
		m := map[string]any{"state": out.State}
		if out.Module != "" {
			m["module"] = out.Module
		}
		if out.Code != "" {
			m["code"] = out.Code
		}
		lazy[ref] = m
	}

	attempts := make([]any, len(r.Trace.Attempts))
	for i, a := range r.Trace.Attempts {
		m := map[string]any{
			"seq":        a.Seq,
			"owner":      a.Owner,
			"module":     a.ModuleID,
			"outcome":    string(a.Outcome),
			"rule_index": a.RuleIndex,
			"warnings":   a.Warnings,
		}
		if a.Reason != "" {
			m["reason"] = a.Reason
		}
		attempts[i] = m
	}

	modules := make([]any, len(r.Trace.Modules))
	for i, ev := range r.Trace.Modules {
		modules[i] = map[string]any{"seq": ev.Seq, "module": ev.ModuleID, "state": ev.State.String()}
	}

	diags := make([]any, len(r.Trace.Diagnostics))
	for i, d := range r.Trace.Diagnostics {
		m := map[string]any{
			"seq":        d.Seq,
			"code":       string(d.Code),
			"severity":   d.Severity.String(),
			"rule_index": d.RuleIndex,
		}
		if d.Owner != "" {
			m["owner"] = d.Owner
		}
		if d.ModuleID != "" {
			m["module"] = d.ModuleID
		}
		diags[i] = m
	}

	sum := r.Trace.Summary
	snapshot := map[string]any{
		"scenario_name": scenarioName,
		"outputs":       outputs,
		"lazy":          lazy,
		"attempts":      attempts,
		"modules":       modules,
		"diagnostics":   diags,
		"summary": map[string]any{
			"modules":     sum.Modules,
			"patched":     sum.Patched,
			"rule_sets":   sum.RuleSets,
			"attempts":    sum.Attempts,
			"applied":     sum.Applied,
			"aborted":     sum.Aborted,
			"warnings":    sum.Warnings,
			"resolved":    sum.Resolved,
			"unresolved":  sum.Unresolved,
			"diagnostics": sum.Diagnostics,
		},
	}
	return ir.MarshalCanonical(snapshot)
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
