package engine

import (
	"github.com/roach88/patchwork/internal/diag"
	"github.com/roach88/patchwork/internal/ir"
)

// Report summarizes a session at Teardown.
type Report struct {
	Summary ir.SessionSummary
	// States counts modules by final state name.
	States      map[string]int
	Diagnostics []diag.Diagnostic
}

// Failures returns the error-severity diagnostics.
func (r Report) Failures() []diag.Diagnostic {
	var out []diag.Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == diag.SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// ByOwner groups diagnostics by owner. Loader misuse has an empty owner.
func (r Report) ByOwner() map[string][]diag.Diagnostic {
	out := make(map[string][]diag.Diagnostic)
	for _, d := range r.Diagnostics {
		out[d.Owner] = append(out[d.Owner], d)
	}
	return out
}

// Clean reports whether the session produced no error diagnostics.
func (r Report) Clean() bool {
	return len(r.Failures()) == 0
}

func (e *Engine) buildReport(unresolved int) Report {
	states := make(map[string]int)
	patched := 0
	for _, rec := range e.ix.Records() {
		states[rec.State.String()]++
		if rec.Patched {
			patched++
		}
	}
	history := e.layer.History()
	return Report{
		Summary: ir.SessionSummary{
			ID:          e.sessionID,
			Modules:     e.ix.Len(),
			Patched:     patched,
			RuleSets:    e.liveRuleSets(),
			Attempts:    e.stats.attempts,
			Applied:     e.stats.applied,
			Aborted:     e.stats.aborted,
			Warnings:    e.stats.warnings,
			Resolved:    e.stats.resolved,
			Unresolved:  unresolved,
			Diagnostics: len(history),
		},
		States:      states,
		Diagnostics: history,
	}
}
