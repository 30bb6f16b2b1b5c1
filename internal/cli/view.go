package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/patchwork/internal/diag"
	"github.com/roach88/patchwork/internal/ir"
)

// DiagnosticView is a diagnostic as the CLI prints it.
type DiagnosticView struct {
	Seq       int64             `json:"seq"`
	Code      string            `json:"code"`
	Severity  string            `json:"severity"`
	Owner     string            `json:"owner,omitempty"`
	Module    string            `json:"module,omitempty"`
	Signature string            `json:"signature,omitempty"`
	RuleIndex *int              `json:"rule_index,omitempty"`
	Message   string            `json:"message"`
	Error     string            `json:"error,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

func newDiagnosticViews(diags []diag.Diagnostic) []DiagnosticView {
	out := make([]DiagnosticView, len(diags))
	for i, d := range diags {
		v := DiagnosticView{
			Seq:       d.Seq,
			Code:      string(d.Code),
			Severity:  d.Severity.String(),
			Owner:     d.Owner,
			Module:    string(d.ModuleID),
			Signature: d.Signature,
			Message:   d.Message,
			Details:   d.Details,
		}
		if d.RuleIndex != diag.NoRule {
			idx := d.RuleIndex
			v.RuleIndex = &idx
		}
		if d.Err != nil {
			v.Error = d.Err.Error()
		}
		out[i] = v
	}
	return out
}

func printDiagnostics(w io.Writer, diags []DiagnosticView) {
	if len(diags) == 0 {
		fmt.Fprintln(w, "  (no diagnostics)")
		return
	}
	for _, d := range diags {
		mark := warnMark
		if d.Severity == diag.SeverityError.String() {
			mark = failMark
		}
		fmt.Fprintf(w, "  [%d] %s %s", d.Seq, mark.Sprint(d.Code), d.Message)
		var attrs []string
		if d.Owner != "" {
			attrs = append(attrs, "owner="+d.Owner)
		}
		if d.Module != "" {
			attrs = append(attrs, "module="+d.Module)
		}
		if d.RuleIndex != nil {
			attrs = append(attrs, fmt.Sprintf("rule=%d", *d.RuleIndex))
		}
		if len(attrs) > 0 {
			fmt.Fprintf(w, " (%s)", strings.Join(attrs, ", "))
		}
		fmt.Fprintln(w)
		if d.Error != "" {
			fmt.Fprintf(w, "       %s\n", dim.Sprint(d.Error))
		}
	}
}

func printSummary(w io.Writer, sum ir.SessionSummary) {
	fmt.Fprintf(w, "  Modules:     %d (%d patched)\n", sum.Modules, sum.Patched)
	fmt.Fprintf(w, "  Rule sets:   %d\n", sum.RuleSets)
	fmt.Fprintf(w, "  Attempts:    %d (%d applied, %d aborted, %d warnings)\n", sum.Attempts, sum.Applied, sum.Aborted, sum.Warnings)
	fmt.Fprintf(w, "  Lazy:        %d resolved, %d unresolved\n", sum.Resolved, sum.Unresolved)
	fmt.Fprintf(w, "  Diagnostics: %d\n", sum.Diagnostics)
}

// printCounts prints a name→count map in sorted key order.
func printCounts(w io.Writer, counts map[string]int) {
	for _, k := range slices.Sorted(maps.Keys(counts)) {
		fmt.Fprintf(w, "  %-13s%d\n", k+":", counts[k])
	}
}
