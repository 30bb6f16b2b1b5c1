package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/patchwork/internal/diag"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Context  []string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Context) > 0 {
		fmt.Fprintf(&buf, "\nJournal:\n")
		for i, line := range e.Context {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, line)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages. All assertions are evaluated; none short-circuits.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(r *Result, a Assertion) error {
	switch a.Type {
	case AssertModuleText, AssertModuleContains, AssertModuleLacks:
		return assertModuleText(r, a)
	case AssertModuleState:
		return assertModuleState(r, a)
	case AssertAttempt:
		return assertAttempt(r, a)
	case AssertDiagnostic:
		return assertDiagnostic(r, a)
	case AssertNoDiagnostics:
		return assertNoDiagnostics(r)
	case AssertLazy:
		return assertLazy(r, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

func assertModuleText(r *Result, a Assertion) error {
	out, ok := r.Output(a.Module)
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("module %s executed", a.Module),
			Actual:   "module never reached the loader",
		}
	}

	var held bool
	var expected string
	switch a.Type {
	case AssertModuleText:
		held, expected = out.Text == a.Text, fmt.Sprintf("text %q", a.Text)
	case AssertModuleContains:
		held, expected = strings.Contains(out.Text, a.Text), fmt.Sprintf("text containing %q", a.Text)
	default:
		held, expected = !strings.Contains(out.Text, a.Text), fmt.Sprintf("text without %q", a.Text)
	}
	if held {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("module %s %s", a.Module, expected),
		Actual:   fmt.Sprintf("%q", out.Text),
	}
}

func assertModuleState(r *Result, a Assertion) error {
	state, ok := r.FinalState(a.Module)
	if ok && state.String() == a.State {
		return nil
	}
	actual := "never journaled"
	if ok {
		actual = state.String()
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("module %s in state %s", a.Module, a.State),
		Actual:   actual,
		Context:  moduleLines(r),
	}
}

func assertAttempt(r *Result, a Assertion) error {
	for _, at := range r.Trace.Attempts {
		if at.Owner == a.Owner && string(at.ModuleID) == a.Module && string(at.Outcome) == a.Outcome {
			return nil
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("attempt by %s on %s with outcome %s", a.Owner, a.Module, a.Outcome),
		Actual:   "not found in journal",
		Context:  attemptLines(r),
	}
}

func assertDiagnostic(r *Result, a Assertion) error {
	count := 0
	for _, d := range r.Trace.Diagnostics {
		if string(d.Code) != a.Code {
			continue
		}
		if a.Owner != "" && d.Owner != a.Owner {
			continue
		}
		if a.Module != "" && string(d.ModuleID) != a.Module {
			continue
		}
		count++
	}

	if (a.Count == nil && count > 0) || (a.Count != nil && count == *a.Count) {
		return nil
	}

	expected := fmt.Sprintf("at least one %s", a.Code)
	if a.Count != nil {
		expected = fmt.Sprintf("exactly %d %s", *a.Count, a.Code)
	}
	if a.Owner != "" {
		expected += " for owner " + a.Owner
	}
	if a.Module != "" {
		expected += " on module " + a.Module
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: expected,
		Actual:   fmt.Sprintf("%d matching", count),
		Context:  diagnosticLines(r.Trace.Diagnostics),
	}
}

func assertNoDiagnostics(r *Result) error {
	if len(r.Trace.Diagnostics) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertNoDiagnostics,
		Expected: "no diagnostics",
		Actual:   fmt.Sprintf("%d diagnostics", len(r.Trace.Diagnostics)),
		Context:  diagnosticLines(r.Trace.Diagnostics),
	}
}

func assertLazy(r *Result, a Assertion) error {
	out, ok := r.Lazy[a.Lazy]
	if ok && out.State == a.State && (a.Module == "" || out.Module == a.Module) {
		return nil
	}

	expected := fmt.Sprintf("lazy %s %s", a.Lazy, a.State)
	if a.Module != "" {
		expected += " to module " + a.Module
	}
	actual := "no such lazy request"
	if ok {
		actual = out.State
		if out.Module != "" {
			actual += " to module " + out.Module
		}
		if out.Code != "" {
			actual += " (" + out.Code + ")"
		}
	}
	return &AssertionError{Type: a.Type, Expected: expected, Actual: actual}
}

func moduleLines(r *Result) []string {
	lines := make([]string, len(r.Trace.Modules))
	for i, ev := range r.Trace.Modules {
		lines[i] = fmt.Sprintf("module %s -> %s", ev.ModuleID, ev.State)
	}
	return lines
}

func attemptLines(r *Result) []string {
	lines := make([]string, len(r.Trace.Attempts))
	for i, at := range r.Trace.Attempts {
		lines[i] = fmt.Sprintf("%s on %s: %s", at.Owner, at.ModuleID, at.Outcome)
	}
	return lines
}

func diagnosticLines(diags []diag.Diagnostic) []string {
	lines := make([]string, len(diags))
	for i := range diags {
		lines[i] = diags[i].Error()
	}
	return lines
}
