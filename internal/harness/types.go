package harness

import (
	"github.com/roach88/patchwork/internal/diag"
	"github.com/roach88/patchwork/internal/ir"
)

// ModuleOutput is the text the loader executed for one module.
type ModuleOutput struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Patched bool   `json:"patched"`
}

// LazyOutcome is how a plugin's lazy request ended.
type LazyOutcome struct {
	State  string `json:"state"`
	Module string `json:"module,omitempty"`
	Code   string `json:"code,omitempty"`
}

// Trace is the journaled session, read back from the store.
type Trace struct {
	Modules     []ir.ModuleEvent  `json:"modules"`
	Attempts    []ir.Attempt      `json:"attempts"`
	Diagnostics []diag.Diagnostic `json:"-"`
	Summary     ir.SessionSummary `json:"summary"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Outputs holds each module's executed text in first-seen order.
	Outputs []ModuleOutput `json:"outputs"`

	// Lazy maps plugin~name to the request's final outcome.
	Lazy map[string]LazyOutcome `json:"lazy,omitempty"`

	// Trace is the session journal.
	Trace Trace `json:"trace"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Outputs: []ModuleOutput{},
		Lazy:    make(map[string]LazyOutcome),
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Output returns the executed text of module id.
func (r *Result) Output(id string) (ModuleOutput, bool) {
	for _, o := range r.Outputs {
		if o.ID == id {
			return o, true
		}
	}
	return ModuleOutput{}, false
}

// FinalState returns the last journaled state of module id.
func (r *Result) FinalState(id string) (ir.ModuleState, bool) {
	state, found := ir.ModuleUnseen, false
	for _, ev := range r.Trace.Modules {
		if string(ev.ModuleID) == id {
			state, found = ev.State, true
		}
	}
	return state, found
}
