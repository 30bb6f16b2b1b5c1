package testutil

import (
	"github.com/roach88/patchwork/internal/diag"
	"github.com/roach88/patchwork/internal/ir"
)

// Journal records a session in memory. It satisfies engine.Journal and
// diag.Sink.
//
// Not safe for concurrent use; the engine writes from a single goroutine.
type Journal struct {
	Sessions    []string
	Modules     []ir.ModuleEvent
	Attempts    []ir.Attempt
	Diagnostics []diag.Diagnostic
	Ended       []ir.SessionSummary
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) BeginSession(id string)         { j.Sessions = append(j.Sessions, id) }
func (j *Journal) RecordModule(ev ir.ModuleEvent) { j.Modules = append(j.Modules, ev) }
func (j *Journal) RecordAttempt(a ir.Attempt)     { j.Attempts = append(j.Attempts, a) }
func (j *Journal) Record(d diag.Diagnostic)       { j.Diagnostics = append(j.Diagnostics, d) }
func (j *Journal) EndSession(s ir.SessionSummary) { j.Ended = append(j.Ended, s) }

// Codes returns the code of every recorded diagnostic in order.
func (j *Journal) Codes() []diag.Code {
	out := make([]diag.Code, len(j.Diagnostics))
	for i, d := range j.Diagnostics {
		out[i] = d.Code
	}
	return out
}

// LastState returns the last recorded state of module id.
func (j *Journal) LastState(id ir.ModuleID) (ir.ModuleState, bool) {
	for i := len(j.Modules) - 1; i >= 0; i-- {
		if j.Modules[i].ModuleID == id {
			return j.Modules[i].State, true
		}
	}
	return ir.ModuleUnseen, false
}

// Reset forgets everything recorded so far.
func (j *Journal) Reset() {
	*j = Journal{}
}
