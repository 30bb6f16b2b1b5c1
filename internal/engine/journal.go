package engine

import (
	"github.com/roach88/patchwork/internal/diag"
	"github.com/roach88/patchwork/internal/ir"
)

// Journal receives the session record as the engine produces it.
// The SQLite store implements it; journal errors are the journal's to log.
type Journal interface {
	diag.Sink
	BeginSession(id string)
	RecordModule(ir.ModuleEvent)
	RecordAttempt(ir.Attempt)
	EndSession(ir.SessionSummary)
}

type nopJournal struct{}

func (nopJournal) Record(diag.Diagnostic) {}
func (nopJournal) BeginSession(string) {}
func (nopJournal) RecordModule(ir.ModuleEvent) {}
func (nopJournal) RecordAttempt(ir.Attempt) {}
func (nopJournal) EndSession(ir.SessionSummary) {}
