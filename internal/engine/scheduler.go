package engine

import (
	"github.com/roach88/patchwork/internal/diag"
	"github.com/roach88/patchwork/internal/index"
	"github.com/roach88/patchwork/internal/ir"
)

// ModuleSourceAvailable runs every applicable rule set against the module
// and returns the text the loader should execute.
//
// It never fails: misuse and collaborator failures are reported through
// diagnostics and the loader gets the best text available.
func (e *Engine) ModuleSourceAvailable(id ir.ModuleID, text string) string {
	if !e.active {
		e.logger.Error("module source before Init, passing through", "module_id", string(id))
		return text
	}
	if !e.ix.Index(id, text) {
		d := diag.Warn(diag.CodeDuplicateModule, "", "loader reported module source twice")
		d.ModuleID = id
		e.layer.Report(d)
		return text
	}

	if e.onIndexed != nil {
		e.layer.Guard("", id, "index hook", func() { e.onIndexed(id) })
	}
	for _, en := range e.ruleSets {
		e.schedule(en, id)
	}

	state, err := e.ix.Settle(id)
	if err != nil {
		e.transitionFailed(id, err)
	}
	e.recordModule(id, "")

	out, _ := e.ix.CurrentText(id)
	e.logger.Debug("module settled", "module_id", string(id), "state", state.String())
	return out
}

// schedule decides whether en runs against module id and runs it.
//
// The signature is checked before any skip, so a rule set whose find string
// is present counts as matched even when it does not run here.
func (e *Engine) schedule(en *entry, id ir.ModuleID) {
	rs := en.rs
	if en.removed || !e.matcher.Matches(rs.Find, id) {
		return
	}
	en.matched = true

	switch {
	case en.consumed:
		return
	case e.applied.Seen(id, rs.ID):
		return
	case e.layer.Disabled(rs.Owner, id):
		e.logger.Debug("owner disabled on module, skipping rule set",
			"owner", rs.Owner, "module_id", string(id), "rule_set_id", shortID(rs.ID))
		return
	}

	if rs.Predicate != nil {
		ok, failure := e.layer.GuardBool(rs.Owner, id, "rule set predicate", rs.Predicate)
		if failure != nil {
			e.recordAttempt(ir.Attempt{
				Owner: rs.Owner, RuleSetID: rs.ID, ModuleID: id,
				Outcome: ir.OutcomeFailed, RuleIndex: diag.NoRule,
				Reason: string(diag.CodeCallbackPanicked),
			})
			return
		}
		if !ok {
			e.logger.Debug("rule set predicate false",
				"owner", rs.Owner, "module_id", string(id), "rule_set_id", shortID(rs.ID))
			e.recordAttempt(ir.Attempt{
				Owner: rs.Owner, RuleSetID: rs.ID, ModuleID: id,
				Outcome: ir.OutcomeGuarded, RuleIndex: diag.NoRule,
			})
			return
		}
	}

	e.apply(en, id)
}

// ApplyRuleSet attempts one registered rule set against one module that has
// not settled yet, bypassing signature and predicate checks.
//
// ModuleSourceAvailable settles a module before it returns, so outside the
// scheduler a module is only unsettled inside a WithIndexHook callback.
// Called later, ApplyRuleSet reports ErrModuleSettled or ErrAlreadyApplied.
//
// A second attempt of the same rule set on the same module is rejected with
// ErrAlreadyApplied and leaves the text untouched. An atomic failure is
// returned as a *diag.Diagnostic inside an *ApplyError.
func (e *Engine) ApplyRuleSet(id ir.ModuleID, ruleSetID string) error {
	fail := func(err error) error {
		return &ApplyError{RuleSetID: ruleSetID, ModuleID: id, Err: err}
	}

	if !e.active {
		return fail(ErrNoSession)
	}
	en, ok := e.byID[ruleSetID]
	if !ok || en.removed {
		return fail(ErrUnknownRuleSet)
	}
	rec, ok := e.ix.Get(id)
	if !ok {
		return fail(ErrUnknownModule)
	}
	if e.applied.Seen(id, ruleSetID) {
		return fail(ErrAlreadyApplied)
	}
	if rec.State != ir.ModuleIndexed {
		return fail(ErrModuleSettled)
	}

	if d := e.apply(en, id); d != nil {
		return fail(d)
	}
	return nil
}

// apply runs en's rules against the module's current text and commits a
// successful result. It returns the abort diagnostic, if any.
func (e *Engine) apply(en *entry, id ir.ModuleID) *diag.Diagnostic {
	rs := en.rs
	e.applied.Record(id, rs.ID)
	if !rs.All {
		en.consumed = true
	}
	e.stats.attempts++

	before, _ := e.ix.CurrentText(id)
	res, failure := e.applier.Apply(rs, before)

	for i := range res.Warnings {
		d := e.attribute(res.Warnings[i].Diagnostic(), rs, id)
		if rs.NoWarn {
			e.layer.Note(d)
		} else {
			e.layer.Report(d)
		}
	}
	e.stats.warnings += len(res.Warnings)

	attempt := ir.Attempt{
		Owner:     rs.Owner,
		RuleSetID: rs.ID,
		ModuleID:  id,
		RuleIndex: diag.NoRule,
		Warnings:  len(res.Warnings),
	}

	if failure != nil {
		d := e.attribute(failure.Diagnostic(), rs, id)
		e.layer.Fail(d)
		e.stats.aborted++
		attempt.Outcome = ir.OutcomeAborted
		attempt.RuleIndex = failure.RuleIndex
		attempt.Reason = string(failure.Reason)
		e.recordAttempt(attempt)
		return d
	}

	if res.Text == before {
		attempt.Outcome = ir.OutcomeUnchanged
		e.recordAttempt(attempt)
		return nil
	}

	if err := e.ix.Commit(id, res.Text); err != nil {
		e.transitionFailed(id, err)
		attempt.Outcome = ir.OutcomeUnchanged
		e.recordAttempt(attempt)
		return nil
	}
	e.stats.applied++
	attempt.Outcome = ir.OutcomeApplied
	e.recordAttempt(attempt)

	e.logger.Info("rule set applied",
		"owner", rs.Owner,
		"module_id", string(id),
		"rule_set_id", shortID(rs.ID),
		"rules_applied", res.Applied,
		"warnings", len(res.Warnings),
	)
	return nil
}

func (e *Engine) attribute(d *diag.Diagnostic, rs ir.RuleSet, id ir.ModuleID) *diag.Diagnostic {
	d.ModuleID = id
	d.Signature = rs.Find
	d.RuleSetID = rs.ID
	return d
}

// ModuleInstantiated records the module's exports and resolves every pending
// lazy request it satisfies before returning.
func (e *Engine) ModuleInstantiated(id ir.ModuleID, exports ir.Exports) {
	if !e.active {
		e.logger.Error("module instantiated before Init, ignoring", "module_id", string(id))
		return
	}
	if err := e.ix.MarkInstantiated(id, exports); err != nil {
		e.transitionFailed(id, err)
		return
	}
	e.recordModule(id, "")

	text, _ := e.ix.CurrentText(id)
	n := e.resolver.OnModuleInstantiated(id, text, exports)
	e.stats.resolved += n
	if n > 0 {
		e.logger.Debug("lazy requests resolved", "module_id", string(id), "count", n)
	}
}

// ModuleFailed records that the module's instantiation threw. Lazy requests
// never bind to a failed module.
func (e *Engine) ModuleFailed(id ir.ModuleID, cause error) {
	if !e.active {
		e.logger.Error("module failure before Init, ignoring", "module_id", string(id))
		return
	}
	if err := e.ix.MarkFailed(id, cause); err != nil {
		e.transitionFailed(id, err)
		return
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	e.recordModule(id, msg)
	e.logger.Warn("module instantiation failed", "module_id", string(id), "error", cause)
}

func (e *Engine) transitionFailed(id ir.ModuleID, err error) {
	d := diag.Warn(diag.CodeInvalidTransition, "", "loader event out of order")
	d.ModuleID = id
	d.Err = err
	e.layer.Report(d)
}

func (e *Engine) recordAttempt(a ir.Attempt) {
	a.Seq = e.clock.Next()
	e.journal.RecordAttempt(a)
}

func (e *Engine) recordModule(id ir.ModuleID, errMsg string) {
	rec, ok := e.ix.Get(id)
	if !ok {
		return
	}
	e.journal.RecordModule(moduleEvent(e.clock.Next(), rec, errMsg))
}

func moduleEvent(seq int64, rec *index.Record, errMsg string) ir.ModuleEvent {
	ev := ir.ModuleEvent{
		Seq:       seq,
		ModuleID:  rec.ID,
		State:     rec.State,
		RawDigest: ir.SourceDigest(rec.RawSource),
		Error:     errMsg,
	}
	if rec.Patched {
		ev.PatchedDigest = ir.SourceDigest(rec.PatchedSource)
	}
	return ev
}
