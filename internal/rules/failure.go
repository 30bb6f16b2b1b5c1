package rules

import (
	"fmt"

	"github.com/roach88/patchwork/internal/diag"
)

// Reason says why a rule failed.
type Reason string

const (
	ReasonPatternNotFound     Reason = "pattern_not_found"
	ReasonNoEffect            Reason = "no_effect"
	ReasonPatternInvalid      Reason = "pattern_invalid"
	ReasonTemplateInvalid     Reason = "template_invalid"
	ReasonPatternTimeout      Reason = "pattern_timeout"
	ReasonReplacementPanicked Reason = "replacement_panicked"
	ReasonPredicatePanicked   Reason = "predicate_panicked"
)

// Code maps a reason to its diagnostic code.
func (r Reason) Code() diag.Code {
	switch r {
	case ReasonPatternNotFound:
		return diag.CodePatternNotFound
	case ReasonNoEffect:
		return diag.CodeNoEffect
	case ReasonPatternInvalid, ReasonTemplateInvalid:
		return diag.CodePatternInvalid
	case ReasonPatternTimeout:
		return diag.CodePatternTimeout
	default:
		return diag.CodeCallbackPanicked
	}
}

// Failure describes one rule that did not apply.
//
// When returned from Apply it is the atomic failure that aborted the set.
// Non-atomic failures appear in Result.Warnings instead.
type Failure struct {
	Owner     string
	RuleIndex int
	Reason    Reason
	// Pattern is the failing rule's pattern as rendered in diagnostics.
	Pattern string
	Atomic  bool
	Err     error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	msg := fmt.Sprintf("rule %d %s: %s", f.RuleIndex, f.Pattern, f.Reason)
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error, if any.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Diagnostic converts the failure to an attributed diagnostic.
//
// Atomic failures become ATOMIC_RULE_SET_ABORTED with the rule-level code in
// the "reason" detail. Non-atomic ones keep the rule-level code as warnings.
func (f *Failure) Diagnostic() *diag.Diagnostic {
	var d *diag.Diagnostic
	if f.Atomic {
		d = diag.New(diag.CodeAtomicAborted, f.Owner,
			fmt.Sprintf("atomic rule %d failed, rule set rolled back", f.RuleIndex))
	} else {
		d = diag.Warn(f.Reason.Code(), f.Owner,
			fmt.Sprintf("rule %d skipped", f.RuleIndex))
	}
	d.RuleIndex = f.RuleIndex
	d.Err = f
	d.Details = map[string]string{
		"reason":  string(f.Reason),
		"pattern": f.Pattern,
	}
	return d
}
