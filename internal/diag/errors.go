package diag

import (
	"errors"
	"fmt"

	"github.com/roach88/patchwork/internal/ir"
)

// Code categorizes diagnostics.
type Code string

const (
	// CodeSignatureNotFound: a rule set's find string matched no module by
	// the end of the session.
	CodeSignatureNotFound Code = "SIGNATURE_NOT_FOUND"

	// CodePatternNotFound: a rule's pattern matched nothing in the text at
	// the time it ran.
	CodePatternNotFound Code = "PATTERN_NOT_FOUND"

	// CodeAtomicAborted: an atomic rule failed and its rule set's effect on
	// the module was rolled back.
	CodeAtomicAborted Code = "ATOMIC_RULE_SET_ABORTED"

	// CodeNeverResolved: no module satisfied a lazy request before the
	// caller gave up or the session ended.
	CodeNeverResolved Code = "LAZY_REQUEST_NEVER_RESOLVED"

	// CodeNoEffect: a pattern matched but the replacement left the text
	// unchanged.
	CodeNoEffect Code = "REPLACEMENT_NO_EFFECT"

	// CodePatternInvalid: a pattern failed to compile.
	CodePatternInvalid Code = "PATTERN_INVALID"

	// CodePatternTimeout: a pattern exceeded the match timeout.
	CodePatternTimeout Code = "PATTERN_TIMEOUT"

	// CodeCallbackPanicked: a collaborator callback panicked.
	CodeCallbackPanicked Code = "CALLBACK_PANICKED"

	// CodePendingTooLong: a lazy request is still pending after many
	// instantiations. Warning only.
	CodePendingTooLong Code = "PENDING_TOO_LONG"

	// CodeCancelled: a pending lazy request was removed by deregistration.
	CodeCancelled Code = "REQUEST_CANCELLED"

	// CodeDuplicateModule: the loader reported a module id twice.
	CodeDuplicateModule Code = "DUPLICATE_MODULE"

	// CodeInvalidTransition: a loader event arrived out of order.
	CodeInvalidTransition Code = "INVALID_TRANSITION"
)

// Severity is the log level a diagnostic is reported at.
type Severity int

const (
	SeverityWarn Severity = iota + 1
	SeverityError
)

// String returns "warn" or "error".
func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warn"
}

// NoRule marks diagnostics that are not about a specific rule.
const NoRule = -1

// Diagnostic is an attributed engine failure.
//
// Diagnostic implements error so components can return it where a Go error
// is expected; the engine itself never lets one reach the host.
type Diagnostic struct {
	Code      Code
	Severity  Severity
	Message   string
	Owner     string
	ModuleID  ir.ModuleID
	Signature string
	RuleSetID string
	// RuleIndex is the failing rule's position in its set, or NoRule.
	RuleIndex int
	// Seq is assigned by the layer when the diagnostic is reported.
	Seq     int64
	Details map[string]string
	Err     error
}

// Error implements the error interface.
func (d *Diagnostic) Error() string {
	msg := fmt.Sprintf("%s: %s", d.Code, d.Message)
	if d.Owner != "" {
		msg += fmt.Sprintf(" (owner=%s", d.Owner)
		if d.ModuleID != "" {
			msg += fmt.Sprintf(", module=%s", d.ModuleID)
		}
		if d.RuleIndex != NoRule {
			msg += fmt.Sprintf(", rule=%d", d.RuleIndex)
		}
		msg += ")"
	}
	if d.Err != nil {
		msg += ": " + d.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error, if any.
func (d *Diagnostic) Unwrap() error {
	return d.Err
}

// New creates an error-severity diagnostic with no rule index.
func New(code Code, owner, message string) *Diagnostic {
	return &Diagnostic{
		Code:      code,
		Severity:  SeverityError,
		Message:   message,
		Owner:     owner,
		RuleIndex: NoRule,
	}
}

// Warn creates a warning diagnostic with no rule index.
func Warn(code Code, owner, message string) *Diagnostic {
	d := New(code, owner, message)
	d.Severity = SeverityWarn
	return d
}

// CodeOf returns the code of the first Diagnostic in err's chain, or "".
func CodeOf(err error) Code {
	var d *Diagnostic
	if errors.As(err, &d) {
		return d.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
// Uses errors.As to handle wrapped errors.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsAtomicAbort reports whether err is an atomic rule set rollback.
func IsAtomicAbort(err error) bool {
	return IsCode(err, CodeAtomicAborted)
}

// IsNeverResolved reports whether err is a lazy request that never resolved.
func IsNeverResolved(err error) bool {
	return IsCode(err, CodeNeverResolved)
}
