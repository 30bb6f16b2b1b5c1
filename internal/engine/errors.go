package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/patchwork/internal/ir"
)

// Registration and direct-apply errors. Loader hooks never return these;
// they are for collaborators and tests calling the registry directly.
var (
	ErrAlreadyApplied   = errors.New("rule set already applied to module")
	ErrUnknownRuleSet   = errors.New("unknown rule set")
	ErrUnknownModule    = errors.New("unknown module")
	ErrModuleSettled    = errors.New("module already settled")
	ErrNoSession        = errors.New("no active session")
	ErrEmptyOwner       = errors.New("owner is required")
	ErrEmptyReplacement = errors.New("replacement must contain at least one rule")
)

// ApplyError wraps an ApplyRuleSet rejection with the ids involved.
type ApplyError struct {
	RuleSetID string
	ModuleID  ir.ModuleID
	Err       error
}

// Error implements the error interface.
func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply rule set %s to module %s: %v", shortID(e.RuleSetID), e.ModuleID, e.Err)
}

// Unwrap returns the underlying sentinel or diagnostic.
func (e *ApplyError) Unwrap() error {
	return e.Err
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
