package ir

// Outcome is the result of one rule set attempt against one module.
type Outcome string

const (
	// OutcomeApplied: the rule set changed the module text.
	OutcomeApplied Outcome = "applied"
	// OutcomeUnchanged: every rule was skipped or tolerated; text unchanged.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeAborted: an atomic rule failed and the attempt was rolled back.
	OutcomeAborted Outcome = "aborted"
	// OutcomeGuarded: the rule set's predicate returned false.
	OutcomeGuarded Outcome = "guarded"
	// OutcomeFailed: a collaborator callback panicked before any rule ran.
	OutcomeFailed Outcome = "failed"
)

// Attempt is the journal row for one rule set attempt.
type Attempt struct {
	Seq       int64    `json:"seq"`
	Owner     string   `json:"owner"`
	RuleSetID string   `json:"rule_set_id"`
	ModuleID  ModuleID `json:"module_id"`
	Outcome   Outcome  `json:"outcome"`
	// RuleIndex is the aborting rule for OutcomeAborted, else -1.
	RuleIndex int    `json:"rule_index"`
	Reason    string `json:"reason,omitempty"`
	Warnings  int    `json:"warnings"`
}

// ModuleEvent is the journal row for a module lifecycle change.
type ModuleEvent struct {
	Seq           int64       `json:"seq"`
	ModuleID      ModuleID    `json:"module_id"`
	State         ModuleState `json:"state"`
	RawDigest     string      `json:"raw_digest"`
	PatchedDigest string      `json:"patched_digest,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// SessionSummary is the closing journal row of a session.
type SessionSummary struct {
	ID          string `json:"id"`
	Modules     int    `json:"modules"`
	Patched     int    `json:"patched"`
	RuleSets    int    `json:"rule_sets"`
	Attempts    int    `json:"attempts"`
	Applied     int    `json:"applied"`
	Aborted     int    `json:"aborted"`
	Warnings    int    `json:"warnings"`
	Resolved    int    `json:"resolved"`
	Unresolved  int    `json:"unresolved"`
	Diagnostics int    `json:"diagnostics"`
}
