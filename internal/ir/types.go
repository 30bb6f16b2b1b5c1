package ir

import "fmt"

// ModuleID is the opaque, stable identifier the host loader assigns to a module.
type ModuleID string

// ModuleState is the lifecycle position of a module record.
//
// Unseen → Indexed → (Patched | Unchanged) → Instantiated, or Failed if
// instantiation throws.
type ModuleState int

const (
	ModuleUnseen ModuleState = iota
	ModuleIndexed
	ModulePatched
	ModuleUnchanged
	ModuleInstantiated
	ModuleFailed
)

// String returns the lowercase state name used in logs and the journal.
func (s ModuleState) String() string {
	switch s {
	case ModuleUnseen:
		return "unseen"
	case ModuleIndexed:
		return "indexed"
	case ModulePatched:
		return "patched"
	case ModuleUnchanged:
		return "unchanged"
	case ModuleInstantiated:
		return "instantiated"
	case ModuleFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ParseModuleState is the inverse of String for the named states.
func ParseModuleState(name string) (ModuleState, error) {
	for s := ModuleUnseen; s <= ModuleFailed; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return ModuleUnseen, fmt.Errorf("unknown module state %q", name)
}

// MarshalText encodes the state by name.
func (s ModuleState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *ModuleState) UnmarshalText(text []byte) error {
	parsed, err := ParseModuleState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Exports is the export object a module produced when it instantiated.
// Values are opaque to the engine; selectors inspect them.
type Exports map[string]any

// Selector decides whether a module's exports are the ones a lazy request wants.
type Selector func(Exports) bool

// Pattern is the text a rule looks for.
//
// Literal patterns match their source byte for byte. Regex patterns may use
// capturing groups, lookaround and the \i identifier shorthand.
type Pattern struct {
	Source  string `json:"source"`
	Literal bool   `json:"literal,omitempty"`
}

// LiteralPattern returns a pattern matching s exactly.
func LiteralPattern(s string) Pattern {
	return Pattern{Source: s, Literal: true}
}

// RegexPattern returns a regular-expression pattern.
func RegexPattern(expr string) Pattern {
	return Pattern{Source: expr}
}

// String renders the pattern the way it appears in diagnostics.
func (p Pattern) String() string {
	if p.Literal {
		return fmt.Sprintf("%q", p.Source)
	}
	return "/" + p.Source + "/"
}

// Match is the view of a pattern match handed to replacement functions.
type Match struct {
	// Text is the whole matched text ($&).
	Text string
	// Groups holds capture groups by number; Groups[0] is Text.
	Groups []string
	// Named holds named capture groups.
	Named map[string]string
	// Index is the character (rune) offset of the match in the running text.
	Index int
}

// Group returns capture group n, or "" if it does not exist.
func (m Match) Group(n int) string {
	if n < 0 || n >= len(m.Groups) {
		return ""
	}
	return m.Groups[n]
}

// ReplaceFunc computes a replacement from a match. It must be pure.
type ReplaceFunc func(Match) string

// Replacement is either a template referencing groups ($1, ${name}, $&)
// or a function of the match. Func wins when both are set.
type Replacement struct {
	Template string      `json:"template,omitempty"`
	Func     ReplaceFunc `json:"-"`
}

// TemplateReplacement returns a template replacement.
func TemplateReplacement(tmpl string) Replacement {
	return Replacement{Template: tmpl}
}

// FuncReplacement returns a function replacement.
func FuncReplacement(fn ReplaceFunc) Replacement {
	return Replacement{Func: fn}
}

// Rule is one ordered rewrite step inside a rule set.
type Rule struct {
	Pattern     Pattern     `json:"pattern"`
	Replacement Replacement `json:"replacement"`
	// Atomic rules roll back the owning rule set's effect on the module
	// when they fail.
	Atomic bool `json:"atomic,omitempty"`
	// Global replaces every occurrence instead of the first.
	Global bool `json:"global,omitempty"`
	// Predicate optionally guards this single rule.
	Predicate func() bool `json:"-"`
}

// RuleSet is one owner's registration targeting modules that contain Find.
type RuleSet struct {
	ID        string      `json:"id"`
	Owner     string      `json:"owner"`
	Find      string      `json:"find"`
	All       bool        `json:"all,omitempty"`
	NoWarn    bool        `json:"no_warn,omitempty"`
	Predicate func() bool `json:"-"`
	Rules     []Rule      `json:"rules"`
	// Seq is the registration order, assigned by the registry.
	Seq int64 `json:"seq"`
}

// Atomic reports whether any rule in the set is atomic.
func (rs RuleSet) Atomic() bool {
	for _, r := range rs.Rules {
		if r.Atomic {
			return true
		}
	}
	return false
}

// PatchSpec is the registration payload collaborators hand to the engine.
//
// A single-element Replacement is a one-rule, non-atomic set unless Group
// is true. Group marks every rule atomic.
type PatchSpec struct {
	Find        string      `json:"find"`
	All         bool        `json:"all,omitempty"`
	Group       bool        `json:"group,omitempty"`
	NoWarn      bool        `json:"no_warn,omitempty"`
	Predicate   func() bool `json:"-"`
	Replacement []Rule      `json:"replacement"`
}

// LazySpec is the declarative form of a lazy request in a rule pack.
// Exactly one selector family should be set.
type LazySpec struct {
	Name  string   `json:"name,omitempty"`
	Find  string   `json:"find"`
	Props []string `json:"props,omitempty"`
	Code  []string `json:"code,omitempty"`
	Key   string   `json:"key,omitempty"`
}

// PluginSpec is a compiled collaborator definition from a rule pack.
type PluginSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Patches     []PatchSpec `json:"patches"`
	Lazy        []LazySpec  `json:"lazy,omitempty"`
}
