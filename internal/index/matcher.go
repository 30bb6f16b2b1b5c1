package index

import (
	"strings"

	"github.com/roach88/patchwork/internal/ir"
)

// Matcher finds modules by literal fragments of their current text.
//
// This is the cheap first stage of matching: a whole-source substring check
// that runs before any pattern rule is compiled or tried.
type Matcher struct {
	ix *Index
}

// NewMatcher creates a matcher over ix.
func NewMatcher(ix *Index) *Matcher {
	return &Matcher{ix: ix}
}

// FindCandidates returns the ids of modules whose current text contains
// signature, in module-id order. With matchAll false at most one id is
// returned: the first in module-id order.
func (m *Matcher) FindCandidates(signature string, matchAll bool) []ir.ModuleID {
	var out []ir.ModuleID
	for _, id := range m.ix.IDs() {
		if !m.Matches(signature, id) {
			continue
		}
		out = append(out, id)
		if !matchAll {
			break
		}
	}
	return out
}

// Matches reports whether module id's current text contains signature.
// The empty signature matches every indexed module.
func (m *Matcher) Matches(signature string, id ir.ModuleID) bool {
	text, ok := m.ix.CurrentText(id)
	if !ok {
		return false
	}
	return strings.Contains(text, signature)
}

// MatchesInstantiated is Matches restricted to instantiated modules. The
// resolver uses it to decide which modules a lazy request may bind to.
func (m *Matcher) MatchesInstantiated(signature string, id ir.ModuleID) bool {
	r, ok := m.ix.Get(id)
	if !ok || r.State != ir.ModuleInstantiated {
		return false
	}
	return strings.Contains(r.CurrentText(), signature)
}
