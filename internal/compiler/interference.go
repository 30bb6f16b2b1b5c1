package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/patchwork/internal/ir"
)

// Interference kinds.
const (
	// InterferenceErases: an earlier patch rewrites text containing a later
	// signature, so the later rule set may never match.
	InterferenceErases = "erases"
	// InterferenceIntroduces: an earlier patch writes a later signature into
	// modules that did not have it.
	InterferenceIntroduces = "introduces"
	// InterferenceStarves: a patch erases the signature a lazy request waits
	// on, so the request may never resolve.
	InterferenceStarves = "starves"
)

// InterferenceWarning reports one pair of pack entries whose order matters.
//
// Signatures match against the running text, so an earlier rule set can
// hide or create the signature of a later one. These are warnings, not
// errors: a pack may rely on the cascade on purpose.
type InterferenceWarning struct {
	Kind    string   `json:"kind"`
	Path    []string `json:"path"` // [earlier, later] as "plugin#patch" or "plugin~lazy"
	Message string   `json:"message"`
	Level   string   `json:"level"`
}

type patchNode struct {
	ref   string
	patch ir.PatchSpec
}

// AnalyzeInterference checks every ordered pair of patches in registration
// order, and every patch against every lazy request.
//
// Only literal rules and templates without group references are inspected;
// regex rules are opaque to static analysis. A pack without interference
// returns an empty list.
func AnalyzeInterference(plugins []ir.PluginSpec) []InterferenceWarning {
	var nodes []patchNode
	for _, p := range plugins {
		for i, patch := range p.Patches {
			nodes = append(nodes, patchNode{ref: fmt.Sprintf("%s#%d", p.Name, i), patch: patch})
		}
	}

	warnings := []InterferenceWarning{}
	for i, earlier := range nodes {
		for _, later := range nodes[i+1:] {
			if kind, ok := interferes(earlier.patch, later.patch.Find); ok {
				warnings = append(warnings, newWarning(kind, earlier.ref, later.ref, later.patch.Find))
			}
		}
	}

	for _, p := range plugins {
		for i, lazy := range p.Lazy {
			ref := fmt.Sprintf("%s~%d", p.Name, i)
			if lazy.Name != "" {
				ref = p.Name + "~" + lazy.Name
			}
			for _, n := range nodes {
				if erases(n.patch, lazy.Find) {
					warnings = append(warnings, newWarning(InterferenceStarves, n.ref, ref, lazy.Find))
				}
			}
		}
	}

	return warnings
}

func newWarning(kind, from, to, signature string) InterferenceWarning {
	var msg string
	switch kind {
	case InterferenceErases:
		msg = fmt.Sprintf("%s rewrites signature %q before %s can match it", from, signature, to)
	case InterferenceIntroduces:
		msg = fmt.Sprintf("%s writes signature %q that %s matches on", from, signature, to)
	default:
		msg = fmt.Sprintf("%s rewrites signature %q that lazy request %s waits on", from, signature, to)
	}
	return InterferenceWarning{
		Kind:    kind,
		Path:    []string{from, to},
		Message: msg,
		Level:   "warning",
	}
}

// interferes reports how earlier can change whether signature is present.
// An empty signature matches every module and cannot be disturbed.
func interferes(earlier ir.PatchSpec, signature string) (string, bool) {
	if signature == "" {
		return "", false
	}
	if erases(earlier, signature) {
		return InterferenceErases, true
	}
	for _, r := range earlier.Replacement {
		tmpl := r.Replacement.Template
		if r.Replacement.Func != nil || strings.Contains(tmpl, "$") {
			continue
		}
		if strings.Contains(tmpl, signature) && !strings.Contains(r.Pattern.Source, signature) {
			return InterferenceIntroduces, true
		}
	}
	return "", false
}

// erases reports whether a literal rule of p overlaps signature and its
// replacement drops it.
func erases(p ir.PatchSpec, signature string) bool {
	if signature == "" {
		return false
	}
	for _, r := range p.Replacement {
		if !r.Pattern.Literal || r.Pattern.Source == "" {
			continue
		}
		if !overlaps(r.Pattern.Source, signature) {
			continue
		}
		if r.Replacement.Func == nil && strings.Contains(r.Replacement.Template, signature) {
			continue
		}
		return true
	}
	return false
}

// overlaps reports whether rewriting match can break an occurrence of
// signature: either contains the other.
func overlaps(match, signature string) bool {
	return strings.Contains(match, signature) || strings.Contains(signature, match)
}
