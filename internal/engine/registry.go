package engine

import (
	"fmt"

	"github.com/roach88/patchwork/internal/ir"
	"github.com/roach88/patchwork/internal/resolver"
)

// RegisterRuleSet registers owner's rule set and returns its id.
//
// A spec with Group set marks every rule atomic. A single rule without Group
// is a one-rule, non-atomic set unless the rule itself says Atomic. Rule
// sets apply only to modules whose source arrives after registration.
func (e *Engine) RegisterRuleSet(owner string, spec ir.PatchSpec) (string, error) {
	if owner == "" {
		return "", ErrEmptyOwner
	}
	if len(spec.Replacement) == 0 {
		return "", fmt.Errorf("register rule set for %s: %w", owner, ErrEmptyReplacement)
	}

	rs := ir.RuleSet{
		Owner:     owner,
		Find:      spec.Find,
		All:       spec.All,
		NoWarn:    spec.NoWarn,
		Predicate: spec.Predicate,
		Rules:     make([]ir.Rule, len(spec.Replacement)),
		Seq:       e.clock.Next(),
	}
	copy(rs.Rules, spec.Replacement)
	if spec.Group {
		for i := range rs.Rules {
			rs.Rules[i].Atomic = true
		}
	}

	id, err := ir.RuleSetID(rs)
	if err != nil {
		return "", fmt.Errorf("register rule set for %s: %w", owner, err)
	}
	rs.ID = id

	en := &entry{rs: rs}
	e.ruleSets = append(e.ruleSets, en)
	if e.byID == nil {
		e.byID = make(map[string]*entry)
	}
	e.byID[id] = en

	e.logger.Debug("rule set registered",
		"owner", owner,
		"rule_set_id", shortID(id),
		"find", spec.Find,
		"all", spec.All,
		"rules", len(rs.Rules),
		"atomic", rs.Atomic(),
	)
	return id, nil
}

// RegisterPlugin registers every patch of a compiled plugin under its name
// and returns the rule set ids in declaration order.
func (e *Engine) RegisterPlugin(p ir.PluginSpec) ([]string, error) {
	ids := make([]string, 0, len(p.Patches))
	for i, patch := range p.Patches {
		id, err := e.RegisterRuleSet(p.Name, patch)
		if err != nil {
			return ids, fmt.Errorf("plugin %s patch %d: %w", p.Name, i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// RuleSet returns a registered rule set by id.
func (e *Engine) RuleSet(id string) (ir.RuleSet, bool) {
	en, ok := e.byID[id]
	if !ok || en.removed {
		return ir.RuleSet{}, false
	}
	return en.rs, true
}

// RuleSets returns the live rule sets in registration order.
func (e *Engine) RuleSets() []ir.RuleSet {
	out := make([]ir.RuleSet, 0, len(e.ruleSets))
	for _, en := range e.ruleSets {
		if !en.removed {
			out = append(out, en.rs)
		}
	}
	return out
}

func (e *Engine) liveRuleSets() int {
	n := 0
	for _, en := range e.ruleSets {
		if !en.removed {
			n++
		}
	}
	return n
}

// FindLazy returns a handle to the exports selected by selector in a module
// whose source contains signature. It never blocks: the handle is resolved
// already if a qualifying module has instantiated, else it resolves during
// a later ModuleInstantiated.
func (e *Engine) FindLazy(owner, signature string, selector ir.Selector, opts ...resolver.RequestOption) *resolver.Handle {
	h := e.resolver.Request(owner, signature, selector, opts...)
	if h.State() == resolver.Resolved {
		e.stats.resolved++
	}
	return h
}

// FindLazyBy is FindLazy for a declarative lazy spec from a rule pack.
func (e *Engine) FindLazyBy(owner string, spec ir.LazySpec) *resolver.Handle {
	return e.FindLazy(owner, spec.Find, LazySelector(spec))
}

// LazySelector builds the selector a lazy spec describes. Props, Code and
// Key combine with AND; a spec with none of them accepts any exports.
func LazySelector(spec ir.LazySpec) ir.Selector {
	var sels []ir.Selector
	if len(spec.Props) > 0 {
		sels = append(sels, resolver.ByProps(spec.Props...))
	}
	if len(spec.Code) > 0 {
		sels = append(sels, resolver.ByCode(spec.Code...))
	}
	if spec.Key != "" {
		sels = append(sels, resolver.ByKey(spec.Key))
	}
	if len(sels) == 0 {
		return nil
	}
	return resolver.All(sels...)
}

// Deregister removes every rule set and pending lazy request of owner.
// Committed patches stay. Pending handles fail with REQUEST_CANCELLED.
// It returns the number of rule sets removed.
func (e *Engine) Deregister(owner string) int {
	n := 0
	for _, en := range e.ruleSets {
		if en.rs.Owner == owner && !en.removed {
			en.removed = true
			n++
		}
	}
	cancelled := e.resolver.Cancel(owner)
	e.logger.Info("owner deregistered", "owner", owner, "rule_sets", n, "requests", cancelled)
	return n
}
