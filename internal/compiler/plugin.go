package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/patchwork/internal/ir"
)

// CompilePlugin parses a CUE value into a PluginSpec.
//
// The CUE value should be the plugin struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`plugin: NoTrack: { ... }`)
//	spec, err := CompilePlugin(v.LookupPath(cue.ParsePath("plugin.NoTrack")))
func CompilePlugin(v cue.Value) (*ir.PluginSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.PluginSpec{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	if descVal := v.LookupPath(cue.ParsePath("description")); descVal.Exists() {
		desc, err := descVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Description = desc
	}

	patchesVal := v.LookupPath(cue.ParsePath("patches"))
	lazyVal := v.LookupPath(cue.ParsePath("lazy"))
	if !patchesVal.Exists() && !lazyVal.Exists() {
		return nil, &CompileError{
			Field:   "patches",
			Message: "plugin needs at least one patch or lazy request",
			Pos:     v.Pos(),
		}
	}

	if patchesVal.Exists() {
		patches, err := parsePatches(patchesVal)
		if err != nil {
			return nil, err
		}
		spec.Patches = patches
	}

	if lazyVal.Exists() {
		lazy, err := parseLazy(lazyVal)
		if err != nil {
			return nil, err
		}
		spec.Lazy = lazy
	}

	return spec, nil
}

func parsePatches(v cue.Value) ([]ir.PatchSpec, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var patches []ir.PatchSpec
	for iter.Next() {
		p, err := parsePatch(iter.Value())
		if err != nil {
			return nil, err
		}
		patches = append(patches, p)
	}
	return patches, nil
}

func parsePatch(v cue.Value) (ir.PatchSpec, error) {
	var p ir.PatchSpec

	findVal := v.LookupPath(cue.ParsePath("find"))
	if !findVal.Exists() {
		return p, &CompileError{Field: "find", Message: "patch find is required", Pos: v.Pos()}
	}
	find, err := findVal.String()
	if err != nil {
		return p, formatCUEError(err)
	}
	p.Find = find

	if p.All, err = optionalBool(v, "all"); err != nil {
		return p, err
	}
	if p.Group, err = optionalBool(v, "group"); err != nil {
		return p, err
	}
	if p.NoWarn, err = optionalBool(v, "noWarn"); err != nil {
		return p, err
	}

	replVal := v.LookupPath(cue.ParsePath("replacement"))
	if !replVal.Exists() {
		return p, &CompileError{Field: "replacement", Message: "patch replacement is required", Pos: v.Pos()}
	}
	p.Replacement, err = parseReplacement(replVal)
	if err != nil {
		return p, err
	}
	return p, nil
}

// parseReplacement accepts a single rule object or a list of them.
func parseReplacement(v cue.Value) ([]ir.Rule, error) {
	if v.IncompleteKind() == cue.StructKind {
		r, err := parseRule(v)
		if err != nil {
			return nil, err
		}
		return []ir.Rule{r}, nil
	}

	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var rules []ir.Rule
	for iter.Next() {
		r, err := parseRule(iter.Value())
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// parseRule reads {match, replace, literal?, global?, atomic?}.
// match is literal unless literal is false.
func parseRule(v cue.Value) (ir.Rule, error) {
	var r ir.Rule

	matchVal := v.LookupPath(cue.ParsePath("match"))
	if !matchVal.Exists() {
		return r, &CompileError{Field: "match", Message: "rule match is required", Pos: v.Pos()}
	}
	match, err := matchVal.String()
	if err != nil {
		return r, formatCUEError(err)
	}

	literal := true
	if litVal := v.LookupPath(cue.ParsePath("literal")); litVal.Exists() {
		if literal, err = litVal.Bool(); err != nil {
			return r, formatCUEError(err)
		}
	}
	if literal {
		r.Pattern = ir.LiteralPattern(match)
	} else {
		r.Pattern = ir.RegexPattern(match)
	}

	replVal := v.LookupPath(cue.ParsePath("replace"))
	if !replVal.Exists() {
		return r, &CompileError{Field: "replace", Message: "rule replace is required", Pos: v.Pos()}
	}
	tmpl, err := replVal.String()
	if err != nil {
		return r, formatCUEError(err)
	}
	r.Replacement = ir.TemplateReplacement(tmpl)

	if r.Global, err = optionalBool(v, "global"); err != nil {
		return r, err
	}
	if r.Atomic, err = optionalBool(v, "atomic"); err != nil {
		return r, err
	}
	return r, nil
}

func parseLazy(v cue.Value) ([]ir.LazySpec, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var specs []ir.LazySpec
	for iter.Next() {
		item := iter.Value()
		var spec ir.LazySpec

		findVal := item.LookupPath(cue.ParsePath("find"))
		if !findVal.Exists() {
			return nil, &CompileError{Field: "lazy.find", Message: "lazy find is required", Pos: item.Pos()}
		}
		if spec.Find, err = findVal.String(); err != nil {
			return nil, formatCUEError(err)
		}
		if spec.Name, err = optionalString(item, "name"); err != nil {
			return nil, err
		}
		if spec.Key, err = optionalString(item, "key"); err != nil {
			return nil, err
		}
		if spec.Props, err = optionalStrings(item, "props"); err != nil {
			return nil, err
		}
		if spec.Code, err = optionalStrings(item, "code"); err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func optionalBool(v cue.Value, field string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalStrings(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
