package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/patchwork/internal/ir"
	"github.com/roach88/patchwork/internal/rules"
)

// Validation error codes (E200-E299)
const (
	ErrUnsupportedIRType = "E200" // unsupported IR type for validation

	ErrMissingFind        = "E201" // patch or lazy request without a signature
	ErrEmptyReplacement   = "E202" // patch with no rules
	ErrInvalidPattern     = "E203" // rule pattern does not compile
	ErrEmptyPattern       = "E204" // rule with an empty match
	ErrDuplicatePlugin    = "E205" // two plugins share a name
	ErrLazyNoSelector     = "E206" // lazy request accepts any exports
	ErrMissingPluginName  = "E207" // plugin without a name
	ErrDuplicateLazyName  = "E208" // two lazy requests share a name in one plugin
	ErrEmptyPluginPatches = "E209" // plugin with neither patches nor lazy requests
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled plugins. Returns all errors found (does not
// fail-fast). A slice is validated as one pack, which adds the duplicate
// name check.
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ir.PluginSpec:
		return validatePlugin(spec, "")
	case ir.PluginSpec:
		return validatePlugin(&spec, "")
	case []ir.PluginSpec:
		return validatePack(spec)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validatePack(pack []ir.PluginSpec) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for i := range pack {
		p := &pack[i]
		prefix := fmt.Sprintf("plugins[%d].", i)
		if p.Name != "" && seen[p.Name] {
			errs = append(errs, ValidationError{
				Field:   prefix + "name",
				Message: fmt.Sprintf("duplicate plugin name: %q", p.Name),
				Code:    ErrDuplicatePlugin,
			})
		}
		seen[p.Name] = true
		errs = append(errs, validatePlugin(p, prefix)...)
	}
	return errs
}

func validatePlugin(p *ir.PluginSpec, prefix string) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   prefix + "name",
			Message: "plugin name is required",
			Code:    ErrMissingPluginName,
		})
	}

	if len(p.Patches) == 0 && len(p.Lazy) == 0 {
		errs = append(errs, ValidationError{
			Field:   prefix + "patches",
			Message: fmt.Sprintf("plugin %q has neither patches nor lazy requests", p.Name),
			Code:    ErrEmptyPluginPatches,
		})
	}

	for i, patch := range p.Patches {
		field := fmt.Sprintf("%spatches[%d]", prefix, i)

		if strings.TrimSpace(patch.Find) == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".find",
				Message: "find is required and must be non-empty",
				Code:    ErrMissingFind,
			})
		}

		if len(patch.Replacement) == 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".replacement",
				Message: "at least one replacement rule is required",
				Code:    ErrEmptyReplacement,
			})
		}

		for j, rule := range patch.Replacement {
			errs = append(errs, validateRule(rule, fmt.Sprintf("%s.replacement[%d]", field, j))...)
		}
	}

	names := make(map[string]bool)
	for i, lazy := range p.Lazy {
		field := fmt.Sprintf("%slazy[%d]", prefix, i)

		if strings.TrimSpace(lazy.Find) == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".find",
				Message: "lazy find is required and must be non-empty",
				Code:    ErrMissingFind,
			})
		}

		if len(lazy.Props) == 0 && len(lazy.Code) == 0 && lazy.Key == "" {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "lazy request needs props, code or key",
				Code:    ErrLazyNoSelector,
			})
		}

		if lazy.Name != "" {
			if names[lazy.Name] {
				errs = append(errs, ValidationError{
					Field:   field + ".name",
					Message: fmt.Sprintf("duplicate lazy name: %q", lazy.Name),
					Code:    ErrDuplicateLazyName,
				})
			}
			names[lazy.Name] = true
		}
	}

	return errs
}

func validateRule(rule ir.Rule, field string) []ValidationError {
	if rule.Pattern.Source == "" {
		return []ValidationError{{
			Field:   field + ".match",
			Message: "match is required and must be non-empty",
			Code:    ErrEmptyPattern,
		}}
	}
	if rule.Pattern.Literal {
		return nil
	}
	if err := rules.CheckPattern(rule.Pattern); err != nil {
		return []ValidationError{{
			Field:   field + ".match",
			Message: fmt.Sprintf("invalid pattern %s: %v", rule.Pattern, err),
			Code:    ErrInvalidPattern,
		}}
	}
	return nil
}
