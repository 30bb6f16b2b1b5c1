package resolver

import (
	"reflect"
	"strings"

	"github.com/roach88/patchwork/internal/ir"
)

// ByProps selects exports that carry every named property.
func ByProps(props ...string) ir.Selector {
	return func(e ir.Exports) bool {
		if len(props) == 0 {
			return false
		}
		for _, p := range props {
			if _, ok := e[p]; !ok {
				return false
			}
		}
		return true
	}
}

// ByFunc selects exports whose named property is a function: a Go func
// value or a recorded export that reports itself as one.
func ByFunc(name string) ir.Selector {
	return func(e ir.Exports) bool {
		v, ok := e[name]
		if !ok || v == nil {
			return false
		}
		if f, ok := v.(Function); ok {
			return f.IsFunction()
		}
		return reflect.TypeOf(v).Kind() == reflect.Func
	}
}

// ByCode selects exports containing a function whose source text includes
// every fragment. Source text is whatever the host recorded for the export,
// exposed through the Sourcer interface or as a plain string.
func ByCode(fragments ...string) ir.Selector {
	return func(e ir.Exports) bool {
		if len(fragments) == 0 {
			return false
		}
		for _, v := range e {
			src, ok := sourceOf(v)
			if !ok {
				continue
			}
			if containsAll(src, fragments) {
				return true
			}
		}
		return false
	}
}

// ByKey selects exports that carry key at all, regardless of value.
func ByKey(key string) ir.Selector {
	return func(e ir.Exports) bool {
		_, ok := e[key]
		return ok
	}
}

// All selects exports that satisfy every selector.
func All(selectors ...ir.Selector) ir.Selector {
	return func(e ir.Exports) bool {
		for _, s := range selectors {
			if !s(e) {
				return false
			}
		}
		return len(selectors) > 0
	}
}

// Sourcer is implemented by export values that know their source text.
type Sourcer interface {
	Source() string
}

// Function is implemented by recorded export values that can say whether
// they stand for a function.
type Function interface {
	IsFunction() bool
}

func sourceOf(v any) (string, bool) {
	switch s := v.(type) {
	case Sourcer:
		return s.Source(), true
	case string:
		return s, true
	default:
		return "", false
	}
}

func containsAll(s string, fragments []string) bool {
	for _, f := range fragments {
		if !strings.Contains(s, f) {
			return false
		}
	}
	return true
}
