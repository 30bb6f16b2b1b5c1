package rules

import (
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/roach88/patchwork/internal/ir"
)

// IdentClass is what the \i shorthand expands to: one minified identifier.
const IdentClass = `[A-Za-z_$][\w$]*`

// ExpandIdent replaces every unescaped \i in expr with IdentClass.
func ExpandIdent(expr string) string {
	if !strings.Contains(expr, `\i`) {
		return expr
	}
	var b strings.Builder
	b.Grow(len(expr) + 16)
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if c != '\\' || i+1 >= len(expr) {
			b.WriteByte(c)
			continue
		}
		next := expr[i+1]
		if next == 'i' {
			b.WriteString(IdentClass)
		} else {
			b.WriteByte(c)
			b.WriteByte(next)
		}
		i++
	}
	return b.String()
}

// Source returns the regexp2 source a pattern compiles to.
func Source(p ir.Pattern) string {
	if p.Literal {
		return regexp2.Escape(p.Source)
	}
	return ExpandIdent(p.Source)
}

// Compile compiles p with the given match timeout. A zero timeout means no
// limit.
func Compile(p ir.Pattern, timeout time.Duration) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(Source(p), regexp2.None)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		re.MatchTimeout = timeout
	}
	return re, nil
}

// CheckPattern reports whether p compiles. Rule pack validation uses it.
func CheckPattern(p ir.Pattern) error {
	_, err := Compile(p, 0)
	return err
}

// toMatch converts a regexp2 match into the view replacement functions see.
func toMatch(m *regexp2.Match) ir.Match {
	groups := m.Groups()
	out := ir.Match{
		Text:   m.String(),
		Groups: make([]string, len(groups)),
		Index:  m.Index,
	}
	for i := range groups {
		g := &groups[i]
		out.Groups[i] = g.String()
		if g.Name != "" && !isNumber(g.Name) {
			if out.Named == nil {
				out.Named = make(map[string]string)
			}
			out.Named[g.Name] = g.String()
		}
	}
	return out
}

func isNumber(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}
