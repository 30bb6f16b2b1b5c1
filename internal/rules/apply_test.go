package rules

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchwork/internal/diag"
	"github.com/roach88/patchwork/internal/ir"
)

func lit(find, repl string) ir.Rule {
	return ir.Rule{Pattern: ir.LiteralPattern(find), Replacement: ir.TemplateReplacement(repl)}
}

func re(expr, repl string) ir.Rule {
	return ir.Rule{Pattern: ir.RegexPattern(expr), Replacement: ir.TemplateReplacement(repl)}
}

func atomic(r ir.Rule) ir.Rule {
	r.Atomic = true
	return r
}

func TestApply_FooTokenScenario(t *testing.T) {
	rs := ir.RuleSet{Owner: "A", Find: "FOO_TOKEN", Rules: []ir.Rule{lit("x=1", "x=2")}}

	res, failure := New().Apply(rs, "let x=1; FOO_TOKEN")

	require.Nil(t, failure)
	assert.Equal(t, "let x=2; FOO_TOKEN", res.Text)
	assert.Equal(t, 1, res.Applied)
	assert.True(t, res.Changed())
	assert.Empty(t, res.Warnings)
}

func TestApply_RulesSeeRunningText(t *testing.T) {
	rs := ir.RuleSet{Owner: "A", Rules: []ir.Rule{
		lit("a", "b"),
		lit("b", "c"),
	}}

	res, failure := New().Apply(rs, "a")

	require.Nil(t, failure)
	assert.Equal(t, "c", res.Text)
}

func TestApply_Templates(t *testing.T) {
	tests := []struct {
		name string
		rule ir.Rule
		in   string
		want string
	}{
		{"numbered group", re(`(\w+)=(\d+)`, "$2=$1"), "x=1", "1=x"},
		{"named group", re(`(?<v>\w+)\.enabled`, "${v}.disabled"), "cfg.enabled", "cfg.disabled"},
		{"whole match", re(`\d+`, "[$&]"), "n=42", "n=[42]"},
		{"lookbehind", re(`(?<=return )!1`, "!0"), "if(a)return !1;b=!1", "if(a)return !0;b=!1"},
		{"ident shorthand", re(`(\i)\.isStaff\(\)`, "true"), "if(e.isStaff())", "if(true)"},
		{"literal metachars", lit("a.b(c)", "X"), "a.b(c) axb(c)", "X axb(c)"},
		{"first only", lit("x", "y"), "xxx", "yxx"},
		{"global", ir.Rule{Pattern: ir.LiteralPattern("x"), Replacement: ir.TemplateReplacement("y"), Global: true}, "xxx", "yyy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, failure := New().Apply(ir.RuleSet{Owner: "A", Rules: []ir.Rule{tt.rule}}, tt.in)
			require.Nil(t, failure)
			assert.Equal(t, tt.want, res.Text)
		})
	}
}

// Unnamed groups are numbered before named ones.
func TestApply_FuncReplacement(t *testing.T) {
	rule := ir.Rule{
		Pattern: ir.RegexPattern(`(?<name>\w+)\((\d+)\)`),
		Replacement: ir.FuncReplacement(func(m ir.Match) string {
			return fmt.Sprintf("%s<%s>%s", strings.ToUpper(m.Named["name"]), m.Group(1), m.Group(9))
		}),
	}

	res, failure := New().Apply(ir.RuleSet{Owner: "A", Rules: []ir.Rule{rule}}, "call foo(12);")

	require.Nil(t, failure)
	assert.Equal(t, "call FOO<12>;", res.Text)
}

// Rule k of n is engineered to fail; the set is atomic. The returned result
// must carry no text and the caller's snapshot is untouched.
func TestApply_AtomicRollbackProperty(t *testing.T) {
	const before = "alpha beta gamma delta epsilon"
	words := strings.Fields(before)

	for n := 1; n <= len(words); n++ {
		for k := 0; k < n; k++ {
			t.Run(fmt.Sprintf("n=%d/k=%d", n, k), func(t *testing.T) {
				rs := ir.RuleSet{Owner: "A"}
				for i := 0; i < n; i++ {
					find := words[i]
					if i == k {
						find = "missing_" + words[i]
					}
					rs.Rules = append(rs.Rules, atomic(lit(find, strings.ToUpper(words[i]))))
				}

				snapshot := before
				res, failure := New().Apply(rs, snapshot)

				require.NotNil(t, failure)
				assert.Equal(t, k, failure.RuleIndex)
				assert.Equal(t, ReasonPatternNotFound, failure.Reason)
				assert.True(t, failure.Atomic)
				assert.Equal(t, "", res.Text)
				assert.Equal(t, before, snapshot)
			})
		}
	}
}

func TestApply_NonAtomicContinuation(t *testing.T) {
	rs := ir.RuleSet{Owner: "A", Rules: []ir.Rule{
		lit("one", "1"),
		lit("nothere", "X"),
		lit("two", "2"),
	}}

	res, failure := New().Apply(rs, "one two")

	require.Nil(t, failure)
	assert.Equal(t, "1 2", res.Text)
	assert.Equal(t, 2, res.Applied)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, 1, res.Warnings[0].RuleIndex)
	assert.Equal(t, ReasonPatternNotFound, res.Warnings[0].Reason)
	assert.False(t, res.Warnings[0].Atomic)
}

func TestApply_FailureReasons(t *testing.T) {
	tests := []struct {
		name string
		rule ir.Rule
		want Reason
	}{
		{"not found", lit("zzz", "y"), ReasonPatternNotFound},
		{"no effect", lit("abc", "abc"), ReasonNoEffect},
		{"invalid regex", re(`(unclosed`, "x"), ReasonPatternInvalid},
		{"invalid template", re(`abc`, "${99999999999}"), ReasonTemplateInvalid},
		{"replacement panics", ir.Rule{
			Pattern:     ir.LiteralPattern("abc"),
			Replacement: ir.FuncReplacement(func(ir.Match) string { panic("boom") }),
		}, ReasonReplacementPanicked},
		{"predicate panics", ir.Rule{
			Pattern:     ir.LiteralPattern("abc"),
			Replacement: ir.TemplateReplacement("x"),
			Predicate:   func() bool { panic("boom") },
		}, ReasonPredicatePanicked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := tt.rule
			rule.Atomic = true
			_, failure := New().Apply(ir.RuleSet{Owner: "A", Rules: []ir.Rule{rule}}, "abc")
			require.NotNil(t, failure)
			assert.Equal(t, tt.want, failure.Reason)
		})
	}
}

func TestApply_TemplateWithoutDollarIsLiteral(t *testing.T) {
	res, failure := New().Apply(ir.RuleSet{Owner: "A", Rules: []ir.Rule{re(`abc`, "$z")}}, "abc")
	require.Nil(t, failure)
	assert.Equal(t, "$z", res.Text)
}

func TestApply_RulePredicateFalseSkips(t *testing.T) {
	rule := lit("abc", "x")
	rule.Atomic = true
	rule.Predicate = func() bool { return false }

	res, failure := New().Apply(ir.RuleSet{Owner: "A", Rules: []ir.Rule{rule}}, "abc")

	require.Nil(t, failure)
	assert.Equal(t, "abc", res.Text)
	assert.Equal(t, 1, res.Skipped)
	assert.False(t, res.Changed())
}

func TestApply_CachesCompiledPatterns(t *testing.T) {
	a := New()
	rs := ir.RuleSet{Owner: "A", Rules: []ir.Rule{lit("a", "b"), re("c", "d"), lit("a", "e")}}

	a.Apply(rs, "a c")
	a.Apply(rs, "a c")

	assert.Equal(t, 2, a.CacheSize())
}

func TestFailureDiagnostic(t *testing.T) {
	f := &Failure{Owner: "X", RuleIndex: 3, Reason: ReasonPatternNotFound, Pattern: `"abc"`, Atomic: true}
	d := f.Diagnostic()
	assert.Equal(t, diag.CodeAtomicAborted, d.Code)
	assert.Equal(t, diag.SeverityError, d.Severity)
	assert.Equal(t, 3, d.RuleIndex)
	assert.Equal(t, "pattern_not_found", d.Details["reason"])

	f.Atomic = false
	d = f.Diagnostic()
	assert.Equal(t, diag.CodePatternNotFound, d.Code)
	assert.Equal(t, diag.SeverityWarn, d.Severity)
}

func TestApply_TimeoutDuringReplaceIsPatternTimeout(t *testing.T) {
	// The first occurrence is found at once; the global pass then backtracks
	// through the run of a's until the match timeout fires.
	text := "x" + strings.Repeat("a", 40) + "!"
	rule := re(`x|(a+)+b`, "X")
	rule.Global = true
	rule.Atomic = true

	_, failure := New(WithTimeout(20*time.Millisecond)).Apply(ir.RuleSet{Owner: "A", Rules: []ir.Rule{rule}}, text)

	require.NotNil(t, failure)
	assert.Equal(t, ReasonPatternTimeout, failure.Reason)
	assert.Equal(t, diag.CodePatternTimeout, failure.Reason.Code())
}
