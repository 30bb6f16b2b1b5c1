package rules

import (
	"errors"
	"fmt"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/roach88/patchwork/internal/ir"
)

// DefaultTimeout bounds a single pattern match.
const DefaultTimeout = 2 * time.Second

// Result is the outcome of a rule set that did not abort.
type Result struct {
	Text string
	// Applied counts the rules that changed the text.
	Applied int
	// Skipped counts rules whose own predicate was false.
	Skipped int
	// Warnings holds the tolerated non-atomic failures in rule order.
	Warnings []Failure
}

// Changed reports whether any rule rewrote the text.
func (r Result) Changed() bool {
	return r.Applied > 0
}

// Applier compiles and applies rules. Compiled patterns are cached by
// source. An Applier is not safe for concurrent use.
type Applier struct {
	timeout time.Duration
	cache   map[ir.Pattern]*regexp2.Regexp
}

// Option configures an Applier.
type Option func(*Applier)

// WithTimeout sets the per-match timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(a *Applier) {
		a.timeout = d
	}
}

// New creates an Applier.
func New(opts ...Option) *Applier {
	a := &Applier{
		timeout: DefaultTimeout,
		cache:   make(map[ir.Pattern]*regexp2.Regexp),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply runs rs's rules in order against text.
//
// Each rule sees the running text left by the rules before it. When an
// atomic rule fails Apply returns an empty result and the failure; the
// caller keeps its own copy of the pre-attempt text. A non-atomic failure is
// recorded as a warning and the next rule starts from the text as it stood
// before the failed rule.
func (a *Applier) Apply(rs ir.RuleSet, text string) (Result, *Failure) {
	res := Result{Text: text}
	for i, rule := range rs.Rules {
		if rule.Predicate != nil {
			ok, err := callPredicate(rule.Predicate)
			if err != nil {
				f := a.fail(rs, i, rule, ReasonPredicatePanicked, err)
				if rule.Atomic {
					return Result{}, f
				}
				res.Warnings = append(res.Warnings, *f)
				continue
			}
			if !ok {
				res.Skipped++
				continue
			}
		}

		next, reason, err := a.applyRule(rule, res.Text)
		if reason != "" {
			f := a.fail(rs, i, rule, reason, err)
			if rule.Atomic {
				return Result{}, f
			}
			res.Warnings = append(res.Warnings, *f)
			continue
		}
		res.Text = next
		res.Applied++
	}
	return res, nil
}

func (a *Applier) fail(rs ir.RuleSet, i int, rule ir.Rule, reason Reason, err error) *Failure {
	return &Failure{
		Owner:     rs.Owner,
		RuleIndex: i,
		Reason:    reason,
		Pattern:   rule.Pattern.String(),
		Atomic:    rule.Atomic,
		Err:       err,
	}
}

// applyRule rewrites text with one rule. A non-empty reason means failure.
func (a *Applier) applyRule(rule ir.Rule, text string) (string, Reason, error) {
	re, err := a.compile(rule.Pattern)
	if err != nil {
		return "", ReasonPatternInvalid, err
	}

	m, err := re.FindStringMatch(text)
	if err != nil {
		return "", ReasonPatternTimeout, err
	}
	if m == nil {
		return "", ReasonPatternNotFound, nil
	}

	count := 1
	if rule.Global {
		count = -1
	}

	var out string
	if rule.Replacement.Func != nil {
		out, err = replaceFunc(re, text, rule.Replacement.Func, count)
		if err != nil {
			var pe *panicError
			if errors.As(err, &pe) {
				return "", ReasonReplacementPanicked, err
			}
			return "", ReasonPatternTimeout, err
		}
	} else {
		out, err = re.Replace(text, rule.Replacement.Template, -1, count)
		if err != nil {
			// Replace parses the template before matching, so a template that
			// also fails against empty input is the cause; otherwise the
			// match pass ran out of time.
			if _, terr := re.Replace("", rule.Replacement.Template, -1, 1); terr != nil {
				return "", ReasonTemplateInvalid, err
			}
			return "", ReasonPatternTimeout, err
		}
	}

	if out == text {
		return "", ReasonNoEffect, nil
	}
	return out, "", nil
}

func (a *Applier) compile(p ir.Pattern) (*regexp2.Regexp, error) {
	if re, ok := a.cache[p]; ok {
		return re, nil
	}
	re, err := Compile(p, a.timeout)
	if err != nil {
		return nil, err
	}
	a.cache[p] = re
	return re, nil
}

// CacheSize returns the number of compiled patterns held.
func (a *Applier) CacheSize() int {
	return len(a.cache)
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

func replaceFunc(re *regexp2.Regexp, text string, fn ir.ReplaceFunc, count int) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return re.ReplaceFunc(text, func(m regexp2.Match) string {
		return fn(toMatch(&m))
	}, -1, count)
}

func callPredicate(fn func() bool) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return fn(), nil
}
