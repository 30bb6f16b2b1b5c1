package engine

import (
	"log/slog"
	"time"

	"github.com/roach88/patchwork/internal/diag"
	"github.com/roach88/patchwork/internal/index"
	"github.com/roach88/patchwork/internal/ir"
	"github.com/roach88/patchwork/internal/resolver"
	"github.com/roach88/patchwork/internal/rules"
)

// Engine is the registry and patch scheduler for one session at a time.
//
// INVARIANTS:
//   - rule sets are visited in registration order, which never changes
//   - a rule set is attempted at most once per module (applied ledger)
//   - a failed attempt leaves the module text as it was before the attempt
type Engine struct {
	logger  *slog.Logger
	clock   *Clock
	ids     SessionIDGenerator
	journal Journal
	sinks   []diag.Sink

	patternTimeout time.Duration
	warnAfter      int
	onIndexed      func(ir.ModuleID)

	layer    *diag.Layer
	applier  *rules.Applier
	ix       *index.Index
	matcher  *index.Matcher
	resolver *resolver.Resolver

	ruleSets []*entry
	byID     map[string]*entry
	applied  *diag.Ledger

	sessionID string
	active    bool
	stats     stats
}

// entry is a registered rule set plus its session bookkeeping.
type entry struct {
	rs ir.RuleSet
	// consumed is set once a first-match rule set has been attempted.
	consumed bool
	// matched is set once the signature was found in any module.
	matched bool
	removed bool
}

type stats struct {
	attempts int
	applied  int
	aborted  int
	warnings int
	resolved int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithJournal records the session to j.
func WithJournal(j Journal) EngineOption {
	return func(e *Engine) {
		e.journal = j
	}
}

// WithSink adds a diagnostics sink.
func WithSink(s diag.Sink) EngineOption {
	return func(e *Engine) {
		e.sinks = append(e.sinks, s)
	}
}

// WithSessionIDs sets the session id generator. Default: UUIDv7Generator.
func WithSessionIDs(g SessionIDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithPatternTimeout bounds each pattern match.
// Default: rules.DefaultTimeout. Zero disables the limit.
func WithPatternTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.patternTimeout = d
	}
}

// WithPendingWarnAfter sets how many instantiations a lazy request may wait
// through before it is flagged. Default: resolver.DefaultWarnAfter.
func WithPendingWarnAfter(n int) EngineOption {
	return func(e *Engine) {
		e.warnAfter = n
	}
}

// WithIndexHook calls fn after a module is indexed and before registered
// rule sets are scheduled against it. The module is still Indexed while fn
// runs, so fn may call ApplyRuleSet; rule sets applied there are skipped by
// the scheduler. A panic in fn is reported and does not stop the module.
func WithIndexHook(fn func(id ir.ModuleID)) EngineOption {
	return func(e *Engine) {
		e.onIndexed = fn
	}
}

// New creates an Engine. Collaborators may register immediately; loader
// events are accepted once Init has begun a session.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		logger:         slog.Default(),
		clock:          NewClock(),
		ids:            UUIDv7Generator{},
		journal:        nopJournal{},
		patternTimeout: rules.DefaultTimeout,
		warnAfter:      resolver.DefaultWarnAfter,
	}
	for _, opt := range opts {
		opt(e)
	}

	layerOpts := []diag.Option{diag.WithLogger(e.logger), diag.WithSink(e.journal)}
	for _, s := range e.sinks {
		layerOpts = append(layerOpts, diag.WithSink(s))
	}
	e.layer = diag.NewLayer(layerOpts...)
	e.applier = rules.New(rules.WithTimeout(e.patternTimeout))
	e.reset()
	return e
}

// reset drops all session state. Registrations are kept by Init and
// cleared by Teardown.
func (e *Engine) reset() {
	e.ix = index.New(index.WithLogger(e.logger))
	e.matcher = index.NewMatcher(e.ix)
	e.layer.Reset()
	e.resolver = resolver.New(e.ix, e.layer, resolver.WithWarnAfter(e.warnAfter))
	e.applied = diag.NewLedger()
	e.stats = stats{}
	for _, en := range e.ruleSets {
		en.consumed = false
		en.matched = false
	}
}

// Init begins a session and returns its id. Rule sets registered before
// Init stay registered. Calling Init on an active session is a no-op.
func (e *Engine) Init() string {
	if e.active {
		return e.sessionID
	}
	e.sessionID = e.ids.Generate()
	e.active = true
	e.journal.BeginSession(e.sessionID)
	e.logger.Info("session started", "session_id", e.sessionID, "rule_sets", e.liveRuleSets())
	return e.sessionID
}

// Teardown ends the session. Rule sets whose signature never matched are
// reported as SIGNATURE_NOT_FOUND, still-pending lazy requests are failed as
// LAZY_REQUEST_NEVER_RESOLVED, and every registration is dropped.
func (e *Engine) Teardown() Report {
	if !e.active {
		return Report{}
	}

	for _, en := range e.ruleSets {
		if en.removed || en.matched {
			continue
		}
		d := diag.New(diag.CodeSignatureNotFound, en.rs.Owner, "rule set signature matched no module")
		d.Signature = en.rs.Find
		d.RuleSetID = en.rs.ID
		if en.rs.NoWarn {
			e.layer.Note(d)
		} else {
			e.layer.Report(d)
		}
	}
	unresolved := len(e.resolver.Close())

	report := e.buildReport(unresolved)
	e.journal.EndSession(report.Summary)
	e.logger.Info("session ended",
		"session_id", e.sessionID,
		"modules", report.Summary.Modules,
		"applied", report.Summary.Applied,
		"aborted", report.Summary.Aborted,
		"diagnostics", report.Summary.Diagnostics,
	)

	e.ruleSets = nil
	e.byID = nil
	e.active = false
	e.sessionID = ""
	e.reset()
	return report
}

// SessionID returns the active session's id, or "".
func (e *Engine) SessionID() string {
	return e.sessionID
}

// Active reports whether a session is running.
func (e *Engine) Active() bool {
	return e.active
}

// Diagnostics returns every diagnostic reported in the active session.
func (e *Engine) Diagnostics() []diag.Diagnostic {
	return e.layer.History()
}

// Module returns the index record for id.
func (e *Engine) Module(id ir.ModuleID) (*index.Record, bool) {
	return e.ix.Get(id)
}

// CurrentText returns the module's patched source if present, else its raw
// source.
func (e *Engine) CurrentText(id ir.ModuleID) (string, bool) {
	return e.ix.CurrentText(id)
}

// FindCandidates returns the modules whose current text contains signature.
func (e *Engine) FindCandidates(signature string, matchAll bool) []ir.ModuleID {
	return e.matcher.FindCandidates(signature, matchAll)
}
