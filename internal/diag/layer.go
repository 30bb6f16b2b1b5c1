package diag

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/roach88/patchwork/internal/ir"
)

// Layer attributes, logs and records diagnostics, and tracks which owners
// are disabled on which modules.
type Layer struct {
	logger   *slog.Logger
	sinks    []Sink
	history  Collector
	disabled *Ledger
	seq      int64
}

// Option configures a Layer.
type Option func(*Layer)

// WithLogger sets the logger diagnostics are written to.
// Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Layer) {
		l.logger = logger
	}
}

// WithSink adds a sink that receives every diagnostic.
func WithSink(s Sink) Option {
	return func(l *Layer) {
		l.sinks = append(l.sinks, s)
	}
}

// NewLayer creates a diagnostics layer.
func NewLayer(opts ...Option) *Layer {
	l := &Layer{
		logger:   slog.Default(),
		disabled: NewLedger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Logger returns the layer's logger so components log through one handler.
func (l *Layer) Logger() *slog.Logger {
	return l.logger
}

// AddSink attaches a sink after construction.
func (l *Layer) AddSink(s Sink) {
	l.sinks = append(l.sinks, s)
}

// Report stamps, logs and records d, then fans it out to every sink.
// A panicking sink is logged and skipped; it never reaches the caller.
func (l *Layer) Report(d *Diagnostic) *Diagnostic {
	l.seq++
	d.Seq = l.seq

	attrs := []any{
		"code", string(d.Code),
		"seq", d.Seq,
	}
	if d.Owner != "" {
		attrs = append(attrs, "owner", d.Owner)
	}
	if d.ModuleID != "" {
		attrs = append(attrs, "module_id", string(d.ModuleID))
	}
	if d.Signature != "" {
		attrs = append(attrs, "signature", d.Signature)
	}
	if d.RuleSetID != "" {
		attrs = append(attrs, "rule_set_id", shortID(d.RuleSetID))
	}
	if d.RuleIndex != NoRule {
		attrs = append(attrs, "rule_index", d.RuleIndex)
	}
	for k, v := range d.Details {
		attrs = append(attrs, k, v)
	}
	if d.Err != nil {
		attrs = append(attrs, "error", d.Err)
	}

	if d.Severity == SeverityError {
		l.logger.Error(d.Message, attrs...)
	} else {
		l.logger.Warn(d.Message, attrs...)
	}

	l.history.Record(*d)
	for _, s := range l.sinks {
		l.deliver(s, *d)
	}
	return d
}

// Note stamps and records d like Report but does not log it. Rule sets that
// opt out of warnings still leave a trace in history and sinks.
func (l *Layer) Note(d *Diagnostic) *Diagnostic {
	l.seq++
	d.Seq = l.seq
	l.history.Record(*d)
	for _, s := range l.sinks {
		l.deliver(s, *d)
	}
	return d
}

func (l *Layer) deliver(s Sink, d Diagnostic) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("diagnostic sink panicked", "panic", r, "code", string(d.Code))
		}
	}()
	s.Record(d)
}

// Fail reports d and disables its owner on its module.
// Diagnostics without an owner or module are only reported.
func (l *Layer) Fail(d *Diagnostic) *Diagnostic {
	l.Report(d)
	if d.Owner != "" && d.ModuleID != "" {
		l.Disable(d.Owner, d.ModuleID)
	}
	return d
}

// Disable skips owner's remaining rule sets and requests on module for the
// rest of the session.
func (l *Layer) Disable(owner string, module ir.ModuleID) {
	if !l.disabled.Seen(module, owner) {
		l.logger.Debug("owner disabled on module", "owner", owner, "module_id", string(module))
	}
	l.disabled.Record(module, owner)
}

// Disabled reports whether owner is disabled on module.
func (l *Layer) Disabled(owner string, module ir.ModuleID) bool {
	return l.disabled.Seen(module, owner)
}

// Guard runs fn under recover. A panic becomes a CodeCallbackPanicked
// diagnostic attributed to owner on module, which is reported through Fail
// and returned. Guard returns nil when fn completes normally.
func (l *Layer) Guard(owner string, module ir.ModuleID, what string, fn func()) (failure *Diagnostic) {
	defer func() {
		if r := recover(); r != nil {
			d := New(CodeCallbackPanicked, owner, fmt.Sprintf("%s panicked", what))
			d.ModuleID = module
			d.Err = fmt.Errorf("panic: %v", r)
			d.Details = map[string]string{"stack": firstFrames(debug.Stack())}
			failure = l.Fail(d)
		}
	}()
	fn()
	return nil
}

// GuardBool runs a boolean callback under Guard. A panic yields false.
func (l *Layer) GuardBool(owner string, module ir.ModuleID, what string, fn func() bool) (bool, *Diagnostic) {
	var out bool
	failure := l.Guard(owner, module, what, func() { out = fn() })
	if failure != nil {
		return false, failure
	}
	return out, nil
}

// History returns every diagnostic reported since the last Reset.
func (l *Layer) History() []Diagnostic {
	return l.history.Items()
}

// Reset clears history, the disabled ledger and the sequence counter.
// Sinks stay attached.
func (l *Layer) Reset() {
	l.history.Reset()
	l.disabled = NewLedger()
	l.seq = 0
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// firstFrames trims a stack trace to a size that fits a log line.
func firstFrames(stack []byte) string {
	const limit = 2048
	if len(stack) > limit {
		return string(stack[:limit])
	}
	return string(stack)
}
