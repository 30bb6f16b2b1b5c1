package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/roach88/patchwork/internal/compiler"
	"github.com/roach88/patchwork/internal/diag"
	"github.com/roach88/patchwork/internal/engine"
	"github.com/roach88/patchwork/internal/host"
	"github.com/roach88/patchwork/internal/ir"
	"github.com/roach88/patchwork/internal/resolver"
	"github.com/roach88/patchwork/internal/store"
)

// sessionPrefix names scenario sessions; the first is always scenario-1.
const sessionPrefix = "scenario"

// Harness runs one scenario against a fresh engine and journal.
type Harness struct {
	store   *store.Store
	engine  *engine.Engine
	handles map[string]*resolver.Handle
	order   []string
	logger  *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
//  1. Compile and validate the rule pack
//  2. Open a fresh in-memory journal
//  3. Register every plugin and request its lazy exports
//  4. Replay the bundle through a host
//  5. Read the journal back and evaluate assertions
//
// Errors are returned for scenarios that cannot run; failed assertions are
// reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	plugins, err := loadPlugins(scenario)
	if err != nil {
		return nil, err
	}
	bundle, err := loadBundle(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := store.NewRecorder(ctx, st, store.WithRecorderLogger(logger))

	h := &Harness{
		store: st,
		engine: engine.New(
			engine.WithLogger(logger),
			engine.WithJournal(rec),
			engine.WithSessionIDs(engine.NewSequenceGenerator(sessionPrefix)),
		),
		handles: make(map[string]*resolver.Handle),
		logger:  logger,
	}

	if err := h.register(plugins); err != nil {
		return nil, err
	}

	replay, err := host.Replay(ctx, h.engine, bundle, host.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to replay bundle: %w", err)
	}
	if err := rec.Err(); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}

	result := NewResult()
	for _, o := range replay.Outputs {
		result.Outputs = append(result.Outputs, ModuleOutput{ID: string(o.ID), Text: o.Text, Patched: o.Patched})
	}
	for _, ref := range h.order {
		result.Lazy[ref] = LazyOutcomeOf(h.handles[ref])
	}
	if result.Trace, err = h.readTrace(ctx); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func loadPlugins(s *Scenario) ([]ir.PluginSpec, error) {
	var (
		res  *compiler.LoadResult
		errs []error
	)
	if s.Rules != "" {
		res, errs = compiler.LoadDir(s.Rules, compiler.LoadModeFailFast)
	} else {
		res, errs = compiler.LoadSource(s.Name+".cue", s.Plugins, compiler.LoadModeFailFast)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to load rules: %w", errs[0])
	}
	if verrs := compiler.Validate(res.Plugins); len(verrs) > 0 {
		return nil, fmt.Errorf("invalid rules: %w", verrs[0])
	}
	return res.Plugins, nil
}

func loadBundle(s *Scenario) (*host.Bundle, error) {
	if s.Bundle != "" {
		return host.LoadBundle(s.Bundle)
	}
	return &host.Bundle{Modules: s.Modules}, nil
}

// register registers plugins in pack order and requests their lazy exports.
func (h *Harness) register(plugins []ir.PluginSpec) error {
	for _, p := range plugins {
		if _, err := h.engine.RegisterPlugin(p); err != nil {
			return fmt.Errorf("failed to register plugin: %w", err)
		}
		for i, spec := range p.Lazy {
			ref := LazyRef(p.Name, spec, i)
			h.handles[ref] = h.engine.FindLazyBy(p.Name, spec)
			h.order = append(h.order, ref)
		}
	}
	return nil
}

// LazyRef names a plugin's lazy request: plugin~name, or plugin~index when
// the request is unnamed.
func LazyRef(plugin string, spec ir.LazySpec, index int) string {
	if spec.Name != "" {
		return plugin + "~" + spec.Name
	}
	return plugin + "~" + strconv.Itoa(index)
}

// LazyOutcomeOf reports how a lazy request handle ended.
func LazyOutcomeOf(h *resolver.Handle) LazyOutcome {
	out := LazyOutcome{State: h.State().String()}
	if id, ok := h.Module(); ok {
		out.Module = string(id)
	}
	if err := h.Err(); err != nil {
		out.Code = string(diag.CodeOf(err))
	}
	return out
}

func (h *Harness) readTrace(ctx context.Context) (Trace, error) {
	sess, err := h.store.LatestSession(ctx)
	if err != nil {
		return Trace{}, fmt.Errorf("read session: %w", err)
	}
	tr := Trace{Summary: sess.Summary}
	if tr.Modules, err = h.store.ReadModules(ctx, sess.ID, store.Filter{}); err != nil {
		return Trace{}, err
	}
	if tr.Attempts, err = h.store.ReadAttempts(ctx, sess.ID, store.Filter{}); err != nil {
		return Trace{}, err
	}
	if tr.Diagnostics, err = h.store.ReadDiagnostics(ctx, sess.ID, store.Filter{}); err != nil {
		return Trace{}, err
	}
	return tr, nil
}
