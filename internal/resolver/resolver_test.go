package resolver

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchwork/internal/diag"
	"github.com/roach88/patchwork/internal/index"
	"github.com/roach88/patchwork/internal/ir"
)

type fixture struct {
	ix    *index.Index
	layer *diag.Layer
	diags *diag.Collector
	r     *Resolver
	logs  *bytes.Buffer
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := &diag.Collector{}
	layer := diag.NewLayer(diag.WithLogger(logger), diag.WithSink(c))
	ix := index.New(index.WithLogger(logger))
	return &fixture{ix: ix, layer: layer, diags: c, r: New(ix, layer, opts...), logs: logs}
}

// load walks a module through the index lifecycle and notifies the resolver.
func (f *fixture) load(t *testing.T, id ir.ModuleID, text string, exports ir.Exports) int {
	t.Helper()
	require.True(t, f.ix.Index(id, text))
	_, err := f.ix.Settle(id)
	require.NoError(t, err)
	require.NoError(t, f.ix.MarkInstantiated(id, exports))
	return f.r.OnModuleInstantiated(id, text, exports)
}

func mapPtr(v any) uintptr {
	return reflect.ValueOf(v).Pointer()
}

func TestGetUserScenario(t *testing.T) {
	f := newFixture(t)

	h := f.r.Request("A", "getUser", ByFunc("getUser"))
	assert.Equal(t, Pending, h.State())
	_, err := h.Value()
	assert.ErrorIs(t, err, ErrPending)

	f.load(t, "1", "function other(){}", ir.Exports{"other": func() {}})
	assert.Equal(t, Pending, h.State(), "signature not in source")

	userExports := ir.Exports{"getUser": func() string { return "u" }}
	resolved := f.load(t, "2", "e.getUser=function(){}", userExports)
	assert.Equal(t, 1, resolved)
	assert.Equal(t, Resolved, h.State())

	first, err := h.Value()
	require.NoError(t, err)
	second, err := h.Value()
	require.NoError(t, err)
	assert.Equal(t, mapPtr(userExports), mapPtr(first))
	assert.Equal(t, mapPtr(first), mapPtr(second))

	module, ok := h.Module()
	assert.True(t, ok)
	assert.Equal(t, ir.ModuleID("2"), module)
}

func TestReferenceStabilityAcrossLaterModules(t *testing.T) {
	f := newFixture(t)
	type api struct{ name string }

	h := f.r.Request("A", "API", ByKey("api"), WithDerive(func(e ir.Exports) any {
		return e["api"]
	}))

	firstAPI := &api{name: "first"}
	f.load(t, "1", "API", ir.Exports{"api": firstAPI})
	f.load(t, "2", "API", ir.Exports{"api": &api{name: "second"}})

	v1, _ := h.Value()
	v2, _ := h.Value()
	assert.Same(t, firstAPI, v1)
	assert.Same(t, v1, v2)
}

func TestRequest_ResolvesSynchronously(t *testing.T) {
	f := newFixture(t)
	f.load(t, "10", "sig here", ir.Exports{"a": 1})
	f.load(t, "9", "sig here", ir.Exports{"a": 2})

	h := f.r.Request("A", "sig", ByKey("a"))

	require.Equal(t, Resolved, h.State())
	module, _ := h.Module()
	assert.Equal(t, ir.ModuleID("9"), module, "module-id order, not load order")
	assert.Equal(t, 0, f.r.Len())
}

func TestOnModuleInstantiated_RegistrationOrder(t *testing.T) {
	f := newFixture(t)
	var order []int64

	h1 := f.r.Request("A", "x", nil)
	h2 := f.r.Request("B", "x", nil)
	h1.OnResolve(func(any, error) { order = append(order, h1.ID()) })
	h2.OnResolve(func(any, error) { order = append(order, h2.ID()) })

	assert.Equal(t, 2, f.load(t, "1", "x", ir.Exports{}))
	assert.Equal(t, []int64{1, 2}, order)
}

func TestOnResolve_AfterSettleRunsImmediately(t *testing.T) {
	f := newFixture(t)
	f.load(t, "1", "x", ir.Exports{"k": true})
	h := f.r.Request("A", "x", nil)

	called := false
	h.OnResolve(func(v any, err error) {
		called = true
		assert.NoError(t, err)
	})
	assert.True(t, called)
}

func TestSelectorPanicIsIsolated(t *testing.T) {
	f := newFixture(t)

	bad := f.r.Request("Bad", "x", func(ir.Exports) bool { panic("selector bug") })
	good := f.r.Request("Good", "x", nil)

	assert.NotPanics(t, func() { f.load(t, "1", "x", ir.Exports{}) })

	assert.Equal(t, Pending, bad.State())
	assert.Equal(t, Resolved, good.State())
	assert.True(t, f.layer.Disabled("Bad", "1"))
	assert.Len(t, f.diags.ByCode(diag.CodeCallbackPanicked), 1)

	f.load(t, "2", "x", ir.Exports{})
	assert.Len(t, f.diags.ByCode(diag.CodeCallbackPanicked), 2, "module 2 is a fresh attempt")
}

func TestWaiterPanicIsIsolated(t *testing.T) {
	f := newFixture(t)
	h := f.r.Request("A", "x", nil)
	h.OnResolve(func(any, error) { panic("waiter bug") })

	assert.NotPanics(t, func() { f.load(t, "1", "x", ir.Exports{}) })
	assert.Equal(t, Resolved, h.State())
	assert.Len(t, f.diags.ByCode(diag.CodeCallbackPanicked), 1)
}

func TestRequire(t *testing.T) {
	f := newFixture(t)
	h := f.r.Request("A", "never", nil)

	_, err := h.Require()
	require.Error(t, err)
	assert.True(t, diag.IsNeverResolved(err))
	assert.Equal(t, Failed, h.State())
	assert.Equal(t, 0, f.r.Len())
	require.Len(t, f.diags.ByCode(diag.CodeNeverResolved), 1)
	assert.Equal(t, "never", f.diags.ByCode(diag.CodeNeverResolved)[0].Signature)

	f.load(t, "1", "never", ir.Exports{})
	assert.Equal(t, Failed, h.State(), "state leaves Pending at most once")

	resolved := f.r.Request("A", "never", nil)
	v, err := resolved.Require()
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	a := f.r.Request("A", "x", nil)
	b := f.r.Request("B", "x", nil)

	assert.Equal(t, 1, f.r.Cancel("A"))

	assert.Equal(t, Failed, a.State())
	assert.True(t, diag.IsCode(a.Err(), diag.CodeCancelled))
	assert.Equal(t, Pending, b.State())
	assert.Equal(t, 0, f.diags.Len(), "cancellation is not a failure")
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	h := f.r.Request("A", "x", nil)

	diags := f.r.Close()

	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodeNeverResolved, diags[0].Code)
	assert.Equal(t, Failed, h.State())
	assert.Empty(t, f.r.Close())
}

func TestWait(t *testing.T) {
	f := newFixture(t)
	h := f.r.Request("A", "x", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := h.Wait(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	got := make(chan any, 1)
	go func() {
		v, _ := h.Wait(context.Background())
		got <- v
	}()
	exports := ir.Exports{"k": 1}
	f.load(t, "1", "x", exports)

	select {
	case v := <-got:
		assert.Equal(t, mapPtr(exports), mapPtr(v))
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after resolution")
	}
}

func TestWaiterMayRequestDuringResolution(t *testing.T) {
	f := newFixture(t)
	var inner *Handle
	outer := f.r.Request("A", "x", nil)
	outer.OnResolve(func(any, error) {
		inner = f.r.Request("A", "later", nil)
	})

	f.load(t, "1", "x", ir.Exports{})

	require.NotNil(t, inner)
	assert.Equal(t, Pending, inner.State())
	assert.Equal(t, 1, f.r.Len())

	f.load(t, "2", "later", ir.Exports{})
	assert.Equal(t, Resolved, inner.State())
}

func TestPendingWatchWarnsOnce(t *testing.T) {
	f := newFixture(t, WithWarnAfter(2))
	f.r.Request("A", "never", nil)

	f.load(t, "1", "a", ir.Exports{})
	assert.Empty(t, f.diags.ByCode(diag.CodePendingTooLong))
	f.load(t, "2", "b", ir.Exports{})
	f.load(t, "3", "c", ir.Exports{})

	warns := f.diags.ByCode(diag.CodePendingTooLong)
	require.Len(t, warns, 1)
	assert.Equal(t, diag.SeverityWarn, warns[0].Severity)
	assert.Equal(t, 1, f.r.Len(), "watch never fails a request")
}
