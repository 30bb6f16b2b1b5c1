package resolver

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/patchwork/internal/diag"
	"github.com/roach88/patchwork/internal/index"
	"github.com/roach88/patchwork/internal/ir"
)

type request struct {
	handle   *Handle
	selector ir.Selector
	derive   func(ir.Exports) any
}

// RequestOption configures a single request.
type RequestOption func(*request)

// WithDerive caches derive(exports) instead of the exports object itself.
func WithDerive(derive func(ir.Exports) any) RequestOption {
	return func(r *request) {
		r.derive = derive
	}
}

// Resolver owns the pending lazy requests of a session.
// It is driven by the engine's single writer and is not safe for concurrent
// use; the handles it returns are.
type Resolver struct {
	ix      *index.Index
	matcher *index.Matcher
	layer   *diag.Layer
	logger  *slog.Logger
	watch   *PendingWatch

	pending []*request
	nextID  int64
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithWarnAfter sets the pending-watch limit. Zero disables the watch.
func WithWarnAfter(n int) Option {
	return func(r *Resolver) {
		r.watch = NewPendingWatch(n)
	}
}

// New creates a resolver over ix that reports through layer.
func New(ix *index.Index, layer *diag.Layer, opts ...Option) *Resolver {
	r := &Resolver{
		ix:      ix,
		matcher: index.NewMatcher(ix),
		layer:   layer,
		logger:  layer.Logger(),
		watch:   NewPendingWatch(DefaultWarnAfter),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Request returns a handle for the export selected by selector in a module
// whose source contains signature. A nil selector accepts any exports.
//
// Already-instantiated modules are checked first, in module-id order, and a
// match resolves the handle before Request returns. Otherwise the request
// stays pending until OnModuleInstantiated finds a match.
func (r *Resolver) Request(owner, signature string, selector ir.Selector, opts ...RequestOption) *Handle {
	r.nextID++
	req := &request{
		handle:   newHandle(r.nextID, owner, signature),
		selector: selector,
	}
	for _, opt := range opts {
		opt(req)
	}
	req.handle.require = r.require

	for _, id := range r.ix.Instantiated() {
		if !r.matcher.MatchesInstantiated(signature, id) {
			continue
		}
		rec, _ := r.ix.Get(id)
		if r.try(req, id, rec.Exports) {
			r.logger.Debug("lazy request resolved immediately",
				"owner", owner, "signature", signature, "module_id", string(id))
			return req.handle
		}
	}

	r.pending = append(r.pending, req)
	r.logger.Debug("lazy request pending",
		"owner", owner, "signature", signature, "request", req.handle.id)
	return req.handle
}

// OnModuleInstantiated resolves every pending request whose signature is in
// text and whose selector accepts exports, in registration order.
func (r *Resolver) OnModuleInstantiated(id ir.ModuleID, text string, exports ir.Exports) int {
	resolved := 0
	batch := r.pending
	r.pending = nil
	var keep []*request
	for _, req := range batch {
		if req.handle.State() != Pending {
			continue
		}
		if strings.Contains(text, req.handle.signature) && r.try(req, id, exports) {
			resolved++
			r.watch.Forget(req.handle)
			continue
		}
		keep = append(keep, req)
	}
	// Waiters may have failed batch requests or added new ones meanwhile.
	keep = slices.DeleteFunc(keep, func(req *request) bool {
		return req.handle.State() != Pending
	})
	r.pending = append(keep, r.pending...)

	for _, h := range r.watch.Tick(r.Pending()) {
		d := diag.Warn(diag.CodePendingTooLong, h.owner,
			fmt.Sprintf("lazy request still pending after %d instantiations", r.watch.Seen(h)))
		d.Signature = h.signature
		d.Details = map[string]string{"request": strconv.FormatInt(h.id, 10)}
		r.layer.Report(d)
	}
	return resolved
}

// try runs the selector and derive callbacks for one candidate module and
// resolves the handle on a match. Callback panics disable the owner on the
// module and count as no match.
func (r *Resolver) try(req *request, id ir.ModuleID, exports ir.Exports) bool {
	h := req.handle
	if r.layer.Disabled(h.owner, id) {
		return false
	}
	if req.selector != nil {
		ok, _ := r.layer.GuardBool(h.owner, id, "lazy selector", func() bool {
			return req.selector(exports)
		})
		if !ok {
			return false
		}
	}

	var value any = exports
	if req.derive != nil {
		failure := r.layer.Guard(h.owner, id, "lazy derive", func() {
			value = req.derive(exports)
		})
		if failure != nil {
			return false
		}
	}

	waiters, ok := h.resolve(id, value)
	if !ok {
		return false
	}
	r.notify(h, id, waiters, value, nil)
	return true
}

func (r *Resolver) notify(h *Handle, id ir.ModuleID, waiters []Waiter, value any, err error) {
	for _, w := range waiters {
		r.layer.Guard(h.owner, id, "lazy waiter", func() { w(value, err) })
	}
}

// require fails a pending handle on demand.
func (r *Resolver) require(h *Handle) error {
	d := diag.New(diag.CodeNeverResolved, h.owner, "lazy request required before it resolved")
	d.Signature = h.signature
	if !r.failHandle(h, d) {
		// Settled concurrently; report what it settled to.
		_, err := h.Value()
		return err
	}
	r.layer.Report(d)
	return d
}

func (r *Resolver) failHandle(h *Handle, d *diag.Diagnostic) bool {
	waiters, ok := h.fail(d)
	if !ok {
		return false
	}
	r.remove(h)
	r.notify(h, "", waiters, nil, d)
	return true
}

func (r *Resolver) remove(h *Handle) {
	for i, req := range r.pending {
		if req.handle == h {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			break
		}
	}
	r.watch.Forget(h)
}

// Cancel fails every pending request of owner with REQUEST_CANCELLED and
// returns how many were cancelled. Cancellation is logged, not reported.
func (r *Resolver) Cancel(owner string) int {
	n := 0
	for _, h := range r.Pending() {
		if h.owner != owner {
			continue
		}
		d := diag.Warn(diag.CodeCancelled, owner, "lazy request cancelled by deregistration")
		d.Signature = h.signature
		if r.failHandle(h, d) {
			n++
		}
	}
	if n > 0 {
		r.logger.Info("lazy requests cancelled", "owner", owner, "count", n)
	}
	return n
}

// Close fails every still-pending request with LAZY_REQUEST_NEVER_RESOLVED,
// reporting one diagnostic per request. It returns the diagnostics.
func (r *Resolver) Close() []*diag.Diagnostic {
	var out []*diag.Diagnostic
	for _, h := range r.Pending() {
		d := diag.New(diag.CodeNeverResolved, h.owner, "lazy request never resolved before session end")
		d.Signature = h.signature
		if r.failHandle(h, d) {
			r.layer.Report(d)
			out = append(out, d)
		}
	}
	return out
}

// Pending returns the pending handles in registration order.
func (r *Resolver) Pending() []*Handle {
	out := make([]*Handle, 0, len(r.pending))
	for _, req := range r.pending {
		out = append(out, req.handle)
	}
	return out
}

// Len returns the number of pending requests.
func (r *Resolver) Len() int {
	return len(r.pending)
}
