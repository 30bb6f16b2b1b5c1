package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/patchwork/internal/ir"
)

// ErrPending is returned by Value while a handle is still pending.
var ErrPending = errors.New("lazy request pending")

// State is the lifecycle position of a handle.
type State int

const (
	Pending State = iota
	Resolved
	Failed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Waiter is called once when a handle leaves Pending.
// On success err is nil; on failure value is nil.
type Waiter func(value any, err error)

// Handle is a deferred reference to an export.
//
// State leaves Pending at most once. Once resolved, Value returns the same
// cached value to every caller for the rest of the session.
type Handle struct {
	id        int64
	owner     string
	signature string

	mu      sync.Mutex
	state   State
	value   any
	module  ir.ModuleID
	err     error
	waiters []Waiter
	done    chan struct{}

	// require is installed by the resolver to fail the handle on demand.
	require func(*Handle) error
}

func newHandle(id int64, owner, signature string) *Handle {
	return &Handle{
		id:        id,
		owner:     owner,
		signature: signature,
		done:      make(chan struct{}),
	}
}

// ID returns the registration sequence number of the request.
func (h *Handle) ID() int64 { return h.id }

// Owner returns the collaborator that made the request.
func (h *Handle) Owner() string { return h.owner }

// Signature returns the fragment the request matches module source against.
func (h *Handle) Signature() string { return h.signature }

// State returns the current state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Module returns the id of the module the handle resolved against.
func (h *Handle) Module() (ir.ModuleID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.module, h.state == Resolved
}

// Value returns the cached value without blocking.
// A pending handle returns ErrPending; a failed one returns its error.
func (h *Handle) Value() (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case Resolved:
		return h.value, nil
	case Failed:
		return nil, h.err
	default:
		return nil, ErrPending
	}
}

// Err returns the failure of a failed handle, or nil.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Done returns a channel closed when the handle leaves Pending.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the handle resolves, fails, or ctx is done.
//
// Resolution is driven by loader events on the engine's goroutine, so Wait
// must not be called from that goroutine while the handle is pending.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		return h.Value()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Require returns the value of a resolved handle. A still-pending handle is
// failed with LAZY_REQUEST_NEVER_RESOLVED, which is attributed to the owner
// and returned. Call it from the engine's goroutine.
func (h *Handle) Require() (any, error) {
	if v, err := h.Value(); !errors.Is(err, ErrPending) {
		return v, err
	}
	if h.require != nil {
		return nil, h.require(h)
	}
	return nil, ErrPending
}

// OnResolve registers fn to run when the handle leaves Pending. If it
// already has, fn runs immediately in the caller's goroutine.
func (h *Handle) OnResolve(fn Waiter) {
	h.mu.Lock()
	if h.state == Pending {
		h.waiters = append(h.waiters, fn)
		h.mu.Unlock()
		return
	}
	value, err := h.value, h.err
	h.mu.Unlock()
	fn(value, err)
}

// resolve settles the handle and returns the waiters to notify.
// It returns false if the handle had already settled.
func (h *Handle) resolve(module ir.ModuleID, value any) ([]Waiter, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Pending {
		return nil, false
	}
	h.state = Resolved
	h.value = value
	h.module = module
	return h.settle(), true
}

// fail settles the handle with err and returns the waiters to notify.
func (h *Handle) fail(err error) ([]Waiter, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Pending {
		return nil, false
	}
	h.state = Failed
	h.err = err
	return h.settle(), true
}

func (h *Handle) settle() []Waiter {
	waiters := h.waiters
	h.waiters = nil
	close(h.done)
	return waiters
}
