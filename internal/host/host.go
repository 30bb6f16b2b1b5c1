package host

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/patchwork/internal/engine"
	"github.com/roach88/patchwork/internal/ir"
)

// Output is the text the loader executed for one module.
type Output struct {
	ID      ir.ModuleID
	Text    string
	Patched bool
}

// Result is the outcome of replaying a bundle.
type Result struct {
	Outputs []Output
	Report  engine.Report
}

// Host feeds loader events to an engine from a single goroutine.
//
// Thread-safety model:
//   - Enqueue: safe from any goroutine
//   - Run: must be called from exactly one goroutine; it is the engine's
//     single writer
type Host struct {
	engine  *engine.Engine
	queue   *eventQueue
	logger  *slog.Logger
	outputs []Output
	seen    map[ir.ModuleID]int
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the host logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		h.logger = logger
	}
}

// New creates a host driving e.
func New(e *engine.Engine, opts ...Option) *Host {
	h := &Host{
		engine: e,
		queue:  newEventQueue(),
		logger: slog.Default(),
		seen:   make(map[ir.ModuleID]int),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Enqueue submits a loader event. Returns false once the host is stopped.
func (h *Host) Enqueue(ev Event) bool {
	return h.queue.Enqueue(ev)
}

// Load enqueues every event of b and returns how many were accepted.
func (h *Host) Load(b *Bundle) int {
	n := 0
	for _, ev := range b.Events() {
		if h.Enqueue(ev) {
			n++
		}
	}
	return n
}

// QueueLen returns the number of events waiting.
func (h *Host) QueueLen() int {
	return h.queue.Len()
}

// Stop closes the queue. Run drains what is queued and returns.
func (h *Host) Stop() {
	h.queue.Close()
}

// Run feeds queued events to the engine until the queue is stopped and
// drained, or ctx is cancelled.
//
// Event handling failures are logged and processing continues; the engine
// itself never fails a loader event.
func (h *Host) Run(ctx context.Context) error {
	h.logger.Info("host starting")
	for {
		if ev, ok := h.queue.TryDequeue(); ok {
			if err := h.process(ev); err != nil {
				h.logger.Error("loader event failed",
					"type", ev.Type.String(), "module_id", string(ev.Module), "error", err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			h.logger.Info("host stopping: context cancelled")
			h.queue.Close()
			return ctx.Err()
		case <-h.queue.Wait():
			if h.queue.Drained() {
				h.logger.Info("host stopping: queue drained")
				return nil
			}
		}
	}
}

func (h *Host) process(ev Event) error {
	switch ev.Type {
	case EventSource:
		text := h.engine.ModuleSourceAvailable(ev.Module, ev.Source)
		out := Output{ID: ev.Module, Text: text, Patched: text != ev.Source}
		if i, dup := h.seen[ev.Module]; dup {
			h.outputs[i] = out
		} else {
			h.seen[ev.Module] = len(h.outputs)
			h.outputs = append(h.outputs, out)
		}
	case EventInstantiated:
		h.engine.ModuleInstantiated(ev.Module, ev.Exports)
	case EventFailed:
		h.engine.ModuleFailed(ev.Module, ev.Err)
	default:
		return fmt.Errorf("unknown event type: %d", ev.Type)
	}
	return nil
}

// Outputs returns the executed text of every module in first-seen order.
func (h *Host) Outputs() []Output {
	out := make([]Output, len(h.outputs))
	copy(out, h.outputs)
	return out
}

// Replay runs a whole session: Init, every event of b, Teardown.
// The engine must already have its rule sets and lazy requests registered.
func Replay(ctx context.Context, e *engine.Engine, b *Bundle, opts ...Option) (Result, error) {
	h := New(e, opts...)
	e.Init()
	h.Load(b)
	h.Stop()
	if err := h.Run(ctx); err != nil {
		report := e.Teardown()
		return Result{Outputs: h.Outputs(), Report: report}, fmt.Errorf("replay: %w", err)
	}
	return Result{Outputs: h.Outputs(), Report: e.Teardown()}, nil
}
