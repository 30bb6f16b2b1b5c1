package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/patchwork/internal/diag"
	"github.com/roach88/patchwork/internal/ir"
)

// Recorder adapts a Store to the engine's journal interface.
//
// The engine never sees journal errors: the recorder logs them and keeps
// the first one for Err, so a CLI run can fail after the session closes.
type Recorder struct {
	store  *Store
	ctx    context.Context
	logger *slog.Logger

	mu      sync.Mutex
	session string
	err     error
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the logger journal errors are reported to.
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = l
	}
}

// NewRecorder returns a recorder writing to s under ctx.
func NewRecorder(ctx context.Context, s *Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:  s,
		ctx:    ctx,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Session returns the id of the session being recorded.
func (r *Recorder) Session() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Err returns the first write error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) BeginSession(id string) {
	r.mu.Lock()
	r.session = id
	r.mu.Unlock()
	r.check("begin session", r.store.BeginSession(r.ctx, id))
}

// Rows arriving outside a session have nowhere to go and are dropped.

func (r *Recorder) RecordModule(ev ir.ModuleEvent) {
	if session := r.Session(); session != "" {
		r.check("record module", r.store.WriteModule(r.ctx, session, ev))
	}
}

func (r *Recorder) RecordAttempt(a ir.Attempt) {
	if session := r.Session(); session != "" {
		r.check("record attempt", r.store.WriteAttempt(r.ctx, session, a))
	}
}

// Record implements diag.Sink.
func (r *Recorder) Record(d diag.Diagnostic) {
	if session := r.Session(); session != "" {
		r.check("record diagnostic", r.store.WriteDiagnostic(r.ctx, session, d))
	}
}

func (r *Recorder) EndSession(sum ir.SessionSummary) {
	r.check("end session", r.store.EndSession(r.ctx, sum))
	r.mu.Lock()
	r.session = ""
	r.mu.Unlock()
}

func (r *Recorder) check(op string, err error) {
	if err == nil {
		return
	}
	r.logger.Error("journal write failed", "op", op, "session", r.Session(), "error", err)
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
}
