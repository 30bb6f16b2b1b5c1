package index

import (
	"fmt"
	"log/slog"

	"github.com/roach88/patchwork/internal/ir"
)

// Record is the index entry for one module.
type Record struct {
	ID        ir.ModuleID
	RawSource string
	// PatchedSource is meaningful only when Patched is true.
	PatchedSource string
	Patched       bool
	State         ir.ModuleState
	Exports       ir.Exports
	// Err is the instantiation error of a Failed module.
	Err error
	// Order is the position at which the loader reported the module.
	Order int
}

// CurrentText returns the patched source if present, else the raw source.
func (r *Record) CurrentText() string {
	if r.Patched {
		return r.PatchedSource
	}
	return r.RawSource
}

// TransitionError is returned when a module is asked to move to a state it
// cannot reach from where it is.
type TransitionError struct {
	ID   ir.ModuleID
	From ir.ModuleState
	To   ir.ModuleState
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("module %s: invalid transition %s -> %s", e.ID, e.From, e.To)
}

// Index is the module source table.
type Index struct {
	logger  *slog.Logger
	records map[ir.ModuleID]*Record
	order   []ir.ModuleID
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the index logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Index) {
		ix.logger = logger
	}
}

// New creates an empty index.
func New(opts ...Option) *Index {
	ix := &Index{
		logger:  slog.Default(),
		records: make(map[ir.ModuleID]*Record),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Index records a new module in state Indexed.
//
// A duplicate id is a contract violation by the loader: it is logged and
// ignored, and Index returns false. The existing record is not touched.
func (ix *Index) Index(id ir.ModuleID, text string) bool {
	if _, ok := ix.records[id]; ok {
		ix.logger.Warn("module already indexed, ignoring",
			"module_id", string(id),
			"state", ix.records[id].State.String())
		return false
	}
	ix.records[id] = &Record{
		ID:        id,
		RawSource: text,
		State:     ir.ModuleIndexed,
		Order:     len(ix.order),
	}
	ix.order = append(ix.order, id)
	ix.logger.Debug("module indexed", "module_id", string(id), "bytes", len(text))
	return true
}

// Get returns the record for id.
func (ix *Index) Get(id ir.ModuleID) (*Record, bool) {
	r, ok := ix.records[id]
	return r, ok
}

// CurrentText returns the module's patched source if present, else its raw
// source. Unknown ids return false.
func (ix *Index) CurrentText(id ir.ModuleID) (string, bool) {
	r, ok := ix.records[id]
	if !ok {
		return "", false
	}
	return r.CurrentText(), true
}

// Commit stores text as the module's patched source. Only modules that have
// not yet settled accept commits.
func (ix *Index) Commit(id ir.ModuleID, text string) error {
	r, err := ix.expect(id, ir.ModulePatched, ir.ModuleIndexed)
	if err != nil {
		return err
	}
	r.PatchedSource = text
	r.Patched = true
	return nil
}

// Settle moves an Indexed module to Patched if any rule set committed, or to
// Unchanged otherwise, and returns the new state.
func (ix *Index) Settle(id ir.ModuleID) (ir.ModuleState, error) {
	to := ir.ModuleUnchanged
	if r, ok := ix.records[id]; ok && r.Patched {
		to = ir.ModulePatched
	}
	r, err := ix.expect(id, to, ir.ModuleIndexed)
	if err != nil {
		return ir.ModuleUnseen, err
	}
	r.State = to
	return to, nil
}

// MarkInstantiated records the module's exports.
func (ix *Index) MarkInstantiated(id ir.ModuleID, exports ir.Exports) error {
	r, err := ix.expect(id, ir.ModuleInstantiated, ir.ModulePatched, ir.ModuleUnchanged)
	if err != nil {
		return err
	}
	r.State = ir.ModuleInstantiated
	r.Exports = exports
	return nil
}

// MarkFailed records that the module's instantiation threw.
func (ix *Index) MarkFailed(id ir.ModuleID, cause error) error {
	r, err := ix.expect(id, ir.ModuleFailed, ir.ModulePatched, ir.ModuleUnchanged)
	if err != nil {
		return err
	}
	r.State = ir.ModuleFailed
	r.Err = cause
	return nil
}

func (ix *Index) expect(id ir.ModuleID, to ir.ModuleState, from ...ir.ModuleState) (*Record, error) {
	r, ok := ix.records[id]
	if !ok {
		return nil, &TransitionError{ID: id, From: ir.ModuleUnseen, To: to}
	}
	for _, s := range from {
		if r.State == s {
			return r, nil
		}
	}
	return nil, &TransitionError{ID: id, From: r.State, To: to}
}

// Instantiated returns the ids of instantiated modules in module-id order.
func (ix *Index) Instantiated() []ir.ModuleID {
	var ids []ir.ModuleID
	for id, r := range ix.records {
		if r.State == ir.ModuleInstantiated {
			ids = append(ids, id)
		}
	}
	ir.SortModuleIDs(ids)
	return ids
}

// IDs returns every indexed id in module-id order.
func (ix *Index) IDs() []ir.ModuleID {
	ids := make([]ir.ModuleID, len(ix.order))
	copy(ids, ix.order)
	ir.SortModuleIDs(ids)
	return ids
}

// Records returns every record in the order the loader reported them.
func (ix *Index) Records() []*Record {
	out := make([]*Record, len(ix.order))
	for i, id := range ix.order {
		out[i] = ix.records[id]
	}
	return out
}

// Len returns the number of indexed modules.
func (ix *Index) Len() int {
	return len(ix.records)
}
