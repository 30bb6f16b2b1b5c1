package diag

import "github.com/roach88/patchwork/internal/ir"

// Ledger records (module, key) pairs for the session.
//
// The scheduler uses one ledger to remember which rule sets were already
// attempted against a module, and the layer uses another to remember which
// owners are disabled on a module. Keys are rule set ids or owner names.
type Ledger struct {
	history map[ir.ModuleID]map[string]bool
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{history: make(map[ir.ModuleID]map[string]bool)}
}

// Seen reports whether key was recorded for module.
func (l *Ledger) Seen(module ir.ModuleID, key string) bool {
	return l.history[module][key]
}

// Record marks key for module. Recording twice is a no-op.
func (l *Ledger) Record(module ir.ModuleID, key string) {
	if l.history[module] == nil {
		l.history[module] = make(map[string]bool)
	}
	l.history[module][key] = true
}

// Clear removes all history for a module.
func (l *Ledger) Clear(module ir.ModuleID) {
	delete(l.history, module)
}

// Size returns the number of modules with recorded keys.
func (l *Ledger) Size() int {
	return len(l.history)
}

// ModuleSize returns the number of keys recorded for a module.
func (l *Ledger) ModuleSize(module ir.ModuleID) int {
	return len(l.history[module])
}
