package resolver

// DefaultWarnAfter is the number of instantiations a request may stay
// pending before the watch flags it.
const DefaultWarnAfter = 500

// PendingWatch counts instantiations seen while a request is pending and
// flags each request once when it crosses the limit. It never fails a
// request.
type PendingWatch struct {
	warnAfter int
	seen      map[int64]int
	flagged   map[int64]bool
}

// NewPendingWatch creates a watch. A limit of zero or less disables it.
func NewPendingWatch(warnAfter int) *PendingWatch {
	return &PendingWatch{
		warnAfter: warnAfter,
		seen:      make(map[int64]int),
		flagged:   make(map[int64]bool),
	}
}

// Tick records one instantiation for every pending handle and returns the
// handles that just crossed the limit.
func (w *PendingWatch) Tick(pending []*Handle) []*Handle {
	if w.warnAfter <= 0 {
		return nil
	}
	var crossed []*Handle
	for _, h := range pending {
		w.seen[h.id]++
		if w.seen[h.id] >= w.warnAfter && !w.flagged[h.id] {
			w.flagged[h.id] = true
			crossed = append(crossed, h)
		}
	}
	return crossed
}

// Seen returns how many instantiations h has waited through.
func (w *PendingWatch) Seen(h *Handle) int {
	return w.seen[h.id]
}

// Forget drops the counters for h once it settles.
func (w *PendingWatch) Forget(h *Handle) {
	delete(w.seen, h.id)
	delete(w.flagged, h.id)
}

// WarnAfter returns the configured limit.
func (w *PendingWatch) WarnAfter() int {
	return w.warnAfter
}
