package diag

// Sink receives every reported diagnostic.
// The journal store and Collector implement it.
type Sink interface {
	Record(Diagnostic)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Diagnostic)

// Record calls f(d).
func (f SinkFunc) Record(d Diagnostic) { f(d) }

// Collector is an in-memory sink that keeps diagnostics in report order.
type Collector struct {
	items []Diagnostic
}

// Record appends d.
func (c *Collector) Record(d Diagnostic) {
	c.items = append(c.items, d)
}

// Items returns a copy of all collected diagnostics.
func (c *Collector) Items() []Diagnostic {
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	return out
}

// ByOwner returns the diagnostics attributed to owner.
func (c *Collector) ByOwner(owner string) []Diagnostic {
	var out []Diagnostic
	for _, d := range c.items {
		if d.Owner == owner {
			out = append(out, d)
		}
	}
	return out
}

// ByCode returns the diagnostics with the given code.
func (c *Collector) ByCode(code Code) []Diagnostic {
	var out []Diagnostic
	for _, d := range c.items {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

// Len returns the number of collected diagnostics.
func (c *Collector) Len() int {
	return len(c.items)
}

// Reset drops all collected diagnostics.
func (c *Collector) Reset() {
	c.items = nil
}
