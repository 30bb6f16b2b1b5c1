package host

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/patchwork/internal/ir"
)

// Bundle is a recorded module stream.
type Bundle struct {
	Modules []ModuleSpec `yaml:"modules"`
}

// ModuleSpec is one recorded module.
type ModuleSpec struct {
	ID      string                `yaml:"id"`
	Source  string                `yaml:"source"`
	Exports map[string]ExportSpec `yaml:"exports,omitempty"`
	// Fail makes instantiation throw with Error.
	Fail  bool   `yaml:"fail,omitempty"`
	Error string `yaml:"error,omitempty"`
}

// ExportSpec sketches one export. In YAML it is either a bare kind
// ("function") or a mapping with kind, code and value.
type ExportSpec struct {
	Kind  string `yaml:"kind"`
	Code  string `yaml:"code,omitempty"`
	Value any    `yaml:"value,omitempty"`
}

// Export kinds a bundle may declare.
const (
	KindFunction = "function"
	KindObject   = "object"
	KindString   = "string"
	KindNumber   = "number"
	KindBool     = "bool"
)

var validKinds = map[string]bool{
	KindFunction: true, KindObject: true, KindString: true, KindNumber: true, KindBool: true,
}

// UnmarshalYAML accepts the scalar shorthand as well as the full mapping.
func (e *ExportSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Kind = node.Value
		return nil
	}
	type plain ExportSpec
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*e = ExportSpec(p)
	return nil
}

// Export is the runtime value a recorded export stands in for. It carries
// its kind and source so selectors can inspect it.
type Export struct {
	Name  string
	Kind  string
	Code  string
	Value any
}

// Source returns the recorded code of the export.
func (e *Export) Source() string { return e.Code }

// IsFunction reports whether the export stands for a function.
func (e *Export) IsFunction() bool { return e.Kind == KindFunction }

// LoadBundle reads a bundle file.
func LoadBundle(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()

	b, err := ParseBundle(f)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", path, err)
	}
	return b, nil
}

// ParseBundle decodes and validates a bundle. Unknown fields are errors.
func ParseBundle(r io.Reader) (*Bundle, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var b Bundle
	if err := dec.Decode(&b); err != nil {
		if errors.Is(err, io.EOF) {
			return &b, nil
		}
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks ids and export kinds. Duplicate ids are allowed: replaying
// one exercises the engine's duplicate handling.
func (b *Bundle) Validate() error {
	for i, m := range b.Modules {
		if m.ID == "" {
			return fmt.Errorf("modules[%d]: id is required", i)
		}
		for name, ex := range m.Exports {
			if !validKinds[ex.Kind] {
				return fmt.Errorf("modules[%d] (%s): export %q: unknown kind %q", i, m.ID, name, ex.Kind)
			}
		}
	}
	return nil
}

// Events turns the bundle into loader events in file order: each module's
// source event is followed by its instantiated or failed event.
func (b *Bundle) Events() []Event {
	events := make([]Event, 0, 2*len(b.Modules))
	for _, m := range b.Modules {
		id := ir.ModuleID(m.ID)
		events = append(events, Event{Type: EventSource, Module: id, Source: m.Source})
		if m.Fail {
			msg := m.Error
			if msg == "" {
				msg = "module threw during instantiation"
			}
			events = append(events, Event{Type: EventFailed, Module: id, Err: errors.New(msg)})
			continue
		}
		events = append(events, Event{Type: EventInstantiated, Module: id, Exports: m.exports()})
	}
	return events
}

func (m ModuleSpec) exports() ir.Exports {
	out := make(ir.Exports, len(m.Exports))
	for name, spec := range m.Exports {
		out[name] = &Export{Name: name, Kind: spec.Kind, Code: spec.Code, Value: spec.Value}
	}
	return out
}
