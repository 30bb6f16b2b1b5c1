package host

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchwork/internal/resolver"
)

const sampleBundle = `
modules:
  - id: "1"
    source: "let x=1; FOO_TOKEN"
  - id: "2"
    source: "e.getUser=function(){return u}"
    exports:
      getUser: function
      Store:
        kind: object
        code: "class Store{getUser(){}}"
  - id: "3"
    source: "throw new Error()"
    fail: true
    error: "boom"
`

func TestParseBundle(t *testing.T) {
	b, err := ParseBundle(strings.NewReader(sampleBundle))
	require.NoError(t, err)
	require.Len(t, b.Modules, 3)

	assert.Equal(t, KindFunction, b.Modules[1].Exports["getUser"].Kind)
	assert.Equal(t, KindObject, b.Modules[1].Exports["Store"].Kind)
	assert.Equal(t, "class Store{getUser(){}}", b.Modules[1].Exports["Store"].Code)
	assert.True(t, b.Modules[2].Fail)
}

func TestParseBundle_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "modules:\n  - id: \"1\"\n    sauce: x\n", "sauce"},
		{"missing id", "modules:\n  - source: x\n", "id is required"},
		{"bad kind", "modules:\n  - id: \"1\"\n    exports:\n      a: widget\n", "unknown kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBundle(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseBundle_Empty(t *testing.T) {
	b, err := ParseBundle(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, b.Modules)
}

func TestLoadBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleBundle), 0o644))

	b, err := LoadBundle(path)
	require.NoError(t, err)
	assert.Len(t, b.Modules, 3)

	_, err = LoadBundle(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBundleEvents(t *testing.T) {
	b, err := ParseBundle(strings.NewReader(sampleBundle))
	require.NoError(t, err)

	events := b.Events()
	require.Len(t, events, 6)

	types := make([]EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	assert.Equal(t, []EventType{
		EventSource, EventInstantiated,
		EventSource, EventInstantiated,
		EventSource, EventFailed,
	}, types)
	assert.EqualError(t, events[5].Err, "boom")

	exports := events[3].Exports
	assert.True(t, resolver.ByFunc("getUser")(exports))
	assert.False(t, resolver.ByFunc("Store")(exports))
	assert.True(t, resolver.ByCode("class Store")(exports))
}
