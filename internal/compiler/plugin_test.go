package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchwork/internal/ir"
)

func compilePlugin(t *testing.T, src, path string) (*ir.PluginSpec, error) {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return CompilePlugin(v.LookupPath(cue.ParsePath(path)))
}

func TestCompilePluginBasic(t *testing.T) {
	spec, err := compilePlugin(t, `
		plugin: NoTrack: {
			description: "Stops tracking calls"
			patches: [{
				find: "FOO_TOKEN"
				group: true
				replacement: [
					{match: "x=1", replace: "x=2"},
					{match: "(\\i)\\.track\\(", replace: "$1.noop(", literal: false, global: true},
				]
			}]
			lazy: [{name: "users", find: "getUser", props: ["getUser"]}]
		}
	`, "plugin.NoTrack")
	require.NoError(t, err)

	assert.Equal(t, "NoTrack", spec.Name)
	assert.Equal(t, "Stops tracking calls", spec.Description)
	require.Len(t, spec.Patches, 1)

	p := spec.Patches[0]
	assert.Equal(t, "FOO_TOKEN", p.Find)
	assert.True(t, p.Group)
	assert.False(t, p.All)
	require.Len(t, p.Replacement, 2)
	assert.Equal(t, ir.LiteralPattern("x=1"), p.Replacement[0].Pattern)
	assert.Equal(t, "x=2", p.Replacement[0].Replacement.Template)
	assert.Equal(t, ir.RegexPattern(`(\i)\.track\(`), p.Replacement[1].Pattern)
	assert.True(t, p.Replacement[1].Global)

	require.Len(t, spec.Lazy, 1)
	assert.Equal(t, ir.LazySpec{Name: "users", Find: "getUser", Props: []string{"getUser"}}, spec.Lazy[0])
}

func TestCompilePluginSingleReplacementObject(t *testing.T) {
	spec, err := compilePlugin(t, `
		plugin: One: patches: [{
			find: "SIG"
			all: true
			noWarn: true
			replacement: {match: "a", replace: "b", atomic: true}
		}]
	`, "plugin.One")
	require.NoError(t, err)

	p := spec.Patches[0]
	assert.True(t, p.All)
	assert.True(t, p.NoWarn)
	require.Len(t, p.Replacement, 1)
	assert.True(t, p.Replacement[0].Atomic)
}

func TestCompilePluginQuotedName(t *testing.T) {
	spec, err := compilePlugin(t, `
		plugin: "no-track": lazy: [{find: "x", key: "default"}]
	`, `plugin."no-track"`)
	require.NoError(t, err)
	assert.Equal(t, "no-track", spec.Name)
	assert.Equal(t, "default", spec.Lazy[0].Key)
}

func TestCompilePluginErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{
			name:  "no patches or lazy",
			src:   `plugin: P: description: "empty"`,
			field: "patches",
		},
		{
			name:  "patch without find",
			src:   `plugin: P: patches: [{replacement: {match: "a", replace: "b"}}]`,
			field: "find",
		},
		{
			name:  "patch without replacement",
			src:   `plugin: P: patches: [{find: "SIG"}]`,
			field: "replacement",
		},
		{
			name:  "rule without match",
			src:   `plugin: P: patches: [{find: "SIG", replacement: {replace: "b"}}]`,
			field: "match",
		},
		{
			name:  "rule without replace",
			src:   `plugin: P: patches: [{find: "SIG", replacement: {match: "a"}}]`,
			field: "replace",
		},
		{
			name:  "lazy without find",
			src:   `plugin: P: lazy: [{props: ["a"]}]`,
			field: "lazy.find",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compilePlugin(t, tt.src, "plugin.P")
			require.Error(t, err)

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompilePluginWrongType(t *testing.T) {
	_, err := compilePlugin(t, `plugin: P: patches: [{find: 42, replacement: {match: "a", replace: "b"}}]`, "plugin.P")
	require.Error(t, err)
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "find", Message: "patch find is required"}
	assert.Equal(t, "find: patch find is required", err.Error())
}
