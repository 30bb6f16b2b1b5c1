package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"b": "2",
		"a": 1,
		"c": true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":"2","c":true}`, string(got))
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	got, err := MarshalCanonical("a<b>&c")
	require.NoError(t, err)
	assert.Equal(t, `"a<b>&c"`, string(got))
}

func TestMarshalCanonical_LineSeparatorsStayLiteral(t *testing.T) {
	got, err := MarshalCanonical("x\u2028y")
	require.NoError(t, err)
	assert.Equal(t, "\"x\u2028y\"", string(got))
}

func TestMarshalCanonical_EscapedBackslashBeforeU2028Text(t *testing.T) {
	// A literal backslash followed by the text "u2028" must stay escaped.
	got, err := MarshalCanonical(`a\u2028`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028"`, string(got))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	decomposed := "e\u0301"
	got, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"nil", nil},
		{"float", 1.5},
		{"struct", struct{}{}},
		{"nested float", map[string]any{"x": []any{1, 2.5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MarshalCanonical(tt.value)
			assert.Error(t, err)
		})
	}
}

func TestMarshalCanonical_StringCollections(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"list":  []string{"b", "a"},
		"attrs": map[string]string{"z": "1", "y": "2"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"attrs":{"y":"2","z":"1"},"list":["b","a"]}`, string(got))
}
