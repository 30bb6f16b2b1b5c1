package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchwork/internal/ir"
)

func newMatcherFixture(t *testing.T) (*Index, *Matcher) {
	t.Helper()
	ix := New()
	ix.Index("30", "function a(){return FOO_TOKEN}")
	ix.Index("4", "let y=2; FOO_TOKEN")
	ix.Index("100", "unrelated")
	ix.Index("7", "FOO_TOKEN again")
	return ix, NewMatcher(ix)
}

func TestFindCandidates(t *testing.T) {
	_, m := newMatcherFixture(t)

	tests := []struct {
		name      string
		signature string
		all       bool
		want      []ir.ModuleID
	}{
		{"first by id order", "FOO_TOKEN", false, []ir.ModuleID{"4"}},
		{"all in id order", "FOO_TOKEN", true, []ir.ModuleID{"4", "7", "30"}},
		{"no match", "BAR_TOKEN", true, nil},
		{"no match first", "BAR_TOKEN", false, nil},
		{"single hit", "unrelated", false, []ir.ModuleID{"100"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.FindCandidates(tt.signature, tt.all))
		})
	}
}

func TestFindCandidates_SeesPatchedText(t *testing.T) {
	ix, m := newMatcherFixture(t)

	require.NoError(t, ix.Commit("100", "now has NEW_TOKEN"))

	assert.Equal(t, []ir.ModuleID{"100"}, m.FindCandidates("NEW_TOKEN", true))
	assert.Empty(t, m.FindCandidates("unrelated", true))
}

func TestMatches(t *testing.T) {
	_, m := newMatcherFixture(t)

	assert.True(t, m.Matches("FOO_TOKEN", "4"))
	assert.False(t, m.Matches("FOO_TOKEN", "100"))
	assert.True(t, m.Matches("", "100"), "empty signature matches everything")
	assert.False(t, m.Matches("", "missing"))
}

func TestMatchesInstantiated(t *testing.T) {
	ix, m := newMatcherFixture(t)

	assert.False(t, m.MatchesInstantiated("FOO_TOKEN", "4"))

	_, err := ix.Settle("4")
	require.NoError(t, err)
	require.NoError(t, ix.MarkInstantiated("4", ir.Exports{}))

	assert.True(t, m.MatchesInstantiated("FOO_TOKEN", "4"))
	assert.False(t, m.MatchesInstantiated("unrelated", "4"))
}
