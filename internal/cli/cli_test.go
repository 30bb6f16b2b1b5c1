package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

const tokenPack = `
package rules

plugin: NoTrack: {
	description: "replace the tracking call"
	patches: [{
		find: "FOO_TOKEN"
		replacement: {match: "x=1", replace: "x=2"}
	}]
}

plugin: Users: {
	description: "capture the user store"
	lazy: [{name: "store", find: "getUser", props: ["getUser"]}]
}
`

const tokenBundle = `
modules:
  - id: "1"
    source: "let x=1; FOO_TOKEN"
  - id: "lib/users"
    source: "e.getUser=function(){}"
    exports:
      getUser: function
`

// writeFiles writes name→content under a fresh temp dir and returns it.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	}
	return dir
}

type cmdResult struct {
	out    string
	errOut string
	err    error
}

func execute(t *testing.T, args ...string) cmdResult {
	t.Helper()
	return executeWith(t, &RunOptions{}, args...)
}

func executeWith(t *testing.T, run *RunOptions, args ...string) cmdResult {
	t.Helper()
	cmd := newRootCommand(&RootOptions{}, run)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return cmdResult{out: out.String(), errOut: errOut.String(), err: err}
}
