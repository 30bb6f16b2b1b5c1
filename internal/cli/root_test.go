package cli

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "patchwork", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"validate", "compile", "run", "test", "report"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		command string
		flags   []string
	}{
		{"compile", []string{"output"}},
		{"run", []string{"db", "out", "pattern-timeout", "pending-warn-after"}},
		{"test", []string{"update", "filter"}},
		{"report", []string{"db", "session", "owner", "list"}},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			sub, _, err := NewRootCommand().Find([]string{tt.command})
			require.NoError(t, err)
			for _, name := range tt.flags {
				assert.NotNil(t, sub.Flags().Lookup(name), "flag --%s", name)
			}
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	res := execute(t, "validate", "--format", "yaml", t.TempDir())
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Contains(t, res.err.Error(), `invalid format "yaml"`)
}

func TestConfigFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{"pack/a.cue": tokenPack})
	cfgPath := filepath.Join(dir, "patchwork.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("rules_dir: "+filepath.Join(dir, "pack")+"\n"), 0644))

	// No positional argument: the pack directory comes from the config.
	res := execute(t, "validate", "--config", cfgPath)
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "2 plugin(s) valid")
}

func TestConfigFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "patchwork.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log_level: loud\n"), 0644))

	res := execute(t, "validate", "--config", cfgPath, dir)
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Contains(t, res.err.Error(), "failed to load config")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("json", "warn", false, &buf)
	logger.Info("dropped")
	logger.Warn("kept", "owner", "A")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "A", line["owner"])

	buf.Reset()
	logger = newLogger("text", "error", true, &buf)
	logger.Debug("verbose wins", "module", "1")
	assert.Contains(t, buf.String(), "verbose wins")
	assert.Contains(t, buf.String(), "module=1")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}
