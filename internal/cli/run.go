package cli

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/patchwork/internal/config"
	"github.com/roach88/patchwork/internal/engine"
	"github.com/roach88/patchwork/internal/harness"
	"github.com/roach88/patchwork/internal/host"
	"github.com/roach88/patchwork/internal/ir"
	"github.com/roach88/patchwork/internal/resolver"
	"github.com/roach88/patchwork/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	OutDir string

	// SessionIDs overrides the session id source (for tests).
	// If nil, defaults to engine.UUIDv7Generator.
	SessionIDs engine.SessionIDGenerator
}

// RunResult is what one session did.
type RunResult struct {
	Session     string                         `json:"session"`
	Summary     ir.SessionSummary              `json:"summary"`
	States      map[string]int                 `json:"states"`
	Modules     []harness.ModuleOutput         `json:"modules"`
	Lazy        map[string]harness.LazyOutcome `json:"lazy,omitempty"`
	Diagnostics []DiagnosticView               `json:"diagnostics"`
	Written     []string                       `json:"written,omitempty"`
	Journal     string                         `json:"journal,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <rules-dir> <bundle>",
		Short: "Replay a bundle through a rule pack",
		Long: `Run one session: register the rule pack, replay the recorded bundle
module by module, then print the session report.

With --db the session is journaled to SQLite for "patchwork report".
With --out the executed text of every module is written to a directory.

Exit codes:
  0 - Session finished without error diagnostics
  1 - Session produced error diagnostics (aborts, unresolved requests)
  2 - Command error (bad pack, unreadable bundle, journal failure)

Example:
  patchwork run ./rules ./bundle.yaml --db ./patchwork.db
  patchwork run ./rules ./bundle.yaml --out ./patched --verbose`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().String("db", "", "path to SQLite journal (optional)")
	cmd.Flags().StringVar(&opts.OutDir, "out", "", "directory for executed module text")
	cmd.Flags().Duration("pattern-timeout", config.DefaultConfig().PatternTimeout, "bound on each pattern match (0 disables)")
	cmd.Flags().Int("pending-warn-after", config.DefaultConfig().PendingWarnAfter, "instantiations a lazy request may wait through before a warning (0 disables)")

	return cmd
}

func runSession(opts *RunOptions, rulesDir, bundlePath string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	cfg, logger := opts.Config, opts.Logger

	logger.Info("loading rule pack", "dir", rulesDir)
	plugins, err := loadPack(rulesDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load rule pack", err)
	}
	bundle, err := host.LoadBundle(bundlePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load bundle", err)
	}
	logger.Info("inputs loaded", "plugins", len(plugins), "modules", len(bundle.Modules))

	ids := opts.SessionIDs
	if ids == nil {
		ids = engine.UUIDv7Generator{}
	}
	engineOpts := []engine.EngineOption{
		engine.WithLogger(logger),
		engine.WithSessionIDs(ids),
		engine.WithPatternTimeout(cfg.PatternTimeout),
		engine.WithPendingWarnAfter(cfg.PendingWarnAfter),
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	var rec *store.Recorder
	if cfg.DB != "" {
		logger.Info("opening journal", "path", cfg.DB)
		st, err := store.Open(cfg.DB)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
		rec = store.NewRecorder(ctx, st, store.WithRecorderLogger(logger))
		engineOpts = append(engineOpts, engine.WithJournal(rec))
	}

	e := engine.New(engineOpts...)
	handles, order, err := registerPack(e, plugins)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register rule pack", err)
	}

	replay, err := host.Replay(ctx, e, bundle, host.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "replay interrupted", err)
	}
	if rec != nil {
		if err := rec.Err(); err != nil {
			return WrapExitError(ExitCommandError, "journal write failed", err)
		}
	}

	report := replay.Report
	result := RunResult{
		Session:     report.Summary.ID,
		Summary:     report.Summary,
		States:      report.States,
		Modules:     make([]harness.ModuleOutput, 0, len(replay.Outputs)),
		Lazy:        make(map[string]harness.LazyOutcome, len(order)),
		Diagnostics: newDiagnosticViews(report.Diagnostics),
		Journal:     cfg.DB,
	}
	for _, o := range replay.Outputs {
		result.Modules = append(result.Modules, harness.ModuleOutput{ID: string(o.ID), Text: o.Text, Patched: o.Patched})
	}
	for _, ref := range order {
		result.Lazy[ref] = harness.LazyOutcomeOf(handles[ref])
	}

	if opts.OutDir != "" {
		written, err := writeOutputs(opts.OutDir, replay.Outputs)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to write module output", err)
		}
		result.Written = written
		logger.Info("module output written", "dir", opts.OutDir, "files", len(written))
	}

	if f.JSON() {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		printRun(f, result)
	}

	if !report.Clean() {
		return NewExitError(ExitFailure, fmt.Sprintf("session %s finished with %d error diagnostic(s)", result.Session, len(report.Failures())))
	}
	return nil
}

// registerPack registers plugins in pack order and requests their lazy
// exports. Handles are keyed plugin~name, like scenario assertions.
func registerPack(e *engine.Engine, plugins []ir.PluginSpec) (map[string]*resolver.Handle, []string, error) {
	handles := make(map[string]*resolver.Handle)
	var order []string
	for _, p := range plugins {
		if _, err := e.RegisterPlugin(p); err != nil {
			return nil, nil, err
		}
		for i, spec := range p.Lazy {
			ref := harness.LazyRef(p.Name, spec, i)
			handles[ref] = e.FindLazyBy(p.Name, spec)
			order = append(order, ref)
		}
	}
	return handles, order, nil
}

// signalContext cancels on SIGINT or SIGTERM. A nil parent (commands run
// without ExecuteContext) means context.Background().
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// writeOutputs writes each module's executed text to dir/<id>.js.
func writeOutputs(dir string, outputs []host.Output) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	written := make([]string, 0, len(outputs))
	for _, o := range outputs {
		path := filepath.Join(dir, outputFileName(o.ID))
		if err := os.WriteFile(path, []byte(o.Text), 0644); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

var fileNameReplacer = strings.NewReplacer("/", "_", "\\", "_", ":", "_")

func outputFileName(id ir.ModuleID) string {
	return fileNameReplacer.Replace(string(id)) + ".js"
}

func printRun(f *OutputFormatter, result RunResult) {
	w := f.Writer
	fmt.Fprintf(w, "Session: %s\n", result.Session)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Modules ===")
	for _, m := range result.Modules {
		mark := " "
		if m.Patched {
			mark = okMark.Sprint("*")
		}
		fmt.Fprintf(w, "  %s %s\n", mark, m.ID)
	}
	fmt.Fprintln(w)
	printCounts(w, result.States)
	fmt.Fprintln(w)

	if len(result.Lazy) > 0 {
		fmt.Fprintln(w, "=== Lazy ===")
		for _, ref := range slices.Sorted(maps.Keys(result.Lazy)) {
			out := result.Lazy[ref]
			line := fmt.Sprintf("  %s: %s", ref, out.State)
			if out.Module != "" {
				line += " (module " + out.Module + ")"
			}
			if out.Code != "" {
				line += " " + warnMark.Sprint(out.Code)
			}
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "=== Diagnostics ===")
	printDiagnostics(w, result.Diagnostics)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Summary ===")
	printSummary(w, result.Summary)

	if len(result.Written) > 0 {
		fmt.Fprintf(w, "\nWrote %d module(s)\n", len(result.Written))
	}
	if result.Journal != "" {
		fmt.Fprintf(w, "Journaled to %s\n", result.Journal)
	}
}
