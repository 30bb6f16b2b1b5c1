package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/patchwork/internal/diag"
	"github.com/roach88/patchwork/internal/ir"
	"github.com/roach88/patchwork/internal/store"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Session string
	Owner   string // optional - attempts and diagnostics of one owner
	Module  string // optional - one module's rows
	Code    string // optional - diagnostics with this code
	List    bool
}

// ReportResult is one journaled session read back.
type ReportResult struct {
	Session     string            `json:"session"`
	Ended       bool              `json:"ended"`
	Modules     []ir.ModuleEvent  `json:"modules"`
	Attempts    []ir.Attempt      `json:"attempts"`
	Diagnostics []DiagnosticView  `json:"diagnostics"`
	Summary     ir.SessionSummary `json:"summary"`
}

// SessionEntry is one row of --list output.
type SessionEntry struct {
	ID            string `json:"id"`
	EngineVersion string `json:"engine_version"`
	Ended         bool   `json:"ended"`
	Diagnostics   int    `json:"diagnostics"`
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a journaled session",
		Long: `Read a session back from the SQLite journal written by "patchwork run".

The output includes:
- Modules: every state a module passed through, in logical time
- Attempts: every rule set applied to a module and how it ended
- Diagnostics: every attributed failure

--owner, --module and --code narrow the rows shown. --code applies to
diagnostics only; --owner does not apply to module events.

Without --session the most recent session is shown.

Examples:
  patchwork report --db ./patchwork.db
  patchwork report --db ./patchwork.db --list
  patchwork report --db ./patchwork.db --session 0192... --owner NoTrack`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, cmd)
		},
	}

	cmd.Flags().String("db", "", "path to SQLite journal (default: db from config)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default: latest)")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "only attempts and diagnostics of this owner")
	cmd.Flags().StringVar(&opts.Module, "module", "", "only rows for this module id")
	cmd.Flags().StringVar(&opts.Code, "code", "", "only diagnostics with this code")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list sessions instead")

	return cmd
}

func runReport(opts *ReportOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	path := opts.Config.DB
	if path == "" {
		return f.Fail(ExitCommandError, "E005", "no journal: pass --db or set db in the config")
	}
	// store.Open creates missing files; a report never should.
	if _, err := os.Stat(path); err != nil {
		return f.Fail(ExitCommandError, "E005", fmt.Sprintf("journal not found: %s", path))
	}

	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	if opts.List {
		return listSessions(ctx, f, st)
	}

	var sess store.Session
	if opts.Session != "" {
		sess, err = st.ReadSession(ctx, opts.Session)
	} else {
		sess, err = st.LatestSession(ctx)
	}
	if errors.Is(err, store.ErrSessionNotFound) {
		if opts.Session != "" {
			return f.Fail(ExitCommandError, "E005", fmt.Sprintf("session not found: %s", opts.Session))
		}
		if f.JSON() {
			return f.Success(ReportResult{Modules: []ir.ModuleEvent{}, Attempts: []ir.Attempt{}, Diagnostics: []DiagnosticView{}})
		}
		fmt.Fprintln(f.Writer, "No sessions found.")
		return nil
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	filter := store.Filter{Owner: opts.Owner, Module: ir.ModuleID(opts.Module), Code: diag.Code(opts.Code)}
	result, err := readReport(ctx, st, sess, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	if f.JSON() {
		return f.Success(result)
	}
	printReport(f, result, opts.Verbose)
	return nil
}

// readReport narrows each table by the parts of filter it has columns for.
func readReport(ctx context.Context, st *store.Store, sess store.Session, filter store.Filter) (ReportResult, error) {
	result := ReportResult{Session: sess.ID, Ended: sess.Ended, Summary: sess.Summary}

	var err error
	if result.Modules, err = st.ReadModules(ctx, sess.ID, store.Filter{Module: filter.Module}); err != nil {
		return result, err
	}
	attempts := store.Filter{Owner: filter.Owner, Module: filter.Module}
	if result.Attempts, err = st.ReadAttempts(ctx, sess.ID, attempts); err != nil {
		return result, err
	}
	diags, err := st.ReadDiagnostics(ctx, sess.ID, filter)
	if err != nil {
		return result, err
	}
	result.Diagnostics = newDiagnosticViews(diags)
	return result, nil
}

func listSessions(ctx context.Context, f *OutputFormatter, st *store.Store) error {
	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}

	entries := make([]SessionEntry, len(sessions))
	for i, s := range sessions {
		entries[i] = SessionEntry{ID: s.ID, EngineVersion: s.EngineVersion, Ended: s.Ended, Diagnostics: s.Summary.Diagnostics}
	}
	if f.JSON() {
		return f.Success(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(f.Writer, "No sessions found.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(f.Writer, "%s  %s  %d diagnostic(s)\n", e.ID, endedStatus(e.Ended), e.Diagnostics)
	}
	return nil
}

func printReport(f *OutputFormatter, result ReportResult, verbose bool) {
	w := f.Writer

	fmt.Fprintf(w, "Session: %s\n", result.Session)
	fmt.Fprintf(w, "Status: %s\n", endedStatus(result.Ended))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Modules ===")
	if len(result.Modules) == 0 {
		fmt.Fprintln(w, "  (no modules)")
	}
	for _, ev := range result.Modules {
		fmt.Fprintf(w, "  [%d] %s -> %s\n", ev.Seq, ev.ModuleID, ev.State)
		if ev.Error != "" {
			fmt.Fprintf(w, "       %s\n", failMark.Sprint(ev.Error))
		}
		if verbose {
			fmt.Fprintf(w, "       raw: %s\n", shortID(ev.RawDigest))
			if ev.PatchedDigest != "" {
				fmt.Fprintf(w, "       patched: %s\n", shortID(ev.PatchedDigest))
			}
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Attempts ===")
	if len(result.Attempts) == 0 {
		fmt.Fprintln(w, "  (no attempts)")
	}
	for _, a := range result.Attempts {
		outcome := string(a.Outcome)
		switch a.Outcome {
		case ir.OutcomeApplied:
			outcome = okMark.Sprint(outcome)
		case ir.OutcomeAborted, ir.OutcomeFailed:
			outcome = failMark.Sprint(outcome)
		}
		fmt.Fprintf(w, "  [%d] %s on %s: %s", a.Seq, a.Owner, a.ModuleID, outcome)
		if a.Reason != "" {
			fmt.Fprintf(w, " (%s)", a.Reason)
		}
		fmt.Fprintln(w)
		if verbose {
			fmt.Fprintf(w, "       rule set: %s\n", shortID(a.RuleSetID))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Diagnostics ===")
	printDiagnostics(w, result.Diagnostics)
	fmt.Fprintln(w)

	if result.Ended {
		fmt.Fprintln(w, "=== Summary ===")
		printSummary(w, result.Summary)
	}
}

func endedStatus(ended bool) string {
	if ended {
		return "Ended"
	}
	return "Incomplete (no teardown recorded)"
}
