package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/roach88/patchwork/internal/config"
)

// RootOptions holds global flags for all commands, and the configuration
// and logger resolved from them before any command runs.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the patchwork CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{}, &RunOptions{})
}

// newRootCommand wires the command tree around opts. run carries the run
// command's test overrides; its RootOptions is set here.
func newRootCommand(opts *RootOptions, run *RunOptions) *cobra.Command {
	run.RootOptions = opts

	cmd := &cobra.Command{
		Use:   "patchwork",
		Short: "patchwork - rewrite modules before they run",
		Long: `Patch module source text before the loader executes it, and hand
collaborators the exports of modules they are waiting for.

Rule packs are written in CUE; bundles are recorded module streams in YAML.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default: ./patchwork.yaml if present)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(newRunCommand(run))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))

	return cmd
}

// setup validates global flags, loads configuration and installs the logger.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	if !slices.Contains(ValidFormats, o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}

	cfg, used, err := config.Load(config.LoadOptions{
		ConfigFile:  o.ConfigFile,
		SearchPaths: []string{"."},
		Flags:       cmd.Flags(),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	o.Config = cfg
	o.Logger = newLogger(o.Format, cfg.LogLevel, o.Verbose, cmd.ErrOrStderr())
	if used != "" {
		o.Logger.Debug("config loaded", "file", used)
	}
	return nil
}

// newLogger builds the process logger. Text output goes through
// charmbracelet/log; JSON output stays machine-readable. Verbose forces
// debug level.
func newLogger(format, level string, verbose bool, w io.Writer) *slog.Logger {
	lvl := parseLevel(level)
	if verbose {
		lvl = slog.LevelDebug
	}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	}
	return slog.New(log.NewWithOptions(w, log.Options{
		Prefix: config.AppName,
		Level:  log.Level(lvl),
	}))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
