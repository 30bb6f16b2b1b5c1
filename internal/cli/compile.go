package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/patchwork/internal/compiler"
	"github.com/roach88/patchwork/internal/engine"
	"github.com/roach88/patchwork/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledPlugin is one plugin as the engine would register it.
type CompiledPlugin struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	RuleSets    []ir.RuleSet  `json:"rule_sets"`
	Lazy        []ir.LazySpec `json:"lazy,omitempty"`
}

// CompilationResult holds the compiled rule pack.
type CompilationResult struct {
	IRVersion string           `json:"ir_version"`
	Plugins   []CompiledPlugin `json:"plugins"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [rules-dir]",
		Short: "Compile a CUE rule pack to JSON IR",
		Long: `Compile the CUE plugins of a rule pack to the JSON IR the engine
registers: one rule set per patch, with its content-addressed id, and the
lazy requests of each plugin.

Example:
  patchwork compile ./rules -o rules.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, rulesDirArg(rootOpts, args), cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, rulesDir string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	res, loadErrs := compiler.LoadDir(rulesDir, compiler.LoadModeCollectAll)
	if res == nil {
		code, msg := loadErrorParts(loadErrs[0])
		return f.Fail(ExitCommandError, code, msg)
	}
	f.VerboseLog("Found %d CUE file(s) in %s", res.FileCount, rulesDir)

	verrs := append(loadValidationErrors(loadErrs), compiler.Validate(res.Plugins)...)
	if len(verrs) > 0 {
		return outputCompileErrors(f, verrs)
	}

	result, err := compilePack(res.Plugins)
	if err != nil {
		return f.Fail(ExitCommandError, compiler.ErrCodeGeneric, err.Error())
	}

	if opts.Output != "" {
		if err := writeIR(result, opts.Output); err != nil {
			return f.Fail(ExitCommandError, compiler.ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	if f.JSON() {
		return f.Success(result)
	}
	printCompilation(f, result, opts.Output)
	return nil
}

// compilePack registers every plugin in a scratch engine, in pack order, so
// rule set ids and group expansion match what a session would see.
func compilePack(plugins []ir.PluginSpec) (*CompilationResult, error) {
	e := engine.New(engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	result := &CompilationResult{IRVersion: ir.IRVersion, Plugins: make([]CompiledPlugin, 0, len(plugins))}
	for _, p := range plugins {
		ids, err := e.RegisterPlugin(p)
		if err != nil {
			return nil, err
		}
		cp := CompiledPlugin{Name: p.Name, Description: p.Description, RuleSets: make([]ir.RuleSet, 0, len(ids)), Lazy: p.Lazy}
		for _, id := range ids {
			rs, _ := e.RuleSet(id)
			cp.RuleSets = append(cp.RuleSets, rs)
		}
		result.Plugins = append(result.Plugins, cp)
	}
	return result, nil
}

func printCompilation(f *OutputFormatter, result *CompilationResult, outputFile string) {
	ruleSets := 0
	for _, p := range result.Plugins {
		ruleSets += len(p.RuleSets)
	}
	f.ok("Compiled %d plugin(s), %d rule set(s)", len(result.Plugins), ruleSets)
	fmt.Fprintln(f.Writer)

	for _, p := range result.Plugins {
		fmt.Fprintf(f.Writer, "  %s: %d rule set(s), %d lazy request(s)\n", p.Name, len(p.RuleSets), len(p.Lazy))
		for _, rs := range p.RuleSets {
			fmt.Fprintf(f.Writer, "    %s %q → %d rule(s)\n", dim.Sprint(shortID(rs.ID)), rs.Find, len(rs.Rules))
		}
	}
	fmt.Fprintln(f.Writer)

	if outputFile != "" {
		fmt.Fprintf(f.Writer, "Wrote IR to %s\n", outputFile)
	}
}

func outputCompileErrors(f *OutputFormatter, errs []compiler.ValidationError) error {
	if f.JSON() {
		if err := f.Encode(CLIResponse{
			Status: "error",
			Data:   errs,
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		}); err != nil {
			return err
		}
	} else {
		f.fail("Compilation failed")
		fmt.Fprintln(f.Writer)
		for _, e := range errs {
			if e.Line > 0 {
				fmt.Fprintf(f.Writer, "line %d\n", e.Line)
			}
			fmt.Fprintf(f.Writer, "  %s: %s\n\n", e.Code, e.Message)
		}
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// writeIR writes the compilation result as indented JSON.
func writeIR(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling IR: %w", err)
	}
	return os.WriteFile(filename, append(data, '\n'), 0644)
}

// shortID trims a content hash for display.
func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}
