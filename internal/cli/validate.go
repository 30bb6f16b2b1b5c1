package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/patchwork/internal/compiler"
	"github.com/roach88/patchwork/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                           `json:"valid"`
	Plugins  int                            `json:"plugins"`
	Errors   []compiler.ValidationError     `json:"errors,omitempty"`
	Warnings []compiler.InterferenceWarning `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [rules-dir]",
		Short: "Validate a rule pack without running it",
		Long: `Validate the CUE plugins of a rule pack.

Checks syntax, required fields and pattern compilation, then reports
ordering interference between plugins as warnings. Warnings do not fail
validation. The directory defaults to rules_dir from the config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, rulesDirArg(rootOpts, args), cmd)
		},
	}
	return cmd
}

// rulesDirArg returns the rule pack directory argument, or the configured
// default when none was given.
func rulesDirArg(opts *RootOptions, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return opts.Config.RulesDir
}

func runValidate(opts *RootOptions, rulesDir string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	res, loadErrs := compiler.LoadDir(rulesDir, compiler.LoadModeCollectAll)
	if res == nil {
		code, msg := loadErrorParts(loadErrs[0])
		return f.Fail(ExitCommandError, code, msg)
	}
	f.VerboseLog("Found %d CUE file(s) in %s", res.FileCount, rulesDir)

	verrs := loadValidationErrors(loadErrs)
	verrs = append(verrs, compiler.Validate(res.Plugins)...)
	for _, p := range res.Plugins {
		f.VerboseLog("Validated plugin: %s (%d patch(es), %d lazy)", p.Name, len(p.Patches), len(p.Lazy))
	}

	result := ValidationResult{
		Valid:   len(verrs) == 0,
		Plugins: len(res.Plugins),
		Errors:  verrs,
	}
	if result.Valid {
		result.Warnings = compiler.AnalyzeInterference(res.Plugins)
	}

	if f.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
			resp.Error = &CLIError{Code: verrs[0].Code, Message: verrs[0].Message}
		}
		if err := f.Encode(resp); err != nil {
			return err
		}
	} else {
		printValidation(f, result)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(verrs)))
	}
	return nil
}

func printValidation(f *OutputFormatter, result ValidationResult) {
	if !result.Valid {
		f.fail("Validation failed")
		fmt.Fprintln(f.Writer)
		for _, e := range result.Errors {
			if e.Line > 0 {
				fmt.Fprintf(f.Writer, "line %d\n", e.Line)
			}
			fmt.Fprintf(f.Writer, "  %s: %s: %s\n\n", e.Code, e.Field, e.Message)
		}
		return
	}

	f.ok("%d plugin(s) valid", result.Plugins)
	for _, w := range result.Warnings {
		f.warn("%s: %s", w.Kind, w.Message)
	}
}

// loadValidationErrors turns per-plugin compile failures into validation
// errors so they print alongside schema errors.
func loadValidationErrors(errs []error) []compiler.ValidationError {
	out := make([]compiler.ValidationError, 0, len(errs))
	for _, err := range errs {
		code, msg := loadErrorParts(err)
		ve := compiler.ValidationError{Field: "load", Code: code, Message: msg}
		var le *compiler.LoadError
		if errors.As(err, &le) && le.Pos.IsValid() {
			ve.Line = le.Pos.Line()
		}
		out = append(out, ve)
	}
	return out
}

// loadErrorParts extracts the error code and message of a load error.
func loadErrorParts(err error) (string, string) {
	var le *compiler.LoadError
	if errors.As(err, &le) {
		return le.Code, le.Message
	}
	return compiler.ErrCodeGeneric, err.Error()
}

// loadPack loads a rule pack and fails on any load or validation error.
// Used by commands that go on to run the plugins.
func loadPack(dir string) ([]ir.PluginSpec, error) {
	res, errs := compiler.LoadDir(dir, compiler.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	if verrs := compiler.Validate(res.Plugins); len(verrs) > 0 {
		return nil, verrs[0]
	}
	return res.Plugins, nil
}
