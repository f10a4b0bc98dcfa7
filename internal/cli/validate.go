package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rxmodel/internal/compiler"
	"github.com/roach88/rxmodel/internal/funcs"
	"github.com/roach88/rxmodel/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Models   int                        `json:"models"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <models-path>...",
		Short: "Validate models without running them",
		Long: `Compile CUE models and check them without instantiating anything.

Reports schema errors (duplicate or malformed names, unknown function
names, an output listed among its own inputs) and dependency cycles that
the engine would reject when the model is instantiated.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	res, err := loadModels(f, paths)
	if err != nil {
		return err
	}

	result := validateModels(res.Models, funcs.Default())
	for _, spec := range res.Models {
		f.VerboseLog("Validated model: %s (%d properties, %d bindings)",
			spec.Name, len(spec.Properties), len(spec.Bindings))
	}

	if !result.Valid {
		return outputValidationErrors(f, result)
	}
	return outputValidateSuccess(f, result)
}

// validateModels runs schema validation and static cycle analysis. Cycles
// make the set invalid.
func validateModels(specs []*ir.ModelSpec, lib compiler.FuncSet) ValidationResult {
	result := ValidationResult{
		Models:   len(specs),
		Errors:   compiler.Validate(specs, lib),
		Warnings: compiler.AnalyzeCycles(specs),
	}
	result.Valid = len(result.Errors) == 0 && len(result.Warnings) == 0
	return result
}

func outputValidateSuccess(f *OutputFormatter, result ValidationResult) error {
	if f.JSON() {
		return f.Success(result)
	}
	fmt.Fprintf(f.Writer, "✓ All %d model(s) valid\n", result.Models)
	return nil
}

func outputValidationErrors(f *OutputFormatter, result ValidationResult) error {
	n := len(result.Errors) + len(result.Warnings)

	if f.JSON() {
		first := &CLIError{}
		if len(result.Errors) > 0 {
			first.Code, first.Message = result.Errors[0].Code, result.Errors[0].Message
		} else {
			first.Code, first.Message = compiler.ErrDependencyCycle, result.Warnings[0].Message
		}
		if err := f.encode(CLIResponse{Status: "error", Data: result, Error: first}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", n))
	}

	fmt.Fprintln(f.Writer, "✗ Validation failed")
	fmt.Fprintln(f.Writer)
	for _, err := range result.Errors {
		if err.Line > 0 {
			fmt.Fprintf(f.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(f.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(f.Writer, "  %s: %s\n\n", compiler.ErrDependencyCycle, w.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", n))
}
