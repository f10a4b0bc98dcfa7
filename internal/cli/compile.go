package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rxmodel/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled models.
type CompilationResult struct {
	Models []*ir.ModelSpec `json:"models"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	ModelCount    int
	PropertyCount int
	ReactiveCount int
	EffectCount   int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <models-path>...",
		Short: "Compile CUE models to IR",
		Long: `Compile CUE model declarations to the JSON IR the engine instantiates.

Each model lists its properties (with defaults and exposure) and its
reactive functions by library name, in declaration order.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, paths []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	res, err := loadModels(f, paths)
	if err != nil {
		return err
	}
	for _, spec := range res.Models {
		f.VerboseLog("Compiled model: %s", spec.Name)
	}

	result := &CompilationResult{Models: res.Models}
	stats := calculateStats(result)

	if opts.Output != "" {
		if err := writeIRToFile(result, opts.Output); err != nil {
			return f.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputCompileSuccess(f, result, stats, opts.Output)
}

// calculateStats computes summary statistics from a compilation result.
func calculateStats(result *CompilationResult) CompilationStats {
	stats := CompilationStats{ModelCount: len(result.Models)}
	for _, m := range result.Models {
		stats.PropertyCount += len(m.Properties)
		for _, b := range m.Bindings {
			if b.Output == "" {
				stats.EffectCount++
			} else {
				stats.ReactiveCount++
			}
		}
	}
	return stats
}

func outputCompileSuccess(f *OutputFormatter, result *CompilationResult, stats CompilationStats, outputFile string) error {
	if f.JSON() {
		return f.Success(result)
	}

	w := f.Writer
	fmt.Fprintf(w, "✓ Compiled %d model(s): %d properties, %d reactive, %d effects\n\n",
		stats.ModelCount, stats.PropertyCount, stats.ReactiveCount, stats.EffectCount)

	for _, m := range result.Models {
		fmt.Fprintf(w, "%s\n", m.Name)
		for _, p := range m.Properties {
			fmt.Fprintf(w, "  property %s%s\n", p.Name, describeProperty(p))
		}
		for _, b := range m.Bindings {
			if b.Output == "" {
				fmt.Fprintf(w, "  effect   %s = %s(%s)\n", b.Label, b.Func, strings.Join(b.Inputs, ", "))
				continue
			}
			fmt.Fprintf(w, "  reactive %s = %s(%s)\n", b.Output, b.Func, strings.Join(b.Inputs, ", "))
		}
	}

	if outputFile != "" {
		fmt.Fprintf(w, "\nOutput written to: %s\n", outputFile)
	}
	return nil
}

func describeProperty(p ir.PropertySpec) string {
	var b strings.Builder
	if p.HasDefault {
		fmt.Fprintf(&b, " = %s", renderValue(p.Default))
	}
	if p.Expose {
		b.WriteString(" (exposed)")
	}
	return b.String()
}

// writeIRToFile writes the compiled IR to a JSON file.
func writeIRToFile(result *CompilationResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling IR: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
