package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/rxmodel/internal/engine"
	"github.com/roach88/rxmodel/internal/funcs"
	"github.com/roach88/rxmodel/internal/ir"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Sets      []string
	MaxPasses int

	// Library overrides the function library (for testing).
	// If nil, defaults to funcs.Default().
	Library *funcs.Library
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	RunID  string        `json:"run_id"`
	Models []ModelValues `json:"models"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <models-path>...",
		Short: "Instantiate models, apply writes and print settled values",
		Long: `Instantiate every model declared in the given CUE files or directories,
apply the --set writes, run digests until nothing is pending and print the
final property values.

Values given to --set are decoded as YAML, so numbers, booleans and lists
keep their type.

Examples:
  rxmodel run ./models
  rxmodel run ./models --set pricing.qty=5 --set pricing.price=2.5
  rxmodel run ./models/pricing.cue --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModels(opts, args, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Sets, "set", nil, "write model.prop=value before settling (repeatable)")
	cmd.Flags().IntVar(&opts.MaxPasses, "max-passes", 0, "bound on consecutive self-scheduled digests (0 = engine default)")

	return cmd
}

func runModels(opts *RunOptions, paths []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	lib := opts.Library
	if lib == nil {
		lib = funcs.Default()
	}
	specs, err := prepareModels(f, paths, lib)
	if err != nil {
		return err
	}
	sets, err := parseAssignments(f, opts.Sets)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	s, err := newSession(specs, lib, sessionConfig{
		maxPasses: opts.MaxPasses,
		logger:    newLogger(f.GetErrWriter(), opts.Verbose),
	})
	if err != nil {
		return f.Fail(ExitCommandError, runtimeCode(err), err.Error())
	}
	if err := s.apply(sets); err != nil {
		return f.Fail(ExitFailure, runtimeCode(err), err.Error())
	}
	if err := s.settle(ctx); err != nil {
		return f.Fail(ExitFailure, runtimeCode(err), err.Error())
	}

	result := RunResult{RunID: s.engine.RunID(), Models: s.values()}
	if f.JSON() {
		return f.Success(result)
	}
	printValues(f.Writer, result.Models)
	return nil
}

// printValues writes each model's properties as canonical JSON, one per
// line, sorted by name. Unassigned properties come last.
func printValues(w io.Writer, models []ModelValues) {
	for _, mv := range models {
		fmt.Fprintf(w, "%s (model %d)\n", mv.Name, mv.ID)
		for _, name := range ir.SortedKeys(mv.Values) {
			fmt.Fprintf(w, "  %s = %s\n", name, renderValue(mv.Values[name]))
		}
		for _, name := range mv.Unset {
			fmt.Fprintf(w, "  %s = %s\n", name, ir.Undefined)
		}
	}
}

func renderValue(v any) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// runtimeCode returns the engine's error code for err, or E001.
func runtimeCode(err error) string {
	if code := engine.ErrorCode(err); code != "" {
		return string(code)
	}
	if engine.IsPassLimitError(err) {
		return string(engine.ErrCodePassLimit)
	}
	return "E001"
}

// signalContext returns the command context cancelled on SIGINT/SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
