package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/rxmodel/internal/compiler"
	"github.com/roach88/rxmodel/internal/funcs"
	"github.com/roach88/rxmodel/internal/ir"
	"github.com/roach88/rxmodel/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Sets     []string
	Runs     int
	Database string // optional - recorded trace to compare against
	RunID    string

	Library *funcs.Library
}

// ReplayRunResult holds the outcome of one re-execution.
type ReplayRunResult struct {
	Run           int    `json:"run"`
	Records       int    `json:"records"`
	Deterministic bool   `json:"deterministic"`
	Diff          string `json:"diff,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Reference        string            `json:"reference"` // "run 1" or "db:<run id>"
	Records          int               `json:"records"`
	Runs             []ReplayRunResult `json:"runs"`
	AllDeterministic bool              `json:"all_deterministic"`
}

// replayRunID is stamped on every re-execution so their records compare
// equal.
const replayRunID = "replay"

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <models-path>...",
		Short: "Re-run models and verify the trace is deterministic",
		Long: `Run the same models with the same writes several times, each into a
fresh in-memory trace, and verify every run records the same evaluations
in the same order with the same values.

With --db and --run the recorded run is the reference instead, which
checks that a trace captured earlier is reproduced exactly.

Exit codes:
  0 - All runs are deterministic
  1 - Determinism verification failed (differences detected)
  2 - Command error (bad paths, database not found, etc.)

Examples:
  rxmodel replay ./models --set pricing.qty=5
  rxmodel replay ./models --runs 5 --format json
  rxmodel replay ./models --db ./trace.db --run nightly`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Sets, "set", nil, "write model.prop=value before settling (repeatable)")
	cmd.Flags().IntVar(&opts.Runs, "runs", 2, "number of executions to compare")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite trace database holding the reference run")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "reference run id in --db")

	return cmd
}

func runReplay(opts *ReplayOptions, paths []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := context.Background()

	if opts.Runs < 1 {
		return f.Fail(ExitCommandError, ErrCodeBadFlag, "--runs must be at least 1")
	}
	if (opts.Database == "") != (opts.RunID == "") {
		return f.Fail(ExitCommandError, ErrCodeBadFlag, "--db and --run must be given together")
	}

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

	result := ReplayResult{Runs: []ReplayRunResult{}, AllDeterministic: true}
	var reference []string

	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		events, err := st.Timeline(ctx, opts.RunID)
		st.Close()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read trace", err)
		}
		if len(events) == 0 {
			return f.Fail(ExitCommandError, compiler.ErrCodeNotFound, fmt.Sprintf("no records found for run: %s", opts.RunID))
		}
		reference = canonicalEvents(events)
		result.Reference = "db:" + opts.RunID
	}

	for i := 1; i <= opts.Runs; i++ {
		records, err := executeForReplay(ctx, specs, lib, sets, newLogger(f.GetErrWriter(), opts.Verbose))
		if err != nil {
			return f.Fail(ExitCommandError, runtimeCode(err), err.Error())
		}
		f.VerboseLog("run %d: %d records", i, len(records))

		if reference == nil {
			reference = records
			result.Reference = "run 1"
			continue
		}

		run := ReplayRunResult{Run: i, Records: len(records), Deterministic: true}
		if diff := firstDifference(reference, records); diff != "" {
			run.Deterministic = false
			run.Diff = diff
			result.AllDeterministic = false
		}
		result.Runs = append(result.Runs, run)
	}
	result.Records = len(reference)

	if f.JSON() {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		outputReplayText(f, result)
	}

	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// executeForReplay runs the models once into a private in-memory trace and
// returns its records in canonical form.
func executeForReplay(ctx context.Context, specs []*ir.ModelSpec, lib *funcs.Library, sets []Assignment, logger *slog.Logger) ([]string, error) {
	st, err := store.OpenMemory()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	s, err := newSession(specs, lib, sessionConfig{recorder: st, runID: replayRunID, logger: logger})
	if err != nil {
		return nil, err
	}
	if err := s.apply(sets); err != nil {
		return nil, err
	}
	// A failing digest is recorded and compared like any other record.
	_ = s.settle(ctx)

	events, err := st.Timeline(ctx, s.engine.RunID())
	if err != nil {
		return nil, err
	}
	return canonicalEvents(events), nil
}

// canonicalEvents renders records without run id or store position, the
// two fields that legitimately differ between runs.
func canonicalEvents(events []store.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		var m map[string]any
		if ev.Type == store.EventDigest {
			d := ev.Digest
			m = map[string]any{
				"type": ev.Type.String(), "seq": d.Seq, "trigger": string(d.Trigger),
				"dirty": d.Dirty, "evaluated": d.Evaluated, "error": d.Error,
			}
		} else {
			e := ev.Evaluation
			m = map[string]any{
				"type": ev.Type.String(), "seq": e.DigestSeq, "ordinal": e.Ordinal,
				"node": e.Node, "model_id": e.ModelID, "output": e.Output,
				"mode": string(e.Mode), "value": e.Value,
			}
		}
		out[i] = string(ir.MustMarshalCanonical(m))
	}
	return out
}

func firstDifference(want, got []string) string {
	for i := 0; i < len(want) && i < len(got); i++ {
		if want[i] != got[i] {
			return fmt.Sprintf("record %d: got %s, want %s", i+1, got[i], want[i])
		}
	}
	if len(want) != len(got) {
		return fmt.Sprintf("got %d records, want %d", len(got), len(want))
	}
	return ""
}

func outputReplayText(f *OutputFormatter, result ReplayResult) {
	w := f.Writer
	fmt.Fprintf(w, "Reference: %s (%d records)\n", result.Reference, result.Records)
	for _, run := range result.Runs {
		if run.Deterministic {
			fmt.Fprintf(w, "  ✓ run %d: %d records match\n", run.Run, run.Records)
			continue
		}
		fmt.Fprintf(w, "  ✗ run %d: %s\n", run.Run, run.Diff)
	}
	fmt.Fprintln(w)
	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ Deterministic")
	} else {
		fmt.Fprintln(w, "✗ Non-deterministic")
	}
}
