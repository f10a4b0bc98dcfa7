package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/rxmodel/internal/funcs"
	"github.com/roach88/rxmodel/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	RunID     string // with no models: the recorded run to show; otherwise the id to record under
	List      bool
	Output    string // optional - filter evaluations to one output property
	Sets      []string
	MaxPasses int

	Library *funcs.Library
}

// TraceEvent represents a single event in the trace timeline.
type TraceEvent struct {
	Position  int64  `json:"position"`
	Seq       int64  `json:"seq"`
	Type      string `json:"type"` // "evaluation", "completion" or "digest"
	Ordinal   int    `json:"ordinal,omitempty"`
	Model     string `json:"model,omitempty"`
	ModelID   int64  `json:"model_id,omitempty"`
	Func      string `json:"fn,omitempty"`
	Node      string `json:"node,omitempty"`
	Output    string `json:"output,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Value     string `json:"value,omitempty"`
	Trigger   string `json:"trigger,omitempty"`
	Dirty     int    `json:"dirty,omitempty"`
	Evaluated int    `json:"evaluated,omitempty"`
	Error     string `json:"error,omitempty"`
}

// TraceStats holds summary statistics for one run.
type TraceStats struct {
	Digests     int   `json:"digests"`
	Failed      int   `json:"failed"`
	Evaluations int   `json:"evaluations"`
	Completions int   `json:"completions"`
	LastSeq     int64 `json:"last_seq"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	RunID    string        `json:"run_id"`
	Timeline []TraceEvent  `json:"timeline"`
	Stats    TraceStats    `json:"stats"`
	Models   []ModelValues `json:"models,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [models-path]...",
		Short: "Show the digest trace of a run",
		Long: `Show the recorded digest trace: every reactive function evaluation in
pass order, asynchronous completions where they were applied, and one
summary record per digest pass.

With model paths, the models are run exactly like "rxmodel run" while the
trace is recorded, in memory unless --db names a SQLite file. Without model
paths, --db and --run show a run recorded earlier, and --list shows the
runs a database holds.

Examples:
  rxmodel trace ./models --set pricing.qty=5
  rxmodel trace ./models --db ./trace.db --run-id nightly
  rxmodel trace --db ./trace.db --run nightly --output total
  rxmodel trace --db ./trace.db --list`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (default: in memory)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to show, or to record under when models are given")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list the runs recorded in --db")
	cmd.Flags().StringVar(&opts.Output, "output", "", "only show evaluations writing this property")
	cmd.Flags().StringArrayVar(&opts.Sets, "set", nil, "write model.prop=value before settling (repeatable)")
	cmd.Flags().IntVar(&opts.MaxPasses, "max-passes", 0, "bound on consecutive self-scheduled digests (0 = engine default)")

	return cmd
}

func runTrace(opts *TraceOptions, paths []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := context.Background()

	if len(paths) == 0 && opts.Database == "" {
		return f.Fail(ExitCommandError, ErrCodeBadFlag, "trace needs model paths or --db")
	}

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = store.Memory
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.List {
		return listRuns(ctx, f, st)
	}
	if len(paths) == 0 {
		if opts.RunID == "" {
			return f.Fail(ExitCommandError, ErrCodeBadFlag, "--run is required when no models are given")
		}
		return showRun(ctx, f, st, opts, opts.RunID, nil)
	}
	return recordRun(ctx, f, st, opts, paths, cmd)
}

// recordRun runs the models with st as the recorder, then shows the run.
func recordRun(ctx context.Context, f *OutputFormatter, st *store.Store, opts *TraceOptions, paths []string, cmd *cobra.Command) error {
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

	sctx, cancel := signalContext(cmd)
	defer cancel()

	s, err := newSession(specs, lib, sessionConfig{
		recorder:  st,
		runID:     opts.RunID,
		maxPasses: opts.MaxPasses,
		logger:    newLogger(f.GetErrWriter(), opts.Verbose),
	})
	if err != nil {
		return f.Fail(ExitCommandError, runtimeCode(err), err.Error())
	}
	// Digest failures are part of the trace, so they are shown rather
	// than aborting the command.
	if err := s.apply(sets); err != nil {
		return f.Fail(ExitFailure, runtimeCode(err), err.Error())
	}
	if err := s.settle(sctx); err != nil {
		f.VerboseLog("digest failed: %v", err)
	}

	return showRun(ctx, f, st, opts, s.engine.RunID(), s)
}

// showRun prints the timeline of runID. With a live session, model and
// function names replace ids.
func showRun(ctx context.Context, f *OutputFormatter, st *store.Store, opts *TraceOptions, runID string, s *session) error {
	events, err := st.Timeline(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}
	sum, err := st.Summarize(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to summarize trace", err)
	}

	var (
		models map[int64]string
		labels map[string]string
	)
	if s != nil {
		models, labels = s.names()
	}

	result := TraceResult{
		RunID:    runID,
		Timeline: buildTimeline(events, models, labels, opts.Output),
		Stats: TraceStats{
			Digests:     sum.Digests,
			Failed:      sum.Failed,
			Evaluations: sum.Evaluations,
			Completions: sum.Completions,
			LastSeq:     sum.LastSeq,
		},
	}
	if s != nil {
		result.Models = s.values()
	}

	if f.JSON() {
		return f.Success(result)
	}
	if len(events) == 0 {
		fmt.Fprintf(f.Writer, "No records found for run: %s\n", runID)
		return nil
	}
	outputTraceText(f.Writer, result, opts.Verbose)
	return nil
}

// buildTimeline converts store events to trace timeline events. When
// output is set, only evaluations and completions writing that property
// are kept; digest records always are.
func buildTimeline(events []store.Event, models map[int64]string, labels map[string]string, output string) []TraceEvent {
	timeline := make([]TraceEvent, 0, len(events))
	for _, ev := range events {
		if ev.Type == store.EventDigest {
			d := ev.Digest
			timeline = append(timeline, TraceEvent{
				Position:  ev.Position,
				Seq:       d.Seq,
				Type:      ev.Type.String(),
				Trigger:   string(d.Trigger),
				Dirty:     d.Dirty,
				Evaluated: d.Evaluated,
				Error:     d.Error,
			})
			continue
		}

		e := ev.Evaluation
		if output != "" && e.Output != output {
			continue
		}
		timeline = append(timeline, TraceEvent{
			Position: ev.Position,
			Seq:      e.DigestSeq,
			Type:     ev.Type.String(),
			Ordinal:  e.Ordinal,
			Model:    models[e.ModelID],
			ModelID:  e.ModelID,
			Func:     labels[e.Node],
			Node:     e.Node,
			Output:   e.Output,
			Mode:     string(e.Mode),
			Value:    e.Value,
		})
	}
	return timeline
}

func listRuns(ctx context.Context, f *OutputFormatter, st *store.Store) error {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	sums := make([]store.RunSummary, 0, len(runs))
	for _, id := range runs {
		sum, err := st.Summarize(ctx, id)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to summarize run", err)
		}
		sums = append(sums, sum)
	}

	if f.JSON() {
		return f.Success(sums)
	}
	if len(sums) == 0 {
		fmt.Fprintln(f.Writer, "No runs recorded.")
		return nil
	}
	for _, sum := range sums {
		fmt.Fprintf(f.Writer, "%s  digests=%d failed=%d evaluations=%d completions=%d\n",
			sum.RunID, sum.Digests, sum.Failed, sum.Evaluations, sum.Completions)
	}
	return nil
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace for run: %s\n", result.RunID)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	for _, event := range result.Timeline {
		formatTimelineEvent(w, event, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Digests:     %d (%d failed)\n", result.Stats.Digests, result.Stats.Failed)
	fmt.Fprintf(w, "  Evaluations: %d\n", result.Stats.Evaluations)
	fmt.Fprintf(w, "  Completions: %d\n", result.Stats.Completions)

	if len(result.Models) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Values ===")
		printValues(w, result.Models)
	}
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	switch event.Type {
	case "digest":
		fmt.Fprintf(w, "  [%d] DIGEST %s dirty=%d evaluated=%d\n",
			event.Seq, event.Trigger, event.Dirty, event.Evaluated)
		if event.Error != "" {
			fmt.Fprintf(w, "       Error: %s\n", event.Error)
		}
		return
	case "completion":
		fmt.Fprintf(w, "  [%d] DONE %s -> %s\n", event.Seq, funcRef(event), valueOrDash(event.Value))
	default:
		fmt.Fprintf(w, "  [%d.%d] EVAL %s (%s) -> %s\n",
			event.Seq, event.Ordinal, funcRef(event), event.Mode, valueOrDash(event.Value))
	}
	if verbose {
		fmt.Fprintf(w, "       Node: %s\n", truncateID(event.Node))
	}
}

// funcRef names the function as model.label when names are known, and by
// model id and output otherwise.
func funcRef(event TraceEvent) string {
	if event.Model != "" && event.Func != "" {
		return event.Model + "." + event.Func
	}
	out := event.Output
	if out == "" {
		out = truncateID(event.Node)
	}
	return fmt.Sprintf("model %d/%s", event.ModelID, out)
}

func valueOrDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
