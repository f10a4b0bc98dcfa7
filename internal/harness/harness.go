package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"strings"

	"github.com/roach88/rxmodel/internal/compiler"
	"github.com/roach88/rxmodel/internal/engine"
	"github.com/roach88/rxmodel/internal/funcs"
	"github.com/roach88/rxmodel/internal/ir"
	"github.com/roach88/rxmodel/internal/store"
	"github.com/roach88/rxmodel/internal/testutil"
)

// DefaultRunID stamps scenarios that do not set run_id.
const DefaultRunID = "test-run"

// ErrCodeUnknownModel is reported by steps that name a model the scenario
// did not declare.
const ErrCodeUnknownModel = "UNKNOWN_MODEL"

// StepError is a scenario step failure detected by the harness itself.
type StepError struct {
	Code    string
	Message string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Harness is the scenario execution state.
// Each run owns a fresh engine, a task loop and an in-memory trace store.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	loop   *engine.Loop
	logger *slog.Logger

	models     map[string]*engine.Model
	order      []string          // model names in declaration order
	modelNames map[int64]string  // model id -> name
	labels     map[string]string // function node id -> binding label

	asyncErrs []error // failures of scheduled digests, collected during flush
	result    *Result
}

// Run executes a test scenario with the default function library.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario, nil)
}

// RunContext executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// A fixed run id and an explicit task loop make the trace reproducible.
//
// Execution flow:
// 1. Load and validate the scenario's models
// 2. Create the store, task loop and engine, and instantiate models
// 3. Execute steps; expect mismatches are recorded, not returned
// 4. Snapshot final state, read the trace and evaluate assertions
//
// A returned error means the scenario could not be set up. Step and
// assertion failures are reported in Result.Errors.
func RunContext(ctx context.Context, scenario *Scenario, lib *funcs.Library) (*Result, error) {
	return run(ctx, scenario, lib, nil)
}

// run executes a scenario. setup, if set, runs after the models are
// instantiated and before the first step.
func run(ctx context.Context, scenario *Scenario, lib *funcs.Library, setup func(*Harness)) (*Result, error) {
	if lib == nil {
		lib = funcs.Default()
	}

	specs, err := loadModels(scenario)
	if err != nil {
		return nil, err
	}
	if verrs := compiler.Validate(specs, lib); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, ve := range verrs {
			msgs[i] = ve.Error()
		}
		return nil, fmt.Errorf("invalid models: %s", strings.Join(msgs, "; "))
	}

	st, err := store.OpenMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	runID := scenario.RunID
	if runID == "" {
		runID = DefaultRunID
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	h := &Harness{
		store:      st,
		loop:       engine.NewLoop(engine.WithLoopLogger(logger)),
		logger:     logger,
		models:     make(map[string]*engine.Model),
		modelNames: make(map[int64]string),
		labels:     make(map[string]string),
		result:     NewResult(),
	}

	opts := []engine.EngineOption{
		engine.WithDeferrer(h.loop),
		engine.WithRecorder(st),
		engine.WithRunIDGenerator(testutil.NewFixedRunID(runID)),
		engine.WithLogger(h.logger),
		engine.WithErrorHandler(func(err error) {
			h.asyncErrs = append(h.asyncErrs, err)
		}),
	}
	if scenario.MaxPasses > 0 {
		opts = append(opts, engine.WithMaxPasses(scenario.MaxPasses))
	}
	h.engine = engine.New(opts...)

	instances, err := funcs.InstantiateAll(h.engine, specs, lib)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate models: %w", err)
	}
	for _, inst := range instances {
		h.models[inst.Spec.Name] = inst.Model
		h.order = append(h.order, inst.Spec.Name)
		h.modelNames[inst.Model.ID()] = inst.Spec.Name
		for _, rec := range inst.Model.Functions() {
			label, _, _ := strings.Cut(rec.Name, ":")
			h.labels[rec.ID] = label
		}
	}

	if setup != nil {
		setup(h)
	}

	for i, step := range scenario.Steps {
		h.executeStep(ctx, i, step)
	}

	h.snapshotState()

	trace, err := h.readTrace(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	h.result.Trace = trace

	for _, errMsg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(errMsg)
	}

	return h.result, nil
}

func loadModels(scenario *Scenario) ([]*ir.ModelSpec, error) {
	specs := []*ir.ModelSpec{}
	if len(scenario.Specs) > 0 {
		res, err := compiler.LoadPaths(scenario.Specs)
		if err != nil {
			return nil, fmt.Errorf("failed to load specs: %w", err)
		}
		specs = append(specs, res.Models...)
	}
	if strings.TrimSpace(scenario.Source) != "" {
		res, err := compiler.LoadSource(scenario.Name+".cue", scenario.Source)
		if err != nil {
			return nil, fmt.Errorf("failed to compile source: %w", err)
		}
		specs = append(specs, res.Models...)
	}
	return specs, nil
}

// executeStep runs one step and records any mismatch on the result.
func (h *Harness) executeStep(ctx context.Context, i int, step Step) {
	action := step.Action()
	var err error

	switch action {
	case "set":
		err = h.set(step.Set)
	case "digest":
		err = h.engine.Digest(ctx)
	case "flush":
		err = h.flush()
	case "configure":
		err = h.configure(step.Configure)
	case "destroy":
		err = h.destroy(step.Destroy)
	case "listen":
		err = h.listen(step.Listen)
	case "expect":
		h.expect(i, step.Expect)
	}

	h.checkError(i, action, step.ExpectError, err)

	h.logger.Info("step completed",
		"step", i,
		"action", action,
		"failed", err != nil,
	)
}

func (h *Harness) checkError(i int, action, want string, err error) {
	switch {
	case want == "" && err != nil:
		h.result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", i, action, err))
	case want != "" && err == nil:
		h.result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got none", i, action, want))
	case want != "" && ErrorCode(err) != want:
		h.result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got %s (%v)", i, action, want, ErrorCode(err), err))
	}
}

func (h *Harness) model(name string) (*engine.Model, error) {
	m, ok := h.models[name]
	if !ok {
		return nil, &StepError{Code: ErrCodeUnknownModel, Message: fmt.Sprintf("model %q is not declared", name)}
	}
	return m, nil
}

// set writes each reference in sorted order and stops at the first error.
func (h *Harness) set(values map[string]any) error {
	for _, ref := range ir.SortedKeys(values) {
		modelName, prop, err := splitRef(ref)
		if err != nil {
			return err
		}
		m, err := h.model(modelName)
		if err != nil {
			return err
		}
		if err := m.Write(prop, values[ref]); err != nil {
			return err
		}
	}
	return nil
}

// flush drains the task loop and reports failures of the scheduled
// digests it ran.
func (h *Harness) flush() error {
	h.asyncErrs = nil
	n := h.loop.Drain()
	h.logger.Debug("flushed task loop", "tasks", n)
	return errors.Join(h.asyncErrs...)
}

func (h *Harness) configure(cfgs map[string]map[string]any) error {
	for _, name := range ir.SortedKeys(cfgs) {
		m, err := h.model(name)
		if err != nil {
			return err
		}
		cfg := cfgs[name]
		if cfg == nil {
			cfg = map[string]any{}
		}
		if err := m.SetConfiguration(cfg); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) destroy(name string) error {
	m, err := h.model(name)
	if err != nil {
		return err
	}
	m.Destroy()
	return nil
}

func (h *Harness) listen(name string) error {
	m, err := h.model(name)
	if err != nil {
		return err
	}
	if _, ok := h.result.Notifications[name]; !ok {
		h.result.Notifications[name] = []map[string]any{}
	}
	handle := m.On(func(delta map[string]any) {
		h.result.Notifications[name] = append(h.result.Notifications[name], normalize(delta))
	})
	if !handle.Valid() {
		return m.Err()
	}
	return nil
}

func (h *Harness) expect(i int, want map[string]any) {
	for _, ref := range ir.SortedKeys(want) {
		modelName, prop, _ := splitRef(ref)
		m, ok := h.models[modelName]
		if !ok {
			h.result.AddError(fmt.Sprintf("steps[%d] expect: model %q is not declared", i, modelName))
			continue
		}
		got := m.Get(prop)
		if !ir.Equal(got, want[ref]) {
			h.result.AddError(fmt.Sprintf("steps[%d] expect: %s = %v (%T), want %v (%T)",
				i, ref, got, got, want[ref], want[ref]))
		}
	}
}

// snapshotState records the assigned values of every live model.
func (h *Harness) snapshotState() {
	for _, name := range h.order {
		m := h.models[name]
		if m.Destroyed() {
			continue
		}
		props := make(map[string]any)
		for _, prop := range m.PropertyNames() {
			if v := m.Get(prop); !ir.IsUndefined(v) {
				props[prop] = v
			}
		}
		h.result.State[name] = props
	}
}

// readTrace converts the store timeline into trace events with names
// resolved.
func (h *Harness) readTrace(ctx context.Context, runID string) ([]TraceEvent, error) {
	events, err := h.store.Timeline(ctx, runID)
	if err != nil {
		return nil, err
	}

	trace := make([]TraceEvent, 0, len(events))
	for _, ev := range events {
		switch ev.Type {
		case store.EventDigest:
			d := ev.Digest
			trace = append(trace, TraceEvent{
				Type:      TraceDigest,
				Seq:       d.Seq,
				Trigger:   string(d.Trigger),
				Dirty:     d.Dirty,
				Evaluated: d.Evaluated,
				Error:     d.Error,
			})
		default:
			e := ev.Evaluation
			te := TraceEvent{
				Type:    TraceEvaluation,
				Seq:     e.DigestSeq,
				Ordinal: e.Ordinal,
				Model:   h.modelNames[e.ModelID],
				Func:    h.labels[e.Node],
				Output:  e.Output,
				Mode:    string(e.Mode),
				Value:   e.Value,
			}
			if e.Completion {
				te.Type = TraceCompletion
			}
			trace = append(trace, te)
		}
	}
	return trace, nil
}

// ErrorCode returns the code a scenario's expect_error is matched against:
// the engine's runtime error code, or the harness step error code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if code := engine.ErrorCode(err); code != "" {
		return string(code)
	}
	if engine.IsPassLimitError(err) {
		return string(engine.ErrCodePassLimit)
	}
	var se *StepError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// normalize copies a delta with undefined values rendered as nil.
func normalize(delta map[string]any) map[string]any {
	out := maps.Clone(delta)
	for k, v := range out {
		if ir.IsUndefined(v) {
			out[k] = nil
		}
	}
	return out
}
