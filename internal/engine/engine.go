package engine

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/rxmodel/internal/graph"
)

// State is the digest scheduler state.
type State int

const (
	// StateIdle means no digest is pending.
	StateIdle State = iota
	// StateScheduled means one deferred digest is armed.
	StateScheduled
	// StateRunning means a digest pass is executing.
	StateRunning
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Engine owns one dependency graph and every model created from it.
//
// Thread-safety model:
//   - All engine state is guarded by one mutex.
//   - Callbacks, Done completions and listeners run with the mutex released,
//     so they may read, write, declare, destroy or trigger further work.
//   - At most one digest pass runs at a time.
type Engine struct {
	mu sync.Mutex

	graph    *graph.Graph
	logger   *slog.Logger
	deferrer Deferrer
	recorder Recorder
	runIDs   RunIDGenerator
	onError  func(error)

	runID    string
	modelIDs *Clock
	digests  *Clock

	models map[int64]*Model
	props  map[string]*Property // property node -> property
	funcs  map[string]*function // function node -> function
	dirty  map[string]struct{}  // property nodes written since the last pass
	fresh  map[string]struct{}  // function nodes declared since the last pass

	state    State
	gen      uint64 // invalidates stale deferred tasks
	followUp bool   // arm requested while running
	budget   *passBudget
	nextLID  uint64
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithDeferrer sets how scheduled digests are deferred.
// Default: AfterFunc{} (a timer goroutine per scheduled digest).
func WithDeferrer(d Deferrer) EngineOption {
	return func(e *Engine) {
		if d != nil {
			e.deferrer = d
		}
	}
}

// WithRecorder sets the digest trace recorder. Default: discard.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithRunIDGenerator sets the generator for the engine's run id.
// Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) EngineOption {
	return func(e *Engine) {
		if g != nil {
			e.runIDs = g
		}
	}
}

// WithErrorHandler receives errors from scheduled digests, which have no
// caller to return to. They are also logged at warn level.
func WithErrorHandler(fn func(error)) EngineOption {
	return func(e *Engine) {
		e.onError = fn
	}
}

// WithMaxPasses bounds consecutive scheduled digests re-armed by their own
// pass. Default: 1000 (DefaultMaxPasses). Zero disables the bound.
func WithMaxPasses(n int) EngineOption {
	return func(e *Engine) {
		e.budget = newPassBudget(n)
	}
}

// New creates an engine with an empty dependency graph.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		graph:    graph.New(),
		logger:   slog.Default(),
		deferrer: AfterFunc{},
		recorder: nopRecorder{},
		runIDs:   UUIDv7Generator{},
		modelIDs: NewClock(),
		digests:  NewClock(),
		models:   make(map[int64]*Model),
		props:    make(map[string]*Property),
		funcs:    make(map[string]*function),
		dirty:    make(map[string]struct{}),
		fresh:    make(map[string]struct{}),
		budget:   newPassBudget(DefaultMaxPasses),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.runID = e.runIDs.Generate()
	return e
}

// NewModel creates a model registered with this engine. Its id is unique
// within the engine and never reused.
func (e *Engine) NewModel() *Model {
	e.mu.Lock()
	defer e.mu.Unlock()

	m := &Model{
		engine: e,
		id:     e.modelIDs.Next(),
		props:  make(map[string]*Property),
		nodes:  make(map[string]struct{}),
	}
	e.models[m.id] = m
	e.logger.Debug("model created", "model_id", m.id)
	return m
}

// Model returns a live model by id.
func (e *Engine) Model(id int64) (*Model, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.models[id]
	return m, ok
}

// Models returns the live models ordered by id.
func (e *Engine) Models() []*Model {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sortedModelsLocked()
}

func (e *Engine) sortedModelsLocked() []*Model {
	out := make([]*Model, 0, len(e.models))
	for _, m := range e.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// State returns the current scheduler state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// RunID returns the id stamped on this engine's trace records.
func (e *Engine) RunID() string {
	return e.runID
}

// Graph returns the engine's dependency graph. Callers must treat it as
// read-only; mutate it only through models.
func (e *Engine) Graph() *graph.Graph {
	return e.graph
}

// Pending reports whether any property writes or new functions are waiting
// for a digest.
func (e *Engine) Pending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.dirty) > 0 || len(e.fresh) > 0
}
