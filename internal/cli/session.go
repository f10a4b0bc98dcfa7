package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/rxmodel/internal/engine"
	"github.com/roach88/rxmodel/internal/funcs"
	"github.com/roach88/rxmodel/internal/ir"
)

// session is one engine with its models instantiated, driven by a task
// loop in the caller's goroutine.
type session struct {
	engine    *engine.Engine
	loop      *engine.Loop
	instances []funcs.Instance
	errs      []error
}

// newLogger returns the engine logger: text on w, debug level when
// verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

type sessionConfig struct {
	recorder  engine.Recorder
	runID     string
	maxPasses int
	logger    *slog.Logger
}

func newSession(specs []*ir.ModelSpec, lib *funcs.Library, cfg sessionConfig) (*session, error) {
	s := &session{loop: engine.NewLoop(engine.WithLoopLogger(cfg.logger))}

	opts := []engine.EngineOption{
		engine.WithDeferrer(s.loop),
		engine.WithRecorder(cfg.recorder),
		engine.WithLogger(cfg.logger),
		engine.WithErrorHandler(func(err error) { s.errs = append(s.errs, err) }),
	}
	if cfg.runID != "" {
		opts = append(opts, engine.WithRunIDGenerator(engine.NewFixedGenerator(cfg.runID)))
	}
	if cfg.maxPasses > 0 {
		opts = append(opts, engine.WithMaxPasses(cfg.maxPasses))
	}
	s.engine = engine.New(opts...)

	instances, err := funcs.InstantiateAll(s.engine, specs, lib)
	if err != nil {
		return nil, err
	}
	s.instances = instances
	return s, nil
}

// apply writes every assignment. Writes go through the models, so they
// mark properties dirty and arm a scheduled digest.
func (s *session) apply(sets []Assignment) error {
	for _, a := range sets {
		m, ok := s.model(a.Model)
		if !ok {
			return fmt.Errorf("--set %s.%s: model %q is not declared", a.Model, a.Property, a.Model)
		}
		if err := m.Write(a.Property, a.Value); err != nil {
			return fmt.Errorf("--set %s.%s: %w", a.Model, a.Property, err)
		}
	}
	return nil
}

// settle runs deferred work until the model set is quiescent and returns
// the errors scheduled digests reported. Cancelling ctx stops between
// tasks.
func (s *session) settle(ctx context.Context) error {
	_, drainErr := s.loop.DrainContext(ctx)
	err := errors.Join(append(s.errs, drainErr)...)
	s.errs = nil
	return err
}

func (s *session) model(name string) (*engine.Model, bool) {
	for _, inst := range s.instances {
		if inst.Spec.Name == name {
			return inst.Model, true
		}
	}
	return nil, false
}

// ModelValues is the final state of one model.
type ModelValues struct {
	Name   string         `json:"name"`
	ID     int64          `json:"id"`
	Values map[string]any `json:"values"`
	Unset  []string       `json:"unset,omitempty"`
}

// values returns the state of every model in declaration order. Properties
// that were never assigned are listed in Unset.
func (s *session) values() []ModelValues {
	out := make([]ModelValues, 0, len(s.instances))
	for _, inst := range s.instances {
		mv := ModelValues{Name: inst.Spec.Name, ID: inst.Model.ID(), Values: map[string]any{}}
		for _, name := range inst.Model.PropertyNames() {
			v := inst.Model.Get(name)
			if ir.IsUndefined(v) {
				mv.Unset = append(mv.Unset, name)
				continue
			}
			mv.Values[name] = v
		}
		out = append(out, mv)
	}
	return out
}

// names maps model ids and function nodes to the names the specs gave them.
func (s *session) names() (models map[int64]string, labels map[string]string) {
	models = make(map[int64]string, len(s.instances))
	labels = make(map[string]string)
	for _, inst := range s.instances {
		models[inst.Model.ID()] = inst.Spec.Name
		for _, rec := range inst.Model.Functions() {
			label, _, _ := strings.Cut(rec.Name, ":")
			labels[rec.ID] = label
		}
	}
	return models, labels
}
