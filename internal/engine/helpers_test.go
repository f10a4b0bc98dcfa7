package engine

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/roach88/rxmodel/internal/ir"
	"github.com/roach88/rxmodel/internal/testutil"
)

// newTestEngine returns an engine whose scheduled digests only run when the
// test flushes the returned deferrer.
func newTestEngine(t *testing.T, opts ...EngineOption) (*Engine, *testutil.ManualDeferrer) {
	t.Helper()
	d := testutil.NewManualDeferrer()
	base := []EngineOption{
		WithDeferrer(d),
		WithRunIDGenerator(testutil.NewFixedRunID("test-run")),
		WithLogger(slog.New(slog.DiscardHandler)),
	}
	return New(append(base, opts...)...), d
}

var (
	increment = Sync(func(in Inputs) (any, error) {
		return in.Int(0) + 1, nil
	})
	add = Sync(func(in Inputs) (any, error) {
		return in.Int(0) + in.Int(1), nil
	})
	not = Sync(func(in Inputs) (any, error) {
		return !in.Bool(0), nil
	})
)

// counted wraps a sync body and counts its invocations.
type counted struct {
	mu    sync.Mutex
	calls int
	seen  [][]any
}

func (c *counted) callback(fn func(in Inputs) (any, error)) Callback {
	return Sync(func(in Inputs) (any, error) {
		c.mu.Lock()
		c.calls++
		c.seen = append(c.seen, in.Values())
		c.mu.Unlock()
		return fn(in)
	})
}

func (c *counted) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// memRecorder keeps the trace in memory.
type memRecorder struct {
	mu      sync.Mutex
	digests []ir.DigestRecord
	evals   []ir.Evaluation
}

func (r *memRecorder) RecordDigest(_ context.Context, d ir.DigestRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.digests = append(r.digests, d)
	return nil
}

func (r *memRecorder) RecordEvaluation(_ context.Context, ev ir.Evaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evals = append(r.evals, ev)
	return nil
}

func (r *memRecorder) digestCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.digests)
}
