package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/roach88/rxmodel/internal/graph"
	"github.com/roach88/rxmodel/internal/ir"
)

// function is a declared reactive function.
type function struct {
	rec        Record
	model      *Model
	cb         Callback
	inputNodes []string
	outputNode string // empty for side effects
}

// pass is the working state of one digest pass.
type pass struct {
	seq       int64
	trigger   ir.Trigger
	dirty     map[string]struct{} // seeds written before the pass
	fresh     map[string]struct{} // seeds declared before the pass
	changed   map[string]struct{} // dirty plus outputs written in this pass
	evaluated int
}

// Digest runs one digest pass now, in the caller's goroutine, and returns
// the first callback failure. Calling Digest from inside a running pass
// (a callback or listener) returns ErrCodeDigestRunning.
func (e *Engine) Digest(ctx context.Context) error {
	return e.digest(ctx, ir.TriggerExplicit, 0)
}

func (e *Engine) digest(ctx context.Context, trigger ir.Trigger, gen uint64) error {
	e.mu.Lock()
	if trigger == ir.TriggerScheduled && (e.state != StateScheduled || e.gen != gen) {
		e.mu.Unlock()
		return nil
	}
	if e.state == StateRunning {
		e.mu.Unlock()
		return &RuntimeError{Code: ErrCodeDigestRunning, Message: "digest already running"}
	}

	e.state = StateRunning
	e.followUp = false
	p := &pass{
		seq:     e.digests.Next(),
		trigger: trigger,
		dirty:   e.dirty,
		fresh:   e.fresh,
	}
	p.changed = maps.Clone(p.dirty)
	e.dirty = make(map[string]struct{})
	e.fresh = make(map[string]struct{})
	e.mu.Unlock()

	e.logger.Debug("digest started",
		"digest_seq", p.seq,
		"trigger", trigger,
		"dirty", len(p.dirty),
		"fresh", len(p.fresh),
	)

	runErr := e.runPass(ctx, p)

	e.mu.Lock()
	limitErr := e.finishLocked(trigger, p.seq)
	e.mu.Unlock()

	e.logger.Debug("digest finished",
		"digest_seq", p.seq,
		"evaluated", p.evaluated,
		"failed", runErr != nil,
	)
	e.recordDigest(ctx, p, runErr)

	switch {
	case runErr == nil:
		return limitErr
	case limitErr == nil:
		return runErr
	default:
		return errors.Join(runErr, limitErr)
	}
}

// runPass evaluates triggered function nodes in dependency order, then
// notifies listeners. It returns before notifying when a node fails.
func (e *Engine) runPass(ctx context.Context, p *pass) error {
	seeds := make([]string, 0, len(p.dirty)+len(p.fresh))
	seeds = append(seeds, ir.SortedKeys(p.dirty)...)
	seeds = append(seeds, ir.SortedKeys(p.fresh)...)

	order, err := e.graph.Order(seeds)
	if err != nil {
		var ce *graph.CycleError
		if errors.As(err, &ce) {
			node := ""
			if len(ce.Path) > 0 {
				node = ce.Path[0]
			}
			return NewCycleError(node, 0, ce.Path)
		}
		return fmt.Errorf("digest %d: order: %w", p.seq, err)
	}

	for i, id := range order {
		if !ir.IsFunctionNode(id) {
			continue
		}
		if err := ctx.Err(); err != nil {
			e.requeueFresh(p, order[i:])
			return fmt.Errorf("digest %d: %w", p.seq, err)
		}

		e.mu.Lock()
		f, ok := e.funcs[id]
		if !ok || !e.triggeredLocked(f, p) {
			e.mu.Unlock()
			continue
		}
		in := e.inputsLocked(f)
		e.mu.Unlock()

		p.evaluated++
		if err := e.evaluate(ctx, p, f, in); err != nil {
			e.requeueFresh(p, order[i+1:])
			return err
		}
	}

	e.notify(p.seq, e.collectNotifications())
	return nil
}

// triggeredLocked reports whether f runs in this pass: one of its inputs
// changed, or it is new and every declared input has a value.
func (e *Engine) triggeredLocked(f *function, p *pass) bool {
	for _, n := range f.inputNodes {
		if _, ok := p.changed[n]; ok {
			return true
		}
	}
	if _, ok := p.fresh[f.rec.ID]; !ok {
		return false
	}
	for _, n := range f.inputNodes {
		if prop, ok := e.props[n]; ok && !prop.assigned {
			return false
		}
	}
	return true
}

func (e *Engine) inputsLocked(f *function) Inputs {
	values := make([]any, len(f.inputNodes))
	for i, n := range f.inputNodes {
		if prop, ok := e.props[n]; ok {
			values[i] = prop.getLocked()
		} else {
			values[i] = ir.Undefined
		}
	}
	return Inputs{names: f.rec.Inputs, values: values}
}

// evaluate invokes one function with the lock released. A sync result is
// written to the output and counts as changed for the rest of the pass.
func (e *Engine) evaluate(ctx context.Context, p *pass, f *function, in Inputs) error {
	e.logger.Debug("evaluating function",
		"digest_seq", p.seq,
		"node", f.rec.ID,
		"model_id", f.rec.ModelID,
		"mode", f.rec.Mode,
	)

	ev := ir.Evaluation{
		RunID:     e.runID,
		DigestSeq: p.seq,
		Ordinal:   p.evaluated,
		Node:      f.rec.ID,
		ModelID:   f.rec.ModelID,
		Output:    f.rec.Output,
		Mode:      f.rec.Mode,
	}

	if f.cb.async != nil {
		// Recorded first: done may be called before invokeAsync returns
		e.recordEvaluation(ctx, ev)
		if err := invokeAsync(f.cb.async, in, e.completion(f, p.seq)); err != nil {
			return e.failure(p, f, err)
		}
		return nil
	}

	val, err := invokeSync(f.cb.sync, in)
	if err != nil {
		return e.failure(p, f, err)
	}

	e.mu.Lock()
	if _, live := e.funcs[f.rec.ID]; live && f.outputNode != "" && !ir.IsUndefined(val) {
		if out, ok := e.props[f.outputNode]; ok {
			out.assignLocked(val)
			p.changed[f.outputNode] = struct{}{}
			ev.Value = traceValue(val)
		}
	}
	e.mu.Unlock()

	e.recordEvaluation(ctx, ev)
	return nil
}

func (e *Engine) failure(p *pass, f *function, err error) error {
	e.logger.Debug("function failed",
		"digest_seq", p.seq,
		"node", f.rec.ID,
		"model_id", f.rec.ModelID,
		"error", err,
	)
	return &DigestError{
		Seq:    p.seq,
		Node:   f.rec.ID,
		Model:  f.rec.ModelID,
		Output: f.rec.Output,
		Err:    newCallbackError(f.rec.ID, f.rec.ModelID, err),
	}
}

// requeueFresh returns new functions that an aborted pass never reached, so
// their first evaluation is not lost.
func (e *Engine) requeueFresh(p *pass, rest []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range rest {
		if _, ok := p.fresh[id]; !ok {
			continue
		}
		if _, live := e.funcs[id]; live {
			e.fresh[id] = struct{}{}
		}
	}
}

// completion builds the Done for one async invocation. The result is
// dropped when the function node no longer exists.
func (e *Engine) completion(f *function, seq int64) Done {
	return func(values ...any) {
		e.mu.Lock()
		if cur, ok := e.funcs[f.rec.ID]; !ok || cur != f {
			e.mu.Unlock()
			e.logger.Debug("async completion ignored: function removed",
				"digest_seq", seq,
				"node", f.rec.ID,
				"model_id", f.rec.ModelID,
			)
			return
		}

		ev := ir.Evaluation{
			RunID:      e.runID,
			DigestSeq:  seq,
			Node:       f.rec.ID,
			ModelID:    f.rec.ModelID,
			Output:     f.rec.Output,
			Mode:       ir.ModeAsync,
			Completion: true,
		}
		if len(values) > 0 && f.outputNode != "" && !ir.IsUndefined(values[0]) {
			if out, ok := e.props[f.outputNode]; ok {
				out.assignLocked(values[0])
				e.markDirtyLocked(f.outputNode)
				ev.Value = traceValue(values[0])
			}
		}
		e.mu.Unlock()

		e.logger.Debug("async completion applied",
			"digest_seq", seq,
			"node", f.rec.ID,
			"model_id", f.rec.ModelID,
		)
		e.recordEvaluation(context.Background(), ev)
	}
}

func invokeSync(fn func(Inputs) (any, error), in Inputs) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(in)
}

func invokeAsync(fn func(Inputs, Done) error, in Inputs, done Done) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(in, done)
}

func (e *Engine) recordDigest(ctx context.Context, p *pass, runErr error) {
	rec := ir.DigestRecord{
		RunID:     e.runID,
		Seq:       p.seq,
		Trigger:   p.trigger,
		Dirty:     len(p.dirty),
		Evaluated: p.evaluated,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := e.recorder.RecordDigest(ctx, rec); err != nil {
		e.logger.Warn("trace record failed", "digest_seq", p.seq, "error", err)
	}
}

func (e *Engine) recordEvaluation(ctx context.Context, ev ir.Evaluation) {
	if err := e.recorder.RecordEvaluation(ctx, ev); err != nil {
		e.logger.Warn("trace record failed",
			"digest_seq", ev.DigestSeq,
			"node", ev.Node,
			"error", err,
		)
	}
}
