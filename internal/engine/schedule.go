package engine

import (
	"context"

	"github.com/roach88/rxmodel/internal/ir"
)

// armLocked requests a digest.
//
//   - idle: become scheduled and defer exactly one digest task
//   - scheduled: coalesced into the pending task
//   - running: request a follow-up digest once the pass ends
func (e *Engine) armLocked() {
	switch e.state {
	case StateIdle:
		e.state = StateScheduled
		e.gen++
		gen := e.gen
		e.deferrer.Defer(func() { e.runScheduled(gen) })
	case StateRunning:
		e.followUp = true
	}
}

// markDirtyLocked queues a property node for the next pass.
func (e *Engine) markDirtyLocked(node string) {
	e.dirty[node] = struct{}{}
	e.armLocked()
}

// runScheduled is the deferred digest task. A task is stale when an
// explicit Digest ran in the meantime; stale tasks do nothing.
func (e *Engine) runScheduled(gen uint64) {
	err := e.digest(context.Background(), ir.TriggerScheduled, gen)
	if err == nil {
		return
	}
	e.logger.Warn("scheduled digest failed", "error", err)
	if e.onError != nil {
		e.onError(err)
	}
}

// finishLocked ends a pass and re-arms when work arrived during it.
// Scheduled passes that keep re-arming are bounded by the pass budget.
func (e *Engine) finishLocked(trigger ir.Trigger, seq int64) error {
	e.state = StateIdle
	if !e.followUp {
		if trigger == ir.TriggerScheduled {
			e.budget.Reset()
		}
		return nil
	}
	e.followUp = false

	if trigger == ir.TriggerScheduled {
		if err := e.budget.Check(seq); err != nil {
			e.logger.Error("digest pass limit exceeded",
				"digest_seq", seq,
				"limit", err.(*PassLimitError).Limit,
			)
			return err
		}
	}
	e.armLocked()
	return nil
}

// Defer runs task through the engine's deferrer. Async reactive functions
// use it to complete on a later tick.
func (e *Engine) Defer(task func()) {
	e.deferrer.Defer(task)
}
