package testutil

import "sync"

// ManualDeferrer queues deferred tasks until the test runs them.
//
// Wire it with engine.WithDeferrer to make "the next tick" explicit: a write
// arms a digest, Len reports it, and Flush runs it. Tasks queued by running
// tasks (follow-up digests, async completions deferred through the engine)
// run in the same Flush, in FIFO order.
//
// Thread-safety: Defer may be called from any goroutine. Step and Flush
// must be called from one goroutine.
type ManualDeferrer struct {
	mu    sync.Mutex
	tasks []func()
	ran   int
}

// NewManualDeferrer creates an empty deferrer.
func NewManualDeferrer() *ManualDeferrer {
	return &ManualDeferrer{}
}

// Defer queues task. Implements engine.Deferrer.
func (d *ManualDeferrer) Defer(task func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, task)
}

// Len returns the number of queued tasks.
func (d *ManualDeferrer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// Ran returns the number of tasks run so far.
func (d *ManualDeferrer) Ran() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ran
}

// Step runs the oldest queued task. It returns false if none was queued.
func (d *ManualDeferrer) Step() bool {
	d.mu.Lock()
	if len(d.tasks) == 0 {
		d.mu.Unlock()
		return false
	}
	task := d.tasks[0]
	d.tasks[0] = nil
	d.tasks = d.tasks[1:]
	d.ran++
	d.mu.Unlock()

	task()
	return true
}

// Flush runs tasks until the queue is empty and returns how many ran.
func (d *ManualDeferrer) Flush() int {
	n := 0
	for d.Step() {
		n++
	}
	return n
}
