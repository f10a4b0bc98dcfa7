package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Deferrer runs a task later, outside the caller's stack. The engine arms
// scheduled digests through it.
//
// Defer must not run the task synchronously: the engine calls it while
// holding its lock.
type Deferrer interface {
	Defer(task func())
}

// AfterFunc defers each task to its own timer goroutine. It is the engine's
// default deferrer and gives "next tick" auto digests without a run loop.
type AfterFunc struct {
	Delay time.Duration
}

// Defer implements Deferrer.
func (a AfterFunc) Defer(task func()) {
	time.AfterFunc(a.Delay, task)
}

// taskQueue is a thread-safe FIFO queue of deferred tasks.
//
// The queue is unbounded so a digest that arms further digests never blocks.
// It uses a channel for signaling to enable context-aware waiting in the
// Loop's Run method.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	signal chan struct{} // signals task availability (buffered, size 1)
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]func(), 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a task to the back of the queue.
// Returns false if the queue is closed.
func (q *taskQueue) Enqueue(task func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, task)

	// Non-blocking: buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes and returns the front task without blocking.
func (q *taskQueue) TryDequeue() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}
	task := q.tasks[0]

	// Nil out the slot so the closure can be collected
	q.tasks[0] = nil
	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}
	return task, true
}

// Wait returns a channel that signals when tasks may be available.
// The channel is closed when the queue is closed.
func (q *taskQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close signals that no more tasks will be enqueued.
func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Loop is a single-goroutine task loop. Tasks deferred to it run in FIFO
// order, either from Run in a dedicated goroutine or from Drain in the
// caller's goroutine.
//
// Thread-safety model:
//   - Defer(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Drain(): must not be called concurrently with Run
type Loop struct {
	queue  *taskQueue
	logger *slog.Logger
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLoopLogger sets the loop's logger. Default: slog.Default().
func WithLoopLogger(l *slog.Logger) LoopOption {
	return func(loop *Loop) {
		if l != nil {
			loop.logger = l
		}
	}
}

// NewLoop creates an empty task loop.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{queue: newTaskQueue(), logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Defer implements Deferrer. Tasks deferred after Stop are dropped.
func (l *Loop) Defer(task func()) {
	if !l.queue.Enqueue(task) {
		l.logger.Debug("task dropped: loop stopped")
	}
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	return l.queue.Len()
}

// Run executes tasks until ctx is cancelled or Stop is called.
// Tasks queued at Stop time are still run before Run returns nil.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("task loop starting")

	for {
		if task, ok := l.queue.TryDequeue(); ok {
			task()
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Debug("task loop stopping: context cancelled")
			l.queue.Close()
			return ctx.Err()

		case <-l.queue.Wait():
			// The signal channel closes when the queue is closed, which
			// fires this case immediately
			l.queue.mu.Lock()
			done := l.queue.closed && len(l.queue.tasks) == 0
			l.queue.mu.Unlock()
			if done {
				l.logger.Debug("task loop stopping: queue closed")
				return nil
			}
		}
	}
}

// Drain runs queued tasks in the caller's goroutine until the queue is
// empty, including tasks enqueued by the tasks it runs. It returns the
// number of tasks run.
func (l *Loop) Drain() int {
	n, _ := l.DrainContext(context.Background())
	return n
}

// DrainContext is Drain that checks ctx before each task. On cancellation
// the remaining tasks stay queued and ctx.Err() is returned.
func (l *Loop) DrainContext(ctx context.Context) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			l.logger.Debug("task drain interrupted", "ran", n, "queued", l.queue.Len())
			return n, err
		}
		task, ok := l.queue.TryDequeue()
		if !ok {
			return n, nil
		}
		task()
		n++
	}
}

// Stop closes the loop. Run returns once the queue is empty.
func (l *Loop) Stop() {
	l.queue.Close()
}
