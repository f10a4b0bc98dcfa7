package engine

import (
	"fmt"

	"github.com/roach88/rxmodel/internal/ir"
)

// ListenerHandle identifies a registered listener for Off.
type ListenerHandle struct {
	model int64
	id    uint64
}

// Valid reports whether the handle refers to a registration.
func (h ListenerHandle) Valid() bool { return h.id != 0 }

type listener struct {
	id       uint64
	fn       func(delta map[string]any)
	snapshot map[string]any
	removed  bool
}

// On registers fn to be called once after every digest pass that completes
// while it is registered. fn receives the exposed properties whose values
// differ from the previous notification; the first baseline is the state
// at registration time, so a digest with no writes delivers an empty map.
//
// Registering arms a digest.
func (m *Model) On(fn func(delta map[string]any)) ListenerHandle {
	e := m.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	if m.destroyed {
		m.errs = append(m.errs, newDestroyedError(m.id, "register listener"))
		return ListenerHandle{}
	}

	e.nextLID++
	l := &listener{
		id:       e.nextLID,
		fn:       fn,
		snapshot: m.exposedValuesLocked(),
	}
	m.listeners = append(m.listeners, l)
	e.armLocked()
	return ListenerHandle{model: m.id, id: l.id}
}

// Off unregisters a listener. Unknown handles are ignored.
func (m *Model) Off(h ListenerHandle) {
	e := m.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, l := range m.listeners {
		if l.id == h.id {
			l.removed = true
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return
		}
	}
}

type notification struct {
	l     *listener
	model int64
	delta map[string]any
}

func (e *Engine) collectNotifications() []notification {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.collectNotificationsLocked()
}

// collectNotificationsLocked computes every listener's delta and advances
// its snapshot. Models are visited by id, listeners by registration order.
func (e *Engine) collectNotificationsLocked() []notification {
	var out []notification
	for _, m := range e.sortedModelsLocked() {
		for _, l := range m.listeners {
			current := m.exposedValuesLocked()
			delta := make(map[string]any)
			for name, v := range current {
				prev, ok := l.snapshot[name]
				if !ok || !ir.Equal(prev, v) {
					delta[name] = v
				}
			}
			l.snapshot = current
			out = append(out, notification{l: l, model: m.id, delta: delta})
		}
	}
	return out
}

// notify delivers notifications with the lock released. A listener removed
// by an earlier listener in the same batch is skipped.
func (e *Engine) notify(seq int64, calls []notification) {
	for _, c := range calls {
		e.mu.Lock()
		removed := c.l.removed
		e.mu.Unlock()
		if removed {
			continue
		}
		if err := callListener(c.l.fn, c.delta); err != nil {
			e.logger.Error("listener failed",
				"digest_seq", seq,
				"model_id", c.model,
				"error", err,
			)
		}
	}
}

func callListener(fn func(map[string]any), delta map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	fn(delta)
	return nil
}
