// Package funcs resolves the function names used by declarative models to
// engine callbacks, and instantiates compiled model specs on an engine.
package funcs

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/rxmodel/internal/engine"
	"github.com/roach88/rxmodel/internal/ir"
)

// Factory builds a callback for one engine. Asynchronous callbacks use the
// engine to schedule their completion.
type Factory func(eng *engine.Engine) engine.Callback

// Func describes one library entry.
type Func struct {
	Name  string
	Mode  ir.EvalMode
	Doc   string
	build Factory
}

// Library maps function names to callbacks. It is safe for concurrent use.
type Library struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{funcs: make(map[string]Func)}
}

// Default returns a library holding the built-in functions.
func Default() *Library {
	l := NewLibrary()
	for _, f := range builtins() {
		l.funcs[f.Name] = f
	}
	return l
}

// Register adds a callback that does not depend on the engine. It fails
// if name is empty, already taken, or cb is zero.
func (l *Library) Register(name, doc string, cb engine.Callback) error {
	if cb.IsZero() {
		return fmt.Errorf("register %q: zero callback", name)
	}
	return l.RegisterFactory(name, cb.Mode(), doc, func(*engine.Engine) engine.Callback { return cb })
}

// RegisterFactory adds a callback built per engine.
func (l *Library) RegisterFactory(name string, mode ir.EvalMode, doc string, build Factory) error {
	if name == "" {
		return fmt.Errorf("register: empty function name")
	}
	if build == nil {
		return fmt.Errorf("register %q: nil factory", name)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.funcs[name]; ok {
		return fmt.Errorf("register %q: already registered", name)
	}
	l.funcs[name] = Func{Name: name, Mode: mode, Doc: doc, build: build}
	return nil
}

// Has reports whether name is registered.
func (l *Library) Has(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.funcs[name]
	return ok
}

// Lookup returns the entry for name.
func (l *Library) Lookup(name string) (Func, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.funcs[name]
	return f, ok
}

// Names returns every registered name, sorted.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.funcs))
	for name := range l.funcs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Resolve builds the callback for name on eng.
func (l *Library) Resolve(eng *engine.Engine, name string) (engine.Callback, error) {
	f, ok := l.Lookup(name)
	if !ok {
		return engine.Callback{}, &UnknownFuncError{Name: name}
	}
	return f.build(eng), nil
}

// UnknownFuncError is returned when a binding names no library function.
type UnknownFuncError struct {
	Name string
}

func (e *UnknownFuncError) Error() string {
	return fmt.Sprintf("unknown function %q", e.Name)
}
