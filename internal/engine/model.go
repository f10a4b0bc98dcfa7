package engine

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/rxmodel/internal/ir"
)

// Model is a set of properties and reactive functions registered with one
// engine. Build it with the chaining methods (Property, Expose, Reactive,
// Effect, Call) and check Err, or use the explicit Declare methods.
type Model struct {
	engine *Engine
	id     int64

	// Guarded by the engine mutex.
	props     map[string]*Property
	order     []string            // property names in declaration order
	funcs     []string            // function node ids in declaration order
	nodes     map[string]struct{} // every graph node this model put in the graph
	listeners []*listener
	last      *Property
	destroyed bool
	errs      []error
}

// ID returns the model id.
func (m *Model) ID() int64 { return m.id }

// Engine returns the owning engine.
func (m *Model) Engine() *Engine { return m.engine }

// Property declares a property with a default value. Pass ir.Undefined for
// a property with no default.
func (m *Model) Property(name string, def any) *Model {
	if _, err := m.DeclareProperty(name, def, false); err != nil {
		m.addErr(err)
	}
	return m
}

// Expose marks the most recently declared property as exposed.
func (m *Model) Expose() *Model {
	e := m.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	if m.last == nil {
		m.errs = append(m.errs, &RuntimeError{
			Code:    ErrCodeInvalidBinding,
			Message: "expose called before any property was declared",
			Model:   m.id,
		})
		return m
	}
	m.last.exposed = true
	return m
}

// Reactive declares a synchronous or asynchronous function computing output
// from inputs. inputs accepts any shape ParseInputs accepts.
func (m *Model) Reactive(output string, cb Callback, inputs any) *Model {
	names, err := ParseInputs(inputs)
	if err != nil {
		m.addErr(err)
		return m
	}
	if _, err := m.DeclareReactiveFunction(Binding{Output: output, Inputs: names, Callback: cb}); err != nil {
		m.addErr(err)
	}
	return m
}

// Effect declares a reactive function with no output.
func (m *Model) Effect(cb Callback, inputs any) *Model {
	return m.Reactive("", cb, inputs)
}

// Call applies fn to the model and returns the model. Mixins take their
// extra arguments through closures:
//
//	m.Call(withScale(2, 3))
func (m *Model) Call(fn func(*Model)) *Model {
	fn(m)
	return m
}

// Err returns every error recorded by the chaining methods, joined.
func (m *Model) Err() error {
	e := m.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	return errors.Join(m.errs...)
}

func (m *Model) addErr(err error) {
	e := m.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	m.errs = append(m.errs, err)
}

// DeclareProperty declares a property. A default other than ir.Undefined
// assigns the property, so it is dirty for the next digest.
//
// Redeclaring a property that was created implicitly as a function output
// upgrades it; any other redeclaration is ErrCodeDuplicateProperty.
func (m *Model) DeclareProperty(name string, def any, exposed bool) (*Property, error) {
	e := m.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	if m.destroyed {
		return nil, newDestroyedError(m.id, "declare property")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &RuntimeError{
			Code:    ErrCodeInvalidBinding,
			Message: "property name must not be empty",
			Model:   m.id,
		}
	}

	p, ok := m.props[name]
	switch {
	case ok && !p.implicit:
		return nil, &RuntimeError{
			Code:    ErrCodeDuplicateProperty,
			Message: fmt.Sprintf("property %q already declared", name),
			Node:    p.node,
			Model:   m.id,
		}
	case ok:
		p.implicit = false
	default:
		p = m.addPropertyLocked(name)
	}

	p.def = def
	p.exposed = exposed
	if !ir.IsUndefined(def) {
		p.assignLocked(def)
		e.markDirtyLocked(p.node)
	}
	m.last = p
	e.logger.Debug("property declared", "node", p.node, "model_id", m.id, "exposed", exposed)
	return p, nil
}

func (m *Model) addPropertyLocked(name string) *Property {
	e := m.engine
	p := &Property{
		model: m,
		name:  name,
		node:  ir.PropertyNode(m.id, name),
		def:   ir.Undefined,
	}
	m.props[name] = p
	m.order = append(m.order, name)
	m.nodes[p.node] = struct{}{}
	e.props[p.node] = p
	e.graph.AddNode(p.node)
	return p
}

func (m *Model) removePropertyLocked(p *Property) {
	e := m.engine
	delete(m.props, p.name)
	m.order = slices.DeleteFunc(m.order, func(n string) bool { return n == p.name })
	delete(m.nodes, p.node)
	delete(e.props, p.node)
	delete(e.dirty, p.node)
	e.graph.RemoveNode(p.node)
}

// DeclareReactiveFunction registers a reactive function and wires its graph
// edges. Declaring an identical binding again returns the existing record.
//
// An output that is not yet declared is created as a plain property with no
// default. A binding that would close a cycle is rejected with
// ErrCodeCycleDetected and leaves the graph unchanged.
func (m *Model) DeclareReactiveFunction(b Binding) (Record, error) {
	if b.Callback.IsZero() {
		return Record{}, &RuntimeError{
			Code:    ErrCodeInvalidBinding,
			Message: "binding has no callback",
			Model:   m.id,
		}
	}
	inputs, err := checkNames(b.Inputs)
	if err != nil {
		return Record{}, err
	}
	output := strings.TrimSpace(b.Output)

	e := m.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	if m.destroyed {
		return Record{}, newDestroyedError(m.id, "declare reactive function")
	}

	name := b.Name
	if name == "" {
		name = b.Callback.identity()
	}
	id := ir.FunctionNode(m.id, name, inputs, output)
	if f, ok := e.funcs[id]; ok {
		return f.rec, nil
	}

	var implicitOut *Property
	outNode := ""
	if output != "" {
		outNode = ir.PropertyNode(m.id, output)
		if _, ok := m.props[output]; !ok {
			implicitOut = m.addPropertyLocked(output)
			implicitOut.implicit = true
		}
	}

	inputNodes := make([]string, len(inputs))
	for i, in := range inputs {
		inputNodes[i] = ir.PropertyNode(m.id, in)
		e.graph.AddEdge(inputNodes[i], id)
		m.nodes[inputNodes[i]] = struct{}{}
	}
	e.graph.AddNode(id)
	if outNode != "" {
		e.graph.AddEdge(id, outNode)
	}

	if path := e.graph.CycleThrough(id); path != nil {
		e.graph.RemoveNode(id)
		if implicitOut != nil {
			m.removePropertyLocked(implicitOut)
		}
		e.logger.Debug("reactive function rejected: cycle", "node", id, "model_id", m.id)
		return Record{}, NewCycleError(id, m.id, path)
	}

	rec := Record{
		ID:      id,
		ModelID: m.id,
		Output:  output,
		Inputs:  inputs,
		Mode:    b.Callback.Mode(),
		Name:    name,
	}
	e.funcs[id] = &function{
		rec:        rec,
		model:      m,
		cb:         b.Callback,
		inputNodes: inputNodes,
		outputNode: outNode,
	}
	m.funcs = append(m.funcs, id)
	m.nodes[id] = struct{}{}
	e.fresh[id] = struct{}{}
	e.armLocked()

	e.logger.Debug("reactive function declared",
		"node", id,
		"model_id", m.id,
		"output", output,
		"mode", rec.Mode,
	)
	return rec, nil
}

// Lookup returns the named property accessor.
func (m *Model) Lookup(name string) (*Property, bool) {
	e := m.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := m.props[name]
	return p, ok
}

// PropertyNames returns declared property names in declaration order.
func (m *Model) PropertyNames() []string {
	e := m.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(m.order)
}

// Functions returns the declared reactive functions in declaration order.
func (m *Model) Functions() []Record {
	e := m.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Record, 0, len(m.funcs))
	for _, id := range m.funcs {
		if f, ok := e.funcs[id]; ok {
			out = append(out, f.rec)
		}
	}
	return out
}

// Get returns the named property's value, or ir.Undefined if the property
// is unknown or unassigned.
func (m *Model) Get(name string) any {
	e := m.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := m.props[name]
	if !ok {
		return ir.Undefined
	}
	return p.getLocked()
}

// Set assigns a declared property and returns the model for chaining.
// Errors are reported by Err.
func (m *Model) Set(name string, v any) *Model {
	if err := m.Write(name, v); err != nil {
		m.addErr(err)
	}
	return m
}

// Write assigns a declared property and arms a digest. Every write marks
// the property dirty, even when the value is unchanged.
func (m *Model) Write(name string, v any) error {
	e := m.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	return m.writeLocked(name, v)
}

func (m *Model) writeLocked(name string, v any) error {
	if m.destroyed {
		return newDestroyedError(m.id, "write")
	}
	p, ok := m.props[name]
	if !ok {
		return &RuntimeError{
			Code:    ErrCodeUnknownProperty,
			Message: fmt.Sprintf("property %q is not declared", name),
			Model:   m.id,
		}
	}
	p.assignLocked(v)
	m.engine.markDirtyLocked(p.node)
	return nil
}

// Configuration returns every exposed property whose value differs from
// its default. Unassigned properties are omitted.
func (m *Model) Configuration() map[string]any {
	e := m.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg := make(map[string]any)
	for _, name := range m.order {
		p := m.props[name]
		if !p.exposed || !p.assigned {
			continue
		}
		if !ir.IsUndefined(p.def) && ir.Equal(p.value, p.def) {
			continue
		}
		cfg[name] = p.value
	}
	return cfg
}

// SetConfiguration assigns the given exposed properties and resets every
// omitted exposed property to its default. Keys that are not exposed
// properties fail the whole call before anything is written.
func (m *Model) SetConfiguration(cfg map[string]any) error {
	e := m.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	if m.destroyed {
		return newDestroyedError(m.id, "set configuration")
	}
	for _, key := range ir.SortedKeys(cfg) {
		if p, ok := m.props[key]; !ok || !p.exposed {
			return &RuntimeError{
				Code:    ErrCodeUnknownProperty,
				Message: fmt.Sprintf("%q is not an exposed property", key),
				Model:   m.id,
			}
		}
	}
	for _, name := range m.order {
		p := m.props[name]
		if !p.exposed {
			continue
		}
		v, ok := cfg[name]
		if !ok {
			v = p.def
		}
		if err := m.writeLocked(name, v); err != nil {
			return err
		}
	}
	return nil
}

// Destroy removes every node the model owns from the graph, discards its
// listeners and pending writes, and drops results of its in-flight async
// functions. Values already propagated to other models are kept.
// Destroy is idempotent.
func (m *Model) Destroy() {
	e := m.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	if m.destroyed {
		return
	}
	m.destroyed = true

	for node := range m.nodes {
		e.graph.RemoveNode(node)
		delete(e.props, node)
		delete(e.funcs, node)
		delete(e.dirty, node)
		delete(e.fresh, node)
	}
	for _, l := range m.listeners {
		l.removed = true
	}
	m.listeners = nil
	delete(e.models, m.id)

	e.logger.Debug("model destroyed", "model_id", m.id, "nodes", len(m.nodes))
}

// Destroyed reports whether Destroy was called.
func (m *Model) Destroyed() bool {
	e := m.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	return m.destroyed
}

// exposedValuesLocked snapshots exposed properties. Unassigned properties
// map to ir.Undefined.
func (m *Model) exposedValuesLocked() map[string]any {
	out := make(map[string]any)
	for _, name := range m.order {
		if p := m.props[name]; p.exposed {
			out[name] = p.getLocked()
		}
	}
	return out
}
