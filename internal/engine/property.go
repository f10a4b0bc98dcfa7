package engine

import "github.com/roach88/rxmodel/internal/ir"

// Property is an accessor for one declared property of a model.
type Property struct {
	model *Model
	name  string
	node  string

	// Guarded by the engine mutex.
	def      any
	exposed  bool
	implicit bool // created as a function output without an explicit declaration
	value    any
	assigned bool
}

// Name returns the property name.
func (p *Property) Name() string { return p.name }

// Node returns the property's graph node id.
func (p *Property) Node() string { return p.node }

// Model returns the owning model.
func (p *Property) Model() *Model { return p.model }

// Get returns the current value, or ir.Undefined if never assigned.
func (p *Property) Get() any {
	e := p.model.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	return p.getLocked()
}

func (p *Property) getLocked() any {
	if !p.assigned {
		return ir.Undefined
	}
	return p.value
}

// Set assigns v and returns the model for chaining. Errors are reported by
// Model.Err.
func (p *Property) Set(v any) *Model {
	return p.model.Set(p.name, v)
}

// Default returns the declared default, or ir.Undefined if none.
func (p *Property) Default() any {
	e := p.model.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	return p.def
}

// Exposed reports whether the property is part of the model's configuration.
func (p *Property) Exposed() bool {
	e := p.model.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	return p.exposed
}

// Assigned reports whether the property holds a value. A nil value counts.
func (p *Property) Assigned() bool {
	e := p.model.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	return p.assigned
}

// assignLocked stores v. Writing ir.Undefined clears the property.
func (p *Property) assignLocked(v any) {
	if ir.IsUndefined(v) {
		p.value = nil
		p.assigned = false
		return
	}
	p.value = v
	p.assigned = true
}
