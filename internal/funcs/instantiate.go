package funcs

import (
	"fmt"

	"github.com/roach88/rxmodel/internal/engine"
	"github.com/roach88/rxmodel/internal/ir"
)

// Instantiate creates a model on eng from a compiled spec. Properties are
// declared first, in spec order, then bindings.
//
// On failure the partially built model is destroyed and the error names
// the model and the offending declaration.
func Instantiate(eng *engine.Engine, spec *ir.ModelSpec, lib *Library) (*engine.Model, error) {
	if lib == nil {
		lib = Default()
	}
	m := eng.NewModel()

	for _, p := range spec.Properties {
		def := any(ir.Undefined)
		if p.HasDefault {
			def = p.Default
		}
		if _, err := m.DeclareProperty(p.Name, def, p.Expose); err != nil {
			m.Destroy()
			return nil, fmt.Errorf("model %s: property %s: %w", spec.Name, p.Name, err)
		}
	}

	for _, b := range spec.Bindings {
		cb, err := lib.Resolve(eng, b.Func)
		if err != nil {
			m.Destroy()
			return nil, fmt.Errorf("model %s: %s: %w", spec.Name, b.Label, err)
		}
		_, err = m.DeclareReactiveFunction(engine.Binding{
			Output:   b.Output,
			Inputs:   b.Inputs,
			Callback: cb,
			Name:     b.Label + ":" + b.Func,
		})
		if err != nil {
			m.Destroy()
			return nil, fmt.Errorf("model %s: %s: %w", spec.Name, b.Label, err)
		}
	}

	return m, nil
}

// Instance pairs a live model with the spec it was built from.
type Instance struct {
	Spec  *ir.ModelSpec
	Model *engine.Model
}

// InstantiateAll instantiates specs in order. If any fails, the models
// already created are destroyed.
func InstantiateAll(eng *engine.Engine, specs []*ir.ModelSpec, lib *Library) ([]Instance, error) {
	out := make([]Instance, 0, len(specs))
	for _, spec := range specs {
		m, err := Instantiate(eng, spec, lib)
		if err != nil {
			for _, inst := range out {
				inst.Model.Destroy()
			}
			return nil, err
		}
		out = append(out, Instance{Spec: spec, Model: m})
	}
	return out, nil
}
