package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rxmodel/internal/engine"
	"github.com/roach88/rxmodel/internal/ir"
)

// CompileModels compiles every model under the top-level `model` field of
// root, in declaration order. A root without models yields an empty slice.
func CompileModels(root cue.Value) ([]*ir.ModelSpec, error) {
	if err := root.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	modelsVal := root.LookupPath(cue.ParsePath("model"))
	if !modelsVal.Exists() {
		return []*ir.ModelSpec{}, nil
	}

	iter, err := modelsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	specs := []*ir.ModelSpec{}
	for iter.Next() {
		spec, err := compileModel(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// CompileModel parses a CUE value into a ModelSpec.
//
// The CUE value should be the model struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`model: pricing: { property: price: {default: 10} }`)
//	spec, err := CompileModel(v.LookupPath(cue.ParsePath("model.pricing")))
func CompileModel(v cue.Value) (*ir.ModelSpec, error) {
	var name string
	if labels := v.Path().Selectors(); len(labels) > 0 {
		name = labels[len(labels)-1].String()
	}
	return compileModel(name, v)
}

func compileModel(name string, v cue.Value) (*ir.ModelSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{
			Field:   "model." + name,
			Message: "model must be a struct",
			Pos:     v.Pos(),
		}
	}

	spec := &ir.ModelSpec{
		Name:       name,
		Properties: []ir.PropertySpec{},
		Bindings:   []ir.BindingSpec{},
	}

	var err error
	spec.Properties, err = parseProperties(name, v)
	if err != nil {
		return nil, err
	}

	reactive, err := parseBindings(name, v, "reactive", true)
	if err != nil {
		return nil, err
	}
	effects, err := parseBindings(name, v, "effect", false)
	if err != nil {
		return nil, err
	}
	spec.Bindings = append(reactive, effects...)

	return spec, nil
}

// parseProperties accepts either the long form
//
//	property: price: {default: 10, expose: true}
//
// or a bare default, `property: qty: 2`. An empty struct declares a
// property with no default.
func parseProperties(model string, v cue.Value) ([]ir.PropertySpec, error) {
	props := []ir.PropertySpec{}

	propVal := v.LookupPath(cue.ParsePath("property"))
	if !propVal.Exists() {
		return props, nil
	}

	iter, err := propVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		name := iter.Label()
		pv := iter.Value()
		field := fmt.Sprintf("model.%s.property.%s", model, name)

		p := ir.PropertySpec{Name: name}

		if !isPropertyStruct(pv) {
			def, err := decodeValue(field, pv)
			if err != nil {
				return nil, err
			}
			p.Default, p.HasDefault = def, true
			props = append(props, p)
			continue
		}

		if dv := pv.LookupPath(cue.ParsePath("default")); dv.Exists() {
			def, err := decodeValue(field+".default", dv)
			if err != nil {
				return nil, err
			}
			p.Default, p.HasDefault = def, true
		}

		if ev := pv.LookupPath(cue.ParsePath("expose")); ev.Exists() {
			expose, err := ev.Bool()
			if err != nil {
				return nil, &CompileError{
					Field:   field + ".expose",
					Message: "expose must be a bool",
					Pos:     ev.Pos(),
				}
			}
			p.Expose = expose
		}

		props = append(props, p)
	}

	return props, nil
}

// isPropertyStruct reports whether v uses the long property form: a struct
// whose fields are all drawn from {default, expose}.
func isPropertyStruct(v cue.Value) bool {
	if v.IncompleteKind() != cue.StructKind {
		return false
	}
	iter, err := v.Fields()
	if err != nil {
		return false
	}
	for iter.Next() {
		switch iter.Label() {
		case "default", "expose":
		default:
			return false
		}
	}
	return true
}

// parseBindings reads the reactive or effect section. Reactive labels name
// the output property; effect labels are only identifiers.
func parseBindings(model string, v cue.Value, section string, hasOutput bool) ([]ir.BindingSpec, error) {
	bindings := []ir.BindingSpec{}

	secVal := v.LookupPath(cue.ParsePath(section))
	if !secVal.Exists() {
		return bindings, nil
	}

	iter, err := secVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		label := iter.Label()
		bv := iter.Value()
		field := fmt.Sprintf("model.%s.%s.%s", model, section, label)

		fnVal := bv.LookupPath(cue.ParsePath("fn"))
		if !fnVal.Exists() {
			return nil, &CompileError{
				Field:   field + ".fn",
				Message: "fn is required",
				Pos:     bv.Pos(),
			}
		}
		fn, err := fnVal.String()
		if err != nil {
			return nil, &CompileError{
				Field:   field + ".fn",
				Message: "fn must be a string",
				Pos:     fnVal.Pos(),
			}
		}

		inputs, err := parseInputs(field+".inputs", bv.LookupPath(cue.ParsePath("inputs")))
		if err != nil {
			return nil, err
		}

		b := ir.BindingSpec{
			Label:  label,
			Func:   fn,
			Inputs: inputs,
		}
		if hasOutput {
			b.Output = label
		}
		bindings = append(bindings, b)
	}

	return bindings, nil
}

// parseInputs accepts a list of strings or a single comma-separated string.
// List entries are kept verbatim so Validate can report empty ones.
func parseInputs(field string, v cue.Value) ([]string, error) {
	inputs := []string{}
	if !v.Exists() {
		return inputs, nil
	}

	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return engine.ParseInputs(s)
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return nil, &CompileError{
					Field:   field,
					Message: "inputs must be strings",
					Pos:     iter.Value().Pos(),
				}
			}
			inputs = append(inputs, s)
		}
		return inputs, nil
	default:
		return nil, &CompileError{
			Field:   field,
			Message: "inputs must be a string or a list of strings",
			Pos:     v.Pos(),
		}
	}
}

// decodeValue converts a concrete CUE value to the engine's value space:
// int, float64, string, bool, nil, []any and map[string]any.
func decodeValue(field string, v cue.Value) (any, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, &CompileError{
			Field:   field,
			Message: "default must be a concrete value",
			Pos:     v.Pos(),
		}
	}

	switch v.Kind() {
	case cue.NullKind:
		return nil, nil
	case cue.BoolKind:
		return v.Bool()
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return int(n), nil
	case cue.FloatKind, cue.NumberKind:
		return v.Float64()
	case cue.StringKind:
		return v.String()
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		list := []any{}
		for i := 0; iter.Next(); i++ {
			item, err := decodeValue(fmt.Sprintf("%s[%d]", field, i), iter.Value())
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}
		return list, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := map[string]any{}
		for iter.Next() {
			item, err := decodeValue(field+"."+iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			obj[iter.Label()] = item
		}
		return obj, nil
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
