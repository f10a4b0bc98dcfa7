package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/rxmodel/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// Model errors (E101-E109)
	ErrModelNameEmpty     = "E101" // model name is required
	ErrDuplicateProperty  = "E102" // property declared twice
	ErrInvalidName        = "E103" // property or input name is not an identifier
	ErrDuplicateOutput    = "E104" // two reactive functions write the same property
	ErrDuplicateModelName = "E105" // two models share a name

	// Binding errors (E110-E119)
	ErrFuncNameEmpty  = "E110" // fn is required
	ErrUnknownFunc    = "E111" // fn names no library function
	ErrEmptyInput     = "E112" // empty entry in an inputs list
	ErrOutputIsInput  = "E113" // output also listed among its own inputs
	ErrDuplicateLabel = "E114" // binding label reused within a model

	// Graph errors (E120)
	ErrDependencyCycle = "E120" // static dependency cycle
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// FuncSet reports whether a function name resolves. funcs.Library
// implements it.
type FuncSet interface {
	Has(name string) bool
}

// Validate validates compiled IR against schema rules.
// Returns all errors found (does not fail-fast).
// Supports *ir.ModelSpec, ir.ModelSpec and []*ir.ModelSpec. A nil funcs
// skips the unknown-function check.
func Validate(v any, funcs FuncSet) []ValidationError {
	switch spec := v.(type) {
	case *ir.ModelSpec:
		return validateModelSpec(spec, funcs)
	case ir.ModelSpec:
		return validateModelSpec(&spec, funcs)
	case []*ir.ModelSpec:
		return validateModelSpecs(spec, funcs)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validateModelSpecs(specs []*ir.ModelSpec, funcs FuncSet) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for i, spec := range specs {
		if spec.Name != "" && seen[spec.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("models[%d].name", i),
				Message: fmt.Sprintf("duplicate model name: %q", spec.Name),
				Code:    ErrDuplicateModelName,
			})
		}
		seen[spec.Name] = true
		errs = append(errs, validateModelSpec(spec, funcs)...)
	}
	return errs
}

// validateModelSpec validates one model specification.
func validateModelSpec(spec *ir.ModelSpec, funcs FuncSet) []ValidationError {
	var errs []ValidationError
	prefix := "model." + spec.Name

	// E101: name is required
	if strings.TrimSpace(spec.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "model.name",
			Message: "model name is required and must be non-empty",
			Code:    ErrModelNameEmpty,
		})
	}

	propNames := make(map[string]bool)
	for i, p := range spec.Properties {
		field := fmt.Sprintf("%s.properties[%d]", prefix, i)

		// E103: identifier
		if !isValidName(p.Name) {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("invalid property name %q", p.Name),
				Code:    ErrInvalidName,
			})
		}

		// E102: duplicate property
		if propNames[p.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate property name: %q", p.Name),
				Code:    ErrDuplicateProperty,
			})
		}
		propNames[p.Name] = true
	}

	labels := make(map[string]bool)
	outputs := make(map[string]string)
	for i, b := range spec.Bindings {
		errs = append(errs, validateBinding(fmt.Sprintf("%s.bindings[%d]", prefix, i), b, funcs)...)

		// E114: duplicate label
		if labels[b.Label] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.bindings[%d].label", prefix, i),
				Message: fmt.Sprintf("duplicate binding label: %q", b.Label),
				Code:    ErrDuplicateLabel,
			})
		}
		labels[b.Label] = true

		// E104: one writer per output
		if b.Output == "" {
			continue
		}
		if prev, ok := outputs[b.Output]; ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.bindings[%d].output", prefix, i),
				Message: fmt.Sprintf("property %q is already written by %q", b.Output, prev),
				Code:    ErrDuplicateOutput,
			})
			continue
		}
		outputs[b.Output] = b.Label
	}

	return errs
}

// validateBinding validates one reactive or effect binding.
func validateBinding(field string, b ir.BindingSpec, funcs FuncSet) []ValidationError {
	var errs []ValidationError

	// E110: fn is required
	if strings.TrimSpace(b.Func) == "" {
		errs = append(errs, ValidationError{
			Field:   field + ".fn",
			Message: fmt.Sprintf("binding %q has no function", b.Label),
			Code:    ErrFuncNameEmpty,
		})
	} else if funcs != nil && !funcs.Has(b.Func) {
		// E111: unknown function
		errs = append(errs, ValidationError{
			Field:   field + ".fn",
			Message: fmt.Sprintf("unknown function %q", b.Func),
			Code:    ErrUnknownFunc,
		})
	}

	if b.Output != "" && !isValidName(b.Output) {
		errs = append(errs, ValidationError{
			Field:   field + ".output",
			Message: fmt.Sprintf("invalid output name %q", b.Output),
			Code:    ErrInvalidName,
		})
	}

	for j, in := range b.Inputs {
		inField := fmt.Sprintf("%s.inputs[%d]", field, j)
		name := strings.TrimSpace(in)

		// E112: empty input
		if name == "" {
			errs = append(errs, ValidationError{
				Field:   inField,
				Message: "input name is empty",
				Code:    ErrEmptyInput,
			})
			continue
		}

		if !isValidName(name) {
			errs = append(errs, ValidationError{
				Field:   inField,
				Message: fmt.Sprintf("invalid input name %q", in),
				Code:    ErrInvalidName,
			})
		}

		// E113: output read by its own function
		if b.Output != "" && name == b.Output {
			errs = append(errs, ValidationError{
				Field:   inField,
				Message: fmt.Sprintf("%q is both input and output of %q", name, b.Label),
				Code:    ErrOutputIsInput,
			})
		}
	}

	return errs
}

// namePattern matches property names: a letter or underscore, then letters,
// digits, underscores or dashes.
var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

func isValidName(name string) bool {
	return namePattern.MatchString(name)
}
