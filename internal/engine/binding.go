package engine

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/roach88/rxmodel/internal/ir"
)

// Done completes an asynchronous reactive function. Calling it with a value
// writes that value to the function's output and arms a new digest. Calling
// it with no value completes a side effect. Later calls overwrite earlier
// ones.
type Done func(value ...any)

// Callback is the body of a reactive function, built with Sync or Async.
// The zero Callback is invalid.
//
// Every Sync or Async call yields a distinct identity, so closures built in
// a loop are distinct functions. Copies of one Callback value share it.
type Callback struct {
	sync  func(in Inputs) (any, error)
	async func(in Inputs, done Done) error
	token uint64
}

var callbackSeq atomic.Uint64

// Sync wraps a function whose result is written to the output during the
// same digest pass. Returning ir.Undefined leaves the output untouched.
func Sync(fn func(in Inputs) (any, error)) Callback {
	return Callback{sync: fn, token: callbackSeq.Add(1)}
}

// Async wraps a function that completes later through done. Its result is
// only visible to dependents in a subsequent digest pass.
func Async(fn func(in Inputs, done Done) error) Callback {
	return Callback{async: fn, token: callbackSeq.Add(1)}
}

// Mode reports whether the callback is synchronous or asynchronous.
func (c Callback) Mode() ir.EvalMode {
	if c.async != nil {
		return ir.ModeAsync
	}
	return ir.ModeSync
}

// IsZero reports whether the callback wraps no function.
func (c Callback) IsZero() bool {
	return c.sync == nil && c.async == nil
}

// identity is the construction token of the callback. It is unique within
// the process but not stable across processes; bindings that need
// reproducible node ids set Binding.Name.
func (c Callback) identity() string {
	return fmt.Sprintf("%s#%d", c.Mode(), c.token)
}

// Binding declares one reactive function on a model.
type Binding struct {
	// Output is the property written by the function; empty for side effects.
	Output string

	// Inputs are property names of the same model, in callback order.
	Inputs []string

	Callback Callback

	// Name overrides the callback identity. Two bindings with the same
	// callback, inputs and output are the same function node unless their
	// names differ.
	Name string
}

// Record is the normalized form of a declared reactive function.
type Record struct {
	ID      string // function node id
	ModelID int64
	Output  string
	Inputs  []string
	Mode    ir.EvalMode
	Name    string // callback identity used for ID
}

// ParseInputs normalizes an input spec into an ordered list of names.
//
// Accepted shapes: nil or "" (no inputs), a comma-separated string such as
// "a, b" (names are trimmed, empty entries dropped), []string, or []any of
// strings. Names are not resolved here.
func ParseInputs(spec any) ([]string, error) {
	switch v := spec.(type) {
	case nil:
		return []string{}, nil
	case string:
		return splitInputs(v), nil
	case []string:
		return checkNames(v)
	case []any:
		names := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, &RuntimeError{
					Code:    ErrCodeInvalidBinding,
					Message: fmt.Sprintf("input %d is %T, want string", i, item),
				}
			}
			names = append(names, s)
		}
		return checkNames(names)
	default:
		return nil, &RuntimeError{
			Code:    ErrCodeInvalidBinding,
			Message: fmt.Sprintf("unsupported input spec %T", spec),
		}
	}
}

func splitInputs(s string) []string {
	names := []string{}
	for _, part := range strings.Split(s, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func checkNames(names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, &RuntimeError{
				Code:    ErrCodeInvalidBinding,
				Message: fmt.Sprintf("input %d is empty", i),
			}
		}
		out[i] = n
	}
	return out, nil
}

// Inputs are the values delivered to a reactive function, in declaration
// order. Inputs that name no assigned property are ir.Undefined.
type Inputs struct {
	names  []string
	values []any
}

// NewInputs pairs names with values. It is exported for callback unit tests.
func NewInputs(names []string, values []any) Inputs {
	return Inputs{names: names, values: values}
}

// Len returns the number of inputs.
func (in Inputs) Len() int { return len(in.values) }

// Values returns a copy of the input values.
func (in Inputs) Values() []any {
	out := make([]any, len(in.values))
	copy(out, in.values)
	return out
}

// Names returns a copy of the input names.
func (in Inputs) Names() []string {
	out := make([]string, len(in.names))
	copy(out, in.names)
	return out
}

// At returns the i-th value, or ir.Undefined when out of range.
func (in Inputs) At(i int) any {
	if i < 0 || i >= len(in.values) {
		return ir.Undefined
	}
	return in.values[i]
}

// Get returns the value of the named input, or ir.Undefined.
func (in Inputs) Get(name string) any {
	for i, n := range in.names {
		if n == name {
			return in.values[i]
		}
	}
	return ir.Undefined
}

// Defined reports whether every input has a value (nil counts as a value).
func (in Inputs) Defined() bool {
	for _, v := range in.values {
		if ir.IsUndefined(v) {
			return false
		}
	}
	return true
}

// Int returns the i-th value as an int. Floats are truncated; anything
// else is 0.
func (in Inputs) Int(i int) int {
	switch v := in.At(i).(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case uint64:
		return int(v)
	case float32:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Float returns the i-th value as a float64; non-numbers are 0.
func (in Inputs) Float(i int) float64 {
	switch v := in.At(i).(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	default:
		if isInteger(v) {
			return float64(in.Int(i))
		}
		return 0
	}
}

// String returns the i-th value if it is a string, its %v form for other
// defined non-nil values, and "" otherwise.
func (in Inputs) String(i int) string {
	v := in.At(i)
	switch s := v.(type) {
	case string:
		return s
	case nil, ir.UndefinedValue:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

// Bool returns the i-th value if it is a bool, false otherwise.
func (in Inputs) Bool(i int) bool {
	b, _ := in.At(i).(bool)
	return b
}

func isInteger(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}
