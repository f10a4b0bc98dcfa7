package funcs

import (
	"strings"

	"github.com/roach88/rxmodel/internal/engine"
	"github.com/roach88/rxmodel/internal/ir"
)

func builtins() []Func {
	return []Func{
		static("identity", "first input unchanged", identity),
		static("increment", "first input plus one", increment),
		static("add", "sum of all inputs", add),
		static("sub", "first input minus the rest", sub),
		static("mul", "product of all inputs", mul),
		static("concat", "inputs joined as strings", concat),
		static("join", "inputs joined with a space", join),
		static("not", "boolean negation of the first input", not),
		static("noop", "side effect that writes nothing", noop),
		deferred("identity_async", "identity, completed on a later tick", func(in engine.Inputs) any {
			return in.At(0)
		}),
		deferred("increment_async", "increment, completed on a later tick", func(in engine.Inputs) any {
			v, _ := increment(in)
			return v
		}),
	}
}

func static(name, doc string, fn func(engine.Inputs) (any, error)) Func {
	cb := engine.Sync(fn)
	return Func{
		Name:  name,
		Mode:  ir.ModeSync,
		Doc:   doc,
		build: func(*engine.Engine) engine.Callback { return cb },
	}
}

// deferred wraps fn as an async callback whose done runs through the
// engine's deferrer.
func deferred(name, doc string, fn func(engine.Inputs) any) Func {
	return Func{
		Name: name,
		Mode: ir.ModeAsync,
		Doc:  doc,
		build: func(eng *engine.Engine) engine.Callback {
			return engine.Async(func(in engine.Inputs, done engine.Done) error {
				v := fn(in)
				eng.Defer(func() { done(v) })
				return nil
			})
		},
	}
}

func identity(in engine.Inputs) (any, error) {
	return in.At(0), nil
}

func increment(in engine.Inputs) (any, error) {
	if isFloat(in.At(0)) {
		return in.Float(0) + 1, nil
	}
	return in.Int(0) + 1, nil
}

func add(in engine.Inputs) (any, error) {
	return fold(in, func(a, b int) int { return a + b }, func(a, b float64) float64 { return a + b }), nil
}

func sub(in engine.Inputs) (any, error) {
	return fold(in, func(a, b int) int { return a - b }, func(a, b float64) float64 { return a - b }), nil
}

func mul(in engine.Inputs) (any, error) {
	if in.Len() == 0 {
		return 1, nil
	}
	return fold(in, func(a, b int) int { return a * b }, func(a, b float64) float64 { return a * b }), nil
}

func concat(in engine.Inputs) (any, error) {
	var b strings.Builder
	for i := 0; i < in.Len(); i++ {
		b.WriteString(in.String(i))
	}
	return b.String(), nil
}

func join(in engine.Inputs) (any, error) {
	parts := make([]string, in.Len())
	for i := range parts {
		parts[i] = in.String(i)
	}
	return strings.Join(parts, " "), nil
}

func not(in engine.Inputs) (any, error) {
	return !in.Bool(0), nil
}

func noop(engine.Inputs) (any, error) {
	return ir.Undefined, nil
}

// fold combines the inputs left to right. Integer inputs stay integers;
// any float input switches the whole fold to float64. Non-numbers count as
// 0 and no inputs yield 0.
func fold(in engine.Inputs, fi func(a, b int) int, ff func(a, b float64) float64) any {
	if in.Len() == 0 {
		return 0
	}
	for i := 0; i < in.Len(); i++ {
		if !isFloat(in.At(i)) {
			continue
		}
		acc := in.Float(0)
		for j := 1; j < in.Len(); j++ {
			acc = ff(acc, in.Float(j))
		}
		return acc
	}
	acc := in.Int(0)
	for j := 1; j < in.Len(); j++ {
		acc = fi(acc, in.Int(j))
	}
	return acc
}

func isFloat(v any) bool {
	switch v.(type) {
	case float32, float64:
		return true
	}
	return false
}
