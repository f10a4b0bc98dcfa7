package funcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxmodel/internal/engine"
	"github.com/roach88/rxmodel/internal/ir"
)

func inputs(values ...any) engine.Inputs {
	names := make([]string, len(values))
	for i := range names {
		names[i] = string(rune('a' + i))
	}
	return engine.NewInputs(names, values)
}

func TestBuiltins(t *testing.T) {
	tests := []struct {
		name string
		fn   func(engine.Inputs) (any, error)
		in   []any
		want any
	}{
		{"identity", identity, []any{"x"}, "x"},
		{"identity/none", identity, nil, ir.Undefined},
		{"increment/int", increment, []any{5}, 6},
		{"increment/float", increment, []any{1.5}, 2.5},
		{"increment/undefined", increment, []any{ir.Undefined}, 1},
		{"add/ints", add, []any{1, 2, 3}, 6},
		{"add/mixed", add, []any{1, 0.5}, 1.5},
		{"add/none", add, nil, 0},
		{"add/one", add, []any{7}, 7},
		{"sub", sub, []any{10, 3, 2}, 5},
		{"sub/none", sub, nil, 0},
		{"mul", mul, []any{10, 2}, 20},
		{"mul/one", mul, []any{4}, 4},
		{"mul/none", mul, nil, 1},
		{"mul/float", mul, []any{2, 1.5}, 3.0},
		{"concat", concat, []any{"a", 1, "b"}, "a1b"},
		{"concat/undefined", concat, []any{"a", ir.Undefined}, "a"},
		{"join", join, []any{"hello", "world"}, "hello world"},
		{"not/true", not, []any{true}, false},
		{"not/nonbool", not, []any{"x"}, true},
		{"noop", noop, []any{1}, ir.Undefined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(inputs(tt.in...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultLibraryNames(t *testing.T) {
	assert.Equal(t, []string{
		"add", "concat", "identity", "identity_async", "increment", "increment_async",
		"join", "mul", "noop", "not", "sub",
	}, Default().Names())
}

func TestDefaultLibraryModes(t *testing.T) {
	lib := Default()
	for _, name := range lib.Names() {
		f, ok := lib.Lookup(name)
		require.True(t, ok)
		cb, err := lib.Resolve(engine.New(), name)
		require.NoError(t, err)
		assert.Equal(t, f.Mode, cb.Mode(), name)
		assert.NotEmpty(t, f.Doc, name)
	}
}
