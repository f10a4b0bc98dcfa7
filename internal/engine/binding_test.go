package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxmodel/internal/ir"
)

func TestParseInputs(t *testing.T) {
	tests := []struct {
		name string
		spec any
		want []string
	}{
		{"nil", nil, []string{}},
		{"empty string", "", []string{}},
		{"single", "a", []string{"a"}},
		{"comma separated", "a, b,c", []string{"a", "b", "c"}},
		{"drops empties", " a,, b ,", []string{"a", "b"}},
		{"string slice", []string{"x", " y "}, []string{"x", "y"}},
		{"any slice", []any{"p", "q"}, []string{"p", "q"}},
		{"empty slice", []string{}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInputs(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInputs_Invalid(t *testing.T) {
	tests := []struct {
		name string
		spec any
	}{
		{"number", 42},
		{"map", map[string]any{"a": 1}},
		{"non-string element", []any{"a", 1}},
		{"empty element", []string{"a", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInputs(tt.spec)
			require.Error(t, err)
			assert.Equal(t, ErrCodeInvalidBinding, ErrorCode(err))
		})
	}
}

func TestCallbackMode(t *testing.T) {
	assert.Equal(t, ir.ModeSync, increment.Mode())
	async := Async(func(in Inputs, done Done) error { return nil })
	assert.Equal(t, ir.ModeAsync, async.Mode())
	assert.True(t, Callback{}.IsZero())
	assert.False(t, async.IsZero())
}

func TestCallbackIdentity(t *testing.T) {
	mk := func(n int) Callback {
		return Sync(func(in Inputs) (any, error) { return n, nil })
	}
	a, b := mk(1), mk(2)
	assert.NotEqual(t, a.identity(), b.identity(), "each construction is distinct")
	assert.NotEqual(t, increment.identity(), add.identity())

	copied := a
	assert.Equal(t, a.identity(), copied.identity(), "copies share the identity")

	async := Async(func(Inputs, Done) error { return nil })
	assert.Contains(t, async.identity(), "async#")
}

func TestInputsAccessors(t *testing.T) {
	in := NewInputs(
		[]string{"i", "f", "s", "b", "n", "u"},
		[]any{int64(3), 2.5, "hi", true, nil, ir.Undefined},
	)

	assert.Equal(t, 6, in.Len())
	assert.Equal(t, 3, in.Int(0))
	assert.Equal(t, 2, in.Int(1), "floats truncate")
	assert.Equal(t, 3.0, in.Float(0))
	assert.Equal(t, 2.5, in.Float(1))
	assert.Equal(t, "hi", in.String(2))
	assert.Equal(t, "3", in.String(0))
	assert.Equal(t, "", in.String(4))
	assert.Equal(t, "", in.String(5))
	assert.True(t, in.Bool(3))
	assert.False(t, in.Bool(2))

	assert.Equal(t, "hi", in.Get("s"))
	assert.True(t, ir.IsUndefined(in.Get("missing")))
	assert.True(t, ir.IsUndefined(in.At(99)))
	assert.True(t, ir.IsUndefined(in.At(-1)))
	assert.Nil(t, in.At(4))
	assert.False(t, in.Defined(), "one input is undefined")
	assert.Equal(t, []string{"i", "f", "s", "b", "n", "u"}, in.Names())
}

func TestInputsValuesIsCopy(t *testing.T) {
	in := NewInputs([]string{"a"}, []any{1})
	vals := in.Values()
	vals[0] = 99
	assert.Equal(t, 1, in.At(0))
}
