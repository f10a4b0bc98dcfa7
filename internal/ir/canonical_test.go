package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalScalars(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, `null`},
		{"undefined", Undefined, `null`},
		{"string", "hello", `"hello"`},
		{"true", true, `true`},
		{"int", 42, `42`},
		{"int64", int64(-7), `-7`},
		{"float integral", 6.0, `6`},
		{"float fraction", 1.5, `1.5`},
		{"html not escaped", "<a&b>", `"<a&b>"`},
		{"line separator literal", "a\u2028b", "\"a\u2028b\""},
		{"escaped backslash kept", `\u2028`, `"\\u2028"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonicalSortsKeys(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"b": 1,
		"a": []any{"x", 2, nil},
		"c": map[string]any{"z": true, "y": false},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x",2,null],"b":1,"c":{"y":false,"z":true}}`, string(got))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	decomposed := "e\u0301"
	got, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshalCanonicalRejects(t *testing.T) {
	for _, v := range []any{math.NaN(), math.Inf(1), struct{}{}, []any{make(chan int)}} {
		_, err := MarshalCanonical(v)
		assert.Error(t, err)
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(nil, nil))
	assert.True(t, Equal(5, 5))
	assert.False(t, Equal(5, int64(5)), "types must match")
	assert.False(t, Equal(nil, Undefined))
	assert.True(t, Equal(Undefined, Undefined))
	assert.True(t, Equal([]any{1, "a"}, []any{1, "a"}))
	assert.True(t, Equal(map[string]any{"k": 1}, map[string]any{"k": 1}))
	assert.False(t, Equal(map[string]any{"k": 1}, map[string]any{"k": 2}))
}

func TestIsUndefined(t *testing.T) {
	assert.True(t, IsUndefined(Undefined))
	assert.False(t, IsUndefined(nil))
	assert.False(t, IsUndefined(0))
	assert.Equal(t, "undefined", Undefined.String())
}
