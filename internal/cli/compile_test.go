package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxmodel/internal/ir"
)

func TestCompileText(t *testing.T) {
	out, err := execute(t, "compile", pricingModel)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Compiled 1 model(s): 2 properties, 2 reactive, 0 effects")
	assert.Contains(t, out, "  property price = 10 (exposed)\n")
	assert.Contains(t, out, "  reactive subtotal = mul(price, qty)\n")
	assert.Contains(t, out, "  reactive total = increment(subtotal)\n")
}

func TestCompileEffect(t *testing.T) {
	path := writeModel(t, `model: m: {
	property: a: {}
	effect: log: {fn: "noop", inputs: "a"}
}`)
	out, err := execute(t, "compile", path)
	require.NoError(t, err)
	assert.Contains(t, out, "1 properties, 0 reactive, 1 effects")
	assert.Contains(t, out, "  property a\n")
	assert.Contains(t, out, "  effect   log = noop(a)\n")
}

func TestCompileJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "compile", modelsDir)
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Models, 2)

	names := []string{resp.Data.Models[0].Name, resp.Data.Models[1].Name}
	assert.ElementsMatch(t, []string{"counter", "pricing"}, names)
}

func TestCompileOutputFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "ir.json")
	out, err := execute(t, "compile", pricingModel, "-o", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "Output written to: "+dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)

	var result CompilationResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Models, 1)
	assert.Equal(t, "pricing", result.Models[0].Name)
	assert.Equal(t, []string{"price", "qty"}, result.Models[0].Bindings[0].Inputs)
}

func TestCompileOutputFileUnwritable(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "missing", "ir.json")
	out, err := execute(t, "compile", pricingModel, "-o", dest)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeWriteFailed)
}

func TestCalculateStats(t *testing.T) {
	stats := calculateStats(&CompilationResult{Models: []*ir.ModelSpec{
		{
			Name:       "a",
			Properties: []ir.PropertySpec{{Name: "x"}, {Name: "y"}},
			Bindings:   []ir.BindingSpec{{Label: "y", Output: "y", Func: "identity", Inputs: []string{"x"}}},
		},
		{
			Name:     "b",
			Bindings: []ir.BindingSpec{{Label: "log", Func: "noop", Inputs: []string{"x"}}},
		},
	}})
	assert.Equal(t, CompilationStats{ModelCount: 2, PropertyCount: 2, ReactiveCount: 1, EffectCount: 1}, stats)
}

func TestDescribeProperty(t *testing.T) {
	assert.Equal(t, "", describeProperty(ir.PropertySpec{Name: "a"}))
	assert.Equal(t, " = null", describeProperty(ir.PropertySpec{Name: "a", HasDefault: true}))
	assert.Equal(t, ` = "x" (exposed)`, describeProperty(ir.PropertySpec{Name: "a", Default: "x", HasDefault: true, Expose: true}))
}
