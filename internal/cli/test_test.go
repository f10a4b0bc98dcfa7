package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// copyScenario copies name from the shared scenarios into a temp dir. Its
// relative spec paths still need --models pointing at the original dir.
func copyScenario(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(scenariosDir, name))
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestTestCommandScenarios(t *testing.T) {
	out, err := execute(t, "test", scenariosDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Test Summary: 3 passed, 0 failed, 3 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandFilter(t *testing.T) {
	out, err := execute(t, "test", scenariosDir, "--filter", "pricing*")
	require.NoError(t, err)
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommandGoldenLifecycle(t *testing.T) {
	path := copyScenario(t, "pricing_chain.yaml")
	models, err := filepath.Abs(scenariosDir)
	require.NoError(t, err)
	golden := goldenFilePath(path)

	out, err := execute(t, "test", path, "--models", models, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "(golden updated)")
	assert.FileExists(t, golden)

	out, err = execute(t, "--format", "json", "test", path, "--models", models)
	require.NoError(t, err)
	assert.Contains(t, out, `"golden": "match"`)

	require.NoError(t, os.WriteFile(golden, []byte("{}\n"), 0o644))
	out, err = execute(t, "test", path, "--models", models)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommandBrokenScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [\n"), 0o644))

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommandMissingPath(t *testing.T) {
	_, err := execute(t, "test", "/does/not/exist")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandNoScenarios(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml", "notes.txt", "golden/a.golden", "golden/x.yaml", "nested/c.yaml"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "b.yml"),
		filepath.Join(dir, "nested", "c.yaml"),
	}, files)

	files, err = findScenarioFiles(dir, "c")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "nested", "c.yaml")}, files)

	files, err = findScenarioFiles(filepath.Join(dir, "a.yaml"), "")
	require.NoError(t, err)
	assert.Len(t, files, 1)

	_, err = findScenarioFiles(dir, "[")
	assert.Error(t, err)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("s", "golden", "pricing.golden"), goldenFilePath(filepath.Join("s", "pricing.yaml")))
}
