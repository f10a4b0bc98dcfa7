package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rxmodel/internal/compiler"
	"github.com/roach88/rxmodel/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update   bool   // regenerate golden files
	Filter   string // scenario filter (glob pattern)
	BasePath string // directory relative spec paths resolve against
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "updated" or "" when there is no golden file
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-path>...",
		Short: "Run scenario files through the harness",
		Long: `Run YAML scenarios against their models and check step expectations,
assertions and, when one exists, the golden trace next to the scenario
(golden/<file>.golden).

Relative spec paths in a scenario resolve against the scenario's own
directory unless --models is given.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  rxmodel test ./scenarios
  rxmodel test ./scenarios --filter "pricing*"
  rxmodel test ./scenarios/pricing_chain.yaml --update
  rxmodel test ./scenarios --models ./models --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.BasePath, "models", "", "directory relative spec paths resolve against")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	var files []string
	for _, p := range paths {
		found, err := findScenarioFiles(p, opts.Filter)
		if err != nil {
			return f.Fail(ExitCommandError, compiler.ErrCodeNotFound, err.Error())
		}
		files = append(files, found...)
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	if len(files) == 0 {
		if f.JSON() {
			return f.Success(result)
		}
		fmt.Fprintln(f.Writer, "No scenarios found.")
		return nil
	}

	for _, file := range files {
		sr := runScenario(file, opts)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		if !f.JSON() {
			printScenarioResult(f, sr)
		}
	}

	if f.JSON() {
		return outputTestJSON(f, result)
	}
	return outputTestText(f, result)
}

// findScenarioFiles returns path itself if it is a file, or every YAML file
// under it if it is a directory. Golden directories are skipped.
func findScenarioFiles(path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("scenario path not found: %s", path)
	}
	if !info.IsDir() {
		return filterScenario(nil, path, filter)
	}

	var files []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		files, err = filterScenario(files, p, filter)
		return err
	})
	return files, err
}

func filterScenario(files []string, path, filter string) ([]string, error) {
	if filter == "" {
		return append(files, path), nil
	}
	base := filepath.Base(path)
	matched, err := filepath.Match(filter, strings.TrimSuffix(base, filepath.Ext(base)))
	if err != nil {
		return nil, fmt.Errorf("invalid filter pattern: %w", err)
	}
	if matched {
		files = append(files, path)
	}
	return files, nil
}

// runScenario loads and executes one scenario file.
func runScenario(file string, opts *TestOptions) ScenarioResult {
	sr := ScenarioResult{Name: filepath.Base(file), File: file}

	var (
		scenario *harness.Scenario
		err      error
	)
	if opts.BasePath != "" {
		scenario, err = harness.LoadScenarioWithBasePath(file, opts.BasePath)
	} else {
		scenario, err = harness.LoadScenario(file)
	}
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return sr
	}
	sr.Name = scenario.Name

	result, err := harness.Run(scenario)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return sr
	}
	sr.Errors = result.Errors

	data, err := harness.Snapshot(scenario, result)
	if err != nil {
		sr.Errors = append(sr.Errors, fmt.Sprintf("failed to render trace: %v", err))
		return sr
	}

	goldenPath := goldenFilePath(file)
	if opts.Update {
		if err := writeGolden(goldenPath, data); err != nil {
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to update golden file: %v", err))
			return sr
		}
		sr.Golden = "updated"
	} else if want, err := os.ReadFile(goldenPath); err == nil {
		if !bytes.Equal(want, data) {
			sr.Errors = append(sr.Errors, "trace does not match golden file (run with --update to regenerate)")
		} else {
			sr.Golden = "match"
		}
	} else if !os.IsNotExist(err) {
		sr.Errors = append(sr.Errors, fmt.Sprintf("failed to read golden file: %v", err))
	}

	sr.Pass = len(sr.Errors) == 0
	return sr
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func printScenarioResult(f *OutputFormatter, sr ScenarioResult) {
	w := f.Writer
	if sr.Pass {
		if sr.Golden == "updated" {
			fmt.Fprintf(w, "✓ %s (golden updated)\n", sr.Name)
			return
		}
		fmt.Fprintf(w, "✓ %s\n", sr.Name)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", sr.Name)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", strings.TrimRight(strings.ReplaceAll(e, "\n", "\n  "), " "))
	}
}

func outputTestJSON(f *OutputFormatter, result TestResult) error {
	resp := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		resp.Status = "error"
		resp.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}
	if err := f.encode(resp); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

func outputTestText(f *OutputFormatter, result TestResult) error {
	w := f.Writer
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
