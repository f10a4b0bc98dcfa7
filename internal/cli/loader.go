package cli

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rxmodel/internal/compiler"
	"github.com/roach88/rxmodel/internal/funcs"
	"github.com/roach88/rxmodel/internal/ir"
)

// CLI-only error codes. Load codes (E001-E008) come from the compiler.
const (
	ErrCodeWriteFailed = "E007" // output file write error
	ErrCodeBadFlag     = "E009" // malformed flag value
)

// loadModels compiles the CUE models at paths. A failure is printed and
// returned as a command error.
func loadModels(f *OutputFormatter, paths []string) (*compiler.LoadResult, error) {
	res, err := compiler.LoadPaths(paths)
	if err != nil {
		return nil, loadFailure(f, err)
	}
	f.VerboseLog("Loaded %d model(s) from %d CUE file(s)", len(res.Models), res.FileCount)
	return res, nil
}

// prepareModels loads models and rejects any that fail validation against
// lib, so nothing is instantiated from an invalid set.
func prepareModels(f *OutputFormatter, paths []string, lib *funcs.Library) ([]*ir.ModelSpec, error) {
	res, err := loadModels(f, paths)
	if err != nil {
		return nil, err
	}
	if errs := compiler.Validate(res.Models, lib); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, f.Fail(ExitCommandError, errs[0].Code, strings.Join(msgs, "; "))
	}
	return res.Models, nil
}

func loadFailure(f *OutputFormatter, err error) error {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		_ = f.Error(loadErr.Code, loadErr.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load models", err)
	}
	_ = f.Error(compiler.ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, "failed to load models", err)
}

// Assignment is one parsed --set flag.
type Assignment struct {
	Model    string
	Property string
	Value    any
}

// parseAssignment parses "model.prop=value". The value is decoded as a
// YAML scalar or flow collection, so 3 is an int, 2.5 a float, true a bool
// and [1, 2] a list; anything else is a string.
func parseAssignment(s string) (Assignment, error) {
	ref, raw, ok := strings.Cut(s, "=")
	if !ok {
		return Assignment{}, fmt.Errorf("--set %q: want model.prop=value", s)
	}
	model, prop, ok := strings.Cut(strings.TrimSpace(ref), ".")
	if !ok || model == "" || prop == "" {
		return Assignment{}, fmt.Errorf("--set %q: reference must be model.prop", s)
	}

	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return Assignment{}, fmt.Errorf("--set %q: %w", s, err)
	}
	return Assignment{Model: model, Property: prop, Value: v}, nil
}

func parseAssignments(f *OutputFormatter, flags []string) ([]Assignment, error) {
	out := make([]Assignment, 0, len(flags))
	for _, s := range flags {
		a, err := parseAssignment(s)
		if err != nil {
			return nil, f.Fail(ExitCommandError, ErrCodeBadFlag, err.Error())
		}
		out = append(out, a)
	}
	return out, nil
}
