package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/rxmodel/internal/graph"
	"github.com/roach88/rxmodel/internal/ir"
)

// CycleWarning reports a dependency cycle found by static analysis.
//
// The engine rejects a cyclic binding when it is declared, so Level is
// "error" for every cycle a model would hit at instantiation.
type CycleWarning struct {
	Model   string   `json:"model"`
	Path    []string `json:"path"`    // e.g. ["a", "#b", "b", "#a", "a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`
}

// AnalyzeCycles performs static cycle analysis on model specs.
//
// Each model gets its own dependency graph shaped like the engine's:
// property node -> function node -> output property node. Function nodes
// are written "#label". Every strongly connected component becomes one
// warning with a readable cycle path.
//
// An acyclic model set returns an empty warning list.
func AnalyzeCycles(specs []*ir.ModelSpec) []CycleWarning {
	warnings := []CycleWarning{}

	for _, spec := range specs {
		g := buildModelGraph(spec)
		for _, path := range g.FindCycles() {
			warnings = append(warnings, CycleWarning{
				Model:   spec.Name,
				Path:    path,
				Message: fmt.Sprintf("model %s: dependency cycle %s", spec.Name, strings.Join(path, " → ")),
				Level:   "error",
			})
		}
	}

	return warnings
}

func buildModelGraph(spec *ir.ModelSpec) *graph.Graph {
	g := graph.New()
	for _, p := range spec.Properties {
		g.AddNode(p.Name)
	}
	for _, b := range spec.Bindings {
		fn := "#" + b.Label
		g.AddNode(fn)
		for _, in := range b.Inputs {
			if in = strings.TrimSpace(in); in != "" {
				g.AddEdge(in, fn)
			}
		}
		if b.Output != "" {
			g.AddEdge(fn, b.Output)
		}
	}
	return g
}
