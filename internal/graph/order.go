package graph

import (
	"fmt"
	"slices"
	"strings"
)

// CycleError reports that no evaluation order exists because a cycle is
// reachable from the seeds.
type CycleError struct {
	// Path is one cycle through the graph, first node repeated at the end:
	// ["a", "b", "a"].
	Path []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " → "))
}

// Order returns every node reachable from seeds in dependency order: each
// node appears after all of its reachable predecessors. Nodes with no
// dependency relationship are ordered by id so the result is deterministic.
//
// Seeds that are not in the graph are ignored. The seeds themselves are part
// of the result.
func (g *Graph) Order(seeds []string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	reachable := g.reachableLocked(seeds)
	if len(reachable) == 0 {
		return []string{}, nil
	}

	// Kahn's algorithm restricted to the reachable subgraph
	indeg := make(map[string]int, len(reachable))
	for id := range reachable {
		n := 0
		for p := range g.in[id] {
			if _, ok := reachable[p]; ok {
				n++
			}
		}
		indeg[id] = n
	}

	var ready []string
	for id, d := range indeg {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	slices.Sort(ready)

	order := make([]string, 0, len(reachable))
	for len(ready) > 0 {
		v := ready[0]
		ready = ready[1:]
		order = append(order, v)

		for _, s := range sortedSet(g.out[v]) {
			if _, ok := reachable[s]; !ok {
				continue
			}
			indeg[s]--
			if indeg[s] == 0 {
				pos, _ := slices.BinarySearch(ready, s)
				ready = slices.Insert(ready, pos, s)
			}
		}
	}

	if len(order) < len(reachable) {
		stuck := make(map[string]struct{})
		for id, d := range indeg {
			if d > 0 {
				stuck[id] = struct{}{}
			}
		}
		return order, &CycleError{Path: g.cyclePathLocked(stuck)}
	}
	return order, nil
}

// Reachable returns every node reachable from seeds (seeds included), sorted.
func (g *Graph) Reachable(seeds []string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedSet(g.reachableLocked(seeds))
}

func (g *Graph) reachableLocked(seeds []string) map[string]struct{} {
	reachable := make(map[string]struct{})
	stack := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if _, ok := g.out[s]; ok {
			stack = append(stack, s)
		}
	}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := reachable[v]; seen {
			continue
		}
		reachable[v] = struct{}{}
		for s := range g.out[v] {
			if _, seen := reachable[s]; !seen {
				stack = append(stack, s)
			}
		}
	}
	return reachable
}
