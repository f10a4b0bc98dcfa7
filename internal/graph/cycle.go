package graph

import "slices"

// FindCycles returns one cycle path for every strongly connected component
// that contains a cycle (size > 1, or a single node with a self-loop).
//
// The algorithm:
//  1. Run Tarjan's algorithm over the whole graph
//  2. Keep each SCC with more than one node, or a self-loop
//  3. Reconstruct a concrete path through each kept SCC
//
// An acyclic graph returns an empty list. Paths repeat their first node at
// the end: ["a", "b", "a"].
func (g *Graph) FindCycles() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var cycles [][]string
	for _, scc := range g.tarjanLocked(nil) {
		if path := g.sccPathLocked(scc); path != nil {
			cycles = append(cycles, path)
		}
	}
	return cycles
}

// CycleThrough returns a cycle path starting and ending at id, or nil when id
// is not on any cycle.
//
// Only nodes reachable from id are visited: a depth-first search over
// successors, in sorted order, that stops at the first edge back to id.
func (g *Graph) CycleThrough(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.out[id]; !ok {
		return nil
	}
	visited := make(map[string]struct{})
	path := []string{id}

	var walk func(node string) bool
	walk = func(node string) bool {
		for _, next := range sortedSet(g.out[node]) {
			if next == id {
				path = append(path, id)
				return true
			}
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			path = append(path, next)
			if walk(next) {
				return true
			}
			path = path[:len(path)-1]
		}
		return false
	}

	if walk(id) {
		return path
	}
	return nil
}

// cyclePathLocked returns one cycle inside the given node set.
// The set must contain at least one cycle (Order guarantees this).
func (g *Graph) cyclePathLocked(within map[string]struct{}) []string {
	for _, scc := range g.tarjanLocked(within) {
		if path := g.sccPathLocked(scc); path != nil {
			return path
		}
	}
	return nil
}

// sccPathLocked converts an SCC into a concrete cycle path, or nil if the SCC
// is a single node without a self-loop.
//
// Strategy: start at the first node, follow edges to unvisited SCC members,
// and close the path once an edge back to the start exists.
func (g *Graph) sccPathLocked(scc []string) []string {
	if len(scc) == 0 {
		return nil
	}
	start := scc[0]
	if len(scc) == 1 {
		if _, self := g.out[start][start]; self {
			return []string{start, start}
		}
		return nil
	}

	members := make(map[string]bool, len(scc))
	for _, id := range scc {
		members[id] = true
	}

	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for {
		succ := sortedSet(g.out[current])
		if len(path) > 1 && slices.Contains(succ, start) {
			return append(path, start)
		}
		next := ""
		for _, s := range succ {
			if members[s] && !visited[s] {
				next = s
				break
			}
		}
		if next == "" {
			// Dead end inside the SCC: every SCC member reaches start, so
			// close through the shortest route back.
			return append(path, g.shortestPathLocked(current, start, members)[1:]...)
		}
		visited[next] = true
		path = append(path, next)
		current = next
	}
}

// shortestPathLocked finds a path from → to using only member nodes (BFS).
func (g *Graph) shortestPathLocked(from, to string, members map[string]bool) []string {
	prev := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, s := range sortedSet(g.out[v]) {
			if !members[s] {
				continue
			}
			if s == to {
				path := []string{to}
				for at := v; at != ""; at = prev[at] {
					path = append(path, at)
				}
				slices.Reverse(path)
				return path
			}
			if _, seen := prev[s]; !seen {
				prev[s] = v
				queue = append(queue, s)
			}
		}
	}
	return []string{from, to}
}

// tarjanLocked finds strongly connected components using Tarjan's algorithm.
// When within is non-nil only those nodes and the edges between them are
// considered. Nodes are visited in id order so results are deterministic.
func (g *Graph) tarjanLocked(within map[string]struct{}) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	include := func(id string) bool {
		if within == nil {
			return true
		}
		_, ok := within[id]
		return ok
	}

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range sortedSet(g.out[v]) {
			if !include(w) {
				continue
			}
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack and emit an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(g.out))
	for id := range g.out {
		if include(id) {
			nodes = append(nodes, id)
		}
	}
	slices.Sort(nodes)
	for _, id := range nodes {
		if _, visited := indices[id]; !visited {
			strongConnect(id)
		}
	}
	return sccs
}
