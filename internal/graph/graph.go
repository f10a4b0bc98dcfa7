package graph

import (
	"slices"
	"sync"
)

// Graph is an in-memory directed graph over string node ids.
type Graph struct {
	mu  sync.RWMutex
	out map[string]map[string]struct{} // Key: node ID, Value: set of successor IDs
	in  map[string]map[string]struct{} // Key: node ID, Value: set of predecessor IDs
}

// New creates a new, empty graph.
func New() *Graph {
	return &Graph{
		out: make(map[string]map[string]struct{}),
		in:  make(map[string]map[string]struct{}),
	}
}

// AddNode inserts a node with no edges. Adding an existing node is a no-op.
func (g *Graph) AddNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNodeLocked(id)
}

func (g *Graph) addNodeLocked(id string) {
	if _, exists := g.out[id]; exists {
		return
	}
	g.out[id] = make(map[string]struct{})
	g.in[id] = make(map[string]struct{})
}

// AddEdge records the directed edge from → to, inserting both endpoints if
// absent. Adding the same edge twice is idempotent.
func (g *Graph) AddEdge(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.addNodeLocked(from)
	g.addNodeLocked(to)
	g.out[from][to] = struct{}{}
	g.in[to][from] = struct{}{}
}

// HasNode reports whether the node exists.
func (g *Graph) HasNode(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.out[id]
	return ok
}

// HasEdge reports whether the edge from → to exists.
func (g *Graph) HasEdge(from, to string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.out[from][to]
	return ok
}

// Successors returns the nodes directly fed by id, sorted.
// Returns an empty slice for unknown nodes.
func (g *Graph) Successors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedSet(g.out[id])
}

// Predecessors returns the nodes id directly depends on, sorted.
// Returns an empty slice for unknown nodes.
func (g *Graph) Predecessors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedSet(g.in[id])
}

// RemoveNode deletes the node and every edge touching it.
// Removing an unknown node is a no-op.
func (g *Graph) RemoveNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	succ, ok := g.out[id]
	if !ok {
		return
	}
	for s := range succ {
		delete(g.in[s], id)
	}
	for p := range g.in[id] {
		delete(g.out[p], id)
	}
	delete(g.out, id)
	delete(g.in, id)
}

// Nodes returns every node id, sorted.
func (g *Graph) Nodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]string, 0, len(g.out))
	for id := range g.out {
		nodes = append(nodes, id)
	}
	slices.Sort(nodes)
	return nodes
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.out)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := 0
	for _, succ := range g.out {
		n += len(succ)
	}
	return n
}

func sortedSet(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
