// Package graph provides the directed dependency graph shared by every model
// of an engine.
//
// The graph is a pure adjacency structure over opaque string node ids. It
// knows nothing about models, properties or reactive functions; callers are
// responsible for namespacing ids (see ir.PropertyNode and ir.FunctionNode)
// and for removing their own nodes.
//
// An edge u → v means "v depends on u". Edges are deduplicated: adding the
// same edge twice is a no-op.
//
// # Evaluation order
//
// Order computes a topological order of every node reachable from a set of
// seed nodes. In-degrees are counted only from reachable predecessors, so a
// node is emitted after all of its reachable inputs regardless of path
// length. Diamond shapes (two paths from one root converging on one node)
// therefore emit the converging node exactly once, after both paths.
//
// If a cycle is reachable from a seed no valid order exists; Order returns a
// *CycleError carrying one cycle path instead of looping or guessing.
//
// # Thread-Safety
//
// All methods are safe for concurrent use (sync.RWMutex). Snapshots returned
// by Predecessors, Successors and Nodes are copies owned by the caller.
package graph
