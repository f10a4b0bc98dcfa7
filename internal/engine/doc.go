// Package engine implements reactive models over a shared dependency graph.
//
// An Engine owns one graph.Graph. Every Model created from the engine puts
// its property nodes and reactive function nodes into that graph, so
// propagation is global across models of the same engine and isolated
// between engines.
//
// ARCHITECTURE:
//
// Digest passes:
// Property writes mark nodes dirty and arm a digest. Arms coalesce: while a
// digest is scheduled, further writes join it. A pass:
//  1. takes the dirty set and the newly declared functions as seeds
//  2. orders every node reachable from the seeds (graph.Order)
//  3. evaluates each triggered function in that order; a synchronous result
//     is written immediately, so one pass propagates any number of hops
//  4. notifies every listener exactly once with its delta
//
// Asynchronous functions complete through Done. Their results are written
// between passes and always arm a new digest; they are never folded into
// the pass that started them.
//
// Scheduling:
// Scheduled digests run through a Deferrer. AfterFunc gives "next tick"
// behavior, Loop runs deferred tasks in one goroutine, and tests use a
// manual deferrer so "later" is explicit. Engine.Digest runs a pass now.
//
// Determinism:
// Passes are numbered by a logical Clock. Ties in evaluation order break
// by node id, models are notified by id, listeners by registration order.
// Node ids are content-derived (see ir.FunctionNode), so the same program
// produces the same trace.
package engine
