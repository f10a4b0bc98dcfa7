// Package store provides a SQLite-backed digest trace for rxmodel engines.
//
// The store is an append-only log with two tables:
//   - digests: one row per digest pass (seq, trigger, dirty and evaluated
//     counts, abort error)
//   - evaluations: one row per reactive function invocation, plus one row
//     per applied asynchronous completion
//
// *Store implements engine.Recorder, so it can be passed to
// engine.WithRecorder directly.
//
// # Ordering
//
// All ordering uses logical counters, never timestamps. Digest records are
// keyed by (run_id, seq); every row also carries a store-wide position so a
// run can be read back exactly in the order it was recorded (see Timeline).
//
// # Database Configuration
//
//   - One open connection, which keeps ":memory:" databases shared
//   - WAL mode for file databases
//   - synchronous=NORMAL
//   - busy_timeout=5000
package store
