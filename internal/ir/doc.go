// Package ir provides the shared value and identity types for rxmodel.
//
// This package contains type definitions and pure functions only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Graph node identifiers are opaque strings produced here and nowhere else
//   - Property node ids are "<model>.<name>"; function node ids are "fn:<sha256>"
//   - An unassigned property value is Undefined, which is distinct from nil
//   - Canonical JSON (RFC 8785 subset) is the only serialization used for hashing
//     and for recorded traces, so identical inputs give byte-identical output
package ir
