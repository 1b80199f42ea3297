// Package store keeps finished sweeps in SQLite so they can be listed,
// compared and replayed.
//
// A sweep row holds everything needed to run it again: the protocol source,
// its content hash and the sweep parameters. Each p value's aggregated
// result is a row in results, stored as canonical JSON. results_hash covers
// all of them, so a replay is bit-identical exactly when the hashes match.
//
// # Determinism
//
//   - Sweeps are ordered by seq (insertion order), then id, never by time
//   - Ids are UUIDv7 by default; tests inject a fixed IDGenerator
//   - Results are serialized with ir.MarshalCanonical (RFC 8785 key order)
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
