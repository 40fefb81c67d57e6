// Package store provides SQLite-backed durable storage for swizzle runs.
//
// The store is an append-only journal with:
//   - Runs: one row per engine run, tied to the program hash
//   - Interceptions: applied interception records, one per (run, class, original)
//   - Trace events: install/send/log/return events in logical-clock order
//
// # Critical Patterns
//
// Idempotent writes
//   - Every insert uses ON CONFLICT DO NOTHING
//   - Re-journaling an event or record is a silent no-op
//
// Logical time
//   - All ordering uses seq INTEGER (logical clock), NEVER timestamps
//
// Deterministic query results
//   - All queries MUST include: ORDER BY seq ASC, id ASC COLLATE BINARY
//   - Runs are listed by id; UUIDv7 run IDs sort by creation time
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Argument and value columns hold RFC 8785 canonical JSON from
// internal/ir/canonical.go.
package store
