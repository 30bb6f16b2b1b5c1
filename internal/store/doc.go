// Package store provides the SQLite session journal.
//
// The journal is append-only:
//   - sessions: one row per engine session, closed with its summary
//   - modules: module lifecycle changes with source digests
//   - attempts: every rule set attempt and its outcome
//   - diagnostics: every attributed failure and warning
//
// # Critical Patterns
//
// Logical time:
// Rows are ordered by the engine's seq numbers, never timestamps, so two
// journals of the same replay compare equal.
//
// Idempotency:
// Every insert uses ON CONFLICT DO NOTHING keyed on (session_id, seq), so a
// re-delivered row is silently ignored.
//
// Deterministic reads:
// Every query ends in ORDER BY seq ASC.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
