// Package diag is the diagnostics and isolation layer of the patch engine.
//
// Every failure the engine can localize becomes a Diagnostic attributed to
// the collaborator (owner) that registered the failing rule set or lazy
// request. Reporting a diagnostic never returns an error to the host: it is
// logged through slog, fanned out to sinks, and kept for the session report.
//
// Isolation has two parts:
//   - Guard runs collaborator callbacks (predicates, replacement functions,
//     selectors, waiters) under recover and converts panics to diagnostics.
//   - Disable/Disabled track which owners failed against which module, so
//     the scheduler and resolver can skip that owner's remaining work on
//     that module for the rest of the session.
//
// The layer is single-threaded like the rest of the engine; it performs no
// locking.
package diag
