// Package engine implements the patch scheduler and the registry that
// collaborators register rule sets and lazy requests against.
//
// ARCHITECTURE:
//
// Explicit registry:
// An Engine is a constructible object, not a process-wide singleton. Init
// begins a session and Teardown ends it, so tests build isolated instances.
//
// Loader hooks:
// The host loader drives the engine through ModuleSourceAvailable (before a
// module executes) and ModuleInstantiated (after). Both run synchronously in
// the caller's goroutine and never return an error or panic into the host.
//
// Scheduling:
//  1. The module's source is indexed.
//  2. Rule sets are visited in registration order. Each one passes a cheap
//     literal signature check on the current text before any rule runs.
//  3. The predicate, if any, runs under recover.
//  4. The rule engine rewrites the running text; a success is committed so
//     later rule sets see the cumulative text, a failure leaves the text as
//     it was before the attempt.
//  5. The module settles to Patched or Unchanged and the text goes back to
//     the loader.
//
// CRITICAL PATTERNS:
//
// Single writer:
// The Engine does no locking and is not safe for concurrent use. Handles
// returned by FindLazy are the only values other goroutines may touch.
//
// Isolation:
// Every failure is attributed to its owner and disables only that owner on
// that module for the rest of the session.
//
// Determinism:
// Rule sets run in registration order, candidate modules in module-id order,
// and every attempt is stamped by the logical Clock.
package engine
