// Package harness runs patch scenarios against the real engine.
//
// A scenario pairs a rule pack with a recorded bundle, replays the bundle
// through a host, and checks assertions against the patched modules and the
// session journal.
//
// # Scenario Format
//
//	name: foo_token
//	description: "FOO_TOKEN modules get x=2"
//	rules: ../rules            # rule pack directory, relative to this file
//	plugins: |                 # or inline CUE
//	  plugin: A: patches: [{find: "FOO_TOKEN", replacement: {match: "x=1", replace: "x=2"}}]
//	bundle: bundle.yaml        # recorded bundle, relative to this file
//	modules:                   # or inline modules
//	  - id: "1"
//	    source: "let x=1; FOO_TOKEN"
//	assertions:
//	  - type: module_text
//	    module: "1"
//	    text: "let x=2; FOO_TOKEN"
//
// # Assertion Types
//
//   - module_text: the executed text equals text
//   - module_contains: the executed text contains text
//   - module_lacks: the executed text does not contain text
//   - module_state: the module's final journaled state
//   - attempt: an attempt by owner on module ended with outcome
//   - diagnostic: diagnostics with code (and owner/module if set) occurred,
//     exactly count times when count is set
//   - no_diagnostics: the session produced no diagnostics
//   - lazy: a plugin's lazy request ended in state (and bound module)
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory journal and sequential session ids, so
// the snapshot of a scenario is byte-identical across runs and can be
// compared against a golden file.
package harness
